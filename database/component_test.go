package database

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/kbukum/flowgate/component"
	"github.com/kbukum/flowgate/logger"
)

type widget struct {
	ID   string `gorm:"primaryKey"`
	Name string
}

func TestComponent_Lifecycle(t *testing.T) {
	comp := NewComponent(Config{Driver: DriverSQLite, DSN: ":memory:", AutoMigrate: true}, logger.NewNop()).
		WithAutoMigrate(&widget{})
	ctx := context.Background()

	if comp.DB() != nil {
		t.Fatal("DB() should be nil before Start")
	}
	if h := comp.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("health before start = %s", h.Status)
	}

	if err := comp.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if h := comp.Health(ctx); h.Status != component.StatusHealthy {
		t.Errorf("health after start = %s (%s)", h.Status, h.Message)
	}

	db := comp.DB()
	if err := db.WithContext(ctx).Create(&widget{ID: "w1", Name: "one"}).Error; err != nil {
		t.Fatalf("insert into migrated table: %v", err)
	}

	if err := comp.Stop(ctx); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	comp := NewComponent(Config{Driver: DriverSQLite, DSN: ":memory:", AutoMigrate: true}, logger.NewNop()).
		WithAutoMigrate(&widget{})
	ctx := context.Background()
	if err := comp.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer comp.Stop(ctx)

	boom := errors.New("boom")
	err := comp.DB().WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&widget{ID: "w1"}).Error; err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	var count int64
	comp.DB().WithContext(ctx).Model(&widget{}).Count(&count)
	if count != 0 {
		t.Errorf("rows after rollback = %d, want 0", count)
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if cfg.Driver != DriverSQLite || cfg.MaxOpenConns != 1 {
		t.Errorf("sqlite defaults = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}

	pg := Config{Driver: DriverPostgres}
	pg.ApplyDefaults()
	if err := pg.Validate(); err == nil {
		t.Error("postgres without DSN should fail validation")
	}
	if pg.MaxOpenConns != 25 || pg.MaxIdleConns != 5 {
		t.Errorf("postgres pool defaults = %d/%d", pg.MaxOpenConns, pg.MaxIdleConns)
	}

	bad := Config{Driver: "mysql", DSN: "x"}
	bad.ApplyDefaults()
	if err := bad.Validate(); err == nil {
		t.Error("unsupported driver should fail validation")
	}
}

func TestFromDatabase(t *testing.T) {
	if got := FromDatabase(gorm.ErrRecordNotFound, "execution"); got.HTTPStatus != 404 {
		t.Errorf("not found status = %d", got.HTTPStatus)
	}
	if got := FromDatabase(errors.New("dial tcp: connection refused"), "execution"); got.HTTPStatus != 503 {
		t.Errorf("connection status = %d", got.HTTPStatus)
	}
	if FromDatabase(nil, "x") != nil {
		t.Error("nil error should map to nil")
	}
}
