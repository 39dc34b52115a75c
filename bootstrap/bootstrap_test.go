package bootstrap

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/flowgate/component"
	"github.com/kbukum/flowgate/config"
	"github.com/kbukum/flowgate/logger"
)

type testConfig struct {
	config.ServiceConfig
	failValidate bool
}

func (c *testConfig) Validate() error {
	if c.failValidate {
		return errors.New("invalid")
	}
	return c.ServiceConfig.Validate()
}

type mockComponent struct {
	name     string
	startErr error
	health   component.Health
	order    *[]string
	mu       sync.Mutex
	started  bool
	stopped  bool
}

func (m *mockComponent) Name() string { return m.name }
func (m *mockComponent) Start(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	if m.order != nil {
		*m.order = append(*m.order, "start:"+m.name)
	}
	return m.startErr
}
func (m *mockComponent) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.order != nil {
		*m.order = append(*m.order, "stop:"+m.name)
	}
	return nil
}
func (m *mockComponent) Health(context.Context) component.Health {
	if m.health.Status == "" {
		return component.Health{Name: m.name, Status: component.StatusHealthy}
	}
	return m.health
}

func newTestApp(t *testing.T) *App[*testConfig] {
	t.Helper()
	app, err := NewApp(&testConfig{ServiceConfig: config.ServiceConfig{Name: "flowgate", Version: "1.0"}},
		WithLogger(logger.NewNop()))
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return app
}

func TestNewApp(t *testing.T) {
	app := newTestApp(t)
	if app.Name != "flowgate" || app.Version != "1.0" {
		t.Errorf("name/version = %s/%s", app.Name, app.Version)
	}
	if app.Cfg.Environment != "development" {
		t.Errorf("defaults not applied: %q", app.Cfg.Environment)
	}
	if app.gracefulTimeout != 15*time.Second {
		t.Errorf("graceful timeout = %v", app.gracefulTimeout)
	}

	if _, err := NewApp(&testConfig{failValidate: true}); err == nil {
		t.Error("expected validation error")
	}

	app, _ = NewApp(&testConfig{}, WithLogger(logger.NewNop()), WithGracefulTimeout(time.Second))
	if app.gracefulTimeout != time.Second {
		t.Errorf("graceful timeout = %v", app.gracefulTimeout)
	}
}

func TestRunTask_LifecycleOrder(t *testing.T) {
	app := newTestApp(t)
	var order []string
	_ = app.RegisterComponent(&mockComponent{name: "redis", order: &order})

	app.OnStart(func(context.Context) error {
		order = append(order, "onStart")
		return nil
	})
	app.OnConfigure(func(_ context.Context, a *App[*testConfig]) error {
		order = append(order, "configure")
		return a.RegisterComponent(&mockComponent{name: "server", order: &order})
	})
	app.OnReady(func(context.Context) error {
		order = append(order, "onReady")
		return nil
	})
	app.OnStop(func(context.Context) error {
		order = append(order, "onStop")
		return nil
	})

	err := app.RunTask(context.Background(), func(context.Context) error {
		order = append(order, "task")
		return nil
	})
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	want := []string{
		"start:redis", "onStart", "configure", "start:server", "onReady",
		"task", "onStop", "stop:server", "stop:redis",
	}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v\nwant  %v", order, want)
	}
}

func TestRunTask_ReturnsTaskError(t *testing.T) {
	app := newTestApp(t)
	err := app.RunTask(context.Background(), func(context.Context) error {
		return errors.New("task error")
	})
	if err == nil || err.Error() != "task error" {
		t.Errorf("err = %v", err)
	}
}

func TestRunTask_Cancellation(t *testing.T) {
	app := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	err := app.RunTask(ctx, func(taskCtx context.Context) error {
		cancel()
		<-taskCtx.Done()
		return taskCtx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestStartupFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(app *App[*testConfig], comp *mockComponent)
	}{
		{"start hook", func(app *App[*testConfig], _ *mockComponent) {
			app.OnStart(func(context.Context) error { return errors.New("boom") })
		}},
		{"configure", func(app *App[*testConfig], _ *mockComponent) {
			app.OnConfigure(func(context.Context, *App[*testConfig]) error { return errors.New("boom") })
		}},
		{"ready hook", func(app *App[*testConfig], _ *mockComponent) {
			app.OnReady(func(context.Context) error { return errors.New("boom") })
		}},
		{"late component", func(app *App[*testConfig], _ *mockComponent) {
			app.OnConfigure(func(_ context.Context, a *App[*testConfig]) error {
				return a.RegisterComponent(&mockComponent{name: "server", startErr: errors.New("bind")})
			})
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t)
			comp := &mockComponent{name: "redis"}
			_ = app.RegisterComponent(comp)
			tc.setup(app, comp)

			ran := false
			err := app.RunTask(context.Background(), func(context.Context) error {
				ran = true
				return nil
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if ran {
				t.Error("task ran after failed startup")
			}
			if !comp.stopped {
				t.Error("started component was not stopped")
			}
		})
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	app := newTestApp(t)
	comp := &mockComponent{name: "redis"}
	_ = app.RegisterComponent(comp)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	app.OnReady(func(context.Context) error {
		cancel()
		return nil
	})
	go func() { done <- app.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	if !comp.started || !comp.stopped {
		t.Errorf("started=%v stopped=%v", comp.started, comp.stopped)
	}
}

func TestReadyCheck(t *testing.T) {
	app := newTestApp(t)
	if err := app.ReadyCheck(context.Background()); err != nil {
		t.Errorf("empty registry: %v", err)
	}
	_ = app.RegisterComponent(&mockComponent{name: "nats", health: component.Health{
		Name: "nats", Status: component.StatusDegraded, Message: "reconnecting",
	}})
	err := app.ReadyCheck(context.Background())
	if err == nil || err.Error() != "unhealthy components: [nats=degraded(reconnecting)]" {
		t.Errorf("err = %v", err)
	}
}

func TestSummary(t *testing.T) {
	s := NewSummary("flowgate", "1.0")
	s.TrackRoute("POST", "/api/workflows/execute")
	s.SetStartupDuration(20 * time.Millisecond)
	if len(s.Routes()) != 1 {
		t.Errorf("routes = %v", s.Routes())
	}
	s.Display(context.Background(), nil, logger.NewNop())

	for status, want := range map[string]string{"healthy": "✓", "degraded": "!", "unhealthy": "✗", "": "?"} {
		if got := statusIcon(status); got != want {
			t.Errorf("statusIcon(%q) = %q", status, got)
		}
	}
}
