package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kbukum/flowgate/database"
	"github.com/kbukum/flowgate/workflow"
)

type workflowModel struct {
	ID            string              `gorm:"primaryKey;size:64"`
	UserID        string              `gorm:"size:64;index;not null"`
	Name          string              `gorm:"size:255"`
	Definition    workflow.Definition `gorm:"serializer:json"`
	Settings      workflow.Settings   `gorm:"serializer:json"`
	Published     bool                `gorm:"index:idx_workflows_due,priority:1"`
	Plan          []byte
	Credits       int64
	Cron          string     `gorm:"size:128"`
	NextRunAt     *time.Time `gorm:"index:idx_workflows_due,priority:2"`
	LastRunID     string     `gorm:"size:64"`
	LastRunAt     *time.Time
	LastRunStatus string    `gorm:"size:16"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime:false"`
}

func (workflowModel) TableName() string { return "workflows" }

type executionModel struct {
	ID              string `gorm:"primaryKey;size:64"`
	WorkflowID      string `gorm:"size:64;index"`
	UserID          string `gorm:"size:64;index"`
	Status          string `gorm:"size:16"`
	Trigger         string `gorm:"size:16"`
	Plan            []byte
	CreatedAt       time.Time `gorm:"autoCreateTime:false"`
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreditsConsumed int64
	Logs            []workflow.LogEntry `gorm:"serializer:json"`
}

func (executionModel) TableName() string { return "executions" }

type phaseRecordModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	ExecutionID string `gorm:"size:64;index:idx_phase_records_order,priority:1"`
	// Seq preserves plan order among records of the same phase.
	Seq             int `gorm:"index:idx_phase_records_order,priority:2"`
	PhaseNumber     int
	Node            workflow.Node `gorm:"serializer:json"`
	Status          string        `gorm:"size:16"`
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreditsConsumed int64
	Inputs          map[string]string   `gorm:"serializer:json"`
	Outputs         map[string]string   `gorm:"serializer:json"`
	Logs            []workflow.LogEntry `gorm:"serializer:json"`
}

func (phaseRecordModel) TableName() string { return "phase_records" }

// Models returns the tables GormStore needs, for auto-migration.
func Models() []interface{} {
	return []interface{}{&workflowModel{}, &executionModel{}, &phaseRecordModel{}}
}

// GormStore persists to a relational database through GORM.
type GormStore struct {
	db  *database.DB
	now func() time.Time
}

var _ Store = (*GormStore)(nil)

// NewGormStore wraps an open database. now defaults to time.Now.
func NewGormStore(db *database.DB, now func() time.Time) *GormStore {
	if now == nil {
		now = time.Now
	}
	return &GormStore{db: db, now: now}
}

// Migrate creates or updates the store tables.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(Models()...)
}

func (s *GormStore) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	var m workflowModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return m.toWorkflow(), nil
}

func (s *GormStore) SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	wf.UpdatedAt = s.now()
	m := workflowFrom(wf)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&m).Error
	if err != nil {
		return fmt.Errorf("save workflow %s: %w", wf.ID, err)
	}
	return nil
}

func (s *GormStore) DeleteWorkflow(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&workflowModel{})
	if res.Error != nil {
		return fmt.Errorf("delete workflow %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListDueWorkflows(ctx context.Context, now time.Time, limit int) ([]*workflow.Workflow, error) {
	q := s.db.WithContext(ctx).
		Where("published = ? AND cron <> ? AND next_run_at IS NOT NULL AND next_run_at <= ?", true, "", now).
		Order("next_run_at, id")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []workflowModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list due workflows: %w", err)
	}
	out := make([]*workflow.Workflow, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toWorkflow())
	}
	return out, nil
}

func (s *GormStore) UpdateWorkflowLastRun(ctx context.Context, workflowID string, run LastRun) error {
	res := s.db.WithContext(ctx).Model(&workflowModel{}).Where("id = ?", workflowID).
		Updates(map[string]interface{}{
			"last_run_id":     run.ExecutionID,
			"last_run_at":     run.At,
			"last_run_status": string(run.Status),
		})
	if res.Error != nil {
		return fmt.Errorf("update last run of %s: %w", workflowID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) UpdateWorkflowNextRun(ctx context.Context, workflowID string, next *time.Time) error {
	res := s.db.WithContext(ctx).Model(&workflowModel{}).Where("id = ?", workflowID).
		Update("next_run_at", next)
	if res.Error != nil {
		return fmt.Errorf("update next run of %s: %w", workflowID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) CreateExecution(ctx context.Context, exec *workflow.Execution, records []*workflow.PhaseRecord) error {
	return s.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		m := executionFrom(exec)
		if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("create execution %s: %w", exec.ID, err)
		}
		if len(records) == 0 {
			return nil
		}
		rows := make([]phaseRecordModel, 0, len(records))
		for i, rec := range records {
			rows = append(rows, phaseRecordFrom(rec, i))
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("create phase records for %s: %w", exec.ID, err)
		}
		return nil
	})
}

func (s *GormStore) GetExecution(ctx context.Context, id string) (*workflow.Execution, error) {
	var m executionModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return m.toExecution(), nil
}

func (s *GormStore) UpdateExecution(ctx context.Context, exec *workflow.Execution) error {
	m := executionFrom(exec)
	res := s.db.WithContext(ctx).Model(&executionModel{}).Where("id = ?", exec.ID).
		Select("status", "started_at", "completed_at", "credits_consumed", "logs").
		Updates(&m)
	if res.Error != nil {
		return fmt.Errorf("update execution %s: %w", exec.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) UpdatePhaseRecord(ctx context.Context, rec *workflow.PhaseRecord) error {
	m := phaseRecordFrom(rec, 0)
	res := s.db.WithContext(ctx).Model(&phaseRecordModel{}).Where("id = ?", rec.ID).
		Select("status", "started_at", "completed_at", "credits_consumed", "inputs", "outputs", "logs").
		Updates(&m)
	if res.Error != nil {
		return fmt.Errorf("update phase record %s: %w", rec.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListPhaseRecords(ctx context.Context, executionID string) ([]*workflow.PhaseRecord, error) {
	if _, err := s.GetExecution(ctx, executionID); err != nil {
		return nil, err
	}
	var rows []phaseRecordModel
	err := s.db.WithContext(ctx).Where("execution_id = ?", executionID).
		Order("phase_number, seq").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list phase records for %s: %w", executionID, err)
	}
	out := make([]*workflow.PhaseRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toPhaseRecord())
	}
	return out, nil
}

func notFound(err error) error {
	if database.IsNotFoundError(err) {
		return ErrNotFound
	}
	return err
}

func workflowFrom(wf *workflow.Workflow) workflowModel {
	return workflowModel{
		ID:            wf.ID,
		UserID:        wf.UserID,
		Name:          wf.Name,
		Definition:    wf.Definition,
		Settings:      wf.Settings,
		Published:     wf.Published,
		Plan:          wf.Plan,
		Credits:       wf.Credits,
		Cron:          wf.Cron,
		NextRunAt:     wf.NextRunAt,
		LastRunID:     wf.LastRunID,
		LastRunAt:     wf.LastRunAt,
		LastRunStatus: string(wf.LastRunStatus),
		UpdatedAt:     wf.UpdatedAt,
	}
}

func (m *workflowModel) toWorkflow() *workflow.Workflow {
	return &workflow.Workflow{
		ID:            m.ID,
		UserID:        m.UserID,
		Name:          m.Name,
		Definition:    m.Definition,
		Settings:      m.Settings,
		Published:     m.Published,
		Plan:          m.Plan,
		Credits:       m.Credits,
		Cron:          m.Cron,
		NextRunAt:     m.NextRunAt,
		LastRunID:     m.LastRunID,
		LastRunAt:     m.LastRunAt,
		LastRunStatus: workflow.ExecutionStatus(m.LastRunStatus),
		UpdatedAt:     m.UpdatedAt,
	}
}

func executionFrom(e *workflow.Execution) executionModel {
	return executionModel{
		ID:              e.ID,
		WorkflowID:      e.WorkflowID,
		UserID:          e.UserID,
		Status:          string(e.Status),
		Trigger:         string(e.Trigger),
		Plan:            e.Plan,
		CreatedAt:       e.CreatedAt,
		StartedAt:       e.StartedAt,
		CompletedAt:     e.CompletedAt,
		CreditsConsumed: e.CreditsConsumed,
		Logs:            e.Logs,
	}
}

func (m *executionModel) toExecution() *workflow.Execution {
	return &workflow.Execution{
		ID:              m.ID,
		WorkflowID:      m.WorkflowID,
		UserID:          m.UserID,
		Status:          workflow.ExecutionStatus(m.Status),
		Trigger:         workflow.TriggerSource(m.Trigger),
		Plan:            m.Plan,
		CreatedAt:       m.CreatedAt,
		StartedAt:       m.StartedAt,
		CompletedAt:     m.CompletedAt,
		CreditsConsumed: m.CreditsConsumed,
		Logs:            m.Logs,
	}
}

func phaseRecordFrom(r *workflow.PhaseRecord, seq int) phaseRecordModel {
	return phaseRecordModel{
		ID:              r.ID,
		ExecutionID:     r.ExecutionID,
		Seq:             seq,
		PhaseNumber:     r.PhaseNumber,
		Node:            r.Node,
		Status:          string(r.Status),
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
		CreditsConsumed: r.CreditsConsumed,
		Inputs:          r.Inputs,
		Outputs:         r.Outputs,
		Logs:            r.Logs,
	}
}

func (m *phaseRecordModel) toPhaseRecord() *workflow.PhaseRecord {
	return &workflow.PhaseRecord{
		ID:              m.ID,
		ExecutionID:     m.ExecutionID,
		PhaseNumber:     m.PhaseNumber,
		Node:            m.Node,
		Status:          workflow.PhaseStatus(m.Status),
		StartedAt:       m.StartedAt,
		CompletedAt:     m.CompletedAt,
		CreditsConsumed: m.CreditsConsumed,
		Inputs:          m.Inputs,
		Outputs:         m.Outputs,
		Logs:            m.Logs,
	}
}
