package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/kbukum/flowgate/workflow"
)

// MemoryStore keeps everything in process memory. Values are copied on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu         sync.RWMutex
	now        func() time.Time
	workflows  map[string]*workflow.Workflow
	executions map[string]*workflow.Execution
	records    map[string][]*workflow.PhaseRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. now defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:        now,
		workflows:  make(map[string]*workflow.Workflow),
		executions: make(map[string]*workflow.Execution),
		records:    make(map[string][]*workflow.PhaseRecord),
	}
}

func (s *MemoryStore) GetWorkflow(_ context.Context, id string) (*workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneWorkflow(wf), nil
}

func (s *MemoryStore) SaveWorkflow(_ context.Context, wf *workflow.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf.UpdatedAt = s.now()
	s.workflows[wf.ID] = cloneWorkflow(wf)
	return nil
}

func (s *MemoryStore) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return ErrNotFound
	}
	delete(s.workflows, id)
	return nil
}

func (s *MemoryStore) ListDueWorkflows(_ context.Context, now time.Time, limit int) ([]*workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*workflow.Workflow
	for _, wf := range s.workflows {
		if wf.Scheduled() && wf.NextRunAt != nil && !wf.NextRunAt.After(now) {
			due = append(due, cloneWorkflow(wf))
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].NextRunAt.Equal(*due[j].NextRunAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].NextRunAt.Before(*due[j].NextRunAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryStore) UpdateWorkflowLastRun(_ context.Context, workflowID string, run LastRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return ErrNotFound
	}
	at := run.At
	wf.LastRunID = run.ExecutionID
	wf.LastRunAt = &at
	wf.LastRunStatus = run.Status
	return nil
}

func (s *MemoryStore) UpdateWorkflowNextRun(_ context.Context, workflowID string, next *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return ErrNotFound
	}
	if next == nil {
		wf.NextRunAt = nil
		return nil
	}
	at := *next
	wf.NextRunAt = &at
	return nil
}

func (s *MemoryStore) CreateExecution(_ context.Context, exec *workflow.Execution, records []*workflow.PhaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[exec.ID] = cloneExecution(exec)
	stored := make([]*workflow.PhaseRecord, 0, len(records))
	for _, rec := range records {
		stored = append(stored, clonePhaseRecord(rec))
	}
	s.records[exec.ID] = stored
	return nil
}

func (s *MemoryStore) GetExecution(_ context.Context, id string) (*workflow.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneExecution(exec), nil
}

func (s *MemoryStore) UpdateExecution(_ context.Context, exec *workflow.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[exec.ID]; !ok {
		return ErrNotFound
	}
	s.executions[exec.ID] = cloneExecution(exec)
	return nil
}

func (s *MemoryStore) UpdatePhaseRecord(_ context.Context, rec *workflow.PhaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.records[rec.ExecutionID] {
		if existing.ID == rec.ID {
			s.records[rec.ExecutionID][i] = clonePhaseRecord(rec)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) ListPhaseRecords(_ context.Context, executionID string) ([]*workflow.PhaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.executions[executionID]; !ok {
		return nil, ErrNotFound
	}
	out := make([]*workflow.PhaseRecord, 0, len(s.records[executionID]))
	for _, rec := range s.records[executionID] {
		out = append(out, clonePhaseRecord(rec))
	}
	return out, nil
}

func cloneWorkflow(wf *workflow.Workflow) *workflow.Workflow {
	cp := *wf
	cp.Plan = slices.Clone(wf.Plan)
	cp.Definition.Nodes = slices.Clone(wf.Definition.Nodes)
	cp.Definition.Edges = slices.Clone(wf.Definition.Edges)
	return &cp
}

func cloneExecution(exec *workflow.Execution) *workflow.Execution {
	cp := *exec
	cp.Plan = slices.Clone(exec.Plan)
	cp.Logs = slices.Clone(exec.Logs)
	return &cp
}

func clonePhaseRecord(rec *workflow.PhaseRecord) *workflow.PhaseRecord {
	cp := *rec
	cp.Node.Inputs = maps.Clone(rec.Node.Inputs)
	cp.Inputs = maps.Clone(rec.Inputs)
	cp.Outputs = maps.Clone(rec.Outputs)
	cp.Logs = slices.Clone(rec.Logs)
	return &cp
}
