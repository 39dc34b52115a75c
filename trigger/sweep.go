package trigger

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/kbukum/flowgate/errors"
	"github.com/kbukum/flowgate/logger"
	"github.com/kbukum/flowgate/observability"
	"github.com/kbukum/flowgate/workflow"
)

// SweepReport summarizes one sweep.
type SweepReport struct {
	Due        int      `json:"due"`
	Triggered  int      `json:"triggered"`
	Duplicates int      `json:"duplicates"`
	Failed     int      `json:"failed"`
	Executions []string `json:"executions"`
}

// Sweep triggers every published, scheduled workflow whose next run is
// due. The schedule is advanced before triggering, and the idempotency key
// is derived from the scheduled time, so overlapping sweeps start each
// occurrence at most once.
func (s *Service) Sweep(ctx context.Context) (*SweepReport, error) {
	ctx, op := observability.StartOperation(ctx, observability.SpanSweep)
	log := s.log.WithContext(ctx)
	now := s.now()

	due, err := s.deps.Store.ListDueWorkflows(ctx, now, s.cfg.SweepBatch)
	if err != nil {
		op.End("failed", err)
		return nil, apperrors.Internal(err)
	}
	report := &SweepReport{Due: len(due), Executions: []string{}}

	for _, wf := range due {
		wlog := log.WithFields(map[string]interface{}{logger.FieldWorkflowID: wf.ID})
		scheduled := now
		if wf.NextRunAt != nil {
			scheduled = *wf.NextRunAt
		}

		next, err := s.nextRun(wf.Cron, now)
		if err != nil {
			wlog.Warn("Unscheduling workflow with invalid cron", logger.ErrorFields("parse_cron", err))
			if err := s.deps.Store.UpdateWorkflowNextRun(ctx, wf.ID, nil); err != nil {
				wlog.Error("Unscheduling failed", logger.ErrorFields("update_next_run", err))
			}
			report.Failed++
			continue
		}
		if err := s.deps.Store.UpdateWorkflowNextRun(ctx, wf.ID, &next); err != nil {
			wlog.Error("Advancing schedule failed", logger.ErrorFields("update_next_run", err))
			report.Failed++
			continue
		}

		key := s.deps.Idempotency.DeriveKey(string(workflow.TriggerCron), wf.ID, scheduled)
		req := Request{WorkflowID: wf.ID, Source: workflow.TriggerCron}
		res, err := s.fire(ctx, key, req, wf)
		switch {
		case err == nil:
			report.Triggered++
			report.Executions = append(report.Executions, res.ExecutionID)
		case apperrors.HasCode(err, apperrors.ErrCodeIdempotencyConflict):
			report.Duplicates++
		case errors.Is(err, context.Canceled):
			op.End("canceled", err)
			return report, err
		default:
			wlog.Warn("Scheduled trigger failed", logger.ErrorFields("trigger", err))
			report.Failed++
		}
	}

	op.SetAttributes(attribute.Int("sweep.triggered", report.Triggered))
	op.End("completed", nil)
	if report.Due > 0 {
		log.Info("Sweep finished", map[string]interface{}{
			"due":        report.Due,
			"triggered":  report.Triggered,
			"duplicates": report.Duplicates,
			"failed":     report.Failed,
		})
	}
	return report, nil
}
