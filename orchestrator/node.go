package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/flowgate/credential"
	apperrors "github.com/kbukum/flowgate/errors"
	"github.com/kbukum/flowgate/logger"
	"github.com/kbukum/flowgate/observability"
	"github.com/kbukum/flowgate/plan"
	"github.com/kbukum/flowgate/pool"
	"github.com/kbukum/flowgate/resilience"
	"github.com/kbukum/flowgate/workflow"
)

// nodeRun carries one node through the pool. logs collects entries written
// before the executor gets its own NodeEnv.
type nodeRun struct {
	rec  *workflow.PhaseRecord
	def  workflow.TaskDefinition
	logs []workflow.LogEntry
}

func (r *nodeRun) log(level workflow.LogLevel, msg string, at time.Time) {
	r.logs = append(r.logs, workflow.LogEntry{Level: level, Message: msg, Timestamp: at})
}

// runNode executes one node and persists its final record. It reports
// whether the node completed.
func (o *Orchestrator) runNode(ctx context.Context, log *logger.Logger, ph plan.Phase, env *Environment, rec *workflow.PhaseRecord) bool {
	node := rec.Node
	ctx, op := observability.StartOperation(ctx, observability.SpanNode,
		attribute.String(observability.AttrNodeID, node.ID),
		attribute.String(observability.AttrTaskType, node.TaskType),
		attribute.Int(observability.AttrPhase, ph.Number),
	)
	log = log.WithFields(map[string]interface{}{
		logger.FieldNodeID:   node.ID,
		logger.FieldTaskType: node.TaskType,
		logger.FieldPhase:    ph.Number,
	})
	run := &nodeRun{rec: rec}

	var err error
	def, ok := o.deps.Catalog.Definition(node.TaskType)
	if !ok {
		err = apperrors.UnknownTaskType(node.TaskType)
	} else {
		run.def = def
		err = o.deps.Pool.Run(ctx, def.Resource, func(ctx context.Context) error {
			return o.execNode(ctx, log, ph, env, run)
		})
		if pool.IsBackpressure(err) {
			err = apperrors.Backpressure(string(def.Resource)).WithCause(err)
		}
	}

	completed := o.now()
	rec.CompletedAt = &completed
	if rec.StartedAt == nil {
		rec.StartedAt = &completed
	}
	status := workflow.PhaseCompleted
	if err != nil {
		status = workflow.PhaseFailed
		run.log(workflow.LogError, err.Error(), completed)
		log.Warn("Node failed", logger.ErrorFields("run_node", err))
	}
	rec.Status = status
	rec.Logs = append(rec.Logs, run.logs...)

	if perr := o.deps.Store.UpdatePhaseRecord(context.WithoutCancel(ctx), rec); perr != nil {
		log.Error("Persisting node record failed", logger.ErrorFields("update_record", perr))
	}

	d := op.End(string(status), err)
	o.deps.Metrics.RecordNode(ctx, node.TaskType, string(status), d)
	return err == nil
}

// execNode runs inside a pool slot: resolve inputs, politeness delay,
// debit, then the executor under the phase retry policy.
func (o *Orchestrator) execNode(ctx context.Context, log *logger.Logger, ph plan.Phase, env *Environment, run *nodeRun) error {
	rec, def := run.rec, run.def
	started := o.now()
	rec.StartedAt = &started
	rec.Status = workflow.PhaseRunning
	if err := o.deps.Store.UpdatePhaseRecord(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn("Persisting running record failed", logger.ErrorFields("update_record", err))
	}

	executor, ok := o.deps.Executors.Lookup(def.Type)
	if !ok {
		return apperrors.UnknownTaskType(def.Type)
	}

	inputs, recorded, err := o.resolveInputs(ctx, env, rec.Node, def)
	rec.Inputs = recorded
	if err != nil {
		return err
	}

	if def.NetworkSensitive {
		if delay := env.politenessDelay(o.now()); delay > 0 {
			run.log(workflow.LogInfo, fmt.Sprintf("politeness delay %s", delay), o.now())
			if err := o.sleep(ctx, delay); err != nil {
				return err
			}
		}
	}

	policy := resilience.NoRetry()
	if ph.Retry != nil {
		policy = *ph.Retry
	}

	if err := o.debit(ctx, log, env, def, policy, run); err != nil {
		return err
	}

	nodeEnv := newNodeEnv(env, rec.Node, inputs, o.now)
	err = resilience.Do(ctx, policy, func(attempt int) error {
		if attempt > 1 {
			nodeEnv.resetOutputs()
		}
		return executor.Execute(ctx, nodeEnv)
	}, nil, func(attempt int, err error, backoff time.Duration) {
		nodeEnv.Log(workflow.LogWarn, fmt.Sprintf("attempt %d failed: %v; retrying in %s", attempt, err, backoff))
		log.Warn("Executor attempt failed, retrying", map[string]interface{}{
			"attempt":         attempt,
			logger.FieldError: err.Error(),
			"backoff_ms":      backoff.Milliseconds(),
		})
	})

	outputs, logs := nodeEnv.snapshot()
	run.logs = append(run.logs, logs...)
	if err != nil {
		return apperrors.ExecutorFailed(def.Type, err)
	}

	rec.Outputs = outputs
	env.setOutputs(rec.Node.ID, outputs)
	return nil
}

// debit charges the node's cost. Ledger errors are retried only when the
// policy opts in; an insufficient balance is never retried.
func (o *Orchestrator) debit(ctx context.Context, log *logger.Logger, env *Environment, def workflow.TaskDefinition, policy resilience.RetryPolicy, run *nodeRun) error {
	if def.Credits <= 0 {
		return nil
	}
	debitPolicy := resilience.NoRetry()
	if policy.RetryCreditDebit {
		debitPolicy = policy
	}

	var paid bool
	err := resilience.Do(ctx, debitPolicy, func(int) error {
		ok, err := o.deps.Ledger.Debit(ctx, env.UserID, def.Credits)
		paid = ok
		return err
	}, nil, func(attempt int, err error, backoff time.Duration) {
		log.Warn("Credit debit failed, retrying", map[string]interface{}{
			"attempt":         attempt,
			logger.FieldError: err.Error(),
		})
	})
	if err != nil {
		return fmt.Errorf("debit %d credits: %w", def.Credits, err)
	}
	if !paid {
		balance, _ := o.deps.Ledger.Balance(ctx, env.UserID)
		return apperrors.InsufficientCredits(def.Credits, balance)
	}

	run.rec.CreditsConsumed = def.Credits
	o.deps.Metrics.RecordCredits(ctx, def.Type, def.Credits)
	return nil
}

// resolveInputs returns the values handed to the executor and the values
// recorded on the phase record. Credential inputs are recorded by id.
func (o *Orchestrator) resolveInputs(ctx context.Context, env *Environment, node workflow.Node, def workflow.TaskDefinition) (map[string]string, map[string]string, error) {
	inputs := make(map[string]string, len(def.Inputs))
	recorded := make(map[string]string, len(def.Inputs))

	for _, param := range def.Inputs {
		var (
			value string
			found bool
		)
		if edge, ok := env.plan.IncomingEdge(node.ID, param.Name); ok {
			value, found = env.Output(edge.Source, edge.SourceHandle)
		}
		if !found {
			value, found = node.Input(param.Name)
		}
		if !found {
			if param.Required && node.EffectiveGate() == workflow.GateAnd {
				return inputs, recorded, fmt.Errorf("input %q: %w", param.Name, errMissingInput)
			}
			continue
		}

		recorded[param.Name] = value
		if param.Kind == workflow.ParamCredential {
			secret, err := o.resolveCredential(ctx, env, node, value)
			if err != nil {
				return inputs, recorded, err
			}
			value = secret
		}
		inputs[param.Name] = value
	}
	return inputs, recorded, nil
}

func (o *Orchestrator) resolveCredential(ctx context.Context, env *Environment, node workflow.Node, credentialID string) (string, error) {
	if o.deps.Credentials == nil {
		return "", fmt.Errorf("credential %q: no credential provider configured", credentialID)
	}
	secret, err := o.deps.Credentials.Resolve(ctx, credentialID, env.UserID, credential.Context{
		ExecutionID: env.ExecutionID,
		NodeID:      node.ID,
		TaskType:    node.TaskType,
	})
	if errors.Is(err, credential.ErrNotFound) {
		return "", apperrors.NotFound("credential", credentialID)
	}
	if err != nil {
		return "", fmt.Errorf("credential %q: %w", credentialID, err)
	}
	return secret, nil
}
