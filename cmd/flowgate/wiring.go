package main

import (
	"context"
	"fmt"

	"github.com/kbukum/flowgate/auth"
	"github.com/kbukum/flowgate/bootstrap"
	"github.com/kbukum/flowgate/credential"
	"github.com/kbukum/flowgate/credits"
	"github.com/kbukum/flowgate/database"
	"github.com/kbukum/flowgate/executors"
	"github.com/kbukum/flowgate/httpclient"
	"github.com/kbukum/flowgate/idempotency"
	"github.com/kbukum/flowgate/invalidation"
	"github.com/kbukum/flowgate/llm"
	"github.com/kbukum/flowgate/logger"
	"github.com/kbukum/flowgate/observability"
	"github.com/kbukum/flowgate/orchestrator"
	"github.com/kbukum/flowgate/pool"
	"github.com/kbukum/flowgate/ratelimit"
	"github.com/kbukum/flowgate/redis"
	"github.com/kbukum/flowgate/store"
	"github.com/kbukum/flowgate/trigger"
	"github.com/kbukum/flowgate/workflow"
)

// infra holds the infrastructure components; disabled ones are nil.
type infra struct {
	redis    *redis.Component
	database *database.Component
	nats     *invalidation.Component
}

// registerInfra registers infrastructure components in dependency order.
func registerInfra(app *bootstrap.App[*Config]) (*infra, error) {
	cfg, log := app.Cfg, app.Logger
	in := &infra{database: database.NewComponent(cfg.Database, log).WithAutoMigrate(store.Models()...)}

	if err := app.RegisterComponent(observability.NewComponent(cfg.Telemetry, cfg.Name, cfg.Version, log)); err != nil {
		return nil, err
	}
	if cfg.Redis.Enabled {
		in.redis = redis.NewComponent(cfg.Redis, log)
		if err := app.RegisterComponent(in.redis); err != nil {
			return nil, err
		}
	}
	if err := app.RegisterComponent(in.database); err != nil {
		return nil, err
	}
	if cfg.NATS.Enabled {
		in.nats = invalidation.NewComponent(cfg.NATS, log)
		if err := app.RegisterComponent(in.nats); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// runtime is the business layer built on started infrastructure.
type runtime struct {
	store        store.Store
	catalog      *workflow.MapCatalog
	ledger       credits.Ledger
	coordinator  *idempotency.Coordinator
	limiter      *ratelimit.Limiter
	pool         *pool.Pool
	orchestrator *orchestrator.Orchestrator
	trigger      *trigger.Service
	tokens       *auth.Tokens
	http         *httpclient.Client
}

// buildRuntime wires the business layer. It runs from a configure
// callback, after infrastructure components have started.
func buildRuntime(ctx context.Context, app *bootstrap.App[*Config], in *infra) (*runtime, error) {
	cfg, log := app.Cfg, app.Logger
	rt := &runtime{catalog: workflow.DefaultCatalog()}

	rt.store = store.NewGormStore(in.database.DB(), nil)

	var (
		idemShared idempotency.Backend
		rateShared ratelimit.Store
	)
	if in.redis != nil {
		client := in.redis.Client()
		idemShared = idempotency.NewRedisBackend(client)
		rateShared = ratelimit.NewRedisStore(client)
		ledger := credits.NewRedisLedger(client)
		for user, amount := range cfg.Credits.Grants {
			seeded, err := ledger.Seed(ctx, user, amount)
			if err != nil {
				return nil, fmt.Errorf("grant credits to %s: %w", user, err)
			}
			if seeded {
				log.Info("Seeded credit balance", map[string]interface{}{logger.FieldUserID: user, "credits": amount})
			}
		}
		rt.ledger = ledger
	} else {
		ledger := credits.NewMemoryLedger()
		for user, amount := range cfg.Credits.Grants {
			ledger.Grant(user, amount)
		}
		rt.ledger = ledger
	}
	rt.coordinator = idempotency.NewCoordinator(cfg.Idempotency, idemShared, log)

	limiter, err := ratelimit.New(cfg.RateLimit, rateShared, log)
	if err != nil {
		return nil, err
	}
	rt.limiter = limiter

	tokens, err := auth.NewTokens(cfg.Auth)
	if err != nil {
		return nil, err
	}
	rt.tokens = tokens

	p, err := pool.New(cfg.Pool, log)
	if err != nil {
		return nil, err
	}
	if err := p.RegisterMetrics(observability.Meter()); err != nil {
		log.Warn("Pool metrics unavailable", logger.ErrorFields("register_metrics", err))
	}
	rt.pool = p

	hc, err := httpclient.New(cfg.HTTPClient, log)
	if err != nil {
		return nil, err
	}
	rt.http = hc

	deps := executors.Deps{HTTP: hc, Log: log}
	if cfg.AI.Enabled {
		model, err := llm.New(cfg.AI.Config, log)
		if err != nil {
			return nil, err
		}
		deps.LLM = model
	}
	reg := orchestrator.NewRegistry()
	if err := executors.Register(reg, deps); err != nil {
		return nil, err
	}

	metrics := observability.DefaultMetrics()
	odeps := orchestrator.Deps{
		Catalog:   rt.catalog,
		Executors: reg,
		Ledger:    rt.ledger,
		Store:     rt.store,
		Pool:      p,
		Metrics:   metrics,
	}
	if in.nats != nil {
		odeps.Notifier = in.nats
	}
	if cfg.Credentials.SealingSecret != "" {
		provider, err := credentialProvider(cfg.Credentials, log)
		if err != nil {
			return nil, err
		}
		odeps.Credentials = provider
	}
	orch, err := orchestrator.New(odeps, log, orchestrator.WithDefaults(cfg.Defaults))
	if err != nil {
		return nil, err
	}
	rt.orchestrator = orch

	svc, err := trigger.New(cfg.Trigger, trigger.Deps{
		Store:       rt.store,
		Catalog:     rt.catalog,
		Runner:      orch,
		Idempotency: rt.coordinator,
		Metrics:     metrics,
	}, log)
	if err != nil {
		return nil, err
	}
	rt.trigger = svc
	return rt, nil
}

// credentialProvider seals the configured credentials into memory.
func credentialProvider(cfg CredentialsConfig, log *logger.Logger) (*credential.SealedProvider, error) {
	sealer, err := credential.NewSealer(cfg.SealingSecret)
	if err != nil {
		return nil, err
	}
	provider := credential.NewSealedProvider(sealer, credential.NewLogAuditor(log))
	for _, seed := range cfg.Seed {
		if err := provider.Put(seed.UserID, seed.ID, seed.Value); err != nil {
			return nil, fmt.Errorf("seal credential %s: %w", seed.ID, err)
		}
	}
	return provider, nil
}
