package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kbukum/flowgate/bootstrap"
	"github.com/kbukum/flowgate/server"
	"github.com/kbukum/flowgate/server/endpoint"
	"github.com/kbukum/flowgate/trigger"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the trigger API and run the cron sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := root.loadApp()
			if err != nil {
				return err
			}
			in, err := registerInfra(app)
			if err != nil {
				return err
			}
			app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*Config]) error {
				rt, err := buildRuntime(ctx, a, in)
				if err != nil {
					return err
				}
				return registerServices(a, rt)
			})
			return app.Run(cmd.Context())
		},
	}
}

// registerServices mounts the HTTP API and registers the trigger scheduler
// and HTTP server. The server registers last so it stops first.
func registerServices(app *bootstrap.App[*Config], rt *runtime) error {
	cfg := app.Cfg
	srv := server.New(cfg.Server, app.Logger)
	engine := srv.Engine()

	engine.GET("/health", endpoint.Health(cfg.Name, app.Components.HealthAll))
	engine.GET("/health/live", endpoint.Liveness())
	engine.GET("/metrics/pool", endpoint.PoolStats(rt.pool))

	trigger.NewHandler(rt.trigger, trigger.HandlerConfig{
		Tokens:        rt.tokens,
		TriggerSecret: cfg.Auth.TriggerSecret,
		Limiter:       rt.limiter,
	}, app.Logger).Register(engine)

	for _, r := range engine.Routes() {
		app.Summary.TrackRoute(r.Method, r.Path)
	}

	if err := app.RegisterComponent(trigger.NewComponent(rt.trigger)); err != nil {
		return err
	}
	return app.RegisterComponent(server.NewComponent(srv))
}
