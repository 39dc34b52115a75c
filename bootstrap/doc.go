// Package bootstrap runs the flowgate process lifecycle.
//
// Startup happens in three steps. Infrastructure components registered
// before Run (Redis, database, NATS, telemetry) start first. Configure
// callbacks then build the business layer on top of them and may register
// further components, such as the trigger scheduler and the HTTP server,
// which start next. Shutdown stops everything in reverse order.
//
//	app, err := bootstrap.NewApp(&cfg)
//	app.RegisterComponent(redisComponent)
//	app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*ServeConfig]) error {
//	    return a.RegisterComponent(server.NewComponent(srv))
//	})
//	err = app.Run(ctx)
package bootstrap
