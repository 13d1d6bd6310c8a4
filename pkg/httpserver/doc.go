// Package httpserver runs an HTTP handler with graceful shutdown.
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	srv := httpserver.NewFromConfig(cfg.HTTP,
//		httpserver.WithLogger(log),
//		httpserver.WithStopHook(dispatcher.Close),
//		httpserver.WithStopHook(func(context.Context) error { pool.Close(); return nil }),
//	)
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server failed", logger.Error(err))
//	}
//
// Run binds the listener before returning control to the serve loop, so a
// bad address fails fast with ErrStart. When ctx is cancelled the server
// stops accepting requests, drains in-flight ones and then runs the stop
// hooks, all bounded by the shutdown timeout.
//
// HealthCheckHandler provides liveness and readiness endpoints from a set of
// named dependency probes such as pg.Healthcheck or redis.Healthcheck.
package httpserver
