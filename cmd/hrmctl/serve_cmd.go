package main

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/ulule/limiter/v3"

	"github.com/iota-uz/competency-hub/modules"
	"github.com/iota-uz/competency-hub/pkg/application"
	"github.com/iota-uz/competency-hub/pkg/configuration"
	"github.com/iota-uz/competency-hub/pkg/eventbus"
	"github.com/iota-uz/competency-hub/pkg/logging"
	"github.com/iota-uz/competency-hub/pkg/metrics"
	"github.com/iota-uz/competency-hub/pkg/middleware"
	"github.com/iota-uz/competency-hub/pkg/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the employee form API",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := root.config()
			if err != nil {
				return err
			}
			defer conf.Unload()
			return runServe(cmd.Context(), conf)
		},
	}
}

func runServe(ctx context.Context, conf *configuration.Configuration) error {
	logger := conf.Logger()
	if conf.OpenTelemetry.Enabled {
		cleanup := logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL)
		defer cleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	srv, err := newServer(ctx, conf)
	if err != nil {
		return err
	}
	logger.Infof("Listening on: %s", conf.SocketAddress)
	if err := srv.Serve(ctx, conf.SocketAddress); err != nil {
		return withCode(exitIO, err)
	}
	return nil
}

func newServer(ctx context.Context, conf *configuration.Configuration) (*server.HTTPServer, error) {
	logger := conf.Logger()
	app := application.New(&application.ApplicationOptions{
		Context:  ctx,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	loggerOpts := middleware.DefaultLoggerOptions()
	loggerOpts.RequestIDHeader = conf.RequestIDHeader
	app.RegisterMiddleware(
		middleware.WithLogger(logger, loggerOpts),
		middleware.TracedMiddleware("cors"),
		middleware.Cors(conf.CORS.AllowedOrigins...),
	)
	if conf.RateLimit.Enabled {
		app.RegisterMiddleware(
			middleware.TracedMiddleware("rateLimit"),
			middleware.RateLimit(middleware.RateLimitConfig{
				RequestsPerPeriod: conf.RateLimit.GlobalRPS,
				Store:             rateLimitStore(conf),
			}),
		)
	}
	if conf.Prometheus.Enabled {
		app.RegisterMiddleware(metrics.NewHTTPCollectors(prometheus.DefaultRegisterer).Middleware())
	}
	if err := modules.Load(app, modules.BuiltIn(conf)...); err != nil {
		return nil, withCode(exitConfig, err)
	}
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}
	return server.NewHTTPServer(app, nil, nil), nil
}

func rateLimitStore(conf *configuration.Configuration) limiter.Store {
	if conf.RateLimit.Storage != "redis" {
		return middleware.NewMemoryStore()
	}
	addr := conf.RateLimit.RedisURL
	if strings.TrimSpace(addr) == "" {
		addr = conf.Cache.RedisURL
	}
	store, err := middleware.NewRedisStore(addr)
	if err != nil {
		conf.Logger().WithError(err).Warn("Failed to create Redis store for rate limiting, falling back to memory")
		return middleware.NewMemoryStore()
	}
	return store
}
