package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jonwraymond/sampleops/auth"
	"github.com/jonwraymond/sampleops/observe"
	"github.com/jonwraymond/sampleops/server"
)

func newServeCmd(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the generation HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(ctx, *configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			cfg.Observe.Metrics.Registerer = reg

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			if cfg.Cache.Enabled {
				go a.cache.Run(ctx)
			}

			var authn auth.Authenticator
			if cfg.Server.JWT.Enabled() {
				authn = auth.NewJWTAuthenticator(cfg.JWTConfig(),
					auth.NewStaticKeyProvider([]byte(cfg.Server.JWT.Secret)))
			} else {
				a.logger.Warn(ctx, "jwt secret not configured, /v1 routes are unauthenticated")
			}

			srv, err := server.New(server.Config{
				Addr:            cfg.Server.Listen,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
				Generator:       a.generator,
				Cache:           a.cache,
				Health:          a.health(),
				Authenticator:   authn,
				AdminRole:       cfg.Server.JWT.AdminRole,
				Temperature:     cfg.Sampler.Temperature,
				Metrics:         promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
				Logger:          a.logger,
			})
			if err != nil {
				return err
			}

			a.logger.Info(ctx, "starting sampleops",
				observe.Field{Key: "version", Value: version},
				observe.Field{Key: "config", Value: *configPath},
				observe.Field{Key: "model", Value: cfg.Sampler.Model},
				observe.Field{Key: "cache_enabled", Value: cfg.Cache.Enabled},
			)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides server.listen)")
	return cmd
}
