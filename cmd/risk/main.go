package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/riskcore/internal/config"
	"github.com/abdoElHodaky/riskcore/internal/risk"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := config.InitLogger(cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	app := fx.New(
		fx.Supply(cfg),
		fx.Supply(logger),
		fx.Provide(
			func() *viper.Viper { return viper.New() },
			func() prometheus.Registerer { return prometheus.DefaultRegisterer },
			func(c *config.Config, log *zap.Logger) risk.AccountService {
				return risk.NewHTTPAccountService(c.Collaborators.AccountServiceURL, log)
			},
			func(c *config.Config, log *zap.Logger) risk.PositionService {
				return risk.NewHTTPPositionService(c.Collaborators.PositionServiceURL, log)
			},
			func(c *config.Config, log *zap.Logger) risk.MarketDataService {
				return risk.NewHTTPMarketDataService(c.Collaborators.MarketDataServiceURL, log)
			},
			func(c *config.Config, log *zap.Logger) risk.VolatilityService {
				return risk.NewHTTPVolatilityService(c.Collaborators.VolatilityServiceURL, log)
			},
			fx.Annotate(
				func(c *config.Config) string { return c.Broker.Type },
				fx.ResultTags(`name:"risk_broker_type"`),
			),
			fx.Annotate(
				func(c *config.Config) int { return c.Risk.MonitorPoolSize },
				fx.ResultTags(`name:"risk_monitor_pool_size"`),
			),
		),
		risk.Module,
		fx.Invoke(startMetricsServer),
	)

	app.Run()
}

// startMetricsServer exposes the Prometheus registry over HTTP on the
// configured port, alongside whatever the fx application lifecycle already
// manages for the Risk Control Core itself.
func startMetricsServer(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
		Handler: mux,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}
