package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	coreconfig "github.com/tidemill/dedupe/pkg/dedupe/core/config"
	coremetrics "github.com/tidemill/dedupe/pkg/dedupe/core/metrics"
	"github.com/tidemill/dedupe/pkg/dedupe/support/util/logger"
)

// NewRecorderProvider builds the Prometheus recorder, or a no-op recorder
// when metrics are disabled.
func NewRecorderProvider(cfg *coreconfig.Config) coremetrics.Recorder {
	if !cfg.Dedupe.Metrics.Enabled {
		return coremetrics.NewNoOpRecorder()
	}
	return NewPrometheusRecorder(cfg.Dedupe.Metrics.Namespace)
}

// NewTracerProvider builds the OpenTelemetry tracer from the tracing
// configuration and registers its shutdown with the application lifecycle.
func NewTracerProvider(lc fx.Lifecycle, cfg *coreconfig.Config) (coremetrics.Tracer, error) {
	tracer, err := NewOpenTelemetryTracer(context.Background(), cfg.Dedupe.Tracing)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tracer.Shutdown(ctx)
		},
	})
	return tracer, nil
}

// StartMetricsEndpoint serves the /metrics HTTP endpoint when a listen
// address is configured and the Prometheus recorder is active.
func StartMetricsEndpoint(lc fx.Lifecycle, cfg *coreconfig.Config, recorder coremetrics.Recorder) {
	promRecorder, ok := recorder.(*PrometheusRecorder)
	if !ok || cfg.Dedupe.Metrics.ListenAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promRecorder.GetRegistry(), promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              cfg.Dedupe.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Infof("Metrics: serving /metrics on %s", server.Addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Errorf("Metrics: endpoint terminated: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}

// Module exports the metrics and tracing implementations for dependency injection.
var Module = fx.Options(
	fx.Provide(NewRecorderProvider),
	fx.Provide(NewTracerProvider),
	fx.Invoke(StartMetricsEndpoint),
)
