package observability

import (
	"context"
	"errors"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deliberate/internal/config"
)

// ShutdownFunc flushes and stops a telemetry pipeline.
type ShutdownFunc func(ctx context.Context) error

// InitializeMetrics installs a global meter provider exporting to w on the
// configured interval. When metrics are disabled it installs nothing and
// returns a no-op shutdown.
func InitializeMetrics(cfg config.MetricsConfig, w io.Writer, logger *zap.Logger) (*sdkmetric.MeterProvider, ShutdownFunc, error) {
	if !cfg.Enabled {
		return nil, func(context.Context) error { return nil }, nil
	}
	if w == nil {
		return nil, nil, errors.New("metrics writer cannot be nil")
	}

	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Interval))),
	)
	otel.SetMeterProvider(mp)
	logger.Info("Metrics exporter started.", zap.Duration("interval", cfg.Interval))
	return mp, mp.Shutdown, nil
}
