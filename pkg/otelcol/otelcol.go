package otelcol

import (
	"context"

	"flyerportal/pkg/config"
	"flyerportal/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("otelcol",
	fx.Provide(
		ProvideTracerProvider,
		ProvideMeterProvider,
	),
)

func newResource(cfg *config.Config) *resource.Resource {
	r, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		return resource.Default()
	}
	return r
}

func ProvideTrace(exporter sdktrace.SpanExporter, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	opts = append(opts, sdktrace.WithBatcher(exporter))
	return sdktrace.NewTracerProvider(opts...)
}

// ProvideTracerProvider installs an OTLP tracer provider as the global one when
// OTEL.ADDR is set; otherwise the global no-op provider is returned.
func ProvideTracerProvider(lc fx.Lifecycle, cfg *config.Config) (trace.TracerProvider, error) {
	if cfg.Otel.Addr == "" {
		return otel.GetTracerProvider(), nil
	}

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	if cfg.Otel.Protocol == "http" {
		exporter, err = exporters.ProvideHttp(cfg)
	} else {
		exporter, err = exporters.ProvideGrpc(cfg)
	}
	if err != nil {
		zap.L().Error("failed to create otlp exporter", zap.Error(err))
		return nil, err
	}

	tp := ProvideTrace(exporter, sdktrace.WithResource(newResource(cfg)))
	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	return tp, nil
}

func ProvideMeterProvider(cfg *config.Config) metric.MeterProvider {
	if cfg.Otel.Addr == "" {
		return otel.GetMeterProvider()
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(newResource(cfg)))
	otel.SetMeterProvider(mp)
	return mp
}
