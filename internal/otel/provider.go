// Package otel owns the OpenTelemetry log pipeline for the engine. Logs
// always land in the engine log file when telemetry is on; an OTLP
// endpoint is an optional second destination for fleet setups.
package otel

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config selects the telemetry destinations.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	BatchTimeout   time.Duration
	LogWriter      io.Writer // file destination, required when enabled
	Endpoint       string    // OTLP http endpoint, optional
	Insecure       bool      // plain http for the OTLP endpoint
}

// Provider holds the configured log pipeline. The zero-value pipeline
// of a disabled provider is a no-op everywhere.
type Provider struct {
	logProvider *sdklog.LoggerProvider
	config      Config
}

// New assembles the log pipeline. A disabled config yields a provider
// whose methods all succeed without doing anything.
func New(cfg Config) (*Provider, error) {
	p := &Provider{
		config: cfg,
	}

	if !cfg.Enabled {
		return p, nil
	}

	ctx := context.Background()

	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(cfg.ServiceVersion)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var processors []sdklog.Processor

	if cfg.LogWriter != nil {
		proc, err := fileProcessor(cfg)
		if err != nil {
			return nil, err
		}
		processors = append(processors, proc)
	}

	if cfg.Endpoint != "" {
		proc, err := otlpProcessor(ctx, cfg)
		if err != nil {
			return nil, err
		}
		processors = append(processors, proc)
	}

	if len(processors) == 0 {
		return nil, fmt.Errorf("OTel enabled but no log writer or endpoint configured")
	}

	opts := []sdklog.LoggerProviderOption{
		sdklog.WithResource(res),
	}
	for _, proc := range processors {
		opts = append(opts, sdklog.WithProcessor(proc))
	}
	p.logProvider = sdklog.NewLoggerProvider(opts...)

	return p, nil
}

// fileProcessor batches records into the engine log file.
func fileProcessor(cfg Config) (sdklog.Processor, error) {
	exporter, err := stdoutlog.New(
		stdoutlog.WithWriter(cfg.LogWriter),
		stdoutlog.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create file log exporter: %w", err)
	}
	return sdklog.NewBatchProcessor(exporter,
		sdklog.WithExportTimeout(cfg.BatchTimeout),
	), nil
}

// otlpProcessor batches records toward the collector endpoint.
func otlpProcessor(ctx context.Context, cfg Config) (sdklog.Processor, error) {
	opts := []otlploghttp.Option{
		otlploghttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlploghttp.WithInsecure())
	}

	exporter, err := otlploghttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}
	return sdklog.NewBatchProcessor(exporter,
		sdklog.WithExportTimeout(cfg.BatchTimeout),
	), nil
}

// LoggerProvider exposes the provider for the otelslog bridge, nil when
// telemetry is off.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logProvider
}

// Meter returns a no-op meter. Metric instruments go through the global
// meter provider instead, so command dispatch works without a Provider.
func (p *Provider) Meter(name string) metric.Meter {
	return noop.Meter{}
}

// Flush pushes out buffered records. Called before the process exits so
// the tail of a run is not lost.
func (p *Provider) Flush(ctx context.Context) error {
	if !p.config.Enabled {
		return nil
	}

	if p.logProvider != nil {
		if err := p.logProvider.ForceFlush(ctx); err != nil {
			return fmt.Errorf("log flush failed: %w", err)
		}
	}

	return nil
}

// Shutdown stops the pipeline for good.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.config.Enabled {
		return nil
	}

	if p.logProvider != nil {
		if err := p.logProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("log shutdown failed: %w", err)
		}
	}

	return nil
}

// Enabled reports whether telemetry was configured on.
func (p *Provider) Enabled() bool {
	return p.config.Enabled
}
