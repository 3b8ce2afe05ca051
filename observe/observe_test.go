package observe

import (
	"context"
	"errors"
	"testing"

	promclient "github.com/prometheus/client_golang/prometheus"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{
			name: "valid",
			cfg: Config{
				ServiceName: "sampleops",
				Version:     "1.0.0",
				Tracing:     TracingConfig{Enabled: true, Exporter: "stdout", SamplePct: 1.0},
				Metrics:     MetricsConfig{Enabled: true, Exporter: "prometheus"},
				Logging:     LoggingConfig{Enabled: true, Level: "info"},
			},
		},
		{
			name: "missing service name",
			cfg:  Config{},
			want: ErrMissingServiceName,
		},
		{
			name: "unknown tracing exporter",
			cfg:  Config{ServiceName: "s", Tracing: TracingConfig{Enabled: true, Exporter: "zipkin"}},
			want: ErrInvalidTracingExporter,
		},
		{
			name: "sample pct too high",
			cfg:  Config{ServiceName: "s", Tracing: TracingConfig{Enabled: true, Exporter: "stdout", SamplePct: 1.5}},
			want: ErrInvalidSamplePct,
		},
		{
			name: "unknown metrics exporter",
			cfg:  Config{ServiceName: "s", Metrics: MetricsConfig{Enabled: true, Exporter: "graphite"}},
			want: ErrInvalidMetricsExporter,
		},
		{
			name: "unknown log level",
			cfg:  Config{ServiceName: "s", Logging: LoggingConfig{Enabled: true, Level: "trace"}},
			want: ErrInvalidLogLevel,
		},
		{
			name: "disabled sections skip validation",
			cfg: Config{
				ServiceName: "s",
				Tracing:     TracingConfig{Exporter: "zipkin"},
				Logging:     LoggingConfig{Level: "trace"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewObserver_InvalidConfig(t *testing.T) {
	_, err := NewObserver(context.Background(), Config{})
	if !errors.Is(err, ErrMissingServiceName) {
		t.Fatalf("expected ErrMissingServiceName, got %v", err)
	}
}

func TestNewObserver_PrometheusRegistry(t *testing.T) {
	reg := promclient.NewRegistry()
	obs, err := NewObserver(context.Background(), Config{
		ServiceName: "sampleops-test",
		Metrics:     MetricsConfig{Enabled: true, Exporter: "prometheus", Registerer: reg},
	})
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	defer obs.Shutdown(context.Background())

	m, err := NewMetrics(obs.Meter())
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	m.RecordCacheLookup(context.Background(), "dockerfile", true)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected metric families in the custom registry")
	}
}

func TestNewObserver_LoggingEnabled(t *testing.T) {
	obs, err := NewObserver(context.Background(), Config{
		ServiceName: "sampleops-test",
		Logging:     LoggingConfig{Enabled: true, Level: "debug"},
	})
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	if _, ok := obs.Logger().(*zapLogger); !ok {
		t.Errorf("expected zap logger, got %T", obs.Logger())
	}
}
