package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	signups           metric.Int64Counter
	logins            metric.Int64Counter
	reportsSubmitted  metric.Int64Counter
	statusChanges     metric.Int64Counter
	authzDenied       metric.Int64Counter
	twoFactorIssued   metric.Int64Counter
	twoFactorVerified metric.Int64Counter
	rateLimitAllowed  metric.Int64Counter
	rateLimitDenied   metric.Int64Counter
	jobRuns           metric.Int64Counter
	rowsPurged        metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "floodwatch"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
	}{
		{&m.signups, "floodwatch_signups_total"},
		{&m.logins, "floodwatch_logins_total"},
		{&m.reportsSubmitted, "floodwatch_reports_submitted_total"},
		{&m.statusChanges, "floodwatch_report_status_changes_total"},
		{&m.authzDenied, "floodwatch_authorization_denied_total"},
		{&m.twoFactorIssued, "floodwatch_two_factor_issued_total"},
		{&m.twoFactorVerified, "floodwatch_two_factor_verified_total"},
		{&m.rateLimitAllowed, "floodwatch_rate_limit_allowed_total"},
		{&m.rateLimitDenied, "floodwatch_rate_limit_denied_total"},
		{&m.jobRuns, "floodwatch_scheduler_job_runs_total"},
		{&m.rowsPurged, "floodwatch_scheduler_rows_purged_total"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

// NewNoop returns instruments backed by a no-op provider, for tests.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordSignup(ctx context.Context) {
	if m == nil {
		return
	}
	m.signups.Add(ctx, 1)
}

// RecordLogin counts login attempts by outcome (success, invalid, challenge).
func (m *Metrics) RecordLogin(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.add(ctx, &m.logins, attribute.String("outcome", outcome))
}

func (m *Metrics) RecordReportSubmitted(ctx context.Context, severity string) {
	if m == nil {
		return
	}
	m.add(ctx, &m.reportsSubmitted, attribute.String("severity", severity))
}

func (m *Metrics) RecordStatusChange(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.add(ctx, &m.statusChanges, attribute.String("status", status))
}

func (m *Metrics) RecordAuthorizationDenied(ctx context.Context, action string) {
	if m == nil {
		return
	}
	m.add(ctx, &m.authzDenied, attribute.String("action", action))
}

func (m *Metrics) RecordTwoFactorIssued(ctx context.Context) {
	if m == nil {
		return
	}
	m.twoFactorIssued.Add(ctx, 1)
}

func (m *Metrics) RecordTwoFactorVerified(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.add(ctx, &m.twoFactorVerified, attribute.String("outcome", outcome))
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.add(ctx, &m.rateLimitAllowed, attribute.String("endpoint", endpoint))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.add(ctx, &m.rateLimitDenied,
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	)
}

// RecordJobRun counts scheduler job runs by outcome (ok, error, skipped).
func (m *Metrics) RecordJobRun(ctx context.Context, job, outcome string) {
	if m == nil {
		return
	}
	m.add(ctx, &m.jobRuns, attribute.String("job", job), attribute.String("outcome", outcome))
}

func (m *Metrics) RecordRowsPurged(ctx context.Context, job string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsPurged.Add(ctx, n, metric.WithAttributes(FilterAttributes(attribute.String("job", job))...))
}

func (m *Metrics) add(ctx context.Context, counter *metric.Int64Counter, attrs ...attribute.KeyValue) {
	if *counter == nil {
		return
	}
	(*counter).Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"outcome":     {},
	"severity":    {},
	"status":      {},
	"action":      {},
	"endpoint":    {},
	"reason":      {},
	"status_code": {},
	"job":         {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
