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
	transactions      metric.Int64Counter
	eventsFiltered    metric.Int64Counter
	notifications     metric.Int64Counter
	notificationFails metric.Int64Counter
}

// Transaction outcomes recorded against the transactions counter.
const (
	TxnProcessed    = "processed"
	TxnDeduplicated = "deduplicated"
	TxnJoined       = "joined"
	TxnFailed       = "failed"
)

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
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "matrixgw"
	}
	meter := provider.Meter(name)

	transactions, err := meter.Int64Counter("matrixgw_transactions_total")
	if err != nil {
		return nil, err
	}
	eventsFiltered, err := meter.Int64Counter("matrixgw_invite_events_total")
	if err != nil {
		return nil, err
	}
	notifications, err := meter.Int64Counter("matrixgw_notifications_sent_total")
	if err != nil {
		return nil, err
	}
	notificationFails, err := meter.Int64Counter("matrixgw_notification_failures_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		transactions:      transactions,
		eventsFiltered:    eventsFiltered,
		notifications:     notifications,
		notificationFails: notificationFails,
	}, nil
}

// RecordTransaction increments transaction counts by outcome.
func (m *Metrics) RecordTransaction(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.transactions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInviteEvent increments the count of events classified as invites.
func (m *Metrics) RecordInviteEvent(ctx context.Context) {
	if m == nil {
		return
	}
	m.eventsFiltered.Add(ctx, 1)
}

// RecordNotification increments notification dispatch counts by medium.
func (m *Metrics) RecordNotification(ctx context.Context, medium string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("medium", strings.TrimSpace(medium)))
	m.notifications.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordNotificationFailure increments notification failure counts by medium.
func (m *Metrics) RecordNotificationFailure(ctx context.Context, medium string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("medium", strings.TrimSpace(medium)))
	m.notificationFails.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
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
	"outcome": {},
	"medium":  {},
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
