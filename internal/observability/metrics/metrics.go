package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stafflane/stafflane/internal/config"
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
}

// Metrics exposes application-level instruments.
type Metrics struct {
	paymentIntents  metric.Int64Counter
	paymentConfirms metric.Int64Counter
	creditMoves     metric.Int64Counter
	webhookEvents   metric.Int64Counter
	payoutBatches   metric.Int64Counter
}

func NewConfig(appCfg config.Config) Config {
	return Config{
		Enabled:          appCfg.Metrics.Enabled,
		ExporterEndpoint: appCfg.Metrics.ExporterEndpoint,
		ExporterProtocol: appCfg.Metrics.ExporterProtocol,
		ServiceName:      appCfg.AppName,
	}
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
		name = "stafflane"
	}
	meter := provider.Meter(name)

	paymentIntents, err := meter.Int64Counter("stafflane_payment_intents_total")
	if err != nil {
		return nil, err
	}
	paymentConfirms, err := meter.Int64Counter("stafflane_payment_confirms_total")
	if err != nil {
		return nil, err
	}
	creditMoves, err := meter.Int64Counter("stafflane_credit_moves_total")
	if err != nil {
		return nil, err
	}
	webhookEvents, err := meter.Int64Counter("stafflane_webhook_events_total")
	if err != nil {
		return nil, err
	}
	payoutBatches, err := meter.Int64Counter("stafflane_payout_batches_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		paymentIntents:  paymentIntents,
		paymentConfirms: paymentConfirms,
		creditMoves:     creditMoves,
		webhookEvents:   webhookEvents,
		payoutBatches:   payoutBatches,
	}, nil
}

// RecordPaymentIntent increments payment intent creation counts.
func (m *Metrics) RecordPaymentIntent(ctx context.Context, currency string) {
	if m == nil {
		return
	}
	m.paymentIntents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("currency", strings.TrimSpace(currency)),
	))
}

// RecordPaymentConfirm increments confirmation counts by outcome.
func (m *Metrics) RecordPaymentConfirm(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.paymentConfirms.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", strings.TrimSpace(outcome)),
	))
}

// RecordCreditMove increments credit ledger mutation counts (grant, deduct, clawback).
func (m *Metrics) RecordCreditMove(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.creditMoves.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
	))
}

// RecordWebhookEvent increments inbound webhook counts.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
	))
}

// RecordPayoutBatch increments scheduled payout batch counts.
func (m *Metrics) RecordPayoutBatch(ctx context.Context, currency string) {
	if m == nil {
		return
	}
	m.payoutBatches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("currency", strings.TrimSpace(currency)),
	))
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

var Module = fx.Module("observability.metrics",
	fx.Provide(NewConfig),
	fx.Provide(NewProvider),
	fx.Provide(New),
)
