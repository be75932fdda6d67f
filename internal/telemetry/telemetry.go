// =============================================================================
// voxflow OpenTelemetry SDK Initialization
// =============================================================================
// Traces carry one span per turn and per stage. Metrics mirror the turn and
// stage outcomes recorded by the Prometheus collector so both backends agree.
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/BaSui01/voxflow/config"
)

// Providers holds the OTel SDK TracerProvider and MeterProvider.
// When telemetry is disabled, both fields are nil and Shutdown is a no-op.
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init initializes the OTel SDK. When cfg.Enabled is false, it returns
// a noop Providers without connecting to any external service.
func Init(cfg config.TelemetryConfig, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}

	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(buildVersion()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.Float64("sample_rate", cfg.SampleRate),
	)

	return &Providers{tp: tp, mp: mp}, nil
}

// Enabled 是否连接了真实的导出器
func (p *Providers) Enabled() bool {
	return p != nil && p.tp != nil
}

// Shutdown flushes pending spans/metrics and closes exporters.
// Safe to call on noop Providers (nil tp/mp).
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// 📈 TurnInstruments
// =============================================================================

// TurnInstruments 以 OTel 指标记录轮次与阶段结果，
// 与 pipeline.TurnObserver 方法签名一致。
type TurnInstruments struct {
	turns         metric.Int64Counter
	turnDuration  metric.Float64Histogram
	sentences     metric.Int64Histogram
	stageItems    metric.Int64Counter
	stageDuration metric.Float64Histogram
}

// NewTurnInstruments 在给定 MeterProvider 上创建指标，mp 为 nil 时使用全局 provider
func NewTurnInstruments(mp metric.MeterProvider) (*TurnInstruments, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("github.com/BaSui01/voxflow/pipeline")

	var (
		ti  TurnInstruments
		err error
	)
	if ti.turns, err = meter.Int64Counter("voxflow.turns",
		metric.WithDescription("Completed conversation turns")); err != nil {
		return nil, err
	}
	if ti.turnDuration, err = meter.Float64Histogram("voxflow.turn.duration",
		metric.WithDescription("Turn duration"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if ti.sentences, err = meter.Int64Histogram("voxflow.turn.sentences",
		metric.WithDescription("Sentences emitted per turn")); err != nil {
		return nil, err
	}
	if ti.stageItems, err = meter.Int64Counter("voxflow.stage.items",
		metric.WithDescription("Items processed per stage")); err != nil {
		return nil, err
	}
	if ti.stageDuration, err = meter.Float64Histogram("voxflow.stage.duration",
		metric.WithDescription("Per-item stage processing time"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return &ti, nil
}

// ObserveStageItem 记录一个阶段处理的一项
func (ti *TurnInstruments) ObserveStageItem(stage, status string, duration time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("stage", stage), attribute.String("status", status))
	ti.stageItems.Add(ctx, 1, attrs)
	ti.stageDuration.Record(ctx, duration.Seconds(), attrs)
}

// ObserveTurn 记录一轮结束
func (ti *TurnInstruments) ObserveTurn(status string, sentences int, duration time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("status", status))
	ti.turns.Add(ctx, 1, attrs)
	ti.turnDuration.Record(ctx, duration.Seconds(), attrs)
	ti.sentences.Record(ctx, int64(sentences), attrs)
}

// buildVersion extracts the module version from Go build info.
// Falls back to "dev" if unavailable.
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
