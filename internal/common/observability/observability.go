package observability

import (
	"context"
	"log"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter
	tracer         trace.Tracer
	pollCounter    otelmetric.Int64Counter
	pollDuration   otelmetric.Float64Histogram
}

// New wires an OpenTelemetry meter to the Prometheus registerer. A nil
// registerer means the default Prometheus registry.
func New(serviceName string, reg promclient.Registerer) *Observability {
	opts := []prometheus.Option{}
	if reg != nil {
		opts = append(opts, prometheus.WithRegisterer(reg))
	}

	o := &Observability{tracer: otel.Tracer(serviceName)}

	exporter, err := prometheus.New(opts...)
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return o
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	pollCounter, _ := meter.Int64Counter(
		"poll.cycles",
		otelmetric.WithDescription("Number of statistics poll cycles"),
	)

	pollDuration, _ := meter.Float64Histogram(
		"poll.duration",
		otelmetric.WithDescription("Poll cycle duration"),
		otelmetric.WithUnit("ms"),
	)

	o.meterProvider = provider
	o.meter = meter
	o.pollCounter = pollCounter
	o.pollDuration = pollDuration
	return o
}

// WithTracerProvider attaches a tracer provider so spans are exported and flushed on Shutdown.
func (o *Observability) WithTracerProvider(tp *sdktrace.TracerProvider, serviceName string) *Observability {
	if tp != nil {
		o.tracerProvider = tp
		o.tracer = tp.Tracer(serviceName)
	}
	return o
}

// StartSpan starts an internal span named name.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := o.tracer
	if tracer == nil {
		tracer = otel.Tracer("scheduler-stats")
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordPoll(ctx context.Context, status string) {
	if o.pollCounter != nil {
		o.pollCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordPollDuration(ctx context.Context, duration time.Duration, status string) {
	if o.pollDuration != nil {
		o.pollDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if o.meterProvider != nil {
		if err := o.meterProvider.Shutdown(ctx); err != nil {
			log.Printf("meter provider shutdown: %v", err)
		}
	}
	if o.tracerProvider != nil {
		if err := o.tracerProvider.Shutdown(ctx); err != nil {
			log.Printf("tracer provider shutdown: %v", err)
		}
	}
}
