package order

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option configures the order services.
type Option func(*options)

type options struct {
	lg       *zap.Logger
	meter    metric.MeterProvider
	tracer   trace.TracerProvider
	now      func() time.Time
	shipping ShippingCalculator
}

func defaultOptions() options {
	return options{
		lg:     zap.NewNop(),
		meter:  otel.GetMeterProvider(),
		tracer: otel.GetTracerProvider(),
		now:    time.Now,
	}
}

// WithLogger sets the logger.
func WithLogger(lg *zap.Logger) Option {
	return func(o *options) {
		if lg != nil {
			o.lg = lg
		}
	}
}

// WithMeterProvider sets the meter provider for order counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meter = mp
		}
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracer = tp
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithShipping sets the shipping calculator. The default is a flat
// DefaultShippingRate.
func WithShipping(c ShippingCalculator) Option {
	return func(o *options) {
		if c != nil {
			o.shipping = c
		}
	}
}
