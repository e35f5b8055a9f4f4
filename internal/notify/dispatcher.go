package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
)

// ErrQueueFull is returned when an event is dropped because the dispatcher
// buffer is full.
var ErrQueueFull = errors.New("notification queue full")

var _ order.Notifier = (*Dispatcher)(nil)

// Dispatcher queues events and publishes them from a single worker so that
// callers never wait on the broker. Events that do not fit in the buffer are
// dropped and logged.
type Dispatcher struct {
	pub         Publisher
	queue       chan Event
	lg          *zap.Logger
	sendTimeout time.Duration
	now         func() time.Time
	dropped     metric.Int64Counter
	failed      metric.Int64Counter
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	QueueSize     int
	SendTimeout   time.Duration
	Logger        *zap.Logger
	MeterProvider metric.MeterProvider
}

func (o *DispatcherOptions) setDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = otel.GetMeterProvider()
	}
}

// NewDispatcher creates a Dispatcher. Run must be started for events to be
// delivered.
func NewDispatcher(pub Publisher, opts DispatcherOptions) (*Dispatcher, error) {
	opts.setDefaults()
	meter := opts.MeterProvider.Meter("github.com/xenking/storefront/internal/notify")
	dropped, err := meter.Int64Counter("storefront.notifications.dropped",
		metric.WithDescription("Notifications dropped because the queue was full"))
	if err != nil {
		return nil, errors.Wrap(err, "notifications.dropped counter")
	}
	failed, err := meter.Int64Counter("storefront.notifications.failed",
		metric.WithDescription("Notifications the publisher rejected"))
	if err != nil {
		return nil, errors.Wrap(err, "notifications.failed counter")
	}
	return &Dispatcher{
		pub:         pub,
		queue:       make(chan Event, opts.QueueSize),
		lg:          opts.Logger,
		sendTimeout: opts.SendTimeout,
		now:         time.Now,
		dropped:     dropped,
		failed:      failed,
	}, nil
}

// Run publishes queued events until ctx is done, then flushes whatever is
// still buffered with a per-event timeout.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case e := <-d.queue:
			d.send(ctx, e)
		case <-ctx.Done():
			d.flush(context.WithoutCancel(ctx))
			return nil
		}
	}
}

func (d *Dispatcher) flush(ctx context.Context) {
	for {
		select {
		case e := <-d.queue:
			d.send(ctx, e)
		default:
			return
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, e Event) {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	if err := d.pub.Publish(ctx, e); err != nil {
		d.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(e.Type))))
		d.lg.Warn("Publish notification",
			zap.String("type", string(e.Type)),
			zap.String("key", e.Key()),
			zap.Error(err),
		)
	}
}

// Enqueue adds e to the queue without blocking.
func (d *Dispatcher) Enqueue(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = d.now()
	}
	select {
	case d.queue <- e:
		return nil
	default:
		d.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(e.Type))))
		d.lg.Warn("Notification dropped",
			zap.String("type", string(e.Type)),
			zap.String("key", e.Key()),
		)
		return ErrQueueFull
	}
}

// OrderConfirmed implements order.Notifier.
func (d *Dispatcher) OrderConfirmed(ctx context.Context, o *order.Order) error {
	return d.Enqueue(ctx, orderEvent(EventOrderConfirmed, o, d.now()))
}

// OrderCancelled implements order.Notifier.
func (d *Dispatcher) OrderCancelled(ctx context.Context, o *order.Order, reason string) error {
	e := orderEvent(EventOrderCancelled, o, d.now())
	e.Reason = reason
	return d.Enqueue(ctx, e)
}

// OrderStatusUpdated implements order.Notifier.
func (d *Dispatcher) OrderStatusUpdated(ctx context.Context, o *order.Order, delta order.StatusDelta) error {
	e := orderEvent(EventOrderStatusUpdated, o, d.now())
	e.PreviousStatus = string(delta.PreviousStatus)
	e.PreviousShippingStatus = string(delta.PreviousShippingStatus)
	e.Reason = delta.AdminNotes
	return d.Enqueue(ctx, e)
}

// RegistrationCode queues the sign-up verification code.
func (d *Dispatcher) RegistrationCode(ctx context.Context, email, name, code string) error {
	return d.Enqueue(ctx, Event{
		Type:  EventRegistrationCode,
		At:    d.now(),
		Email: email,
		Name:  name,
		Code:  code,
	})
}
