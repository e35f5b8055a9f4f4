package order

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/product"
)

const tracerName = "github.com/xenking/storefront/internal/domain/order"

// Placeholders used when the shipping address arrives as a single line.
const (
	placeholderText    = "Not specified"
	placeholderPincode = "000000"
	defaultCountry     = "India"
)

// Customer identifies who places the order.
type Customer struct {
	ID    string
	Email string
	Name  string
}

// AddressInput is a shipping address given either structured or as a single
// line in Raw.
type AddressInput struct {
	Address
	Raw string
}

// CreateRequest places an order from the customer's cart.
type CreateRequest struct {
	Customer      Customer
	Address       AddressInput
	PaymentMethod PaymentMethod
	Notes         string
}

// CreateResult is a placed order.
type CreateResult struct {
	Order *Order
	// AddressFallback is set when placeholder values were synthesized for a
	// single-line address.
	AddressFallback bool
}

// List is a page of orders.
type List struct {
	Orders []Order
	Total  int
	Page   int
	Limit  int
}

// instruments holds the counters shared by the order services.
type instruments struct {
	tracer         trace.Tracer
	created        metric.Int64Counter
	cancelled      metric.Int64Counter
	stockConflicts metric.Int64Counter
}

func newInstruments(o options) (*instruments, error) {
	meter := o.meter.Meter(tracerName)
	created, err := meter.Int64Counter("storefront.orders.created",
		metric.WithDescription("Orders placed"))
	if err != nil {
		return nil, errors.Wrap(err, "orders.created counter")
	}
	cancelled, err := meter.Int64Counter("storefront.orders.cancelled",
		metric.WithDescription("Orders cancelled by customers or admins"))
	if err != nil {
		return nil, errors.Wrap(err, "orders.cancelled counter")
	}
	conflicts, err := meter.Int64Counter("storefront.stock.conflicts",
		metric.WithDescription("Checkouts rejected by the stock guard"))
	if err != nil {
		return nil, errors.Wrap(err, "stock.conflicts counter")
	}
	return &instruments{
		tracer:         o.tracer.Tracer(tracerName),
		created:        created,
		cancelled:      cancelled,
		stockConflicts: conflicts,
	}, nil
}

func (i *instruments) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return i.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil && apperr.KindOf(err) == apperr.KindInternal {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Service implements the customer side of the order lifecycle.
type Service struct {
	tx         Transactor
	orders     Finder
	reconciler *inventory.Reconciler
	carts      CartInvalidator
	notifier   Notifier
	opts       options
	inst       *instruments
}

// NewService creates an order Service. carts may be nil.
func NewService(
	tx Transactor,
	orders Finder,
	reconciler *inventory.Reconciler,
	carts CartInvalidator,
	notifier Notifier,
	opts ...Option,
) (*Service, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.shipping == nil {
		o.shipping = FlatRate{Rate: DefaultShippingRate}
	}
	inst, err := newInstruments(o)
	if err != nil {
		return nil, err
	}
	return &Service{
		tx:         tx,
		orders:     orders,
		reconciler: reconciler,
		carts:      carts,
		notifier:   notifier,
		opts:       o,
		inst:       inst,
	}, nil
}

// normalizeAddress trims the input and synthesizes placeholders for the
// single-line form.
func normalizeAddress(in AddressInput) (Address, bool) {
	a := in.Address
	fallback := false
	if strings.TrimSpace(a.Street) == "" && strings.TrimSpace(in.Raw) != "" {
		a = Address{
			Street:  in.Raw,
			City:    placeholderText,
			State:   placeholderText,
			Pincode: placeholderPincode,
			Phone:   placeholderText,
		}
		fallback = true
	}
	a.Street = strings.TrimSpace(a.Street)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.Pincode = strings.TrimSpace(a.Pincode)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Landmark = strings.TrimSpace(a.Landmark)
	a.Type = strings.ToLower(strings.TrimSpace(a.Type))
	if a.Country = strings.TrimSpace(a.Country); a.Country == "" {
		a.Country = defaultCountry
	}
	if a.Type == "" {
		a.Type = "home"
	}
	return a, fallback
}

// recordingLookup remembers the products it resolved so the order can
// snapshot their titles without a second query.
type recordingLookup struct {
	cart.ProductLookup
	seen map[string]product.Product
}

func (l *recordingLookup) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	ps, err := l.ProductLookup.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range ps {
		l.seen[p.ID] = p
	}
	return ps, nil
}

// Create places an order from the customer's cart. Persisting the order,
// decrementing stock and emptying the cart happen in one transaction.
func (s *Service) Create(ctx context.Context, req CreateRequest) (_ *CreateResult, rerr error) {
	ctx, span := s.inst.start(ctx, "order.Create", attribute.String("user.id", req.Customer.ID))
	defer func() { endSpan(span, rerr) }()

	addr, fallback := normalizeAddress(req.Address)
	if addr.Street == "" {
		return nil, apperr.Validation("Shipping address is required")
	}
	method := PaymentMethod(strings.ToLower(strings.TrimSpace(string(req.PaymentMethod))))
	if !method.Valid() {
		return nil, apperr.Validation("Valid payment method is required")
	}

	now := s.opts.now()
	var o *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		c, err := uow.Carts().GetForUpdate(ctx, req.Customer.ID)
		if err != nil {
			return errors.Wrap(err, "get cart")
		}
		if c.IsEmpty() {
			return apperr.Validation("No items in cart to place order")
		}

		lookup := &recordingLookup{ProductLookup: uow.Products(), seen: make(map[string]product.Product)}
		violations, err := cart.Validate(ctx, lookup, c.Items)
		if err != nil {
			return errors.Wrap(err, "validate cart")
		}
		if len(violations) > 0 {
			return &cart.ViolationsError{
				Message:    "Cannot place order with current cart items",
				Violations: violations,
			}
		}

		shippingCost, err := s.opts.shipping.Cost(ctx, c.Items)
		if err != nil {
			return errors.Wrap(err, "shipping cost")
		}

		items := make([]Item, len(c.Items))
		for i, it := range c.Items {
			items[i] = Item{
				ProductID: it.ProductID,
				Title:     lookup.seen[it.ProductID].Title,
				Quantity:  it.Quantity,
				Price:     it.Price,
				Variants:  it.Variants,
			}
		}
		subtotal := c.Subtotal()
		total := subtotal.Add(shippingCost)

		paymentStatus := PaymentUnpaid
		if method == MethodCOD {
			paymentStatus = PaymentPending
		}

		o = &Order{
			ID:              uuid.New().String(),
			Number:          NewNumber(now),
			UserID:          req.Customer.ID,
			CustomerEmail:   req.Customer.Email,
			CustomerName:    req.Customer.Name,
			Items:           items,
			ShippingAddress: addr,
			BillingAddress:  addr,
			Payment: Payment{
				Method: method,
				Status: paymentStatus,
				Amount: total,
			},
			Shipping: Shipping{
				Status: ShippingProcessing,
				Cost:   shippingCost,
			},
			Status:    StatusProcessing,
			Subtotal:  subtotal,
			Total:     total,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if notes := strings.TrimSpace(req.Notes); notes != "" {
			o.AddNote(now, AuthorCustomer, notes)
		}

		if err := uow.Orders().Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if err := s.reconciler.ApplyOrderCreation(ctx, uow.Stock(), o.Lines()); err != nil {
			return err
		}
		if err := uow.Carts().Clear(ctx, req.Customer.ID); err != nil {
			return errors.Wrap(err, "clear cart")
		}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindStock {
			s.inst.stockConflicts.Add(ctx, 1)
		}
		return nil, err
	}

	if s.carts != nil {
		s.carts.Invalidate(ctx, req.Customer.ID)
	}
	s.inst.created.Add(ctx, 1, metric.WithAttributes(attribute.String("payment.method", string(method))))
	s.opts.lg.Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.String("user_id", o.UserID),
		zap.Stringer("total", o.Total),
	)
	s.notifyConfirmed(ctx, o)

	return &CreateResult{Order: o, AddressFallback: fallback}, nil
}

// Get returns an order owned by userID.
func (s *Service) Get(ctx context.Context, userID, orderID string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListForUser returns the user's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string, page, limit int) (*List, error) {
	page, limit = clampPage(page, limit)
	orders, total, err := s.orders.ListByUser(ctx, userID, page, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return &List{Orders: orders, Total: total, Page: page, Limit: limit}, nil
}

// Cancel cancels a pending or processing order and restores its stock. The
// order row is locked for the whole transition, so a concurrent or repeated
// cancel observes the cancelled status and is rejected.
func (s *Service) Cancel(ctx context.Context, userID, orderID, reason string) (_ *Order, rerr error) {
	ctx, span := s.inst.start(ctx, "order.Cancel", attribute.String("order.id", orderID))
	defer func() { endSpan(span, rerr) }()

	now := s.opts.now()
	var o *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		o, err = uow.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return ErrNotFound
		}
		if err := o.cancel(reason, now); err != nil {
			return err
		}
		if err := uow.Orders().Update(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		return s.reconciler.ApplyOrderCancellation(ctx, uow.Stock(), o.Lines())
	})
	if err != nil {
		return nil, err
	}

	s.inst.cancelled.Add(ctx, 1, metric.WithAttributes(attribute.String("actor", "customer")))
	s.opts.lg.Info("Order cancelled",
		zap.String("order_id", o.ID),
		zap.String("user_id", userID),
	)
	if err := s.notifier.OrderCancelled(ctx, o.Snapshot(), strings.TrimSpace(reason)); err != nil {
		s.opts.lg.Warn("Cancellation notification failed", zap.String("order_id", o.ID), zap.Error(err))
	}
	return o, nil
}

func (s *Service) notifyConfirmed(ctx context.Context, o *Order) {
	if err := s.notifier.OrderConfirmed(ctx, o.Snapshot()); err != nil {
		s.opts.lg.Warn("Confirmation notification failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

// Default and maximum page sizes for order listings.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	return page, min(limit, MaxLimit)
}
