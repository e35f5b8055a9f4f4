package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/inventory"
)

// AdminFilter narrows the admin order listing.
type AdminFilter struct {
	Status Status
	// Search matches the order number or the shipping phone.
	Search string
	Page   int
	Limit  int
}

// StatusStat aggregates orders sharing a status.
type StatusStat struct {
	Status      Status
	Count       int
	TotalAmount decimal.Decimal
}

// AdminList is a page of orders with per-status aggregates.
type AdminList struct {
	List
	Stats []StatusStat
}

// DashboardWindow holds the period boundaries for dashboard counts.
type DashboardWindow struct {
	Today      time.Time
	WeekStart  time.Time
	MonthStart time.Time
	// RecentLimit caps the recent orders list.
	RecentLimit int
}

// NewDashboardWindow derives period starts from now in its location. Weeks
// start on Sunday.
func NewDashboardWindow(now time.Time) DashboardWindow {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return DashboardWindow{
		Today:       today,
		WeekStart:   today.AddDate(0, 0, -int(today.Weekday())),
		MonthStart:  time.Date(y, m, 1, 0, 0, 0, 0, now.Location()),
		RecentLimit: 10,
	}
}

// Dashboard summarizes order activity.
type Dashboard struct {
	TotalOrders       int
	TodayOrders       int
	WeekOrders        int
	MonthOrders       int
	TotalRevenue      decimal.Decimal
	AverageOrderValue decimal.Decimal
	PaidRevenue       decimal.Decimal
	StatusStats       []StatusStat
	Recent            []Order
}

// AdminService implements admin order management.
type AdminService struct {
	tx         Transactor
	orders     Finder
	reconciler *inventory.Reconciler
	notifier   Notifier
	opts       options
	inst       *instruments
}

// NewAdminService creates an AdminService.
func NewAdminService(
	tx Transactor,
	orders Finder,
	reconciler *inventory.Reconciler,
	notifier Notifier,
	opts ...Option,
) (*AdminService, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	inst, err := newInstruments(o)
	if err != nil {
		return nil, err
	}
	return &AdminService{
		tx:         tx,
		orders:     orders,
		reconciler: reconciler,
		notifier:   notifier,
		opts:       o,
		inst:       inst,
	}, nil
}

// Update applies an admin update under a row lock. Every enum and the status
// transition are checked before anything is written. Customers are notified after commit when the
// order status or shipping status changed or a new tracking id was set.
func (s *AdminService) Update(ctx context.Context, orderID string, req UpdateRequest) (_ *Order, rerr error) {
	ctx, span := s.inst.start(ctx, "order.AdminUpdate", attribute.String("order.id", orderID))
	defer func() { endSpan(span, rerr) }()

	req.normalize()
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := s.opts.now()
	var (
		o     *Order
		delta StatusDelta
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		o, err = uow.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if req.Status != "" && !o.Status.CanBecome(req.Status) {
			return transitionError(o.Status, req.Status)
		}
		var restock bool
		delta, restock = o.applyUpdate(req, now)
		if err := uow.Orders().Update(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		if restock {
			return s.reconciler.ApplyOrderCancellation(ctx, uow.Stock(), o.Lines())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if delta.HasStatusChanged && delta.NewStatus == StatusCancelled {
		s.inst.cancelled.Add(ctx, 1, metric.WithAttributes(attribute.String("actor", "admin")))
	}
	s.opts.lg.Info("Order updated",
		zap.String("order_id", o.ID),
		zap.String("status", string(o.Status)),
		zap.String("shipping_status", string(o.Shipping.Status)),
		zap.Bool("status_changed", delta.HasStatusChanged),
		zap.Bool("shipping_changed", delta.HasShippingChanged),
	)
	if delta.Notify() {
		if err := s.notifier.OrderStatusUpdated(ctx, o.Snapshot(), delta); err != nil {
			s.opts.lg.Warn("Status update notification failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	return o, nil
}

// Get returns any order.
func (s *AdminService) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// List returns a filtered page of orders with per-status aggregates.
func (s *AdminService) List(ctx context.Context, f AdminFilter) (*AdminList, error) {
	f.Status = Status(strings.ToLower(strings.TrimSpace(string(f.Status))))
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("Invalid order status")
	}
	f.Search = strings.TrimSpace(f.Search)
	f.Page, f.Limit = clampPage(f.Page, f.Limit)

	orders, total, err := s.orders.ListAdmin(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	stats, err := s.orders.StatusStats(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "status stats")
	}
	return &AdminList{
		List:  List{Orders: orders, Total: total, Page: f.Page, Limit: f.Limit},
		Stats: stats,
	}, nil
}

// Dashboard returns order activity for the current day, week and month.
func (s *AdminService) Dashboard(ctx context.Context) (*Dashboard, error) {
	d, err := s.orders.Dashboard(ctx, NewDashboardWindow(s.opts.now()))
	if err != nil {
		return nil, errors.Wrap(err, "dashboard")
	}
	if d.TotalOrders > 0 && d.AverageOrderValue.IsZero() {
		d.AverageOrderValue = d.TotalRevenue.Div(decimal.NewFromInt(int64(d.TotalOrders))).Round(2)
	}
	return d, nil
}
