package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/order"
)

const orderColumns = `id, number, user_id, customer_email, customer_name,
	items, shipping_address, billing_address, status,
	payment_method, payment_status, payment_amount, transaction_id, paid_at,
	tracking_id, awb_number, courier_name, shipping_status, shipping_cost,
	estimated_delivery, actual_delivery, subtotal, total, notes,
	created_at, updated_at, delivered_at, cancelled_at, expected_delivery`

const (
	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)`

	updateOrderSQL = `UPDATE orders SET
		status = $2, payment_status = $3, transaction_id = $4, paid_at = $5,
		tracking_id = $6, awb_number = $7, courier_name = $8, shipping_status = $9,
		estimated_delivery = $10, actual_delivery = $11, notes = $12, updated_at = $13,
		delivered_at = $14, cancelled_at = $15, expected_delivery = $16
		WHERE id = $1`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	listUserOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`

	countUserOrdersSQL = `SELECT count(*) FROM orders WHERE user_id = $1`

	dashboardCountsSQL = `SELECT count(*),
		count(*) FILTER (WHERE created_at >= $1),
		count(*) FILTER (WHERE created_at >= $2),
		count(*) FILTER (WHERE created_at >= $3),
		COALESCE(sum(total), 0),
		COALESCE(round(avg(total), 2), 0),
		COALESCE(sum(total) FILTER (WHERE payment_status = 'paid'), 0)
		FROM orders`

	statusStatsSQL = `SELECT status, count(*), COALESCE(sum(total), 0) FROM orders`

	recentOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id LIMIT $1`
)

var (
	_ order.Repository = (*OrderRepository)(nil)
	_ order.Finder     = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository and order.Finder backed by
// PostgreSQL. Items, addresses and notes are stored as JSONB.
type OrderRepository struct {
	q querier
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{q: pool}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := r.q.Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.UserID, o.CustomerEmail, o.CustomerName,
		o.Items, o.ShippingAddress, o.BillingAddress, string(o.Status),
		string(o.Payment.Method), string(o.Payment.Status), o.Payment.Amount, o.Payment.TransactionID, o.Payment.PaidAt,
		o.Shipping.TrackingID, o.Shipping.AWBNumber, o.Shipping.CourierName, string(o.Shipping.Status), o.Shipping.Cost,
		o.Shipping.EstimatedDelivery, o.Shipping.ActualDelivery, o.Subtotal, o.Total, notesOrEmpty(o.Notes),
		o.CreatedAt, o.UpdatedAt, o.DeliveredAt, o.CancelledAt, o.ExpectedDelivery,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetForUpdate loads an order and locks its row until the transaction ends.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderForUpdateSQL, id)
}

// Update writes the mutable order fields.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := r.q.Exec(ctx, updateOrderSQL,
		o.ID, string(o.Status), string(o.Payment.Status), o.Payment.TransactionID, o.Payment.PaidAt,
		o.Shipping.TrackingID, o.Shipping.AWBNumber, o.Shipping.CourierName, string(o.Shipping.Status),
		o.Shipping.EstimatedDelivery, o.Shipping.ActualDelivery, notesOrEmpty(o.Notes), o.UpdatedAt,
		o.DeliveredAt, o.CancelledAt, o.ExpectedDelivery,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// GetByID returns an order without locking it.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderSQL, id)
}

func (r *OrderRepository) getOne(ctx context.Context, sql, id string) (*order.Order, error) {
	rows, err := r.q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// ListByUser returns one page of the user's orders, newest first, and the
// total count.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, page, limit int) ([]order.Order, int, error) {
	var total int
	if err := r.q.QueryRow(ctx, countUserOrdersSQL, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders of %q: %w", userID, err)
	}
	rows, err := r.q.Query(ctx, listUserOrdersSQL, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	return orders, total, nil
}

// ListAdmin returns one page of orders matching f, newest first, and the
// total count.
func (r *OrderRepository) ListAdmin(ctx context.Context, f order.AdminFilter) ([]order.Order, int, error) {
	p := adminPredicate(f)
	where := p.where()

	var total int
	if err := r.q.QueryRow(ctx, "SELECT count(*) FROM orders"+where, p.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	limit := p.arg(f.Limit)
	offset := p.arg((f.Page - 1) * f.Limit)
	sql := "SELECT " + orderColumns + " FROM orders" + where +
		" ORDER BY created_at DESC, id LIMIT " + limit + " OFFSET " + offset
	rows, err := r.q.Query(ctx, sql, p.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	return orders, total, nil
}

// StatusStats groups the orders matching f's search by status. The status
// filter itself is ignored so every status is reported.
func (r *OrderRepository) StatusStats(ctx context.Context, f order.AdminFilter) ([]order.StatusStat, error) {
	f.Status = ""
	p := adminPredicate(f)
	rows, err := r.q.Query(ctx, statusStatsSQL+p.where()+" GROUP BY status ORDER BY status", p.args...)
	if err != nil {
		return nil, fmt.Errorf("order status stats: %w", err)
	}
	stats, err := pgx.CollectRows(rows, scanStatusStat)
	if err != nil {
		return nil, fmt.Errorf("order status stats: %w", err)
	}
	return stats, nil
}

// Dashboard runs the dashboard aggregates concurrently.
func (r *OrderRepository) Dashboard(ctx context.Context, w order.DashboardWindow) (*order.Dashboard, error) {
	var d order.Dashboard
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := r.q.QueryRow(gctx, dashboardCountsSQL, w.Today, w.WeekStart, w.MonthStart).Scan(
			&d.TotalOrders, &d.TodayOrders, &d.WeekOrders, &d.MonthOrders,
			&d.TotalRevenue, &d.AverageOrderValue, &d.PaidRevenue,
		)
		if err != nil {
			return fmt.Errorf("dashboard counts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		stats, err := r.StatusStats(gctx, order.AdminFilter{})
		d.StatusStats = stats
		return err
	})
	g.Go(func() error {
		rows, err := r.q.Query(gctx, recentOrdersSQL, w.RecentLimit)
		if err != nil {
			return fmt.Errorf("recent orders: %w", err)
		}
		d.Recent, err = pgx.CollectRows(rows, scanOrder)
		if err != nil {
			return fmt.Errorf("recent orders: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &d, nil
}

// adminPredicate matches the order number or the shipping phone.
func adminPredicate(f order.AdminFilter) *predicate {
	p := &predicate{}
	if f.Status != "" {
		p.add("status = " + p.arg(string(f.Status)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := p.arg("%" + escapeLike(s) + "%")
		p.add("(number ILIKE " + pattern + " OR shipping_address->>'phone' ILIKE " + pattern + ")")
	}
	return p
}

func notesOrEmpty(notes []order.Note) []order.Note {
	if notes == nil {
		return []order.Note{}
	}
	return notes
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                                             order.Order
		status, method, paymentStatus, shippingStatus string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &o.CustomerEmail, &o.CustomerName,
		&o.Items, &o.ShippingAddress, &o.BillingAddress, &status,
		&method, &paymentStatus, &o.Payment.Amount, &o.Payment.TransactionID, &o.Payment.PaidAt,
		&o.Shipping.TrackingID, &o.Shipping.AWBNumber, &o.Shipping.CourierName, &shippingStatus, &o.Shipping.Cost,
		&o.Shipping.EstimatedDelivery, &o.Shipping.ActualDelivery, &o.Subtotal, &o.Total, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt, &o.DeliveredAt, &o.CancelledAt, &o.ExpectedDelivery,
	)
	o.Status = order.Status(status)
	o.Payment.Method = order.PaymentMethod(method)
	o.Payment.Status = order.PaymentStatus(paymentStatus)
	o.Shipping.Status = order.ShippingStatus(shippingStatus)
	return o, err
}

func scanStatusStat(row pgx.CollectableRow) (order.StatusStat, error) {
	var (
		s      order.StatusStat
		status string
	)
	err := row.Scan(&status, &s.Count, &s.TotalAmount)
	s.Status = order.Status(status)
	return s, err
}
