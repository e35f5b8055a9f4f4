package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/apperr"
)

func TestAdminUpdate_Transitions(t *testing.T) {
	eta := testNow.Add(7 * 24 * time.Hour)

	for _, tc := range []struct {
		name  string
		req   UpdateRequest
		check func(t *testing.T, o *Order, d StatusDelta)
	}{
		{
			name: "delivered stamps timestamps",
			req:  UpdateRequest{Status: StatusDelivered},
			check: func(t *testing.T, o *Order, d StatusDelta) {
				require.NotNil(t, o.DeliveredAt)
				require.NotNil(t, o.Shipping.ActualDelivery)
				assert.Equal(t, testNow, *o.DeliveredAt)
				assert.Equal(t, testNow, *o.Shipping.ActualDelivery)
				assert.True(t, d.HasStatusChanged)
				assert.Equal(t, StatusProcessing, d.PreviousStatus)
				assert.Equal(t, StatusDelivered, d.NewStatus)
			},
		},
		{
			name: "shipped sets expected delivery",
			req:  UpdateRequest{ShippingStatus: ShippingShipped, TrackingID: "TRK1", CourierName: "BlueDart", AWBNumber: "AWB9"},
			check: func(t *testing.T, o *Order, d StatusDelta) {
				require.NotNil(t, o.Shipping.EstimatedDelivery)
				require.NotNil(t, o.ExpectedDelivery)
				assert.Equal(t, eta, *o.Shipping.EstimatedDelivery)
				assert.Equal(t, eta, *o.ExpectedDelivery)
				assert.Equal(t, "TRK1", o.Shipping.TrackingID)
				assert.Equal(t, "BlueDart", o.Shipping.CourierName)
				assert.Equal(t, "AWB9", o.Shipping.AWBNumber)
				assert.False(t, d.HasStatusChanged)
				assert.True(t, d.HasShippingChanged)
				assert.True(t, d.TrackingAdded)
			},
		},
		{
			name: "paid stamps payment date",
			req:  UpdateRequest{PaymentStatus: "PAID", TransactionID: "tx-1"},
			check: func(t *testing.T, o *Order, d StatusDelta) {
				assert.Equal(t, PaymentPaid, o.Payment.Status)
				require.NotNil(t, o.Payment.PaidAt)
				assert.Equal(t, testNow, *o.Payment.PaidAt)
				assert.Equal(t, "tx-1", o.Payment.TransactionID)
				assert.False(t, d.Notify())
			},
		},
		{
			name: "notes appended as admin",
			req:  UpdateRequest{Notes: " packed "},
			check: func(t *testing.T, o *Order, d StatusDelta) {
				require.Len(t, o.Notes, 1)
				assert.Equal(t, Note{At: testNow, Author: AuthorAdmin, Text: "packed"}, o.Notes[0])
				assert.Equal(t, "packed", d.AdminNotes)
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			o := processingOrder()
			req := tc.req
			req.normalize()
			require.NoError(t, req.validate())

			delta, restock := o.applyUpdate(req, testNow)
			assert.False(t, restock)
			assert.Equal(t, testNow, o.UpdatedAt)
			tc.check(t, o, delta)
		})
	}
}

func TestAdminUpdate_Persists(t *testing.T) {
	f := newFixture(t, newTestProduct("A", "100", 10), newTestProduct("B", "50", 5))
	o := placeOrder(t, f)
	ctx := context.Background()

	got, err := f.admin.Update(ctx, o.ID, UpdateRequest{Status: StatusShipped, ShippingStatus: ShippingShipped, TrackingID: "TRK1"})
	require.NoError(t, err)

	stored, err := f.db.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, stored.Status)
	assert.Equal(t, "TRK1", stored.Shipping.TrackingID)
	assert.Equal(t, got.ExpectedDelivery, stored.ExpectedDelivery)

	require.Len(t, f.notifier.sent, 2)
	n := f.notifier.sent[1]
	assert.Equal(t, "status", n.kind)
	assert.Equal(t, StatusDelta{
		PreviousStatus:         StatusProcessing,
		NewStatus:              StatusShipped,
		PreviousShippingStatus: ShippingProcessing,
		NewShippingStatus:      ShippingShipped,
		HasStatusChanged:       true,
		HasShippingChanged:     true,
		TrackingAdded:          true,
	}, n.delta)
}

func TestAdminUpdate_Idempotent(t *testing.T) {
	f := newFixture(t, newTestProduct("A", "100", 10), newTestProduct("B", "50", 5))
	o := placeOrder(t, f)
	ctx := context.Background()
	req := UpdateRequest{Status: StatusShipped, ShippingStatus: ShippingShipped, TrackingID: "TRK1", PaymentStatus: PaymentPaid}

	first, err := f.admin.Update(ctx, o.ID, req)
	require.NoError(t, err)
	require.Len(t, f.notifier.sent, 2)

	// Replaying the same payload a day later neither re-stamps nor notifies.
	f.admin.opts.now = func() time.Time { return testNow.Add(24 * time.Hour) }
	second, err := f.admin.Update(ctx, o.ID, req)
	require.NoError(t, err)

	assert.Len(t, f.notifier.sent, 2)
	assert.Equal(t, *first.ExpectedDelivery, *second.ExpectedDelivery)
	assert.Equal(t, *first.Payment.PaidAt, *second.Payment.PaidAt)
}

func TestAdminUpdate_InvalidEnumWritesNothing(t *testing.T) {
	for _, req := range []UpdateRequest{
		{Status: StatusDelivered, ShippingStatus: "teleported"},
		{Status: "lost", Notes: "x"},
		{ShippingStatus: ShippingShipped, PaymentStatus: "maybe"},
	} {
		f := newFixture(t, newTestProduct("A", "100", 10), newTestProduct("B", "50", 5))
		o := placeOrder(t, f)

		_, err := f.admin.Update(context.Background(), o.ID, req)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

		stored, err := f.db.GetByID(context.Background(), o.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, stored.Status)
		assert.Equal(t, ShippingProcessing, stored.Shipping.Status)
		assert.Empty(t, stored.Notes)
		assert.Len(t, f.notifier.sent, 1)
	}
}

func TestAdminUpdate_CancelRestoresStockOnce(t *testing.T) {
	f := newFixture(t, newTestProduct("A", "100", 10), newTestProduct("B", "50", 5))
	o := placeOrder(t, f)
	ctx := context.Background()
	f.db.st.orders[o.ID].Payment.Status = PaymentPaid

	got, err := f.admin.Update(ctx, o.ID, UpdateRequest{Status: StatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, PaymentRefunded, got.Payment.Status)
	require.NotNil(t, got.CancelledAt)
	assert.Equal(t, 10, f.db.product("A").Stock.Quantity)

	_, err = f.admin.Update(ctx, o.ID, UpdateRequest{Status: StatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, 10, f.db.product("A").Stock.Quantity)

	// A customer cancel after the admin one is rejected.
	_, err = f.svc.Cancel(ctx, "u1", o.ID, "")
	require.ErrorIs(t, err, ErrNotCancellable)
}

func TestAdminUpdate_ReopenAfterCancelRejected(t *testing.T) {
	f := newFixture(t, newTestProduct("A", "100", 10), newTestProduct("B", "50", 5))
	o := placeOrder(t, f)
	ctx := context.Background()

	_, err := f.admin.Update(ctx, o.ID, UpdateRequest{Status: StatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, 10, f.db.product("A").Stock.Quantity)

	_, err = f.admin.Update(ctx, o.ID, UpdateRequest{Status: StatusProcessing})
	assert.Equal(t, apperr.KindStateConflict, apperr.KindOf(err))

	_, err = f.svc.Cancel(ctx, "u1", o.ID, "")
	require.ErrorIs(t, err, ErrNotCancellable)

	stored, err := f.db.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
	assert.Equal(t, 10, f.db.product("A").Stock.Quantity)
}

func TestAdminUpdate_RejectsOutOfOrderStatus(t *testing.T) {
	for _, tc := range []struct {
		name string
		path []Status
		to   Status
	}{
		{name: "delivered to pending", path: []Status{StatusShipped, StatusDelivered}, to: StatusPending},
		{name: "delivered to cancelled", path: []Status{StatusShipped, StatusDelivered}, to: StatusCancelled},
		{name: "shipped to processing", path: []Status{StatusShipped}, to: StatusProcessing},
		{name: "shipped to cancelled", path: []Status{StatusShipped}, to: StatusCancelled},
		{name: "processing to pending", to: StatusPending},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, newTestProduct("A", "100", 10), newTestProduct("B", "50", 5))
			o := placeOrder(t, f)
			ctx := context.Background()
			for _, st := range tc.path {
				_, err := f.admin.Update(ctx, o.ID, UpdateRequest{Status: st})
				require.NoError(t, err)
			}
			want := StatusProcessing
			if len(tc.path) > 0 {
				want = tc.path[len(tc.path)-1]
			}
			sent := len(f.notifier.sent)

			_, err := f.admin.Update(ctx, o.ID, UpdateRequest{Status: tc.to, Notes: "retry"})
			assert.Equal(t, apperr.KindStateConflict, apperr.KindOf(err))

			stored, err := f.db.GetByID(ctx, o.ID)
			require.NoError(t, err)
			assert.Equal(t, want, stored.Status)
			assert.Empty(t, stored.Notes)
			assert.Len(t, f.notifier.sent, sent)
			assert.Equal(t, 8, f.db.product("A").Stock.Quantity)
		})
	}
}

func TestStatusCanBecome(t *testing.T) {
	for _, tc := range []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCancelled, true},
		{StatusProcessing, StatusShipped, true},
		{StatusProcessing, StatusDelivered, true},
		{StatusProcessing, StatusCancelled, true},
		{StatusShipped, StatusDelivered, true},
		{StatusDelivered, StatusDelivered, true},
		{StatusCancelled, StatusCancelled, true},
		{StatusProcessing, StatusPending, false},
		{StatusShipped, StatusProcessing, false},
		{StatusShipped, StatusCancelled, false},
		{StatusDelivered, StatusShipped, false},
		{StatusCancelled, StatusProcessing, false},
		{StatusCancelled, StatusDelivered, false},
	} {
		assert.Equal(t, tc.want, tc.from.CanBecome(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestAdminUpdate_NotifierFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, newTestProduct("A", "100", 10), newTestProduct("B", "50", 5))
	o := placeOrder(t, f)
	f.notifier.err = errors.New("queue full")

	got, err := f.admin.Update(context.Background(), o.ID, UpdateRequest{Status: StatusShipped})
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.Status)

	stored, err := f.db.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, stored.Status)
}

func TestAdminUpdate_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.admin.Update(context.Background(), "missing", UpdateRequest{Status: StatusShipped})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAdminListAndDashboard(t *testing.T) {
	f := newFixture(t, newTestProduct("A", "100", 10), newTestProduct("B", "50", 5))
	placeOrder(t, f)
	ctx := context.Background()

	list, err := f.admin.List(ctx, AdminFilter{Status: "Processing"})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, DefaultLimit, list.Limit)
	require.Len(t, list.Stats, 1)
	assert.Equal(t, "335", list.Stats[0].TotalAmount.String())

	_, err = f.admin.List(ctx, AdminFilter{Status: "lost"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	d, err := f.admin.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, d.TotalOrders)
	assert.Equal(t, 1, d.TodayOrders)
	assert.Equal(t, "335", d.AverageOrderValue.String())
}

func processingOrder() *Order {
	return &Order{
		ID:       "o1",
		Status:   StatusProcessing,
		Payment:  Payment{Method: MethodCOD, Status: PaymentPending},
		Shipping: Shipping{Status: ShippingProcessing},
	}
}

func TestNewDashboardWindow(t *testing.T) {
	// 2025-03-14 is a Friday.
	w := NewDashboardWindow(testNow)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), w.Today)
	assert.Equal(t, time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC), w.WeekStart)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), w.MonthStart)
}
