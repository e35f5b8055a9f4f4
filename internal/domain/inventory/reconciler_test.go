package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/apperr"
)

// --- Mock implementations ---

type memItem struct {
	qty       int
	purchases int
	tracked   bool
}

type memStore struct {
	mu          sync.Mutex
	items       map[string]*memItem
	adjustments []Adjustment
	adjustCalls int
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string]*memItem)}
}

func (m *memStore) put(id string, qty int) {
	m.items[id] = &memItem{qty: qty, tracked: true}
}

func (m *memStore) Adjust(_ context.Context, id string, qtyDelta, purchasesDelta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustCalls++

	it, ok := m.items[id]
	if !ok || (it.tracked && it.qty+qtyDelta < 0) {
		return ErrInsufficientStock
	}
	it.qty += qtyDelta
	it.purchases = max(it.purchases+purchasesDelta, 0)
	return nil
}

func (m *memStore) LockQuantity(_ context.Context, id string) (int, error) {
	it, ok := m.items[id]
	if !ok {
		return 0, ErrProductNotFound
	}
	return it.qty, nil
}

func (m *memStore) SetQuantity(_ context.Context, id string, qty int) error {
	m.items[id].qty = qty
	return nil
}

func (m *memStore) RecordAdjustment(_ context.Context, a Adjustment) error {
	m.adjustments = append(m.adjustments, a)
	return nil
}

func (m *memStore) ListAdjustments(_ context.Context, productID string, limit int) ([]Adjustment, error) {
	var out []Adjustment
	for i := len(m.adjustments) - 1; i >= 0 && len(out) < limit; i-- {
		if m.adjustments[i].ProductID == productID {
			out = append(out, m.adjustments[i])
		}
	}
	return out, nil
}

type memTx struct{ store *memStore }

func (m memTx) WithinStockTx(ctx context.Context, fn func(context.Context, Store) error) error {
	return fn(ctx, m.store)
}

// --- Tests ---

func TestApplyOrderCreation(t *testing.T) {
	store := newMemStore()
	store.put("a", 5)
	store.put("b", 3)
	r := NewReconciler(nil)

	err := r.ApplyOrderCreation(context.Background(), store, []Line{
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, store.items["a"].qty)
	assert.Equal(t, 2, store.items["b"].qty)
	assert.Equal(t, 1, store.items["a"].purchases)
	assert.Equal(t, 1, store.items["b"].purchases)
}

func TestApplyOrderCreation_MergesVariantLines(t *testing.T) {
	store := newMemStore()
	store.put("shirt", 3)
	r := NewReconciler(nil)

	// Two variant lines of the same product together exceed stock.
	err := r.ApplyOrderCreation(context.Background(), store, []Line{
		{ProductID: "shirt", Quantity: 2},
		{ProductID: "shirt", Quantity: 2},
	})

	var stockErr *StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "shirt", stockErr.ProductID)
	assert.Equal(t, 4, stockErr.Requested)
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, apperr.KindStock, apperr.KindOf(err))
	assert.Equal(t, 3, store.items["shirt"].qty)
	assert.Equal(t, 1, store.adjustCalls)
}

func TestApplyOrderCreation_CountsPurchasesPerLine(t *testing.T) {
	store := newMemStore()
	store.put("shirt", 10)
	r := NewReconciler(nil)

	require.NoError(t, r.ApplyOrderCreation(context.Background(), store, []Line{
		{ProductID: "shirt", Quantity: 1},
		{ProductID: "shirt", Quantity: 2},
	}))
	assert.Equal(t, 7, store.items["shirt"].qty)
	assert.Equal(t, 2, store.items["shirt"].purchases)
}

func TestCreateThenCancelRestoresStock(t *testing.T) {
	store := newMemStore()
	store.put("a", 5)
	r := NewReconciler(nil)
	lines := []Line{{ProductID: "a", Quantity: 4}}

	require.NoError(t, r.ApplyOrderCreation(context.Background(), store, lines))
	require.NoError(t, r.ApplyOrderCancellation(context.Background(), store, lines))

	assert.Equal(t, 5, store.items["a"].qty)
	assert.Equal(t, 0, store.items["a"].purchases)
}

func TestConcurrentDecrementsNeverOversell(t *testing.T) {
	store := newMemStore()
	store.put("hot", 10)
	r := NewReconciler(nil)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.ApplyOrderCreation(context.Background(), store, []Line{{ProductID: "hot", Quantity: 1}}) == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 0, store.items["hot"].qty)
}

func TestAdjustStock(t *testing.T) {
	tests := []struct {
		name     string
		op       Op
		qty      int
		expected int
	}{
		{"add", OpAdd, 5, 15},
		{"subtract", OpSubtract, 4, 6},
		{"subtract clamps", OpSubtract, 40, 0},
		{"set", OpSet, 3, 3},
		{"case insensitive", "ADD", 1, 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.put("p", 10)
			r := NewReconciler(nil)
			r.now = func() time.Time { return time.Unix(100, 0) }

			a, err := r.AdjustStock(context.Background(), store, AdjustRequest{
				ProductID: "p", Op: tt.op, Quantity: tt.qty, Reason: " recount ", Actor: "admin-1",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, store.items["p"].qty)
			assert.Equal(t, 10, a.Previous)
			assert.Equal(t, tt.expected, a.Current)
			assert.Equal(t, "recount", a.Reason)
			require.Len(t, store.adjustments, 1)
		})
	}
}

func TestAdjustStock_Invalid(t *testing.T) {
	store := newMemStore()
	store.put("p", 10)
	svc := NewService(memTx{store: store}, NewReconciler(nil), store)

	_, err := svc.Adjust(context.Background(), AdjustRequest{ProductID: "p", Op: "multiply", Quantity: 1})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.Adjust(context.Background(), AdjustRequest{ProductID: "p", Op: OpAdd, Quantity: -1})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.Adjust(context.Background(), AdjustRequest{ProductID: "missing", Op: OpAdd, Quantity: 1})
	require.ErrorIs(t, err, ErrProductNotFound)
	assert.Empty(t, store.adjustments)
}

func TestHistory(t *testing.T) {
	store := newMemStore()
	store.put("p", 10)
	store.put("q", 10)
	svc := NewService(memTx{store: store}, NewReconciler(nil), store)
	ctx := context.Background()

	for _, req := range []AdjustRequest{
		{ProductID: "p", Op: OpSubtract, Quantity: 3, Reason: "damaged"},
		{ProductID: "q", Op: OpAdd, Quantity: 1},
		{ProductID: "p", Op: OpSet, Quantity: 20, Reason: "recount"},
	} {
		_, err := svc.Adjust(ctx, req)
		require.NoError(t, err)
	}

	tests := []struct {
		name     string
		limit    int
		expected []string
	}{
		{"default limit", 0, []string{"recount", "damaged"}},
		{"explicit limit", 1, []string{"recount"}},
		{"over max falls back", maxHistoryLimit + 1, []string{"recount", "damaged"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history, err := svc.History(ctx, "p", tt.limit)
			require.NoError(t, err)
			reasons := make([]string, 0, len(history))
			for _, a := range history {
				reasons = append(reasons, a.Reason)
			}
			assert.Equal(t, tt.expected, reasons)
		})
	}

	history, err := svc.History(ctx, "p", 0)
	require.NoError(t, err)
	assert.Equal(t, 7, history[0].Previous)
	assert.Equal(t, 20, history[0].Current)

	_, err = svc.History(ctx, " ", 0)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
