package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/apperr"
)

// Reconciler applies the stock side effects of order transitions.
type Reconciler struct {
	lg  *zap.Logger
	now func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(lg *zap.Logger) *Reconciler {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Reconciler{lg: lg, now: time.Now}
}

// ApplyOrderCreation decrements stock and increments the purchase counter for
// every line. The first line that cannot be satisfied aborts with a
// *StockError; the caller must roll back the transaction.
func (r *Reconciler) ApplyOrderCreation(ctx context.Context, store Store, lines []Line) error {
	for _, t := range merge(lines) {
		if err := store.Adjust(ctx, t.ProductID, -t.Quantity, t.Lines); err != nil {
			if errors.Is(err, ErrInsufficientStock) {
				r.lg.Debug("Stock guard rejected decrement",
					zap.String("product_id", t.ProductID),
					zap.Int("quantity", t.Quantity),
				)
				return &StockError{ProductID: t.ProductID, Requested: t.Quantity}
			}
			return errors.Wrapf(err, "decrement stock for %s", t.ProductID)
		}
	}
	return nil
}

// ApplyOrderCancellation restores stock and decrements the purchase counter
// for every line.
func (r *Reconciler) ApplyOrderCancellation(ctx context.Context, store Store, lines []Line) error {
	for _, t := range merge(lines) {
		if err := store.Adjust(ctx, t.ProductID, t.Quantity, -t.Lines); err != nil {
			return errors.Wrapf(err, "restore stock for %s", t.ProductID)
		}
	}
	return nil
}

// AdjustRequest is an admin stock correction.
type AdjustRequest struct {
	ProductID string
	Op        Op
	Quantity  int
	Reason    string
	Actor     string
}

// AdjustStock applies an admin correction. Subtract and set clamp the
// resulting quantity at zero. The change is recorded for audit.
func (r *Reconciler) AdjustStock(ctx context.Context, store Store, req AdjustRequest) (*Adjustment, error) {
	req.Op = Op(strings.ToLower(strings.TrimSpace(string(req.Op))))
	switch req.Op {
	case OpAdd, OpSubtract, OpSet:
	default:
		return nil, apperr.Validation("Invalid operation. Use: add, subtract, or set")
	}
	if req.Quantity < 0 {
		return nil, apperr.Validation("Quantity must be a non-negative number")
	}

	prev, err := store.LockQuantity(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	next := prev
	switch req.Op {
	case OpAdd:
		next = prev + req.Quantity
	case OpSubtract:
		next = max(prev-req.Quantity, 0)
	case OpSet:
		next = max(req.Quantity, 0)
	}

	if err := store.SetQuantity(ctx, req.ProductID, next); err != nil {
		return nil, errors.Wrap(err, "set quantity")
	}

	a := Adjustment{
		ProductID: req.ProductID,
		Op:        req.Op,
		Quantity:  req.Quantity,
		Previous:  prev,
		Current:   next,
		Reason:    strings.TrimSpace(req.Reason),
		Actor:     req.Actor,
		At:        r.now(),
	}
	if err := store.RecordAdjustment(ctx, a); err != nil {
		return nil, errors.Wrap(err, "record adjustment")
	}

	r.lg.Info("Stock adjusted",
		zap.String("product_id", a.ProductID),
		zap.String("op", string(a.Op)),
		zap.Int("previous", a.Previous),
		zap.Int("current", a.Current),
	)
	return &a, nil
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Service runs admin adjustments in their own transaction.
type Service struct {
	tx         Transactor
	reconciler *Reconciler
	log        AdjustmentLog
}

// NewService creates an inventory Service.
func NewService(tx Transactor, reconciler *Reconciler, log AdjustmentLog) *Service {
	return &Service{tx: tx, reconciler: reconciler, log: log}
}

// History returns the most recent stock adjustments of a product.
func (s *Service) History(ctx context.Context, productID string, limit int) ([]Adjustment, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, apperr.Validation("Product ID is required")
	}
	if limit < 1 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	out, err := s.log.ListAdjustments(ctx, productID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "stock history")
	}
	return out, nil
}

// Adjust applies req atomically.
func (s *Service) Adjust(ctx context.Context, req AdjustRequest) (*Adjustment, error) {
	var out *Adjustment
	err := s.tx.WithinStockTx(ctx, func(ctx context.Context, store Store) error {
		a, err := s.reconciler.AdjustStock(ctx, store, req)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
