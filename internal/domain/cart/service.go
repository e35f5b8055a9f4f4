package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/storefront/internal/apperr"
)

// ErrCacheMiss is returned by Cache.Get when no entry exists.
var ErrCacheMiss = errors.New("cache miss")

// ErrProductUnavailable is returned when adding a product that cannot be sold.
var ErrProductUnavailable = apperr.NotFound("Product not found or unavailable")

// Cache stores read-through copies of carts. Every Delete bumps a per-user
// version so that a load which read the repository before a write cannot
// store its stale copy afterwards.
type Cache interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	// Version returns the current invalidation version of the user's entry.
	Version(ctx context.Context, userID string) (int64, error)
	// Set stores c only while the entry is still at version. It reports
	// whether the cart was stored.
	Set(ctx context.Context, c *Cart, version int64) (bool, error)
	// Delete drops the entry and bumps its version.
	Delete(ctx context.Context, userID string) error
}

// Service implements cart operations. Reads go through the cache; writes go
// to the repository and invalidate the cached copy.
type Service struct {
	repo     Repository
	products ProductLookup
	cache    Cache
	lg       *zap.Logger
	sfg      singleflight.Group
	now      func() time.Time
	newID    func() string
}

// NewService creates a cart Service. cache may be nil.
func NewService(repo Repository, products ProductLookup, cache Cache, lg *zap.Logger) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		products: products,
		cache:    cache,
		lg:       lg,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Get returns the user's cart, creating an empty one on first access.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	if s.cache != nil {
		c, err := s.cache.Get(ctx, userID)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.lg.Warn("Cart cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	v, err, _ := s.sfg.Do(userID, func() (any, error) {
		return s.load(ctx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return v.(*Cart), nil
}

// load reads the cart from the repository and fills the cache unless a write
// invalidated the entry while the read was in flight.
func (s *Service) load(ctx context.Context, userID string) (*Cart, error) {
	if s.cache == nil {
		return s.repo.Get(ctx, userID)
	}
	version, verErr := s.cache.Version(ctx, userID)
	if verErr != nil {
		s.lg.Warn("Cart cache version read failed", zap.String("user_id", userID), zap.Error(verErr))
	}

	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if verErr != nil {
		return c, nil
	}
	stored, err := s.cache.Set(ctx, c, version)
	switch {
	case err != nil:
		s.lg.Warn("Cart cache write failed", zap.String("user_id", userID), zap.Error(err))
	case !stored:
		s.lg.Debug("Cart changed during load, not cached", zap.String("user_id", userID))
	}
	return c, nil
}

// AddRequest adds a product to the cart.
type AddRequest struct {
	ProductID string
	Quantity  int
	Variants  map[string]string
}

// Add merges a product line into the cart. The merged line is validated
// against the catalog and the mutation is rejected on any violation.
func (s *Service) Add(ctx context.Context, userID string, req AddRequest) (*Cart, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		return nil, apperr.Validation("Product ID is required")
	}
	if req.Quantity < 1 {
		return nil, apperr.Validation("Quantity must be at least 1")
	}

	fetched, err := s.products.GetByIDs(ctx, []string{req.ProductID})
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if len(fetched) == 0 || !fetched[0].Purchasable() {
		return nil, ErrProductUnavailable
	}
	p := fetched[0]

	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	line := c.Add(Line{
		ProductID: p.ID,
		Quantity:  req.Quantity,
		Price:     p.Price.Selling,
		Variants:  req.Variants,
	}, s.now(), s.newID)

	if err := s.check(ctx, line); err != nil {
		return nil, err
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateQuantity replaces the quantity of a line after checking stock.
func (s *Service) UpdateQuantity(ctx context.Context, userID, itemID string, qty int) (*Cart, error) {
	if qty < 1 {
		return nil, apperr.Validation("Valid quantity is required")
	}
	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if err := c.SetQuantity(itemID, qty, s.now()); err != nil {
		return nil, err
	}
	line, _ := c.Find(itemID)
	if err := s.check(ctx, line); err != nil {
		return nil, err
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveItem deletes a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) (*Cart, error) {
	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if err := c.Remove(itemID, s.now()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.repo.Clear(ctx, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	s.Invalidate(ctx, userID)
	return nil
}

// Validate reports violations for every line of the user's cart.
func (s *Service) Validate(ctx context.Context, userID string) (*Cart, []Violation, error) {
	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("get cart: %w", err)
	}
	violations, err := Validate(ctx, s.products, c.Items)
	if err != nil {
		return nil, nil, err
	}
	return c, violations, nil
}

// Invalidate drops the cached copy of the user's cart. Failures are logged.
// Reads that start afterwards do not join a load begun before the write.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	s.sfg.Forget(userID)
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.lg.Warn("Cart cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *Service) check(ctx context.Context, line Item) error {
	violations, err := Validate(ctx, s.products, []Item{line})
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		return &ViolationsError{Violations: violations}
	}
	return nil
}

func (s *Service) save(ctx context.Context, c *Cart) error {
	if err := s.repo.Save(ctx, c); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	s.Invalidate(ctx, c.UserID)
	return nil
}
