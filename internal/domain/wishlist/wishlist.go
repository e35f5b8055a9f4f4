// Package wishlist keeps the products a customer saved for later.
package wishlist

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
)

var (
	// ErrItemNotFound is returned when removing a product that is not saved.
	ErrItemNotFound = apperr.NotFound("Item not found in wishlist")
	// ErrDuplicate is returned by Repository.Add when the product is already
	// saved.
	ErrDuplicate = apperr.Validation("Product already in wishlist")
)

// Item is a saved product.
type Item struct {
	ProductID string    `json:"productId"`
	AddedAt   time.Time `json:"addedAt"`
}

// Wishlist is a customer's saved products, newest first.
type Wishlist struct {
	UserID string `json:"userId"`
	Items  []Item `json:"items"`
}

// TotalItems returns the number of saved products.
func (w *Wishlist) TotalItems() int { return len(w.Items) }

// Repository persists wishlists. Add and Remove also maintain the product
// wishlist counter.
type Repository interface {
	Get(ctx context.Context, userID string) (*Wishlist, error)
	Add(ctx context.Context, userID string, it Item) error
	// Remove returns ErrItemNotFound when nothing was deleted.
	Remove(ctx context.Context, userID, productID string) error
}

// CartAdder puts a product into the customer's cart.
type CartAdder interface {
	Add(ctx context.Context, userID string, req cart.AddRequest) (*cart.Cart, error)
}

// Service implements wishlist operations.
type Service struct {
	repo     Repository
	products cart.ProductLookup
	carts    CartAdder
	now      func() time.Time
}

// NewService creates a wishlist Service.
func NewService(repo Repository, products cart.ProductLookup, carts CartAdder) *Service {
	return &Service{repo: repo, products: products, carts: carts, now: time.Now}
}

// Get returns the wishlist, empty when the customer saved nothing yet.
func (s *Service) Get(ctx context.Context, userID string) (*Wishlist, error) {
	w, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get wishlist")
	}
	return w, nil
}

// Add saves an active public product.
func (s *Service) Add(ctx context.Context, userID, productID string) (*Wishlist, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, apperr.Validation("Product ID is required")
	}
	fetched, err := s.products.GetByIDs(ctx, []string{productID})
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	if len(fetched) == 0 || !fetched[0].Purchasable() {
		return nil, cart.ErrProductUnavailable
	}
	if err := s.repo.Add(ctx, userID, Item{ProductID: productID, AddedAt: s.now()}); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

// Remove deletes a saved product.
func (s *Service) Remove(ctx context.Context, userID, productID string) (*Wishlist, error) {
	if err := s.repo.Remove(ctx, userID, productID); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

// MoveToCart adds a saved product to the cart and then drops it from the
// wishlist. A cart rejection leaves the wishlist untouched.
func (s *Service) MoveToCart(ctx context.Context, userID, productID string, qty int) (*cart.Cart, error) {
	w, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	found := false
	for _, it := range w.Items {
		if it.ProductID == productID {
			found = true
			break
		}
	}
	if !found {
		return nil, ErrItemNotFound
	}
	if qty < 1 {
		qty = 1
	}

	c, err := s.carts.Add(ctx, userID, cart.AddRequest{ProductID: productID, Quantity: qty})
	if err != nil {
		return nil, err
	}
	if err := s.repo.Remove(ctx, userID, productID); err != nil && !errors.Is(err, ErrItemNotFound) {
		return nil, err
	}
	return c, nil
}
