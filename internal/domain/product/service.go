package product

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service implements catalog reads and admin product creation.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a product Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create normalizes, validates and persists a new product.
func (s *Service) Create(ctx context.Context, p *Product) (*Product, error) {
	now := s.now()
	p.Normalize(now)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.ApplyDiscount()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

// Update replaces the editable fields of product id with p. SKU and slug are
// kept when p leaves them empty. Stock quantities only change through stock
// adjustments, so p.Stock carries just the threshold and tracking flag.
func (s *Service) Update(ctx context.Context, id string, p *Product) (*Product, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.SKU == "" {
		p.SKU = cur.SKU
	}
	if p.Slug == "" {
		p.Slug = cur.Slug
	}
	p.ID = cur.ID
	p.Stock.Quantity = cur.Stock.Quantity
	p.Stock.Reserved = cur.Stock.Reserved
	p.Analytics = cur.Analytics
	p.CreatedAt = cur.CreatedAt

	now := s.now()
	p.Normalize(now)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.ApplyDiscount()
	p.UpdatedAt = now

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return p, nil
}

// Delete soft-deletes a product. Deleted products disappear from every read
// but stay referenced by past orders and audit records.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.SoftDelete(ctx, id, s.now())
}

// LowStock lists products that need restocking.
func (s *Service) LowStock(ctx context.Context, limit int) ([]Product, error) {
	if limit < 1 || limit > MaxLimit {
		limit = DefaultLimit
	}
	ps, err := s.repo.LowStock(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("low stock: %w", err)
	}
	return ps, nil
}

// Get returns any non-deleted product by ID.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusDeleted {
		return nil, ErrNotFound
	}
	return p, nil
}

// GetPublic returns a product only when it is active and public.
func (s *Service) GetPublic(ctx context.Context, id string) (*Product, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Purchasable() {
		return nil, ErrNotFound
	}
	return p, nil
}

// Search runs a catalog query. When public is set, results are limited to
// active public products regardless of the filter.
func (s *Service) Search(ctx context.Context, f Filter, public bool) (*Page, error) {
	f = f.Normalize()
	if public {
		f = f.Public()
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	page, err := s.repo.Search(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return page, nil
}
