package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
)

const productColumns = `id, sku, slug, title, description, brand, category_id,
	price_original, price_selling, currency,
	discount_type, discount_value, discount_active, discount_start, discount_end,
	quantity, reserved, low_stock_threshold, track_inventory,
	status, visibility, featured, trending,
	views, purchases, wishlist_count, created_at, updated_at`

const (
	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	createProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`

	updateProductSQL = `UPDATE products SET
			sku = $2, slug = $3, title = $4, description = $5, brand = $6, category_id = $7,
			price_original = $8, price_selling = $9, currency = $10,
			discount_type = $11, discount_value = $12, discount_active = $13,
			discount_start = $14, discount_end = $15,
			low_stock_threshold = $16, track_inventory = $17,
			status = $18, visibility = $19, featured = $20, trending = $21, updated_at = $22
		WHERE id = $1 AND status <> 'deleted'`

	softDeleteProductSQL = `UPDATE products SET status = 'deleted', updated_at = $2
		WHERE id = $1 AND status <> 'deleted'`

	lowStockSQL = `SELECT ` + productColumns + ` FROM products
		WHERE status <> 'deleted' AND track_inventory
			AND quantity - reserved <= low_stock_threshold
		ORDER BY quantity - reserved ASC, id ASC
		LIMIT $1`
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ cart.ProductLookup = (*ProductRepository)(nil)
)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	q        querier
	fullText bool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
// When fullText is set, free-text search uses the products search_vector
// index; otherwise it falls back to ILIKE matching.
func NewProductRepository(pool *pgxpool.Pool, fullText bool) *ProductRepository {
	return &ProductRepository{q: pool, fullText: fullText}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.q.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs. Missing IDs are
// silently skipped.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.q.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create inserts a normalized product.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := r.q.Exec(ctx, createProductSQL,
		p.ID, p.SKU, p.Slug, p.Title, p.Description, p.Brand, p.CategoryID,
		p.Price.Original, p.Price.Selling, p.Price.Currency,
		string(p.Discount.Type), p.Discount.Value, p.Discount.Active, p.Discount.StartDate, p.Discount.EndDate,
		p.Stock.Quantity, p.Stock.Reserved, p.Stock.LowStockThreshold, p.Stock.TrackInventory,
		string(p.Status), string(p.Visibility), p.Featured, p.Trending,
		p.Analytics.Views, p.Analytics.Purchases, p.Analytics.WishlistCount, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if pgErrorCode(err) == codeUniqueViolation {
			return apperr.Conflict("Product with this SKU or slug already exists", nil)
		}
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	return nil
}

// Update overwrites the editable columns of a live product.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	tag, err := r.q.Exec(ctx, updateProductSQL,
		p.ID, p.SKU, p.Slug, p.Title, p.Description, p.Brand, p.CategoryID,
		p.Price.Original, p.Price.Selling, p.Price.Currency,
		string(p.Discount.Type), p.Discount.Value, p.Discount.Active,
		p.Discount.StartDate, p.Discount.EndDate,
		p.Stock.LowStockThreshold, p.Stock.TrackInventory,
		string(p.Status), string(p.Visibility), p.Featured, p.Trending, p.UpdatedAt,
	)
	if err != nil {
		if pgErrorCode(err) == codeUniqueViolation {
			return apperr.Conflict("Product with this SKU or slug already exists", nil)
		}
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// SoftDelete marks a live product deleted.
func (r *ProductRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	tag, err := r.q.Exec(ctx, softDeleteProductSQL, id, at)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// LowStock returns tracked products at or below their low-stock threshold.
func (r *ProductRepository) LowStock(ctx context.Context, limit int) ([]product.Product, error) {
	rows, err := r.q.Query(ctx, lowStockSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing low stock: %w", err)
	}
	ps, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("listing low stock: %w", err)
	}
	return ps, nil
}

// Search returns one page of products matching f. f must be normalized.
func (r *ProductRepository) Search(ctx context.Context, f product.Filter) (*product.Page, error) {
	q := buildProductQuery(f, r.fullText)

	var total int
	if err := r.q.QueryRow(ctx, q.CountSQL, q.CountArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting products: %w", err)
	}

	rows, err := r.q.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("searching products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("searching products: %w", err)
	}

	return &product.Page{Products: products, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// productQuery is a catalog query split into the page select and the count
// over the same predicate.
type productQuery struct {
	SQL       string
	Args      []any
	CountSQL  string
	CountArgs []any
}

type predicate struct {
	conds []string
	args  []any
}

// arg binds v and returns its placeholder.
func (p *predicate) arg(v any) string {
	p.args = append(p.args, v)
	return "$" + strconv.Itoa(len(p.args))
}

func (p *predicate) add(cond string) {
	p.conds = append(p.conds, cond)
}

func (p *predicate) where() string {
	if len(p.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(p.conds, " AND ")
}

// buildProductQuery translates f into SQL. Text matching uses either the
// full-text index or ILIKE, never both. Every ordering ends with id so pages
// are stable.
func buildProductQuery(f product.Filter, fullText bool) productQuery {
	var p predicate

	if f.Status == "" {
		p.add("status <> " + p.arg(string(product.StatusDeleted)))
	} else {
		p.add("status = " + p.arg(string(f.Status)))
	}
	if f.Visibility != "" {
		p.add("visibility = " + p.arg(string(f.Visibility)))
	}
	if f.Brand != "" {
		p.add("brand = " + p.arg(f.Brand))
	}
	if f.CategoryID != "" {
		p.add("category_id = " + p.arg(f.CategoryID))
	}
	if f.MinPrice != nil {
		p.add("price_selling >= " + p.arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		p.add("price_selling <= " + p.arg(*f.MaxPrice))
	}
	if f.InStock != nil {
		if *f.InStock {
			p.add("quantity > 0")
		} else {
			p.add("quantity <= 0")
		}
	}
	if f.Featured != nil {
		p.add("featured = " + p.arg(*f.Featured))
	}
	if f.Trending != nil {
		p.add("trending = " + p.arg(*f.Trending))
	}

	var tsQuery string
	if f.Search != "" {
		if fullText {
			tsQuery = "websearch_to_tsquery('simple', " + p.arg(f.Search) + ")"
			p.add("search_vector @@ " + tsQuery)
		} else {
			pattern := p.arg("%" + escapeLike(f.Search) + "%")
			p.add("(title ILIKE " + pattern + " OR description ILIKE " + pattern + " OR brand ILIKE " + pattern + ")")
		}
	}

	where := p.where()
	countArgs := append([]any(nil), p.args...)
	limit := p.arg(f.Limit)
	offset := p.arg(f.Offset())

	sql := "SELECT " + productColumns + " FROM products" + where +
		" ORDER BY " + orderBy(f.Sort, tsQuery) + " LIMIT " + limit + " OFFSET " + offset

	return productQuery{
		SQL:       sql,
		Args:      p.args,
		CountSQL:  "SELECT count(*) FROM products" + where,
		CountArgs: countArgs,
	}
}

func orderBy(s product.Sort, tsQuery string) string {
	var keys string
	switch s {
	case product.SortOldest:
		keys = "created_at ASC"
	case product.SortPriceLow:
		keys = "price_selling ASC"
	case product.SortPriceHigh:
		keys = "price_selling DESC"
	case product.SortNameAsc:
		keys = "title ASC"
	case product.SortNameDesc:
		keys = "title DESC"
	case product.SortRating:
		keys = "purchases DESC"
	case product.SortPopular:
		keys = "purchases DESC, views DESC"
	case product.SortRelevance:
		if tsQuery != "" {
			keys = "ts_rank(search_vector, " + tsQuery + ") DESC"
		} else {
			keys = "featured DESC, created_at DESC"
		}
	default:
		keys = "created_at DESC"
	}
	return keys + ", id ASC"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p                                product.Product
		discountType, status, visibility string
	)
	err := row.Scan(
		&p.ID, &p.SKU, &p.Slug, &p.Title, &p.Description, &p.Brand, &p.CategoryID,
		&p.Price.Original, &p.Price.Selling, &p.Price.Currency,
		&discountType, &p.Discount.Value, &p.Discount.Active, &p.Discount.StartDate, &p.Discount.EndDate,
		&p.Stock.Quantity, &p.Stock.Reserved, &p.Stock.LowStockThreshold, &p.Stock.TrackInventory,
		&status, &visibility, &p.Featured, &p.Trending,
		&p.Analytics.Views, &p.Analytics.Purchases, &p.Analytics.WishlistCount, &p.CreatedAt, &p.UpdatedAt,
	)
	p.Discount.Type = product.DiscountType(discountType)
	p.Status = product.Status(status)
	p.Visibility = product.Visibility(visibility)
	return p, err
}
