package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/product"
)

func (h *Handler) registerProducts(api huma.API) {
	huma.Register(api, operation("list-products", http.MethodGet, "/api/products",
		"Search the public catalog", "Products", public), h.listProducts)
	huma.Register(api, operation("get-product", http.MethodGet, "/api/products/{id}",
		"Get a product", "Products", public), h.getProduct)
	huma.Register(api, operation("admin-list-products", http.MethodGet, "/api/admin/products",
		"Search the full catalog", "Admin", admin(auth.PermProducts)), h.adminListProducts)
	huma.Register(api, operation("admin-low-stock", http.MethodGet, "/api/admin/products/low-stock",
		"List products at or below their low-stock threshold", "Admin", admin(auth.PermInventory)), h.lowStock)
	huma.Register(api, operation("admin-get-product", http.MethodGet, "/api/admin/products/{id}",
		"Get any product", "Admin", admin(auth.PermProducts)), h.adminGetProduct)
	huma.Register(api, operation("admin-update-product", http.MethodPut, "/api/admin/products/{id}",
		"Update a product", "Admin", admin(auth.PermProducts)), h.updateProduct)
	huma.Register(api, operation("admin-delete-product", http.MethodDelete, "/api/admin/products/{id}",
		"Soft-delete a product", "Admin", admin(auth.PermProducts)), h.deleteProduct)

	create := operation("admin-create-product", http.MethodPost, "/api/admin/products",
		"Create a product", "Admin", admin(auth.PermProducts))
	create.DefaultStatus = http.StatusCreated
	huma.Register(api, create, h.createProduct)

	huma.Register(api, operation("admin-adjust-stock", http.MethodPatch, "/api/admin/products/{id}/stock",
		"Adjust product stock", "Admin", admin(auth.PermInventory)), h.adjustStock)
	huma.Register(api, operation("admin-stock-history", http.MethodGet, "/api/admin/products/{id}/stock/history",
		"List recent stock adjustments", "Admin", admin(auth.PermInventory)), h.stockHistory)
}

// ProductQuery holds the catalog filters. Optional booleans and prices are
// strings so that an absent parameter is distinguishable from a zero value.
type ProductQuery struct {
	Page     int    `query:"page"`
	Limit    int    `query:"limit"`
	Sort     string `query:"sort" doc:"newest, oldest, price_low, price_high, name_asc, name_desc, rating, popular or relevance"`
	Search   string `query:"search"`
	Brand    string `query:"brand"`
	Category string `query:"category"`
	MinPrice string `query:"minPrice"`
	MaxPrice string `query:"maxPrice"`
	InStock  string `query:"inStock"`
	Featured string `query:"featured"`
	Trending string `query:"trending"`
}

func parseBool(name, v string) (*bool, error) {
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, apperr.Validation("Invalid %s: %s", name, v)
	}
	return &b, nil
}

func parseDecimal(name, v string) (*decimal.Decimal, error) {
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return nil, apperr.Validation("Invalid %s: %s", name, v)
	}
	return &d, nil
}

func (q ProductQuery) filter() (product.Filter, error) {
	f := product.Filter{
		Brand:      q.Brand,
		CategoryID: q.Category,
		Search:     q.Search,
		Sort:       product.Sort(q.Sort),
		Page:       q.Page,
		Limit:      q.Limit,
	}
	var err error
	if f.MinPrice, err = parseDecimal("minPrice", q.MinPrice); err != nil {
		return f, err
	}
	if f.MaxPrice, err = parseDecimal("maxPrice", q.MaxPrice); err != nil {
		return f, err
	}
	if f.InStock, err = parseBool("inStock", q.InStock); err != nil {
		return f, err
	}
	if f.Featured, err = parseBool("featured", q.Featured); err != nil {
		return f, err
	}
	if f.Trending, err = parseBool("trending", q.Trending); err != nil {
		return f, err
	}
	return f, nil
}

type ListProductsInput struct {
	ProductQuery
}

type AdminListProductsInput struct {
	ProductQuery
	Status     string `query:"status"`
	Visibility string `query:"visibility"`
}

type ProductIDInput struct {
	ID string `path:"id"`
}

func (h *Handler) listProducts(ctx context.Context, in *ListProductsInput) (*Response[ProductPageView], error) {
	f, err := in.filter()
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	page, err := h.svc.Products.Search(ctx, f, true)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return ok(productPageView(page)), nil
}

func (h *Handler) adminListProducts(ctx context.Context, in *AdminListProductsInput) (*Response[ProductPageView], error) {
	f, err := in.filter()
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	f.Status = product.Status(in.Status)
	f.Visibility = product.Visibility(in.Visibility)
	page, err := h.svc.Products.Search(ctx, f, false)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return ok(productPageView(page)), nil
}

func (h *Handler) getProduct(ctx context.Context, in *ProductIDInput) (*Response[ProductView], error) {
	p, err := h.svc.Products.GetPublic(ctx, in.ID)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return ok(productView(p)), nil
}

func (h *Handler) adminGetProduct(ctx context.Context, in *ProductIDInput) (*Response[ProductView], error) {
	p, err := h.svc.Products.Get(ctx, in.ID)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return ok(productView(p)), nil
}

type PriceInput struct {
	Original float64 `json:"original" minimum:"0"`
	Selling  float64 `json:"selling,omitempty" minimum:"0"`
	Currency string  `json:"currency,omitempty"`
}

type DiscountInput struct {
	Type      string     `json:"type,omitempty" doc:"percentage or fixed"`
	Value     float64    `json:"value,omitempty" minimum:"0"`
	Active    bool       `json:"active,omitempty"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

type StockInput struct {
	Quantity          int   `json:"quantity,omitempty" minimum:"0"`
	LowStockThreshold int   `json:"lowStockThreshold,omitempty" minimum:"0"`
	TrackInventory    *bool `json:"trackInventory,omitempty"`
}

type ProductBody struct {
	Title       string         `json:"title"`
	SKU         string         `json:"sku,omitempty"`
	Slug        string         `json:"slug,omitempty"`
	Description string         `json:"description,omitempty"`
	Brand       string         `json:"brand,omitempty"`
	CategoryID  string         `json:"categoryId,omitempty"`
	Price       PriceInput     `json:"price"`
	Discount    *DiscountInput `json:"discount,omitempty"`
	Stock       *StockInput    `json:"stock,omitempty"`
	Status      string         `json:"status,omitempty"`
	Visibility  string         `json:"visibility,omitempty"`
	Featured    bool           `json:"featured,omitempty"`
	Trending    bool           `json:"trending,omitempty"`
}

type CreateProductInput struct {
	Body ProductBody
}

// UpdateProductInput replaces the editable fields of a product. Stock
// quantity in the body is ignored; use the stock endpoint instead.
type UpdateProductInput struct {
	ID   string `path:"id"`
	Body ProductBody
}

func (b ProductBody) product() *product.Product {
	p := &product.Product{
		SKU:         b.SKU,
		Slug:        b.Slug,
		Title:       b.Title,
		Description: b.Description,
		Brand:       b.Brand,
		CategoryID:  b.CategoryID,
		Price: product.Price{
			Original: decimal.NewFromFloat(b.Price.Original),
			Selling:  decimal.NewFromFloat(b.Price.Selling),
			Currency: b.Price.Currency,
		},
		Stock:      product.Stock{TrackInventory: true},
		Status:     product.Status(b.Status),
		Visibility: product.Visibility(b.Visibility),
		Featured:   b.Featured,
		Trending:   b.Trending,
	}
	if d := b.Discount; d != nil {
		p.Discount = product.Discount{
			Type:      product.DiscountType(d.Type),
			Value:     decimal.NewFromFloat(d.Value),
			Active:    d.Active,
			StartDate: d.StartDate,
			EndDate:   d.EndDate,
		}
	}
	if s := b.Stock; s != nil {
		p.Stock.Quantity = s.Quantity
		p.Stock.LowStockThreshold = s.LowStockThreshold
		if s.TrackInventory != nil {
			p.Stock.TrackInventory = *s.TrackInventory
		}
	}
	return p
}

func (h *Handler) createProduct(ctx context.Context, in *CreateProductInput) (*Response[ProductView], error) {
	p, err := h.svc.Products.Create(ctx, in.Body.product())
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return okMessage("Product created successfully", productView(p)), nil
}

func (h *Handler) updateProduct(ctx context.Context, in *UpdateProductInput) (*Response[ProductView], error) {
	p, err := h.svc.Products.Update(ctx, in.ID, in.Body.product())
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return okMessage("Product updated successfully", productView(p)), nil
}

func (h *Handler) deleteProduct(ctx context.Context, in *ProductIDInput) (*MessageResponse, error) {
	if err := h.svc.Products.Delete(ctx, in.ID); err != nil {
		return nil, h.fail(ctx, err)
	}
	return message("Product deleted successfully"), nil
}

type LowStockInput struct {
	Limit int `query:"limit"`
}

func (h *Handler) lowStock(ctx context.Context, in *LowStockInput) (*Response[[]ProductView], error) {
	ps, err := h.svc.Products.LowStock(ctx, in.Limit)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	out := make([]ProductView, len(ps))
	for i := range ps {
		out[i] = productView(&ps[i])
	}
	return ok(out), nil
}

type AdjustStockInput struct {
	ID   string `path:"id"`
	Body struct {
		Operation string `json:"operation" doc:"add, subtract or set"`
		Quantity  int    `json:"quantity" minimum:"0"`
		Reason    string `json:"reason,omitempty" maxLength:"500"`
	}
}

func (h *Handler) adjustStock(ctx context.Context, in *AdjustStockInput) (*Response[AdjustmentView], error) {
	p := principal(ctx)
	actor := p.Email
	if actor == "" {
		actor = p.SubjectID
	}
	adj, err := h.svc.Stock.Adjust(ctx, inventory.AdjustRequest{
		ProductID: in.ID,
		Op:        inventory.Op(in.Body.Operation),
		Quantity:  in.Body.Quantity,
		Reason:    in.Body.Reason,
		Actor:     actor,
	})
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return okMessage("Stock updated successfully", adjustmentView(adj)), nil
}

type StockHistoryInput struct {
	ID    string `path:"id"`
	Limit int    `query:"limit"`
}

func (h *Handler) stockHistory(ctx context.Context, in *StockHistoryInput) (*Response[[]AdjustmentView], error) {
	history, err := h.svc.Stock.History(ctx, in.ID, in.Limit)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	out := make([]AdjustmentView, len(history))
	for i := range history {
		out[i] = adjustmentView(&history[i])
	}
	return ok(out), nil
}
