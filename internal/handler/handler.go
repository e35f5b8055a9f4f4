// Package handler exposes the storefront services over a huma REST API.
package handler

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/wishlist"
	"github.com/xenking/storefront/internal/registration"
)

// ProductService is the catalog used by the product endpoints.
type ProductService interface {
	Create(ctx context.Context, p *product.Product) (*product.Product, error)
	Get(ctx context.Context, id string) (*product.Product, error)
	GetPublic(ctx context.Context, id string) (*product.Product, error)
	Search(ctx context.Context, f product.Filter, public bool) (*product.Page, error)
	Update(ctx context.Context, id string, p *product.Product) (*product.Product, error)
	Delete(ctx context.Context, id string) error
	LowStock(ctx context.Context, limit int) ([]product.Product, error)
}

// StockService applies admin stock corrections and reads their audit trail.
type StockService interface {
	Adjust(ctx context.Context, req inventory.AdjustRequest) (*inventory.Adjustment, error)
	History(ctx context.Context, productID string, limit int) ([]inventory.Adjustment, error)
}

// CartService manages the caller's cart.
type CartService interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
	Add(ctx context.Context, userID string, req cart.AddRequest) (*cart.Cart, error)
	UpdateQuantity(ctx context.Context, userID, itemID string, qty int) (*cart.Cart, error)
	RemoveItem(ctx context.Context, userID, itemID string) (*cart.Cart, error)
	Clear(ctx context.Context, userID string) error
	Validate(ctx context.Context, userID string) (*cart.Cart, []cart.Violation, error)
}

// WishlistService manages the caller's wishlist.
type WishlistService interface {
	Get(ctx context.Context, userID string) (*wishlist.Wishlist, error)
	Add(ctx context.Context, userID, productID string) (*wishlist.Wishlist, error)
	Remove(ctx context.Context, userID, productID string) (*wishlist.Wishlist, error)
	MoveToCart(ctx context.Context, userID, productID string, qty int) (*cart.Cart, error)
}

// OrderService is the customer side of the order lifecycle.
type OrderService interface {
	Create(ctx context.Context, req order.CreateRequest) (*order.CreateResult, error)
	Get(ctx context.Context, userID, orderID string) (*order.Order, error)
	ListForUser(ctx context.Context, userID string, page, limit int) (*order.List, error)
	Cancel(ctx context.Context, userID, orderID, reason string) (*order.Order, error)
}

// AdminOrderService is the staff side of the order lifecycle.
type AdminOrderService interface {
	Update(ctx context.Context, orderID string, req order.UpdateRequest) (*order.Order, error)
	Get(ctx context.Context, orderID string) (*order.Order, error)
	List(ctx context.Context, f order.AdminFilter) (*order.AdminList, error)
	Dashboard(ctx context.Context) (*order.Dashboard, error)
}

// Authenticator resolves a raw API key to a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*auth.Principal, error)
}

// AccountService signs customers in.
type AccountService interface {
	Login(ctx context.Context, email, password string) (*auth.Session, error)
}

// Registrar runs the two-step sign-up.
type Registrar interface {
	Start(ctx context.Context, req registration.StartRequest) error
	Verify(ctx context.Context, email, code string) (*auth.Session, error)
}

// Services are the dependencies of Handler. Every field is required.
type Services struct {
	Products     ProductService
	Stock        StockService
	Carts        CartService
	Wishlists    WishlistService
	Orders       OrderService
	AdminOrders  AdminOrderService
	Keys         Authenticator
	Accounts     AccountService
	Registration Registrar
}

// Handler registers the storefront operations on a huma API.
type Handler struct {
	svc Services
}

// New creates a Handler.
func New(svc Services) *Handler {
	return &Handler{svc: svc}
}

// NewAPI creates a huma API served by r.
func NewAPI(r chi.Router, version string) huma.API {
	huma.NewError = newError

	cfg := huma.DefaultConfig("Storefront API", version)
	if cfg.Components.SecuritySchemes == nil {
		cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	cfg.Components.SecuritySchemes[securityScheme] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: apiKeyHeader,
	}
	return humachi.New(r, cfg)
}

// Register adds the authentication middleware and every operation to api.
func (h *Handler) Register(api huma.API) {
	api.UseMiddleware(h.authenticate(api))

	h.registerProducts(api)
	h.registerCart(api)
	h.registerWishlist(api)
	h.registerOrders(api)
	h.registerAdminOrders(api)
	h.registerAccounts(api)
}

// operation describes an endpoint together with the access it requires.
func operation(id, method, path, summary, tag string, a access) huma.Operation {
	op := huma.Operation{
		OperationID: id,
		Method:      method,
		Path:        path,
		Summary:     summary,
		Tags:        []string{tag},
		Metadata:    map[string]any{metaAccess: a},
	}
	if a.level != levelPublic {
		op.Security = []map[string][]string{{securityScheme: {}}}
		op.Errors = append(op.Errors, http.StatusUnauthorized)
	}
	if a.level == levelAdmin {
		op.Errors = append(op.Errors, http.StatusForbidden)
	}
	return op
}
