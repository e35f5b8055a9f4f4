package handler

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/xenking/storefront/internal/domain/cart"
)

func (h *Handler) registerCart(api huma.API) {
	huma.Register(api, operation("get-cart", http.MethodGet, "/api/cart",
		"Get the cart", "Cart", customer), h.getCart)
	huma.Register(api, operation("add-cart-item", http.MethodPost, "/api/cart/items",
		"Add a product to the cart", "Cart", customer), h.addCartItem)
	huma.Register(api, operation("update-cart-item", http.MethodPatch, "/api/cart/items/{itemId}",
		"Change a cart line quantity", "Cart", customer), h.updateCartItem)
	huma.Register(api, operation("remove-cart-item", http.MethodDelete, "/api/cart/items/{itemId}",
		"Remove a cart line", "Cart", customer), h.removeCartItem)
	huma.Register(api, operation("clear-cart", http.MethodDelete, "/api/cart",
		"Empty the cart", "Cart", customer), h.clearCart)
	huma.Register(api, operation("validate-cart", http.MethodGet, "/api/cart/validate",
		"Check the cart against the catalog", "Cart", customer), h.validateCart)
}

type EmptyInput struct{}

type AddCartItemInput struct {
	Body struct {
		ProductID string            `json:"productId"`
		Quantity  int               `json:"quantity,omitempty" minimum:"0"`
		Variants  map[string]string `json:"variants,omitempty"`
	}
}

type CartItemInput struct {
	ItemID string `path:"itemId"`
}

type UpdateCartItemInput struct {
	ItemID string `path:"itemId"`
	Body   struct {
		Quantity int `json:"quantity"`
	}
}

func (h *Handler) getCart(ctx context.Context, _ *EmptyInput) (*Response[CartView], error) {
	c, err := h.svc.Carts.Get(ctx, principal(ctx).SubjectID)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return ok(cartView(c)), nil
}

func (h *Handler) addCartItem(ctx context.Context, in *AddCartItemInput) (*Response[CartView], error) {
	qty := in.Body.Quantity
	if qty == 0 {
		qty = 1
	}
	c, err := h.svc.Carts.Add(ctx, principal(ctx).SubjectID, cart.AddRequest{
		ProductID: in.Body.ProductID,
		Quantity:  qty,
		Variants:  in.Body.Variants,
	})
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return okMessage("Item added to cart", cartView(c)), nil
}

func (h *Handler) updateCartItem(ctx context.Context, in *UpdateCartItemInput) (*Response[CartView], error) {
	c, err := h.svc.Carts.UpdateQuantity(ctx, principal(ctx).SubjectID, in.ItemID, in.Body.Quantity)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return okMessage("Cart updated", cartView(c)), nil
}

func (h *Handler) removeCartItem(ctx context.Context, in *CartItemInput) (*Response[CartView], error) {
	c, err := h.svc.Carts.RemoveItem(ctx, principal(ctx).SubjectID, in.ItemID)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return okMessage("Item removed from cart", cartView(c)), nil
}

func (h *Handler) clearCart(ctx context.Context, _ *EmptyInput) (*MessageResponse, error) {
	if err := h.svc.Carts.Clear(ctx, principal(ctx).SubjectID); err != nil {
		return nil, h.fail(ctx, err)
	}
	return message("Cart cleared"), nil
}

func (h *Handler) validateCart(ctx context.Context, _ *EmptyInput) (*Response[CartValidationView], error) {
	c, violations, err := h.svc.Carts.Validate(ctx, principal(ctx).SubjectID)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	if violations == nil {
		violations = []cart.Violation{}
	}
	return ok(CartValidationView{
		Valid:  len(violations) == 0,
		Issues: violations,
		Cart:   cartView(c),
	}), nil
}
