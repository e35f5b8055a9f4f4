package handler

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) registerWishlist(api huma.API) {
	huma.Register(api, operation("get-wishlist", http.MethodGet, "/api/wishlist",
		"Get the wishlist", "Wishlist", customer), h.getWishlist)
	huma.Register(api, operation("add-wishlist-item", http.MethodPost, "/api/wishlist",
		"Add a product to the wishlist", "Wishlist", customer), h.addWishlistItem)
	huma.Register(api, operation("remove-wishlist-item", http.MethodDelete, "/api/wishlist/{productId}",
		"Remove a product from the wishlist", "Wishlist", customer), h.removeWishlistItem)
	huma.Register(api, operation("move-wishlist-item", http.MethodPost, "/api/wishlist/{productId}/move-to-cart",
		"Move a wishlist product into the cart", "Wishlist", customer), h.moveWishlistItem)
}

type AddWishlistItemInput struct {
	Body struct {
		ProductID string `json:"productId"`
	}
}

type WishlistItemInput struct {
	ProductID string `path:"productId"`
}

type MoveWishlistItemInput struct {
	ProductID string `path:"productId"`
	Body      *struct {
		Quantity int `json:"quantity,omitempty" minimum:"1"`
	}
}

func (h *Handler) getWishlist(ctx context.Context, _ *EmptyInput) (*Response[WishlistView], error) {
	w, err := h.svc.Wishlists.Get(ctx, principal(ctx).SubjectID)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return ok(wishlistView(w)), nil
}

func (h *Handler) addWishlistItem(ctx context.Context, in *AddWishlistItemInput) (*Response[WishlistView], error) {
	w, err := h.svc.Wishlists.Add(ctx, principal(ctx).SubjectID, in.Body.ProductID)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return okMessage("Product added to wishlist", wishlistView(w)), nil
}

func (h *Handler) removeWishlistItem(ctx context.Context, in *WishlistItemInput) (*Response[WishlistView], error) {
	w, err := h.svc.Wishlists.Remove(ctx, principal(ctx).SubjectID, in.ProductID)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return okMessage("Product removed from wishlist", wishlistView(w)), nil
}

func (h *Handler) moveWishlistItem(ctx context.Context, in *MoveWishlistItemInput) (*Response[CartView], error) {
	qty := 1
	if in.Body != nil && in.Body.Quantity > 0 {
		qty = in.Body.Quantity
	}
	c, err := h.svc.Wishlists.MoveToCart(ctx, principal(ctx).SubjectID, in.ProductID, qty)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return okMessage("Product moved to cart", cartView(c)), nil
}
