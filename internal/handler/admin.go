package handler

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/order"
)

func (h *Handler) registerAdminOrders(api huma.API) {
	perm := admin(auth.PermOrders)
	huma.Register(api, operation("admin-list-orders", http.MethodGet, "/api/admin/orders",
		"List orders with per-status totals", "Admin", perm), h.adminListOrders)
	huma.Register(api, operation("admin-order-stats", http.MethodGet, "/api/admin/orders/stats",
		"Order dashboard", "Admin", perm), h.adminOrderStats)
	huma.Register(api, operation("admin-get-order", http.MethodGet, "/api/admin/orders/{id}",
		"Get any order", "Admin", perm), h.adminGetOrder)
	huma.Register(api, operation("admin-update-order", http.MethodPatch, "/api/admin/orders/{id}",
		"Update order, shipping and payment status", "Admin", perm), h.adminUpdateOrder)
}

type AdminListOrdersInput struct {
	Status string `query:"status"`
	Search string `query:"search" doc:"Order number or shipping phone"`
	Page   int    `query:"page"`
	Limit  int    `query:"limit"`
}

type AdminUpdateOrderInput struct {
	ID   string `path:"id"`
	Body struct {
		Status         string `json:"status,omitempty"`
		ShippingStatus string `json:"shippingStatus,omitempty"`
		TrackingID     string `json:"trackingId,omitempty"`
		AWBNumber      string `json:"awbNumber,omitempty"`
		CourierName    string `json:"courierName,omitempty"`
		PaymentStatus  string `json:"paymentStatus,omitempty"`
		TransactionID  string `json:"transactionId,omitempty"`
		Notes          string `json:"notes,omitempty" maxLength:"1000"`
	}
}

func (h *Handler) adminListOrders(ctx context.Context, in *AdminListOrdersInput) (*Response[AdminOrderListView], error) {
	list, err := h.svc.AdminOrders.List(ctx, order.AdminFilter{
		Status: order.Status(in.Status),
		Search: in.Search,
		Page:   in.Page,
		Limit:  in.Limit,
	})
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return ok(AdminOrderListView{
		Orders:     orderViews(list.Orders),
		Pagination: paginate(list.Page, list.Limit, list.Total),
		Stats:      statusStatViews(list.Stats),
	}), nil
}

func (h *Handler) adminOrderStats(ctx context.Context, _ *EmptyInput) (*Response[DashboardView], error) {
	d, err := h.svc.AdminOrders.Dashboard(ctx)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return ok(dashboardView(d)), nil
}

func (h *Handler) adminGetOrder(ctx context.Context, in *OrderIDInput) (*Response[OrderView], error) {
	o, err := h.svc.AdminOrders.Get(ctx, in.ID)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return ok(orderView(o)), nil
}

func (h *Handler) adminUpdateOrder(ctx context.Context, in *AdminUpdateOrderInput) (*Response[OrderView], error) {
	b := in.Body
	o, err := h.svc.AdminOrders.Update(ctx, in.ID, order.UpdateRequest{
		Status:         order.Status(b.Status),
		ShippingStatus: order.ShippingStatus(b.ShippingStatus),
		TrackingID:     b.TrackingID,
		AWBNumber:      b.AWBNumber,
		CourierName:    b.CourierName,
		PaymentStatus:  order.PaymentStatus(b.PaymentStatus),
		TransactionID:  b.TransactionID,
		Notes:          b.Notes,
	})
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return okMessage("Order updated successfully", orderView(o)), nil
}
