package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/order"
)

func (h *Handler) registerOrders(api huma.API) {
	create := operation("create-order", http.MethodPost, "/api/orders",
		"Place an order from the cart", "Orders", customer)
	create.DefaultStatus = http.StatusCreated
	create.Errors = append(create.Errors, http.StatusBadRequest, http.StatusConflict)
	huma.Register(api, create, h.createOrder)

	huma.Register(api, operation("list-orders", http.MethodGet, "/api/orders",
		"List the caller's orders", "Orders", customer), h.listOrders)
	huma.Register(api, operation("get-order", http.MethodGet, "/api/orders/{id}",
		"Get one of the caller's orders", "Orders", customer), h.getOrder)
	huma.Register(api, operation("cancel-order", http.MethodPost, "/api/orders/{id}/cancel",
		"Cancel a pending or processing order", "Orders", customer), h.cancelOrder)
}

type CreateOrderInput struct {
	Body struct {
		ShippingAddress any    `json:"shippingAddress" doc:"Structured address or a single line"`
		PaymentMethod   string `json:"paymentMethod" doc:"cod, prepaid, wallet, netbanking, card or upi"`
		Notes           string `json:"notes,omitempty" maxLength:"500"`
	}
}

// addressInput accepts either an address object or a single line.
func addressInput(v any) (order.AddressInput, error) {
	switch a := v.(type) {
	case nil:
		return order.AddressInput{}, nil
	case string:
		return order.AddressInput{Raw: a}, nil
	case map[string]any:
		field := func(k string) string {
			switch s := a[k].(type) {
			case nil:
				return ""
			case string:
				return s
			default:
				return fmt.Sprint(s)
			}
		}
		return order.AddressInput{Address: order.Address{
			Street:   field("street"),
			City:     field("city"),
			State:    field("state"),
			Pincode:  field("pincode"),
			Country:  field("country"),
			Phone:    field("phone"),
			Landmark: field("landmark"),
			Type:     field("type"),
		}}, nil
	default:
		return order.AddressInput{}, apperr.Validation("Invalid shipping address")
	}
}

type OrderIDInput struct {
	ID string `path:"id"`
}

type ListOrdersInput struct {
	Page  int `query:"page"`
	Limit int `query:"limit"`
}

type CancelOrderInput struct {
	ID   string `path:"id"`
	Body *struct {
		Reason string `json:"reason,omitempty" maxLength:"500"`
	}
}

func (h *Handler) createOrder(ctx context.Context, in *CreateOrderInput) (*Response[OrderView], error) {
	addr, err := addressInput(in.Body.ShippingAddress)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	p := principal(ctx)
	res, err := h.svc.Orders.Create(ctx, order.CreateRequest{
		Customer: order.Customer{
			ID:    p.SubjectID,
			Email: p.Email,
			Name:  p.Name,
		},
		Address:       addr,
		PaymentMethod: order.PaymentMethod(in.Body.PaymentMethod),
		Notes:         in.Body.Notes,
	})
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	msg := "Order placed successfully"
	if res.AddressFallback {
		msg = "Order placed successfully; missing address fields were filled with placeholders"
	}
	return okMessage(msg, orderView(res.Order)), nil
}

func (h *Handler) listOrders(ctx context.Context, in *ListOrdersInput) (*Response[OrderListView], error) {
	list, err := h.svc.Orders.ListForUser(ctx, principal(ctx).SubjectID, in.Page, in.Limit)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return ok(OrderListView{
		Orders:     orderViews(list.Orders),
		Pagination: paginate(list.Page, list.Limit, list.Total),
	}), nil
}

func (h *Handler) getOrder(ctx context.Context, in *OrderIDInput) (*Response[OrderView], error) {
	o, err := h.svc.Orders.Get(ctx, principal(ctx).SubjectID, in.ID)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return ok(orderView(o)), nil
}

func (h *Handler) cancelOrder(ctx context.Context, in *CancelOrderInput) (*Response[OrderView], error) {
	var reason string
	if in.Body != nil {
		reason = in.Body.Reason
	}
	o, err := h.svc.Orders.Cancel(ctx, principal(ctx).SubjectID, in.ID, reason)
	if err != nil {
		return nil, h.fail(ctx, err)
	}
	return okMessage("Order cancelled successfully", orderView(o)), nil
}
