package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/wishlist"
)

// Envelope is the success response body.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

// Response is a huma output carrying an Envelope. A zero Status means the
// operation default.
type Response[T any] struct {
	Status int
	Body   Envelope[T]
}

func ok[T any](data T) *Response[T] {
	return &Response[T]{Body: Envelope[T]{Success: true, Data: data}}
}

func okMessage[T any](msg string, data T) *Response[T] {
	r := ok(data)
	r.Body.Message = msg
	return r
}

// MessageResponse is a success envelope without data.
type MessageResponse struct {
	Body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
}

func message(msg string) *MessageResponse {
	r := &MessageResponse{}
	r.Body.Success = true
	r.Body.Message = msg
	return r
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// Pagination describes the position of a page in a listing.
type Pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"hasNext"`
}

func paginate(page, limit, total int) Pagination {
	p := Pagination{Page: page, Limit: limit, Total: total}
	if limit > 0 {
		p.Pages = (total + limit - 1) / limit
	}
	p.HasNext = page < p.Pages
	return p
}

type PriceView struct {
	Original float64 `json:"original"`
	Selling  float64 `json:"selling"`
	Currency string  `json:"currency"`
}

type DiscountView struct {
	Type      string     `json:"type"`
	Value     float64    `json:"value"`
	Active    bool       `json:"active"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

type StockView struct {
	Quantity          int    `json:"quantity"`
	Reserved          int    `json:"reserved"`
	Available         int    `json:"available"`
	LowStockThreshold int    `json:"lowStockThreshold"`
	TrackInventory    bool   `json:"trackInventory"`
	Status            string `json:"status"`
}

type AnalyticsView struct {
	Views         int `json:"views"`
	Purchases     int `json:"purchases"`
	WishlistCount int `json:"wishlistCount"`
}

type ProductView struct {
	ID          string        `json:"id"`
	SKU         string        `json:"sku"`
	Slug        string        `json:"slug"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Brand       string        `json:"brand,omitempty"`
	CategoryID  string        `json:"categoryId,omitempty"`
	Price       PriceView     `json:"price"`
	Discount    DiscountView  `json:"discount"`
	Stock       StockView     `json:"stock"`
	Status      string        `json:"status"`
	Visibility  string        `json:"visibility"`
	Featured    bool          `json:"featured"`
	Trending    bool          `json:"trending"`
	Analytics   AnalyticsView `json:"analytics"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

func productView(p *product.Product) ProductView {
	return ProductView{
		ID:          p.ID,
		SKU:         p.SKU,
		Slug:        p.Slug,
		Title:       p.Title,
		Description: p.Description,
		Brand:       p.Brand,
		CategoryID:  p.CategoryID,
		Price: PriceView{
			Original: money(p.Price.Original),
			Selling:  money(p.Price.Selling),
			Currency: p.Price.Currency,
		},
		Discount: DiscountView{
			Type:      string(p.Discount.Type),
			Value:     p.Discount.Value.InexactFloat64(),
			Active:    p.Discount.Active,
			StartDate: p.Discount.StartDate,
			EndDate:   p.Discount.EndDate,
		},
		Stock: StockView{
			Quantity:          p.Stock.Quantity,
			Reserved:          p.Stock.Reserved,
			Available:         p.AvailableStock(),
			LowStockThreshold: p.Stock.LowStockThreshold,
			TrackInventory:    p.Stock.TrackInventory,
			Status:            string(p.StockStatus()),
		},
		Status:     string(p.Status),
		Visibility: string(p.Visibility),
		Featured:   p.Featured,
		Trending:   p.Trending,
		Analytics: AnalyticsView{
			Views:         p.Analytics.Views,
			Purchases:     p.Analytics.Purchases,
			WishlistCount: p.Analytics.WishlistCount,
		},
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type ProductPageView struct {
	Products   []ProductView `json:"products"`
	Pagination Pagination    `json:"pagination"`
}

func productPageView(p *product.Page) ProductPageView {
	out := ProductPageView{
		Products:   make([]ProductView, len(p.Products)),
		Pagination: paginate(p.Page, p.Limit, p.Total),
	}
	for i := range p.Products {
		out.Products[i] = productView(&p.Products[i])
	}
	return out
}

type AdjustmentView struct {
	ProductID        string    `json:"productId"`
	Operation        string    `json:"operation"`
	Quantity         int       `json:"quantity"`
	PreviousQuantity int       `json:"previousQuantity"`
	NewQuantity      int       `json:"newQuantity"`
	Reason           string    `json:"reason,omitempty"`
	AdjustedBy       string    `json:"adjustedBy"`
	AdjustedAt       time.Time `json:"adjustedAt"`
}

func adjustmentView(a *inventory.Adjustment) AdjustmentView {
	return AdjustmentView{
		ProductID:        a.ProductID,
		Operation:        string(a.Op),
		Quantity:         a.Quantity,
		PreviousQuantity: a.Previous,
		NewQuantity:      a.Current,
		Reason:           a.Reason,
		AdjustedBy:       a.Actor,
		AdjustedAt:       a.At,
	}
}

type CartItemView struct {
	ID        string            `json:"id"`
	ProductID string            `json:"productId"`
	Quantity  int               `json:"quantity"`
	Price     float64           `json:"price"`
	Subtotal  float64           `json:"subtotal"`
	Variants  map[string]string `json:"variants,omitempty"`
	AddedAt   time.Time         `json:"addedAt"`
}

type CartView struct {
	Items      []CartItemView `json:"items"`
	TotalItems int            `json:"totalItems"`
	Subtotal   float64        `json:"subtotal"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

func cartView(c *cart.Cart) CartView {
	out := CartView{
		Items:      make([]CartItemView, len(c.Items)),
		TotalItems: c.TotalItems(),
		Subtotal:   money(c.Subtotal()),
		UpdatedAt:  c.UpdatedAt,
	}
	for i, it := range c.Items {
		out.Items[i] = CartItemView{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     money(it.Price),
			Subtotal:  money(it.Subtotal()),
			Variants:  it.Variants,
			AddedAt:   it.AddedAt,
		}
	}
	return out
}

type CartValidationView struct {
	Valid  bool             `json:"valid"`
	Issues []cart.Violation `json:"issues"`
	Cart   CartView         `json:"cart"`
}

type WishlistItemView struct {
	ProductID string    `json:"productId"`
	AddedAt   time.Time `json:"addedAt"`
}

type WishlistView struct {
	Items      []WishlistItemView `json:"items"`
	TotalItems int                `json:"totalItems"`
}

func wishlistView(w *wishlist.Wishlist) WishlistView {
	out := WishlistView{
		Items:      make([]WishlistItemView, len(w.Items)),
		TotalItems: w.TotalItems(),
	}
	for i, it := range w.Items {
		out.Items[i] = WishlistItemView{ProductID: it.ProductID, AddedAt: it.AddedAt}
	}
	return out
}

type OrderItemView struct {
	ProductID string            `json:"productId"`
	Title     string            `json:"title"`
	Quantity  int               `json:"quantity"`
	Price     float64           `json:"price"`
	Subtotal  float64           `json:"subtotal"`
	Variants  map[string]string `json:"variants,omitempty"`
}

type PaymentView struct {
	Method        string     `json:"method"`
	Status        string     `json:"status"`
	Amount        float64    `json:"amount"`
	TransactionID string     `json:"transactionId,omitempty"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
}

type ShippingView struct {
	Status            string     `json:"status"`
	Cost              float64    `json:"cost"`
	TrackingID        string     `json:"trackingId,omitempty"`
	AWBNumber         string     `json:"awbNumber,omitempty"`
	CourierName       string     `json:"courierName,omitempty"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
	ActualDelivery    *time.Time `json:"actualDelivery,omitempty"`
}

type OrderView struct {
	ID               string          `json:"id"`
	OrderNumber      string          `json:"orderNumber"`
	UserID           string          `json:"userId"`
	CustomerEmail    string          `json:"customerEmail,omitempty"`
	CustomerName     string          `json:"customerName,omitempty"`
	Items            []OrderItemView `json:"items"`
	TotalItems       int             `json:"totalItems"`
	ShippingAddress  order.Address   `json:"shippingAddress"`
	BillingAddress   order.Address   `json:"billingAddress"`
	Payment          PaymentView     `json:"payment"`
	Shipping         ShippingView    `json:"shipping"`
	Status           string          `json:"status"`
	Subtotal         float64         `json:"subtotal"`
	Total            float64         `json:"total"`
	Notes            []order.Note    `json:"notes,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	DeliveredAt      *time.Time      `json:"deliveredAt,omitempty"`
	CancelledAt      *time.Time      `json:"cancelledAt,omitempty"`
	ExpectedDelivery *time.Time      `json:"expectedDelivery,omitempty"`
}

func orderView(o *order.Order) OrderView {
	items := make([]OrderItemView, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemView{
			ProductID: it.ProductID,
			Title:     it.Title,
			Quantity:  it.Quantity,
			Price:     money(it.Price),
			Subtotal:  money(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))),
			Variants:  it.Variants,
		}
	}
	return OrderView{
		ID:              o.ID,
		OrderNumber:     o.Number,
		UserID:          o.UserID,
		CustomerEmail:   o.CustomerEmail,
		CustomerName:    o.CustomerName,
		Items:           items,
		TotalItems:      o.TotalItems(),
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.BillingAddress,
		Payment: PaymentView{
			Method:        string(o.Payment.Method),
			Status:        string(o.Payment.Status),
			Amount:        money(o.Payment.Amount),
			TransactionID: o.Payment.TransactionID,
			PaidAt:        o.Payment.PaidAt,
		},
		Shipping: ShippingView{
			Status:            string(o.Shipping.Status),
			Cost:              money(o.Shipping.Cost),
			TrackingID:        o.Shipping.TrackingID,
			AWBNumber:         o.Shipping.AWBNumber,
			CourierName:       o.Shipping.CourierName,
			EstimatedDelivery: o.Shipping.EstimatedDelivery,
			ActualDelivery:    o.Shipping.ActualDelivery,
		},
		Status:           string(o.Status),
		Subtotal:         money(o.Subtotal),
		Total:            money(o.Total),
		Notes:            o.Notes,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
		DeliveredAt:      o.DeliveredAt,
		CancelledAt:      o.CancelledAt,
		ExpectedDelivery: o.ExpectedDelivery,
	}
}

func orderViews(orders []order.Order) []OrderView {
	out := make([]OrderView, len(orders))
	for i := range orders {
		out[i] = orderView(&orders[i])
	}
	return out
}

type OrderListView struct {
	Orders     []OrderView `json:"orders"`
	Pagination Pagination  `json:"pagination"`
}

type StatusStatView struct {
	Status      string  `json:"status"`
	Count       int     `json:"count"`
	TotalAmount float64 `json:"totalAmount"`
}

func statusStatViews(stats []order.StatusStat) []StatusStatView {
	out := make([]StatusStatView, len(stats))
	for i, s := range stats {
		out[i] = StatusStatView{Status: string(s.Status), Count: s.Count, TotalAmount: money(s.TotalAmount)}
	}
	return out
}

type AdminOrderListView struct {
	Orders     []OrderView      `json:"orders"`
	Pagination Pagination       `json:"pagination"`
	Stats      []StatusStatView `json:"stats"`
}

type DashboardView struct {
	TotalOrders       int              `json:"totalOrders"`
	TodayOrders       int              `json:"todayOrders"`
	WeekOrders        int              `json:"weekOrders"`
	MonthOrders       int              `json:"monthOrders"`
	TotalRevenue      float64          `json:"totalRevenue"`
	AverageOrderValue float64          `json:"averageOrderValue"`
	PaidRevenue       float64          `json:"paidRevenue"`
	StatusStats       []StatusStatView `json:"statusStats"`
	RecentOrders      []OrderView      `json:"recentOrders"`
}

func dashboardView(d *order.Dashboard) DashboardView {
	return DashboardView{
		TotalOrders:       d.TotalOrders,
		TodayOrders:       d.TodayOrders,
		WeekOrders:        d.WeekOrders,
		MonthOrders:       d.MonthOrders,
		TotalRevenue:      money(d.TotalRevenue),
		AverageOrderValue: money(d.AverageOrderValue),
		PaidRevenue:       money(d.PaidRevenue),
		StatusStats:       statusStatViews(d.StatusStats),
		RecentOrders:      orderViews(d.Recent),
	}
}

type CustomerView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

type SessionView struct {
	APIKey   string       `json:"apiKey"`
	Customer CustomerView `json:"customer"`
}

func sessionView(s *auth.Session) SessionView {
	v := SessionView{APIKey: s.APIKey}
	if c := s.Customer; c != nil {
		v.Customer = CustomerView{ID: c.ID, Email: c.Email, Name: c.Name, Phone: c.Phone}
	}
	return v
}
