package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/inventory"
)

// ErrNotFound is returned when an order does not exist or belongs to another
// user.
var ErrNotFound = apperr.NotFound("Order not found")

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every order status in lifecycle order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Cancellable reports whether a customer may still cancel.
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusProcessing
}

// Terminal reports whether no further status change is allowed.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// stage orders the forward path pending, processing, shipped, delivered.
func (s Status) stage() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusShipped:
		return 2
	case StatusDelivered:
		return 3
	}
	return -1
}

// CanBecome reports whether an order in status s may move to next. Orders
// only move forward; cancellation is a side exit from pending or processing.
// Setting the current status again is always allowed.
func (s Status) CanBecome(next Status) bool {
	switch {
	case next == s:
		return true
	case s.Terminal():
		return false
	case next == StatusCancelled:
		return s.Cancellable()
	}
	return next.stage() > s.stage()
}

// ShippingStatus tracks the shipment independently of the order status.
type ShippingStatus string

const (
	ShippingProcessing     ShippingStatus = "processing"
	ShippingShipped        ShippingStatus = "shipped"
	ShippingInTransit      ShippingStatus = "in_transit"
	ShippingOutForDelivery ShippingStatus = "out_for_delivery"
	ShippingDelivered      ShippingStatus = "delivered"
	ShippingReturned       ShippingStatus = "returned"
	ShippingFailed         ShippingStatus = "failed"
)

func (s ShippingStatus) Valid() bool {
	switch s {
	case ShippingProcessing, ShippingShipped, ShippingInTransit, ShippingOutForDelivery,
		ShippingDelivered, ShippingReturned, ShippingFailed:
		return true
	}
	return false
}

// PaymentStatus is the settlement state of the order payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentUnpaid   PaymentStatus = "unpaid"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded, PaymentUnpaid:
		return true
	}
	return false
}

// PaymentMethod is how the customer intends to pay.
type PaymentMethod string

const (
	MethodCOD        PaymentMethod = "cod"
	MethodPrepaid    PaymentMethod = "prepaid"
	MethodWallet     PaymentMethod = "wallet"
	MethodNetbanking PaymentMethod = "netbanking"
	MethodCard       PaymentMethod = "card"
	MethodUPI        PaymentMethod = "upi"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCOD, MethodPrepaid, MethodWallet, MethodNetbanking, MethodCard, MethodUPI:
		return true
	}
	return false
}

// Item is an immutable order line captured from the cart.
type Item struct {
	ProductID string            `json:"productId"`
	Title     string            `json:"title"`
	Quantity  int               `json:"quantity"`
	Price     decimal.Decimal   `json:"price"`
	Variants  map[string]string `json:"variants,omitempty"`
}

// Address is a postal address.
type Address struct {
	Street   string `json:"street"`
	City     string `json:"city"`
	State    string `json:"state"`
	Pincode  string `json:"pincode"`
	Country  string `json:"country"`
	Phone    string `json:"phone"`
	Landmark string `json:"landmark,omitempty"`
	Type     string `json:"type,omitempty"`
}

// Payment holds the payment sub-state.
type Payment struct {
	Method        PaymentMethod
	Status        PaymentStatus
	Amount        decimal.Decimal
	TransactionID string
	PaidAt        *time.Time
}

// Shipping holds the shipment sub-state.
type Shipping struct {
	TrackingID        string
	AWBNumber         string
	CourierName       string
	Status            ShippingStatus
	Cost              decimal.Decimal
	EstimatedDelivery *time.Time
	ActualDelivery    *time.Time
}

// Note is an entry of the append-only order log.
type Note struct {
	At     time.Time `json:"at"`
	Author string    `json:"author"`
	Text   string    `json:"text"`
}

// Order is a placed customer order.
type Order struct {
	ID               string
	Number           string
	UserID           string
	CustomerEmail    string
	CustomerName     string
	Items            []Item
	ShippingAddress  Address
	BillingAddress   Address
	Payment          Payment
	Shipping         Shipping
	Status           Status
	Subtotal         decimal.Decimal
	Total            decimal.Decimal
	Notes            []Note
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeliveredAt      *time.Time
	CancelledAt      *time.Time
	ExpectedDelivery *time.Time
}

// TotalItems sums line quantities.
func (o *Order) TotalItems() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// Lines converts the order items into inventory lines.
func (o *Order) Lines() []inventory.Line {
	lines := make([]inventory.Line, len(o.Items))
	for i, it := range o.Items {
		lines[i] = inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return lines
}

// AddNote appends to the order log.
func (o *Order) AddNote(at time.Time, author, text string) {
	o.Notes = append(o.Notes, Note{At: at, Author: author, Text: text})
}

// Snapshot returns a deep copy safe to hand to asynchronous consumers.
func (o *Order) Snapshot() *Order {
	cp := *o
	cp.Items = make([]Item, len(o.Items))
	for i, it := range o.Items {
		cp.Items[i] = it
		if it.Variants != nil {
			cp.Items[i].Variants = make(map[string]string, len(it.Variants))
			for k, v := range it.Variants {
				cp.Items[i].Variants[k] = v
			}
		}
	}
	cp.Notes = append([]Note(nil), o.Notes...)
	return &cp
}

// StatusDelta describes what an admin update changed.
type StatusDelta struct {
	PreviousStatus         Status
	NewStatus              Status
	PreviousShippingStatus ShippingStatus
	NewShippingStatus      ShippingStatus
	HasStatusChanged       bool
	HasShippingChanged     bool
	TrackingAdded          bool
	AdminNotes             string
}

// Notify reports whether the delta warrants a customer notification.
func (d StatusDelta) Notify() bool {
	return d.HasStatusChanged || d.HasShippingChanged || d.TrackingAdded
}

// Repository persists orders. Implementations are bound to a transaction.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	// GetForUpdate loads an order and locks its row until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, o *Order) error
}

// Finder provides read-only order queries.
type Finder interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string, page, limit int) ([]Order, int, error)
	ListAdmin(ctx context.Context, f AdminFilter) ([]Order, int, error)
	StatusStats(ctx context.Context, f AdminFilter) ([]StatusStat, error)
	Dashboard(ctx context.Context, w DashboardWindow) (*Dashboard, error)
}

// CartStore is the cart access checkout needs inside a transaction.
type CartStore interface {
	// GetForUpdate loads a cart and locks it until the transaction ends, so
	// concurrent checkouts of one cart run one after the other.
	GetForUpdate(ctx context.Context, userID string) (*cart.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// UnitOfWork exposes transaction-bound stores.
type UnitOfWork interface {
	Orders() Repository
	Carts() CartStore
	Products() cart.ProductLookup
	Stock() inventory.Store
}

// Transactor runs fn inside a single storage transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

// Notifier delivers customer notifications. Implementations must not block
// for long; delivery failures are logged by callers and never propagated.
type Notifier interface {
	OrderConfirmed(ctx context.Context, o *Order) error
	OrderCancelled(ctx context.Context, o *Order, reason string) error
	OrderStatusUpdated(ctx context.Context, o *Order, delta StatusDelta) error
}

// CartInvalidator drops cached cart copies after checkout.
type CartInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}
