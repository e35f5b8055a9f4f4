// Package notify publishes customer notification events. Delivery (email,
// SMS) is done by downstream consumers of the event stream.
package notify

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/order"
)

// EventType names a notification.
type EventType string

const (
	EventOrderConfirmed     EventType = "order.confirmed"
	EventOrderCancelled     EventType = "order.cancelled"
	EventOrderStatusUpdated EventType = "order.status_updated"
	EventRegistrationCode   EventType = "registration.code"
)

// EventItem is an order line as shown to the customer.
type EventItem struct {
	Title    string
	Quantity int
	Price    string
}

// Event is a notification request. Fields not relevant to Type are empty.
type Event struct {
	Type  EventType
	At    time.Time
	Email string
	Name  string

	OrderID     string
	OrderNumber string
	Total       string
	Items       []EventItem

	Status                 string
	PreviousStatus         string
	ShippingStatus         string
	PreviousShippingStatus string
	TrackingID             string
	AWBNumber              string
	CourierName            string
	Reason                 string

	Code string
}

// Key is the partitioning key: the order for order events, the email
// otherwise.
func (e *Event) Key() string {
	if e.OrderID != "" {
		return e.OrderID
	}
	return e.Email
}

func orderEvent(t EventType, o *order.Order, at time.Time) Event {
	items := make([]EventItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = EventItem{Title: it.Title, Quantity: it.Quantity, Price: it.Price.StringFixed(2)}
	}
	return Event{
		Type:           t,
		At:             at,
		Email:          o.CustomerEmail,
		Name:           o.CustomerName,
		OrderID:        o.ID,
		OrderNumber:    o.Number,
		Total:          o.Total.StringFixed(2),
		Items:          items,
		Status:         string(o.Status),
		ShippingStatus: string(o.Shipping.Status),
		TrackingID:     o.Shipping.TrackingID,
		AWBNumber:      o.Shipping.AWBNumber,
		CourierName:    o.Shipping.CourierName,
	}
}

func strField(e *jx.Encoder, name, v string) {
	if v == "" {
		return
	}
	e.FieldStart(name)
	e.Str(v)
}

// Encode writes e as a JSON object.
func (e *Event) Encode(enc *jx.Encoder) {
	enc.ObjStart()
	enc.FieldStart("type")
	enc.Str(string(e.Type))
	enc.FieldStart("at")
	enc.Str(e.At.UTC().Format(time.RFC3339Nano))
	strField(enc, "email", e.Email)
	strField(enc, "name", e.Name)
	strField(enc, "order_id", e.OrderID)
	strField(enc, "order_number", e.OrderNumber)
	strField(enc, "total", e.Total)
	if len(e.Items) > 0 {
		enc.FieldStart("items")
		enc.ArrStart()
		for _, it := range e.Items {
			enc.ObjStart()
			enc.FieldStart("title")
			enc.Str(it.Title)
			enc.FieldStart("quantity")
			enc.Int(it.Quantity)
			enc.FieldStart("price")
			enc.Str(it.Price)
			enc.ObjEnd()
		}
		enc.ArrEnd()
	}
	strField(enc, "status", e.Status)
	strField(enc, "previous_status", e.PreviousStatus)
	strField(enc, "shipping_status", e.ShippingStatus)
	strField(enc, "previous_shipping_status", e.PreviousShippingStatus)
	strField(enc, "tracking_id", e.TrackingID)
	strField(enc, "awb_number", e.AWBNumber)
	strField(enc, "courier_name", e.CourierName)
	strField(enc, "reason", e.Reason)
	strField(enc, "code", e.Code)
	enc.ObjEnd()
}

// Bytes returns the JSON encoding of e.
func (e *Event) Bytes() []byte {
	var enc jx.Encoder
	e.Encode(&enc)
	return enc.Bytes()
}

// Decode reads an event written by Encode. Unknown fields are skipped.
func (e *Event) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "type":
			var s string
			s, err = d.Str()
			e.Type = EventType(s)
		case "at":
			var s string
			if s, err = d.Str(); err == nil {
				e.At, err = time.Parse(time.RFC3339Nano, s)
			}
		case "email":
			e.Email, err = d.Str()
		case "name":
			e.Name, err = d.Str()
		case "order_id":
			e.OrderID, err = d.Str()
		case "order_number":
			e.OrderNumber, err = d.Str()
		case "total":
			e.Total, err = d.Str()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				var it EventItem
				if err := it.decode(d); err != nil {
					return err
				}
				e.Items = append(e.Items, it)
				return nil
			})
		case "status":
			e.Status, err = d.Str()
		case "previous_status":
			e.PreviousStatus, err = d.Str()
		case "shipping_status":
			e.ShippingStatus, err = d.Str()
		case "previous_shipping_status":
			e.PreviousShippingStatus, err = d.Str()
		case "tracking_id":
			e.TrackingID, err = d.Str()
		case "awb_number":
			e.AWBNumber, err = d.Str()
		case "courier_name":
			e.CourierName, err = d.Str()
		case "reason":
			e.Reason, err = d.Str()
		case "code":
			e.Code, err = d.Str()
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "field %q", key)
	})
}

func (it *EventItem) decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "title":
			it.Title, err = d.Str()
		case "quantity":
			it.Quantity, err = d.Int()
		case "price":
			it.Price, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

// DecodeEvent parses a message value.
func DecodeEvent(data []byte) (*Event, error) {
	var e Event
	if err := e.Decode(jx.DecodeBytes(data)); err != nil {
		return nil, errors.Wrap(err, "decode event")
	}
	return &e, nil
}
