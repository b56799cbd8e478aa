package orders

import "time"

// Attributes is a schema-less key/value bag persisted as JSON.
type Attributes map[string]any

type LineItem struct {
	ProductID      string     `json:"product_id"`
	SellerID       string     `json:"seller_id"`
	Name           string     `json:"name"`
	SKU            string     `json:"sku"`
	UnitPriceCents int64      `json:"unit_price_cents"`
	Quantity       int        `json:"quantity"`
	Specs          Attributes `json:"specs,omitempty"`
}

func (li LineItem) TotalCents() int64 {
	return li.UnitPriceCents * int64(li.Quantity)
}

type Address struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type Tracking struct {
	TrackingNumber    string     `json:"tracking_number"`
	Carrier           string     `json:"carrier"`
	EstimatedDelivery time.Time  `json:"estimated_delivery"`
	CurrentLocation   string     `json:"current_location,omitempty"`
	ShippedAt         *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	ActualDelivery    *time.Time `json:"actual_delivery,omitempty"`
}

// StatusEvent is one row of an order's append-only timeline.
type StatusEvent struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// Order is the buyer-facing aggregate of one checkout.
type Order struct {
	ID            string        `json:"id"`
	Number        string        `json:"order_number"`
	ExternalID    string        `json:"external_id,omitempty"`
	BuyerID       string        `json:"buyer_id"`
	Items         []LineItem    `json:"items"`
	TotalCents    int64         `json:"total_cents"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Shipping      Address       `json:"shipping"`
	Tracking      Tracking      `json:"tracking"`
	History       []StatusEvent `json:"status_history"`
	Attributes    Attributes    `json:"attributes,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// LastStatusChange is the timestamp of the newest history entry, or UpdatedAt when the
// history is empty.
func (o *Order) LastStatusChange() time.Time {
	return lastChange(o.History, o.UpdatedAt)
}

type SubOrderItem struct {
	ProductID      string     `json:"product_id"`
	Name           string     `json:"name"`
	SKU            string     `json:"sku"`
	UnitPriceCents int64      `json:"unit_price_cents"`
	Quantity       int        `json:"quantity"`
	LineTotalCents int64      `json:"line_total_cents"`
	Specs          Attributes `json:"specs,omitempty"`
}

// SubOrder is one seller's share of an Order.
type SubOrder struct {
	ID           string         `json:"id"`
	Number       string         `json:"order_number"`
	ParentID     string         `json:"parent_id"`
	ParentNumber string         `json:"parent_number"`
	SellerID     string         `json:"seller_id"`
	Items        []SubOrderItem `json:"items"`
	TotalCents   int64          `json:"total_cents"`
	Status       SubOrderStatus `json:"order_status"`
	Shipping     Address        `json:"shipping"`
	Tracking     Tracking       `json:"tracking"`
	History      []StatusEvent  `json:"status_history"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (s *SubOrder) LastStatusChange() time.Time {
	return lastChange(s.History, s.UpdatedAt)
}

func lastChange(h []StatusEvent, fallback time.Time) time.Time {
	if len(h) == 0 {
		return fallback
	}
	last := h[0].Timestamp
	for _, ev := range h[1:] {
		if ev.Timestamp.After(last) {
			last = ev.Timestamp
		}
	}
	return last
}

// Transition is a conditional status write: it applies only while the stored status is
// still From. Zero-valued optional fields leave the stored value untouched.
type Transition struct {
	From          Status
	To            Status
	Event         StatusEvent
	PaymentStatus PaymentStatus
	Tracking      *Tracking
}

type SubOrderTransition struct {
	From     SubOrderStatus
	To       SubOrderStatus
	Event    StatusEvent
	Tracking *Tracking
}

// Apply performs t on o in memory. It does not check From; the store does.
func (o *Order) Apply(t Transition) {
	o.Status = t.To
	if t.PaymentStatus != "" {
		o.PaymentStatus = t.PaymentStatus
	}
	if t.Tracking != nil {
		o.Tracking = *t.Tracking
	}
	o.History = append(o.History, t.Event)
	o.UpdatedAt = t.Event.Timestamp
}

func (s *SubOrder) Apply(t SubOrderTransition) {
	s.Status = t.To
	if t.Tracking != nil {
		s.Tracking = *t.Tracking
	}
	s.History = append(s.History, t.Event)
	s.UpdatedAt = t.Event.Timestamp
}

// advanceTracking returns the tracking block after entering status to at now.
func advanceTracking(cur Tracking, to Status, now time.Time, ship Address, location string) Tracking {
	t := cur
	switch to {
	case StatusProcessing:
		t.CurrentLocation = firstNonEmpty(location, "Being prepared by the seller")
	case StatusShipped:
		at := now
		t.ShippedAt = &at
		t.CurrentLocation = firstNonEmpty(location, "In transit: departed origin facility")
	case StatusDelivered:
		at := now
		t.DeliveredAt = &at
		t.ActualDelivery = &at
		dest := "Delivered"
		if ship.City != "" {
			dest = "Delivered to " + ship.City
		}
		t.CurrentLocation = firstNonEmpty(location, dest)
	case StatusCancelled:
		t.CurrentLocation = firstNonEmpty(location, "Order cancelled")
	case StatusReturned:
		t.CurrentLocation = firstNonEmpty(location, "Returned to seller")
	}
	return t
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
