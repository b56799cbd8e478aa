package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced           = "OrderPlaced"
	EventSubOrderCreated       = "SubOrderCreated"
	EventSubOrderFailed        = "SubOrderFailed"
	EventOrderStatusChanged    = "OrderStatusChanged"
	EventSubOrderStatusChanged = "SubOrderStatusChanged"
	EventSellerNewOrder        = "SellerNewOrder"
)

// Event is handed to an EventSink; the sink decides the wire format.
type Event struct {
	Type    string
	OrderID string
	Payload any
}

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // aggregate order id
	Payload       json.RawMessage `json:"payload"`
}

// ---- payloads ----

type OrderPlacedPayload struct {
	OrderID       string        `json:"order_id"`
	OrderNumber   string        `json:"order_number"`
	BuyerID       string        `json:"buyer_id"`
	TotalCents    int64         `json:"total_cents"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Sellers       []string      `json:"sellers"`
}

type SubOrderCreatedPayload struct {
	OrderID        string `json:"order_id"`
	SubOrderNumber string `json:"sub_order_number"`
	SellerID       string `json:"seller_id"`
	TotalCents     int64  `json:"total_cents"`
}

// SubOrderFailedPayload is published by placement with Attempt 0; the reconcile worker
// republishes it with a higher Attempt and a RetryAt before which it must not run.
type SubOrderFailedPayload struct {
	OrderID        string     `json:"order_id"`
	SubOrderNumber string     `json:"sub_order_number"`
	SellerID       string     `json:"seller_id"`
	Reason         string     `json:"reason"`
	Attempt        int        `json:"attempt,omitempty"`
	RetryAt        *time.Time `json:"retry_at,omitempty"`
}

type StatusChangedPayload struct {
	OrderID        string `json:"order_id"`
	SubOrderNumber string `json:"sub_order_number,omitempty"`
	From           string `json:"from"`
	To             string `json:"to"`
	Note           string `json:"note,omitempty"`
	Automatic      bool   `json:"automatic"`
}

type SellerNewOrderPayload struct {
	SellerID       string         `json:"seller_id"`
	SubOrderNumber string         `json:"sub_order_number"`
	Items          []SubOrderItem `json:"items"`
	TotalCents     int64          `json:"total_cents"`
}
