package orders

import (
	"context"
	"fmt"
	"sort"
	"time"
)

type ParcelView struct {
	SubOrderNumber  string         `json:"sub_order_number"`
	SellerID        string         `json:"seller_id"`
	Status          SubOrderStatus `json:"status"`
	CurrentLocation string         `json:"current_location,omitempty"`
	ShippedAt       *time.Time     `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time     `json:"delivered_at,omitempty"`
}

// TrackingView is the read-only projection returned to buyers.
type TrackingView struct {
	OrderID           string        `json:"order_id"`
	OrderNumber       string        `json:"order_number"`
	Status            Status        `json:"status"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	StatusHistory     []StatusEvent `json:"status_history"`
	EstimatedDelivery time.Time     `json:"estimated_delivery"`
	TrackingNumber    string        `json:"tracking_number"`
	Carrier           string        `json:"carrier"`
	CurrentLocation   string        `json:"current_location,omitempty"`
	ShippedAt         *time.Time    `json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time    `json:"delivered_at,omitempty"`
	Parcels           []ParcelView  `json:"parcels"`
}

type Distribution struct {
	Orders    map[Status]int64         `json:"orders"`
	SubOrders map[SubOrderStatus]int64 `json:"sub_orders"`
}

// Tracker answers read-only questions about orders.
type Tracker struct {
	Deps
}

func NewTracker(d Deps) *Tracker {
	return &Tracker{Deps: d.withDefaults()}
}

// OrderDetail returns an order together with its sub-orders.
func (t *Tracker) OrderDetail(ctx context.Context, orderID string) (*Order, []SubOrder, error) {
	o, err := t.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	subs, err := t.Store.ListSubOrders(ctx, o.Number)
	if err != nil {
		return nil, nil, fmt.Errorf("list sub-orders: %w", err)
	}
	return o, subs, nil
}

func (t *Tracker) GetTracking(ctx context.Context, orderID string) (*TrackingView, error) {
	o, subs, err := t.OrderDetail(ctx, orderID)
	if err != nil {
		return nil, err
	}

	history := make([]StatusEvent, len(o.History))
	copy(history, o.History)
	sort.SliceStable(history, func(i, j int) bool { return history[i].Timestamp.Before(history[j].Timestamp) })

	v := &TrackingView{
		OrderID:           o.ID,
		OrderNumber:       o.Number,
		Status:            o.Status,
		PaymentStatus:     o.PaymentStatus,
		StatusHistory:     history,
		EstimatedDelivery: o.Tracking.EstimatedDelivery,
		TrackingNumber:    o.Tracking.TrackingNumber,
		Carrier:           o.Tracking.Carrier,
		CurrentLocation:   o.Tracking.CurrentLocation,
		ShippedAt:         o.Tracking.ShippedAt,
		DeliveredAt:       o.Tracking.DeliveredAt,
		Parcels:           make([]ParcelView, 0, len(subs)),
	}
	for _, s := range subs {
		v.Parcels = append(v.Parcels, ParcelView{
			SubOrderNumber:  s.Number,
			SellerID:        s.SellerID,
			Status:          s.Status,
			CurrentLocation: s.Tracking.CurrentLocation,
			ShippedAt:       s.Tracking.ShippedAt,
			DeliveredAt:     s.Tracking.DeliveredAt,
		})
	}
	return v, nil
}

// StatusDistribution counts orders and sub-orders per status. Every status is present in
// the result, zero when no order has it.
func (t *Tracker) StatusDistribution(ctx context.Context) (*Distribution, error) {
	oc, err := t.Store.CountOrdersByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	sc, err := t.Store.CountSubOrdersByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count sub-orders: %w", err)
	}
	d := &Distribution{Orders: map[Status]int64{}, SubOrders: map[SubOrderStatus]int64{}}
	for _, s := range AllStatuses() {
		d.Orders[s] = oc[s]
	}
	for _, s := range AllSubStatuses() {
		d.SubOrders[s] = sc[s]
	}
	return d, nil
}
