package orders

import (
	"context"
	"time"
)

// Store persists aggregate orders and sub-orders.
//
// TransitionOrder and TransitionSubOrder are compare-and-set writes keyed on the
// transition's From status. They report false, nil when the stored status no longer
// matches, which callers treat as "someone else already moved it".
type Store interface {
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id string) (*Order, error)
	GetOrderByExternalID(ctx context.Context, externalID string) (*Order, error)
	TransitionOrder(ctx context.Context, id string, t Transition) (bool, error)
	ListOrdersByStatus(ctx context.Context, statuses []Status, limit int) ([]Order, error)
	CountOrdersByStatus(ctx context.Context) (map[Status]int64, error)

	// CreateSubOrder fails with apperr.ErrConflict when the number already exists.
	CreateSubOrder(ctx context.Context, s *SubOrder) error
	GetSubOrder(ctx context.Context, number string) (*SubOrder, error)
	ListSubOrders(ctx context.Context, parentNumber string) ([]SubOrder, error)
	TransitionSubOrder(ctx context.Context, number string, t SubOrderTransition) (bool, error)
	ListSubOrdersByStatus(ctx context.Context, statuses []SubOrderStatus, limit int) ([]SubOrder, error)
	CountSubOrdersByStatus(ctx context.Context) (map[SubOrderStatus]int64, error)
}

// Product is the catalog's view of a product.
type Product struct {
	ID         string `json:"id"`
	SellerID   string `json:"seller_id"`
	Name       string `json:"name"`
	SKU        string `json:"sku"`
	PriceCents int64  `json:"price_cents"`
	Active     bool   `json:"active"`
}

type Catalog interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
}

type Seller struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	NotifyNewOrders bool   `json:"notify_new_orders"`
}

type SellerDirectory interface {
	GetSeller(ctx context.Context, sellerID string) (Seller, error)
}

// Notifier delivers the "you have a new order" message to a seller.
type Notifier interface {
	NotifySellerNewOrder(ctx context.Context, sellerID, subOrderNumber string, items []SubOrderItem, totalCents int64) error
}

// EventSink receives domain events. Publishing is best effort.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}

// Clock returns the current time; tests replace it.
type Clock func() time.Time

type nopSink struct{}

func (nopSink) Publish(context.Context, Event) error { return nil }
