package orders_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/inventory"
	"github.com/ariefcatur/go-marketplace-orders/internal/memstore"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/stretchr/testify/require"
)

const (
	sellerA = "seller-aaaa1111"
	sellerB = "seller-bbbb2222"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []orders.Event
}

func (s *recordingSink) Publish(_ context.Context, ev orders.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) ofType(typ string) []orders.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Event
	for _, ev := range s.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type notification struct {
	sellerID string
	number   string
	total    int64
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) NotifySellerNewOrder(_ context.Context, sellerID, number string, _ []orders.SubOrderItem, total int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{sellerID, number, total})
	return nil
}

// flakyStore fails selected writes and otherwise delegates.
type flakyStore struct {
	orders.Store
	mu              sync.Mutex
	failCreateOrder bool
	failSubOrderFor map[string]bool
}

func (f *flakyStore) CreateOrder(ctx context.Context, o *orders.Order) error {
	if f.failCreateOrder {
		return errors.New("db down")
	}
	return f.Store.CreateOrder(ctx, o)
}

func (f *flakyStore) CreateSubOrder(ctx context.Context, s *orders.SubOrder) error {
	f.mu.Lock()
	fail := f.failSubOrderFor[s.SellerID]
	f.mu.Unlock()
	if fail {
		return errors.New("sub-order insert timed out")
	}
	return f.Store.CreateSubOrder(ctx, s)
}

func (f *flakyStore) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSubOrderFor = nil
}

// racingLedger empties a product right before the processor decrements it, as a
// concurrent buyer would.
type racingLedger struct {
	*inventory.Ledger
	drain string
}

func (r *racingLedger) Decrement(ctx context.Context, productID, sellerID string, qty int, reason inventory.Reason, ref string) (inventory.Result, error) {
	if productID == r.drain {
		if _, err := r.Ledger.SetAbsolute(ctx, productID, sellerID, 0, inventory.ReasonAdjustment); err != nil {
			return inventory.Result{}, err
		}
	}
	return r.Ledger.Decrement(ctx, productID, sellerID, qty, reason, ref)
}

type fixture struct {
	store    *memstore.Store
	ledger   *inventory.Ledger
	sink     *recordingSink
	notifier *recordingNotifier
	clock    *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	st.PutSeller(orders.Seller{ID: sellerA, Name: "Toko A", NotifyNewOrders: true})
	st.PutSeller(orders.Seller{ID: sellerB, Name: "Toko B", NotifyNewOrders: false})
	st.PutProduct(orders.Product{ID: "pa1", SellerID: sellerA, Name: "Kopi Gayo 250g", SKU: "KOPI-250", PriceCents: 8500, Active: true}, 10)
	st.PutProduct(orders.Product{ID: "pa2", SellerID: sellerA, Name: "Gelas Kopi", SKU: "GLS-01", PriceCents: 4000, Active: true}, 5)
	st.PutProduct(orders.Product{ID: "pb1", SellerID: sellerB, Name: "Batik Tulis", SKU: "BTK-01", PriceCents: 250000, Active: true}, 3)
	st.PutProduct(orders.Product{ID: "old", SellerID: sellerB, Name: "Discontinued", SKU: "OLD-01", PriceCents: 100, Active: false}, 50)
	return &fixture{
		store:    st,
		ledger:   inventory.NewLedger(st, nil),
		sink:     &recordingSink{},
		notifier: &recordingNotifier{},
		clock:    &fakeClock{now: t0},
	}
}

func (f *fixture) deps() orders.Deps {
	return orders.Deps{
		Store:    f.store,
		Ledger:   f.ledger,
		Catalog:  f.store,
		Sellers:  f.store,
		Notifier: f.notifier,
		Events:   f.sink,
		Now:      f.clock.Now,
	}
}

func (f *fixture) processor() *orders.Processor {
	return orders.NewProcessor(f.deps(), orders.PlacementConfig{})
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	rec, err := f.ledger.Stock(context.Background(), productID)
	require.NoError(t, err)
	return rec.QuantityOnHand
}

func (f *fixture) place(t *testing.T, items ...orders.LineItem) *orders.PlaceResult {
	t.Helper()
	res, err := f.processor().PlaceOrder(context.Background(), cart(items...))
	require.NoError(t, err)
	return res
}

func cart(items ...orders.LineItem) orders.Cart {
	return orders.Cart{
		BuyerID: "buyer-1",
		Items:   items,
		Shipping: orders.Address{
			Name: "Sari", Line1: "Jl. Sudirman 1", City: "Jakarta", PostalCode: "10220", Country: "ID",
		},
	}
}

func item(productID string, qty int) orders.LineItem {
	return orders.LineItem{ProductID: productID, Quantity: qty}
}
