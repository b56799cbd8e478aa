package orders_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/apperr"
	"github.com/ariefcatur/go-marketplace-orders/internal/inventory"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countStatus(h []orders.StatusEvent, status string) int {
	n := 0
	for _, ev := range h {
		if ev.Status == status {
			n++
		}
	}
	return n
}

func TestCancel_RestoresStockOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutProduct(orders.Product{ID: "p7", SellerID: sellerA, Name: "Teh", SKU: "TEH-1", PriceCents: 100, Active: true}, 7)

	res := f.place(t, item("p7", 3), item("pb1", 1))
	assert.Equal(t, 4, f.stock(t, "p7"))

	l := orders.NewLifecycle(f.deps())
	f.clock.Advance(time.Hour)
	require.NoError(t, l.Cancel(ctx, res.Order.ID, "buyer changed mind"))
	assert.Equal(t, 7, f.stock(t, "p7"))
	assert.Equal(t, 3, f.stock(t, "pb1"))

	// cancelling again is a no-op
	require.NoError(t, l.Cancel(ctx, res.Order.ID, "double click"))
	assert.Equal(t, 7, f.stock(t, "p7"))

	o, err := f.store.GetOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, o.Status)
	assert.Equal(t, orders.PaymentRefunded, o.PaymentStatus)
	assert.Equal(t, 1, countStatus(o.History, "cancelled"))
	assert.Contains(t, o.History[len(o.History)-1].Note, "buyer changed mind")
	assert.Equal(t, "Order cancelled", o.Tracking.CurrentLocation)

	subs, err := f.store.ListSubOrders(ctx, o.Number)
	require.NoError(t, err)
	for _, s := range subs {
		assert.Equal(t, orders.SubStatusCancelled, s.Status)
	}
	assert.Len(t, f.sink.ofType(orders.EventOrderStatusChanged), 1)
	assert.Len(t, f.sink.ofType(orders.EventSubOrderStatusChanged), 2)
}

func TestCancel_RefusedOnceAParcelShipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.place(t, item("pa1", 1), item("pb1", 1))
	l := orders.NewLifecycle(f.deps())

	_, err := l.Process(ctx, res.Order.ID, "")
	require.NoError(t, err)
	_, err = l.AdvanceSubOrder(ctx, res.SubOrders[0].SubOrderNumber, orders.SubStatusProcessing, "", "")
	require.NoError(t, err)
	_, err = l.AdvanceSubOrder(ctx, res.SubOrders[0].SubOrderNumber, orders.SubStatusShipped, "", "Gudang Bekasi")
	require.NoError(t, err)

	err = l.Cancel(ctx, res.Order.ID, "changed my mind")
	var bad *orders.InvalidTransitionError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, "sub-order", bad.Entity)
	assert.Equal(t, res.SubOrders[0].SubOrderNumber, bad.ID)
	assert.Equal(t, "shipped", bad.From)

	// nothing moved: the shipped unit is not counted back into stock
	assert.Equal(t, 9, f.stock(t, "pa1"))
	assert.Equal(t, 2, f.stock(t, "pb1"))
	o, err := f.store.GetOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, o.Status)
	assert.Equal(t, orders.PaymentPending, o.PaymentStatus)
	other, err := f.store.GetSubOrder(ctx, res.SubOrders[1].SubOrderNumber)
	require.NoError(t, err)
	assert.Equal(t, orders.SubStatusNew, other.Status)
}

// shipsDuringCancel hands one parcel to the carrier at the moment the aggregate cancel
// is written, as a seller acting concurrently would.
type shipsDuringCancel struct {
	orders.Store
	number string
}

func (s *shipsDuringCancel) TransitionOrder(ctx context.Context, id string, t orders.Transition) (bool, error) {
	if t.To == orders.StatusCancelled {
		sub, err := s.Store.GetSubOrder(ctx, s.number)
		if err != nil {
			return false, err
		}
		_, err = s.Store.TransitionSubOrder(ctx, s.number, orders.SubOrderTransition{
			From:  sub.Status,
			To:    orders.SubStatusShipped,
			Event: orders.StatusEvent{Status: "shipped", Timestamp: t.Event.Timestamp},
		})
		if err != nil {
			return false, err
		}
	}
	return s.Store.TransitionOrder(ctx, id, t)
}

func TestCancel_RestoresOnlyParcelsThatDidNotLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.place(t, item("pa1", 1), item("pb1", 1))
	require.Equal(t, sellerA, res.SubOrders[0].SellerID)

	d := f.deps()
	d.Store = &shipsDuringCancel{Store: f.store, number: res.SubOrders[0].SubOrderNumber}
	require.NoError(t, orders.NewLifecycle(d).Cancel(ctx, res.Order.ID, "changed my mind"))

	assert.Equal(t, 9, f.stock(t, "pa1"), "shipped parcel stays out of stock")
	assert.Equal(t, 3, f.stock(t, "pb1"))

	shipped, err := f.store.GetSubOrder(ctx, res.SubOrders[0].SubOrderNumber)
	require.NoError(t, err)
	assert.Equal(t, orders.SubStatusShipped, shipped.Status)
	other, err := f.store.GetSubOrder(ctx, res.SubOrders[1].SubOrderNumber)
	require.NoError(t, err)
	assert.Equal(t, orders.SubStatusCancelled, other.Status)
}

func TestCancel_RacingSweepRestoresStockExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutProduct(orders.Product{ID: "beras", SellerID: sellerA, Name: "Beras 5kg", SKU: "BRS-5", PriceCents: 70000, Active: true}, 100)

	var ids []string
	for i := 0; i < 10; i++ {
		ids = append(ids, f.place(t, item("beras", 2)).Order.ID)
	}
	require.Equal(t, 80, f.stock(t, "beras"))
	f.clock.Advance(9 * time.Hour)

	l := orders.NewLifecycle(f.deps())
	p := orders.NewProgression(f.deps(), fixedPolicy())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := p.Sweep(ctx)
		assert.NoError(t, err)
	}()
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, l.Cancel(ctx, id, "flash sale mistake"))
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 100, f.stock(t, "beras"))
	for _, id := range ids {
		o, err := f.store.GetOrder(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusCancelled, o.Status)
		assert.Equal(t, 1, countStatus(o.History, "cancelled"))
		subs, err := f.store.ListSubOrders(ctx, o.Number)
		require.NoError(t, err)
		for _, s := range subs {
			assert.Equal(t, orders.SubStatusCancelled, s.Status)
		}
	}

	entries, err := f.ledger.Entries(ctx, "beras", 100)
	require.NoError(t, err)
	returns := 0
	for _, e := range entries {
		if e.Reason == inventory.ReasonReturn {
			returns++
		}
	}
	assert.Equal(t, 10, returns)
}

func TestCancel_Refusals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.place(t, item("pa1", 2))
	l := orders.NewLifecycle(f.deps())

	err := l.Cancel(ctx, res.Order.ID, "   ")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = l.Process(ctx, res.Order.ID, "")
	require.NoError(t, err)
	_, err = l.Ship(ctx, res.Order.ID, orders.ShipInput{})
	require.NoError(t, err)

	err = l.Cancel(ctx, res.Order.ID, "too late")
	var bad *orders.InvalidTransitionError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, "shipped", bad.From)
	assert.Equal(t, 8, f.stock(t, "pa1"))

	err = l.Cancel(ctx, "does-not-exist", "x")
	assert.True(t, apperr.IsNotFound(err))
}

func TestLifecycle_ExplicitTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.place(t, item("pa1", 1))
	id := res.Order.ID
	l := orders.NewLifecycle(f.deps())

	_, err := l.Ship(ctx, id, orders.ShipInput{})
	var bad *orders.InvalidTransitionError
	require.ErrorAs(t, err, &bad, "confirmed cannot skip processing")

	f.clock.Advance(time.Hour)
	o, err := l.Process(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, o.Status)
	assert.Equal(t, "Being prepared by the seller", o.Tracking.CurrentLocation)

	f.clock.Advance(time.Hour)
	o, err = l.Ship(ctx, id, orders.ShipInput{Carrier: "JNE", TrackingNumber: "JNE123"})
	require.NoError(t, err)
	assert.Equal(t, "JNE", o.Tracking.Carrier)
	assert.Equal(t, "JNE123", o.Tracking.TrackingNumber)
	require.NotNil(t, o.Tracking.ShippedAt)
	assert.Equal(t, t0.Add(2*time.Hour), *o.Tracking.ShippedAt)

	f.clock.Advance(time.Hour)
	o, err = l.Deliver(ctx, id, "", "")
	require.NoError(t, err)
	require.NotNil(t, o.Tracking.DeliveredAt)
	assert.Equal(t, "Delivered to Jakarta", o.Tracking.CurrentLocation)

	// same status again is a no-op
	again, err := l.Deliver(ctx, id, "", "")
	require.NoError(t, err)
	assert.Len(t, again.History, 4)

	o, err = l.MarkReturned(ctx, id, "damaged box")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusReturned, o.Status)
	assert.Equal(t, 9, f.stock(t, "pa1"), "returns are not restocked automatically")

	_, err = l.Process(ctx, id, "")
	require.ErrorAs(t, err, &bad)

	stored, err := f.store.GetOrder(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored.History, 5)
	for i := 1; i < len(stored.History); i++ {
		assert.False(t, stored.History[i].Timestamp.Before(stored.History[i-1].Timestamp))
	}
	assert.Len(t, f.sink.ofType(orders.EventOrderStatusChanged), 4)
}

func TestAdvanceSubOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.place(t, item("pa1", 1))
	number := res.SubOrders[0].SubOrderNumber
	l := orders.NewLifecycle(f.deps())

	_, err := l.AdvanceSubOrder(ctx, number, orders.SubStatusCancelled, "", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = l.AdvanceSubOrder(ctx, number, orders.SubOrderStatus("lost"), "", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = l.AdvanceSubOrder(ctx, number, orders.SubStatusShipped, "", "")
	var bad *orders.InvalidTransitionError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, "new", bad.From)

	s, err := l.AdvanceSubOrder(ctx, number, orders.SubStatusProcessing, "packing", "")
	require.NoError(t, err)
	assert.Equal(t, orders.SubStatusProcessing, s.Status)
	assert.Equal(t, "packing", s.History[len(s.History)-1].Note)

	ev := f.sink.ofType(orders.EventSubOrderStatusChanged)
	require.Len(t, ev, 1)
	assert.Equal(t, res.Order.ID, ev[0].OrderID)

	// the parent is independent of its parcels
	o, err := f.store.GetOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, o.Status)
}
