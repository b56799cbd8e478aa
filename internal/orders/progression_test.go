package orders_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedPolicy() orders.ProgressionPolicy {
	return orders.ProgressionPolicy{MinWait: 8 * time.Hour, MaxWait: 8 * time.Hour, BatchSize: 100, Seed: 1}
}

func TestSweep_AdvancesOneStepPerElapsedWait(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.place(t, item("pa1", 1), item("pb1", 1))
	id := res.Order.ID
	p := orders.NewProgression(f.deps(), fixedPolicy())

	status := func() orders.Status {
		o, err := f.store.GetOrder(ctx, id)
		require.NoError(t, err)
		return o.Status
	}

	f.clock.Advance(time.Hour)
	rep, err := p.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Advanced)
	assert.Equal(t, 1, rep.Scanned)
	assert.Equal(t, orders.StatusConfirmed, status())

	want := []orders.Status{orders.StatusProcessing, orders.StatusShipped, orders.StatusDelivered}
	for _, next := range want {
		f.clock.Advance(8 * time.Hour)
		rep, err = p.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Advanced)
		assert.Equal(t, 2, rep.SubAdvanced)
		assert.Equal(t, next, status())

		// a second sweep at the same instant finds nothing old enough
		rep, err = p.Sweep(ctx)
		require.NoError(t, err)
		assert.Zero(t, rep.Advanced)
		assert.Zero(t, rep.SubAdvanced)
	}

	f.clock.Advance(100 * time.Hour)
	rep, err = p.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Scanned, "delivered orders are not selected")
	assert.Equal(t, orders.StatusDelivered, status())

	o, err := f.store.GetOrder(ctx, id)
	require.NoError(t, err)
	require.Len(t, o.History, 4)
	assert.NotNil(t, o.Tracking.ShippedAt)
	assert.NotNil(t, o.Tracking.DeliveredAt)

	subs, err := f.store.ListSubOrders(ctx, o.Number)
	require.NoError(t, err)
	for _, s := range subs {
		assert.Equal(t, orders.SubStatusDelivered, s.Status)
		assert.Len(t, s.History, 4)
	}

	changed := f.sink.ofType(orders.EventOrderStatusChanged)
	require.Len(t, changed, 3)
	for _, ev := range changed {
		assert.True(t, ev.Payload.(orders.StatusChangedPayload).Automatic)
	}
}

func TestSweep_SkipsCancelledOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.place(t, item("pa1", 1))
	require.NoError(t, orders.NewLifecycle(f.deps()).Cancel(ctx, res.Order.ID, "changed mind"))

	f.clock.Advance(48 * time.Hour)
	rep, err := orders.NewProgression(f.deps(), fixedPolicy()).Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Scanned)
	assert.Zero(t, rep.SubScanned)
}

func TestSweep_ConcurrentSweepsAdvanceOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.place(t, item("pa1", 1))
	}
	f.clock.Advance(9 * time.Hour)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		advanced int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep, err := orders.NewProgression(f.deps(), fixedPolicy()).Sweep(ctx)
			assert.NoError(t, err)
			mu.Lock()
			advanced += rep.Advanced
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, advanced)
	list, err := f.store.ListOrdersByStatus(ctx, orders.AllStatuses(), 0)
	require.NoError(t, err)
	require.Len(t, list, 5)
	for _, o := range list {
		assert.Equal(t, orders.StatusProcessing, o.Status)
		assert.Equal(t, 1, countStatus(o.History, "processing"))
	}
}
