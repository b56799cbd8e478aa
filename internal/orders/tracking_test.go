package orders_test

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/apperr"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTracking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.place(t, item("pa1", 1), item("pb1", 1))
	l := orders.NewLifecycle(f.deps())

	f.clock.Advance(time.Hour)
	_, err := l.Process(ctx, res.Order.ID, "")
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, err = l.Ship(ctx, res.Order.ID, orders.ShipInput{Carrier: "SiCepat"})
	require.NoError(t, err)
	_, err = l.AdvanceSubOrder(ctx, res.SubOrders[1].SubOrderNumber, orders.SubStatusProcessing, "", "")
	require.NoError(t, err)

	v, err := orders.NewTracker(f.deps()).GetTracking(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Order.Number, v.OrderNumber)
	assert.Equal(t, orders.StatusShipped, v.Status)
	assert.Equal(t, "SiCepat", v.Carrier)
	assert.NotEmpty(t, v.TrackingNumber)
	require.NotNil(t, v.ShippedAt)
	assert.Nil(t, v.DeliveredAt)
	assert.Equal(t, t0.Add(72*time.Hour), v.EstimatedDelivery)

	require.Len(t, v.StatusHistory, 3)
	assert.Equal(t, "confirmed", v.StatusHistory[0].Status)
	assert.Equal(t, "shipped", v.StatusHistory[2].Status)

	require.Len(t, v.Parcels, 2)
	assert.Equal(t, orders.SubStatusNew, v.Parcels[0].Status)
	assert.Equal(t, orders.SubStatusProcessing, v.Parcels[1].Status)
	assert.Equal(t, sellerB, v.Parcels[1].SellerID)

	_, err = orders.NewTracker(f.deps()).GetTracking(ctx, "nope")
	assert.True(t, apperr.IsNotFound(err))
}

func TestStatusDistribution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.place(t, item("pa1", 1))
	f.place(t, item("pa1", 1), item("pb1", 1))
	require.NoError(t, orders.NewLifecycle(f.deps()).Cancel(ctx, a.Order.ID, "dup"))

	d, err := orders.NewTracker(f.deps()).StatusDistribution(ctx)
	require.NoError(t, err)
	assert.Len(t, d.Orders, len(orders.AllStatuses()))
	assert.Len(t, d.SubOrders, len(orders.AllSubStatuses()))
	assert.Equal(t, int64(1), d.Orders[orders.StatusConfirmed])
	assert.Equal(t, int64(1), d.Orders[orders.StatusCancelled])
	assert.Equal(t, int64(0), d.Orders[orders.StatusShipped])
	assert.Equal(t, int64(2), d.SubOrders[orders.SubStatusNew])
	assert.Equal(t, int64(1), d.SubOrders[orders.SubStatusCancelled])
}
