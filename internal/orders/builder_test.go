package orders_test

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_PartitionsItemsBySeller(t *testing.T) {
	f := newFixture(t)
	b := orders.NewBuilder(f.store, f.clock.Now)

	items := []orders.LineItem{
		{ProductID: "pb1", SellerID: sellerB, Name: "Batik", SKU: "BTK-01", UnitPriceCents: 250000, Quantity: 1},
		{ProductID: "pa1", SellerID: sellerA, Name: "Kopi", SKU: "KOPI-250", UnitPriceCents: 8000, Quantity: 3},
		{ProductID: "pa2", SellerID: sellerA, Name: "Gelas", SKU: "GLS-01", UnitPriceCents: 4000, Quantity: 2},
	}
	subs, warnings := b.Build(context.Background(), orders.BuildInput{
		OrderID: "o-1", OrderNumber: "ORD-20240301-ABC", Items: items,
	})
	assert.Empty(t, warnings)
	require.Len(t, subs, 2)

	assert.Equal(t, sellerB, subs[0].SellerID)
	assert.Equal(t, "ORD-20240301-ABC-2222", subs[0].Number)
	assert.Equal(t, sellerA, subs[1].SellerID)
	assert.Equal(t, "ORD-20240301-ABC-1111", subs[1].Number)

	seen := 0
	var sum int64
	for _, s := range subs {
		assert.Equal(t, "o-1", s.ParentID)
		assert.Equal(t, orders.SubStatusNew, s.Status)
		require.Len(t, s.History, 1)
		assert.Equal(t, t0, s.History[0].Timestamp)
		var total int64
		for _, it := range s.Items {
			total += it.LineTotalCents
			seen++
		}
		assert.Equal(t, total, s.TotalCents)
		sum += s.TotalCents
	}
	assert.Equal(t, len(items), seen)
	assert.Equal(t, int64(250000+3*8000+2*4000), sum)

	// the snapshot price wins over the catalog price
	assert.Equal(t, int64(8000), subs[1].Items[0].UnitPriceCents)
}

func TestBuilder_FillsMissingSnapshotFromCatalog(t *testing.T) {
	f := newFixture(t)
	b := orders.NewBuilder(f.store, f.clock.Now)

	subs, warnings := b.Build(context.Background(), orders.BuildInput{
		OrderNumber: "ORD-1",
		Items: []orders.LineItem{
			{ProductID: "pa1", Quantity: 2},
			{ProductID: "gone", SellerID: sellerA, Name: "Old mug", UnitPriceCents: 500, Quantity: 1},
			{ProductID: "nowhere", Quantity: 1},
		},
	})

	require.Len(t, subs, 1)
	require.Len(t, subs[0].Items, 2)
	got := subs[0].Items[0]
	assert.Equal(t, "Kopi Gayo 250g", got.Name)
	assert.Equal(t, "KOPI-250", got.SKU)
	assert.Equal(t, int64(17000), got.LineTotalCents)

	// failed lookup keeps the snapshot
	assert.Equal(t, "Old mug", subs[0].Items[1].Name)

	var skipped bool
	for _, w := range warnings {
		if w.ProductID == "nowhere" && w.Message == "no seller for item; skipped" {
			skipped = true
		}
	}
	assert.True(t, skipped)
	assert.Len(t, warnings, 3, "two lookup failures plus one skipped item")
}

func TestSubOrderNumbers(t *testing.T) {
	tests := []struct {
		name    string
		sellers []string
		want    map[string]string
	}{
		{
			name:    "distinct suffixes",
			sellers: []string{"seller-aaaa1111", "seller-bbbb2222"},
			want:    map[string]string{"seller-aaaa1111": "ORD-1111", "seller-bbbb2222": "ORD-2222"},
		},
		{
			name:    "last four collide",
			sellers: []string{"aa-11112222", "bb-33332222", "cc-4444"},
			want:    map[string]string{"aa-11112222": "ORD-11112222", "bb-33332222": "ORD-33332222", "cc-4444": "ORD-4444"},
		},
		{
			name:    "last eight collide",
			sellers: []string{"x-00001234", "y-00001234"},
			want:    map[string]string{"x-00001234": "ORD-x-00001234", "y-00001234": "ORD-y-00001234"},
		},
		{
			name:    "short ids",
			sellers: []string{"7"},
			want:    map[string]string{"7": "ORD-7"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := orders.SubOrderNumbers("ORD", tt.sellers)
			assert.Equal(t, tt.want, got)

			again := orders.SubOrderNumbers("ORD", tt.sellers)
			assert.Equal(t, got, again)
		})
	}
}
