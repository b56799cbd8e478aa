package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ariefcatur/go-marketplace-orders/internal/apperr"
	"github.com/ariefcatur/go-marketplace-orders/internal/inventory"
	"github.com/ariefcatur/go-marketplace-orders/internal/memstore"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T, stock int) (*inventory.Ledger, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	st.PutProduct(orders.Product{ID: "p1", SellerID: "s1", Name: "Mug", SKU: "MUG-1", PriceCents: 1500, Active: true}, stock)
	return inventory.NewLedger(st, nil), st
}

func TestApply(t *testing.T) {
	rec := inventory.Record{ProductID: "p1", SellerID: "s1", QuantityOnHand: 5}
	tests := []struct {
		name    string
		ch      inventory.Change
		want    int
		wantErr any
	}{
		{"decrement", inventory.Change{ProductID: "p1", Op: inventory.OpDecrement, Quantity: 2}, 3, nil},
		{"decrement all", inventory.Change{ProductID: "p1", Op: inventory.OpDecrement, Quantity: 5}, 0, nil},
		{"decrement too many", inventory.Change{ProductID: "p1", Op: inventory.OpDecrement, Quantity: 6}, 0, &inventory.InsufficientStockError{}},
		{"decrement zero", inventory.Change{ProductID: "p1", Op: inventory.OpDecrement, Quantity: 0}, 0, &inventory.InvalidQuantityError{}},
		{"restore", inventory.Change{ProductID: "p1", Op: inventory.OpRestore, Quantity: 4}, 9, nil},
		{"restore negative", inventory.Change{ProductID: "p1", Op: inventory.OpRestore, Quantity: -1}, 0, &inventory.InvalidQuantityError{}},
		{"set", inventory.Change{ProductID: "p1", Op: inventory.OpSet, Quantity: 0}, 0, nil},
		{"set negative", inventory.Change{ProductID: "p1", Op: inventory.OpSet, Quantity: -3}, 0, &inventory.InvalidQuantityError{}},
		{"other seller", inventory.Change{ProductID: "p1", SellerID: "s2", Op: inventory.OpRestore, Quantity: 1}, 0, &apperr.NotFoundError{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := inventory.Apply(rec, tt.ch)
			switch want := tt.wantErr.(type) {
			case nil:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			case *inventory.InsufficientStockError:
				require.ErrorAs(t, err, &want)
				assert.Equal(t, 6, want.Requested)
				assert.Equal(t, 5, want.Available)
			case *inventory.InvalidQuantityError:
				require.ErrorAs(t, err, &want)
			case *apperr.NotFoundError:
				assert.True(t, apperr.IsNotFound(err))
			}
		})
	}
}

func TestLedger_ConcurrentDecrementsNeverOversell(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 10)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		refused int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Decrement(ctx, "p1", "s1", 1, inventory.ReasonSale, "order-x")
			mu.Lock()
			defer mu.Unlock()
			var short *inventory.InsufficientStockError
			switch {
			case err == nil:
				ok++
			case errors.As(err, &short):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, 40, refused)

	rec, err := l.Stock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.QuantityOnHand)

	entries, err := l.Entries(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 10)
}

func TestLedger_EveryChangeHasOneEntry(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 7)

	r, err := l.Decrement(ctx, "p1", "s1", 3, inventory.ReasonSale, "o1")
	require.NoError(t, err)
	assert.Equal(t, 7, r.PreviousStock)
	assert.Equal(t, 4, r.NewStock)
	assert.Equal(t, -3, r.Entry.Delta)
	assert.Equal(t, "o1", r.Entry.ReferenceOrderID)

	_, err = l.Restore(ctx, "p1", "s1", 3, inventory.ReasonReturn, "o1")
	require.NoError(t, err)
	_, err = l.SetAbsolute(ctx, "p1", "s1", 20, inventory.ReasonManual)
	require.NoError(t, err)
	_, err = l.Decrement(ctx, "p1", "", 25, inventory.ReasonSale, "o2")
	require.Error(t, err)

	rec, err := l.Stock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 20, rec.QuantityOnHand)

	entries, err := l.Entries(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3, "refused change must not leave an entry")

	// newest first; each entry chains onto the one before it
	assert.Equal(t, inventory.ReasonManual, entries[0].Reason)
	assert.Equal(t, inventory.ReasonReturn, entries[1].Reason)
	assert.Equal(t, inventory.ReasonSale, entries[2].Reason)
	sum := 0
	for i, e := range entries {
		assert.Equal(t, e.NewStock, e.PreviousStock+e.Delta)
		if i+1 < len(entries) {
			assert.Equal(t, entries[i+1].NewStock, e.PreviousStock)
		}
		sum += e.Delta
	}
	assert.Equal(t, 20-7, sum)
}

func TestLedger_Validation(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 5)

	_, err := l.SetAbsolute(ctx, "p1", "s1", -1, inventory.ReasonAdjustment)
	var bad *inventory.InvalidQuantityError
	require.ErrorAs(t, err, &bad)

	_, err = l.Restore(ctx, "p1", "s1", 1, inventory.Reason("gift"), "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = l.Decrement(ctx, "", "s1", 1, inventory.ReasonSale, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = l.Decrement(ctx, "missing", "s1", 1, inventory.ReasonSale, "")
	assert.True(t, apperr.IsNotFound(err))

	_, err = l.Decrement(ctx, "p1", "s2", 1, inventory.ReasonSale, "")
	assert.True(t, apperr.IsNotFound(err))

	rec, err := l.Stock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.QuantityOnHand)
}
