package inventory

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-marketplace-orders/internal/apperr"
	"go.uber.org/zap"
)

// Store persists stock records and their ledger. Mutate must lock the record, call Apply,
// and write the new count together with the entry in one atomic unit.
type Store interface {
	Mutate(ctx context.Context, ch Change) (Entry, error)
	Get(ctx context.Context, productID string) (Record, error)
	Entries(ctx context.Context, productID string, limit int) ([]Entry, error)
}

// Apply returns the stock count rec would have after ch, or the reason it is refused.
// It holds no state; stores call it while holding the record lock.
func Apply(rec Record, ch Change) (int, error) {
	if ch.SellerID != "" && rec.SellerID != "" && ch.SellerID != rec.SellerID {
		return 0, apperr.NotFound("stock record", ch.ProductID+"@"+ch.SellerID)
	}
	switch ch.Op {
	case OpDecrement:
		if ch.Quantity <= 0 {
			return 0, &InvalidQuantityError{ProductID: ch.ProductID, Quantity: ch.Quantity}
		}
		if ch.Quantity > rec.QuantityOnHand {
			return 0, &InsufficientStockError{ProductID: ch.ProductID, Requested: ch.Quantity, Available: rec.QuantityOnHand}
		}
		return rec.QuantityOnHand - ch.Quantity, nil
	case OpRestore:
		if ch.Quantity <= 0 {
			return 0, &InvalidQuantityError{ProductID: ch.ProductID, Quantity: ch.Quantity}
		}
		return rec.QuantityOnHand + ch.Quantity, nil
	case OpSet:
		if ch.Quantity < 0 {
			return 0, &InvalidQuantityError{ProductID: ch.ProductID, Quantity: ch.Quantity}
		}
		return ch.Quantity, nil
	}
	return 0, fmt.Errorf("unknown stock op %d", ch.Op)
}

// Ledger is the only writer of stock counts.
type Ledger struct {
	store Store
	log   *zap.Logger
}

func NewLedger(store Store, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{store: store, log: log.Named("ledger")}
}

// Decrement subtracts quantity from the product's stock. It fails with
// *InsufficientStockError when quantity exceeds the count on hand at apply time.
func (l *Ledger) Decrement(ctx context.Context, productID, sellerID string, quantity int, reason Reason, refOrderID string) (Result, error) {
	return l.mutate(ctx, Change{
		ProductID: productID, SellerID: sellerID, Op: OpDecrement,
		Quantity: quantity, Reason: reason, ReferenceOrderID: refOrderID,
	})
}

// Restore adds quantity back, e.g. after a cancellation or a return.
func (l *Ledger) Restore(ctx context.Context, productID, sellerID string, quantity int, reason Reason, refOrderID string) (Result, error) {
	return l.mutate(ctx, Change{
		ProductID: productID, SellerID: sellerID, Op: OpRestore,
		Quantity: quantity, Reason: reason, ReferenceOrderID: refOrderID,
	})
}

// SetAbsolute overwrites the count for manual corrections.
func (l *Ledger) SetAbsolute(ctx context.Context, productID, sellerID string, newQuantity int, reason Reason) (Result, error) {
	return l.mutate(ctx, Change{
		ProductID: productID, SellerID: sellerID, Op: OpSet,
		Quantity: newQuantity, Reason: reason,
	})
}

func (l *Ledger) Stock(ctx context.Context, productID string) (Record, error) {
	return l.store.Get(ctx, productID)
}

func (l *Ledger) Entries(ctx context.Context, productID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return l.store.Entries(ctx, productID, limit)
}

func (l *Ledger) mutate(ctx context.Context, ch Change) (Result, error) {
	if ch.ProductID == "" {
		return Result{}, apperr.Invalid("product id is required")
	}
	if !ch.Reason.Valid() {
		return Result{}, apperr.Invalid("unknown stock change reason %q", ch.Reason)
	}
	e, err := l.store.Mutate(ctx, ch)
	if err != nil {
		return Result{}, err
	}
	l.log.Debug("stock changed",
		zap.String("product_id", e.ProductID),
		zap.Int("previous", e.PreviousStock),
		zap.Int("delta", e.Delta),
		zap.Int("new", e.NewStock),
		zap.String("reason", string(e.Reason)),
		zap.String("order_id", e.ReferenceOrderID),
	)
	return Result{PreviousStock: e.PreviousStock, NewStock: e.NewStock, Entry: e}, nil
}
