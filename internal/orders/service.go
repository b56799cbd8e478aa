package orders

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/inventory"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/ariefcatur/go-marketplace-orders/internal/orders")

// StockLedger is the part of the inventory ledger the order core needs.
type StockLedger interface {
	Decrement(ctx context.Context, productID, sellerID string, quantity int, reason inventory.Reason, refOrderID string) (inventory.Result, error)
	Restore(ctx context.Context, productID, sellerID string, quantity int, reason inventory.Reason, refOrderID string) (inventory.Result, error)
	Stock(ctx context.Context, productID string) (inventory.Record, error)
}

// Deps are the collaborators shared by the processor, lifecycle, progression and tracker.
// Only Store and Ledger are mandatory.
type Deps struct {
	Store    Store
	Ledger   StockLedger
	Catalog  Catalog
	Sellers  SellerDirectory
	Notifier Notifier
	Events   EventSink
	Log      *zap.Logger
	Now      Clock
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Events == nil {
		d.Events = nopSink{}
	}
	return d
}

func (d Deps) publish(ctx context.Context, typ, orderID string, payload any) {
	if err := d.Events.Publish(ctx, Event{Type: typ, OrderID: orderID, Payload: payload}); err != nil {
		d.Log.Warn("publish event failed",
			zap.String("event_type", typ), zap.String("order_id", orderID), zap.Error(err))
	}
}

// NewOrderNumber returns a fresh, human-readable order number.
func NewOrderNumber(now time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + now.UTC().Format("20060102") + "-" + strings.ToUpper(id[:12])
}

// NewTrackingNumber returns a carrier-agnostic tracking reference.
func NewTrackingNumber() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TRK" + strings.ToUpper(id[:14])
}

// lockedRand is a math/rand source safe for concurrent sweeps.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(seed int64) *lockedRand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Int63n(n int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Int63n(n)
}
