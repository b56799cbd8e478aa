package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/apperr"
	"github.com/ariefcatur/go-marketplace-orders/internal/inventory"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Cart is a checkout request. Prices and totals are already computed by the caller.
type Cart struct {
	ExternalID    string
	BuyerID       string
	Items         []LineItem
	TotalCents    int64
	PaymentStatus PaymentStatus
	Shipping      Address
	Attributes    Attributes
}

type SubOrderResult struct {
	SellerID       string `json:"seller_id"`
	SubOrderNumber string `json:"sub_order_number,omitempty"`
	Error          string `json:"error,omitempty"`
}

type PlaceResult struct {
	Order      *Order           `json:"order"`
	SubOrders  []SubOrderResult `json:"sub_orders"`
	Warnings   []Warning        `json:"warnings,omitempty"`
	Idempotent bool             `json:"idempotent"`
	// Errors keeps the typed failures behind SubOrders[i].Error.
	Errors []*SubOrderCreationError `json:"-"`
}

type PlacementConfig struct {
	DefaultCarrier   string
	DeliveryEstimate time.Duration
}

// Processor validates stock, decrements it, persists the aggregate order and fans it
// out into per-seller sub-orders.
type Processor struct {
	Deps
	cfg     PlacementConfig
	builder *Builder
}

func NewProcessor(d Deps, cfg PlacementConfig) *Processor {
	d = d.withDefaults()
	if cfg.DefaultCarrier == "" {
		cfg.DefaultCarrier = "Standard Courier"
	}
	if cfg.DeliveryEstimate <= 0 {
		cfg.DeliveryEstimate = 72 * time.Hour
	}
	d.Log = d.Log.Named("processor")
	return &Processor{Deps: d, cfg: cfg, builder: NewBuilder(d.Catalog, d.Now)}
}

// PlaceOrder runs the whole checkout. It returns *StockUnavailableError when stock cannot
// be taken; in that case no stock change survives. Sub-order failures are reported in the
// result and never fail the call.
func (p *Processor) PlaceOrder(ctx context.Context, cart Cart) (*PlaceResult, error) {
	ctx, span := tracer.Start(ctx, "orders.PlaceOrder")
	defer span.End()

	if err := validateCart(cart); err != nil {
		return nil, err
	}

	if cart.ExternalID != "" {
		existing, err := p.Store.GetOrderByExternalID(ctx, cart.ExternalID)
		switch {
		case err == nil:
			res, err := p.existingResult(ctx, existing)
			if err != nil {
				return nil, err
			}
			res.Idempotent = true
			return res, nil
		case !apperr.IsNotFound(err):
			return nil, fmt.Errorf("lookup external id: %w", err)
		}
	}

	items, err := p.precheck(ctx, cart.Items)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "precheck failed")
		return nil, err
	}

	now := p.Now().UTC()
	orderID := uuid.NewString()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.Int("order.items", len(items)))

	applied, err := p.decrementAll(ctx, orderID, items)
	if err != nil {
		p.compensate(ctx, orderID, applied)
		span.RecordError(err)
		span.SetStatus(codes.Error, "decrement failed")
		return nil, err
	}

	order := p.newOrder(orderID, now, cart, items)
	if err := p.Store.CreateOrder(ctx, order); err != nil {
		p.compensate(ctx, orderID, applied)
		if cart.ExternalID != "" && errors.Is(err, apperr.ErrConflict) {
			// a concurrent request with the same external id got there first
			if existing, gerr := p.Store.GetOrderByExternalID(ctx, cart.ExternalID); gerr == nil {
				res, rerr := p.existingResult(ctx, existing)
				if rerr != nil {
					return nil, rerr
				}
				res.Idempotent = true
				return res, nil
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist order failed")
		return nil, fmt.Errorf("persist order: %w", err)
	}
	p.Log.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.Number),
		zap.String("buyer_id", order.BuyerID),
		zap.Int64("total_cents", order.TotalCents),
	)

	res := &PlaceResult{Order: order}
	p.fanOut(ctx, order, nil, res, true)

	sellers := make([]string, 0, len(res.SubOrders))
	for _, r := range res.SubOrders {
		sellers = append(sellers, r.SellerID)
	}
	p.publish(ctx, EventOrderPlaced, order.ID, OrderPlacedPayload{
		OrderID: order.ID, OrderNumber: order.Number, BuyerID: order.BuyerID,
		TotalCents: order.TotalCents, PaymentStatus: order.PaymentStatus, Sellers: sellers,
	})
	return res, nil
}

// ReconcileSubOrders re-runs the fan-out for an existing order and creates only the
// sub-orders that are still missing. Failures are returned in the result but not
// published again; retrying them is the caller's decision.
func (p *Processor) ReconcileSubOrders(ctx context.Context, orderID string) (*PlaceResult, error) {
	ctx, span := tracer.Start(ctx, "orders.ReconcileSubOrders")
	defer span.End()

	order, err := p.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	existing, err := p.Store.ListSubOrders(ctx, order.Number)
	if err != nil {
		return nil, fmt.Errorf("list sub-orders: %w", err)
	}
	have := make(map[string]SubOrder, len(existing))
	for _, s := range existing {
		have[s.SellerID] = s
	}
	res := &PlaceResult{Order: order}
	p.fanOut(ctx, order, have, res, false)
	return res, nil
}

func (p *Processor) existingResult(ctx context.Context, order *Order) (*PlaceResult, error) {
	subs, err := p.Store.ListSubOrders(ctx, order.Number)
	if err != nil {
		return nil, fmt.Errorf("list sub-orders: %w", err)
	}
	res := &PlaceResult{Order: order}
	for _, s := range subs {
		res.SubOrders = append(res.SubOrders, SubOrderResult{SellerID: s.SellerID, SubOrderNumber: s.Number})
	}
	return res, nil
}

func validateCart(cart Cart) error {
	if cart.BuyerID == "" {
		return apperr.Invalid("buyer id is required")
	}
	if len(cart.Items) == 0 {
		return apperr.Invalid("cart has no items")
	}
	for _, it := range cart.Items {
		if it.ProductID == "" {
			return apperr.Invalid("item without product id")
		}
		if it.Quantity <= 0 {
			return apperr.Invalid("quantity for product %s must be positive", it.ProductID)
		}
	}
	switch cart.PaymentStatus {
	case "", PaymentPending, PaymentPaid:
	default:
		return apperr.Invalid("payment status %q not accepted at checkout", cart.PaymentStatus)
	}
	return nil
}

// precheck verifies every product is active and in stock, and fills seller and snapshot
// fields from the catalog. It does not mutate anything; the decrement is authoritative.
func (p *Processor) precheck(ctx context.Context, in []LineItem) ([]LineItem, error) {
	items := make([]LineItem, len(in))
	copy(items, in)

	var bad []UnavailableItem
	wanted := map[string]int{}
	var order []string
	for i := range items {
		it := &items[i]
		if p.Catalog != nil {
			prod, err := p.Catalog.GetProduct(ctx, it.ProductID)
			switch {
			case apperr.IsNotFound(err):
				bad = append(bad, UnavailableItem{ProductID: it.ProductID, SellerID: it.SellerID, Requested: it.Quantity, Reason: "not_found"})
				continue
			case err != nil:
				return nil, fmt.Errorf("catalog lookup %s: %w", it.ProductID, err)
			case !prod.Active:
				bad = append(bad, UnavailableItem{ProductID: it.ProductID, SellerID: prod.SellerID, Requested: it.Quantity, Reason: "inactive"})
				continue
			case it.SellerID != "" && prod.SellerID != "" && it.SellerID != prod.SellerID:
				bad = append(bad, UnavailableItem{ProductID: it.ProductID, SellerID: it.SellerID, Requested: it.Quantity, Reason: "seller_mismatch"})
				continue
			}
			fillSnapshot(it, prod)
		}
		if _, seen := wanted[it.ProductID]; !seen {
			order = append(order, it.ProductID)
		}
		wanted[it.ProductID] += it.Quantity
	}

	for _, pid := range order {
		rec, err := p.Ledger.Stock(ctx, pid)
		switch {
		case apperr.IsNotFound(err):
			bad = append(bad, UnavailableItem{ProductID: pid, Requested: wanted[pid], Reason: "not_found"})
		case err != nil:
			return nil, fmt.Errorf("read stock %s: %w", pid, err)
		case wanted[pid] > rec.QuantityOnHand:
			bad = append(bad, UnavailableItem{ProductID: pid, SellerID: rec.SellerID, Requested: wanted[pid], Available: rec.QuantityOnHand, Reason: "insufficient_stock"})
		}
	}

	if len(bad) > 0 {
		return nil, &StockUnavailableError{Items: bad}
	}
	return items, nil
}

func fillSnapshot(it *LineItem, prod Product) {
	if it.SellerID == "" {
		it.SellerID = prod.SellerID
	}
	if it.Name == "" {
		it.Name = prod.Name
	}
	if it.SKU == "" {
		it.SKU = prod.SKU
	}
	if it.UnitPriceCents == 0 {
		it.UnitPriceCents = prod.PriceCents
	}
}

type appliedDecrement struct {
	productID string
	sellerID  string
	quantity  int
}

// decrementAll takes stock line by line. On failure it returns the decrements that did
// go through so the caller can compensate exactly those.
func (p *Processor) decrementAll(ctx context.Context, orderID string, items []LineItem) ([]appliedDecrement, error) {
	applied := make([]appliedDecrement, 0, len(items))
	for _, it := range items {
		_, err := p.Ledger.Decrement(ctx, it.ProductID, it.SellerID, it.Quantity, inventory.ReasonSale, orderID)
		if err != nil {
			var short *inventory.InsufficientStockError
			if errors.As(err, &short) {
				return applied, &StockUnavailableError{
					Items: []UnavailableItem{{
						ProductID: it.ProductID, SellerID: it.SellerID,
						Requested: short.Requested, Available: short.Available, Reason: "insufficient_stock",
					}},
					Err: err,
				}
			}
			return applied, fmt.Errorf("decrement %s: %w", it.ProductID, err)
		}
		applied = append(applied, appliedDecrement{productID: it.ProductID, sellerID: it.SellerID, quantity: it.Quantity})
	}
	return applied, nil
}

// compensate restores the given decrements. Failures are logged; the ledger keeps the
// trail needed to fix them by hand.
func (p *Processor) compensate(ctx context.Context, orderID string, applied []appliedDecrement) {
	for _, a := range applied {
		if _, err := p.Ledger.Restore(ctx, a.productID, a.sellerID, a.quantity, inventory.ReasonAdjustment, orderID); err != nil {
			p.Log.Error("compensating restore failed",
				zap.String("order_id", orderID),
				zap.String("product_id", a.productID),
				zap.Int("quantity", a.quantity),
				zap.Error(err),
			)
		}
	}
}

func (p *Processor) newOrder(id string, now time.Time, cart Cart, items []LineItem) *Order {
	total := cart.TotalCents
	if total == 0 {
		for _, it := range items {
			total += it.TotalCents()
		}
	}
	pay := cart.PaymentStatus
	if pay == "" {
		pay = PaymentPending
	}
	return &Order{
		ID:            id,
		Number:        NewOrderNumber(now),
		ExternalID:    cart.ExternalID,
		BuyerID:       cart.BuyerID,
		Items:         items,
		TotalCents:    total,
		Status:        StatusConfirmed,
		PaymentStatus: pay,
		Shipping:      cart.Shipping,
		Tracking: Tracking{
			TrackingNumber:    NewTrackingNumber(),
			Carrier:           p.cfg.DefaultCarrier,
			EstimatedDelivery: now.Add(p.cfg.DeliveryEstimate),
			CurrentLocation:   "Order confirmed",
		},
		History: []StatusEvent{{
			Status:    string(StatusConfirmed),
			Timestamp: now,
			Note:      "Order placed and confirmed",
		}},
		Attributes: cart.Attributes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// fanOut persists one sub-order per seller, skipping sellers already in have. Every
// seller is attempted regardless of earlier failures. announceFailures publishes a
// SubOrderFailed event per failed seller.
func (p *Processor) fanOut(ctx context.Context, order *Order, have map[string]SubOrder, res *PlaceResult, announceFailures bool) {
	drafts, warnings := p.builder.Build(ctx, BuildInput{
		OrderID:     order.ID,
		OrderNumber: order.Number,
		Items:       order.Items,
		Shipping:    order.Shipping,
		Tracking:    order.Tracking,
	})
	res.Warnings = append(res.Warnings, warnings...)
	for _, w := range warnings {
		p.Log.Warn("sub-order item warning",
			zap.String("order_id", order.ID), zap.String("product_id", w.ProductID), zap.String("warning", w.Message))
	}

	for i := range drafts {
		d := &drafts[i]
		if s, ok := have[d.SellerID]; ok {
			res.SubOrders = append(res.SubOrders, SubOrderResult{SellerID: s.SellerID, SubOrderNumber: s.Number})
			continue
		}
		if err := p.Store.CreateSubOrder(ctx, d); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				// sudah dibuat oleh proses lain
				res.SubOrders = append(res.SubOrders, SubOrderResult{SellerID: d.SellerID, SubOrderNumber: d.Number})
				continue
			}
			serr := &SubOrderCreationError{SellerID: d.SellerID, Number: d.Number, Err: err}
			res.Errors = append(res.Errors, serr)
			res.SubOrders = append(res.SubOrders, SubOrderResult{SellerID: d.SellerID, Error: serr.Error()})
			p.Log.Error("sub-order creation failed",
				zap.String("order_id", order.ID), zap.String("seller_id", d.SellerID), zap.Error(err))
			if announceFailures {
				p.publish(ctx, EventSubOrderFailed, order.ID, SubOrderFailedPayload{
					OrderID: order.ID, SubOrderNumber: d.Number, SellerID: d.SellerID, Reason: err.Error(),
				})
			}
			continue
		}
		res.SubOrders = append(res.SubOrders, SubOrderResult{SellerID: d.SellerID, SubOrderNumber: d.Number})
		p.publish(ctx, EventSubOrderCreated, order.ID, SubOrderCreatedPayload{
			OrderID: order.ID, SubOrderNumber: d.Number, SellerID: d.SellerID, TotalCents: d.TotalCents,
		})
		p.notifySeller(ctx, d)
	}
}

func (p *Processor) notifySeller(ctx context.Context, s *SubOrder) {
	if p.Notifier == nil {
		return
	}
	if p.Sellers != nil {
		seller, err := p.Sellers.GetSeller(ctx, s.SellerID)
		if err != nil {
			p.Log.Warn("seller lookup failed; notification skipped",
				zap.String("seller_id", s.SellerID), zap.Error(err))
			return
		}
		if !seller.NotifyNewOrders {
			return
		}
	}
	if err := p.Notifier.NotifySellerNewOrder(ctx, s.SellerID, s.Number, s.Items, s.TotalCents); err != nil {
		p.Log.Warn("seller notification failed",
			zap.String("seller_id", s.SellerID), zap.String("sub_order", s.Number), zap.Error(err))
	}
}
