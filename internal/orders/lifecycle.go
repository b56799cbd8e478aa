package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-marketplace-orders/internal/apperr"
	"github.com/ariefcatur/go-marketplace-orders/internal/inventory"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// casAttempts bounds how often an explicit transition re-reads the order after losing a
// compare-and-set race.
const casAttempts = 3

// Lifecycle performs user- and operator-triggered status changes.
type Lifecycle struct {
	Deps
}

func NewLifecycle(d Deps) *Lifecycle {
	d = d.withDefaults()
	d.Log = d.Log.Named("lifecycle")
	return &Lifecycle{Deps: d}
}

type ShipInput struct {
	Carrier        string
	TrackingNumber string
	Location       string
	Note           string
}

// Cancel cancels a confirmed or processing order, refunds it and restores its stock.
// Cancelling an already cancelled order succeeds without doing anything. An order with a
// parcel that has already left a seller cannot be cancelled.
func (l *Lifecycle) Cancel(ctx context.Context, orderID, reason string) error {
	ctx, span := tracer.Start(ctx, "orders.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return apperr.Invalid("cancellation reason is required")
	}
	if err := l.checkParcelsCancellable(ctx, orderID); err != nil {
		return err
	}

	order, changed, err := l.transition(ctx, orderID, StatusCancelled, func(o *Order) Transition {
		tr := advanceTracking(o.Tracking, StatusCancelled, l.Now().UTC(), o.Shipping, "")
		return Transition{
			Event:         StatusEvent{Status: string(StatusCancelled), Note: "Cancelled: " + reason},
			PaymentStatus: PaymentRefunded,
			Tracking:      &tr,
		}
	})
	if err != nil || !changed {
		return err
	}

	// cascade first: only goods still with their seller go back into stock
	left := l.cascadeCancel(ctx, order, reason)
	for _, it := range order.Items {
		if left[it.SellerID] {
			l.Log.Warn("parcel left before cancel; stock not restored",
				zap.String("order_id", order.ID), zap.String("seller_id", it.SellerID), zap.String("product_id", it.ProductID))
			continue
		}
		if _, err := l.Ledger.Restore(ctx, it.ProductID, it.SellerID, it.Quantity, inventory.ReasonReturn, order.ID); err != nil {
			l.Log.Error("restore stock after cancel failed",
				zap.String("order_id", order.ID), zap.String("product_id", it.ProductID),
				zap.Int("quantity", it.Quantity), zap.Error(err))
		}
	}
	l.Log.Info("order cancelled", zap.String("order_id", order.ID), zap.String("reason", reason))
	return nil
}

// checkParcelsCancellable refuses the cancel when one of the order's sub-orders has shipped
// (or got further). An order that is already cancelled passes.
func (l *Lifecycle) checkParcelsCancellable(ctx context.Context, orderID string) error {
	o, err := l.Store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status == StatusCancelled || !CanTransition(o.Status, StatusCancelled) {
		// transition reports the aggregate's own verdict
		return nil
	}
	subs, err := l.Store.ListSubOrders(ctx, o.Number)
	if err != nil {
		return fmt.Errorf("list sub-orders: %w", err)
	}
	for _, s := range subs {
		if s.Status != SubStatusCancelled && !CanTransitionSub(s.Status, SubStatusCancelled) {
			return &InvalidTransitionError{Entity: "sub-order", ID: s.Number, From: string(s.Status), To: string(SubStatusCancelled)}
		}
	}
	return nil
}

// cascadeCancel cancels the sub-orders whose parcels have not left yet. It returns the
// sellers whose parcel left anyway, between the check and the cancel.
func (l *Lifecycle) cascadeCancel(ctx context.Context, order *Order, reason string) map[string]bool {
	left := map[string]bool{}
	subs, err := l.Store.ListSubOrders(ctx, order.Number)
	if err != nil {
		l.Log.Error("list sub-orders for cancel failed", zap.String("order_id", order.ID), zap.Error(err))
		return left
	}
	for _, s := range subs {
		if !l.cancelSubOrder(ctx, order, s, reason) {
			left[s.SellerID] = true
		}
	}
	return left
}

// cancelSubOrder reports false only when the parcel is known to have left.
func (l *Lifecycle) cancelSubOrder(ctx context.Context, order *Order, s SubOrder, reason string) bool {
	for attempt := 0; attempt < casAttempts; attempt++ {
		if s.Status == SubStatusCancelled {
			return true
		}
		if !CanTransitionSub(s.Status, SubStatusCancelled) {
			return false
		}
		now := l.Now().UTC()
		tr := advanceTracking(s.Tracking, StatusCancelled, now, s.Shipping, "")
		ok, err := l.Store.TransitionSubOrder(ctx, s.Number, SubOrderTransition{
			From:     s.Status,
			To:       SubStatusCancelled,
			Event:    StatusEvent{Status: string(SubStatusCancelled), Timestamp: now, Note: "Parent order cancelled: " + reason},
			Tracking: &tr,
		})
		if err != nil {
			l.Log.Error("cancel sub-order failed", zap.String("sub_order", s.Number), zap.Error(err))
			return true
		}
		if ok {
			l.publish(ctx, EventSubOrderStatusChanged, order.ID, StatusChangedPayload{
				OrderID: order.ID, SubOrderNumber: s.Number, From: string(s.Status), To: string(SubStatusCancelled),
			})
			return true
		}
		cur, err := l.Store.GetSubOrder(ctx, s.Number)
		if err != nil {
			l.Log.Error("re-read sub-order failed", zap.String("sub_order", s.Number), zap.Error(err))
			return true
		}
		s = *cur
	}
	l.Log.Warn("sub-order kept changing during cancel", zap.String("sub_order", s.Number))
	return true
}

func (l *Lifecycle) Process(ctx context.Context, orderID, note string) (*Order, error) {
	order, _, err := l.transition(ctx, orderID, StatusProcessing, func(o *Order) Transition {
		tr := advanceTracking(o.Tracking, StatusProcessing, l.Now().UTC(), o.Shipping, "")
		return Transition{
			Event:    StatusEvent{Status: string(StatusProcessing), Note: firstNonEmpty(note, "Order is being processed")},
			Tracking: &tr,
		}
	})
	return order, err
}

// Ship marks a processing order as handed to the carrier.
func (l *Lifecycle) Ship(ctx context.Context, orderID string, in ShipInput) (*Order, error) {
	order, _, err := l.transition(ctx, orderID, StatusShipped, func(o *Order) Transition {
		tr := advanceTracking(o.Tracking, StatusShipped, l.Now().UTC(), o.Shipping, in.Location)
		if in.Carrier != "" {
			tr.Carrier = in.Carrier
		}
		if in.TrackingNumber != "" {
			tr.TrackingNumber = in.TrackingNumber
		}
		return Transition{
			Event:    StatusEvent{Status: string(StatusShipped), Note: firstNonEmpty(in.Note, "Shipped via "+tr.Carrier)},
			Tracking: &tr,
		}
	})
	return order, err
}

func (l *Lifecycle) Deliver(ctx context.Context, orderID, location, note string) (*Order, error) {
	order, _, err := l.transition(ctx, orderID, StatusDelivered, func(o *Order) Transition {
		tr := advanceTracking(o.Tracking, StatusDelivered, l.Now().UTC(), o.Shipping, location)
		return Transition{
			Event:    StatusEvent{Status: string(StatusDelivered), Note: firstNonEmpty(note, "Delivered to recipient")},
			Tracking: &tr,
		}
	})
	return order, err
}

// MarkReturned records the outcome of the returns workflow. Stock is not restocked here;
// returned goods go through inspection first.
func (l *Lifecycle) MarkReturned(ctx context.Context, orderID, note string) (*Order, error) {
	order, _, err := l.transition(ctx, orderID, StatusReturned, func(o *Order) Transition {
		tr := advanceTracking(o.Tracking, StatusReturned, l.Now().UTC(), o.Shipping, "")
		return Transition{
			Event:    StatusEvent{Status: string(StatusReturned), Note: firstNonEmpty(note, "Order returned")},
			Tracking: &tr,
		}
	})
	return order, err
}

// transition reads the order, checks the rule and writes conditionally on the status it
// read. A lost race re-reads and re-checks. changed is false when the order already had
// status to.
func (l *Lifecycle) transition(ctx context.Context, orderID string, to Status, build func(o *Order) Transition) (*Order, bool, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		o, err := l.Store.GetOrder(ctx, orderID)
		if err != nil {
			return nil, false, err
		}
		if o.Status == to {
			return o, false, nil
		}
		if !CanTransition(o.Status, to) {
			return nil, false, &InvalidTransitionError{Entity: "order", ID: orderID, From: string(o.Status), To: string(to)}
		}

		t := build(o)
		t.From, t.To = o.Status, to
		t.Event.Timestamp = l.Now().UTC()

		ok, err := l.Store.TransitionOrder(ctx, orderID, t)
		if err != nil {
			return nil, false, fmt.Errorf("transition order %s: %w", orderID, err)
		}
		if ok {
			o.Apply(t)
			l.publish(ctx, EventOrderStatusChanged, o.ID, StatusChangedPayload{
				OrderID: o.ID, From: string(t.From), To: string(to), Note: t.Event.Note,
			})
			return o, true, nil
		}
		l.Log.Debug("order status changed concurrently; retrying",
			zap.String("order_id", orderID), zap.String("expected", string(t.From)))
	}
	return nil, false, fmt.Errorf("%w: order %s kept changing", apperr.ErrConflict, orderID)
}

// AdvanceSubOrder moves one seller's sub-order. Cancellation is driven by the parent
// order and is refused here.
func (l *Lifecycle) AdvanceSubOrder(ctx context.Context, number string, to SubOrderStatus, note, location string) (*SubOrder, error) {
	if !to.Valid() {
		return nil, apperr.Invalid("unknown sub-order status %q", to)
	}
	if to == SubStatusCancelled || to == SubStatusNew {
		return nil, apperr.Invalid("sub-order status %q cannot be set directly", to)
	}
	for attempt := 0; attempt < casAttempts; attempt++ {
		s, err := l.Store.GetSubOrder(ctx, number)
		if err != nil {
			return nil, err
		}
		if s.Status == to {
			return s, nil
		}
		if !CanTransitionSub(s.Status, to) {
			return nil, &InvalidTransitionError{Entity: "sub-order", ID: number, From: string(s.Status), To: string(to)}
		}
		now := l.Now().UTC()
		tr := advanceTracking(s.Tracking, to.Canonical(), now, s.Shipping, location)
		t := SubOrderTransition{
			From:     s.Status,
			To:       to,
			Event:    StatusEvent{Status: string(to), Timestamp: now, Note: firstNonEmpty(note, "Updated by seller")},
			Tracking: &tr,
		}
		ok, err := l.Store.TransitionSubOrder(ctx, number, t)
		if err != nil {
			return nil, fmt.Errorf("transition sub-order %s: %w", number, err)
		}
		if ok {
			s.Apply(t)
			l.publish(ctx, EventSubOrderStatusChanged, s.ParentID, StatusChangedPayload{
				OrderID: s.ParentID, SubOrderNumber: s.Number, From: string(t.From), To: string(to), Note: t.Event.Note,
			})
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: sub-order %s kept changing", apperr.ErrConflict, number)
}
