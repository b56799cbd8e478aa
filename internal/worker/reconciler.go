// Package worker holds the background consumers of the order worker process.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/apperr"
	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 30 * time.Second
	maxBackoff         = 5 * time.Minute
)

// Deduper is satisfied by *redisx.Deduper.
type Deduper interface {
	MarkOnce(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type SubOrderReconciler interface {
	ReconcileSubOrders(ctx context.Context, orderID string) (*orders.PlaceResult, error)
}

// Reconciler retries sub-order fan-out when a SubOrderFailed event arrives. A retry that
// fails again is scheduled by publishing a new SubOrderFailed with a higher attempt and a
// growing delay, so the message itself can always be committed. After MaxAttempts the
// order is logged for manual follow-up and dropped.
type Reconciler struct {
	Orders      SubOrderReconciler
	Retry       orders.EventSink // where follow-up attempts go; usually the kafka sink
	Dedup       Deduper          // optional
	MaxAttempts int
	Backoff     time.Duration
	Log         *zap.Logger

	now func() time.Time
}

// HandleSubOrderFailed: dipasang sebagai handler consumer. Error berarti pesan tidak boleh
// di-commit (hanya saat shutdown atau retry tidak bisa dijadwalkan).
func (r *Reconciler) HandleSubOrderFailed(ctx context.Context, m kafkago.Message) error {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	// 1) decode envelope
	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		log.Warn("dropping undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventSubOrderFailed {
		return nil
	} // ignore

	p, err := kafkax.UnwrapPayload[orders.SubOrderFailedPayload](env.Payload)
	if err != nil {
		log.Warn("dropping event with bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	// 2) tunggu jadwal retry
	if p.RetryAt != nil {
		if d := p.RetryAt.Sub(r.clock()); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
		}
	}

	// 3) dedup via Redis (pakai event_id)
	if r.Dedup != nil {
		first, err := r.Dedup.MarkOnce(ctx, env.EventID)
		if err != nil {
			log.Warn("dedup unavailable", zap.String("event_id", env.EventID), zap.Error(err))
		} else if !first {
			return nil
		}
	}

	// 4) retry fan-out
	res, err := r.Orders.ReconcileSubOrders(ctx, p.OrderID)
	switch {
	case apperr.IsNotFound(err):
		log.Warn("order for failed sub-order not found", zap.String("order_id", p.OrderID))
		return nil
	case err != nil && ctx.Err() != nil:
		// shutting down: leave the message for the next consumer
		r.forget(log, env.EventID)
		return ctx.Err()
	case err != nil:
		return r.scheduleRetry(ctx, log, env.EventID, p, err.Error())
	case len(res.Errors) > 0:
		return r.scheduleRetry(ctx, log, env.EventID, p, res.Errors[0].Error())
	}
	log.Info("sub-orders reconciled",
		zap.String("order_id", p.OrderID), zap.String("seller_id", p.SellerID),
		zap.Int("attempt", p.Attempt), zap.Int("sub_orders", len(res.SubOrders)))
	return nil
}

func (r *Reconciler) scheduleRetry(ctx context.Context, log *zap.Logger, eventID string, p orders.SubOrderFailedPayload, reason string) error {
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	next := p.Attempt + 1
	if next >= maxAttempts {
		log.Error("giving up on sub-order reconcile",
			zap.String("order_id", p.OrderID), zap.String("seller_id", p.SellerID),
			zap.Int("attempts", next), zap.String("reason", reason))
		return nil
	}
	if r.Retry == nil {
		r.forget(log, eventID)
		return fmt.Errorf("reconcile order %s: %s", p.OrderID, reason)
	}

	at := r.clock().Add(r.delay(p.Attempt)).UTC()
	retry := p
	retry.Attempt = next
	retry.RetryAt = &at
	retry.Reason = reason
	if err := r.Retry.Publish(ctx, orders.Event{Type: orders.EventSubOrderFailed, OrderID: p.OrderID, Payload: retry}); err != nil {
		r.forget(log, eventID)
		return fmt.Errorf("schedule reconcile retry for %s: %w", p.OrderID, err)
	}
	log.Warn("sub-orders still missing; retry scheduled",
		zap.String("order_id", p.OrderID), zap.Int("attempt", next), zap.Time("retry_at", at), zap.String("reason", reason))
	return nil
}

// delay doubles per attempt, capped.
func (r *Reconciler) delay(attempt int) time.Duration {
	d := r.Backoff
	if d <= 0 {
		d = defaultBackoff
	}
	for i := 0; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func (r *Reconciler) forget(log *zap.Logger, eventID string) {
	if r.Dedup == nil {
		return
	}
	// ctx may already be cancelled here
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Dedup.Forget(ctx, eventID); err != nil {
		log.Warn("dedup forget failed", zap.String("event_id", eventID), zap.Error(err))
	}
}

func (r *Reconciler) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}
