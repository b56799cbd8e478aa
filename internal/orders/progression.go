package orders

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProgressionPolicy bounds how long an order dwells in each non-terminal status before
// the sweep advances it. The wait for every hop is drawn from [MinWait, MaxWait).
type ProgressionPolicy struct {
	MinWait   time.Duration
	MaxWait   time.Duration
	BatchSize int
	Seed      int64
}

func DefaultProgressionPolicy() ProgressionPolicy {
	return ProgressionPolicy{MinWait: 8 * time.Hour, MaxWait: 24 * time.Hour, BatchSize: 500}
}

type SweepReport struct {
	Scanned     int `json:"scanned"`
	Advanced    int `json:"advanced"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
	SubScanned  int `json:"sub_scanned"`
	SubAdvanced int `json:"sub_advanced"`
	SubSkipped  int `json:"sub_skipped"`
	SubFailed   int `json:"sub_failed"`
}

// Progression advances orders and sub-orders along confirmed → processing → shipped →
// delivered once their dwell time has elapsed. Every write is conditioned on the status
// the sweep read, so overlapping sweeps cannot advance the same order twice.
type Progression struct {
	Deps
	policy ProgressionPolicy
	rnd    *lockedRand
}

func NewProgression(d Deps, policy ProgressionPolicy) *Progression {
	d = d.withDefaults()
	def := DefaultProgressionPolicy()
	if policy.MinWait <= 0 {
		policy.MinWait = def.MinWait
	}
	if policy.MaxWait < policy.MinWait {
		policy.MaxWait = policy.MinWait
	}
	if policy.BatchSize <= 0 {
		policy.BatchSize = def.BatchSize
	}
	seed := policy.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	d.Log = d.Log.Named("progression")
	return &Progression{Deps: d, policy: policy, rnd: newLockedRand(seed)}
}

// threshold draws a fresh dwell time for one hop.
func (p *Progression) threshold() time.Duration {
	span := p.policy.MaxWait - p.policy.MinWait
	if span <= 0 {
		return p.policy.MinWait
	}
	return p.policy.MinWait + time.Duration(p.rnd.Int63n(int64(span)))
}

func (p *Progression) Sweep(ctx context.Context) (SweepReport, error) {
	ctx, span := tracer.Start(ctx, "orders.Sweep")
	defer span.End()

	var rep SweepReport
	if err := p.sweepOrders(ctx, &rep); err != nil {
		return rep, err
	}
	if err := p.sweepSubOrders(ctx, &rep); err != nil {
		return rep, err
	}
	span.SetAttributes(
		attribute.Int("sweep.advanced", rep.Advanced),
		attribute.Int("sweep.sub_advanced", rep.SubAdvanced),
	)
	if rep.Advanced+rep.SubAdvanced+rep.Failed+rep.SubFailed > 0 {
		p.Log.Info("sweep finished",
			zap.Int("scanned", rep.Scanned), zap.Int("advanced", rep.Advanced),
			zap.Int("skipped", rep.Skipped), zap.Int("failed", rep.Failed),
			zap.Int("sub_scanned", rep.SubScanned), zap.Int("sub_advanced", rep.SubAdvanced),
			zap.Int("sub_skipped", rep.SubSkipped), zap.Int("sub_failed", rep.SubFailed),
		)
	}
	return rep, nil
}

func (p *Progression) sweepOrders(ctx context.Context, rep *SweepReport) error {
	list, err := p.Store.ListOrdersByStatus(ctx, ActiveStatuses(), p.policy.BatchSize)
	if err != nil {
		return fmt.Errorf("list active orders: %w", err)
	}
	for i := range list {
		if err := ctx.Err(); err != nil {
			return err
		}
		o := &list[i]
		rep.Scanned++
		next, ok := o.Status.Next()
		if !ok {
			continue
		}
		now := p.Now().UTC()
		age := now.Sub(o.LastStatusChange())
		if age < p.threshold() {
			continue
		}
		tr := advanceTracking(o.Tracking, next, now, o.Shipping, "")
		t := Transition{
			From:     o.Status,
			To:       next,
			Event:    StatusEvent{Status: string(next), Timestamp: now, Note: autoNote(o.Status, next, age)},
			Tracking: &tr,
		}
		applied, err := p.Store.TransitionOrder(ctx, o.ID, t)
		switch {
		case err != nil:
			rep.Failed++
			p.Log.Error("auto-advance failed", zap.String("order_id", o.ID), zap.Error(err))
		case !applied:
			rep.Skipped++
		default:
			rep.Advanced++
			p.publish(ctx, EventOrderStatusChanged, o.ID, StatusChangedPayload{
				OrderID: o.ID, From: string(o.Status), To: string(next), Note: t.Event.Note, Automatic: true,
			})
		}
	}
	return nil
}

func (p *Progression) sweepSubOrders(ctx context.Context, rep *SweepReport) error {
	list, err := p.Store.ListSubOrdersByStatus(ctx, ActiveSubStatuses(), p.policy.BatchSize)
	if err != nil {
		return fmt.Errorf("list active sub-orders: %w", err)
	}
	for i := range list {
		if err := ctx.Err(); err != nil {
			return err
		}
		s := &list[i]
		rep.SubScanned++
		next, ok := s.Status.Canonical().Next()
		if !ok {
			continue
		}
		now := p.Now().UTC()
		age := now.Sub(s.LastStatusChange())
		if age < p.threshold() {
			continue
		}
		to := SubStatusOf(next)
		tr := advanceTracking(s.Tracking, next, now, s.Shipping, "")
		t := SubOrderTransition{
			From:     s.Status,
			To:       to,
			Event:    StatusEvent{Status: string(to), Timestamp: now, Note: autoNote(s.Status.Canonical(), next, age)},
			Tracking: &tr,
		}
		applied, err := p.Store.TransitionSubOrder(ctx, s.Number, t)
		switch {
		case err != nil:
			rep.SubFailed++
			p.Log.Error("auto-advance sub-order failed", zap.String("sub_order", s.Number), zap.Error(err))
		case !applied:
			rep.SubSkipped++
		default:
			rep.SubAdvanced++
			p.publish(ctx, EventSubOrderStatusChanged, s.ParentID, StatusChangedPayload{
				OrderID: s.ParentID, SubOrderNumber: s.Number, From: string(s.Status), To: string(to),
				Note: t.Event.Note, Automatic: true,
			})
		}
	}
	return nil
}

func autoNote(from, to Status, age time.Duration) string {
	switch to {
	case StatusProcessing:
		return fmt.Sprintf("Automatically moved to processing after %s confirmed", age.Truncate(time.Minute))
	case StatusShipped:
		return fmt.Sprintf("Handed to carrier after %s in %s", age.Truncate(time.Minute), from)
	case StatusDelivered:
		return fmt.Sprintf("Delivered after %s in transit", age.Truncate(time.Minute))
	}
	return fmt.Sprintf("Automatically moved from %s to %s", from, to)
}
