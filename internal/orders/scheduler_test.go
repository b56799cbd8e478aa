package orders_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type countingSweeper struct {
	calls atomic.Int32
	onRun func()
}

func (s *countingSweeper) Sweep(context.Context) (orders.SweepReport, error) {
	s.calls.Add(1)
	if s.onRun != nil {
		s.onRun()
	}
	return orders.SweepReport{}, nil
}

type stubLocker struct {
	ok       bool
	err      error
	released atomic.Int32
}

func (l *stubLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	if l.err != nil || !l.ok {
		return nil, false, l.err
	}
	return func() { l.released.Add(1) }, true, nil
}

func runScheduler(t *testing.T, s *orders.Scheduler, until func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, until, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_SweepsUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	sw := &countingSweeper{}
	lk := &stubLocker{ok: true}
	runScheduler(t, &orders.Scheduler{Sweeper: sw, Interval: 10 * time.Millisecond, Locker: lk, LockKey: "k"},
		func() bool { return sw.calls.Load() >= 3 })

	assert.GreaterOrEqual(t, lk.released.Load(), int32(3))
}

func TestScheduler_SkipsWhileLockHeldElsewhere(t *testing.T) {
	defer goleak.VerifyNone(t)

	sw := &countingSweeper{}
	var ticks atomic.Int32
	lk := &stubLocker{ok: false}
	s := &orders.Scheduler{Sweeper: sw, Interval: 5 * time.Millisecond, Locker: countingLocker{lk, &ticks}, LockKey: "k"}
	runScheduler(t, s, func() bool { return ticks.Load() >= 3 })

	assert.Zero(t, sw.calls.Load())
}

func TestScheduler_SweepsWhenLockStoreIsDown(t *testing.T) {
	defer goleak.VerifyNone(t)

	sw := &countingSweeper{}
	lk := &stubLocker{err: errors.New("connection refused")}
	runScheduler(t, &orders.Scheduler{Sweeper: sw, Interval: 5 * time.Millisecond, Locker: lk, LockKey: "k"},
		func() bool { return sw.calls.Load() >= 2 })
}

type countingLocker struct {
	*stubLocker
	n *atomic.Int32
}

func (c countingLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	c.n.Add(1)
	return c.stubLocker.TryLock(ctx, key, ttl)
}
