package session

import (
	"context"
	"math/rand"
	"time"
)

// Waiter blocks between empty reads. Wait returns ctx.Err() once ctx is done.
type Waiter interface {
	Wait(ctx context.Context) error
	Reset()
}

// Notifier is implemented by sources that signal when data arrives.
type Notifier interface {
	Ready() <-chan struct{}
}

// BackoffWaiter sleeps with growing delay until Reset.
type BackoffWaiter struct {
	cfg     BackoffConfig
	attempt int
	rng     *rand.Rand
}

func NewBackoffWaiter(cfg BackoffConfig) *BackoffWaiter {
	w := &BackoffWaiter{cfg: cfg}
	if cfg.Jitter {
		w.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return w
}

func (w *BackoffWaiter) next() time.Duration {
	w.attempt++
	return NextBackoffDelay(w.cfg, w.attempt, w.rng)
}

func (w *BackoffWaiter) Wait(ctx context.Context) error {
	return sleep(ctx, w.next(), nil)
}

func (w *BackoffWaiter) Reset() {
	w.attempt = 0
}

// NotifyWaiter wakes on the notifier or, failing that, after the backoff
// delay. A nil Ready channel degrades to plain backoff.
type NotifyWaiter struct {
	n       Notifier
	backoff *BackoffWaiter
}

func NewNotifyWaiter(n Notifier, cfg BackoffConfig) *NotifyWaiter {
	return &NotifyWaiter{n: n, backoff: NewBackoffWaiter(cfg)}
}

func (w *NotifyWaiter) Wait(ctx context.Context) error {
	return sleep(ctx, w.backoff.next(), w.n.Ready())
}

func (w *NotifyWaiter) Reset() {
	w.backoff.Reset()
}

func sleep(ctx context.Context, d time.Duration, ready <-chan struct{}) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ready:
		return nil
	case <-timer.C:
		return nil
	}
}
