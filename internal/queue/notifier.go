package queue

import (
	"context"
	"time"
)

// Notifier carries wake-up signals from enqueuers to idle delivery workers.
// Jobs themselves live in the database; a signal only means "dequeue again".
//
// Signals are buffered up to capacity. Notify never blocks: extra signals are
// dropped because workers also poll on a timer, so a lost signal delays a job
// by at most one idle interval.
type Notifier struct {
	ch chan struct{}
}

func New(capacity int) *Notifier {
	if capacity < 1 {
		capacity = 1
	}
	return &Notifier{ch: make(chan struct{}, capacity)}
}

// Notify posts up to n signals.
func (q *Notifier) Notify(n int) {
	for i := 0; i < n; i++ {
		select {
		case q.ch <- struct{}{}:
		default:
			return
		}
	}
}

// Wait blocks until a signal arrives, timeout elapses or ctx is cancelled.
// Returns false only when ctx is cancelled (graceful shutdown signal).
func (q *Notifier) Wait(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-q.ch:
		return true
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Pending returns the number of buffered signals.
func (q *Notifier) Pending() int {
	return len(q.ch)
}
