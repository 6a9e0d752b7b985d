// Package lock provides named, non-blocking, process-wide try-locks.
package lock

import "context"

// Locker acquires named locks without waiting. When the lock is held
// elsewhere, TryAcquire returns ok=false and a nil error.
type Locker interface {
	TryAcquire(ctx context.Context, key string) (release func(), ok bool, err error)
}
