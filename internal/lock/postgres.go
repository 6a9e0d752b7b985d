package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PgAdvisoryLocker maps keys onto PostgreSQL session advisory locks.
// The lock is held on a dedicated pooled connection until release.
type PgAdvisoryLocker struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPgAdvisoryLocker(pool *pgxpool.Pool, logger *zap.Logger) *PgAdvisoryLocker {
	return &PgAdvisoryLocker{pool: pool, logger: logger}
}

func (l *PgAdvisoryLocker) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var locked bool
	err = conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtextextended($1, 0))`, key).Scan(&locked)
	if err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key); err != nil {
				// A session lock dies with its connection.
				l.logger.Warn("advisory unlock failed, closing connection",
					zap.String("key", key), zap.Error(err))
				_ = conn.Conn().Close(ctx)
			}
			conn.Release()
		})
	}
	return release, true, nil
}

var _ Locker = (*PgAdvisoryLocker)(nil)
