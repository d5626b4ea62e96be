package driven

import (
	"context"
	"time"
)

// DistributedLock serialises reindex runs of the same index across API and
// worker processes. Lock names are "reindex:<index id>".
type DistributedLock interface {
	// Acquire takes the lock without waiting. It returns false, nil when
	// another holder has it. Redis locks expire after ttl; advisory locks
	// ignore it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release gives the lock up. Releasing a lock that is not held, or that
	// already expired, is not an error.
	Release(ctx context.Context, name string) error

	// Extend pushes the expiry of a held lock out by ttl, for reindex runs
	// that outlive their first ttl. A no-op where locks do not expire.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	Ping(ctx context.Context) error
}
