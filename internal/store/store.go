// Package store defines the seen-record store abstraction for webhunter.
// All business logic depends on the Store interface, never on concrete
// implementations. This enables fake-based testing without a database file.
//
// The store is the single source of truth for "already notified": workers
// never cache identity decisions beyond one poll cycle.
package store

import (
	"context"
	"errors"
	"time"

	domain "github.com/webhunter-dev/webhunter/pkg/types"
)

// ErrCorruptStore indicates the persisted store cannot be read or parsed.
// It is fatal at startup: operating with an unreadable store risks
// re-notifying everything.
var ErrCorruptStore = errors.New("seen store is corrupt")

// ErrStoreUnavailable indicates a durable write failed after bounded retries.
var ErrStoreUnavailable = errors.New("seen store unavailable")

// Store defines all seen-record operations.
type Store interface {
	// Load verifies the durable state is readable at startup. A corrupt
	// store returns an error wrapping ErrCorruptStore and the process must
	// refuse to start.
	Load(ctx context.Context) error

	// HasSeen reports whether the (sourceID, listingID) pair has already
	// terminated a notification sequence. Pure lookup, no side effect.
	HasSeen(ctx context.Context, sourceID, listingID string) (bool, error)

	// MarkSeen durably records a terminal delivery status for the pair.
	// It is idempotent: marking an already-seen pair is a no-op, and an
	// existing record is never mutated. The write is flushed to stable
	// storage before MarkSeen returns.
	MarkSeen(ctx context.Context, sourceID, listingID string, status domain.SeenStatus) error

	// Prune deletes seen records older than the given age and returns the
	// number removed.
	Prune(ctx context.Context, olderThan time.Duration) (int, error)

	// Count returns the total number of seen records.
	Count(ctx context.Context) (int, error)

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error

	Close() error
}
