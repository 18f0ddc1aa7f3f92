package mirror

import (
	"context"
)

// SnapshotPath identifies one mirrorable object within a storage
// namespace. It is a relative path compared by lexicographic byte order;
// two keys are equal iff their strings are equal. Keys are canonical:
// checksum fragments and query strings are stripped during snapshotting so
// an unchanged object yields the same key on every re-scan.
type SnapshotPath string

// TransferURL is an absolute, short-lived locator for an object's bytes.
// It is produced on demand by a source, consumed immediately by the
// transfer step, and never persisted, compared or sorted.
type TransferURL string

// SnapshotStorage enumerates the current content of a storage.
type SnapshotStorage[K any] interface {
	// Snapshot returns every key the storage currently exposes. Failures
	// of individual partial scans are absorbed and logged; only errors
	// that make the whole listing untrustworthy are returned.
	Snapshot(ctx context.Context, mission *Mission, config *SnapshotConfig) ([]K, error)

	// Info describes the backend and its configuration for logging.
	Info() string
}

// SourceStorage resolves a key to a fetchable item.
type SourceStorage[K, Item any] interface {
	GetObject(ctx context.Context, key K, mission *Mission) (Item, error)
}

// TargetStorage accepts content at a key.
type TargetStorage[K, Item any] interface {
	PutObject(ctx context.Context, key K, item Item, mission *Mission) error
}

// Source is what the transfer engine requires from the sending side.
type Source[K, Item any] interface {
	SnapshotStorage[K]
	SourceStorage[K, Item]
}

// Target is what the transfer engine requires from the receiving side.
type Target[K, Item any] interface {
	SnapshotStorage[K]
	TargetStorage[K, Item]
}
