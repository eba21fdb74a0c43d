package locstore

import (
	"context"
	"iter"
)

// Backend is the contract each location-index implementation exposes to the
// router. Implementations must be safe for concurrent use; each backend owns
// its own storage, pooling and retry policy. The router adds none of its own.
type Backend interface {
	// Lookup returns the known locations for each hash. The origin hint tells
	// a backend with both views which one the caller prefers; backends with a
	// single view may ignore it. Hashes with no known location are absent
	// from the result.
	Lookup(ctx context.Context, hashes []ContentHash, origin Origin) (map[ContentHash]LocationSet, error)

	// Register records that machine holds the given blobs. When touch is set
	// the expiry of already-known records is refreshed as well.
	Register(ctx context.Context, machine MachineLocation, blobs []BlobRecord, touch bool) error

	// TrimByHashes removes every location record for the given hashes.
	TrimByHashes(ctx context.Context, hashes []ContentHash) error

	// TrimByMap removes the specific replicas named in the map, leaving other
	// replicas of the same hash in place. Only meaningful to a backend whose
	// consistency model depends on explicit removal notices.
	TrimByMap(ctx context.Context, replicas map[ContentHash][]MachineLocation) error

	// Touch refreshes the expiry of machine's records for the given hashes
	// without modifying them.
	Touch(ctx context.Context, machine MachineLocation, hashes []ContentHash) error

	// Counters returns a snapshot of the backend's named counters.
	Counters(ctx context.Context) (Counters, error)

	// EvictionOrder returns a finite, single-use lazy sequence of the given
	// candidates in eviction-priority order, computed over a point-in-time
	// snapshot. Only meaningful for a backend with a locally materialized
	// view; others return an empty sequence.
	EvictionOrder(ctx context.Context, candidates []ContentHash) iter.Seq[EvictionCandidate]

	// PutBlob stores a small content blob inline in the index.
	PutBlob(ctx context.Context, hash ContentHash, data []byte) error

	// GetBlob retrieves a small content blob stored via PutBlob.
	GetBlob(ctx context.Context, hash ContentHash) ([]byte, error)

	// BlobsSupported reports whether this backend implements PutBlob/GetBlob.
	BlobsSupported() bool

	// GarbageCollect sweeps location metadata whose backing records expired.
	GarbageCollect(ctx context.Context) error

	// Reputation returns the backend's machine-reputation tracker.
	Reputation() ReputationTracker

	// RandomMachine returns a machine currently known to the cluster, or
	// ErrNoActiveMachines when none is.
	RandomMachine(ctx context.Context) (MachineLocation, error)

	// IsMachineActive reports whether a machine is currently active.
	IsMachineActive(ctx context.Context, machine MachineLocation) (bool, error)

	// Start brings the backend up. Idempotent.
	Start(ctx context.Context) error

	// Stop shuts the backend down. Idempotent.
	Stop(ctx context.Context) error
}
