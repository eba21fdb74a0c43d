package locstore

import (
	"context"
	"fmt"
	"iter"

	"go.uber.org/zap"
)

// Router dispatches every location-index operation to one or both backends
// according to its ModeSet. It holds no locks and no mutable state of its
// own: configuration and backend references are fixed at construction, the
// caller's context is threaded unmodified into every backend call, and the
// only synchronization the router performs is the fan-out/fan-in of
// dual-backend operations.
//
// Misconfiguration — asking for a capability from a backend the ModeSet does
// not provide — is a programmer error and panics at call time. Backend call
// failures are ordinary errors and are returned, never retried.
type Router struct {
	mode       ModeSet
	legacy     Backend
	replicated Backend

	maxBlobSize int64
	batchSize   int
	log         *zap.Logger
}

// New builds a router over the given backends. A backend may be nil only if
// it is absent from both sets of mode; a ModeSet naming a nil backend panics
// here rather than at first use.
func New(mode ModeSet, legacy, replicated Backend, opts ...Option) *Router {
	if mode.All().Empty() {
		panic("locstore: mode selects no backend")
	}
	if mode.ReadOrWriteIncludes(Legacy) && legacy == nil {
		panic("locstore: mode includes the legacy backend but none was provided")
	}
	if mode.ReadOrWriteIncludes(Replicated) && replicated == nil {
		panic("locstore: mode includes the replicated backend but none was provided")
	}

	r := &Router{
		mode:        mode,
		legacy:      legacy,
		replicated:  replicated,
		maxBlobSize: DefaultMaxBlobSize,
		batchSize:   DefaultBatchSize,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mode returns the router's immutable mode configuration.
func (r *Router) Mode() ModeSet { return r.mode }

// MaxBlobSize is the ceiling for inline blob storage.
func (r *Router) MaxBlobSize() int64 { return r.maxBlobSize }

// BlobsSupported reports whether any configured backend stores blobs.
//
// Note: this is an OR across backends while GetBlob never falls back from
// the read-selected backend, so BlobsSupported may be true for a router
// whose GetBlob always fails. Kept as observed in production; see DESIGN.md.
func (r *Router) BlobsSupported() bool {
	for _, b := range []Backend{r.legacy, r.replicated} {
		if b != nil && b.BlobsSupported() {
			return true
		}
	}
	return false
}

// CanComputeLRU reports whether eviction ordering is available, i.e. reads
// include the replicated backend's materialized view.
func (r *Router) CanComputeLRU() bool { return r.mode.ReadIncludes(Replicated) }

// readBackend applies the single-read selection rule shared by Lookup and
// GetBlob: replicated when legacy is excluded from reads, or when the caller
// prefers the local view and replicated reads are enabled; legacy otherwise.
// Reads are never dual-dispatched.
func (r *Router) readBackend(origin Origin) BackendID {
	if !r.mode.ReadIncludes(Legacy) {
		return Replicated
	}
	if origin == OriginLocal && r.mode.ReadIncludes(Replicated) {
		return Replicated
	}
	return Legacy
}

// require returns the backend for id, panicking when it is not configured.
// Reaching the panic means a dispatch rule asked for a backend outside the
// ModeSet, which is a bug in the caller's configuration, not a runtime fault.
func (r *Router) require(id BackendID, op string) Backend {
	var b Backend
	if id == Legacy {
		b = r.legacy
	} else {
		b = r.replicated
	}
	if b == nil {
		panic(fmt.Sprintf("locstore: %s requires the %s backend, which is not configured", op, id))
	}
	return b
}

// Lookup returns the known locations for the given hashes, paged by the
// configured batch size. Routed to exactly one backend.
func (r *Router) Lookup(ctx context.Context, hashes []ContentHash, origin Origin) (map[ContentHash]LocationSet, error) {
	id := r.readBackend(origin)
	b := r.require(id, "lookup")

	result := make(map[ContentHash]LocationSet, len(hashes))
	for page := range pages(hashes, r.batchSize) {
		locs, err := b.Lookup(ctx, page, origin)
		if err != nil {
			return nil, fmt.Errorf("lookup (%s): %w", id, err)
		}
		for h, set := range locs {
			result[h] = set
		}
	}
	return result, nil
}

// Register records that machine holds the given blobs, dual-writing to every
// backend in the write set. A combined failure means the registration is not
// guaranteed everywhere, not that it happened nowhere: the succeeding side
// still serves the new locations.
func (r *Router) Register(ctx context.Context, machine MachineLocation, blobs []BlobRecord, touch bool) error {
	return combine(ctx, "register", r.mode.WriteSet(),
		func(ctx context.Context) error { return r.legacy.Register(ctx, machine, blobs, touch) },
		func(ctx context.Context) error { return r.replicated.Register(ctx, machine, blobs, touch) },
	)
}

// TrimByHashes removes all location records for the given hashes from every
// backend in the write set.
func (r *Router) TrimByHashes(ctx context.Context, hashes []ContentHash) error {
	return combine(ctx, "trim", r.mode.WriteSet(),
		func(ctx context.Context) error { return r.legacy.TrimByHashes(ctx, hashes) },
		func(ctx context.Context) error { return r.replicated.TrimByHashes(ctx, hashes) },
	)
}

// TrimByMap removes the specific replicas named in the map. Legacy only: the
// replicated backend reaches removal consistency through its own
// reconciliation pass, not through cross-machine removal notices. When the
// legacy backend is absent from the system entirely this is a no-op success.
func (r *Router) TrimByMap(ctx context.Context, replicas map[ContentHash][]MachineLocation) error {
	if !r.mode.ReadOrWriteIncludes(Legacy) {
		return nil
	}
	if err := r.legacy.TrimByMap(ctx, replicas); err != nil {
		return fmt.Errorf("trim replicas (legacy): %w", err)
	}
	return nil
}

// Touch refreshes the expiry of machine's records for the given hashes in
// every backend in the write set.
func (r *Router) Touch(ctx context.Context, machine MachineLocation, hashes []ContentHash) error {
	return combine(ctx, "touch", r.mode.WriteSet(),
		func(ctx context.Context) error { return r.legacy.Touch(ctx, machine, hashes) },
		func(ctx context.Context) error { return r.replicated.Touch(ctx, machine, hashes) },
	)
}

// EvictionOrder returns the candidates in eviction-priority order from the
// replicated backend's materialized view. Panics unless the replicated
// backend participates in reads or writes.
func (r *Router) EvictionOrder(ctx context.Context, candidates []ContentHash) iter.Seq[EvictionCandidate] {
	if !r.mode.ReadOrWriteIncludes(Replicated) {
		panic("locstore: eviction order requires the replicated backend in the read or write set")
	}
	return r.require(Replicated, "eviction order").EvictionOrder(ctx, candidates)
}

// PutBlob stores a small blob inline, dual-writing to every backend in the
// write set that supports blobs. A write-enabled backend without blob
// support contributes a silent no-op rather than a failure.
func (r *Router) PutBlob(ctx context.Context, hash ContentHash, data []byte) error {
	if int64(len(data)) > r.maxBlobSize {
		return fmt.Errorf("put blob %s (%d bytes): %w", hash, len(data), ErrBlobTooLarge)
	}
	return combine(ctx, "put blob", r.mode.WriteSet(),
		func(ctx context.Context) error {
			if !r.legacy.BlobsSupported() {
				return nil
			}
			return r.legacy.PutBlob(ctx, hash, data)
		},
		func(ctx context.Context) error {
			if !r.replicated.BlobsSupported() {
				return nil
			}
			return r.replicated.PutBlob(ctx, hash, data)
		},
	)
}

// GetBlob retrieves a blob from the read-selected backend. When that backend
// does not support blobs the failure is definitive: the router does not fall
// back to the other backend even if it would have the blob.
func (r *Router) GetBlob(ctx context.Context, hash ContentHash) ([]byte, error) {
	id := r.readBackend(OriginGlobal)
	b := r.require(id, "get blob")
	if !b.BlobsSupported() {
		return nil, fmt.Errorf("get blob %s: %s backend: %w", hash, id, ErrBlobsNotSupported)
	}
	data, err := b.GetBlob(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("get blob %s (%s): %w", hash, id, err)
	}
	return data, nil
}

// GarbageCollect sweeps expired location metadata. Hard-wired to the legacy
// backend with no ModeSet check: the replicated backend reclaims through its
// own reconciliation. Panics when no legacy backend is configured at all.
func (r *Router) GarbageCollect(ctx context.Context) error {
	b := r.require(Legacy, "garbage collect")
	if err := b.GarbageCollect(ctx); err != nil {
		return fmt.Errorf("garbage collect (legacy): %w", err)
	}
	return nil
}

// RandomMachine returns a machine currently active in the cluster, routed by
// the read set: legacy when it participates in reads, otherwise the
// replicated backend's own liveness registry.
func (r *Router) RandomMachine(ctx context.Context) (MachineLocation, error) {
	return r.livenessBackend("random machine").RandomMachine(ctx)
}

// IsMachineActive reports whether a machine is active, routed like
// RandomMachine.
func (r *Router) IsMachineActive(ctx context.Context, machine MachineLocation) (bool, error) {
	return r.livenessBackend("machine active").IsMachineActive(ctx, machine)
}

// Reputation returns the machine-reputation tracker of the backend serving
// liveness queries.
func (r *Router) Reputation() ReputationTracker {
	return r.livenessBackend("reputation").Reputation()
}

func (r *Router) livenessBackend(op string) Backend {
	if r.mode.ReadIncludes(Legacy) {
		return r.require(Legacy, op)
	}
	return r.require(Replicated, op)
}

// Counters merges counter snapshots from every backend in ReadSet ∪
// WriteSet, each namespaced by its backend id.
func (r *Router) Counters(ctx context.Context) (Counters, error) {
	merged := make(Counters)
	for _, id := range []BackendID{Legacy, Replicated} {
		if !r.mode.ReadOrWriteIncludes(id) {
			continue
		}
		snap, err := r.require(id, "counters").Counters(ctx)
		if err != nil {
			return nil, fmt.Errorf("counters (%s): %w", id, err)
		}
		for name, v := range snap {
			merged[id.String()+"."+name] = v
		}
	}
	return merged, nil
}

// Start brings up every backend in ReadSet ∪ WriteSet via the combinator.
// Gating on the union rather than the write set alone keeps a read-only
// configured backend from serving before it was started.
func (r *Router) Start(ctx context.Context) error {
	r.log.Info("starting location store", zap.Stringer("mode", r.mode))
	return combine(ctx, "start", r.mode.All(),
		func(ctx context.Context) error { return r.legacy.Start(ctx) },
		func(ctx context.Context) error { return r.replicated.Start(ctx) },
	)
}

// Stop shuts down every backend in ReadSet ∪ WriteSet via the combinator.
func (r *Router) Stop(ctx context.Context) error {
	r.log.Info("stopping location store")
	return combine(ctx, "stop", r.mode.All(),
		func(ctx context.Context) error { return r.legacy.Stop(ctx) },
		func(ctx context.Context) error { return r.replicated.Stop(ctx) },
	)
}

// pages splits hashes into batches of at most size.
func pages(hashes []ContentHash, size int) iter.Seq[[]ContentHash] {
	return func(yield func([]ContentHash) bool) {
		for start := 0; start < len(hashes); start += size {
			end := min(start+size, len(hashes))
			if !yield(hashes[start:end]) {
				return
			}
		}
	}
}
