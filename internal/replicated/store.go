// Package replicated implements the replicated location-index backend. Reads
// are served from a locally materialized view held in an expiring in-process
// cache, so lookups never leave the process. How the view is kept current
// (checkpoint sync, event-log replay) is the replication layer's business;
// this package only maintains the view that writes and replayed events feed.
package replicated

import (
	"context"
	"errors"
	"iter"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/aweris/locstore"
)

const (
	// DefaultTTL is the view-entry expiry when none is configured.
	DefaultTTL = 24 * time.Hour

	// janitorInterval is how often expired view entries are reclaimed.
	janitorInterval = time.Minute
)

// entry is the materialized record for one hash. Entries are copied on
// write; readers never see a mutating machine set.
type entry struct {
	size       int64
	machines   map[locstore.MachineLocation]struct{}
	lastAccess time.Time
}

func (e *entry) clone() *entry {
	machines := make(map[locstore.MachineLocation]struct{}, len(e.machines))
	for m := range e.machines {
		machines[m] = struct{}{}
	}
	return &entry{size: e.size, machines: machines, lastAccess: e.lastAccess}
}

// Store is the locally materialized replicated backend.
type Store struct {
	mu   sync.Mutex // serializes read-modify-write cycles on view
	view *gocache.Cache
	live *liveness
	rep  *locstore.MachineReputation
	ttl  time.Duration
	log  *zap.Logger
	now  func() time.Time

	started atomic.Bool

	lookups   atomic.Int64
	registers atomic.Int64
	trims     atomic.Int64
	touches   atomic.Int64
	orderings atomic.Int64
}

// New builds a replicated backend. A ttl of zero means DefaultTTL; the same
// ttl bounds both view entries and machine liveness.
func New(ttl time.Duration, log *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		view: gocache.New(ttl, janitorInterval),
		live: newLiveness(ttl),
		rep:  locstore.NewMachineReputation(),
		ttl:  ttl,
		log:  log.Named("replicated"),
		now:  time.Now,
	}
}

// Lookup serves from the local view regardless of origin: this backend has
// no other view to offer.
func (s *Store) Lookup(_ context.Context, hashes []locstore.ContentHash, _ locstore.Origin) (map[locstore.ContentHash]locstore.LocationSet, error) {
	s.lookups.Add(1)

	result := make(map[locstore.ContentHash]locstore.LocationSet, len(hashes))
	for _, h := range hashes {
		v, ok := s.view.Get(string(h))
		if !ok {
			continue
		}
		e := v.(*entry)
		set := locstore.LocationSet{Size: e.size, Machines: make([]locstore.MachineLocation, 0, len(e.machines))}
		for m := range e.machines {
			set.Machines = append(set.Machines, m)
		}
		result[h] = set
	}
	return result, nil
}

func (s *Store) Register(_ context.Context, machine locstore.MachineLocation, blobs []locstore.BlobRecord, touch bool) error {
	s.registers.Add(1)
	s.live.heartbeat(machine)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, b := range blobs {
		e := &entry{size: b.Size, machines: map[locstore.MachineLocation]struct{}{machine: {}}, lastAccess: now}
		if v, ok := s.view.Get(string(b.Hash)); ok {
			e = v.(*entry).clone()
			e.machines[machine] = struct{}{}
			e.size = b.Size
			if touch {
				e.lastAccess = now
			}
		}
		s.view.Set(string(b.Hash), e, s.ttl)
	}
	return nil
}

func (s *Store) TrimByHashes(_ context.Context, hashes []locstore.ContentHash) error {
	s.trims.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range hashes {
		s.view.Delete(string(h))
	}
	return nil
}

// TrimByMap removes the named replicas from the view. The replicated
// consistency model does not depend on these notices (reconciliation covers
// removal), but applying them keeps the view tighter between passes.
func (s *Store) TrimByMap(_ context.Context, replicas map[locstore.ContentHash][]locstore.MachineLocation) error {
	s.trims.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	for h, machines := range replicas {
		v, ok := s.view.Get(string(h))
		if !ok {
			continue
		}
		e := v.(*entry).clone()
		for _, m := range machines {
			delete(e.machines, m)
		}
		if len(e.machines) == 0 {
			s.view.Delete(string(h))
			continue
		}
		s.view.Set(string(h), e, s.ttl)
	}
	return nil
}

func (s *Store) Touch(_ context.Context, machine locstore.MachineLocation, hashes []locstore.ContentHash) error {
	s.touches.Add(1)
	s.live.heartbeat(machine)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, h := range hashes {
		v, ok := s.view.Get(string(h))
		if !ok {
			continue
		}
		e := v.(*entry).clone()
		e.lastAccess = now
		s.view.Set(string(h), e, s.ttl)
	}
	return nil
}

func (s *Store) Counters(context.Context) (locstore.Counters, error) {
	return locstore.Counters{
		"lookups":   s.lookups.Load(),
		"registers": s.registers.Load(),
		"trims":     s.trims.Load(),
		"touches":   s.touches.Load(),
		"orderings": s.orderings.Load(),
		"entries":   int64(s.view.ItemCount()),
	}, nil
}

// EvictionOrder snapshots the candidates present in the view and yields them
// least-recently-accessed first. The sequence is computed once, over the
// snapshot taken here; it is finite and single-use.
func (s *Store) EvictionOrder(_ context.Context, candidates []locstore.ContentHash) iter.Seq[locstore.EvictionCandidate] {
	s.orderings.Add(1)

	s.mu.Lock()
	snapshot := make([]locstore.EvictionCandidate, 0, len(candidates))
	for _, h := range candidates {
		if v, ok := s.view.Get(string(h)); ok {
			e := v.(*entry)
			snapshot = append(snapshot, locstore.EvictionCandidate{Hash: h, Size: e.size, LastAccess: e.lastAccess})
		}
	}
	s.mu.Unlock()

	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].LastAccess.Before(snapshot[j].LastAccess)
	})

	var consumed atomic.Bool
	return func(yield func(locstore.EvictionCandidate) bool) {
		if !consumed.CompareAndSwap(false, true) {
			return
		}
		for _, c := range snapshot {
			if !yield(c) {
				return
			}
		}
	}
}

// PutBlob is unsupported: the materialized view holds location metadata
// only, never content bytes.
func (s *Store) PutBlob(context.Context, locstore.ContentHash, []byte) error {
	return locstore.ErrBlobsNotSupported
}

func (s *Store) GetBlob(context.Context, locstore.ContentHash) ([]byte, error) {
	return nil, locstore.ErrBlobsNotSupported
}

func (s *Store) BlobsSupported() bool { return false }

// GarbageCollect is unsupported: the view reclaims through entry expiry and
// the reconciliation pass, not through an explicit sweep.
func (s *Store) GarbageCollect(context.Context) error {
	return errors.New("replicated: garbage collection not supported")
}

func (s *Store) Reputation() locstore.ReputationTracker { return s.rep }

func (s *Store) RandomMachine(context.Context) (locstore.MachineLocation, error) {
	m, ok := s.live.random()
	if !ok {
		return "", locstore.ErrNoActiveMachines
	}
	return m, nil
}

func (s *Store) IsMachineActive(_ context.Context, machine locstore.MachineLocation) (bool, error) {
	return s.live.active(machine), nil
}

func (s *Store) Start(context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}
	s.log.Info("replicated backend started", zap.Duration("ttl", s.ttl))
	return nil
}

func (s *Store) Stop(context.Context) error {
	if !s.started.CompareAndSwap(true, false) {
		return nil
	}
	s.view.Flush()
	s.log.Info("replicated backend stopped")
	return nil
}
