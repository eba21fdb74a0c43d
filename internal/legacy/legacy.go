// Package legacy implements the legacy location-index backend: every call is
// a direct query against the cluster's shared Redis store. Nothing is cached
// locally, so reads always see the authoritative view at the cost of a
// network round trip per call.
package legacy

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"sync/atomic"
	"time"

	rdb "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aweris/locstore"
	"github.com/aweris/locstore/internal/compression"
)

// Key prefixes in the shared store.
const (
	locKey  = "loc:"  // set of machines holding the hash
	sizeKey = "siz:"  // recorded blob size
	blobKey = "blob:" // inline small-object blob, framed by the codec
	machKey = "mach:" // per-machine heartbeat

	machinesKey = "machines" // registry of every machine ever seen
)

// DefaultTTL is the record expiry when none is configured.
const DefaultTTL = 24 * time.Hour

// Store is the Redis-backed legacy backend.
type Store struct {
	c     *rdb.Client
	codec *compression.Codec
	ttl   time.Duration
	rep   *locstore.MachineReputation
	log   *zap.Logger

	started atomic.Bool

	lookups    atomic.Int64
	registers  atomic.Int64
	trims      atomic.Int64
	touches    atomic.Int64
	blobPuts   atomic.Int64
	blobGets   atomic.Int64
	gcRuns     atomic.Int64
	gcRemovals atomic.Int64
}

// New connects a legacy backend to the shared store at addr. A ttl of zero
// means DefaultTTL.
func New(addr string, db int, ttl time.Duration, log *zap.Logger) (*Store, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	codec, err := compression.NewCodec(2)
	if err != nil {
		return nil, fmt.Errorf("legacy: blob codec: %w", err)
	}
	return &Store{
		c:     rdb.NewClient(&rdb.Options{Addr: addr, DB: db}),
		codec: codec,
		ttl:   ttl,
		rep:   locstore.NewMachineReputation(),
		log:   log.Named("legacy"),
	}, nil
}

func (s *Store) Lookup(ctx context.Context, hashes []locstore.ContentHash, _ locstore.Origin) (map[locstore.ContentHash]locstore.LocationSet, error) {
	s.lookups.Add(1)

	pipe := s.c.Pipeline()
	members := make([]*rdb.StringSliceCmd, len(hashes))
	sizes := make([]*rdb.StringCmd, len(hashes))
	for i, h := range hashes {
		members[i] = pipe.SMembers(ctx, locKey+string(h))
		sizes[i] = pipe.Get(ctx, sizeKey+string(h))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, rdb.Nil) {
		return nil, fmt.Errorf("legacy lookup: %w", err)
	}

	result := make(map[locstore.ContentHash]locstore.LocationSet, len(hashes))
	for i, h := range hashes {
		ms, err := members[i].Result()
		if err != nil || len(ms) == 0 {
			continue
		}
		set := locstore.LocationSet{Machines: make([]locstore.MachineLocation, 0, len(ms))}
		for _, m := range ms {
			set.Machines = append(set.Machines, locstore.MachineLocation(m))
		}
		if raw, err := sizes[i].Result(); err == nil {
			set.Size, _ = strconv.ParseInt(raw, 10, 64)
		}
		result[h] = set
	}
	return result, nil
}

func (s *Store) Register(ctx context.Context, machine locstore.MachineLocation, blobs []locstore.BlobRecord, touch bool) error {
	s.registers.Add(1)

	pipe := s.c.Pipeline()
	for _, b := range blobs {
		pipe.SAdd(ctx, locKey+string(b.Hash), string(machine))
		pipe.Set(ctx, sizeKey+string(b.Hash), strconv.FormatInt(b.Size, 10), s.ttl)
		if touch {
			pipe.Expire(ctx, locKey+string(b.Hash), s.ttl)
		} else {
			// Fresh records still need an expiry; NX leaves touched ones alone.
			pipe.ExpireNX(ctx, locKey+string(b.Hash), s.ttl)
		}
	}
	pipe.SAdd(ctx, machinesKey, string(machine))
	pipe.Set(ctx, machKey+string(machine), "1", s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("legacy register: %w", err)
	}
	return nil
}

func (s *Store) TrimByHashes(ctx context.Context, hashes []locstore.ContentHash) error {
	s.trims.Add(1)

	keys := make([]string, 0, len(hashes)*2)
	for _, h := range hashes {
		keys = append(keys, locKey+string(h), sizeKey+string(h))
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.c.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("legacy trim: %w", err)
	}
	return nil
}

func (s *Store) TrimByMap(ctx context.Context, replicas map[locstore.ContentHash][]locstore.MachineLocation) error {
	s.trims.Add(1)

	pipe := s.c.Pipeline()
	for h, machines := range replicas {
		members := make([]interface{}, 0, len(machines))
		for _, m := range machines {
			members = append(members, string(m))
		}
		if len(members) > 0 {
			pipe.SRem(ctx, locKey+string(h), members...)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("legacy trim replicas: %w", err)
	}
	return nil
}

func (s *Store) Touch(ctx context.Context, machine locstore.MachineLocation, hashes []locstore.ContentHash) error {
	s.touches.Add(1)

	pipe := s.c.Pipeline()
	for _, h := range hashes {
		pipe.Expire(ctx, locKey+string(h), s.ttl)
		pipe.Expire(ctx, sizeKey+string(h), s.ttl)
	}
	pipe.Set(ctx, machKey+string(machine), "1", s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("legacy touch: %w", err)
	}
	return nil
}

func (s *Store) Counters(ctx context.Context) (locstore.Counters, error) {
	return locstore.Counters{
		"lookups":     s.lookups.Load(),
		"registers":   s.registers.Load(),
		"trims":       s.trims.Load(),
		"touches":     s.touches.Load(),
		"blob_puts":   s.blobPuts.Load(),
		"blob_gets":   s.blobGets.Load(),
		"gc_runs":     s.gcRuns.Load(),
		"gc_removals": s.gcRemovals.Load(),
	}, nil
}

// EvictionOrder is not meaningful without a locally materialized view; the
// router never dispatches it here.
func (s *Store) EvictionOrder(context.Context, []locstore.ContentHash) iter.Seq[locstore.EvictionCandidate] {
	return func(func(locstore.EvictionCandidate) bool) {}
}

func (s *Store) PutBlob(ctx context.Context, hash locstore.ContentHash, data []byte) error {
	s.blobPuts.Add(1)

	if err := s.c.Set(ctx, blobKey+string(hash), s.codec.Encode(data), s.ttl).Err(); err != nil {
		return fmt.Errorf("legacy put blob: %w", err)
	}
	return nil
}

func (s *Store) GetBlob(ctx context.Context, hash locstore.ContentHash) ([]byte, error) {
	s.blobGets.Add(1)

	frame, err := s.c.Get(ctx, blobKey+string(hash)).Bytes()
	if errors.Is(err, rdb.Nil) {
		return nil, locstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("legacy get blob: %w", err)
	}
	data, err := s.codec.Decode(frame)
	if err != nil {
		return nil, fmt.Errorf("legacy get blob: %w", err)
	}
	return data, nil
}

func (s *Store) BlobsSupported() bool { return true }

// GarbageCollect removes size and blob keys whose location set already
// expired. Location sets themselves expire through their TTL; this sweep
// only clears the orphans left behind.
func (s *Store) GarbageCollect(ctx context.Context) error {
	s.gcRuns.Add(1)

	removed := int64(0)
	for _, prefix := range []string{sizeKey, blobKey} {
		var cursor uint64
		for {
			keys, next, err := s.c.Scan(ctx, cursor, prefix+"*", 256).Result()
			if err != nil {
				return fmt.Errorf("legacy gc scan: %w", err)
			}
			for _, key := range keys {
				hash := key[len(prefix):]
				n, err := s.c.Exists(ctx, locKey+hash).Result()
				if err != nil {
					return fmt.Errorf("legacy gc: %w", err)
				}
				if n == 0 {
					if err := s.c.Del(ctx, key).Err(); err != nil {
						return fmt.Errorf("legacy gc: %w", err)
					}
					removed++
				}
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
	s.gcRemovals.Add(removed)
	s.log.Info("garbage collection pass complete", zap.Int64("removed", removed))
	return nil
}

func (s *Store) Reputation() locstore.ReputationTracker { return s.rep }

func (s *Store) RandomMachine(ctx context.Context) (locstore.MachineLocation, error) {
	// A few draws against the registry; members without a live heartbeat are
	// skipped rather than pruned here (GC handles pruning).
	for range 4 {
		m, err := s.c.SRandMember(ctx, machinesKey).Result()
		if errors.Is(err, rdb.Nil) {
			return "", locstore.ErrNoActiveMachines
		}
		if err != nil {
			return "", fmt.Errorf("legacy random machine: %w", err)
		}
		active, err := s.c.Exists(ctx, machKey+m).Result()
		if err != nil {
			return "", fmt.Errorf("legacy random machine: %w", err)
		}
		if active > 0 {
			return locstore.MachineLocation(m), nil
		}
	}
	return "", locstore.ErrNoActiveMachines
}

func (s *Store) IsMachineActive(ctx context.Context, machine locstore.MachineLocation) (bool, error) {
	n, err := s.c.Exists(ctx, machKey+string(machine)).Result()
	if err != nil {
		return false, fmt.Errorf("legacy machine active: %w", err)
	}
	return n > 0, nil
}

func (s *Store) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.c.Ping(ctx).Err(); err != nil {
		s.started.Store(false)
		return fmt.Errorf("legacy start: %w", err)
	}
	s.log.Info("legacy backend started", zap.Duration("ttl", s.ttl))
	return nil
}

func (s *Store) Stop(context.Context) error {
	if !s.started.CompareAndSwap(true, false) {
		return nil
	}
	s.log.Info("legacy backend stopped")
	if err := s.codec.Close(); err != nil {
		return err
	}
	return s.c.Close()
}
