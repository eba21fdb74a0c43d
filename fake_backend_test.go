package locstore

import (
	"context"
	"iter"
	"sync"
	"time"
)

// fakeBackend is an instrumented Backend double. Every operation is recorded
// by name; errs injects failures per operation and delay stalls an operation
// so tests can observe that both sides of a dual-write are awaited.
type fakeBackend struct {
	mu       sync.Mutex
	calls    []string
	done     map[string]bool
	errs     map[string]error
	delay    map[string]time.Duration
	blobsOK  bool
	blobs    map[ContentHash][]byte
	locs     map[ContentHash]LocationSet
	counters Counters
	machines []MachineLocation
	rep      *MachineReputation
}

func newFakeBackend(blobsOK bool) *fakeBackend {
	return &fakeBackend{
		done:    make(map[string]bool),
		errs:    make(map[string]error),
		delay:   make(map[string]time.Duration),
		blobsOK: blobsOK,
		blobs:   make(map[ContentHash][]byte),
		locs:    make(map[ContentHash]LocationSet),
		rep:     NewMachineReputation(),
	}
}

// run records the call, applies any configured delay, marks the call done
// and returns the injected error.
func (f *fakeBackend) run(op string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	d := f.delay[op]
	f.mu.Unlock()

	if d > 0 {
		time.Sleep(d)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.done[op] = true
	return f.errs[op]
}

func (f *fakeBackend) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeBackend) completed(op string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done[op]
}

func (f *fakeBackend) Lookup(_ context.Context, hashes []ContentHash, _ Origin) (map[ContentHash]LocationSet, error) {
	if err := f.run("lookup"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make(map[ContentHash]LocationSet)
	for _, h := range hashes {
		if set, ok := f.locs[h]; ok {
			result[h] = set
		}
	}
	return result, nil
}

func (f *fakeBackend) Register(_ context.Context, machine MachineLocation, blobs []BlobRecord, _ bool) error {
	if err := f.run("register"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range blobs {
		set := f.locs[b.Hash]
		set.Size = b.Size
		set.Machines = append(set.Machines, machine)
		f.locs[b.Hash] = set
	}
	return nil
}

func (f *fakeBackend) TrimByHashes(_ context.Context, hashes []ContentHash) error {
	if err := f.run("trim"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range hashes {
		delete(f.locs, h)
	}
	return nil
}

func (f *fakeBackend) TrimByMap(context.Context, map[ContentHash][]MachineLocation) error {
	return f.run("trim_map")
}

func (f *fakeBackend) Touch(context.Context, MachineLocation, []ContentHash) error {
	return f.run("touch")
}

func (f *fakeBackend) Counters(context.Context) (Counters, error) {
	if err := f.run("counters"); err != nil {
		return nil, err
	}
	return f.counters, nil
}

func (f *fakeBackend) EvictionOrder(_ context.Context, candidates []ContentHash) iter.Seq[EvictionCandidate] {
	_ = f.run("eviction_order")
	return func(yield func(EvictionCandidate) bool) {
		for _, h := range candidates {
			if !yield(EvictionCandidate{Hash: h}) {
				return
			}
		}
	}
}

func (f *fakeBackend) PutBlob(_ context.Context, hash ContentHash, data []byte) error {
	if err := f.run("put_blob"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[hash] = data
	return nil
}

func (f *fakeBackend) GetBlob(_ context.Context, hash ContentHash) ([]byte, error) {
	if err := f.run("get_blob"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (f *fakeBackend) BlobsSupported() bool { return f.blobsOK }

func (f *fakeBackend) GarbageCollect(context.Context) error { return f.run("gc") }

func (f *fakeBackend) Reputation() ReputationTracker { return f.rep }

func (f *fakeBackend) RandomMachine(context.Context) (MachineLocation, error) {
	if err := f.run("random_machine"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.machines) == 0 {
		return "", ErrNoActiveMachines
	}
	return f.machines[0], nil
}

func (f *fakeBackend) IsMachineActive(context.Context, MachineLocation) (bool, error) {
	if err := f.run("machine_active"); err != nil {
		return false, err
	}
	return true, nil
}

func (f *fakeBackend) Start(context.Context) error { return f.run("start") }
func (f *fakeBackend) Stop(context.Context) error  { return f.run("stop") }
