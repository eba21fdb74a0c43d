package replicated

import (
	"math/rand"
	"sync"
	"time"

	"github.com/aweris/locstore"
)

// liveness tracks machine heartbeats observed through the replicated event
// stream. A machine is active while its last heartbeat is within window.
type liveness struct {
	mu     sync.RWMutex
	window time.Duration
	seen   map[locstore.MachineLocation]time.Time
	now    func() time.Time
}

func newLiveness(window time.Duration) *liveness {
	return &liveness{
		window: window,
		seen:   make(map[locstore.MachineLocation]time.Time),
		now:    time.Now,
	}
}

func (l *liveness) heartbeat(m locstore.MachineLocation) {
	l.mu.Lock()
	l.seen[m] = l.now()
	l.mu.Unlock()
}

func (l *liveness) active(m locstore.MachineLocation) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	last, ok := l.seen[m]
	return ok && l.now().Sub(last) <= l.window
}

func (l *liveness) random() (locstore.MachineLocation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cutoff := l.now().Add(-l.window)
	alive := make([]locstore.MachineLocation, 0, len(l.seen))
	for m, last := range l.seen {
		if !last.Before(cutoff) {
			alive = append(alive, m)
		}
	}
	if len(alive) == 0 {
		return "", false
	}
	return alive[rand.Intn(len(alive))], true
}
