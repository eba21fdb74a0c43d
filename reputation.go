package locstore

import "sync"

// Penalty weights. A corrupt replica is a stronger signal than a missing one:
// missing content usually means an expired record, corrupt content a bad disk.
const (
	missingPenalty = 1
	badPenalty     = 5
)

// MachineReputation is an in-memory ReputationTracker shared by both backend
// implementations. Safe for concurrent use.
type MachineReputation struct {
	mu     sync.RWMutex
	scores map[MachineLocation]int
}

// NewMachineReputation returns an empty tracker.
func NewMachineReputation() *MachineReputation {
	return &MachineReputation{scores: make(map[MachineLocation]int)}
}

func (t *MachineReputation) ReportMissing(machine MachineLocation) {
	t.mu.Lock()
	t.scores[machine] += missingPenalty
	t.mu.Unlock()
}

func (t *MachineReputation) ReportBad(machine MachineLocation) {
	t.mu.Lock()
	t.scores[machine] += badPenalty
	t.mu.Unlock()
}

func (t *MachineReputation) Score(machine MachineLocation) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.scores[machine]
}
