package locstore

import (
	"time"
)

// ContentHash is a content-derived digest identifying a blob
// (e.g., "sha256:abc123...").
type ContentHash string

// MachineLocation is an opaque network-addressable identifier for a cluster
// machine holding replicas.
type MachineLocation string

// Origin is the caller's preference when both backends could answer a read.
type Origin int

const (
	// OriginLocal prefers the locally replicated view.
	OriginLocal Origin = iota
	// OriginGlobal prefers the authoritative shared view.
	OriginGlobal
)

func (o Origin) String() string {
	if o == OriginLocal {
		return "local"
	}
	return "global"
}

// BackendID identifies one of the two location-index implementations.
type BackendID int

const (
	// Legacy is the per-call, shared-store-backed index.
	Legacy BackendID = iota
	// Replicated is the locally materialized index.
	Replicated
)

func (id BackendID) String() string {
	if id == Legacy {
		return "legacy"
	}
	return "replicated"
}

// BlobRecord pairs a content hash with its size for registration.
type BlobRecord struct {
	Hash ContentHash `json:"hash"`
	Size int64       `json:"size"`
}

// LocationSet is the set of machines known to hold a blob.
type LocationSet struct {
	Size     int64             `json:"size"`
	Machines []MachineLocation `json:"machines"`
}

// EvictionCandidate is one entry of an eviction-priority sequence. Entries
// are produced least-recently-accessed first.
type EvictionCandidate struct {
	Hash       ContentHash
	Size       int64
	LastAccess time.Time
}

// Counters is a point-in-time named-counter snapshot. The router namespaces
// merged snapshots with the backend id ("legacy.", "replicated.").
type Counters map[string]int64

// ReputationTracker keeps per-machine replica health scores so callers can
// deprioritize machines that keep serving missing or corrupt content.
// Implementations must be safe for concurrent use.
type ReputationTracker interface {
	// ReportMissing records that a machine advertised content it did not hold.
	ReportMissing(machine MachineLocation)
	// ReportBad records that a machine served a corrupt replica.
	ReportBad(machine MachineLocation)
	// Score returns the accumulated penalty for a machine; higher is worse,
	// zero is a machine with no reports.
	Score(machine MachineLocation) int
}
