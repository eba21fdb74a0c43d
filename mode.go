package locstore

import (
	"fmt"
	"strings"
)

// BackendSet is an immutable membership set over the two backend ids. The
// zero value is the empty set.
type BackendSet struct {
	legacy     bool
	replicated bool
}

// NewBackendSet builds a set from the given ids.
func NewBackendSet(ids ...BackendID) BackendSet {
	var s BackendSet
	for _, id := range ids {
		switch id {
		case Legacy:
			s.legacy = true
		case Replicated:
			s.replicated = true
		}
	}
	return s
}

// ParseBackendSet parses a comma-separated list of backend names, e.g.
// "legacy,replicated". An empty string is the empty set.
func ParseBackendSet(s string) (BackendSet, error) {
	var set BackendSet
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "":
		case "legacy":
			set.legacy = true
		case "replicated":
			set.replicated = true
		default:
			return BackendSet{}, fmt.Errorf("unknown backend %q (want legacy or replicated)", strings.TrimSpace(part))
		}
	}
	return set, nil
}

// Contains reports whether id is a member.
func (s BackendSet) Contains(id BackendID) bool {
	if id == Legacy {
		return s.legacy
	}
	return s.replicated
}

// Union returns the member-wise union of the two sets.
func (s BackendSet) Union(other BackendSet) BackendSet {
	return BackendSet{
		legacy:     s.legacy || other.legacy,
		replicated: s.replicated || other.replicated,
	}
}

// Empty reports whether no backend is a member.
func (s BackendSet) Empty() bool { return !s.legacy && !s.replicated }

func (s BackendSet) String() string {
	var names []string
	if s.legacy {
		names = append(names, Legacy.String())
	}
	if s.replicated {
		names = append(names, Replicated.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}

// ModeSet describes which backends participate in reads and which in writes.
// The two sets are independent so any migration stage can be expressed:
// writes to both while reads stay on legacy, reads pinned to replicated once
// trusted, and so on. A ModeSet is fixed at router construction.
type ModeSet struct {
	read  BackendSet
	write BackendSet
}

// NewModeSet builds a ModeSet from independent read and write sets.
func NewModeSet(read, write BackendSet) ModeSet {
	return ModeSet{read: read, write: write}
}

// ReadIncludes reports whether id participates in reads.
func (m ModeSet) ReadIncludes(id BackendID) bool { return m.read.Contains(id) }

// WriteIncludes reports whether id participates in writes.
func (m ModeSet) WriteIncludes(id BackendID) bool { return m.write.Contains(id) }

// ReadOrWriteIncludes reports whether id participates in either set.
func (m ModeSet) ReadOrWriteIncludes(id BackendID) bool {
	return m.read.Contains(id) || m.write.Contains(id)
}

// ReadSet returns the read membership set.
func (m ModeSet) ReadSet() BackendSet { return m.read }

// WriteSet returns the write membership set.
func (m ModeSet) WriteSet() BackendSet { return m.write }

// All returns ReadSet ∪ WriteSet.
func (m ModeSet) All() BackendSet { return m.read.Union(m.write) }

func (m ModeSet) String() string {
	return fmt.Sprintf("read=%s write=%s", m.read, m.write)
}
