package model

import "time"

// EntryKind discriminates the two element shapes of the merged view
// sequence: a single classified port record, or a summarized range.
type EntryKind string

const (
	// EntryPort is a single used port record.
	EntryPort EntryKind = "port"

	// EntryRange is a summarized gap range (available or virtual-hidden).
	EntryRange EntryKind = "range"
)

// ViewEntry is one element of the ordered, merged view sequence.
// Exactly one of Record or Range is set, matching Kind.
type ViewEntry struct {
	Kind   EntryKind   `json:"kind"`
	Record *PortRecord `json:"record,omitempty"`
	Range  *GapRange   `json:"range,omitempty"`
}

// Port returns the first port number the entry covers, used for
// ordering assertions and search matching.
func (v ViewEntry) Port() int {
	if v.Kind == EntryPort && v.Record != nil {
		return v.Record.Port
	}
	if v.Range != nil {
		return v.Range.Start
	}
	return 0
}

// Snapshot is the result of one aggregation pass: the merged, classified
// view of the port space plus summary counts. Snapshots are immutable
// once built; a fresh pass produces a fresh snapshot.
type Snapshot struct {
	// Entries is the ordered merged sequence: used records interleaved
	// with gap ranges, ascending by port. Hidden used records are
	// suppressed here and surfaced in Hidden instead.
	Entries []ViewEntry `json:"port_cards"`

	// Hidden lists used records whose (port, protocol) is covered by
	// the hidden overlay. They are retrievable through the dedicated
	// hidden listing but excluded from Entries.
	Hidden []PortRecord `json:"hidden_records,omitempty"`

	// HiddenEntries is the hidden-port overlay snapshot this view was
	// classified against. Taken atomically with the classification.
	HiddenEntries []HiddenPortEntry `json:"hidden_ports"`

	// TotalUsed is the number of distinct used port numbers (hidden
	// used ports included — hiding affects display, not usage).
	TotalUsed int `json:"total_used"`

	// TotalAvailable is 65535 minus TotalUsed.
	TotalAvailable int `json:"total_available"`

	// DockerContainers is the number of distinct containers that
	// contributed at least one record.
	DockerContainers int `json:"docker_containers"`

	// Degraded lists the sources that were unavailable during this
	// pass ("container", "system"). Empty when both sources answered.
	Degraded []string `json:"degraded,omitempty"`

	// GeneratedAt is the wall-clock time of the aggregation pass.
	GeneratedAt time.Time `json:"generated_at"`
}

// IsDegraded reports whether any source failed during the pass.
func (s *Snapshot) IsDegraded() bool {
	return len(s.Degraded) > 0
}

// StateOf classifies any (port, protocol) pair against this snapshot.
// The four states partition the port space per protocol:
//
//   - a record exists for the pair          → used (or hidden if overlaid)
//   - no record, pair covered by the overlay → virtual-hidden
//   - otherwise                              → available
//
// Ports outside the used span are never materialized as entries; this
// method is how they are classified on demand.
func (s *Snapshot) StateOf(port int, proto Protocol) PortState {
	for i := range s.Hidden {
		if s.Hidden[i].Port == port && s.Hidden[i].Protocol == proto {
			return StateHidden
		}
	}
	for _, entry := range s.Entries {
		if entry.Kind != EntryPort || entry.Record == nil {
			continue
		}
		if entry.Record.Port == port && entry.Record.Protocol == proto {
			return StateUsed
		}
	}
	if s.hiddenCovers(port, proto) {
		return StateVirtualHidden
	}
	return StateAvailable
}

// hiddenCovers reports whether the overlay snapshot covers the pair.
func (s *Snapshot) hiddenCovers(port int, proto Protocol) bool {
	for _, e := range s.HiddenEntries {
		if e.Covers(port, proto) {
			return true
		}
	}
	return false
}
