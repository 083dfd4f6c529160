// Package hidden implements the durable hidden-port overlay: a
// normalized set of (port-or-range, protocol) entries persisted in a
// single JSON file.
//
// The store is the only mutable shared state in the service. Mutations
// are serialized behind a write lock and follow a
// read-modify-write-persist discipline: the updated set is normalized
// and durably written before the in-memory state is committed, so
// readers never observe a non-normalized intermediate state and a
// failed write rolls the mutation back entirely.
package hidden

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mmr-tortoise/dockports/internal/model"
)

// fileFormat is the on-disk JSON shape of the hidden-port state.
type fileFormat struct {
	Entries []model.HiddenPortEntry `json:"entries"`
}

// Store is the hidden-port store. Create one with NewStore; the zero
// value is not usable.
type Store struct {
	path string

	// mu guards entries. Mutations take the write lock for the full
	// read-modify-write-persist cycle; aggregation reads take the read
	// lock only long enough to copy the committed set.
	mu      sync.RWMutex
	entries []model.HiddenPortEntry
}

// NewStore opens the hidden-port store backed by the given file path.
// A missing file means first run: the store starts empty and the file
// is created on the first mutation. A present but unreadable or
// malformed file is an error — silently discarding operator state is
// worse than refusing to start.
func NewStore(path string) (*Store, error) {
	entries, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, entries: normalize(entries)}, nil
}

// loadFile reads and decodes the persisted state. Two formats are
// accepted: the current {"entries": [...]} document, and the legacy
// bare array of port numbers written by earlier releases, which is
// upgraded to range entries on both protocols.
func loadFile(path string) ([]model.HiddenPortEntry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, model.WrapError(model.KindPersistence, fmt.Sprintf("failed to read hidden ports file %s", path), err)
	}

	var doc fileFormat
	if err := json.Unmarshal(data, &doc); err == nil {
		for _, e := range doc.Entries {
			if verr := e.Validate(); verr != nil {
				return nil, model.WrapError(model.KindPersistence, fmt.Sprintf("corrupt hidden ports file %s", path), verr)
			}
		}
		return doc.Entries, nil
	}

	// Legacy format: a bare JSON array of ports, no protocol dimension.
	var legacy []int
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, model.WrapError(model.KindPersistence, fmt.Sprintf("corrupt hidden ports file %s", path), err)
	}
	var entries []model.HiddenPortEntry
	for _, port := range legacy {
		if !model.ValidPort(port) {
			continue
		}
		for _, proto := range model.Protocols {
			entries = append(entries, model.HiddenPortEntry{Start: port, End: port, Protocol: proto})
		}
	}
	return entries, nil
}

// List returns a copy of the current normalized entry set.
func (s *Store) List() []model.HiddenPortEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.HiddenPortEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Covers reports whether the given (port, protocol) pair is currently
// hidden.
func (s *Store) Covers(port int, proto model.Protocol) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.Covers(port, proto) {
			return true
		}
	}
	return false
}

// Hide hides a single port. With no protocols given, the port is
// hidden on both tcp and udp (the mutation API predates the protocol
// dimension of the stored entries). Returns the full updated entry set.
func (s *Store) Hide(port int, protos ...model.Protocol) ([]model.HiddenPortEntry, error) {
	return s.HideBatch([]int{port}, protos...)
}

// Unhide removes a single port from the overlay. Returns the full
// updated entry set.
func (s *Store) Unhide(port int, protos ...model.Protocol) ([]model.HiddenPortEntry, error) {
	return s.UnhideBatch([]int{port}, protos...)
}

// HideBatch hides a set of ports atomically: either every listed port
// is valid and the whole batch applies, or none apply and the invalid
// entries are reported in the returned error.
//
// The updated set is returned synchronously — a subsequent List or
// aggregation pass reflects the mutation immediately.
func (s *Store) HideBatch(ports []int, protos ...model.Protocol) ([]model.HiddenPortEntry, error) {
	return s.mutate(ports, protos, func(entries []model.HiddenPortEntry, port int, proto model.Protocol) []model.HiddenPortEntry {
		return append(entries, model.HiddenPortEntry{Start: port, End: port, Protocol: proto})
	})
}

// UnhideBatch unhides a set of ports atomically, with the same
// all-or-nothing validation as HideBatch. Unhiding a port inside a
// stored range splits the range around it.
func (s *Store) UnhideBatch(ports []int, protos ...model.Protocol) ([]model.HiddenPortEntry, error) {
	return s.mutate(ports, protos, subtractPort)
}

// mutate runs one serialized read-modify-write-persist cycle. The
// apply function folds one (port, protocol) pair into the working set;
// normalization and persistence happen once at the end.
func (s *Store) mutate(
	ports []int,
	protos []model.Protocol,
	apply func([]model.HiddenPortEntry, int, model.Protocol) []model.HiddenPortEntry,
) ([]model.HiddenPortEntry, error) {
	if len(protos) == 0 {
		protos = model.Protocols
	}
	for _, proto := range protos {
		if !proto.IsValid() {
			return nil, model.NewError(model.KindInvalidPort, fmt.Sprintf("invalid protocol %q", proto))
		}
	}

	// Validate the whole batch up front: partial validity is rejected
	// atomically, reporting every offending value.
	var invalid []int
	for _, port := range ports {
		if !model.ValidPort(port) {
			invalid = append(invalid, port)
		}
	}
	if len(invalid) > 0 {
		return nil, &model.AppError{
			Kind:         model.KindInvalidPort,
			Message:      fmt.Sprintf("port numbers must be in range %d-%d", model.MinPort, model.MaxPort),
			InvalidPorts: invalid,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Work on a copy so a failed persist leaves the committed state
	// untouched.
	working := make([]model.HiddenPortEntry, len(s.entries))
	copy(working, s.entries)

	for _, port := range ports {
		for _, proto := range protos {
			working = apply(working, port, proto)
		}
	}
	working = normalize(working)

	if err := persist(s.path, working); err != nil {
		return nil, err
	}
	s.entries = working

	out := make([]model.HiddenPortEntry, len(working))
	copy(out, working)
	return out, nil
}

// subtractPort removes one (port, protocol) pair from the entry set,
// splitting any range that straddles it.
func subtractPort(entries []model.HiddenPortEntry, port int, proto model.Protocol) []model.HiddenPortEntry {
	// A split can grow the set, so build a fresh slice rather than
	// filtering in place.
	out := make([]model.HiddenPortEntry, 0, len(entries)+1)
	for _, e := range entries {
		if !e.Covers(port, proto) {
			out = append(out, e)
			continue
		}
		if e.Start < port {
			out = append(out, model.HiddenPortEntry{Start: e.Start, End: port - 1, Protocol: proto})
		}
		if e.End > port {
			out = append(out, model.HiddenPortEntry{Start: port + 1, End: e.End, Protocol: proto})
		}
	}
	return out
}

// normalize restores the normalization invariant: entries sorted by
// protocol then start, with overlapping and adjacent ranges of the
// same protocol coalesced into minimal-count entries.
func normalize(entries []model.HiddenPortEntry) []model.HiddenPortEntry {
	if len(entries) == 0 {
		return nil
	}

	sorted := make([]model.HiddenPortEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Protocol != sorted[j].Protocol {
			return sorted[i].Protocol < sorted[j].Protocol
		}
		return sorted[i].Start < sorted[j].Start
	})

	out := sorted[:1]
	for _, e := range sorted[1:] {
		last := &out[len(out)-1]
		// Adjacent counts as mergeable: [80,81] + [82,90] → [80,90].
		if e.Protocol == last.Protocol && e.Start <= last.End+1 {
			if e.End > last.End {
				last.End = e.End
			}
			continue
		}
		out = append(out, e)
	}
	return out
}

// persist atomically replaces the state file: the new document is
// written to a temporary file in the same directory and renamed over
// the target, so a crash mid-write can never leave a partial file.
func persist(path string, entries []model.HiddenPortEntry) error {
	doc := fileFormat{Entries: entries}
	if doc.Entries == nil {
		doc.Entries = []model.HiddenPortEntry{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return model.WrapError(model.KindPersistence, "failed to encode hidden ports", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.WrapError(model.KindPersistence, fmt.Sprintf("failed to create state directory %s", dir), err)
	}

	tmp, err := os.CreateTemp(dir, ".hidden-ports-*.json")
	if err != nil {
		return model.WrapError(model.KindPersistence, "failed to create temporary state file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return model.WrapError(model.KindPersistence, "failed to write hidden ports", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return model.WrapError(model.KindPersistence, "failed to write hidden ports", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return model.WrapError(model.KindPersistence, fmt.Sprintf("failed to replace state file %s", path), err)
	}
	return nil
}
