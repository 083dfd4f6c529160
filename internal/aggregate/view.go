// view.go builds the classified view from the merged used-record list
// and one atomic hidden-set snapshot: the hidden/used split, the gap
// ranges between used ports, and the summary counts.
package aggregate

import (
	"sort"

	"github.com/mmr-tortoise/dockports/internal/model"
)

// buildView classifies the merged records against the hidden overlay
// and assembles the ordered view sequence.
//
// The classification is purely a function of (used records, hidden
// snapshot): the overlay is applied against exactly one copy of the
// hidden set, so a concurrent mutation can never produce a partially
// overlaid view.
func buildView(used []model.PortRecord, hiddenEntries []model.HiddenPortEntry) *model.Snapshot {
	snapshot := &model.Snapshot{
		HiddenEntries: hiddenEntries,
	}
	if snapshot.HiddenEntries == nil {
		snapshot.HiddenEntries = []model.HiddenPortEntry{}
	}

	covered := func(port int, proto model.Protocol) bool {
		for _, e := range hiddenEntries {
			if e.Covers(port, proto) {
				return true
			}
		}
		return false
	}

	// Split used records into visible and hidden. Hidden used ports
	// still count as used everywhere else: they occupy their port, so
	// they participate in gap computation and the usage totals.
	var visible []model.PortRecord
	for _, rec := range used {
		if covered(rec.Port, rec.Protocol) {
			rec.State = model.StateHidden
			snapshot.Hidden = append(snapshot.Hidden, rec)
			continue
		}
		rec.State = model.StateUsed
		visible = append(visible, rec)
	}

	usedPorts := distinctPorts(used)
	gaps := gapRanges(usedPorts, hiddenIntervals(hiddenEntries))
	snapshot.Entries = interleave(visible, gaps)

	snapshot.TotalUsed = len(usedPorts)
	snapshot.TotalAvailable = model.MaxPort - len(usedPorts)
	snapshot.DockerContainers = countContainers(used)
	return snapshot
}

// distinctPorts returns the sorted distinct port numbers across all
// used records. Gap computation is keyed by port number only: a port
// used on either protocol is not part of any gap.
func distinctPorts(used []model.PortRecord) []int {
	seen := make(map[int]struct{}, len(used))
	for _, rec := range used {
		seen[rec.Port] = struct{}{}
	}
	ports := make([]int, 0, len(seen))
	for port := range seen {
		ports = append(ports, port)
	}
	sort.Ints(ports)
	return ports
}

// interval is a contiguous hidden span with the protocol dimension
// collapsed, used only for splitting gap ranges.
type interval struct {
	start, end int
}

// hiddenIntervals unions the hidden entries across protocols into a
// sorted, merged interval list. Gap ranges carry no protocol, so a
// hidden entry on either protocol marks the covered span
// virtual-hidden.
func hiddenIntervals(entries []model.HiddenPortEntry) []interval {
	if len(entries) == 0 {
		return nil
	}
	intervals := make([]interval, 0, len(entries))
	for _, e := range entries {
		intervals = append(intervals, interval{start: e.Start, end: e.End})
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].start < intervals[j].start })

	merged := intervals[:1]
	for _, iv := range intervals[1:] {
		last := &merged[len(merged)-1]
		if iv.start <= last.end+1 {
			if iv.end > last.end {
				last.end = iv.end
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// gapRanges synthesizes the gap entries: one maximal range per
// contiguous run of unused ports strictly between the lowest and
// highest used port. Ports outside that span are not enumerated —
// they are classified available on demand via Snapshot.StateOf, never
// materialized, so the response stays bounded.
//
// Each raw gap is then split against the hidden intervals so that the
// deliberately blocked portions surface as virtual-hidden ranges.
func gapRanges(usedPorts []int, hidden []interval) []model.GapRange {
	var gaps []model.GapRange
	for i := 1; i < len(usedPorts); i++ {
		lo, hi := usedPorts[i-1], usedPorts[i]
		if hi-lo <= 1 {
			continue
		}
		gaps = append(gaps, splitGap(lo+1, hi-1, hidden)...)
	}
	return gaps
}

// splitGap carves one raw gap [start, end] into alternating available
// and virtual-hidden sub-ranges according to the hidden intervals.
func splitGap(start, end int, hidden []interval) []model.GapRange {
	var out []model.GapRange
	emit := func(lo, hi int, state model.PortState) {
		if lo > hi {
			return
		}
		out = append(out, model.GapRange{
			Start: lo,
			End:   hi,
			Count: hi - lo + 1,
			State: state,
		})
	}

	cursor := start
	for _, iv := range hidden {
		if iv.end < cursor {
			continue
		}
		if iv.start > end {
			break
		}
		lo := max(iv.start, cursor)
		hi := min(iv.end, end)
		emit(cursor, lo-1, model.StateAvailable)
		emit(lo, hi, model.StateVirtualHidden)
		cursor = hi + 1
	}
	emit(cursor, end, model.StateAvailable)
	return out
}

// interleave merges the visible used records and the gap ranges into
// one sequence ordered ascending by port. Both inputs are already
// sorted and never overlap (gaps cover only unused port numbers), so
// this is a single linear merge.
func interleave(visible []model.PortRecord, gaps []model.GapRange) []model.ViewEntry {
	entries := make([]model.ViewEntry, 0, len(visible)+len(gaps))
	gi := 0
	for i := range visible {
		for gi < len(gaps) && gaps[gi].Start < visible[i].Port {
			g := gaps[gi]
			entries = append(entries, model.ViewEntry{Kind: model.EntryRange, Range: &g})
			gi++
		}
		rec := visible[i]
		entries = append(entries, model.ViewEntry{Kind: model.EntryPort, Record: &rec})
	}
	for gi < len(gaps) {
		g := gaps[gi]
		entries = append(entries, model.ViewEntry{Kind: model.EntryRange, Range: &g})
		gi++
	}
	return entries
}

// countContainers returns the number of distinct containers that
// contributed at least one record (hidden or visible).
func countContainers(used []model.PortRecord) int {
	names := make(map[string]struct{})
	for _, rec := range used {
		if rec.Source == model.SourceContainer && rec.ContainerName != "" {
			names[rec.ContainerName] = struct{}{}
		}
	}
	return len(names)
}
