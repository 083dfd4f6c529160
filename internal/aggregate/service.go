// Package aggregate implements the merge engine of the dockports
// service: it collects port candidates from the container runtime and
// the host socket scan, deduplicates them by (port, protocol) with
// confidence-based precedence, computes gap ranges for range-oriented
// display, and overlays the hidden-port state into the final
// classified view.
package aggregate

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mmr-tortoise/dockports/internal/heuristic"
	"github.com/mmr-tortoise/dockports/internal/model"
)

// defaultSourceTimeout bounds each aggregation pass's source queries
// when the caller did not configure a timeout.
const defaultSourceTimeout = 10 * time.Second

// ContainerSource is the container runtime contract consumed by the
// aggregator. Implemented by the docker package.
type ContainerSource interface {
	// ListContainers returns running containers with their declared
	// bindings and the raw config fields the heuristic extractor needs.
	ListContainers(ctx context.Context) ([]model.ContainerDetails, error)
}

// SystemSource is the host socket enumeration contract. Implemented by
// the hostscan package.
type SystemSource interface {
	// ListeningPorts returns the host's listening (port, protocol)
	// pairs, optionally annotated with the owning process name.
	ListeningPorts(ctx context.Context) ([]model.ListeningPort, error)
}

// HiddenSet is the read side of the hidden-port store: one atomic
// snapshot of the committed, normalized entry set.
type HiddenSet interface {
	List() []model.HiddenPortEntry
}

// ServiceNamer resolves a human-readable service name for a port
// number. Implemented by the config package's service-name map.
type ServiceNamer interface {
	Lookup(port int) string
}

// Service produces merged, classified port snapshots. Every call to
// Snapshot performs fresh source queries — there is no cache and no
// background scheduler; the service is polled on demand.
type Service struct {
	containers ContainerSource
	system     SystemSource
	hidden     HiddenSet
	names      ServiceNamer
	timeout    time.Duration
}

// NewService wires an aggregation service from its collaborators.
// names may be nil, in which case records carry no service names.
// A non-positive timeout falls back to the package default.
func NewService(containers ContainerSource, system SystemSource, hidden HiddenSet, names ServiceNamer, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = defaultSourceTimeout
	}
	return &Service{
		containers: containers,
		system:     system,
		hidden:     hidden,
		names:      names,
		timeout:    timeout,
	}
}

// Snapshot performs one full aggregation pass: query both sources in
// parallel, merge and deduplicate the candidates, compute gap ranges,
// and overlay the hidden-port state.
//
// Source unavailability is never fatal: a source that fails with its
// unavailability kind (or times out) is dropped from the pass and
// recorded in the snapshot's Degraded list, and the pass proceeds with
// the data that did arrive. Any other source error fails the pass.
func (s *Service) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// The two source queries are independent and side-effect-free, so
	// they run in parallel; the merge waits for both.
	var (
		wg           sync.WaitGroup
		containers   []model.ContainerDetails
		containerErr error
		listening    []model.ListeningPort
		systemErr    error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		containers, containerErr = s.containers.ListContainers(queryCtx)
	}()
	go func() {
		defer wg.Done()
		listening, systemErr = s.system.ListeningPorts(queryCtx)
	}()
	wg.Wait()

	var degraded []string
	if containerErr != nil {
		if !recoverable(containerErr, model.KindRuntimeUnavailable) {
			return nil, containerErr
		}
		degraded = append(degraded, model.SourceContainer.String())
		containers = nil
	}
	if systemErr != nil {
		if !recoverable(systemErr, model.KindScanUnavailable) {
			return nil, systemErr
		}
		degraded = append(degraded, model.SourceSystem.String())
		listening = nil
	}

	used := s.merge(collect(containers, listening))

	snapshot := buildView(used, s.hidden.List())
	snapshot.Degraded = degraded
	snapshot.GeneratedAt = time.Now().UTC()
	return snapshot, nil
}

// recoverable reports whether a source error is a documented
// partial-data condition: the source's unavailability kind, or a
// query that ran into the pass's timeout.
func recoverable(err error, kind model.ErrorKind) bool {
	if model.IsKind(err, kind) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// collect produces the full candidate record list from both sources.
// Containers are sorted by name first so the candidate order — and
// therefore any same-confidence tie-break — never depends on Docker's
// iteration order.
func collect(containers []model.ContainerDetails, listening []model.ListeningPort) []model.PortRecord {
	sorted := make([]model.ContainerDetails, len(containers))
	copy(sorted, containers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var candidates []model.PortRecord

	for _, c := range sorted {
		// Declared bindings: the authoritative mapping for containers
		// on bridge-style networks.
		for _, b := range c.Bindings {
			candidates = append(candidates, model.PortRecord{
				Port:          b.HostPort,
				Protocol:      b.Protocol,
				Source:        model.SourceContainer,
				ContainerName: c.Name,
				ContainerPort: b.ContainerPortSpec(),
				Method:        model.MethodExplicitBinding,
			})
		}

		// Host-network containers have no bindings that reveal their
		// true listening ports; the heuristic chain fills the gap.
		if c.HostNetwork() {
			for _, cand := range heuristic.Extract(c) {
				candidates = append(candidates, model.PortRecord{
					Port:          cand.Port,
					Protocol:      cand.Protocol,
					Source:        model.SourceContainer,
					ContainerName: c.Name,
					Method:        cand.Method,
				})
			}
		}
	}

	for _, lp := range listening {
		candidates = append(candidates, model.PortRecord{
			Port:     lp.Port,
			Protocol: lp.Protocol,
			Source:   model.SourceSystem,
			Process:  lp.Process,
			Method:   model.MethodSystemScan,
		})
	}

	return candidates
}

// merge groups the candidates by (port, protocol) and retains exactly
// one record per key: the highest confidence wins, and an exact
// confidence tie between a container and a system record goes to the
// container — explicit operator intent outranks passive OS observation.
// The survivors are sorted ascending by port, protocol second.
func (s *Service) merge(candidates []model.PortRecord) []model.PortRecord {
	byKey := make(map[model.PortKey]model.PortRecord)
	for _, cand := range candidates {
		existing, seen := byKey[cand.Key()]
		if !seen || wins(cand, existing) {
			byKey[cand.Key()] = cand
		}
	}

	used := make([]model.PortRecord, 0, len(byKey))
	for _, rec := range byKey {
		if s.names != nil {
			rec.ServiceName = s.names.Lookup(rec.Port)
		}
		used = append(used, rec)
	}
	sort.Slice(used, func(i, j int) bool {
		if used[i].Port != used[j].Port {
			return used[i].Port < used[j].Port
		}
		return used[i].Protocol < used[j].Protocol
	})
	return used
}

// wins reports whether the challenger should replace the incumbent
// record for the same (port, protocol) key.
func wins(challenger, incumbent model.PortRecord) bool {
	if challenger.Confidence() != incumbent.Confidence() {
		return challenger.Confidence() > incumbent.Confidence()
	}
	// Equal confidence: container beats system. Two equal-confidence
	// container records keep the incumbent, which is deterministic
	// because candidates arrive in sorted container order.
	return challenger.Source == model.SourceContainer && incumbent.Source == model.SourceSystem
}
