// Package model defines the domain types for the dockports service.
//
// All entities in this package represent the core data structures of the
// port aggregation pipeline. PortRecord instances are transient: they are
// rebuilt from live Docker and host queries on every aggregation pass and
// never persisted. HiddenPortEntry is the only durable entity, stored in
// a single JSON file managed by the hidden-port store.
package model

import (
	"fmt"
	"strings"
)

const (
	// MinPort is the lowest valid TCP/UDP port number.
	MinPort = 1

	// MaxPort is the highest valid TCP/UDP port number (2^16 - 1).
	MaxPort = 65535
)

// ValidPort reports whether the given port number is inside the valid
// 1-65535 range. Used by the hidden-port store and the API layer to
// reject out-of-range mutations.
func ValidPort(port int) bool {
	return port >= MinPort && port <= MaxPort
}

// Protocol is the transport protocol dimension of a port record.
// Protocol is part of the identity key everywhere in the pipeline:
// the same port number may be simultaneously used on tcp and
// available on udp, and no cross-protocol merging ever happens.
type Protocol string

const (
	// ProtocolTCP is the TCP transport protocol.
	ProtocolTCP Protocol = "tcp"

	// ProtocolUDP is the UDP transport protocol.
	ProtocolUDP Protocol = "udp"
)

// Protocols lists all valid protocol values in canonical order.
// Useful for operations that apply to every protocol (e.g., hiding
// a port when the caller did not specify a protocol).
var Protocols = []Protocol{ProtocolTCP, ProtocolUDP}

// String returns the string representation of the Protocol.
func (p Protocol) String() string {
	return string(p)
}

// IsValid checks whether the Protocol is one of the defined values.
func (p Protocol) IsValid() bool {
	return p == ProtocolTCP || p == ProtocolUDP
}

// ParseProtocol converts a string to a Protocol. The comparison is
// case-insensitive. Returns an error for anything other than tcp/udp.
func ParseProtocol(s string) (Protocol, error) {
	proto := Protocol(strings.ToLower(s))
	if !proto.IsValid() {
		return "", fmt.Errorf("invalid protocol: %q (valid: tcp, udp)", s)
	}
	return proto, nil
}

// PortState is the final classification of a port in the merged view.
// For a given protocol the four states partition the full 1-65535 port
// space: every port is in exactly one state.
type PortState string

const (
	// StateUsed marks a port with an active listener (container or system).
	StateUsed PortState = "used"

	// StateAvailable marks a port with no listener and no hidden overlay.
	StateAvailable PortState = "available"

	// StateHidden marks a used port that the operator has hidden.
	// Hidden records are suppressed from the default listing but remain
	// retrievable through the dedicated hidden listing.
	StateHidden PortState = "hidden"

	// StateVirtualHidden marks an available (never-used) port that the
	// operator has hidden. It is distinguished from StateHidden so the
	// presentation layer can render deliberately blocked but unused
	// ports differently.
	StateVirtualHidden PortState = "virtual-hidden"
)

// String returns the string representation of the PortState.
func (s PortState) String() string {
	return string(s)
}

// IsValid checks whether the PortState is one of the defined values.
func (s PortState) IsValid() bool {
	switch s {
	case StateUsed, StateAvailable, StateHidden, StateVirtualHidden:
		return true
	default:
		return false
	}
}

// PortSource identifies which data source produced a port record.
type PortSource string

const (
	// SourceContainer marks records derived from the container runtime,
	// either from explicit bindings or from heuristic extraction.
	SourceContainer PortSource = "container"

	// SourceSystem marks records observed in the host socket tables.
	SourceSystem PortSource = "system"

	// SourceNone marks synthetic records such as gap ranges, which do
	// not correspond to any observed listener.
	SourceNone PortSource = "none"
)

// String returns the string representation of the PortSource.
func (s PortSource) String() string {
	return string(s)
}

// DetectionMethod records the provenance of a port record: which
// mechanism discovered the listener. It drives merge precedence via
// Confidence and is kept on the record for debugging, never for
// display-only cosmetics.
type DetectionMethod string

const (
	// MethodExplicitBinding is a declared container port mapping
	// (-p host:container). Highest confidence: explicit operator intent.
	MethodExplicitBinding DetectionMethod = "explicit-binding"

	// MethodExposedPorts is an EXPOSE entry from the container image
	// configuration, used for host-network containers.
	MethodExposedPorts DetectionMethod = "exposed-ports-config"

	// MethodHealthcheckParse is a host:port occurrence extracted from
	// the container's healthcheck command.
	MethodHealthcheckParse DetectionMethod = "healthcheck-parse"

	// MethodEntrypointParse is a flag-style port argument extracted
	// from the container's entrypoint/command vectors.
	MethodEntrypointParse DetectionMethod = "entrypoint-parse"

	// MethodEnvVarScan is a port parsed from an environment variable
	// whose name suggests it configures a listen port.
	MethodEnvVarScan DetectionMethod = "env-var-scan"

	// MethodSystemScan is a listener observed in the host socket tables.
	MethodSystemScan DetectionMethod = "system-scan"
)

// String returns the string representation of the DetectionMethod.
func (m DetectionMethod) String() string {
	return string(m)
}

// IsValid checks whether the DetectionMethod is one of the defined values.
func (m DetectionMethod) IsValid() bool {
	switch m {
	case MethodExplicitBinding, MethodExposedPorts, MethodHealthcheckParse,
		MethodEntrypointParse, MethodEnvVarScan, MethodSystemScan:
		return true
	default:
		return false
	}
}

// Confidence returns the ordinal ranking of the detection method, used
// only to break ties when multiple sources report the same (port,
// protocol) pair. Explicit bindings rank highest; the env-var scan and
// the passive system scan share the lowest tier, where the aggregator's
// container-beats-system rule decides.
func (m DetectionMethod) Confidence() int {
	switch m {
	case MethodExplicitBinding:
		return 50
	case MethodExposedPorts:
		return 40
	case MethodHealthcheckParse:
		return 30
	case MethodEntrypointParse:
		return 20
	case MethodEnvVarScan, MethodSystemScan:
		return 10
	default:
		return 0
	}
}

// PortRecord is the unit of the merged port view. Records are ephemeral:
// each aggregation pass rebuilds them from live source queries plus the
// current hidden-port overlay.
//
// JSON tags are snake_case to stay wire-compatible with the API the
// presentation layer already consumes.
type PortRecord struct {
	// Port is the host port number (1-65535).
	Port int `json:"port"`

	// Protocol is the transport protocol the listener uses.
	Protocol Protocol `json:"protocol"`

	// State is the final classification after the hidden overlay.
	State PortState `json:"state"`

	// Source identifies whether the record came from the container
	// runtime or the host socket tables.
	Source PortSource `json:"source"`

	// ContainerName is the owning container. Set only when Source is
	// SourceContainer.
	ContainerName string `json:"container_name,omitempty"`

	// ContainerPort is the port inside the container in Docker's
	// "port/protocol" notation (e.g. "8080/tcp"). Set only for explicit
	// bindings, where the internal port may differ from the host port.
	ContainerPort string `json:"container_internal_port,omitempty"`

	// Method is the detection provenance of this record.
	Method DetectionMethod `json:"detection_method"`

	// ServiceName is a human-readable name for the service on this
	// port, resolved from the service-name configuration.
	ServiceName string `json:"service_name,omitempty"`

	// Process is the owning process name reported by the host scan,
	// when the scan could obtain it. Never set for container records.
	Process string `json:"process,omitempty"`
}

// Confidence returns the merge-precedence ranking of the record,
// derived entirely from its detection method.
func (r PortRecord) Confidence() int {
	return r.Method.Confidence()
}

// Key returns the (port, protocol) identity key used for grouping and
// deduplication in the aggregator.
func (r PortRecord) Key() PortKey {
	return PortKey{Port: r.Port, Protocol: r.Protocol}
}

// PortKey is the identity key of the merged record space. Protocol is
// part of the key: 53/tcp and 53/udp are distinct records.
type PortKey struct {
	Port     int
	Protocol Protocol
}

// String returns the key in Docker's "port/protocol" notation.
func (k PortKey) String() string {
	return fmt.Sprintf("%d/%s", k.Port, k.Protocol)
}

// GapRange is a derived, non-persisted entity: a maximal contiguous run
// of unused ports between two used ports. Gap ranges are recomputed on
// every aggregation pass and are always represented as a single
// summarized entry, never expanded port-by-port, so the response size
// stays bounded regardless of how sparse the used-port set is.
type GapRange struct {
	// Start is the first unused port of the run (inclusive).
	Start int `json:"start_port"`

	// End is the last unused port of the run (inclusive).
	End int `json:"end_port"`

	// Count is the number of ports in the run (End - Start + 1).
	Count int `json:"available_count"`

	// State is StateAvailable for ordinary gaps, or StateVirtualHidden
	// for gap sub-ranges covered by a hidden-port entry.
	State PortState `json:"state"`
}

// HiddenPortEntry is the persisted unit of the hidden-port overlay:
// a single port or an inclusive range, tagged with a protocol.
//
// The persisted set is always normalized — entries for the same
// protocol are sorted, disjoint, and non-adjacent. The hidden-port
// store enforces this invariant on every write.
type HiddenPortEntry struct {
	// Start is the first hidden port (inclusive). A single-port entry
	// has Start == End.
	Start int `json:"start"`

	// End is the last hidden port (inclusive).
	End int `json:"end"`

	// Protocol is the transport protocol the entry applies to.
	Protocol Protocol `json:"protocol"`
}

// Covers reports whether the entry covers the given (port, protocol) pair.
func (e HiddenPortEntry) Covers(port int, proto Protocol) bool {
	return e.Protocol == proto && port >= e.Start && port <= e.End
}

// Count returns the number of ports the entry covers.
func (e HiddenPortEntry) Count() int {
	return e.End - e.Start + 1
}

// Validate checks the entry's port range and protocol.
func (e HiddenPortEntry) Validate() error {
	if !ValidPort(e.Start) || !ValidPort(e.End) {
		return fmt.Errorf("hidden port entry %d-%d out of range (%d-%d)", e.Start, e.End, MinPort, MaxPort)
	}
	if e.Start > e.End {
		return fmt.Errorf("hidden port entry %d-%d: start exceeds end", e.Start, e.End)
	}
	if !e.Protocol.IsValid() {
		return fmt.Errorf("hidden port entry %d-%d: invalid protocol %q", e.Start, e.End, e.Protocol)
	}
	return nil
}

// String returns a human-readable representation of the entry,
// e.g. "8080/tcp" or "8000-8099/udp".
func (e HiddenPortEntry) String() string {
	if e.Start == e.End {
		return fmt.Sprintf("%d/%s", e.Start, e.Protocol)
	}
	return fmt.Sprintf("%d-%d/%s", e.Start, e.End, e.Protocol)
}
