package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseProtocol verifies string-to-protocol conversion, including
// case normalization and error cases.
func TestParseProtocol(t *testing.T) {
	tests := []struct {
		input    string
		expected Protocol
		hasError bool
	}{
		{"tcp", ProtocolTCP, false},
		{"udp", ProtocolUDP, false},
		{"TCP", ProtocolTCP, false}, // case insensitive
		{"Udp", ProtocolUDP, false}, // case insensitive
		{"sctp", "", true},          // unsupported protocol
		{"", "", true},              // empty string
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseProtocol(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

// TestValidPort checks the boundaries of the valid port range.
func TestValidPort(t *testing.T) {
	assert.False(t, ValidPort(0))
	assert.True(t, ValidPort(1))
	assert.True(t, ValidPort(65535))
	assert.False(t, ValidPort(65536))
	assert.False(t, ValidPort(70000))
	assert.False(t, ValidPort(-1))
}

// TestPortState_IsValid checks that only defined states pass validation.
func TestPortState_IsValid(t *testing.T) {
	assert.True(t, StateUsed.IsValid())
	assert.True(t, StateAvailable.IsValid())
	assert.True(t, StateHidden.IsValid())
	assert.True(t, StateVirtualHidden.IsValid())
	assert.False(t, PortState("blocked").IsValid())
	assert.False(t, PortState("").IsValid())
}

// TestDetectionMethod_Confidence verifies the merge-precedence ordering:
// explicit bindings rank above every heuristic, the heuristics rank in
// chain order, and the env-var scan shares the bottom tier with the
// system scan so the source tie-break decides between them.
func TestDetectionMethod_Confidence(t *testing.T) {
	assert.Greater(t, MethodExplicitBinding.Confidence(), MethodExposedPorts.Confidence())
	assert.Greater(t, MethodExposedPorts.Confidence(), MethodHealthcheckParse.Confidence())
	assert.Greater(t, MethodHealthcheckParse.Confidence(), MethodEntrypointParse.Confidence())
	assert.Greater(t, MethodEntrypointParse.Confidence(), MethodEnvVarScan.Confidence())
	assert.Equal(t, MethodEnvVarScan.Confidence(), MethodSystemScan.Confidence())
	assert.Equal(t, 0, DetectionMethod("unknown").Confidence())
}

// TestParsePortSpec verifies parsing of Docker's "port/protocol"
// notation, including the tcp default and rejection of malformed specs.
func TestParsePortSpec(t *testing.T) {
	tests := []struct {
		spec     string
		port     int
		proto    Protocol
		hasError bool
	}{
		{"9090/tcp", 9090, ProtocolTCP, false},
		{"53/udp", 53, ProtocolUDP, false},
		{"8080", 8080, ProtocolTCP, false}, // missing protocol defaults to tcp
		{"0/tcp", 0, "", true},             // below range
		{"70000/tcp", 0, "", true},         // above range
		{"banana/tcp", 0, "", true},        // non-numeric port
		{"8080/sctp", 0, "", true},         // unsupported protocol
		{"", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			port, proto, err := ParsePortSpec(tt.spec)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.port, port)
			assert.Equal(t, tt.proto, proto)
		})
	}
}

// TestHiddenPortEntry_Covers verifies range containment including the
// protocol dimension.
func TestHiddenPortEntry_Covers(t *testing.T) {
	entry := HiddenPortEntry{Start: 8000, End: 8099, Protocol: ProtocolTCP}

	assert.True(t, entry.Covers(8000, ProtocolTCP))
	assert.True(t, entry.Covers(8050, ProtocolTCP))
	assert.True(t, entry.Covers(8099, ProtocolTCP))
	assert.False(t, entry.Covers(7999, ProtocolTCP))
	assert.False(t, entry.Covers(8100, ProtocolTCP))
	assert.False(t, entry.Covers(8050, ProtocolUDP)) // wrong protocol
}

// TestHiddenPortEntry_Validate checks range and protocol validation.
func TestHiddenPortEntry_Validate(t *testing.T) {
	assert.NoError(t, HiddenPortEntry{Start: 80, End: 80, Protocol: ProtocolTCP}.Validate())
	assert.NoError(t, HiddenPortEntry{Start: 1, End: 65535, Protocol: ProtocolUDP}.Validate())
	assert.Error(t, HiddenPortEntry{Start: 0, End: 80, Protocol: ProtocolTCP}.Validate())
	assert.Error(t, HiddenPortEntry{Start: 80, End: 70000, Protocol: ProtocolTCP}.Validate())
	assert.Error(t, HiddenPortEntry{Start: 90, End: 80, Protocol: ProtocolTCP}.Validate())
	assert.Error(t, HiddenPortEntry{Start: 80, End: 80, Protocol: "sctp"}.Validate())
}

// TestHiddenPortEntry_String verifies the single-port and range forms.
func TestHiddenPortEntry_String(t *testing.T) {
	assert.Equal(t, "8080/tcp", HiddenPortEntry{Start: 8080, End: 8080, Protocol: ProtocolTCP}.String())
	assert.Equal(t, "8000-8099/udp", HiddenPortEntry{Start: 8000, End: 8099, Protocol: ProtocolUDP}.String())
}

// TestAppError_Error verifies message formatting with and without the
// invalid-port list and a wrapped cause.
func TestAppError_Error(t *testing.T) {
	plain := NewError(KindConfig, "bad settings")
	assert.Equal(t, "bad settings", plain.Error())

	withPorts := &AppError{
		Kind:         KindInvalidPort,
		Message:      "ports out of range",
		InvalidPorts: []int{70000, 0},
	}
	assert.Equal(t, "ports out of range (invalid: 70000, 0)", withPorts.Error())

	wrapped := WrapError(KindPersistence, "write failed", errors.New("disk full"))
	assert.Equal(t, "write failed: disk full", wrapped.Error())
	assert.Equal(t, "disk full", errors.Unwrap(wrapped).Error())
}

// TestIsKind checks kind dispatch through wrapping.
func TestIsKind(t *testing.T) {
	err := WrapError(KindRuntimeUnavailable, "daemon down", errors.New("connection refused"))

	assert.True(t, IsKind(err, KindRuntimeUnavailable))
	assert.False(t, IsKind(err, KindScanUnavailable))
	assert.False(t, IsKind(errors.New("plain"), KindRuntimeUnavailable))
	assert.False(t, IsKind(nil, KindRuntimeUnavailable))
}

// TestExitCodeFor verifies the error-to-exit-code mapping used by the CLI.
func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCodeFor(nil))
	assert.Equal(t, ExitConfigError, ExitCodeFor(NewError(KindConfig, "bad")))
	assert.Equal(t, ExitDockerNotRunning, ExitCodeFor(NewError(KindRuntimeUnavailable, "down")))
	assert.Equal(t, ExitGeneralError, ExitCodeFor(NewError(KindPersistence, "disk")))
	assert.Equal(t, ExitGeneralError, ExitCodeFor(errors.New("plain")))
}

// TestSnapshot_StateOf verifies that the four states partition the port
// space per protocol: each probed (port, protocol) pair lands in exactly
// the expected state, and hiding is protocol-scoped.
func TestSnapshot_StateOf(t *testing.T) {
	used := PortRecord{Port: 80, Protocol: ProtocolTCP, State: StateUsed, Source: SourceContainer}
	hidden := PortRecord{Port: 443, Protocol: ProtocolTCP, State: StateHidden, Source: SourceSystem}
	snapshot := &Snapshot{
		Entries: []ViewEntry{{Kind: EntryPort, Record: &used}},
		Hidden:  []PortRecord{hidden},
		HiddenEntries: []HiddenPortEntry{
			{Start: 443, End: 443, Protocol: ProtocolTCP},
			{Start: 1000, End: 1010, Protocol: ProtocolTCP},
		},
	}

	tests := []struct {
		name     string
		port     int
		proto    Protocol
		expected PortState
	}{
		{"used record", 80, ProtocolTCP, StateUsed},
		{"hidden used record", 443, ProtocolTCP, StateHidden},
		{"hidden unused port", 1005, ProtocolTCP, StateVirtualHidden},
		{"plain unused port", 5, ProtocolTCP, StateAvailable},
		{"used on tcp only", 80, ProtocolUDP, StateAvailable},
		{"hidden on tcp only", 1005, ProtocolUDP, StateAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, snapshot.StateOf(tt.port, tt.proto))
		})
	}
}
