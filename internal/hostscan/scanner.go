// Package hostscan implements the system-side port source: it
// enumerates the host's listening TCP/UDP sockets by running netstat
// and parsing its output.
//
// netstat is used rather than probing ports with net.Listen because a
// probe can only test one port at a time and cannot distinguish "free"
// from "bound by a socket we could not probe", while the socket table
// lists every listener in a single call and can name the owning process
// when privileges allow.
package hostscan

import (
	"context"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/mmr-tortoise/dockports/internal/model"
)

// Scanner runs the host socket enumeration. It satisfies the
// aggregator's SystemSource interface.
//
// The netstat binary name is a field so tests can point the scanner at
// a stub; production code uses NewScanner which defaults to "netstat".
type Scanner struct {
	binary string
}

// NewScanner creates a scanner that invokes the system netstat binary.
func NewScanner() *Scanner {
	return &Scanner{binary: "netstat"}
}

// ListeningPorts returns the host's currently listening (port,
// protocol) pairs, deduplicated across IPv4/IPv6 and annotated with the
// owning process name where netstat could report it.
//
// It first tries "netstat -tulpn" (the -p column carries "pid/name");
// when that fails — typically because -p needs elevated privileges on
// some systems — it falls back to "netstat -tuln". Only when both
// invocations fail is the source reported unavailable, as a
// model.AppError with KindScanUnavailable.
func (s *Scanner) ListeningPorts(ctx context.Context) ([]model.ListeningPort, error) {
	output, err := exec.CommandContext(ctx, s.binary, "-tulpn").Output()
	if err != nil {
		var fallbackErr error
		output, fallbackErr = exec.CommandContext(ctx, s.binary, "-tuln").Output()
		if fallbackErr != nil {
			return nil, model.WrapError(
				model.KindScanUnavailable,
				"host socket scan unavailable: netstat failed",
				fallbackErr,
			)
		}
	}

	return ParseOutput(string(output)), nil
}

// ParseOutput parses netstat output into listening-port rows. It is a
// pure function so the parsing rules can be exercised against captured
// fixtures without running netstat.
//
// Recognized lines look like:
//
//	tcp    0  0 0.0.0.0:22      0.0.0.0:*   LISTEN   812/sshd
//	tcp6   0  0 :::80           :::*        LISTEN
//	udp    0  0 127.0.0.53:53   0.0.0.0:*            601/systemd-resolve
//
// TCP rows are kept only in LISTEN state; UDP rows have no state
// column. tcp6/udp6 collapse onto tcp/udp — the IP version is not part
// of the record identity, so a dual-stack listener yields one row.
func ParseOutput(output string) []model.ListeningPort {
	// byKey keeps the first row per (port, protocol), preferring one
	// that carries a process name.
	byKey := make(map[model.PortKey]model.ListeningPort)

	for _, line := range strings.Split(output, "\n") {
		row, ok := parseLine(line)
		if !ok {
			continue
		}
		key := model.PortKey{Port: row.Port, Protocol: row.Protocol}
		if existing, seen := byKey[key]; seen {
			// Keep the annotated variant when the duplicate (usually
			// the IPv6 row) carries the process name.
			if existing.Process == "" && row.Process != "" {
				byKey[key] = row
			}
			continue
		}
		byKey[key] = row
	}

	ports := make([]model.ListeningPort, 0, len(byKey))
	for _, row := range byKey {
		ports = append(ports, row)
	}
	sort.Slice(ports, func(i, j int) bool {
		if ports[i].Port != ports[j].Port {
			return ports[i].Port < ports[j].Port
		}
		return ports[i].Protocol < ports[j].Protocol
	})

	return ports
}

// parseLine parses one netstat row. Returns ok=false for headers,
// blank lines, non-listening TCP rows, and anything unparsable.
func parseLine(line string) (model.ListeningPort, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return model.ListeningPort{}, false
	}

	proto, ok := normalizeProto(fields[0])
	if !ok {
		return model.ListeningPort{}, false
	}

	// Field layout: proto recv-q send-q local-address foreign-address
	// [state] [pid/program]. The state column exists only for TCP.
	localAddr := fields[3]

	if proto == model.ProtocolTCP {
		if len(fields) < 6 || fields[5] != "LISTEN" {
			return model.ListeningPort{}, false
		}
	}

	port, ok := portFromAddress(localAddr)
	if !ok {
		return model.ListeningPort{}, false
	}

	return model.ListeningPort{
		Port:     port,
		Protocol: proto,
		Process:  processName(fields),
	}, true
}

// normalizeProto maps netstat protocol names onto the two domain
// protocols. The IPv6 variants collapse onto their base protocol.
func normalizeProto(raw string) (model.Protocol, bool) {
	switch strings.ToLower(raw) {
	case "tcp", "tcp4", "tcp6":
		return model.ProtocolTCP, true
	case "udp", "udp4", "udp6":
		return model.ProtocolUDP, true
	default:
		return "", false
	}
}

// portFromAddress extracts the port from a netstat local address.
// Handles IPv4 "addr:port", IPv6 "[addr]:port", and the wildcard
// ":::port" form. The port always follows the last colon.
func portFromAddress(addr string) (int, bool) {
	idx := strings.LastIndexByte(addr, ':')
	if idx < 0 || idx == len(addr)-1 {
		return 0, false
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil || !model.ValidPort(port) {
		return 0, false
	}
	return port, true
}

// processName extracts the program name from the trailing "pid/name"
// column emitted by netstat -p. Returns "" when the column is absent
// or netstat printed "-" (no permission to resolve the owner).
func processName(fields []string) string {
	last := fields[len(fields)-1]
	slash := strings.IndexByte(last, '/')
	if slash < 0 {
		return ""
	}
	if _, err := strconv.Atoi(last[:slash]); err != nil {
		return ""
	}
	return last[slash+1:]
}
