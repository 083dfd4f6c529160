// Package heuristic infers listening ports for containers running in
// host-network mode, where declared port bindings are absent.
//
// The extraction chain is an explicit, ordered list of pure functions,
// each mapping container metadata to a list of candidates. The fixed
// order encodes the confidence precedence (ExposedPorts config first,
// environment variable scan last); each candidate is tagged with the
// detection method that produced it so the aggregator can resolve
// conflicts deterministically.
package heuristic

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mmr-tortoise/dockports/internal/model"
)

// Candidate is one inferred listening port for a container. Candidates
// are deduplicated per container keeping the highest-confidence method;
// cross-container and cross-source deduplication happens downstream in
// the aggregator.
type Candidate struct {
	// Port is the inferred host port (host-network mode means container
	// port and host port coincide).
	Port int

	// Protocol is tcp unless the source of the inference carried an
	// explicit protocol (only ExposedPorts entries do).
	Protocol model.Protocol

	// Method identifies which extractor produced the candidate.
	Method model.DetectionMethod
}

// extractor pairs a detection method with its pure extraction function.
// The slice below is the single place that defines the precedence order.
type extractor struct {
	method model.DetectionMethod
	fn     func(model.ContainerDetails) []Candidate
}

// extractors is the fixed-priority extraction chain. Order matters:
// earlier entries have higher confidence, and per-container
// deduplication keeps the first method that found a given port.
var extractors = []extractor{
	{model.MethodExposedPorts, fromExposedPorts},
	{model.MethodHealthcheckParse, fromHealthcheck},
	{model.MethodEntrypointParse, fromEntrypoint},
	{model.MethodEnvVarScan, fromEnv},
}

// Extract runs the full extraction chain against one container and
// returns the deduplicated candidate list. A container may yield zero,
// one, or several candidates; no inference failure is fatal — absence
// of matches simply yields no candidate.
func Extract(details model.ContainerDetails) []Candidate {
	var out []Candidate
	seen := make(map[model.PortKey]struct{})

	for _, ex := range extractors {
		for _, cand := range ex.fn(details) {
			key := model.PortKey{Port: cand.Port, Protocol: cand.Protocol}
			if _, dup := seen[key]; dup {
				// An earlier (higher-confidence) extractor already
				// produced this port; keep its tag.
				continue
			}
			seen[key] = struct{}{}
			out = append(out, cand)
		}
	}

	return out
}

// fromExposedPorts parses the ExposedPorts configuration entries
// ("<port>/<protocol>"). This is the highest-confidence heuristic: the
// image author declared the port explicitly, it just is not published
// because the container shares the host network namespace.
func fromExposedPorts(details model.ContainerDetails) []Candidate {
	var out []Candidate
	for _, spec := range details.ExposedPorts {
		port, proto, err := model.ParsePortSpec(spec)
		if err != nil {
			// Malformed entries are skipped, not fatal.
			continue
		}
		out = append(out, Candidate{Port: port, Protocol: proto, Method: model.MethodExposedPorts})
	}
	return out
}

// fromHealthcheck pattern-matches host:port occurrences in the
// container's healthcheck command (localhost:N, 127.0.0.1:N, 0.0.0.0:N,
// and bare :N). A healthcheck that probes a port is strong evidence the
// container listens on it.
func fromHealthcheck(details model.ContainerDetails) []Candidate {
	if len(details.HealthTest) == 0 {
		return nil
	}
	// Docker's Test vector starts with a marker ("CMD", "CMD-SHELL",
	// "NONE"); "NONE" disables the healthcheck entirely.
	if details.HealthTest[0] == "NONE" {
		return nil
	}

	text := strings.Join(details.HealthTest, " ")

	var out []Candidate
	for _, port := range portsInText(text) {
		out = append(out, Candidate{Port: port, Protocol: model.ProtocolTCP, Method: model.MethodHealthcheckParse})
	}
	return out
}

// portFlags are the flag names whose value is a bare port number.
// Both "--flag=N" and "--flag N" forms are recognized.
var portFlags = map[string]bool{
	"--port":   true,
	"--listen": true,
	"-p":       true,
}

// fromEntrypoint scans the entrypoint and command argument vectors for
// flag-style port arguments (--port=N, --port N, -p=N, -p N,
// --listen=N, --bind=host:N) and bare :N occurrences.
func fromEntrypoint(details model.ContainerDetails) []Candidate {
	args := make([]string, 0, len(details.Entrypoint)+len(details.Cmd))
	args = append(args, details.Entrypoint...)
	args = append(args, details.Cmd...)

	var out []Candidate
	add := func(port int) {
		if model.ValidPort(port) {
			out = append(out, Candidate{Port: port, Protocol: model.ProtocolTCP, Method: model.MethodEntrypointParse})
		}
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// "--flag=value" forms.
		if name, value, found := strings.Cut(arg, "="); found {
			switch {
			case portFlags[name]:
				if port, err := strconv.Atoi(value); err == nil {
					add(port)
					continue
				}
			case name == "--bind":
				// --bind=host:N — the port follows the last colon.
				if idx := strings.LastIndexByte(value, ':'); idx >= 0 {
					if port, err := strconv.Atoi(value[idx+1:]); err == nil {
						add(port)
						continue
					}
				}
			}
		}

		// "--flag value" forms: the port is the next argument.
		if portFlags[arg] && i+1 < len(args) {
			if port, err := strconv.Atoi(args[i+1]); err == nil {
				add(port)
				i++
				continue
			}
		}

		// Bare :N occurrences inside any argument (e.g. "--addr=:8080").
		for _, port := range portsInText(arg) {
			add(port)
		}
	}

	return out
}

// portEnvNames are the environment variable name fragments that suggest
// the variable configures a listen port. Matching is a case-insensitive
// substring check.
var portEnvNames = []string{"PORT", "HTTP_PORT", "LISTEN_PORT"}

// fromEnv scans the environment variable list for names matching the
// port fragments and parses their values as integer ports. This is the
// weakest signal: many images carry PORT-like variables that the
// running process ignores.
func fromEnv(details model.ContainerDetails) []Candidate {
	var out []Candidate
	for _, kv := range details.Env {
		name, value, found := strings.Cut(kv, "=")
		if !found {
			continue
		}
		upper := strings.ToUpper(name)
		matched := false
		for _, fragment := range portEnvNames {
			if strings.Contains(upper, fragment) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || !model.ValidPort(port) {
			continue
		}
		out = append(out, Candidate{Port: port, Protocol: model.ProtocolTCP, Method: model.MethodEnvVarScan})
	}
	return out
}

// hostPortPattern matches host:port forms: localhost:N, 127.0.0.1:N,
// 0.0.0.0:N, and bare :N. The port digits are the only capture group.
var hostPortPattern = regexp.MustCompile(`(?:localhost|127\.0\.0\.1|0\.0\.0\.0)?:(\d{1,5})`)

// portsInText extracts all valid port numbers from host:port
// occurrences in free-form text. A match whose colon is directly
// preceded by a digit is rejected so that timestamps and version
// strings ("12:30", "1.2:3") do not produce candidates.
func portsInText(text string) []int {
	var ports []int
	for _, m := range hostPortPattern.FindAllStringSubmatchIndex(text, -1) {
		start := m[0]
		if text[start] == ':' && start > 0 {
			prev := text[start-1]
			if prev >= '0' && prev <= '9' {
				continue
			}
		}
		port, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil || !model.ValidPort(port) {
			continue
		}
		ports = append(ports, port)
	}
	return ports
}
