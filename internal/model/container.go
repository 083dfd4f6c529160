package model

import (
	"fmt"
	"strconv"
	"strings"
)

// NetworkModeHost is the Docker network mode in which a container shares
// the host's network namespace. Containers in this mode have no port
// bindings that reveal their listening ports, which is what makes the
// heuristic extractor necessary.
const NetworkModeHost = "host"

// ContainerDetails is the raw container metadata the aggregation
// pipeline consumes. It is a flattened projection of the Docker inspect
// response: only the fields the explicit-binding collector and the
// heuristic extractor need.
//
// Keeping this as a plain struct decouples the extractor and aggregator
// from the Docker SDK types, so both can be tested with literal values.
type ContainerDetails struct {
	// ID is the full container identifier.
	ID string `json:"id"`

	// Name is the container name with Docker's leading "/" stripped.
	Name string `json:"name"`

	// Image is the image reference the container was created from.
	Image string `json:"image"`

	// NetworkMode is the HostConfig network mode ("bridge", "host", ...).
	NetworkMode string `json:"network_mode"`

	// Bindings are the declared host port mappings from NetworkSettings.
	// Empty for host-network containers.
	Bindings []PortBinding `json:"bindings,omitempty"`

	// ExposedPorts are the image/config EXPOSE entries in Docker's
	// "port/protocol" notation (e.g. "9090/tcp").
	ExposedPorts []string `json:"exposed_ports,omitempty"`

	// HealthTest is the healthcheck command vector from the container
	// config (Docker's Test field, e.g. ["CMD-SHELL", "curl -f ..."]).
	HealthTest []string `json:"health_test,omitempty"`

	// Entrypoint and Cmd are the process argument vectors.
	Entrypoint []string `json:"entrypoint,omitempty"`
	Cmd        []string `json:"cmd,omitempty"`

	// Env is the environment variable list in "KEY=VALUE" form.
	Env []string `json:"env,omitempty"`
}

// HostNetwork reports whether the container runs in host-network mode,
// i.e. whether its declared bindings cannot represent its true
// listening ports.
func (c ContainerDetails) HostNetwork() bool {
	return c.NetworkMode == NetworkModeHost
}

// PortBinding is one declared container-to-host port mapping.
type PortBinding struct {
	// HostPort is the published port on the host (1-65535).
	HostPort int `json:"host_port"`

	// ContainerPort is the port inside the container.
	ContainerPort int `json:"container_port"`

	// Protocol is the transport protocol of the mapping.
	Protocol Protocol `json:"protocol"`
}

// ContainerPortSpec returns the internal port in Docker's
// "port/protocol" notation, e.g. "8080/tcp".
func (b PortBinding) ContainerPortSpec() string {
	return fmt.Sprintf("%d/%s", b.ContainerPort, b.Protocol)
}

// ParsePortSpec parses Docker's "port/protocol" notation (e.g.
// "9090/tcp") into a port number and protocol. A missing protocol
// suffix defaults to tcp, matching Docker's own default.
func ParsePortSpec(spec string) (int, Protocol, error) {
	portPart := spec
	proto := ProtocolTCP

	if idx := strings.IndexByte(spec, '/'); idx >= 0 {
		portPart = spec[:idx]
		parsed, err := ParseProtocol(spec[idx+1:])
		if err != nil {
			return 0, "", fmt.Errorf("port spec %q: %w", spec, err)
		}
		proto = parsed
	}

	port, err := strconv.Atoi(strings.TrimSpace(portPart))
	if err != nil {
		return 0, "", fmt.Errorf("port spec %q: invalid port number", spec)
	}
	if !ValidPort(port) {
		return 0, "", fmt.Errorf("port spec %q: port out of range (%d-%d)", spec, MinPort, MaxPort)
	}
	return port, proto, nil
}

// ListeningPort is one row of the host socket scan: a (port, protocol)
// pair that is currently listening on the host, optionally annotated
// with the owning process name when the scan could obtain it.
type ListeningPort struct {
	// Port is the listening port number.
	Port int `json:"port"`

	// Protocol is the transport protocol of the listener.
	Protocol Protocol `json:"protocol"`

	// Process is the owning process name, e.g. "sshd". Empty when the
	// socket enumeration could not resolve it (insufficient privileges).
	Process string `json:"process,omitempty"`
}
