// source.go implements the ContainerPortSource contract: list the
// currently running containers and project each into the raw metadata
// the aggregator and heuristic extractor consume.
package docker

import (
	"context"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"

	"github.com/mmr-tortoise/dockports/internal/model"
)

// Source queries the Docker daemon for running containers and their
// port-relevant configuration. It satisfies the aggregator's
// ContainerSource interface.
type Source struct {
	cli *Client
}

// NewSource creates a container port source backed by the given client.
func NewSource(cli *Client) *Source {
	return &Source{cli: cli}
}

// ListContainers returns the metadata of every running container.
//
// Each container is inspected individually because the list endpoint
// does not carry the config fields the heuristic extractor needs
// (ExposedPorts, healthcheck, entrypoint, env). A failed inspect of a
// single container is logged and skipped; only a failed list makes the
// whole source unavailable.
//
// Returns a model.AppError with KindRuntimeUnavailable when the daemon
// cannot be reached; callers treat this as a partial-data condition.
func (s *Source) ListContainers(ctx context.Context) ([]model.ContainerDetails, error) {
	// Running containers only: stopped containers hold no ports.
	containers, err := s.cli.inner.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, model.WrapError(
			model.KindRuntimeUnavailable,
			"failed to list Docker containers",
			err,
		)
	}

	details := make([]model.ContainerDetails, 0, len(containers))
	for _, c := range containers {
		inspect, err := s.cli.inner.ContainerInspect(ctx, c.ID)
		if err != nil {
			// One uninspectable container (it may have just exited)
			// must not take down the whole pass.
			log.Printf("dockports: skipping container %s: inspect failed: %v", c.ID[:12], err)
			continue
		}
		details = append(details, detailsFromInspect(c, inspect))
	}

	return details, nil
}

// detailsFromInspect maps the Docker API list and inspect responses to
// the domain metadata struct. This is a pure mapping function with no
// side effects, which keeps it independently testable.
func detailsFromInspect(c types.Container, inspect types.ContainerJSON) model.ContainerDetails {
	details := model.ContainerDetails{
		ID:    c.ID,
		Name:  containerName(c.Names),
		Image: c.Image,
	}

	if inspect.HostConfig != nil {
		details.NetworkMode = string(inspect.HostConfig.NetworkMode)
	}

	if inspect.NetworkSettings != nil {
		details.Bindings = bindingsFromPortMap(inspect)
	}

	if cfg := inspect.Config; cfg != nil {
		// ExposedPorts is a map keyed by nat.Port; sort the specs so
		// downstream output is deterministic regardless of map order.
		for portSpec := range cfg.ExposedPorts {
			details.ExposedPorts = append(details.ExposedPorts, string(portSpec))
		}
		sort.Strings(details.ExposedPorts)

		if cfg.Healthcheck != nil {
			details.HealthTest = cfg.Healthcheck.Test
		}
		details.Entrypoint = cfg.Entrypoint
		details.Cmd = cfg.Cmd
		details.Env = cfg.Env
	}

	return details
}

// bindingsFromPortMap flattens NetworkSettings.Ports into the domain
// binding list. Entries without host bindings (exposed but unpublished
// ports) are skipped — those are the heuristic extractor's territory.
func bindingsFromPortMap(inspect types.ContainerJSON) []model.PortBinding {
	var bindings []model.PortBinding

	for portSpec, hostBindings := range inspect.NetworkSettings.Ports {
		if len(hostBindings) == 0 {
			continue
		}
		containerPort := portSpec.Int()
		proto, err := model.ParseProtocol(portSpec.Proto())
		if err != nil {
			continue
		}
		for _, hb := range hostBindings {
			hostPort, err := strconv.Atoi(hb.HostPort)
			if err != nil || !model.ValidPort(hostPort) {
				continue
			}
			bindings = append(bindings, model.PortBinding{
				HostPort:      hostPort,
				ContainerPort: containerPort,
				Protocol:      proto,
			})
		}
	}

	// The same (host port, protocol) can appear once per bind address
	// (0.0.0.0 and ::). Collapse duplicates and sort for determinism.
	sort.Slice(bindings, func(i, j int) bool {
		if bindings[i].HostPort != bindings[j].HostPort {
			return bindings[i].HostPort < bindings[j].HostPort
		}
		return bindings[i].Protocol < bindings[j].Protocol
	})
	deduped := bindings[:0]
	for i, b := range bindings {
		if i > 0 && b == bindings[i-1] {
			continue
		}
		deduped = append(deduped, b)
	}

	return deduped
}

// containerName extracts the primary container name. Docker returns
// names with a leading "/" that is an API artifact, not meaningful to
// users, so it is stripped.
func containerName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}
