package docker

import (
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/dockports/internal/model"
)

// TestDetailsFromInspect verifies the full projection from the Docker
// API responses to the domain metadata struct.
func TestDetailsFromInspect(t *testing.T) {
	c := types.Container{
		ID:    "abcdef123456",
		Names: []string{"/web"},
		Image: "nginx:latest",
	}
	inspect := types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			HostConfig: &container.HostConfig{NetworkMode: "bridge"},
		},
		Config: &container.Config{
			ExposedPorts: nat.PortSet{
				"9090/tcp": struct{}{},
				"53/udp":   struct{}{},
			},
			Healthcheck: &container.HealthConfig{
				Test: []string{"CMD-SHELL", "curl -f http://localhost:9090/health"},
			},
			Entrypoint: strslice.StrSlice{"nginx"},
			Cmd:        strslice.StrSlice{"-g", "daemon off;"},
			Env:        []string{"PORT=8080"},
		},
		NetworkSettings: &types.NetworkSettings{
			NetworkSettingsBase: types.NetworkSettingsBase{
				Ports: nat.PortMap{
					"80/tcp": []nat.PortBinding{
						{HostIP: "0.0.0.0", HostPort: "8080"},
						{HostIP: "::", HostPort: "8080"},
					},
				},
			},
		},
	}

	details := detailsFromInspect(c, inspect)

	assert.Equal(t, "abcdef123456", details.ID)
	assert.Equal(t, "web", details.Name)
	assert.Equal(t, "nginx:latest", details.Image)
	assert.Equal(t, "bridge", details.NetworkMode)
	assert.False(t, details.HostNetwork())

	// Dual-stack bindings collapse to one entry.
	assert.Equal(t, []model.PortBinding{
		{HostPort: 8080, ContainerPort: 80, Protocol: model.ProtocolTCP},
	}, details.Bindings)

	// ExposedPorts come out sorted regardless of map iteration order.
	assert.Equal(t, []string{"53/udp", "9090/tcp"}, details.ExposedPorts)

	assert.Equal(t, []string{"CMD-SHELL", "curl -f http://localhost:9090/health"}, details.HealthTest)
	assert.Equal(t, []string{"nginx"}, details.Entrypoint)
	assert.Equal(t, []string{"-g", "daemon off;"}, details.Cmd)
	assert.Equal(t, []string{"PORT=8080"}, details.Env)
}

// TestDetailsFromInspect_HostNetwork checks the host-network projection:
// no bindings, network mode carried through.
func TestDetailsFromInspect_HostNetwork(t *testing.T) {
	c := types.Container{ID: "fedcba654321", Names: []string{"/metrics"}}
	inspect := types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			HostConfig: &container.HostConfig{NetworkMode: "host"},
		},
		Config: &container.Config{
			Env: []string{"LISTEN_PORT=9090"},
		},
		NetworkSettings: &types.NetworkSettings{},
	}

	details := detailsFromInspect(c, inspect)

	assert.True(t, details.HostNetwork())
	assert.Empty(t, details.Bindings)
	assert.Equal(t, []string{"LISTEN_PORT=9090"}, details.Env)
}

// TestDetailsFromInspect_NilSections verifies that missing inspect
// sections (stopped daemon races, minimal containers) do not panic.
func TestDetailsFromInspect_NilSections(t *testing.T) {
	details := detailsFromInspect(types.Container{ID: "x"}, types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{},
	})

	assert.Equal(t, "x", details.ID)
	assert.Empty(t, details.Name)
	assert.Empty(t, details.Bindings)
	assert.Empty(t, details.ExposedPorts)
}

// TestBindingsFromPortMap_SkipsUnpublished verifies that exposed but
// unpublished ports produce no bindings, and malformed host ports are
// skipped.
func TestBindingsFromPortMap_SkipsUnpublished(t *testing.T) {
	inspect := types.ContainerJSON{
		NetworkSettings: &types.NetworkSettings{
			NetworkSettingsBase: types.NetworkSettingsBase{
				Ports: nat.PortMap{
					"8080/tcp": nil, // exposed, not published
					"5432/tcp": []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: "15432"}},
					"6379/tcp": []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: "garbage"}},
				},
			},
		},
	}

	bindings := bindingsFromPortMap(inspect)

	require.Len(t, bindings, 1)
	assert.Equal(t, model.PortBinding{HostPort: 15432, ContainerPort: 5432, Protocol: model.ProtocolTCP}, bindings[0])
}

// TestContainerName verifies the leading-slash strip and empty input.
func TestContainerName(t *testing.T) {
	assert.Equal(t, "web", containerName([]string{"/web"}))
	assert.Equal(t, "web", containerName([]string{"web"}))
	assert.Equal(t, "", containerName(nil))
}
