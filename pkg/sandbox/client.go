package sandbox

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// DockerAPI is the subset of the Docker client used by the container backend
type DockerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ImagePull(ctx context.Context, refStr string, options types.ImagePullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error
	ContainerLogs(ctx context.Context, containerID string, options types.ContainerLogsOptions) (io.ReadCloser, error)
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error
	Close() error
}

var _ DockerAPI = (*client.Client)(nil)

// NewDockerClient connects using the standard DOCKER_* environment
func NewDockerClient() (DockerAPI, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("Docker not available: %w", err)
	}
	return cli, nil
}

// CheckDockerAvailability verifies the daemon answers
func CheckDockerAvailability(ctx context.Context, cli DockerAPI) error {
	if _, err := cli.Ping(ctx); err != nil {
		return fmt.Errorf("Docker not available: %w", err)
	}
	return nil
}

// PullDockerImage ensures image is present locally, pulling it when missing
func PullDockerImage(ctx context.Context, cli DockerAPI, image string, progress io.Writer) error {
	if _, _, err := cli.ImageInspectWithRaw(ctx, image); err == nil {
		return nil
	}

	reader, err := cli.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull Docker image: %w", err)
	}
	defer reader.Close()

	if progress == nil {
		progress = io.Discard
	}
	if _, err := io.Copy(progress, reader); err != nil {
		return fmt.Errorf("failed to pull Docker image: %w", err)
	}
	return nil
}
