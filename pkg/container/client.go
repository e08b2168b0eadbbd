package container

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	cerrdefs "github.com/containerd/errdefs"
	dockerContainerType "github.com/docker/docker/api/types/container"
	dockerFiltersType "github.com/docker/docker/api/types/filters"
	dockerClient "github.com/docker/docker/client"

	"github.com/nicholas-fedor/versiontower/pkg/types"
)

// ClientOptions configures container discovery.
type ClientOptions struct {
	IncludeStopped    bool // Also list created and exited containers.
	IncludeRestarting bool // Also list restarting containers.
}

// Client lists the images of containers on a Docker host.
type Client struct {
	api  dockerClient.APIClient
	opts ClientOptions
}

// NewClient connects to the Docker host configured in the environment
// (DOCKER_HOST, DOCKER_TLS_VERIFY, DOCKER_CERT_PATH). The API version is
// negotiated unless DOCKER_API_VERSION is set.
func NewClient(opts ClientOptions) (*Client, error) {
	clientOpts := []dockerClient.Opt{dockerClient.FromEnv}

	if version := strings.Trim(os.Getenv("DOCKER_API_VERSION"), "\""); version == "" {
		clientOpts = append(clientOpts, dockerClient.WithAPIVersionNegotiation())
	}

	cli, err := dockerClient.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errCreateClient, err)
	}

	logrus.WithField("host", cli.DaemonHost()).Debug("Initialized Docker client")

	return NewClientWithAPI(cli, opts), nil
}

// NewClientWithAPI wraps an existing Docker API client.
func NewClientWithAPI(api dockerClient.APIClient, opts ClientOptions) *Client {
	return &Client{api: api, opts: opts}
}

// ListImages describes the images of the selected containers.
//
// Containers that disappear between listing and inspection are skipped, as are
// containers whose inspection fails; only a failed listing is an error.
func (c *Client) ListImages(ctx context.Context) ([]types.LocalImageRef, error) {
	clog := logrus.WithFields(logrus.Fields{
		"include_stopped":    c.opts.IncludeStopped,
		"include_restarting": c.opts.IncludeRestarting,
	})

	clog.Debug("Retrieving container list")

	filterArgs := dockerFiltersType.NewArgs()
	filterArgs.Add("status", "running")

	if c.opts.IncludeStopped {
		filterArgs.Add("status", "created")
		filterArgs.Add("status", "exited")
	}

	if c.opts.IncludeRestarting {
		filterArgs.Add("status", "restarting")
	}

	containers, err := c.api.ContainerList(ctx, dockerContainerType.ListOptions{Filters: filterArgs})
	if err != nil {
		clog.WithError(err).Debug("Failed to list containers")

		return nil, fmt.Errorf("%w: %w", errListContainersFailed, err)
	}

	images := make([]types.LocalImageRef, 0, len(containers))

	for _, summary := range containers {
		image, err := c.inspect(ctx, summary.ID)
		if err != nil {
			if cerrdefs.IsNotFound(err) {
				clog.WithField("container_id", summary.ID).Debug("Container vanished before inspection")
			} else {
				clog.WithError(err).WithField("container_id", summary.ID).Warn("Skipping container")
			}

			continue
		}

		images = append(images, image)
	}

	clog.WithField("count", len(images)).Debug("Listed container images")

	return images, nil
}

func (c *Client) inspect(ctx context.Context, containerID string) (types.LocalImageRef, error) {
	info, err := c.api.ContainerInspect(ctx, containerID)
	if err != nil {
		return types.LocalImageRef{}, fmt.Errorf("%w: %w", errInspectContainerFailed, err)
	}

	return ImageRef(info)
}
