package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aelpxy/stash/pkg/models"
	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
)

var ErrContainerNotFound = errors.New("container not found")

// ListContainers returns every container known to the runtime, stopped ones included.
func (c *Client) ListContainers(ctx context.Context) ([]models.Container, error) {
	ctx, cancel := context.WithTimeout(ctx, ListTimeout)
	defer cancel()

	all, err := c.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	out := make([]models.Container, 0, len(all))
	for _, cont := range all {
		name := ""
		if len(cont.Names) > 0 {
			name = strings.TrimPrefix(cont.Names[0], "/")
		}
		out = append(out, models.Container{ID: cont.ID, Name: name})
	}

	return out, nil
}

func (c *Client) InspectState(ctx context.Context, containerID string) (models.ContainerState, error) {
	ctx, cancel := context.WithTimeout(ctx, ContainerOpTimeout)
	defer cancel()

	inspect, err := c.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return models.ContainerState{}, fmt.Errorf("%w: %s", ErrContainerNotFound, containerID)
		}
		return models.ContainerState{}, fmt.Errorf("failed to inspect container %s: %w", containerID, err)
	}

	if inspect.ContainerJSONBase == nil || inspect.State == nil {
		return models.ContainerState{}, fmt.Errorf("runtime returned no state for container %s", containerID)
	}

	startedAt, err := parseStateTime(inspect.State.StartedAt)
	if err != nil {
		return models.ContainerState{}, fmt.Errorf("invalid start time for container %s: %w", containerID, err)
	}
	finishedAt, err := parseStateTime(inspect.State.FinishedAt)
	if err != nil {
		return models.ContainerState{}, fmt.Errorf("invalid finish time for container %s: %w", containerID, err)
	}

	return models.ContainerState{
		Running:    inspect.State.Running,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}, nil
}

// CopyPath streams path out of the container as a tar archive.
func (c *Client) CopyPath(ctx context.Context, containerID, path string) (io.ReadCloser, error) {
	rc, _, err := c.cli.CopyFromContainer(ctx, containerID, path)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s:%s", ErrContainerNotFound, containerID, path)
		}
		return nil, fmt.Errorf("failed to copy %s from container %s: %w", path, containerID, err)
	}
	return rc, nil
}

// the runtime reports "0001-01-01T00:00:00Z" for events that never happened
func parseStateTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	if t.Year() <= 1 {
		return time.Time{}, nil
	}
	return t.UTC(), nil
}
