package backup

import (
	"context"
	"io"

	"github.com/aelpxy/stash/pkg/models"
)

// Runtime is the part of the container runtime a pass needs.
// *docker.Client satisfies it.
type Runtime interface {
	ListContainers(ctx context.Context) ([]models.Container, error)
	InspectState(ctx context.Context, containerID string) (models.ContainerState, error)
	CopyPath(ctx context.Context, containerID, path string) (io.ReadCloser, error)
}

type Notifier interface {
	Notify(ctx context.Context, summary *Summary) error
}
