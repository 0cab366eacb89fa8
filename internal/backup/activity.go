package backup

import (
	"time"

	"github.com/aelpxy/stash/pkg/models"
)

// Activity is the run signal of one container for the current pass.
// LastAliveAt is zero when the container never ran.
type Activity struct {
	Running     bool
	LastAliveAt time.Time
}

func NewActivity(state models.ContainerState, now time.Time) Activity {
	if state.Running {
		return Activity{Running: true, LastAliveAt: now}
	}

	alive := state.FinishedAt
	if state.StartedAt.After(alive) {
		alive = state.StartedAt
	}
	return Activity{LastAliveAt: alive}
}

func (a Activity) HasRun() bool {
	return a.Running || !a.LastAliveAt.IsZero()
}

func (a Activity) RanSince(t time.Time) bool {
	if a.Running {
		return true
	}
	return !a.LastAliveAt.IsZero() && a.LastAliveAt.After(t)
}
