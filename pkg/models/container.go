package models

import "time"

type Container struct {
	ID   string
	Name string
}

func (c Container) ShortID() string {
	return ShortID(c.ID)
}

// ContainerState is the run state reported by the runtime. Zero times mean
// the container never started or never finished.
type ContainerState struct {
	Running    bool
	StartedAt  time.Time
	FinishedAt time.Time
}
