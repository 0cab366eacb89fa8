package docker

import "time"

const (
	ContainerOpTimeout = 30 * time.Second
	ListTimeout        = 30 * time.Second
)
