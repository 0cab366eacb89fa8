package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type RuntimeType string

const (
	RuntimeDocker RuntimeType = "docker"
	RuntimePodman RuntimeType = "podman"
	RuntimeRemote RuntimeType = "remote"
)

const dockerSocketPath = "/var/run/docker.sock"

type RuntimeInfo struct {
	Type       RuntimeType
	SocketPath string
	Host       string
	IsRootless bool
}

// DetectRuntime finds the daemon to talk to. An explicit host (config or
// DOCKER_HOST) wins; otherwise the docker socket, then the podman socket.
func DetectRuntime(host string) (*RuntimeInfo, error) {
	if host == "" {
		host = os.Getenv("DOCKER_HOST")
	}
	if host != "" {
		return fromHost(host), nil
	}

	if info, err := detectDocker(); err == nil {
		return info, nil
	}

	if info, err := detectPodman(); err == nil {
		return info, nil
	}

	return nil, fmt.Errorf("no container runtime detected (tried %s, %s)", dockerSocketPath, GetPodmanSocketPath())
}

func fromHost(host string) *RuntimeInfo {
	info := &RuntimeInfo{Type: RuntimeRemote, Host: host}

	if strings.HasPrefix(host, "unix://") {
		info.SocketPath = strings.TrimPrefix(host, "unix://")
		info.Type = RuntimeDocker
		if strings.Contains(host, "podman") {
			info.Type = RuntimePodman
			info.IsRootless = strings.HasPrefix(info.SocketPath, "/run/user/")
		}
	}

	return info
}

func detectDocker() (*RuntimeInfo, error) {
	if _, err := os.Stat(dockerSocketPath); err != nil {
		return nil, fmt.Errorf("docker socket not found at %s", dockerSocketPath)
	}

	return &RuntimeInfo{
		Type:       RuntimeDocker,
		SocketPath: dockerSocketPath,
		Host:       "unix://" + dockerSocketPath,
	}, nil
}

func detectPodman() (*RuntimeInfo, error) {
	socketPath := GetPodmanSocketPath()
	if _, err := os.Stat(socketPath); err != nil {
		return nil, fmt.Errorf("podman socket not found at %s", socketPath)
	}

	return &RuntimeInfo{
		Type:       RuntimePodman,
		SocketPath: socketPath,
		Host:       "unix://" + socketPath,
		IsRootless: os.Getuid() != 0,
	}, nil
}

func (r *RuntimeInfo) GetRuntimeName() string {
	name := string(r.Type)
	if r.Type == RuntimePodman && r.IsRootless {
		name += " (rootless)"
	}
	return name
}

func (r *RuntimeInfo) EnsureSocketExists() error {
	if r.SocketPath == "" {
		return nil
	}
	if _, err := os.Stat(r.SocketPath); err != nil {
		if r.Type == RuntimePodman {
			return fmt.Errorf("podman socket not found at %s - enable it with 'systemctl --user enable --now podman.socket'", r.SocketPath)
		}
		return fmt.Errorf("runtime socket not found at %s", r.SocketPath)
	}
	return nil
}

func GetPodmanSocketPath() string {
	if os.Getuid() != 0 {
		return filepath.Join("/run/user", fmt.Sprintf("%d", os.Getuid()), "podman", "podman.sock")
	}
	return "/run/podman/podman.sock"
}
