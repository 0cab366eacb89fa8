package docker

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aelpxy/stash/internal/runtime"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/tlsconfig"
)

type Options struct {
	Host    string
	TLSCA   string
	TLSCert string
	TLSKey  string
}

func (o Options) tlsEnabled() bool {
	return o.TLSCA != "" && o.TLSCert != "" && o.TLSKey != ""
}

type Client struct {
	cli         *client.Client
	runtimeInfo *runtime.RuntimeInfo
}

func NewClient(opts Options) (*Client, error) {
	runtimeInfo, err := runtime.DetectRuntime(opts.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to detect container runtime: %w\nplease install docker or podman", err)
	}

	if err := runtimeInfo.EnsureSocketExists(); err != nil {
		return nil, err
	}

	clientOpts := []client.Opt{}
	if opts.tlsEnabled() {
		tlsCfg, err := tlsconfig.Client(tlsconfig.Options{
			CAFile:   opts.TLSCA,
			CertFile: opts.TLSCert,
			KeyFile:  opts.TLSKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load docker tls config: %w", err)
		}
		clientOpts = append(clientOpts, client.WithHTTPClient(&http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
		}))
	}
	clientOpts = append(clientOpts,
		client.WithHost(runtimeInfo.Host),
		client.WithAPIVersionNegotiation(),
	)

	cli, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create container runtime client: %w", err)
	}

	return &Client{
		cli:         cli,
		runtimeInfo: runtimeInfo,
	}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) GetRuntimeInfo() *runtime.RuntimeInfo {
	return c.runtimeInfo
}

func (c *Client) ServerVersion(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ContainerOpTimeout)
	defer cancel()

	v, err := c.cli.ServerVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to query runtime version: %w", err)
	}
	return v.Version, nil
}
