// Package docker wraps the Docker SDK operations the deployer needs:
// network management, proxy container lifecycle, and post-start network
// attachment of the application container.
package docker

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
)

type Client struct {
	inner *client.Client
}

// New creates a Docker client from environment defaults.
func New(host string) (*Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	inner, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Client{inner: inner}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.inner.Ping(ctx); err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	if c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

// EnsureNetwork creates a bridge network if none with that name exists.
func (c *Client) EnsureNetwork(ctx context.Context, name string) error {
	nets, err := c.inner.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return fmt.Errorf("list networks: %w", err)
	}
	for _, n := range nets {
		if n.Name == name {
			return nil
		}
	}
	if _, err := c.inner.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"}); err != nil {
		return fmt.Errorf("create network %s: %w", name, err)
	}
	return nil
}

// FindNetwork returns the name of the first network containing pattern,
// or "" when none matches.
func (c *Client) FindNetwork(ctx context.Context, pattern string) (string, error) {
	nets, err := c.inner.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("list networks: %w", err)
	}
	for _, n := range nets {
		if strings.Contains(n.Name, pattern) {
			return n.Name, nil
		}
	}
	return "", nil
}

// ConnectToNetwork attaches a container to a named network. A container
// that is already attached counts as success.
func (c *Client) ConnectToNetwork(ctx context.Context, networkName, containerName string) error {
	err := c.inner.NetworkConnect(ctx, networkName, containerName, nil)
	if err == nil || IsAlreadyConnected(err) {
		return nil
	}
	return fmt.Errorf("connect %s to %s: %w", containerName, networkName, err)
}

// IsAlreadyConnected reports whether a network connect error means the
// container was attached all along. The daemon classifies the duplicate
// endpoint as forbidden and its message names the existing endpoint;
// either signal combined with an "already exists" message is accepted,
// so a rewording of one of them does not turn the benign case fatal.
func IsAlreadyConnected(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if strings.Contains(msg, "already exists in network") {
		return true
	}
	return errdefs.IsForbidden(err) && strings.Contains(msg, "already exists")
}

// ContainerRunning reports whether a container with exactly this name is
// in the running state.
func (c *Client) ContainerRunning(ctx context.Context, name string) (bool, error) {
	list, err := c.inner.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return false, fmt.Errorf("list containers: %w", err)
	}
	for _, ct := range list {
		for _, n := range ct.Names {
			if strings.TrimPrefix(n, "/") == name {
				return ct.State == "running", nil
			}
		}
	}
	return false, nil
}

// RunSpec describes a long-lived container started directly through the
// SDK (the proxy and its ACME companion).
type RunSpec struct {
	Name    string
	Image   string
	Env     []string
	Ports   nat.PortMap
	Binds   []string
	Network string
}

// RunContainer pulls the image if needed, then creates and starts the
// container. An existing container with the same name is left alone.
func (c *Client) RunContainer(ctx context.Context, spec RunSpec) error {
	running, err := c.ContainerRunning(ctx, spec.Name)
	if err != nil {
		return err
	}
	if running {
		return nil
	}

	if err := c.pullImage(ctx, spec.Image); err != nil {
		return err
	}

	cfg := &container.Config{
		Image:        spec.Image,
		Env:          spec.Env,
		ExposedPorts: nat.PortSet{},
	}
	for p := range spec.Ports {
		cfg.ExposedPorts[p] = struct{}{}
	}
	hostCfg := &container.HostConfig{
		Binds:         spec.Binds,
		PortBindings:  spec.Ports,
		RestartPolicy: container.RestartPolicy{Name: "always"},
	}
	var netCfg *network.NetworkingConfig
	if spec.Network != "" {
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {},
			},
		}
	}

	created, err := c.inner.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
	if err != nil {
		if strings.Contains(err.Error(), "is already in use") {
			// Container exists but is stopped; start it below by name.
			created.ID = spec.Name
		} else {
			return fmt.Errorf("create container %s: %w", spec.Name, err)
		}
	}
	if err := c.inner.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", spec.Name, err)
	}
	return nil
}

func (c *Client) pullImage(ctx context.Context, ref string) error {
	rc, err := c.inner.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer rc.Close()
	// The pull only completes once the progress stream is drained.
	_, err = io.Copy(io.Discard, rc)
	return err
}
