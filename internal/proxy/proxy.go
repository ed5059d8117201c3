// Package proxy provisions the host-wide nginx-proxy + ACME companion
// stack. The stack exists at most once per host: the presence of the
// proxy config directory marks it provisioned, and an already provisioned
// stack is never reconfigured, so other applications sharing it stay
// undisturbed.
package proxy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/sirupsen/logrus"

	"github.com/berth-sh/berth/internal/config"
	"github.com/berth-sh/berth/internal/docker"
)

const (
	proxyContainer     = "berth-proxy"
	companionContainer = "berth-acme"

	readinessAttempts = 30
	readinessInterval = time.Second
)

type State int

const (
	NotProvisioned State = iota
	Provisioned
)

// Engine is the slice of the container runtime the bootstrapper needs;
// *docker.Client satisfies it.
type Engine interface {
	EnsureNetwork(ctx context.Context, name string) error
	FindNetwork(ctx context.Context, pattern string) (string, error)
	RunContainer(ctx context.Context, spec docker.RunSpec) error
	ContainerRunning(ctx context.Context, name string) (bool, error)
}

type Bootstrapper struct {
	cfg    config.Proxy
	docker Engine
	log    *logrus.Entry

	pollAttempts int
	pollInterval time.Duration
}

func NewBootstrapper(cfg config.Proxy, engine Engine, log *logrus.Entry) *Bootstrapper {
	return &Bootstrapper{
		cfg:          cfg,
		docker:       engine,
		log:          log,
		pollAttempts: readinessAttempts,
		pollInterval: readinessInterval,
	}
}

// StateOf reads the provisioning marker.
func (b *Bootstrapper) StateOf() State {
	if fi, err := os.Stat(b.cfg.Dir); err == nil && fi.IsDir() {
		return Provisioned
	}
	return NotProvisioned
}

// Ensure provisions the shared stack on first use and returns the
// authoritative shared network name. An already provisioned stack is a
// no-op apart from resolving the network name.
func (b *Bootstrapper) Ensure(ctx context.Context, acmeEmail string) (string, error) {
	if b.StateOf() == Provisioned {
		b.log.Debug("proxy stack already provisioned")
		return b.networkName(ctx)
	}

	b.log.Info("provisioning shared proxy stack")

	dirs := map[string]string{
		"certs": filepath.Join(b.cfg.Dir, "certs"),
		"vhost": filepath.Join(b.cfg.Dir, "vhost.d"),
		"html":  filepath.Join(b.cfg.Dir, "html"),
		"conf":  filepath.Join(b.cfg.Dir, "conf.d"),
		"acme":  filepath.Join(b.cfg.Dir, "acme"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return "", fmt.Errorf("proxy: create dir %s: %w", d, err)
		}
	}

	if err := b.docker.EnsureNetwork(ctx, b.cfg.Network); err != nil {
		return "", fmt.Errorf("proxy: %w", err)
	}

	ports := nat.PortMap{
		"80/tcp":  []nat.PortBinding{{HostPort: "80"}},
		"443/tcp": []nat.PortBinding{{HostPort: "443"}},
	}
	err := b.docker.RunContainer(ctx, docker.RunSpec{
		Name:  proxyContainer,
		Image: b.cfg.Image,
		Ports: ports,
		Binds: []string{
			"/var/run/docker.sock:/tmp/docker.sock:ro",
			dirs["certs"] + ":/etc/nginx/certs:ro",
			dirs["vhost"] + ":/etc/nginx/vhost.d",
			dirs["html"] + ":/usr/share/nginx/html",
			dirs["conf"] + ":/etc/nginx/conf.d",
		},
		Network: b.cfg.Network,
	})
	if err != nil {
		return "", fmt.Errorf("proxy: %w", err)
	}

	err = b.docker.RunContainer(ctx, docker.RunSpec{
		Name:  companionContainer,
		Image: b.cfg.CompanionImage,
		Env: []string{
			"NGINX_PROXY_CONTAINER=" + proxyContainer,
			"DEFAULT_EMAIL=" + acmeEmail,
		},
		Binds: []string{
			"/var/run/docker.sock:/var/run/docker.sock:ro",
			dirs["certs"] + ":/etc/nginx/certs",
			dirs["vhost"] + ":/etc/nginx/vhost.d",
			dirs["html"] + ":/usr/share/nginx/html",
			dirs["acme"] + ":/etc/acme.sh",
		},
		Network: b.cfg.Network,
	})
	if err != nil {
		return "", fmt.Errorf("proxy companion: %w", err)
	}

	// Non-convergence is a warning, not a failure: the proxy may still
	// come up after this deployment finishes.
	if !b.waitRunning(ctx, proxyContainer) {
		b.log.Warnf("proxy container %s not running after %d attempts, continuing", proxyContainer, b.pollAttempts)
	}

	return b.cfg.Network, nil
}

func (b *Bootstrapper) waitRunning(ctx context.Context, name string) bool {
	for i := 0; i < b.pollAttempts; i++ {
		running, err := b.docker.ContainerRunning(ctx, name)
		if err == nil && running {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(b.pollInterval):
		}
	}
	return false
}

// networkName resolves the live shared network of an existing stack by
// name pattern, falling back to the configured default.
func (b *Bootstrapper) networkName(ctx context.Context) (string, error) {
	name, err := b.docker.FindNetwork(ctx, b.cfg.Network)
	if err != nil {
		return "", fmt.Errorf("proxy: resolve network: %w", err)
	}
	if name == "" {
		b.log.Debugf("no network matching %q, using default", b.cfg.Network)
		return b.cfg.Network, nil
	}
	return name, nil
}
