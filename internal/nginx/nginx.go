// Package nginx manages per-app host-level routes: one file under
// sites-available keyed by application name, enabled through a symlink
// in sites-enabled. The configuration is validated before any reload; a
// failed validation leaves the previous configuration active.
package nginx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/berth-sh/berth/internal/config"
	"github.com/berth-sh/berth/internal/execx"
)

// ErrValidateFailed means the rendered configuration did not pass
// `nginx -t`; the route file is in place but nginx was not reloaded.
var ErrValidateFailed = errors.New("nginx configuration validation failed")

type Registrar struct {
	cfg    config.Nginx
	runner execx.Runner
	log    *logrus.Entry

	// Installed may be preset in tests to skip the install probe.
	Installed bool
}

func NewRegistrar(cfg config.Nginx, r execx.Runner, log *logrus.Entry) *Registrar {
	if r == nil {
		r = execx.Exec{}
	}
	return &Registrar{cfg: cfg, runner: r, log: log, Installed: execx.LookPath("nginx")}
}

// Register writes, enables and activates the route forwarding domain to
// 127.0.0.1:hostPort. Re-running with the same inputs rewrites an
// identical file and is a no-op for the enable step.
func (r *Registrar) Register(ctx context.Context, appName, domain string, hostPort int) error {
	if !r.Installed {
		r.log.Info("nginx not found, installing")
		if err := r.install(ctx); err != nil {
			return fmt.Errorf("install nginx: %w", err)
		}
		r.Installed = true
	}

	if err := os.MkdirAll(r.cfg.SitesAvailable, 0755); err != nil {
		return fmt.Errorf("create sites dir: %w", err)
	}
	if err := os.MkdirAll(r.cfg.SitesEnabled, 0755); err != nil {
		return fmt.Errorf("create enabled dir: %w", err)
	}

	site := filepath.Join(r.cfg.SitesAvailable, appName)
	if err := os.WriteFile(site, []byte(RenderSite(domain, hostPort)), 0644); err != nil {
		return fmt.Errorf("write route file: %w", err)
	}
	r.log.Infof("wrote route %s -> 127.0.0.1:%d", domain, hostPort)

	if err := r.enable(appName, site); err != nil {
		return err
	}

	if _, err := r.runner.Run(ctx, "", nil, "nginx", "-t"); err != nil {
		// Keep the previous active configuration; never reload with a
		// known-bad one.
		return fmt.Errorf("%w: %v", ErrValidateFailed, err)
	}
	if _, err := r.runner.Run(ctx, "", nil, "nginx", "-s", "reload"); err != nil {
		return fmt.Errorf("reload nginx: %w", err)
	}
	r.log.Info("nginx reloaded")
	return nil
}

// RenderSite produces the route file content for a domain/port pair.
func RenderSite(domain string, hostPort int) string {
	return fmt.Sprintf(`server {
    listen 80;
    server_name %s;

    location / {
        proxy_pass http://127.0.0.1:%d;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
    }
}
`, domain, hostPort)
}

func (r *Registrar) enable(appName, site string) error {
	link := filepath.Join(r.cfg.SitesEnabled, appName)
	if _, err := os.Lstat(link); err == nil {
		return nil
	}
	if err := os.Symlink(site, link); err != nil {
		return fmt.Errorf("enable route: %w", err)
	}
	return nil
}

func (r *Registrar) install(ctx context.Context) error {
	if _, err := r.runner.Run(ctx, "", nil, "apt-get", "update"); err != nil {
		return err
	}
	_, err := r.runner.Run(ctx, "", []string{"DEBIAN_FRONTEND=noninteractive"}, "apt-get", "install", "-y", "nginx")
	return err
}
