package deploy

import (
	"context"
	"errors"

	"github.com/berth-sh/berth/internal/nginx"
)

// RouteStep registers the host-level route. A validation failure keeps
// the previous nginx configuration active and only warns — the app is
// still reachable through the shared proxy.
type RouteStep struct{}

func (s *RouteStep) Name() string { return "route" }

func (s *RouteStep) Run(ctx context.Context, sc *StepContext) error {
	if !sc.Config.Nginx.Enabled {
		sc.Logger.Debug("host nginx disabled, skipping route")
		return nil
	}

	err := sc.Nginx.Register(ctx, sc.Spec.Name, sc.Spec.Domain, sc.HostPort)
	if errors.Is(err, nginx.ErrValidateFailed) {
		sc.Logger.Warnf("route not activated: %v", err)
		return nil
	}
	return err
}
