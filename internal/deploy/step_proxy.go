package deploy

import (
	"context"
	"os"

	"github.com/berth-sh/berth/internal/compose"
)

// ProxyStep makes sure the shared proxy stack exists and patches the
// manifest with the live network name it reports.
type ProxyStep struct{}

func (s *ProxyStep) Name() string { return "proxy" }

func (s *ProxyStep) Run(ctx context.Context, sc *StepContext) error {
	name, err := sc.Proxy.Ensure(ctx, sc.Spec.AcmeEmail)
	if err != nil {
		return err
	}
	sc.NetworkName = name
	sc.Logger.Infof("shared proxy network: %s", name)

	raw, err := os.ReadFile(sc.Manifest)
	if err != nil {
		return err
	}
	patched := compose.PatchNetwork(string(raw), name)
	return os.WriteFile(sc.Manifest, []byte(patched), 0644)
}
