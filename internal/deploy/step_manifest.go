package deploy

import (
	"context"
	"os"
	"path/filepath"

	"github.com/berth-sh/berth/internal/compose"
)

// ManifestStep renders the compose manifest with the shared-network
// placeholder still in place; ProxyStep patches it once the live network
// name is known.
type ManifestStep struct{}

func (s *ManifestStep) Name() string { return "manifest" }

func (s *ManifestStep) Run(ctx context.Context, sc *StepContext) error {
	manifest, err := compose.Generate(compose.Params{
		AppName:       sc.Spec.Name,
		ImageName:     sc.Spec.Image(),
		Domain:        sc.Spec.Domain,
		ContainerPort: sc.Spec.ContainerPort,
		HostPort:      sc.HostPort,
		AcmeEmail:     sc.Spec.AcmeEmail,
		EnvFile:       ".env",
		BuildContext:  "./repo",
	})
	if err != nil {
		return err
	}

	sc.Manifest = filepath.Join(sc.AppDir, "docker-compose.yml")
	if err := os.WriteFile(sc.Manifest, []byte(manifest), 0644); err != nil {
		return err
	}
	sc.Logger.Infof("wrote manifest %s (%d:%d)", sc.Manifest, sc.HostPort, sc.Spec.ContainerPort)
	return nil
}
