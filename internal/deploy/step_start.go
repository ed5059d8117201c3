package deploy

import (
	"context"
	"fmt"
)

// StartStep builds the image and starts the application via its compose
// manifest, then attaches the container to the shared network in case
// the manifest attachment did not take ("already connected" is fine).
type StartStep struct{}

func (s *StartStep) Name() string { return "start" }

func (s *StartStep) Run(ctx context.Context, sc *StepContext) error {
	sc.Logger.Info("building and starting container")
	if _, err := sc.Runner.Run(ctx, sc.AppDir, nil, "docker", "compose", "-f", "docker-compose.yml", "up", "-d", "--build"); err != nil {
		return fmt.Errorf("compose up: %w", err)
	}

	if err := sc.Docker.ConnectToNetwork(ctx, sc.NetworkName, sc.Spec.Name); err != nil {
		return err
	}
	sc.Logger.Infof("container %s running on network %s", sc.Spec.Name, sc.NetworkName)
	return nil
}
