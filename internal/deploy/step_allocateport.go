package deploy

import (
	"context"
	"fmt"

	"github.com/berth-sh/berth/internal/app"
)

// AllocatePortStep reuses the host port recorded by a previous deploy of
// this application, or allocates the lowest free one and records it.
type AllocatePortStep struct{}

func (s *AllocatePortStep) Name() string { return "allocate-port" }

func (s *AllocatePortStep) Run(ctx context.Context, sc *StepContext) error {
	recorded, err := app.RecordedPort(sc.AppDir)
	if err != nil {
		return err
	}
	if recorded > 0 {
		sc.HostPort = recorded
		sc.Logger.Infof("reusing host port %d", recorded)
		return nil
	}

	p, err := sc.Ports.Allocate()
	if err != nil {
		return fmt.Errorf("port allocation: %w", err)
	}
	if err := app.RecordPort(sc.AppDir, p); err != nil {
		return err
	}
	sc.HostPort = p
	sc.Logger.Infof("allocated host port %d", p)
	return nil
}
