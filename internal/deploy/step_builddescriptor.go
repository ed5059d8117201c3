package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrBuildDescriptorMissing guards against deploying a repository that
// cannot be built into a container.
var ErrBuildDescriptorMissing = errors.New("no Dockerfile found in repository")

type BuildDescriptorStep struct{}

func (s *BuildDescriptorStep) Name() string { return "build-descriptor" }

func (s *BuildDescriptorStep) Run(ctx context.Context, sc *StepContext) error {
	path := filepath.Join(sc.RepoDir, "Dockerfile")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrBuildDescriptorMissing, path)
		}
		return err
	}
	return nil
}
