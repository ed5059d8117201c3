package deploy

import (
	"context"
	"os"
	"path/filepath"

	"github.com/berth-sh/berth/internal/envfile"
)

// envTemplate is the conventional template shipped in the repository.
const envTemplate = ".env.example"

type WriteEnvStep struct{}

func (s *WriteEnvStep) Name() string { return "write-env" }

func (s *WriteEnvStep) Run(ctx context.Context, sc *StepContext) error {
	template := filepath.Join(sc.RepoDir, envTemplate)
	if _, err := os.Stat(template); err != nil {
		template = ""
	}

	if err := envfile.Materialize(template, sc.EnvPath, sc.Spec.Env, sc.Spec.EnvTag); err != nil {
		return err
	}
	sc.Logger.Infof("wrote %s (%d overrides)", sc.EnvPath, len(sc.Spec.Env))
	return nil
}
