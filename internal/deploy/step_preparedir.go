package deploy

import (
	"context"
	"os"
	"path/filepath"
)

// PrepareDirStep lays out the per-application directory:
// apps_dir/<name>/{repo/, .env, docker-compose.yml, port}. Existing
// content is kept — the repo mirror and port record survive redeploys.
type PrepareDirStep struct{}

func (s *PrepareDirStep) Name() string { return "prepare-dir" }

func (s *PrepareDirStep) Run(ctx context.Context, sc *StepContext) error {
	sc.AppDir = filepath.Join(sc.Config.Paths.AppsDir, sc.Spec.Name)
	sc.RepoDir = filepath.Join(sc.AppDir, "repo")
	sc.EnvPath = filepath.Join(sc.AppDir, ".env")

	if err := os.MkdirAll(sc.AppDir, 0755); err != nil {
		return err
	}
	sc.Logger.Debugf("app directory: %s", sc.AppDir)
	return nil
}
