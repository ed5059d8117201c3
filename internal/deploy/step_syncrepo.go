package deploy

import (
	"context"
	"fmt"

	"github.com/berth-sh/berth/internal/git"
	"github.com/berth-sh/berth/internal/giturl"
)

// SyncRepoStep brings the working copy to the tip of the target branch.
// The authenticated URL is recomputed from this run's credentials and
// used for the network operation only.
type SyncRepoStep struct{}

func (s *SyncRepoStep) Name() string { return "sync-repo" }

func (s *SyncRepoStep) Run(ctx context.Context, sc *StepContext) error {
	authURL, err := giturl.Compose(sc.Spec.RepoURL, sc.Spec.Credentials)
	if err != nil {
		return err
	}

	if git.StateOf(sc.RepoDir) == git.Absent {
		sc.Logger.Infof("cloning %s (branch %s)", giturl.Redact(sc.Spec.RepoURL), sc.Spec.Branch)
		if err := sc.Git.LsRemoteHeads(ctx, authURL); err != nil {
			return fmt.Errorf("repository not reachable: %w", err)
		}
	} else {
		sc.Logger.Infof("updating %s to origin/%s", giturl.Redact(sc.Spec.RepoURL), sc.Spec.Branch)
	}

	if err := sc.Git.Sync(ctx, sc.RepoDir, sc.Spec.RepoURL, authURL, sc.Spec.Branch); err != nil {
		return err
	}

	if sha, err := sc.Git.HeadSHA(ctx, sc.RepoDir); err == nil {
		sc.Logger.Infof("at commit %s", sha)
	}
	return nil
}
