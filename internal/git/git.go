// Package git drives the host git client for the disposable per-app
// working copy. A working copy is either Absent or Cloned, discriminated
// by the presence of its .git directory; synchronization is destructive
// on purpose — the directory is a mirror of the source branch, never a
// workspace.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/berth-sh/berth/internal/execx"
	"github.com/berth-sh/berth/internal/giturl"
)

// ErrBranchNotFound means the target branch does not exist on the remote.
var ErrBranchNotFound = errors.New("branch not found on remote")

// State of a working directory.
type State int

const (
	Absent State = iota
	Cloned
)

// noPrompt keeps the git client from blocking on a credential prompt
// when the authenticated URL is wrong or missing.
var noPrompt = []string{"GIT_TERMINAL_PROMPT=0"}

type Client struct {
	Runner execx.Runner
}

func NewClient(r execx.Runner) *Client {
	if r == nil {
		r = execx.Exec{}
	}
	return &Client{Runner: r}
}

// StateOf reports whether dir holds a cloned working copy.
func StateOf(dir string) State {
	if fi, err := os.Stat(filepath.Join(dir, ".git")); err == nil && fi.IsDir() {
		return Cloned
	}
	return Absent
}

// LsRemoteHeads checks that url is reachable and lists at least its HEADs.
func (c *Client) LsRemoteHeads(ctx context.Context, url string) error {
	_, err := c.Runner.Run(ctx, "", noPrompt, "git", "ls-remote", "--heads", url)
	return c.scrub(err, url)
}

// Sync brings dir to the tip of branch on the remote. authURL is used for
// the network operation only; plainURL is what the recorded remote always
// ends up as, so credentials never land in .git/config.
func (c *Client) Sync(ctx context.Context, dir, plainURL, authURL, branch string) error {
	if StateOf(dir) == Absent {
		return c.clone(ctx, dir, plainURL, authURL, branch)
	}
	return c.update(ctx, dir, plainURL, authURL, branch)
}

func (c *Client) clone(ctx context.Context, dir, plainURL, authURL, branch string) error {
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	if _, err := c.Runner.Run(ctx, "", noPrompt, "git", "clone", "--branch", branch, authURL, dir); err != nil {
		return fmt.Errorf("clone failed: %w", c.scrub(err, authURL))
	}
	// Scrub the recorded remote back to the plain URL.
	if authURL != plainURL {
		if err := c.SetRemoteURL(ctx, dir, plainURL); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) update(ctx context.Context, dir, plainURL, authURL, branch string) error {
	// Point the remote at the freshly composed URL only when new auth
	// material actually changes it; a run without credentials leaves the
	// recorded remote alone.
	if authURL != plainURL {
		current, err := c.GetRemoteURL(ctx, dir)
		if err != nil {
			return err
		}
		if current != authURL {
			if err := c.SetRemoteURL(ctx, dir, authURL); err != nil {
				return err
			}
		}
		defer func() {
			// Always restore the plain URL, even when the fetch failed.
			_ = c.SetRemoteURL(context.WithoutCancel(ctx), dir, plainURL)
		}()
	}

	if _, err := c.Runner.Run(ctx, dir, noPrompt, "git", "fetch", "origin", "--prune"); err != nil {
		return fmt.Errorf("fetch failed: %w", c.scrub(err, authURL))
	}

	branches, err := c.RemoteBranches(ctx, dir)
	if err != nil {
		return err
	}
	if _, ok := branches[branch]; !ok {
		return fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}

	steps := [][]string{
		{"checkout", branch},
		{"reset", "--hard", "origin/" + branch},
		{"clean", "-fd"},
	}
	for _, args := range steps {
		if _, err := c.Runner.Run(ctx, dir, nil, "git", args...); err != nil {
			return fmt.Errorf("sync %s: %w", args[0], err)
		}
	}
	return nil
}

// RemoteBranches returns the set of branch names known on origin.
func (c *Client) RemoteBranches(ctx context.Context, dir string) (map[string]struct{}, error) {
	out, err := c.Runner.Run(ctx, dir, nil, "git", "branch", "-r")
	if err != nil {
		return nil, fmt.Errorf("list remote branches: %w", err)
	}
	set := make(map[string]struct{})
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "->") {
			continue
		}
		set[strings.TrimPrefix(line, "origin/")] = struct{}{}
	}
	return set, nil
}

func (c *Client) GetRemoteURL(ctx context.Context, dir string) (string, error) {
	out, err := c.Runner.Run(ctx, dir, nil, "git", "remote", "get-url", "origin")
	if err != nil {
		return "", fmt.Errorf("get remote url: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *Client) SetRemoteURL(ctx context.Context, dir, url string) error {
	if _, err := c.Runner.Run(ctx, dir, nil, "git", "remote", "set-url", "origin", url); err != nil {
		return fmt.Errorf("set remote url: %w", c.scrub(err, url))
	}
	return nil
}

// HeadSHA returns the commit the working copy currently sits on.
func (c *Client) HeadSHA(ctx context.Context, dir string) (string, error) {
	out, err := c.Runner.Run(ctx, dir, nil, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("rev-parse: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// scrub replaces any authenticated URL in an error message with its
// redacted form before the error can reach a log line.
func (c *Client) scrub(err error, url string) error {
	if err == nil {
		return nil
	}
	red := giturl.Redact(url)
	if red == url {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), url, red))
}
