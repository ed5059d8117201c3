// Package execx is the seam between components that shell out to host
// tools (git, docker compose, nginx) and the tests that fake them.
package execx

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Runner runs an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir string, extraEnv []string, name string, args ...string) ([]byte, error)
}

// Exec is the real Runner backed by os/exec.
type Exec struct{}

func (Exec) Run(ctx context.Context, dir string, extraEnv []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w\n%s", name, strings.Join(args, " "), err, string(out))
	}
	return out, nil
}

// LookPath reports whether a binary is resolvable on PATH.
func LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
