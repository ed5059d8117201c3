// Package app holds the immutable per-run application description and
// the small pieces of state persisted next to its working directory.
package app

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/berth-sh/berth/internal/envfile"
	"github.com/berth-sh/berth/internal/giturl"
)

// Spec describes one application deployment. It is built once from
// validated input and never mutated afterwards; credentials live only in
// process memory for the run.
type Spec struct {
	Name          string
	RepoURL       string
	Branch        string
	Domain        string
	ImageName     string
	ContainerPort int
	Env           []envfile.Pair
	EnvTag        string
	AcmeEmail     string

	Credentials giturl.Credentials
}

// Validate enforces the input constraints before any host mutation.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("application name is required")
	}
	if strings.ContainsAny(s.Name, "/ ") {
		return fmt.Errorf("application name %q may not contain slashes or spaces", s.Name)
	}
	u, err := url.Parse(s.RepoURL)
	if err != nil {
		return fmt.Errorf("repository url: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("repository url must use https, got %q", u.Scheme)
	}
	if s.Branch == "" {
		return fmt.Errorf("branch is required")
	}
	if s.Domain == "" {
		return fmt.Errorf("domain is required")
	}
	if s.ContainerPort < 1 || s.ContainerPort > 65535 {
		return fmt.Errorf("container port %d out of range", s.ContainerPort)
	}
	if s.Credentials.Token != "" && (s.Credentials.Username != "" || s.Credentials.Password != "") {
		return fmt.Errorf("supply either a token or username/password, not both")
	}
	return nil
}

// Image returns the image name, defaulting to the application name.
func (s *Spec) Image() string {
	if s.ImageName != "" {
		return s.ImageName
	}
	return s.Name
}

const portRecord = "port"

// RecordedPort reads the host port persisted by a previous deployment of
// this application, or 0 when none exists.
func RecordedPort(appDir string) (int, error) {
	b, err := os.ReadFile(filepath.Join(appDir, portRecord))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read port record: %w", err)
	}
	p, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parse port record: %w", err)
	}
	return p, nil
}

// RecordPort persists the allocated host port so redeploys keep the same
// mapping.
func RecordPort(appDir string, port int) error {
	if err := os.WriteFile(filepath.Join(appDir, portRecord), []byte(strconv.Itoa(port)+"\n"), 0644); err != nil {
		return fmt.Errorf("write port record: %w", err)
	}
	return nil
}
