package deploy

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/berth-sh/berth/internal/app"
	"github.com/berth-sh/berth/internal/config"
	"github.com/berth-sh/berth/internal/docker"
	"github.com/berth-sh/berth/internal/execx"
	"github.com/berth-sh/berth/internal/git"
	"github.com/berth-sh/berth/internal/nginx"
	"github.com/berth-sh/berth/internal/port"
	"github.com/berth-sh/berth/internal/proxy"
)

type Step interface {
	Name() string
	Run(ctx context.Context, s *StepContext) error
}

type StepContext struct {
	Spec *app.Spec

	Config *config.Config
	Logger *logrus.Entry
	Git    *git.Client
	Docker *docker.Client
	Proxy  *proxy.Bootstrapper
	Nginx  *nginx.Registrar
	Ports  *port.Allocator
	Runner execx.Runner

	// Enriched during the pipeline
	AppDir      string
	RepoDir     string
	EnvPath     string
	Manifest    string
	HostPort    int
	NetworkName string
}
