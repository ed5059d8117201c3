package deploy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
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

// Pipeline runs the deployment steps for one application in order. Any
// step error aborts the run; nothing is retried and nothing already done
// is rolled back, so a failed run can be inspected and simply re-run.
type Pipeline struct {
	steps []Step

	cfg     *config.Config
	log     *logrus.Logger
	gitc    *git.Client
	dockerc *docker.Client
	proxyb  *proxy.Bootstrapper
	nginxr  *nginx.Registrar
	ports   *port.Allocator
	runner  execx.Runner
}

func NewPipeline(cfg *config.Config, log *logrus.Logger, gitc *git.Client, dc *docker.Client, pb *proxy.Bootstrapper, nr *nginx.Registrar, ports *port.Allocator, runner execx.Runner) *Pipeline {
	if runner == nil {
		runner = execx.Exec{}
	}
	return &Pipeline{
		cfg:     cfg,
		log:     log,
		gitc:    gitc,
		dockerc: dc,
		proxyb:  pb,
		nginxr:  nr,
		ports:   ports,
		runner:  runner,
	}
}

func (p *Pipeline) AddStep(s Step) {
	p.steps = append(p.steps, s)
}

// DefaultSteps is the single-application deployment flow.
func (p *Pipeline) DefaultSteps() {
	p.AddStep(&PrepareDirStep{})
	p.AddStep(&SyncRepoStep{})
	p.AddStep(&BuildDescriptorStep{})
	p.AddStep(&WriteEnvStep{})
	p.AddStep(&AllocatePortStep{})
	p.AddStep(&ManifestStep{})
	p.AddStep(&ProxyStep{})
	p.AddStep(&StartStep{})
	p.AddStep(&RouteStep{})
}

func (p *Pipeline) Run(ctx context.Context, spec *app.Spec) error {
	deployID := uuid.NewString()[:8]
	logger := p.log.WithFields(logrus.Fields{
		"app":    spec.Name,
		"deploy": deployID,
	})

	sctx := &StepContext{
		Spec:   spec,
		Config: p.cfg,
		Logger: logger,
		Git:    p.gitc,
		Docker: p.dockerc,
		Proxy:  p.proxyb,
		Nginx:  p.nginxr,
		Ports:  p.ports,
		Runner: p.runner,
	}

	logger.Infof("starting deployment of %s (%s)", spec.Name, spec.Domain)

	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			return fmt.Errorf("deployment cancelled: %w", ctx.Err())
		default:
		}

		logger.Debugf("step: %s", step.Name())
		if err := step.Run(ctx, sctx); err != nil {
			logger.Errorf("step %s failed: %v", step.Name(), err)
			return fmt.Errorf("step %s: %w", step.Name(), err)
		}
	}

	logger.Infof("deployment complete: https://%s (host port %d)", spec.Domain, sctx.HostPort)
	return nil
}
