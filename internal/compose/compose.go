// Package compose renders the docker-compose manifest for one
// application. The shared proxy network is referenced as an external
// network; its live name is only known after the proxy bootstrapper has
// run, so Generate emits a placeholder that PatchNetwork fills in.
package compose

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// NetworkPlaceholder is substituted once the live proxy network name is
// resolved.
const NetworkPlaceholder = "__PROXY_NETWORK__"

type Healthcheck struct {
	Test        []string `yaml:"test"`
	Interval    string   `yaml:"interval"`
	Timeout     string   `yaml:"timeout"`
	Retries     int      `yaml:"retries"`
	StartPeriod string   `yaml:"start_period"`
}

type Service struct {
	Build         string       `yaml:"build"`
	Image         string       `yaml:"image"`
	ContainerName string       `yaml:"container_name"`
	Restart       string       `yaml:"restart"`
	Ports         []string     `yaml:"ports"`
	EnvFile       []string     `yaml:"env_file"`
	Environment   []string     `yaml:"environment"`
	Networks      []string     `yaml:"networks"`
	Healthcheck   *Healthcheck `yaml:"healthcheck,omitempty"`
}

type Network struct {
	Name     string `yaml:"name,omitempty"`
	External bool   `yaml:"external"`
}

type File struct {
	Services map[string]Service `yaml:"services"`
	Networks map[string]Network `yaml:"networks"`
}

// Params binds one application to its allocated host port and domain.
type Params struct {
	AppName       string
	ImageName     string
	Domain        string
	ContainerPort int
	HostPort      int
	AcmeEmail     string
	EnvFile       string
	// BuildContext is the path of the source tree relative to the
	// manifest, "." when unset.
	BuildContext string
}

// Generate renders the manifest text. Rendering the same Params twice is
// byte-for-byte identical; only the network placeholder changes later.
func Generate(p Params) (string, error) {
	buildCtx := p.BuildContext
	if buildCtx == "" {
		buildCtx = "."
	}
	f := File{
		Services: map[string]Service{
			p.AppName: {
				Build:         buildCtx,
				Image:         p.ImageName,
				ContainerName: p.AppName,
				Restart:       "unless-stopped",
				Ports:         []string{fmt.Sprintf("%d:%d", p.HostPort, p.ContainerPort)},
				EnvFile:       []string{p.EnvFile},
				Environment: []string{
					"VIRTUAL_HOST=" + p.Domain,
					fmt.Sprintf("VIRTUAL_PORT=%d", p.ContainerPort),
					"LETSENCRYPT_HOST=" + p.Domain,
					"LETSENCRYPT_EMAIL=" + p.AcmeEmail,
				},
				Networks: []string{"proxy"},
				Healthcheck: &Healthcheck{
					Test:        []string{"CMD-SHELL", fmt.Sprintf("curl -fsS http://localhost:%d/health || exit 1", p.ContainerPort)},
					Interval:    "30s",
					Timeout:     "5s",
					Retries:     3,
					StartPeriod: "20s",
				},
			},
		},
		Networks: map[string]Network{
			"proxy": {Name: NetworkPlaceholder, External: true},
		},
	}

	out, err := yaml.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("render compose manifest: %w", err)
	}
	return string(out), nil
}

// PatchNetwork fills the placeholder with the live shared network name.
func PatchNetwork(manifest, networkName string) string {
	return strings.ReplaceAll(manifest, NetworkPlaceholder, networkName)
}
