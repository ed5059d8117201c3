package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Paths Paths `toml:"paths"`
	Ports Ports `toml:"ports"`
	Proxy Proxy `toml:"proxy"`
	Nginx Nginx `toml:"nginx"`
}

type Paths struct {
	// AppsDir holds one working directory per deployed application.
	AppsDir string `toml:"apps_dir"`
}

type Ports struct {
	RangeStart int `toml:"range_start"`
	RangeEnd   int `toml:"range_end"`
}

type Proxy struct {
	// Dir is the proxy stack's config root; its existence is the
	// "already provisioned" marker.
	Dir            string `toml:"dir"`
	Network        string `toml:"network"`
	Image          string `toml:"image"`
	CompanionImage string `toml:"companion_image"`
	AcmeEmail      string `toml:"acme_email"`
}

type Nginx struct {
	Enabled        bool   `toml:"enabled"`
	SitesAvailable string `toml:"sites_available"`
	SitesEnabled   string `toml:"sites_enabled"`
}

func Default() *Config {
	return &Config{
		Paths: Paths{
			AppsDir: "/opt/berth/apps",
		},
		Ports: Ports{
			RangeStart: 8000,
			RangeEnd:   9999,
		},
		Proxy: Proxy{
			Dir:            "/opt/berth/proxy",
			Network:        "berth-proxy",
			Image:          "nginxproxy/nginx-proxy:1.6",
			CompanionImage: "nginxproxy/acme-companion:2.4",
		},
		Nginx: Nginx{
			Enabled:        true,
			SitesAvailable: "/etc/nginx/sites-available",
			SitesEnabled:   "/etc/nginx/sites-enabled",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	return cfg, nil
}

func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Paths.AppsDir, filepath.Dir(c.Proxy.Dir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("config: create dir %s: %w", dir, err)
		}
	}
	return nil
}
