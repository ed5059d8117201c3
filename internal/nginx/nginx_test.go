package nginx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/berth-sh/berth/internal/config"
)

type fakeRunner struct {
	commands []string
	fail     map[string]error
}

func (f *fakeRunner) Run(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
	cmd := name + " " + strings.Join(args, " ")
	f.commands = append(f.commands, cmd)
	if err, ok := f.fail[cmd]; ok {
		return nil, err
	}
	return nil, nil
}

func testRegistrar(t *testing.T, runner *fakeRunner) (*Registrar, config.Nginx) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Nginx{
		Enabled:        true,
		SitesAvailable: filepath.Join(dir, "sites-available"),
		SitesEnabled:   filepath.Join(dir, "sites-enabled"),
	}
	log := logrus.New()
	log.SetOutput(os.Stderr)
	r := NewRegistrar(cfg, runner, logrus.NewEntry(log))
	r.Installed = true
	return r, cfg
}

func TestRegisterWritesAndEnablesRoute(t *testing.T) {
	runner := &fakeRunner{}
	r, cfg := testRegistrar(t, runner)

	if err := r.Register(context.Background(), "demo", "demo.example.com", 8000); err != nil {
		t.Fatalf("Register: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(cfg.SitesAvailable, "demo"))
	if err != nil {
		t.Fatalf("route file not written: %v", err)
	}
	for _, want := range []string{"server_name demo.example.com;", "proxy_pass http://127.0.0.1:8000;"} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("route file missing %q:\n%s", want, raw)
		}
	}

	if _, err := os.Lstat(filepath.Join(cfg.SitesEnabled, "demo")); err != nil {
		t.Errorf("route not enabled: %v", err)
	}

	want := []string{"nginx -t", "nginx -s reload"}
	if len(runner.commands) != 2 || runner.commands[0] != want[0] || runner.commands[1] != want[1] {
		t.Errorf("commands = %v, want %v", runner.commands, want)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	runner := &fakeRunner{}
	r, cfg := testRegistrar(t, runner)

	if err := r.Register(context.Background(), "demo", "demo.example.com", 8000); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	first, _ := os.ReadFile(filepath.Join(cfg.SitesAvailable, "demo"))

	if err := r.Register(context.Background(), "demo", "demo.example.com", 8000); err != nil {
		t.Fatalf("second Register: %v", err)
	}
	second, _ := os.ReadFile(filepath.Join(cfg.SitesAvailable, "demo"))

	if string(first) != string(second) {
		t.Errorf("route file changed across identical runs:\n%s\n---\n%s", first, second)
	}
}

func TestRegisterValidationFailureSkipsReload(t *testing.T) {
	runner := &fakeRunner{fail: map[string]error{
		"nginx -t": fmt.Errorf("emerg: unexpected end of file"),
	}}
	r, _ := testRegistrar(t, runner)

	err := r.Register(context.Background(), "demo", "demo.example.com", 8000)
	if !errors.Is(err, ErrValidateFailed) {
		t.Fatalf("Register error = %v, want ErrValidateFailed", err)
	}
	for _, cmd := range runner.commands {
		if cmd == "nginx -s reload" {
			t.Error("nginx reloaded despite failed validation")
		}
	}
}

func TestRegisterInstallsWhenAbsent(t *testing.T) {
	runner := &fakeRunner{}
	r, _ := testRegistrar(t, runner)
	r.Installed = false

	if err := r.Register(context.Background(), "demo", "demo.example.com", 8000); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(runner.commands) == 0 || !strings.HasPrefix(runner.commands[0], "apt-get update") {
		t.Errorf("expected install commands first, got %v", runner.commands)
	}
	if !r.Installed {
		t.Error("Installed not set after install")
	}
}

func TestRenderSiteStable(t *testing.T) {
	a := RenderSite("demo.example.com", 8000)
	b := RenderSite("demo.example.com", 8000)
	if a != b {
		t.Error("RenderSite is not deterministic")
	}
}
