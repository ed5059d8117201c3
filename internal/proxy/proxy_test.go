package proxy

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/berth-sh/berth/internal/config"
	"github.com/berth-sh/berth/internal/docker"
)

type fakeEngine struct {
	networks     []string
	findNetwork  string
	runSpecs     []docker.RunSpec
	ensureCalls  int
	findCalls    int
	runningCalls int
	runningAfter int // report running once this many ContainerRunning calls happened; 0 means never
}

func (f *fakeEngine) EnsureNetwork(ctx context.Context, name string) error {
	f.ensureCalls++
	f.networks = append(f.networks, name)
	return nil
}

func (f *fakeEngine) FindNetwork(ctx context.Context, pattern string) (string, error) {
	f.findCalls++
	return f.findNetwork, nil
}

func (f *fakeEngine) RunContainer(ctx context.Context, spec docker.RunSpec) error {
	f.runSpecs = append(f.runSpecs, spec)
	return nil
}

func (f *fakeEngine) ContainerRunning(ctx context.Context, name string) (bool, error) {
	f.runningCalls++
	if f.runningAfter > 0 && f.runningCalls >= f.runningAfter {
		return true, nil
	}
	return false, nil
}

func quietLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func testBootstrapper(t *testing.T, engine Engine) *Bootstrapper {
	t.Helper()
	cfg := config.Proxy{
		Dir:            filepath.Join(t.TempDir(), "proxy"),
		Network:        "berth-proxy",
		Image:          "nginxproxy/nginx-proxy:1.6",
		CompanionImage: "nginxproxy/acme-companion:2.4",
	}
	b := NewBootstrapper(cfg, engine, quietLogger())
	b.pollInterval = time.Millisecond
	return b
}

func TestEnsureProvisionsStack(t *testing.T) {
	engine := &fakeEngine{runningAfter: 1}
	b := testBootstrapper(t, engine)

	name, err := b.Ensure(context.Background(), "ops@example.com")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if name != "berth-proxy" {
		t.Errorf("network = %q, want berth-proxy", name)
	}
	if engine.ensureCalls != 1 {
		t.Errorf("EnsureNetwork calls = %d, want 1", engine.ensureCalls)
	}
	if len(engine.runSpecs) != 2 {
		t.Fatalf("RunContainer calls = %d, want proxy and companion", len(engine.runSpecs))
	}
	if engine.runSpecs[0].Name != "berth-proxy" || engine.runSpecs[1].Name != "berth-acme" {
		t.Errorf("containers = %s, %s", engine.runSpecs[0].Name, engine.runSpecs[1].Name)
	}
	if b.StateOf() != Provisioned {
		t.Error("stack not marked provisioned after Ensure")
	}

	var email string
	for _, env := range engine.runSpecs[1].Env {
		if env == "DEFAULT_EMAIL=ops@example.com" {
			email = env
		}
	}
	if email == "" {
		t.Errorf("companion env missing DEFAULT_EMAIL, got %v", engine.runSpecs[1].Env)
	}
}

func TestEnsureGivesUpPollingAndContinues(t *testing.T) {
	engine := &fakeEngine{runningAfter: 0} // never reports running
	b := testBootstrapper(t, engine)
	b.pollAttempts = 30

	name, err := b.Ensure(context.Background(), "ops@example.com")
	if err != nil {
		t.Fatalf("Ensure failed on an unready proxy: %v", err)
	}
	if name != "berth-proxy" {
		t.Errorf("network = %q, want berth-proxy", name)
	}
	if engine.runningCalls != 30 {
		t.Errorf("ContainerRunning calls = %d, want exactly 30", engine.runningCalls)
	}
}

func TestEnsureSkipsProvisionedStack(t *testing.T) {
	engine := &fakeEngine{findNetwork: "compose_berth-proxy"}
	b := testBootstrapper(t, engine)
	if err := mkProvisioned(b); err != nil {
		t.Fatal(err)
	}

	name, err := b.Ensure(context.Background(), "ops@example.com")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if name != "compose_berth-proxy" {
		t.Errorf("network = %q, want resolved compose_berth-proxy", name)
	}
	if engine.ensureCalls != 0 || len(engine.runSpecs) != 0 {
		t.Errorf("provisioned stack was reconfigured: %d network calls, %d containers", engine.ensureCalls, len(engine.runSpecs))
	}
	if engine.findCalls != 1 {
		t.Errorf("FindNetwork calls = %d, want 1", engine.findCalls)
	}
}

func TestEnsureFallsBackToConfiguredNetwork(t *testing.T) {
	engine := &fakeEngine{findNetwork: ""}
	b := testBootstrapper(t, engine)
	if err := mkProvisioned(b); err != nil {
		t.Fatal(err)
	}

	name, err := b.Ensure(context.Background(), "ops@example.com")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if name != "berth-proxy" {
		t.Errorf("network = %q, want configured default berth-proxy", name)
	}
}

func mkProvisioned(b *Bootstrapper) error {
	return os.MkdirAll(b.cfg.Dir, 0755)
}
