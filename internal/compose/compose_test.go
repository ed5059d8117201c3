package compose

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func demoParams() Params {
	return Params{
		AppName:       "demo",
		ImageName:     "demo",
		Domain:        "demo.example.com",
		ContainerPort: 3000,
		HostPort:      8000,
		AcmeEmail:     "ops@example.com",
		EnvFile:       ".env",
		BuildContext:  "./repo",
	}
}

func TestGenerate(t *testing.T) {
	out, err := Generate(demoParams())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for _, want := range []string{
		"8000:3000",
		"VIRTUAL_HOST=demo.example.com",
		"VIRTUAL_PORT=3000",
		"LETSENCRYPT_HOST=demo.example.com",
		"LETSENCRYPT_EMAIL=ops@example.com",
		NetworkPlaceholder,
		"external: true",
		"build: ./repo",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("manifest missing %q:\n%s", want, out)
		}
	}

	var f File
	if err := yaml.Unmarshal([]byte(out), &f); err != nil {
		t.Fatalf("rendered manifest is not valid yaml: %v", err)
	}
	svc, ok := f.Services["demo"]
	if !ok {
		t.Fatal("service demo missing")
	}
	if svc.Healthcheck == nil || svc.Healthcheck.Retries != 3 {
		t.Errorf("healthcheck not rendered as expected: %+v", svc.Healthcheck)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	a, err := Generate(demoParams())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate(demoParams())
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("two renders of the same params differ:\n%s\n---\n%s", a, b)
	}
}

func TestPatchNetwork(t *testing.T) {
	out, err := Generate(demoParams())
	if err != nil {
		t.Fatal(err)
	}
	patched := PatchNetwork(out, "berth-proxy")
	if strings.Contains(patched, NetworkPlaceholder) {
		t.Error("placeholder still present after patch")
	}
	if !strings.Contains(patched, "name: berth-proxy") {
		t.Errorf("live network name not substituted:\n%s", patched)
	}
	// Patching again changes nothing.
	if again := PatchNetwork(patched, "berth-proxy"); again != patched {
		t.Error("PatchNetwork is not idempotent")
	}
}
