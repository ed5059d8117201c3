// Package envfile materializes the per-application .env file. Existing
// lines (comments included) are preserved; override keys replace the
// first matching KEY= line in place or get appended, so re-running with
// the same overrides is a no-op.
package envfile

import (
	"fmt"
	"os"
	"strings"
)

// Pair is one KEY=VALUE override. Overrides keep their input order and
// have unique keys.
type Pair struct {
	Key   string
	Value string
}

// Materialize writes the env file at destPath. The base is the current
// destPath content when it exists (redeploy), else the template when one
// exists, else empty. envTag is appended as ENV=<tag> unless an ENV key
// is already present.
func Materialize(templatePath, destPath string, overrides []Pair, envTag string) error {
	base, err := readBase(templatePath, destPath)
	if err != nil {
		return err
	}

	lines := []string{}
	if base != "" {
		lines = strings.Split(strings.TrimRight(base, "\n"), "\n")
	}

	for _, ov := range overrides {
		lines = setKey(lines, ov.Key, ov.Value)
	}
	if !hasKey(lines, "ENV") && envTag != "" {
		lines = append(lines, "ENV="+envTag)
	}

	out := strings.Join(lines, "\n")
	if out != "" {
		out += "\n"
	}
	if err := os.WriteFile(destPath, []byte(out), 0600); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}
	return nil
}

func readBase(templatePath, destPath string) (string, error) {
	for _, p := range []string{destPath, templatePath} {
		if p == "" {
			continue
		}
		b, err := os.ReadFile(p)
		if err == nil {
			return string(b), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("read %s: %w", p, err)
		}
	}
	return "", nil
}

// setKey replaces the first KEY= line or appends one.
func setKey(lines []string, key, value string) []string {
	for i, line := range lines {
		if keyOf(line) == key {
			lines[i] = key + "=" + value
			return lines
		}
	}
	return append(lines, key+"="+value)
}

func hasKey(lines []string, key string) bool {
	for _, line := range lines {
		if keyOf(line) == key {
			return true
		}
	}
	return false
}

func keyOf(line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return ""
	}
	k, _, ok := strings.Cut(trimmed, "=")
	if !ok {
		return ""
	}
	return strings.TrimSpace(k)
}
