package port

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeInspector struct {
	ports map[int]struct{}
	err   error
}

func (f fakeInspector) ListeningPorts() (map[int]struct{}, error) {
	return f.ports, f.err
}

func boundRange(from, to int) map[int]struct{} {
	m := make(map[int]struct{})
	for p := from; p <= to; p++ {
		m[p] = struct{}{}
	}
	return m
}

func TestAllocateReturnsLowestFree(t *testing.T) {
	a := NewAllocator(8000, 9999, fakeInspector{ports: boundRange(8000, 8005)})
	got, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got != 8006 {
		t.Errorf("Allocate() = %d, want 8006", got)
	}
}

func TestAllocateFreshHost(t *testing.T) {
	a := NewAllocator(8000, 9999, fakeInspector{ports: map[int]struct{}{}})
	got, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got != 8000 {
		t.Errorf("Allocate() = %d, want 8000", got)
	}
}

func TestAllocateExhausted(t *testing.T) {
	a := NewAllocator(8000, 8002, fakeInspector{ports: boundRange(8000, 8002)})
	if _, err := a.Allocate(); !errors.Is(err, ErrExhausted) {
		t.Errorf("Allocate() error = %v, want ErrExhausted", err)
	}
}

func TestAllocateInspectorError(t *testing.T) {
	boom := errors.New("boom")
	a := NewAllocator(0, 0, fakeInspector{err: boom})
	if _, err := a.Allocate(); !errors.Is(err, boom) {
		t.Errorf("Allocate() error = %v, want wrapped inspector error", err)
	}
}

func TestReadSocketTable(t *testing.T) {
	// Trimmed /proc/net/tcp sample: 0x1F40 = 8000 listening,
	// 0x1F41 = 8001 established (ignored).
	sample := `  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
   0: 00000000:1F40 00000000:0000 0A 00000000:00000000 00:00000000 00000000  1000        0 12345 1 0000000000000000 100 0 0 10 0
   1: 0100007F:1F41 0100007F:0050 01 00000000:00000000 00:00000000 00000000  1000        0 12346 1 0000000000000000 100 0 0 10 0
`
	path := filepath.Join(t.TempDir(), "tcp")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatal(err)
	}

	ports := make(map[int]struct{})
	if err := readSocketTable(path, ports); err != nil {
		t.Fatalf("readSocketTable: %v", err)
	}
	if _, ok := ports[8000]; !ok {
		t.Error("expected 8000 to be reported as listening")
	}
	if _, ok := ports[8001]; ok {
		t.Error("8001 is established, not listening, but was reported")
	}
}
