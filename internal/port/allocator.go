package port

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	DefaultRangeStart = 8000
	DefaultRangeEnd   = 9999
)

// ErrExhausted means every port in the configured range is bound.
var ErrExhausted = errors.New("no free port in range")

// Inspector lists the ports currently bound by any listener on the host.
type Inspector interface {
	ListeningPorts() (map[int]struct{}, error)
}

// Allocator hands out the lowest free host port in a bounded range.
// Allocation is not atomic across processes; deployments are expected to
// run one at a time per host.
type Allocator struct {
	Start     int
	End       int
	Inspector Inspector
}

func NewAllocator(start, end int, insp Inspector) *Allocator {
	if start == 0 {
		start = DefaultRangeStart
	}
	if end == 0 {
		end = DefaultRangeEnd
	}
	if insp == nil {
		insp = ProcNetInspector{}
	}
	return &Allocator{Start: start, End: end, Inspector: insp}
}

// Allocate returns the lowest port in [Start, End] with no bound listener.
func (a *Allocator) Allocate() (int, error) {
	bound, err := a.Inspector.ListeningPorts()
	if err != nil {
		return 0, fmt.Errorf("inspect listening ports: %w", err)
	}
	for p := a.Start; p <= a.End; p++ {
		if _, taken := bound[p]; !taken {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w %d-%d", ErrExhausted, a.Start, a.End)
}

// ProcNetInspector reads the kernel socket tables under /proc/net.
type ProcNetInspector struct{}

func (ProcNetInspector) ListeningPorts() (map[int]struct{}, error) {
	ports := make(map[int]struct{})
	for _, table := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		if err := readSocketTable(table, ports); err != nil {
			return nil, err
		}
	}
	return ports, nil
}

// tcpListen is the st column value for a listening TCP socket.
const tcpListen = "0A"

func readSocketTable(path string, ports map[int]struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Scan() // header
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || fields[3] != tcpListen {
			continue
		}
		// local_address is hexaddr:hexport
		idx := strings.LastIndex(fields[1], ":")
		if idx < 0 {
			continue
		}
		p, err := strconv.ParseInt(fields[1][idx+1:], 16, 32)
		if err != nil {
			continue
		}
		ports[int(p)] = struct{}{}
	}
	return sc.Err()
}
