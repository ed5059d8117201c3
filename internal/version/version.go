package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the full build identification line.
func String() string {
	return fmt.Sprintf("berth %s (%s) built %s, %s", Version, Commit, BuildDate, runtime.Version())
}
