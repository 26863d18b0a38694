package version

import (
	"fmt"
	"runtime"
)

// Set at build time via -ldflags "-X ...".
var (
	Version = "dev"
	Commit  = "unknown"
)

func FullVersion() string {
	return fmt.Sprintf("%s-%s (%s)", Version, Commit, runtime.Version())
}
