// Package version carries mrblite's build identity, mirroring the
// teacher's own version package: a handful of linker-settable string
// variables plus one formatting helper for CLI banners.
package version

import (
	"fmt"
	"time"

	"github.com/ncruces/go-strftime"
)

var (
	VERSION = "0.1.0"
	COMMIT  = "dev"

	// BUILT is a Unix-timestamp string, normally set via -ldflags at
	// build time (`-X github.com/wudi/mrblite/version.BUILT=$(date +%s)`);
	// empty means "running from source, no build stamp available".
	BUILT = ""
)

// BuildStamp formats BUILT (when present) with strftime's "%Y-%m-%d
// %H:%M:%S UTC" layout rather than hand-rolling a time.Format call, since
// the rest of the pack's date-facing CLIs reach for strftime-style
// formatting over Go's reference-date layout strings.
func BuildStamp() string {
	if BUILT == "" {
		return "unknown"
	}
	var sec int64
	if _, err := fmt.Sscanf(BUILT, "%d", &sec); err != nil {
		return BUILT
	}
	return strftime.Format("%Y-%m-%d %H:%M:%S UTC", time.Unix(sec, 0).UTC())
}

func Version() string {
	return fmt.Sprintf("%s (%s)", VERSION, BuildStamp())
}
