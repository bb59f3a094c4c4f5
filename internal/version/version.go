// Package version holds build-time version information for the p1streamd
// and p1stream-configure binaries, injected via -ldflags at build time
// (e.g. -X .../internal/version.Version=1.2.3), mirroring the teacher's own
// ldflags-injected `var version = "dev"` in cmd/rtmp-server/flags.go.
package version

// Version, Commit, and Date are set via -ldflags; Version defaults to "dev"
// for a local `go build`.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns a one-line string suitable for --version output.
func Short() string {
	if Commit == "unknown" {
		return Version
	}
	sha := Commit
	if len(sha) > 8 {
		sha = sha[:8]
	}
	return Version + " (" + sha + ", " + Date + ")"
}
