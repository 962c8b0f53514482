// Package version resolves the build identity the services report in health
// bodies, log lines and outbound User-Agent headers.
//
// The commit is taken from an -ldflags override when present, otherwise from
// the vcs.revision the Go toolchain stamps into the binary, otherwise "dev".
package version

import "runtime/debug"

// AppName prefixes every version string.
const AppName = "pagerd"

// gitCommitOverride can be injected at build time for environments where the
// .git directory is not available (container builds).
var gitCommitOverride string

// GitCommit is the 8-character commit hash, or "dev" when no VCS metadata
// was stamped (plain `go test`, tarball builds).
var GitCommit = initGitCommit()

func initGitCommit() string {
	if gitCommitOverride != "" {
		if len(gitCommitOverride) > 8 {
			return gitCommitOverride[:8]
		}
		return gitCommitOverride
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 8 {
				return s.Value[:8]
			}
			return s.Value
		}
	}
	return "dev"
}

// Full returns "pagerd/<commit>".
func Full() string {
	return AppName + "/" + GitCommit
}
