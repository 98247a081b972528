// In file: internal/version/version.go

// Package version centralizes the versioning of the gateway's logical
// components and of the binary itself.
//
// Component versions are part of every report cache key. Bumping one of them
// (for example after fixing a tool handler) makes every cached report built
// by the old logic unreachable, so the next identical request runs the agent
// again.
package version

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"time"
)

// ComponentVersions holds the version strings for different logical parts of the application.
// Manually increment a version number here before you deploy a change to that component.
var ComponentVersions = struct {
	// Registries changes whenever a tool registry file is edited.
	Registries string

	// Handlers changes whenever a tool handler or a mock data source changes
	// what it returns.
	Handlers string

	// Prompts changes whenever a system prompt or a first-turn template changes.
	Prompts string
}{
	Registries: "v1.0",
	Handlers:   "v1.0",
	Prompts:    "v1.0",
}

// Set at build time with -ldflags "-X .../internal/version.version=...".
var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		BuildDate: buildDate,
		GitCommit: gitCommit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// RunCacheKey creates a consistent, version-aware key for caching agent reports.
//
// The key covers what a run actually depends on: the effective model, the
// run date the handlers stamp into the report and the rendered first-turn
// message. Requests whose input differs only in formatting render the same
// message and share a key; an empty bias_watch request on a new day does not.
//
// Example output: "report:bias_watch:claude-opus-4-6:a1b2c3d4...:rv1.0_hv1.0_pv1.0"
func RunCacheKey(agent, model string, date time.Time, message string) string {
	hasher := sha256.New()
	hasher.Write([]byte(date.Format(time.DateOnly)))
	hasher.Write([]byte{0})
	hasher.Write([]byte(message))
	inputHash := hex.EncodeToString(hasher.Sum(nil))

	versionString := fmt.Sprintf("rv%s_hv%s_pv%s",
		ComponentVersions.Registries,
		ComponentVersions.Handlers,
		ComponentVersions.Prompts,
	)
	return fmt.Sprintf("report:%s:%s:%s:%s", agent, model, inputHash, versionString)
}
