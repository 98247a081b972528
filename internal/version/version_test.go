package version

import (
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var runDay = time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC)

func TestRunCacheKeyShape(t *testing.T) {
	key := RunCacheKey("bias_watch", "claude-opus-4-6", runDay, "Date range: 2026-02-16 to 2026-02-23.")
	assert.True(t, strings.HasPrefix(key, "report:bias_watch:claude-opus-4-6:"))
	assert.True(t, strings.HasSuffix(key, ":rv1.0_hv1.0_pv1.0"))
	assert.Equal(t, key, RunCacheKey("bias_watch", "claude-opus-4-6", runDay, "Date range: 2026-02-16 to 2026-02-23."))
}

func TestRunCacheKeyDistinguishesRequests(t *testing.T) {
	base := RunCacheKey("classify", "gpt-4o", runDay, "Classify PulseCredit")
	assert.NotEqual(t, base, RunCacheKey("classify", "gpt-4o", runDay, "Classify PulseConnect"))
	assert.NotEqual(t, base, RunCacheKey("classify", "gpt-4.1", runDay, "Classify PulseCredit"))
	assert.NotEqual(t, base, RunCacheKey("fria", "gpt-4o", runDay, "Classify PulseCredit"))
	assert.NotEqual(t, base, RunCacheKey("classify", "gpt-4o", runDay.AddDate(0, 0, 7), "Classify PulseCredit"))
}

func TestRunCacheKeyIgnoresTimeOfDay(t *testing.T) {
	assert.Equal(t,
		RunCacheKey("conformity", "m", runDay, "assess"),
		RunCacheKey("conformity", "m", runDay.Add(15*time.Hour), "assess"))
}

func TestRunCacheKeyChangesWithComponentVersion(t *testing.T) {
	before := RunCacheKey("fria", "claude-opus-4-6", runDay, "assess")
	saved := ComponentVersions.Handlers
	ComponentVersions.Handlers = "v1.1"
	defer func() { ComponentVersions.Handlers = saved }()
	assert.NotEqual(t, before, RunCacheKey("fria", "claude-opus-4-6", runDay, "assess"))
}

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}
