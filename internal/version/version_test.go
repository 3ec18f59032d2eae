package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetResolvesRuntimeFields(t *testing.T) {
	info := Get()

	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.False(t, info.Dirty)
}

func TestStringFormatsFullLine(t *testing.T) {
	clean := Info{Version: "1.4.0", Commit: "deadbeef", Date: "2026-08-24"}
	assert.Equal(t, "1.4.0 (deadbeef) built 2026-08-24", clean.String())

	dirty := clean
	dirty.Dirty = true
	assert.Equal(t, "1.4.0 (deadbeef-dirty) built 2026-08-24", dirty.String())
}

func TestShortSuffixesDirtyTrees(t *testing.T) {
	assert.Equal(t, "1.4.0", Info{Version: "1.4.0"}.Short())
	assert.Equal(t, "1.4.0-dirty", Info{Version: "1.4.0", Dirty: true}.Short())
}
