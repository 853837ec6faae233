// Package buildinfo contains build-time metadata separate from user configuration.
package buildinfo

import "fmt"

const unknown = "unknown"

// Version and BuildDate are injected at build time:
//
//	go build -ldflags "-X github.com/elan-lab/ultravox-elan/internal/buildinfo.Version=v1.2.0 \
//	  -X github.com/elan-lab/ultravox-elan/internal/buildinfo.BuildDate=2026-01-31"
var (
	Version   string
	BuildDate string
)

// BuildInfo provides an interface for accessing build-time metadata.
type BuildInfo interface {
	// GetVersion returns the build version string
	GetVersion() string
	// GetBuildDate returns the build date string
	GetBuildDate() string
}

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string
}

// Current returns the metadata injected into this binary.
func Current() *Context {
	return &Context{Version: Version, BuildDate: BuildDate}
}

// GetVersion implements BuildInfo.GetVersion
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return unknown
	}
	return c.Version
}

// GetBuildDate implements BuildInfo.GetBuildDate
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return unknown
	}
	return c.BuildDate
}

// String formats the metadata for --version output and Sentry releases.
func (c *Context) String() string {
	return fmt.Sprintf("%s (built %s)", c.GetVersion(), c.GetBuildDate())
}
