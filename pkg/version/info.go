// Package version carries the build metadata of the docstore binary.
package version

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	// Unknown is used when build metadata is not provided.
	Unknown = "unknown"
	// DevelopmentVersion is the default version in local builds.
	DevelopmentVersion = "dev"
)

var (
	// AppVersion is set at build time:
	// go build -ldflags="-X github.com/nimburion/docstore/pkg/version.AppVersion=v1.2.3"
	AppVersion = DevelopmentVersion

	// GitCommit is set at build time.
	GitCommit = Unknown

	// BuildTime is set at build time, RFC3339.
	BuildTime = Unknown
)

// Release channels reported by Info.Release.
const (
	ReleaseStable      = "stable"
	ReleasePreRelease  = "prerelease"
	ReleaseDevelopment = "development"
)

// Info describes one build.
type Info struct {
	Service   string `json:"service" yaml:"service"`
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
}

// Current returns the metadata of the running build.
func Current(serviceName string) Info {
	return Info{
		Service:   normalizeOrDefault(serviceName, Unknown),
		Version:   normalizeOrDefault(AppVersion, DevelopmentVersion),
		Commit:    normalizeOrDefault(GitCommit, Unknown),
		BuildTime: normalizeOrDefault(BuildTime, Unknown),
	}
}

// ParseBuildTime parses BuildTime as RFC3339 if present.
func (i Info) ParseBuildTime() (time.Time, bool) {
	if i.BuildTime == "" || i.BuildTime == Unknown {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, i.BuildTime)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// SemVer parses the version if it is a semantic version.
func (i Info) SemVer() (SemVer, bool) {
	v, err := Parse(i.Version)
	if err != nil {
		return SemVer{}, false
	}
	return v, true
}

// Release classifies the build: tagged releases are stable or prerelease,
// anything else is a development build.
func (i Info) Release() string {
	v, ok := i.SemVer()
	switch {
	case !ok:
		return ReleaseDevelopment
	case v.IsPreRelease():
		return ReleasePreRelease
	default:
		return ReleaseStable
	}
}

// String returns a log-friendly representation.
func (i Info) String() string {
	return fmt.Sprintf("%s@%s (commit=%s, build_time=%s)", i.Service, i.Version, i.Commit, i.BuildTime)
}

// Print writes the human readable version block.
func (i Info) Print(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Service:    %s\nVersion:    %s\nRelease:    %s\nCommit:     %s\nBuild Time: %s\n",
		i.Service, i.Version, i.Release(), i.Commit, i.BuildTime)
	return err
}

func normalizeOrDefault(v, fallback string) string {
	norm := strings.TrimSpace(v)
	if norm == "" {
		return fallback
	}
	return norm
}
