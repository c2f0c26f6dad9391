// Package version carries build metadata for the SDK, injectable at build
// time via -ldflags. The transport layer embeds it in the User-Agent header.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
)

var (
	// gitVersion is the semantic version, vMAJOR.MINOR.PATCH[-PRERELEASE].
	gitVersion = "v0.0.0-dev"
	// gitCommit is the output of git rev-parse HEAD.
	gitCommit = ""
	// buildDate is the ISO 8601 build timestamp.
	buildDate = "1970-01-01T00:00:00Z"
)

// Info describes the build that produced this binary.
type Info struct {
	GitVersion string `json:"gitVersion"`
	GitCommit  string `json:"gitCommit,omitempty"`
	BuildDate  string `json:"buildDate"`
	GoVersion  string `json:"goVersion"`
	Platform   string `json:"platform"`
}

func (info Info) String() string { return info.GitVersion }

func (info Info) ToJSON() (string, error) {
	s, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to marshal version info: %w", err)
	}
	return string(s), nil
}

// Get returns the build information compiled into the binary.
func Get() Info {
	return Info{
		GitVersion: gitVersion,
		GitCommit:  gitCommit,
		BuildDate:  buildDate,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// UserAgent returns the value the HTTP transport sends by default.
func UserAgent() string {
	return "llmx/" + gitVersion
}
