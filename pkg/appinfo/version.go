// Package appinfo defines application build informations.
package appinfo

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
)

// Pre-defined variables set by LDFLAGS like below:
//
//	go build -ldflags '-X github.com/rangekit/depot/pkg/appinfo.version=v1.0.0'
var (
	// version value from regexp capture in gitBranch or gitTag
	version = "0.1.0"
	// buildDate output from `date -u +'%Y-%m-%dT%H:%M:%SZ'`
	buildDate = "1970-01-01T00:00:00Z"
	// gitCommit output from `git rev-parse HEAD`
	gitCommit = ""
)

// Version records the application's version information.
type Version struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
	Platform  string `json:"platform,omitempty"`
}

// GetVersion returns the Version of the application.
func GetVersion() Version {
	return Version{
		Version:   version,
		Commit:    gitCommit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// ShortVersion returns the short version string.
func ShortVersion() string {
	if len(gitCommit) > 7 {
		return version + "-" + gitCommit[0:8]
	}
	return version
}

// WriteVersion writes the version to w, as a plain string or prettified
// JSON when full is set.
func WriteVersion(w io.Writer, full bool) error {
	if !full {
		_, err := fmt.Fprintln(w, ShortVersion())
		return err
	}
	data, err := json.MarshalIndent(GetVersion(), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
