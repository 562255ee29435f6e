// SPDX-License-Identifier: MIT
//
// Package build provides functionality to manage and retrieve build information
// for a Go application. It allows embedding metadata such as the application
// name, build timestamp, Git commit hash, and semantic version into the binary
// at compile time using linker flags:
//
//	go build -ldflags "-X tuner/pkg/build.buildName=tuner -X tuner/pkg/build.buildVersion=0.1.0 ..."
//
// Builds without linker flags (go run, go test, go install) fall back to the
// module and VCS information the toolchain records in the binary.
package build

import (
	"fmt"
	"runtime/debug"
)

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

const (
	defaultName        = "tuner"
	defaultDescription = "Chromatic tuner for plucked strings"
)

// Package-level variables for build information. These are populated by -ldflags
// during compilation. Default values of "unknown" are used during development.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        defaultName,
		Description: defaultDescription,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "unknown",
	}

	readBuildInfo = debug.ReadBuildInfo
)

// Initialize copies build information from the ldflags variables into the
// buildFlags struct. When no linker flags were given it reads the embedded
// build info instead. Setting only some of the flags is an error: it means
// the build script is broken.
func Initialize() error {
	set := 0
	for _, v := range []string{buildName, buildTime, buildCommit, buildVersion} {
		if v != "" {
			set++
		}
	}

	switch set {
	case 0:
		fromBuildInfo()
		return nil
	case 4:
	default:
		if buildName == "" {
			return fmt.Errorf("BuildName is required")
		}
		if buildTime == "" {
			return fmt.Errorf("BuildTime is required")
		}
		if buildCommit == "" {
			return fmt.Errorf("BuildCommit is required")
		}
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

func fromBuildInfo() {
	info, ok := readBuildInfo()
	if !ok {
		return
	}
	if v := info.Main.Version; v != "" {
		buildFlags.Version = v
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			buildFlags.Commit = s.Value
		case "vcs.time":
			buildFlags.Time = s.Value
		}
	}
}

// GetBuildFlags returns the current build information. Initialize()
// should be called first; before that the development defaults are
// returned.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
