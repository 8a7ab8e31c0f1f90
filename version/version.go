// Package version reports the build version, from ldflags when injected at
// release time or from VCS build info otherwise.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

var (
	// Injected with ldflags at build time
	tag    string
	commit string
	date   string
)

const unknownVersion = "v0.0.0-devel"

// Version returns the version string, preferring the ldflags tag and
// falling back to VCS revision info embedded by the Go toolchain.
func Version() string {
	if tag != "" {
		if !strings.HasPrefix(tag, "v") {
			return "v" + tag
		}
		return tag
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return unknownVersion
	}

	var revision, modified string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value
		}
	}

	version := unknownVersion
	if revision != "" {
		version += "+" + shorten(revision)
		if modified == "true" {
			version += "-dirty"
		}
	}
	return version
}

// Full returns the version plus commit and build date when known.
func Full() string {
	parts := []string{Version()}
	if c := buildSetting("vcs.revision", commit); c != "" {
		parts = append(parts, fmt.Sprintf("commit=%s", shorten(c)))
	}
	if d := buildSetting("vcs.time", date); d != "" {
		parts = append(parts, fmt.Sprintf("date=%s", d))
	}
	return strings.Join(parts, " ")
}

// buildSetting returns the ldflags-injected value when present, otherwise
// the named setting from VCS build info.
func buildSetting(key, injected string) string {
	if injected != "" {
		return injected
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == key {
				return setting.Value
			}
		}
	}
	return ""
}

func shorten(revision string) string {
	if len(revision) > 7 {
		return revision[:7]
	}
	return revision
}
