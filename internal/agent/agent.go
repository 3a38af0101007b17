// Package agent builds the client identification string sent with every
// Flight and REST request:
//
//	<name> <version> (<os-type>/<os-release> <arch>)[ <entry>]
//
// The os fields come from the kernel (uname on unix, RtlGetVersion on windows)
// and fall back to the Go runtime values when the lookup fails.
package agent

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
)

type osInfo struct {
	osType    string
	osRelease string
	arch      string
}

var (
	hostOnce sync.Once
	host     osInfo
)

// UserAgent returns the identification string for a client named name at version.
// A non-empty entry is appended after the platform block.
func UserAgent(name, version, entry string) string {
	hostOnce.Do(func() {
		host = lookupOSInfo()
	})
	return format(name, version, entry, host)
}

// format is the internal implementation that accepts the platform values
// for testability.
func format(name, version, entry string, info osInfo) string {
	if info.osType == "" {
		info.osType = runtime.GOOS
	}
	if info.osRelease == "" {
		info.osRelease = "unknown"
	}
	if info.arch == "" {
		info.arch = runtime.GOARCH
	}

	ua := fmt.Sprintf("%s %s (%s/%s %s)", name, version, info.osType, info.osRelease, info.arch)
	if entry = strings.TrimSpace(entry); entry != "" {
		ua += " " + entry
	}
	return ua
}
