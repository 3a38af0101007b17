//go:build windows

package agent

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/windows"
)

func lookupOSInfo() osInfo {
	v := windows.RtlGetVersion()
	return osInfo{
		osType:    "Windows_NT",
		osRelease: fmt.Sprintf("%d.%d.%d", v.MajorVersion, v.MinorVersion, v.BuildNumber),
		arch:      runtime.GOARCH,
	}
}
