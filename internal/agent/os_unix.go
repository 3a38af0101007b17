//go:build !windows

package agent

import (
	"runtime"

	"golang.org/x/sys/unix"
)

func lookupOSInfo() osInfo {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return osInfo{osType: runtime.GOOS, arch: runtime.GOARCH}
	}
	return osInfo{
		osType:    unix.ByteSliceToString(u.Sysname[:]),
		osRelease: unix.ByteSliceToString(u.Release[:]),
		arch:      unix.ByteSliceToString(u.Machine[:]),
	}
}
