//go:build linux

package child

import "golang.org/x/sys/unix"

func init() {
	signalNames["STKFLT"] = unix.SIGSTKFLT
	signalNames["PWR"] = unix.SIGPWR
}
