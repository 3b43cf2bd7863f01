//go:build linux

package osthread

import "golang.org/x/sys/unix"

const stableIDs = true

func current() int {
	return unix.Gettid()
}
