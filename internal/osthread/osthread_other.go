//go:build !linux

package osthread

import "sync/atomic"

const stableIDs = false

// Kernel thread ids are not portable; hand out process-unique ids instead.
var nextID atomic.Int64

func current() int {
	return int(nextID.Add(1))
}
