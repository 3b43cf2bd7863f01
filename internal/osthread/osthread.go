// Package osthread reports the identity of the calling OS thread.
package osthread

// Comparable reports whether Current returns the same id each time it is
// called on the same thread. Where it does not, ids only identify a thread
// for display.
const Comparable = stableIDs

// Current returns a non-zero id for the OS thread running the caller. The
// result is only meaningful while the goroutine is locked to its thread with
// runtime.LockOSThread.
func Current() int {
	return current()
}
