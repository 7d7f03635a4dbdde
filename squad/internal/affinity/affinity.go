// Package affinity pins the calling OS thread to a hardware thread, when
// the platform supports it. It must be called from the goroutine that is
// to be pinned, after runtime.LockOSThread has bound that goroutine to its
// own OS thread.
package affinity

import "errors"

// ErrNotSupported is returned by Pin on platforms with no wired affinity
// syscall.
var ErrNotSupported = errors.New("affinity: pinning to hardware threads is not supported on this platform")

// HardwareThreadID picks which hardware thread index a given squad thread
// index should be pinned to, honouring an optional explicit mapping. It
// mirrors the wraparound behaviour used when there are fewer hardware
// threads than squad threads: thread indices are folded back into range by
// taking the remainder against the number of hardware threads in play.
func HardwareThreadID(threadIdx, maxNumHardwareThreads int, mappings []int) int {
	subidx := threadIdx % maxNumHardwareThreads
	if len(mappings) != 0 {
		return mappings[subidx]
	}
	return subidx
}
