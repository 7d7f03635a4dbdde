//go:build linux

package affinity

import "golang.org/x/sys/unix"

// Supported reports whether Pin can actually change the calling thread's
// affinity on this platform.
const Supported = true

// Pin binds the calling OS thread to hardwareThreadID. The caller must have
// already called runtime.LockOSThread, or the pinning will apply to
// whichever OS thread the goroutine happens to be running on at the time
// and may be silently undone by the next reschedule.
func Pin(hardwareThreadID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(hardwareThreadID)
	tid := unix.Gettid()
	return unix.SchedSetaffinity(tid, &set)
}

// ThreadID returns the calling OS thread's kernel thread id. Two goroutines
// pinned via runtime.LockOSThread never observe the same value.
func ThreadID() int {
	return unix.Gettid()
}
