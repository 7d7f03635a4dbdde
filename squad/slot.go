package squad

import (
	"sync/atomic"

	"github.com/ScottSallinen/squad/squad/internal/backoff"
)

// slot is the per-worker record that backs one leaf or interior node of the
// wake/join tree. Every squad allocates num_threads of these contiguously;
// the padding field is a best-effort defence against false sharing between
// adjacent slots on the same cache line, since Go gives no compile-time
// sizeof to guarantee exact alignment the way an aligned allocator would.
type slot struct {
	threadIndex   int
	numSubthreads int

	// newSense is toggled by this slot's parent to deliver a wake; sense is
	// toggled by this slot itself to signal that its subtree has finished a
	// round. Per Invariant 3, each is written by exactly one side.
	newSense atomic.Uint32
	sense    atomic.Uint32

	// collectSeq/broadcastSeq back the in-task collectives (Synchronize,
	// Reduce, ReduceTransform), which reuse the tree shape but need their
	// own rendezvous points distinct from the round barrier above, since a
	// collective happens mid-round while the outer sense pair is still in
	// flight. Unlike newSense/sense, these are monotonically increasing
	// sequence numbers rather than toggled bits: every participating slot
	// executes the same number of collective calls in the same order within
	// a round (per the contract collective calls place on callers), so a
	// slot and everything waiting on it always agree on the next target
	// value without any extra coordination. The round controller (doRun)
	// zeroes both counters on every slot before publishing each round's
	// task, so a target value is only ever valid within the round it was
	// produced in and never collides with a value left over from a
	// previous round.
	collectSeq   atomic.Uint32
	broadcastSeq atomic.Uint32
	payload      any

	notify backoff.NotifyData

	coreAffinity     int
	pinRequested     bool
	osThreadStarted  bool
	osThreadJoinable chan struct{}

	_ [64]byte // pad against false sharing with the next slot
}

func newSlots(n int) []slot {
	slots := make([]slot, n)
	for i := range slots {
		slots[i].threadIndex = i
		slots[i].notify.Init()
		slots[i].coreAffinity = -1
	}
	return slots
}
