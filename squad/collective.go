package squad

import "github.com/ScottSallinen/squad/squad/internal/backoff"

// TaskContext is handed to a worker action for the duration of a single
// round. It identifies the calling thread within the round's participating
// prefix and offers the in-task collectives, which reuse the same wake/join
// tree that dispatched the round to move per-thread payloads.
type TaskContext struct {
	sq          *Squad
	threadIndex int
	concurrency int
	collSeq     uint32
}

// ThreadIndex returns the current thread's index in [0, NumThreads).
func (c *TaskContext) ThreadIndex() int { return c.threadIndex }

// NumThreads returns the number of threads participating in this round.
func (c *TaskContext) NumThreads() int { return c.concurrency }

// Synchronize is a barrier with no payload: every write sequenced before a
// participant's call to Synchronize happens-before every read sequenced
// after any participant's return from it. Every participating thread must
// call it unconditionally, in the same textual order.
func (c *TaskContext) Synchronize() {
	collectAndTransform(c, struct{}{}, func(a, _ struct{}) struct{} { return a }, func(v struct{}) struct{} { return v })
}

// Reduce combines value across every participating thread using op and
// returns the combined result to all of them. op must be associative; the
// order of combination follows the tree's deterministic traversal order,
// not thread-index order.
func Reduce[T any](c *TaskContext, value T, op func(a, b T) T) T {
	return collectAndTransform(c, value, op, func(v T) T { return v })
}

// ReduceTransform combines value across every participating thread using
// op, applies transform to the combined result exactly once (on thread 0),
// and broadcasts the transformed result to every thread.
func ReduceTransform[T, R any](c *TaskContext, value T, op func(a, b T) T, transform func(T) R) R {
	return collectAndTransform(c, value, op, transform)
}

// collectAndTransform implements every in-task collective: a bottom-up
// collect phase folds each participant's value into its subtree root via
// op, thread 0 (the round's root) applies transform exactly once, and a
// top-down broadcast phase distributes the transformed result back to every
// participant. Both phases walk the identical tree shape the round's
// wake/join barrier uses, restricted to the round's concurrency, so the
// combination order is a deterministic function of num_threads and
// concurrency alone.
func collectAndTransform[T, R any](c *TaskContext, value T, op func(a, b T) T, transform func(T) R) R {
	sq := c.sq
	i := c.threadIndex
	target := c.collSeq + 1

	sl := &sq.slots[i]
	sl.payload = value

	stride := sl.numSubthreads
	last := minInt(i+stride, c.concurrency)

	walkWaitLevels(i, last, stride, func(child int) {
		cs := &sq.slots[child]
		backoff.WaitUntilEqualAndLoad(&cs.notify, &cs.collectSeq, target)
		sl.payload = op(sl.payload.(T), cs.payload.(T))
	})

	backoff.SetAndNotify(&sl.notify, &sl.collectSeq, target)

	var result R
	if i == 0 {
		result = transform(sl.payload.(T))
	} else {
		backoff.WaitUntilEqualAndLoad(&sl.notify, &sl.broadcastSeq, target)
		result = sl.payload.(R)
	}

	sl.payload = result
	walkNotifyLevels(i, last, stride, func(child int) {
		cs := &sq.slots[child]
		cs.payload = result
		backoff.SetAndNotify(&cs.notify, &cs.broadcastSeq, target)
	})

	c.collSeq = target
	return result
}
