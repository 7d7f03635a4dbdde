package squad

import (
	"runtime"

	"github.com/ScottSallinen/squad/squad/internal/affinity"
	"github.com/ScottSallinen/squad/squad/internal/backoff"
	"github.com/rs/zerolog/log"
)

// TraceWaitChain, when set, emits a TRACE-level log line when a worker is
// woken for a round and when it signals completion. It is diagnostic only and
// never affects control flow; mirrors the DEBUG_WAIT_CHAIN switch of the
// implementation this package's synchronization core is modelled on.
var TraceWaitChain = false

// runWorker is the body of one squad worker thread. It is launched lazily,
// the first time its slot is notified, and runs until it processes a round
// with terminationRequested set.
func (sq *Squad) runWorker(idx int) {
	runtime.LockOSThread()

	sl := &sq.slots[idx]
	if sl.pinRequested {
		if err := affinity.Pin(sl.coreAffinity); err != nil {
			log.Warn().Err(err).Uint64("squad", sq.id).Int("thread", idx).Msg("squad: pin to hardware thread failed")
		}
	}

	// The baseline must be the value newSense held *before* this round's
	// wake was delivered, not whatever newSense reads right now: the go
	// statement that launched this goroutine happens-after notifyThread's
	// toggle, so by the time we get here newSense may already hold the new
	// value and a baseline read from it would wait for a change that has
	// already happened. sense is still untouched at this point (this
	// worker hasn't run a round yet), so it reliably gives the pre-round
	// value, matching thread_squad.cpp's oldSense := sense_.load() baseline.
	oldNewSense := sl.sense.Load()
	for {
		oldNewSense = backoff.WaitAndLoad(&sl.notify, &sl.newSense, oldNewSense, sq.spinWait)
		if TraceWaitChain {
			log.Trace().Uint64("squad", sq.id).Int("thread", idx).Msg("squad: woken")
		}

		task := sq.task

		sq.notifySubtreeChildren(idx, task)

		if task.action != nil && idx < task.concurrency {
			ctx := &TaskContext{sq: sq, threadIndex: idx, concurrency: task.concurrency}
			task.action(ctx)
		}

		sq.waitForSubtreeChildren(idx, task)

		backoff.ToggleAndNotify(&sl.notify, &sl.sense)
		if TraceWaitChain {
			log.Trace().Uint64("squad", sq.id).Int("thread", idx).Msg("squad: signalled completion")
		}

		if task.terminationRequested {
			close(sl.osThreadJoinable)
			return
		}
	}
}

// subtreeLimit is the exclusive upper bound the wake/join walks are bounded
// to for the current task: normally the round's concurrency, but the full
// numThreads on a terminating round (every slot must be joined) and also on
// a concurrency == 0, non-terminating round (spec ยง4.4: slot 0 still
// propagates the signal through the tree even though no slot invokes the
// action).
func (sq *Squad) subtreeLimit(task taskDescriptor) int {
	if task.terminationRequested || task.concurrency == 0 {
		return sq.numThreads
	}
	return task.concurrency
}

// notifySubtreeChildren wakes the direct children of idx at every level of
// its subtree, widest level first, lazily forking any that have not yet been
// launched; each child then wakes its own subtree.
func (sq *Squad) notifySubtreeChildren(idx int, task taskDescriptor) {
	sl := &sq.slots[idx]
	limit := sq.subtreeLimit(task)
	stride := sl.numSubthreads
	last := minInt(idx+stride, limit)
	walkNotifyLevels(idx, last, stride, func(child int) {
		sq.notifyThread(child)
	})
}

// waitForSubtreeChildren is the symmetric counterpart of
// notifySubtreeChildren: it waits bottom-up so that any OS thread forked
// deeper in the tree for a terminating round is joined before its ancestors.
func (sq *Squad) waitForSubtreeChildren(idx int, task taskDescriptor) {
	sl := &sq.slots[idx]
	limit := sq.subtreeLimit(task)
	stride := sl.numSubthreads
	last := minInt(idx+stride, limit)
	walkWaitLevels(idx, last, stride, func(child int) {
		sq.waitForThread(child, sq.spinWait)
	})
}
