// Package squad implements a fixed-size, reusable thread squad: a pool of
// worker goroutines, each pinned to its own OS thread, that repeatedly
// execute bulk-synchronous fork-join rounds with low per-round overhead. A
// squad is created with a chosen concurrency level, optionally pinned to
// hardware threads, and then run repeatedly; each round wakes the workers
// through a tree-structured barrier, runs a caller-supplied action on each
// one, and returns control to the caller only once every participant has
// finished.
package squad

import (
	"runtime"
	"sync/atomic"

	"github.com/ScottSallinen/squad/squad/internal/affinity"
	"github.com/ScottSallinen/squad/squad/internal/backoff"
	"github.com/ScottSallinen/squad/squad/internal/enforce"
	"github.com/ScottSallinen/squad/squad/internal/xlog"
	"github.com/rs/zerolog/log"
)

var squadCounter atomic.Uint64

// SetLogLevel adjusts the verbosity of the squad package's own logging: 0
// for info, 1 for debug (construction diagnostics), 2 or higher for trace.
// The package's only TRACE lines are the wait-chain ones, which are emitted
// only when TraceWaitChain is also set.
func SetLogLevel(level int) {
	xlog.SetLevel(level)
}

// SetLogColour toggles ANSI colour in the squad package's console log
// output.
func SetLogColour(noColour bool) {
	xlog.SetConsole(noColour)
}

// Params configures a Squad at construction. The zero value requests one
// worker per hardware thread with no pinning and no spin waiting.
type Params struct {
	// NumThreads is the number of workers to fork. 0 means "as many as
	// hardware threads are available".
	NumThreads int

	// PinToHardwareThreads pins each worker to a hardware thread. New
	// fails with ErrPinningNotSupported on platforms with no affinity
	// syscall wired.
	PinToHardwareThreads bool

	// SpinWait selects the full spin phase of the backoff waiter for the
	// worker-side waits of the wake/join barrier; when false, those waits
	// run the shortened spin phase. The round controller always uses the
	// shortened spin phase, and the in-task collectives' waits always use
	// the full one, regardless of this setting.
	SpinWait bool

	// MaxNumHardwareThreads bounds how many distinct hardware threads
	// workers are pinned across. 0 derives it from HardwareThreadMappings
	// or the host's hardware concurrency. In either case New raises it to
	// at least the host's hardware concurrency.
	MaxNumHardwareThreads int

	// HardwareThreadMappings optionally maps thread indices to hardware
	// thread ids. If empty, thread index i is pinned to hardware thread
	// i mod MaxNumHardwareThreads (after New has raised it as above).
	HardwareThreadMappings []int
}

// ErrPinningNotSupported is returned by New when PinToHardwareThreads is
// requested on a platform with no affinity syscall wired.
var ErrPinningNotSupported = affinity.ErrNotSupported

// Squad is a fixed-size, reusable pool of worker goroutines. The zero value
// is not usable; construct one with New.
type Squad struct {
	id         uint64
	numThreads int
	spinWait   bool
	slots      []slot
	task       taskDescriptor
	closed     bool
	everRun    bool
}

// New validates p, precomputes the wake/join tree shape, and returns a
// squad in its "unforked" state: no worker goroutines exist yet, and the
// first round lazily launches them.
func New(p Params) (*Squad, error) {
	enforce.Enforce(p.NumThreads >= 0, "squad: NumThreads must be non-negative")
	enforce.Enforce(p.MaxNumHardwareThreads >= 0, "squad: MaxNumHardwareThreads must be non-negative")
	enforce.Enforce(p.NumThreads == 0 || p.MaxNumHardwareThreads <= p.NumThreads,
		"squad: MaxNumHardwareThreads must not exceed NumThreads")
	if len(p.HardwareThreadMappings) != 0 {
		enforce.Enforce(p.MaxNumHardwareThreads <= len(p.HardwareThreadMappings) && p.NumThreads <= len(p.HardwareThreadMappings),
			"squad: HardwareThreadMappings too small for the requested thread counts")
	}

	hardwareConcurrency := runtime.NumCPU()
	numThreads := p.NumThreads
	if numThreads == 0 {
		numThreads = hardwareConcurrency
	}
	maxHW := p.MaxNumHardwareThreads
	if maxHW == 0 {
		if len(p.HardwareThreadMappings) != 0 {
			maxHW = len(p.HardwareThreadMappings)
		} else {
			maxHW = hardwareConcurrency
		}
	}
	if maxHW < hardwareConcurrency {
		maxHW = hardwareConcurrency
	}

	if p.PinToHardwareThreads && !affinity.Supported {
		return nil, ErrPinningNotSupported
	}

	slots := newSlots(numThreads)
	if p.PinToHardwareThreads {
		for i := range slots {
			slots[i].pinRequested = true
			slots[i].coreAffinity = affinity.HardwareThreadID(i, maxHW, p.HardwareThreadMappings)
		}
	}
	if numThreads > 0 {
		buildTree(slots, 0, numThreads, numThreads)
	}

	sq := &Squad{
		id:         squadCounter.Add(1),
		numThreads: numThreads,
		spinWait:   p.SpinWait,
		slots:      slots,
	}
	log.Debug().Uint64("squad", sq.id).Int("threads", numThreads).Bool("pinned", p.PinToHardwareThreads).Msg("squad: created")
	return sq, nil
}

// NumThreads returns the number of workers in the squad.
func (sq *Squad) NumThreads() int {
	return sq.numThreads
}

// Run executes action once on each of the first concurrency workers and
// blocks until they have all finished. concurrency of -1 means "every
// worker". The squad remains usable for further rounds after Run returns.
func (sq *Squad) Run(action func(ctx *TaskContext), concurrency int) {
	sq.doRun(action, concurrency, false)
}

// RunAndClose is the consuming variant of Run: it executes action on this
// final round and tears the squad down as part of the same round, joining
// every worker before returning.
func (sq *Squad) RunAndClose(action func(ctx *TaskContext), concurrency int) {
	sq.doRun(action, concurrency, true)
}

// Close publishes a terminal round with no action, waits for every worker
// to observe it and exit, and joins their goroutines. It is safe to call on
// an already-closed squad.
func (sq *Squad) Close() {
	if sq.closed {
		return
	}
	sq.doRun(nil, 0, true)
}

// TransformReduce runs fn on each of the first concurrency workers,
// combines their results with op inside the round (via Reduce, on the
// worker threads), combines init with that result using op on the calling
// thread, and returns the combined value. The squad remains usable
// afterward.
func TransformReduce[T any](sq *Squad, fn func(ctx *TaskContext) T, init T, op func(a, b T) T, concurrency int) T {
	combined, ok := transformReduceRound(sq, fn, op, concurrency, false)
	if !ok {
		return init
	}
	return op(init, combined)
}

// TransformReduceFirst is like TransformReduce, but seeds the accumulation
// with worker 0's own result instead of a caller-supplied init; concurrency
// must be at least 1.
func TransformReduceFirst[T any](sq *Squad, fn func(ctx *TaskContext) T, op func(a, b T) T, concurrency int) T {
	if concurrency == -1 {
		concurrency = sq.numThreads
	}
	enforce.Enforce(concurrency >= 1, "squad: TransformReduceFirst requires concurrency >= 1")
	combined, ok := transformReduceRound(sq, fn, op, concurrency, false)
	enforce.Enforce(ok, "squad: TransformReduceFirst ran no workers")
	return combined
}

// transformReduceRound is the shared implementation behind TransformReduce
// and TransformReduceFirst: it wraps fn in an action that folds every
// worker's result into slot 0's payload via the in-task Reduce collective,
// then hands the combined value back to the caller after the round.
func transformReduceRound[T any](sq *Squad, fn func(ctx *TaskContext) T, op func(a, b T) T, concurrency int, join bool) (result T, ran bool) {
	if concurrency == -1 {
		concurrency = sq.numThreads
	}
	if sq.numThreads == 0 || concurrency == 0 {
		return result, false
	}

	var combined T
	action := func(ctx *TaskContext) {
		v := fn(ctx)
		reduced := Reduce(ctx, v, op)
		if ctx.ThreadIndex() == 0 {
			combined = reduced
		}
	}
	sq.doRun(action, concurrency, join)
	return combined, true
}

// doRun is the round controller: publish the task, wake slot 0, wait for
// slot 0 to signal completion, and drop the task's captured state.
func (sq *Squad) doRun(action func(ctx *TaskContext), concurrency int, terminationRequested bool) {
	if terminationRequested {
		enforce.Enforce(!sq.closed, "squad: Close called twice")
	} else {
		enforce.Enforce(!sq.closed, "squad: Run called on a closed squad")
	}

	if concurrency == -1 {
		concurrency = sq.numThreads
	}
	enforce.Enforce(concurrency >= 0 && concurrency <= sq.numThreads,
		"squad: concurrency out of range")

	if sq.numThreads == 0 {
		if terminationRequested {
			sq.closed = true
		}
		return
	}

	if action == nil && !terminationRequested {
		return
	}

	// Close (action == nil, terminationRequested) on a squad that has never
	// run a round has no workers to join: nothing has been forked, so there
	// is nothing to wake either. Publishing a round here would lazily fork
	// the entire tree just to immediately tear it back down, violating the
	// "no threads forked; no threads joined" contract for a squad destroyed
	// immediately after construction.
	if action == nil && terminationRequested && !sq.everRun {
		sq.closed = true
		return
	}

	sq.everRun = true
	sq.task = taskDescriptor{action: action, concurrency: concurrency, terminationRequested: terminationRequested}

	// Every worker is idle at this point (blocked on last round's newSense
	// wait, or never forked), so it is safe for the controller to zero the
	// collective rendezvous counters here without racing any worker. This
	// keeps each round's Synchronize/Reduce/ReduceTransform target values
	// starting from a fresh baseline instead of leaking the previous
	// round's committed sequence numbers into this round's wait targets.
	for i := range sq.slots {
		sq.slots[i].collectSeq.Store(0)
		sq.slots[i].broadcastSeq.Store(0)
	}

	sq.notifyThread(0)
	sq.waitForThread(0, false)

	sq.task.action = nil
	if terminationRequested {
		sq.closed = true
	}
}

// notifyThread toggles idx's wake signal and, if its worker has never run
// before, lazily forks the goroutine that backs it.
func (sq *Squad) notifyThread(idx int) {
	sl := &sq.slots[idx]
	backoff.ToggleAndNotify(&sl.notify, &sl.newSense)
	if !sl.osThreadStarted {
		sl.osThreadStarted = true
		sl.osThreadJoinable = make(chan struct{})
		go sq.runWorker(idx)
	}
}

// waitForThread blocks until idx has signalled completion of the current
// round, joining its goroutine first if this round is terminating.
// oldSense is derived from newSense's current value rather than threaded
// through as a parameter: newSense was toggled for this round by whichever
// call to notifyThread preceded this wait, and does not change again until
// the next round, so it reliably yields the sense value this round must
// move away from, however late this wait happens to run.
func (sq *Squad) waitForThread(idx int, spinWait bool) {
	sl := &sq.slots[idx]
	if sq.task.terminationRequested && sl.osThreadStarted {
		<-sl.osThreadJoinable
	}
	oldSense := sl.newSense.Load() ^ 1
	backoff.WaitAndLoad(&sl.notify, &sl.sense, oldSense, spinWait)
}
