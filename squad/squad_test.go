package squad

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ScottSallinen/squad/squad/internal/affinity"
)

func TestNewSingleThreadIsUsable(t *testing.T) {
	sq, err := New(Params{NumThreads: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sq.Close()
	if sq.NumThreads() != 1 {
		t.Errorf("NumThreads() = %d, want 1", sq.NumThreads())
	}
}

func TestRunInvokesEveryParticipant(t *testing.T) {
	sq, err := New(Params{NumThreads: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sq.Close()

	var mu sync.Mutex
	seen := map[int]bool{}
	sq.Run(func(ctx *TaskContext) {
		mu.Lock()
		seen[ctx.ThreadIndex()] = true
		mu.Unlock()
	}, -1)

	if len(seen) != 4 {
		t.Fatalf("seen %v, want indices 0..3", seen)
	}
	for i := 0; i < 4; i++ {
		if !seen[i] {
			t.Errorf("thread index %d never observed", i)
		}
	}
}

func TestRunRepeatedInvokesEachTimeExactlyOnce(t *testing.T) {
	sq, err := New(Params{NumThreads: 50})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sq.Close()

	counters := make([]int, 50)
	for round := 0; round < 20; round++ {
		sq.Run(func(ctx *TaskContext) {
			counters[ctx.ThreadIndex()]++
		}, -1)
	}

	total := 0
	for i, c := range counters {
		if c != 20 {
			t.Errorf("slot %d ran %d times, want 20", i, c)
		}
		total += c
	}
	if total != 50*20 {
		t.Errorf("total = %d, want %d", total, 50*20)
	}
}

func TestRunConcurrencyZeroStillCompletes(t *testing.T) {
	sq, err := New(Params{NumThreads: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sq.Close()

	var invoked atomic.Bool
	sq.Run(func(ctx *TaskContext) {
		invoked.Store(true)
	}, 0)

	if invoked.Load() {
		t.Error("action ran with concurrency == 0")
	}
}

func TestRunPartialConcurrency(t *testing.T) {
	sq, err := New(Params{NumThreads: 8})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sq.Close()

	var mu sync.Mutex
	seen := map[int]bool{}
	sq.Run(func(ctx *TaskContext) {
		mu.Lock()
		seen[ctx.ThreadIndex()] = true
		mu.Unlock()
	}, 3)

	if len(seen) != 3 {
		t.Fatalf("seen %v, want exactly 3 distinct indices", seen)
	}
}

func TestTransformReduceSumsThreadIndices(t *testing.T) {
	sq, err := New(Params{NumThreads: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sq.Close()

	got := TransformReduce(sq, func(ctx *TaskContext) int {
		return ctx.ThreadIndex() + 1
	}, 0, Sum[int], -1)

	if got != 10 {
		t.Errorf("TransformReduce = %d, want 10", got)
	}
}

func TestTransformReducePartitionedSum(t *testing.T) {
	sq, err := New(Params{NumThreads: 8})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sq.Close()

	const n = 10001 // 0..=10000
	got := TransformReduce(sq, func(ctx *TaskContext) int {
		concurrency := ctx.NumThreads()
		idx := ctx.ThreadIndex()
		lo := (n * idx) / concurrency
		hi := (n * (idx + 1)) / concurrency
		sum := 0
		for i := lo; i < hi; i++ {
			sum += i
		}
		return sum
	}, 0, Sum[int], 8)

	if got != 50005000 {
		t.Errorf("TransformReduce = %d, want 50005000", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	sq, err := New(Params{NumThreads: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sq.Close()
	sq.Close()
}

func TestCloseImmediatelyAfterConstructionForksNoThreads(t *testing.T) {
	sq, err := New(Params{NumThreads: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sq.Close()

	for i := range sq.slots {
		if sq.slots[i].osThreadStarted {
			t.Errorf("slot %d forked a thread despite never running", i)
		}
	}
}

func TestPinningUnsupportedReturnsError(t *testing.T) {
	if affinity.Supported {
		t.Skip("affinity is supported on this platform")
	}
	_, err := New(Params{NumThreads: 2, PinToHardwareThreads: true})
	if err != ErrPinningNotSupported {
		t.Fatalf("err = %v, want ErrPinningNotSupported", err)
	}
}
