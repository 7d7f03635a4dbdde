package squad

import "testing"

func TestSynchronizeIsABarrier(t *testing.T) {
	sq, err := New(Params{NumThreads: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sq.Close()

	before := make([]bool, 4)
	after := make([]bool, 4)

	sq.Run(func(ctx *TaskContext) {
		before[ctx.ThreadIndex()] = true
		ctx.Synchronize()
		for i := range before {
			if !before[i] {
				t.Errorf("thread %d observed thread %d not yet past the write before Synchronize returned", ctx.ThreadIndex(), i)
			}
		}
		after[ctx.ThreadIndex()] = true
	}, -1)

	for i, ok := range after {
		if !ok {
			t.Errorf("thread %d never reached the post-barrier write", i)
		}
	}
}

func TestReduceCombinesAcrossThreads(t *testing.T) {
	sq, err := New(Params{NumThreads: 8})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sq.Close()

	results := make([]int, 8)
	sq.Run(func(ctx *TaskContext) {
		results[ctx.ThreadIndex()] = Reduce(ctx, ctx.ThreadIndex()+1, Sum[int])
	}, -1)

	want := 1 + 2 + 3 + 4 + 5 + 6 + 7 + 8
	for i, got := range results {
		if got != want {
			t.Errorf("thread %d: Reduce = %d, want %d", i, got, want)
		}
	}
}

func TestReduceTwiceInARoundHasNoLeakedPayload(t *testing.T) {
	sq, err := New(Params{NumThreads: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sq.Close()

	firstResults := make([]int, 4)
	secondResults := make([]int, 4)
	sq.Run(func(ctx *TaskContext) {
		firstResults[ctx.ThreadIndex()] = Reduce(ctx, 1, Sum[int])
		secondResults[ctx.ThreadIndex()] = Reduce(ctx, 10, Sum[int])
	}, -1)

	for i := 0; i < 4; i++ {
		if firstResults[i] != 4 {
			t.Errorf("thread %d: first reduce = %d, want 4", i, firstResults[i])
		}
		if secondResults[i] != 40 {
			t.Errorf("thread %d: second reduce = %d, want 40", i, secondResults[i])
		}
	}
}

func TestPartitionedReduceInsideRunMatchesTransformReduceFirst(t *testing.T) {
	sq, err := New(Params{NumThreads: 8})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sq.Close()

	const n = 10001
	const want = 50005000

	got := TransformReduceFirst(sq, func(ctx *TaskContext) bool {
		concurrency := ctx.NumThreads()
		idx := ctx.ThreadIndex()
		lo := (n * idx) / concurrency
		hi := (n * (idx + 1)) / concurrency
		partial := 0
		for i := lo; i < hi; i++ {
			partial += i
		}
		total := Reduce(ctx, partial, Sum[int])
		return total == want
	}, LogicalAnd, -1)

	if !got {
		t.Error("TransformReduceFirst(logical_and) = false, want true")
	}
}

func TestReduceTransformBroadcastsSameTransformedValue(t *testing.T) {
	sq, err := New(Params{NumThreads: 6})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sq.Close()

	seen := make([]int, 6)
	sq.Run(func(ctx *TaskContext) {
		seen[ctx.ThreadIndex()] = ReduceTransform(ctx, ctx.ThreadIndex(), Sum[int], func(v int) int {
			return v * 1000
		})
	}, -1)

	want := (0 + 1 + 2 + 3 + 4 + 5) * 1000
	for i, got := range seen {
		if got != want {
			t.Errorf("thread %d: ReduceTransform = %d, want %d", i, got, want)
		}
	}
}
