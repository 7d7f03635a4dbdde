// Command squad-bench is a small micro-benchmark harness for the squad
// package: it repeatedly runs an empty round (and, optionally, a partitioned
// reduction) across a configurable thread count and reports round-latency
// jitter.
package main

import (
	"flag"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"github.com/ScottSallinen/squad/squad"
	"github.com/ScottSallinen/squad/xtime"
)

func main() {
	threadsPtr := flag.Int("t", runtime.NumCPU(), "Number of squad worker threads. Default is the host's hardware concurrency.")
	roundsPtr := flag.Int("r", 1000, "Number of rounds to time.")
	pinPtr := flag.Bool("pin", false, "Pin workers to hardware threads.")
	spinPtr := flag.Bool("spin", true, "Enable the worker-side spin phase of the backoff waiter.")
	reducePtr := flag.Int("sum", 0, "If > 0, each round partitions [0, sum) across workers and sums it via TransformReduce instead of running a no-op.")
	warmupPtr := flag.Int("w", 10, "Warmup rounds to run before timing starts, excluded from the reported wall-clock time.")
	debugPtr := flag.Int("debug", 0, "Adds extra debug output. Level 0 for info, 1 for debug, 2 for trace (including wait-chain tracing).")
	colourPtr := flag.Bool("nc", false, "Removes the colouring from the log output.")
	flag.Parse()

	squad.SetLogColour(*colourPtr)
	squad.SetLogLevel(*debugPtr)
	if *debugPtr >= 2 {
		squad.TraceWaitChain = true
	}

	sq, err := squad.New(squad.Params{
		NumThreads:           *threadsPtr,
		PinToHardwareThreads: *pinPtr,
		SpinWait:             *spinPtr,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("squad-bench: failed to create squad")
	}
	defer sq.Close()

	log.Info().Int("threads", sq.NumThreads()).Int("rounds", *roundsPtr).Bool("pinned", *pinPtr).Msg("squad-bench: starting")

	runRound := func() int {
		if *reducePtr > 0 {
			n := *reducePtr
			return squad.TransformReduce(sq, func(ctx *squad.TaskContext) int {
				concurrency := ctx.NumThreads()
				idx := ctx.ThreadIndex()
				lo := (n * idx) / concurrency
				hi := (n * (idx + 1)) / concurrency
				sum := 0
				for v := lo; v < hi; v++ {
					sum += v
				}
				return sum
			}, 0, squad.Sum[int], -1)
		}
		sq.Run(func(ctx *squad.TaskContext) {}, -1)
		return 0
	}

	var watch xtime.Watch
	watch.Start()
	watch.Pause()
	for i := 0; i < *warmupPtr; i++ {
		runRound()
	}
	watch.Unpause()

	latencies := make([]float64, *roundsPtr)
	for i := 0; i < *roundsPtr; i++ {
		start := time.Now()
		result := runRound()
		latencies[i] = float64(time.Since(start))
		if *reducePtr > 0 && i == 0 {
			log.Debug().Int("result", result).Msg("squad-bench: first reduction result")
		}
	}

	mean := stat.Mean(latencies, nil)
	stddev := stat.StdDev(latencies, nil)
	log.Info().
		Dur("mean", time.Duration(mean)).
		Dur("stddev", time.Duration(stddev)).
		Dur("measuredWallClock", watch.Elapsed()).
		Msg("squad-bench: round latency")
}

