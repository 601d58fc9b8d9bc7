package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/profile"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ChizhovVadim/CounterSearch/internal/evalbuilder"
	"github.com/ChizhovVadim/CounterSearch/internal/tactic"
	"github.com/ChizhovVadim/CounterSearch/pkg/common"
	"github.com/ChizhovVadim/CounterSearch/pkg/engine"
)

var benchFENs = []string{
	common.InitialPositionFen,
	"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
	"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
	"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1",
	"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8",
	"r4rk1/1pp1qppp/p1np1n2/2b1p1B1/2B1P1b1/P1NP1N2/1PP1QPPP/R4RK1 w - - 0 10",
	"r1bqkbnr/1ppp1ppp/p1n5/1B2p3/4P3/5N2/PPPP1PPP/RNBQK2R w KQkq - 0 4",
	"2r3k1/pp3ppp/4p3/3pP3/3P4/P4N2/1P3PPP/2R3K1 w - - 0 25",
	"8/8/4k3/8/2p5/8/B2K4/8 w - - 0 1",
	"6k1/5ppp/8/8/8/8/5PPP/3R2K1 w - - 0 1",
}

func main() {
	var (
		flgEval     = flag.String("eval", evalbuilder.Default, "evaluation function")
		flgDepth    = flag.Int("depth", 10, "search depth per position")
		flgHash     = flag.Int("hash", 16, "transposition table size in MB per engine")
		flgThreads  = flag.Int("threads", 1, "search threads per engine")
		flgParallel = flag.Int("parallel", 1, "engines searching concurrently")
		flgProfile  = flag.String("profile", "", "cpu, mem or empty")
		flgEpd      = flag.String("epd", "", "solve the tactic tests of an epd file instead")
		flgMoveTime = flag.Duration("movetime", 3*time.Second, "search time per tactic test")
	)
	flag.Parse()

	var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	switch *flgProfile {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.Quiet).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.Quiet).Stop()
	}

	var evalBuilder, err = evalbuilder.Get(*flgEval)
	if err != nil {
		logger.Fatal().Err(err).Msg("bad eval flag")
	}
	if *flgEpd != "" {
		if err := runTactic(*flgEpd, *flgMoveTime, evalBuilder, *flgHash, *flgThreads, logger); err != nil {
			logger.Fatal().Err(err).Msg("tactic run failed")
		}
		return
	}

	positions, err := loadPositions(benchFENs)
	if err != nil {
		logger.Fatal().Err(err).Msg("bad bench position")
	}

	logger.Info().
		Str("eval", *flgEval).
		Int("depth", *flgDepth).
		Int("threads", *flgThreads).
		Int("parallel", *flgParallel).
		Msg("benchmark started")

	var start = time.Now()
	var nodes atomic.Int64
	var g, ctx = errgroup.WithContext(context.Background())
	for i := 0; i < *flgParallel; i++ {
		var eng = engine.NewEngine(evalBuilder, logger)
		eng.Options.Hash = *flgHash
		eng.Options.Threads = *flgThreads
		g.Go(func() error {
			var n, err = benchmark(ctx, eng, positions, *flgDepth)
			nodes.Add(n)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("benchmark failed")
	}

	var elapsed = time.Since(start)
	var nps = int64(float64(nodes.Load()) / elapsed.Seconds())
	fmt.Println("Time", elapsed.Round(time.Millisecond))
	fmt.Println("Nodes", humanize.Comma(nodes.Load()))
	fmt.Println("NPS", humanize.Comma(nps))
}

func runTactic(path string, moveTime time.Duration, evalBuilder func() interface{},
	hash, threads int, logger zerolog.Logger) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	tests, err := tactic.LoadEpd(file, logger)
	if err != nil {
		return err
	}
	var eng = engine.NewEngine(evalBuilder, logger)
	eng.Options.Hash = hash
	eng.Options.Threads = threads
	var start = time.Now()
	solved, err := tactic.SolveTactic(context.Background(), tests, eng, moveTime, logger)
	if err != nil {
		return err
	}
	fmt.Printf("Solved %v/%v\n", solved, len(tests))
	fmt.Println("Time", time.Since(start).Round(time.Millisecond))
	return nil
}

func loadPositions(fens []string) ([]common.Position, error) {
	var result = make([]common.Position, 0, len(fens))
	for _, fen := range fens {
		var p, err = common.NewPositionFromFEN(fen)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

// benchmark searches every position from a cleared table and returns the
// total node count.
func benchmark(ctx context.Context, eng *engine.Engine, positions []common.Position, depth int) (int64, error) {
	var nodes int64
	for i := range positions {
		eng.Clear()
		var info, err = eng.Search(ctx, common.SearchParams{
			Positions: positions[i : i+1],
			Limits:    common.LimitsType{Depth: depth},
		})
		if err != nil {
			return nodes, fmt.Errorf("position %v: %w", i, err)
		}
		nodes += info.Nodes
	}
	return nodes, nil
}
