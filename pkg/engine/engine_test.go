package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	. "github.com/ChizhovVadim/CounterSearch/pkg/common"
	material "github.com/ChizhovVadim/CounterSearch/pkg/eval/material"
	psqt "github.com/ChizhovVadim/CounterSearch/pkg/eval/psqt"
)

func materialBuilder() interface{} {
	return material.NewEvaluationService()
}

func newTestEngine(threads int) *Engine {
	var e = NewEngine(materialBuilder, zerolog.Nop())
	e.Options.Hash = 4
	e.Options.Threads = threads
	return e
}

func searchFEN(t *testing.T, e *Engine, fen string, limits LimitsType) SearchInfo {
	t.Helper()
	var p, err = NewPositionFromFEN(fen)
	if err != nil {
		t.Fatal(err)
	}
	info, err := e.Search(context.Background(), SearchParams{
		Positions: []Position{p},
		Limits:    limits,
	})
	if err != nil {
		t.Fatal(err)
	}
	return info
}

func TestSearchStartPosition(t *testing.T) {
	is := is.New(t)
	var e = newTestEngine(1)
	var info = searchFEN(t, e, InitialPositionFen, LimitsType{Depth: 3})
	is.Equal(info.Depth, 3)
	is.True(info.BestMove() != MoveEmpty)
	is.True(info.Nodes > 0)
	is.True(info.ID != "")

	var p, _ = NewPositionFromFEN(InitialPositionFen)
	is.True(p.IsLegal(info.BestMove()))
}

func TestSearchImmediateStop(t *testing.T) {
	is := is.New(t)
	var e = newTestEngine(2)
	var p, _ = NewPositionFromFEN(InitialPositionFen)
	var ctx, cancel = context.WithCancel(context.Background())
	cancel()

	var start = time.Now()
	info, err := e.Search(ctx, SearchParams{
		Positions: []Position{p},
		Limits:    LimitsType{Infinite: true},
	})
	is.NoErr(err)
	is.True(time.Since(start) < 2*time.Second)
	is.True(p.IsLegal(info.BestMove()))
}

func TestStopDuringSearch(t *testing.T) {
	is := is.New(t)
	var e = newTestEngine(2)
	var p, _ = NewPositionFromFEN(InitialPositionFen)
	time.AfterFunc(50*time.Millisecond, e.Stop)
	info, err := e.Search(context.Background(), SearchParams{
		Positions: []Position{p},
		Limits:    LimitsType{Infinite: true},
	})
	is.NoErr(err)
	is.True(p.IsLegal(info.BestMove()))
}

func TestStopBeforeSearch(t *testing.T) {
	is := is.New(t)
	var e = newTestEngine(2)
	var p, _ = NewPositionFromFEN(InitialPositionFen)
	e.Stop()

	var done = make(chan SearchInfo, 1)
	go func() {
		var info, err = e.Search(context.Background(), SearchParams{
			Positions: []Position{p},
			Limits:    LimitsType{Infinite: true},
		})
		if err != nil {
			t.Error(err)
		}
		done <- info
	}()
	select {
	case info := <-done:
		is.True(p.IsLegal(info.BestMove()))
	case <-time.After(5 * time.Second):
		e.Stop()
		t.Fatal("stop issued before the search was lost")
	}

	// the pending stop is consumed by one search only
	var info = searchFEN(t, e, InitialPositionFen, LimitsType{Depth: 3})
	is.Equal(info.Depth, 3)
}

func TestLazySmp(t *testing.T) {
	is := is.New(t)
	var e = newTestEngine(4)
	var info = searchFEN(t, e, InitialPositionFen, LimitsType{Depth: 6})
	is.True(info.BestMove() != MoveEmpty)
	is.True(info.Depth >= 6)
	is.True(info.Duplication >= 0)
	is.True(info.Duplication <= 100)

	var winnerNodes = e.threads[info.Worker].nodes
	is.True(info.Nodes >= winnerNodes)
	var sum int64
	for i := range e.threads {
		sum += e.threads[i].nodes
	}
	is.Equal(info.Nodes, sum)

	var cutoffs int64
	for i := range e.threads {
		cutoffs += e.threads[i].ttCutoffs
	}
	is.Equal(info.TTCutoffs, cutoffs)
	is.True(info.TTCutoffs > 0)
}

func TestSingleLegalMove(t *testing.T) {
	is := is.New(t)
	var e = newTestEngine(2)
	const fen = "k7/8/8/8/8/8/1q6/K7 w - - 0 1"
	var info = searchFEN(t, e, fen, LimitsType{Depth: 10})
	is.Equal(info.Depth, 1)
	is.Equal(info.BestMove().String(), "a1b2")

	var p, _ = NewPositionFromFEN(fen)
	is.Equal(info.Value, material.NewEvaluationService().Evaluate(&p))
}

func TestNoLegalMoves(t *testing.T) {
	is := is.New(t)
	var e = newTestEngine(1)
	// black is mated
	var info = searchFEN(t, e, "R5k1/5ppp/8/8/8/8/8/6K1 b - - 0 1", LimitsType{Depth: 5})
	is.Equal(len(info.MainLine), 0)
	is.True(info.Value <= valueLoss)
	var ply, ok = MatePly(info.Value)
	is.True(ok)
	is.Equal(ply, 0)
	is.True(info.Score.IsMate)
	is.Equal(info.Score.Mate, 0)

	// stalemate
	info = searchFEN(t, e, "k7/2Q5/1K6/8/8/8/8/8 b - - 0 1", LimitsType{Depth: 5})
	is.Equal(len(info.MainLine), 0)
	is.Equal(info.Value, valueDraw)
	is.True(!info.Score.IsMate)
}

func TestMateInOne(t *testing.T) {
	is := is.New(t)
	for _, threads := range []int{1, 3} {
		var e = newTestEngine(threads)
		var info = searchFEN(t, e, "6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1", LimitsType{Depth: 4})
		is.Equal(info.BestMove().String(), "a1a8")
		var ply, _ = MatePly(info.Value)
		is.Equal(ply, 1)
		is.Equal(info.Score.Mate, 1)
	}
}

func TestMultiPV(t *testing.T) {
	is := is.New(t)
	var e = newTestEngine(1)
	var p, _ = NewPositionFromFEN(InitialPositionFen)
	info, err := e.Search(context.Background(), SearchParams{
		Positions: []Position{p},
		Limits:    LimitsType{Depth: 4},
		MultiPV:   3,
	})
	is.NoErr(err)
	is.Equal(len(info.Lines), 3)
	var seen = make(map[Move]bool)
	for i, line := range info.Lines {
		is.Equal(line.Rank, i+1)
		is.True(!seen[line.Move])
		seen[line.Move] = true
		is.Equal(line.PV[0], line.Move)
		if i > 0 {
			is.True(line.Value <= info.Lines[i-1].Value)
		}
	}
	is.Equal(info.Lines[0].Move, info.BestMove())
}

func TestNodeLimit(t *testing.T) {
	is := is.New(t)
	var e = newTestEngine(1)
	var info = searchFEN(t, e, InitialPositionFen, LimitsType{Nodes: 20000})
	is.True(info.BestMove() != MoveEmpty)
	is.True(info.Nodes < 20000+2*nodesPerFlush)
}

func TestMoveTime(t *testing.T) {
	is := is.New(t)
	var e = newTestEngine(2)
	var start = time.Now()
	var info = searchFEN(t, e, InitialPositionFen, LimitsType{MoveTime: 100})
	is.True(time.Since(start) < 2*time.Second)
	is.True(info.BestMove() != MoveEmpty)
}

func TestPonderHit(t *testing.T) {
	is := is.New(t)
	var e = newTestEngine(1)
	var p, _ = NewPositionFromFEN(InitialPositionFen)
	var done = make(chan SearchInfo)
	go func() {
		info, _ := e.Search(context.Background(), SearchParams{
			Positions: []Position{p},
			Limits:    LimitsType{Ponder: true, MoveTime: 50},
		})
		done <- info
	}()

	select {
	case <-done:
		t.Fatal("ponder search returned before ponderhit")
	case <-time.After(200 * time.Millisecond):
	}
	e.PonderHit()
	select {
	case info := <-done:
		is.True(info.BestMove() != MoveEmpty)
	case <-time.After(5 * time.Second):
		t.Fatal("search did not stop after ponderhit")
	}
}

// countingEvaluator checks that the search balances the incremental hooks.
type countingEvaluator struct {
	*psqt.EvaluationService
	depth      int
	minDepth   int
	makes      int
	unmakes    int
	nullMakes  int
	nullUnmake int
}

func (c *countingEvaluator) Init(p *Position) {
	c.depth = 0
	c.EvaluationService.Init(p)
}

func (c *countingEvaluator) MakeMove(p *Position, m Move) {
	c.makes++
	c.depth++
	c.EvaluationService.MakeMove(p, m)
}

func (c *countingEvaluator) UnmakeMove() {
	c.unmakes++
	c.depth--
	c.minDepth = Min(c.minDepth, c.depth)
	c.EvaluationService.UnmakeMove()
}

func (c *countingEvaluator) MakeNullMove(p *Position) {
	c.nullMakes++
	c.depth++
	c.EvaluationService.MakeNullMove(p)
}

func (c *countingEvaluator) UnmakeNullMove() {
	c.nullUnmake++
	c.depth--
	c.minDepth = Min(c.minDepth, c.depth)
	c.EvaluationService.UnmakeNullMove()
}

func TestEvaluatorHooksBalanced(t *testing.T) {
	is := is.New(t)
	var mu sync.Mutex
	var evaluators []*countingEvaluator
	var e = NewEngine(func() interface{} {
		mu.Lock()
		defer mu.Unlock()
		var c = &countingEvaluator{EvaluationService: psqt.NewEvaluationService()}
		evaluators = append(evaluators, c)
		return c
	}, zerolog.Nop())
	e.Options.Hash = 4
	e.Options.Threads = 2

	const fen = "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1"
	searchFEN(t, e, fen, LimitsType{Depth: 6})
	// a stopped search must unwind through the hooks as well
	searchFEN(t, e, fen, LimitsType{Nodes: 30000})

	is.Equal(len(evaluators), 2)
	for _, c := range evaluators {
		is.True(c.makes > 0)
		is.Equal(c.makes, c.unmakes)
		is.Equal(c.nullMakes, c.nullUnmake)
		is.Equal(c.depth, 0)
		is.True(c.minDepth >= 0)
	}
}

// panickingEvaluator fails at Init, which every root iteration calls, so a
// worker fails even when the shared table answers all of its nodes.
type panickingEvaluator struct {
	EvaluatorAdapter
}

func (p *panickingEvaluator) Init(pos *Position) {
	panic("evaluator failure")
}

func TestHelperPanicIsDropped(t *testing.T) {
	is := is.New(t)
	var built = 0
	var e = NewEngine(func() interface{} {
		built++
		if built == 2 {
			return &panickingEvaluator{}
		}
		return material.NewEvaluationService()
	}, zerolog.Nop())
	e.Options.Hash = 4
	e.Options.Threads = 2
	var info = searchFEN(t, e, InitialPositionFen, LimitsType{Depth: 4})
	is.Equal(info.Worker, 0)
	is.Equal(info.Depth, 4)
}

func TestPrimaryPanicFailsSearch(t *testing.T) {
	is := is.New(t)
	var built = 0
	var e = NewEngine(func() interface{} {
		built++
		if built == 1 {
			return &panickingEvaluator{}
		}
		return material.NewEvaluationService()
	}, zerolog.Nop())
	e.Options.Hash = 4
	e.Options.Threads = 2
	var p, _ = NewPositionFromFEN(InitialPositionFen)
	_, err := e.Search(context.Background(), SearchParams{
		Positions: []Position{p},
		Limits:    LimitsType{Depth: 4},
	})
	is.True(errors.Is(err, ErrPrimaryWorker))
}

func TestRepetitionIsDraw(t *testing.T) {
	is := is.New(t)
	var e = newTestEngine(1)
	var p, _ = NewPositionFromFEN(InitialPositionFen)
	var positions = []Position{p}
	for _, lan := range []string{"g1f3", "g8f6", "f3g1", "f6g8", "g1f3", "g8f6", "f3g1", "f6g8"} {
		var child, ok = positions[len(positions)-1].MakeMoveLAN(lan)
		is.True(ok)
		positions = append(positions, child)
	}
	var keys = getHistoryKeys(positions)
	is.Equal(keys[p.Key], 3)
	info, err := e.Search(context.Background(), SearchParams{
		Positions: positions,
		Limits:    LimitsType{Depth: 3},
	})
	is.NoErr(err)
	is.True(info.BestMove() != MoveEmpty)
}

func TestProfiles(t *testing.T) {
	is := is.New(t)
	for _, profile := range []string{ProfileDefault, ProfileClassic, ProfileMinimal} {
		var e = newTestEngine(1)
		is.NoErr(e.Options.ApplyProfile(profile))
		var info = searchFEN(t, e, "6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1", LimitsType{Depth: 3})
		var ply, _ = MatePly(info.Value)
		is.Equal(ply, 1)
	}
	var o = NewOptions()
	is.True(o.ApplyProfile("bogus") != nil)
	is.Equal(o.Profile, ProfileDefault)
}
