package engine

import (
	"fmt"

	"github.com/samber/lo"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	. "github.com/ChizhovVadim/CounterSearch/pkg/common"
)

// lazySmp runs all workers over the shared table. Worker 0 reports progress
// and owns the clock; when it is done every helper is stopped and the most
// complete result wins.
func lazySmp(e *Engine, rootMoves []rootMove) (SearchInfo, error) {
	var tm = e.timeManager.Load()
	var maxDepth = maxHeight
	if depth := tm.limits.Depth; depth > 0 {
		maxDepth = Min(depth, maxHeight)
	}

	var g errgroup.Group
	for i := range e.threads {
		var t = &e.threads[i]
		t.rootMoves = slices.Clone(rootMoves)
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					t.result.failed = true
					if t.id == 0 {
						err = fmt.Errorf("%w: %v", ErrPrimaryWorker, r)
						tm.stopSearch()
						return
					}
					e.logger.Error().
						Int("worker", t.id).
						Interface("panic", r).
						Msg("helper search failed, result dropped")
				}
			}()
			t.iterativeDeepening(maxDepth)
			t.flushNodes()
			if t.id == 0 {
				tm.waitRelease()
				tm.stopSearch()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SearchInfo{}, err
	}

	var results = lo.Times(len(e.threads), func(i int) workerResult {
		var t = &e.threads[i]
		var r = t.result
		r.nodes = t.nodes
		r.qnodes = t.qnodes
		r.cutoffs = t.ttCutoffs
		return r
	})
	return e.reduceResults(results), nil
}

// reduceResults picks the deepest completed worker; ties go to seldepth,
// nodes, score and then the lowest worker id.
func (e *Engine) reduceResults(results []workerResult) SearchInfo {
	var totalNodes = lo.SumBy(results, func(r workerResult) int64 { return r.nodes })
	var totalQNodes = lo.SumBy(results, func(r workerResult) int64 { return r.qnodes })
	var totalCutoffs = lo.SumBy(results, func(r workerResult) int64 { return r.cutoffs })
	var completed = lo.Filter(results, func(r workerResult, _ int) bool {
		return !r.failed && r.depth > 0
	})

	var info = SearchInfo{
		Nodes:     totalNodes,
		QNodes:    totalQNodes,
		TTCutoffs: totalCutoffs,
	}
	if len(completed) == 0 {
		var move = e.emergencyMove()
		e.logger.Debug().Str("move", move.String()).Msg("no iteration completed, emergency move")
		info.MainLine = []Move{move}
		return info
	}

	var winner = lo.MaxBy(completed, betterResult)
	info.Worker = winner.id
	info.Depth = winner.depth
	info.SelDepth = lo.MaxBy(completed, func(a, b workerResult) bool {
		return a.selDepth > b.selDepth
	}).selDepth
	info.Value = winner.score
	info.Score = newUciScore(winner.score)
	info.MainLine = winner.lines[0].PV
	info.Lines = winner.lines
	if totalNodes > 0 {
		info.Duplication = float64(totalNodes-winner.nodes) * 100 / float64(totalNodes)
	}
	return info
}

func betterResult(a, b workerResult) bool {
	if a.depth != b.depth {
		return a.depth > b.depth
	}
	if a.selDepth != b.selDepth {
		return a.selDepth > b.selDepth
	}
	if a.nodes != b.nodes {
		return a.nodes > b.nodes
	}
	if a.score != b.score {
		return a.score > b.score
	}
	return a.id < b.id
}

// emergencyMove is used when the budget ran out before depth 1 finished:
// the hash move if it is legal, else the first root move in search order.
func (e *Engine) emergencyMove() Move {
	var t = &e.threads[0]
	var p = &t.stack[0].position
	if entry, ok := e.transTable.Probe(p.Key); ok {
		if m := p.UnpackMove(entry.Move); m != MoveEmpty && findMoveIndex(t.rootMoves, m) >= 0 {
			return m
		}
	}
	return t.rootMoves[0].move
}
