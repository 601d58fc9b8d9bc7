package engine

import (
	"time"

	"github.com/samber/lo"
	"golang.org/x/exp/slices"

	. "github.com/ChizhovVadim/CounterSearch/pkg/common"
)

const (
	aspirationDelta    = 25
	aspirationMaxDelta = 1000
)

// workerResult is what one worker completed before the stop.
type workerResult struct {
	id       int
	failed   bool
	depth    int
	selDepth int
	score    int
	nodes    int64
	qnodes   int64
	cutoffs  int64
	lines    []RootLine
}

// iterativeDeepening runs until the stop flag is raised or the depth limit
// is reached. Only completed iterations reach t.result.
func (t *thread) iterativeDeepening(maxDepth int) {
	var e = t.engine
	var multiPV = Min(e.multiPV, len(t.rootMoves))
	for depth := 1; depth <= maxDepth; depth++ {
		if t.stopped() {
			return
		}
		t.selDepth = 0
		for i := range t.rootMoves {
			t.rootMoves[i].prevScore = t.rootMoves[i].score
		}
		for t.pvIdx = 0; t.pvIdx < multiPV; t.pvIdx++ {
			t.aspirationWindow(depth, t.rootMoves[t.pvIdx].prevScore)
			if t.stopped() {
				return
			}
			sortRootMoves(t.rootMoves[t.pvIdx:])
		}
		sortRootMoves(t.rootMoves[:multiPV])
		t.completeIteration(depth, multiPV)
	}
}

// aspirationWindow searches a narrow window around the previous score from
// depth 5. On a fail only the failing bound is moved, by a delta that
// doubles each time, until the window is open.
func (t *thread) aspirationWindow(depth, prevScore int) int {
	if t.engine.Options.AspirationWindows &&
		depth >= 5 && prevScore > valueLoss && prevScore < valueWin {
		var delta = aspirationDelta
		var alpha = Max(-valueInfinity, prevScore-delta)
		var beta = Min(valueInfinity, prevScore+delta)
		for {
			var score = t.searchRoot(alpha, beta, depth)
			if t.stopped() {
				return score
			}
			if score <= alpha {
				alpha = Max(-valueInfinity, score-delta)
			} else if score >= beta {
				beta = Min(valueInfinity, score+delta)
			} else {
				return score
			}
			// keep the failed line first for the re-search
			sortRootMoves(t.rootMoves[t.pvIdx:])
			delta *= 2
			if delta > aspirationMaxDelta {
				alpha, beta = -valueInfinity, valueInfinity
			}
		}
	}
	return t.searchRoot(-valueInfinity, valueInfinity, depth)
}

func (t *thread) searchRoot(alpha, beta, depth int) int {
	const height = 0
	var p = &t.stack[height].position
	t.evaluator.Init(p)
	return t.alphaBeta(alpha, beta, depth, height, MoveEmpty)
}

func (t *thread) excludedAtRoot(move Move) bool {
	for i := 0; i < t.pvIdx; i++ {
		if t.rootMoves[i].move == move {
			return true
		}
	}
	return false
}

// updateRootMove records the outcome of a root move. Moves that failed
// low get -valueInfinity so that a stable sort keeps the search order.
func (t *thread) updateRootMove(move Move, score, alpha int, first bool) {
	var index = findMoveIndex(t.rootMoves, move)
	if index < 0 {
		return
	}
	var rm = &t.rootMoves[index]
	if first || score > alpha {
		rm.score = score
		rm.selDepth = t.selDepth
		rm.pv = append(rm.pv[:0], move)
		var child = &t.stack[1].pv
		rm.pv = append(rm.pv, child.items[:child.size]...)
	} else {
		rm.score = -valueInfinity
	}
}

func sortRootMoves(ml []rootMove) {
	slices.SortStableFunc(ml, func(a, b rootMove) int {
		return b.score - a.score
	})
}

func (t *thread) completeIteration(depth, multiPV int) {
	var e = t.engine
	var elapsed = time.Since(e.start)
	var nodes = e.nodes.Load() + t.nodes - t.flushedNodes
	var nps int64
	if elapsed > 0 {
		nps = int64(float64(nodes) / elapsed.Seconds())
	}
	var lines = lo.Map(t.rootMoves[:multiPV], func(rm rootMove, i int) RootLine {
		return RootLine{
			Rank:     i + 1,
			Move:     rm.move,
			Score:    newUciScore(rm.score),
			Value:    rm.score,
			Depth:    depth,
			SelDepth: rm.selDepth,
			PV:       t.extendPV(rm.pv, depth),
			Nodes:    nodes,
			Time:     elapsed,
			NPS:      nps,
		}
	})
	t.result = workerResult{
		id:       t.id,
		depth:    depth,
		selDepth: lo.MaxBy(lines, func(a, b RootLine) bool { return a.SelDepth > b.SelDepth }).SelDepth,
		score:    t.rootMoves[0].score,
		lines:    lines,
	}
	if t.id == 0 {
		e.onIterationComplete(t, nodes, elapsed)
	}
}

// extendPV completes a line cut short by hash cutoffs with hash moves,
// replaying each one so that only legal moves are reported.
func (t *thread) extendPV(line []Move, depth int) []Move {
	var result = cloneMoves(line)
	var p = t.stack[0].position
	var child Position
	var seen = map[uint64]bool{p.Key: true}
	for _, m := range result {
		if !p.MakeMove(m, &child) {
			return result
		}
		p = child
		seen[p.Key] = true
	}
	for len(result) < depth && len(result) < maxHeight {
		var entry, ok = t.engine.transTable.Probe(p.Key)
		if !ok {
			break
		}
		var m = p.UnpackMove(entry.Move)
		if m == MoveEmpty || !p.MakeMove(m, &child) || seen[child.Key] {
			break
		}
		result = append(result, m)
		p = child
		seen[p.Key] = true
	}
	return result
}

func (e *Engine) onIterationComplete(t *thread, nodes int64, elapsed time.Duration) {
	var result = &t.result
	var tm = e.timeManager.Load()
	if tm != nil {
		tm.OnIterationComplete(result.depth, result.score)
	}
	if e.progress != nil && nodes >= int64(e.Options.ProgressMinNodes) {
		var line = result.lines[0]
		e.progress(SearchInfo{
			Score:    line.Score,
			Value:    line.Value,
			Depth:    result.depth,
			SelDepth: result.selDepth,
			Nodes:    nodes,
			Time:     elapsed,
			HashFull: e.transTable.HashFull(),
			Worker:   t.id,
			MainLine: line.PV,
			Lines:    result.lines,
		})
	}
}
