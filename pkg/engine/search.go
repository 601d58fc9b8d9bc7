package engine

import (
	. "github.com/ChizhovVadim/CounterSearch/pkg/common"
	"github.com/ChizhovVadim/CounterSearch/pkg/transtable"
)

const (
	pawnValue     = 100
	razorMargin   = 250
	iidReduction  = 4
	nodesPerFlush = 1 << 10
	// every maintenanceFlushes flushes the primary samples the table
	// occupancy and runs a GC slice when it is due
	maintenanceFlushes = 16
	gcSliceSlots       = 4096
)

// ttProbe is the decoded hash entry of a node, with a validated move.
type ttProbe struct {
	hit   bool
	depth int
	value int
	eval  int
	bound transtable.Bound
	move  Move
}

func (t *thread) probe(position *Position, height int) ttProbe {
	var entry, ok = t.engine.transTable.Probe(position.Key)
	if !ok {
		return ttProbe{eval: transtable.EvalNone}
	}
	return ttProbe{
		hit:   true,
		depth: entry.Depth,
		value: valueFromTT(int(entry.Value), height),
		eval:  int(entry.Eval),
		bound: entry.Bound,
		move:  position.UnpackMove(entry.Move),
	}
}

func (t *thread) stopped() bool {
	return t.engine.stop.Load()
}

// alphaBeta is the main search. A stopped search returns 0 through every
// frame; callers discard it after checking stopped.
func (t *thread) alphaBeta(alpha, beta, depth, height int, skipMove Move) int {
	if depth <= 0 {
		return t.quiescence(alpha, beta, height, 0)
	}
	if t.stopped() {
		return 0
	}
	t.stack[height].pv.clear()
	t.selDepth = Max(t.selDepth, height)

	var rootNode = height == 0
	var pvNode = beta != alpha+1
	var position = &t.stack[height].position
	var isCheck = position.IsCheck()
	var ttMoveIsSingular = false

	if !rootNode {
		if height >= maxHeight {
			return t.evaluator.EvaluateQuick(position)
		}
		if t.isRepeat(height) {
			return valueDraw
		}
		if isDraw(position) {
			return valueDraw
		}
		// mate distance pruning
		if winIn(height+1) <= alpha {
			return alpha
		}
		if lossIn(height+2) >= beta && !isCheck {
			return beta
		}
	}

	var tt ttProbe
	if skipMove == MoveEmpty {
		tt = t.probe(position, height)
	} else {
		tt.eval = transtable.EvalNone
	}
	if tt.hit && tt.depth >= depth && !rootNode && position.LastMove != MoveEmpty {
		if !pvNode {
			if tt.value >= beta && tt.bound&transtable.BoundLower != 0 {
				if tt.move != MoveEmpty && !tt.move.IsTactical() {
					t.updateKiller(tt.move, height)
				}
				t.ttCutoffs++
				return tt.value
			}
			if tt.value <= alpha && tt.bound&transtable.BoundUpper != 0 {
				t.ttCutoffs++
				return tt.value
			}
		} else if tt.bound == transtable.BoundExact && tt.value > alpha && tt.value < beta {
			t.ttCutoffs++
			return tt.value
		}
	}

	var staticEval int
	if tt.eval != transtable.EvalNone {
		staticEval = tt.eval
	} else {
		staticEval = t.evaluator.EvaluateQuick(position)
	}
	t.stack[height].staticEval = staticEval
	var improving = height < 2 || staticEval > t.stack[height-2].staticEval

	var options = &t.engine.Options
	if height+2 <= maxHeight {
		t.stack[height+2].killer1 = MoveEmpty
		t.stack[height+2].killer2 = MoveEmpty
	}
	var child = &t.stack[height+1].position

	if !rootNode && skipMove == MoveEmpty {

		// razoring
		if options.Razoring && !pvNode && !isCheck && depth <= 2 &&
			staticEval+razorMargin*depth <= alpha {
			var score = t.quiescence(alpha, alpha+1, height, 0)
			if t.stopped() {
				return 0
			}
			if score <= alpha {
				return score
			}
		}

		// reverse futility pruning
		if options.ReverseFutility && !pvNode && depth <= 8 && !isCheck {
			var score = staticEval - pawnValue*depth
			if score >= beta {
				return staticEval
			}
		}

		// null-move pruning
		if options.NullMovePruning && !pvNode && depth >= 2 && !isCheck &&
			position.LastMove != MoveEmpty &&
			(height <= 1 || t.stack[height-1].position.LastMove != MoveEmpty) &&
			beta < valueWin &&
			!(tt.hit && tt.value < beta && tt.bound&transtable.BoundUpper != 0) &&
			!isLateEndgame(position, position.WhiteMove) &&
			staticEval >= beta {
			var reduction = 4 + depth/6 + Min(2, (staticEval-beta)/200)
			t.makeNullMove(height)
			var score = -t.alphaBeta(-beta, -(beta - 1), depth-reduction, height+1, MoveEmpty)
			t.unmakeNullMove()
			if t.stopped() {
				return 0
			}
			if score >= beta {
				if score >= valueWin {
					score = beta
				}
				return score
			}
		}

		var probcutBeta = Min(valueWin-1, beta+150)
		if options.Probcut && !pvNode && depth >= 5 && !isCheck &&
			beta > valueLoss && beta < valueWin &&
			!(tt.hit && tt.depth >= depth-4 && tt.value < probcutBeta && tt.bound&transtable.BoundUpper != 0) {

			var mp = t.initQuiescencePicker(height, tt.move, false)
			for {
				var move = mp.Next()
				if move == MoveEmpty {
					break
				}
				if !seeGEZero(position, move) {
					continue
				}
				if !t.makeMove(move, height) {
					continue
				}
				var score = -t.quiescence(-probcutBeta, -probcutBeta+1, height+1, 0)
				if score >= probcutBeta {
					score = -t.alphaBeta(-probcutBeta, -probcutBeta+1, depth-4, height+1, MoveEmpty)
				}
				t.unmakeMove()
				if t.stopped() {
					return 0
				}
				if score >= probcutBeta {
					return score
				}
			}
		}

		// singular extension
		if options.SingularExt && depth >= 8 &&
			tt.hit && tt.move != MoveEmpty &&
			tt.bound&transtable.BoundLower != 0 && tt.depth >= depth-3 &&
			tt.value > valueLoss && tt.value < valueWin {
			var singularBeta = Max(-valueInfinity, tt.value-depth)
			var score = t.alphaBeta(singularBeta-1, singularBeta, depth/2, height, tt.move)
			if t.stopped() {
				return 0
			}
			ttMoveIsSingular = score < singularBeta
		}
	}

	// internal iterative deepening
	if options.IID && pvNode && !rootNode && depth >= 6 && tt.move == MoveEmpty && skipMove == MoveEmpty {
		t.alphaBeta(alpha, beta, depth-iidReduction, height, MoveEmpty)
		if t.stopped() {
			return 0
		}
		if entry, ok := t.engine.transTable.Probe(position.Key); ok {
			tt.move = position.UnpackMove(entry.Move)
		}
		t.stack[height].pv.clear()
	}

	var historyContext = t.getHistoryContext(height)

	var rootPV Move
	if rootNode {
		rootPV = t.rootMoves[t.pvIdx].move
	}
	var mp = t.initPicker(height, tt.move, rootPV, &historyContext)
	var killer1 = t.stack[height].killer1
	var killer2 = t.stack[height].killer2

	var movesSearched = 0
	var hasLegalMove = false
	var quietsSeen = 0

	var quietsSearched = t.stack[height].quietsSearched[:0]
	var bestMove Move

	var lmp = 5 + (depth-1)*depth
	if !improving {
		lmp /= 2
	}

	var best = -valueInfinity
	var oldAlpha = alpha

	for {
		var move = mp.Next()
		if move == MoveEmpty {
			break
		}
		if move == skipMove {
			continue
		}
		if rootNode && t.excludedAtRoot(move) {
			continue
		}
		var isNoisy = move.IsTactical()
		if !isNoisy {
			quietsSeen++
		}

		if depth <= 8 && best > valueLoss && hasLegalMove && !isCheck && !rootNode {
			var isKiller = move == killer1 || move == killer2

			// late-move pruning
			if options.Lmp && !isNoisy && !isKiller && quietsSeen > lmp {
				continue
			}

			// futility pruning
			if options.Futility && !isNoisy && !isKiller &&
				staticEval+100+pawnValue*depth <= alpha {
				continue
			}

			// SEE pruning
			if options.See {
				var seeMargin int
				if isNoisy {
					seeMargin = Max(depth, (staticEval+pawnValue-alpha)/pawnValue)
				} else {
					seeMargin = depth / 2
				}
				if !SeeGE(position, move, -seeMargin) {
					continue
				}
			}
		}

		if !t.makeMove(move, height) {
			continue
		}
		hasLegalMove = true

		movesSearched++

		var extension, reduction int

		if options.CheckExt && child.IsCheck() && depth >= 3 {
			extension = 1
		}
		if move == tt.move && ttMoveIsSingular {
			extension = 1
		}

		if options.LateMoveReduction && depth >= 3 && movesSearched > 1 && !isNoisy {
			reduction = options.Lmr(depth, movesSearched)
			if move == killer1 || move == killer2 {
				reduction--
			}
			if !isCheck {
				var history = historyContext.ReadTotal(move)
				reduction -= Max(-2, Min(2, history/5000))

				if !improving {
					reduction++
				}
			}
			if pvNode {
				reduction -= 2
			}
			if isCheck || child.IsCheck() {
				reduction--
			}
			reduction = Max(reduction, 0) + extension
			reduction = Max(0, Min(depth-2, reduction))
		}

		if !isNoisy {
			quietsSearched = append(quietsSearched, move)
		}

		var newDepth = depth - 1 + extension

		var score = alpha + 1
		// LMR
		if reduction > 0 {
			score = -t.alphaBeta(-(alpha + 1), -alpha, newDepth-reduction, height+1, MoveEmpty)
		}
		// PVS
		if score > alpha && pvNode && movesSearched > 1 && newDepth > 0 {
			score = -t.alphaBeta(-(alpha + 1), -alpha, newDepth, height+1, MoveEmpty)
		}
		// full search
		if score > alpha {
			score = -t.alphaBeta(-beta, -alpha, newDepth, height+1, MoveEmpty)
		}

		t.unmakeMove()
		if t.stopped() {
			return 0
		}

		if rootNode {
			t.updateRootMove(move, score, alpha, movesSearched == 1)
		}

		if score > best {
			best = score
			bestMove = move
		}
		if score > alpha {
			alpha = score
			if pvNode && score < beta {
				t.stack[height].pv.assign(move, &t.stack[height+1].pv)
			}
			if alpha >= beta {
				break
			}
		}
	}

	if !hasLegalMove {
		if !isCheck && skipMove == MoveEmpty {
			return valueDraw
		}
		return lossIn(height)
	}

	if alpha > oldAlpha && bestMove != MoveEmpty && !bestMove.IsTactical() {
		historyContext.Update(quietsSearched, bestMove, depth)
		t.updateKiller(bestMove, height)
	}

	if skipMove == MoveEmpty && !(rootNode && t.pvIdx > 0) {
		var bound transtable.Bound
		if best > oldAlpha {
			bound |= transtable.BoundLower
		}
		if best < beta {
			bound |= transtable.BoundUpper
		}
		if !(rootNode && bound == transtable.BoundUpper) {
			t.engine.transTable.Store(position.Key, bestMove.Pack(), valueToTT(best, height),
				staticEval, depth, bound, pvNode)
		}
	}

	return best
}

// quiescence searches captures (and quiet checks on its first ply) until
// the position is quiet. qdepth is 0 on the first ply and decreases.
func (t *thread) quiescence(alpha, beta, height, qdepth int) int {
	if t.stopped() {
		return 0
	}
	t.stack[height].pv.clear()
	t.selDepth = Max(t.selDepth, height)
	var position = &t.stack[height].position
	if isDraw(position) {
		return valueDraw
	}
	if height >= maxHeight {
		return t.evaluator.EvaluateQuick(position)
	}
	if t.isRepeat(height) {
		return valueDraw
	}

	var ttDepth = -1
	if qdepth == 0 {
		ttDepth = 0
	}
	var tt = t.probe(position, height)
	if tt.hit && tt.depth >= ttDepth {
		if tt.bound == transtable.BoundExact ||
			tt.bound == transtable.BoundLower && tt.value >= beta ||
			tt.bound == transtable.BoundUpper && tt.value <= alpha {
			t.ttCutoffs++
			return tt.value
		}
	}

	var pvNode = beta != alpha+1
	var oldAlpha = alpha
	var isCheck = position.IsCheck()
	var best = -valueInfinity
	var eval = tt.eval
	if !isCheck {
		if eval == transtable.EvalNone {
			eval = t.evaluator.EvaluateQuick(position)
		}
		best = eval
		if eval > alpha {
			alpha = eval
			if alpha >= beta {
				if !tt.hit {
					t.engine.transTable.Store(position.Key, 0, valueToTT(eval, height),
						eval, ttDepth, transtable.BoundLower, false)
				}
				return eval
			}
		}
	} else {
		eval = transtable.EvalNone
	}

	// deeper plies keep only clearly winning exchanges
	var seeMargin = Max(0, -qdepth-1)

	var mp = t.initQuiescencePicker(height, tt.move, qdepth == 0)
	var hasLegalMove = false
	var bestMove Move
	for {
		var move = mp.Next()
		if move == MoveEmpty {
			break
		}
		if !isCheck && move.Promotion() == Empty {
			if !move.IsTactical() {
				if !seeGEZero(position, move) {
					continue
				}
			} else if !SeeGE(position, move, seeMargin) && !position.GivesCheck(move) {
				continue
			}
		}
		if !t.makeMove(move, height) {
			continue
		}
		t.qnodes++
		hasLegalMove = true
		var score = -t.quiescence(-beta, -alpha, height+1, qdepth-1)
		t.unmakeMove()
		if t.stopped() {
			return 0
		}
		if score > best {
			best = score
			bestMove = move
		}
		if score > alpha {
			alpha = score
			if pvNode && score < beta {
				t.stack[height].pv.assign(move, &t.stack[height+1].pv)
			}
			if alpha >= beta {
				break
			}
		}
	}
	if isCheck && !hasLegalMove {
		return lossIn(height)
	}

	var bound transtable.Bound
	if best > oldAlpha {
		bound |= transtable.BoundLower
	}
	if best < beta {
		bound |= transtable.BoundUpper
	}
	t.engine.transTable.Store(position.Key, bestMove.Pack(), valueToTT(best, height),
		eval, ttDepth, bound, false)
	return best
}

func (t *thread) isRepeat(height int) bool {
	var p = &t.stack[height].position

	if p.Rule50 == 0 || p.LastMove == MoveEmpty {
		return false
	}
	for i := height - 1; i >= 0; i-- {
		var temp = &t.stack[i].position
		if temp.Key == p.Key {
			return true
		}
		if temp.Rule50 == 0 || temp.LastMove == MoveEmpty {
			return false
		}
	}

	return t.engine.historyKeys[p.Key] >= 2
}

func (t *thread) makeMove(move Move, height int) bool {
	var pos = &t.stack[height].position
	var child = &t.stack[height+1].position
	if !pos.MakeMove(move, child) {
		return false
	}
	t.engine.transTable.Prefetch(child.Key)
	t.evaluator.MakeMove(pos, move)
	t.incNodes()
	return true
}

func (t *thread) unmakeMove() {
	t.evaluator.UnmakeMove()
}

func (t *thread) makeNullMove(height int) {
	var pos = &t.stack[height].position
	pos.MakeNullMove(&t.stack[height+1].position)
	t.evaluator.MakeNullMove(pos)
	t.incNodes()
}

func (t *thread) unmakeNullMove() {
	t.evaluator.UnmakeNullMove()
}

func (t *thread) incNodes() {
	t.nodes++
	if t.nodes%nodesPerFlush == 0 {
		t.flushNodes()
	}
}

// flushNodes publishes the local counters and checks the limits. Only the
// primary looks at the clock and maintains the table.
func (t *thread) flushNodes() {
	var e = t.engine
	var total = e.nodes.Add(t.nodes - t.flushedNodes)
	e.qnodes.Add(t.qnodes - t.flushedQ)
	t.flushedNodes = t.nodes
	t.flushedQ = t.qnodes

	var tm = e.timeManager.Load()
	if tm == nil {
		return
	}
	tm.OnNodesChanged(total)
	if t.id != 0 {
		return
	}
	tm.checkDeadline()
	t.flushes++
	if t.flushes%maintenanceFlushes == 0 {
		var tt = e.transTable
		if tt.GCPending() {
			tt.PerformIncrementalGC(gcSliceSlots)
		}
		tt.RefreshOccupancy()
	}
}
