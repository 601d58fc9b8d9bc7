package engine

import (
	. "github.com/ChizhovVadim/CounterSearch/pkg/common"
)

type pickerStage int

const (
	stageRootPV pickerStage = iota
	stageTTMove
	stageGenerateCaptures
	stageGoodCaptures
	stageKillers
	stageGenerateQuiets
	stageQuiets
	stageBadCaptures
	stageEnd
)

const (
	captureKeyBase = 1 << 20
	jitterRange    = 512
)

// movePicker hands out the moves of one node in stages, generating lazily:
// a cutoff on the hash move never pays for move generation.
type movePicker struct {
	position    *Position
	buffer      []OrderedMove
	badCaptures []Move
	history     *historyContext
	evasions    historyContext
	jitter      func(n int) int

	stage      pickerStage
	quiescence bool
	genChecks  bool

	rootMove Move
	ttMove   Move
	killers  [2]Move

	moves      []OrderedMove
	index      int
	badCount   int
	badIndex   int
	killerNext int
}

// initPicker prepares the main-search picker at height. rootMove is only
// used at the root.
func (t *thread) initPicker(height int, ttMove, rootMove Move, history *historyContext) *movePicker {
	var s = &t.stack[height]
	var mp = &s.picker
	*mp = movePicker{
		position:    &s.position,
		buffer:      s.moveList[:],
		badCaptures: s.badCaptures[:],
		history:     history,
		stage:       stageRootPV,
		rootMove:    rootMove,
		ttMove:      ttMove,
		killers:     [2]Move{s.killer1, s.killer2},
	}
	if height == 0 && t.rng != nil {
		mp.jitter = t.rng.Intn
	}
	if mp.rootMove == ttMove {
		mp.rootMove = MoveEmpty
	}
	return mp
}

// initQuiescencePicker streams captures only. When in check it falls back to
// all evasions without killers; genChecks adds quiet checking moves.
func (t *thread) initQuiescencePicker(height int, ttMove Move, genChecks bool) *movePicker {
	var s = &t.stack[height]
	var mp = &s.picker
	var inCheck = s.position.IsCheck()
	*mp = movePicker{
		position:    &s.position,
		buffer:      s.moveList[:],
		badCaptures: s.badCaptures[:],
		stage:       stageTTMove,
		quiescence:  !inCheck,
		genChecks:   genChecks && !inCheck,
		ttMove:      ttMove,
	}
	if inCheck {
		mp.evasions = historyContext{tables: &t.history, sideToMove: s.position.WhiteMove, cont1: -1, cont2: -1}
		mp.history = &mp.evasions
	} else if ttMove != MoveEmpty && !ttMove.IsTactical() {
		mp.ttMove = MoveEmpty
	}
	return mp
}

func (mp *movePicker) isSpecial(m Move) bool {
	return m == mp.ttMove || m == mp.rootMove
}

// Next returns MoveEmpty when the node is exhausted.
func (mp *movePicker) Next() Move {
	for {
		switch mp.stage {
		case stageRootPV:
			mp.stage = stageTTMove
			if mp.rootMove != MoveEmpty && mp.position.IsPseudoLegal(mp.rootMove) {
				return mp.rootMove
			}
			mp.rootMove = MoveEmpty

		case stageTTMove:
			mp.stage = stageGenerateCaptures
			if mp.ttMove != MoveEmpty && mp.position.IsPseudoLegal(mp.ttMove) {
				return mp.ttMove
			}
			mp.ttMove = MoveEmpty

		case stageGenerateCaptures:
			mp.moves = mp.position.GenerateCaptures(mp.buffer, mp.genChecks)
			for i := range mp.moves {
				var m = mp.moves[i].Move
				if m.IsTactical() {
					mp.moves[i].Key = int32(captureKeyBase + mvvlva(m))
				} else {
					mp.moves[i].Key = 0
				}
			}
			mp.index = 0
			mp.stage = stageGoodCaptures

		case stageGoodCaptures:
			for mp.index < len(mp.moves) {
				var m = pickBest(mp.moves, mp.index)
				mp.index++
				if mp.isSpecial(m) {
					continue
				}
				if !mp.quiescence && !seeGEZero(mp.position, m) {
					mp.badCaptures[mp.badCount] = m
					mp.badCount++
					continue
				}
				return m
			}
			if mp.quiescence {
				mp.stage = stageEnd
			} else {
				mp.stage = stageKillers
			}

		case stageKillers:
			for mp.killerNext < len(mp.killers) {
				var m = mp.killers[mp.killerNext]
				mp.killerNext++
				if m == MoveEmpty || mp.isSpecial(m) || m.IsTactical() ||
					(mp.killerNext == 2 && m == mp.killers[0]) {
					continue
				}
				if mp.position.IsPseudoLegal(m) {
					return m
				}
			}
			mp.stage = stageGenerateQuiets

		case stageGenerateQuiets:
			var all = mp.position.GenerateMoves(mp.buffer)
			var count = 0
			for i := range all {
				var m = all[i].Move
				if m.IsTactical() || mp.isSpecial(m) || m == mp.killers[0] || m == mp.killers[1] {
					continue
				}
				var key = mp.history.ReadTotal(m)
				if mp.jitter != nil {
					key += mp.rootJitter(m)
				}
				mp.buffer[count] = OrderedMove{Move: m, Key: int32(key)}
				count++
			}
			mp.moves = mp.buffer[:count]
			mp.index = 0
			mp.stage = stageQuiets

		case stageQuiets:
			if mp.index < len(mp.moves) {
				var m = pickBest(mp.moves, mp.index)
				mp.index++
				return m
			}
			mp.stage = stageBadCaptures

		case stageBadCaptures:
			if mp.badIndex < mp.badCount {
				var m = mp.badCaptures[mp.badIndex]
				mp.badIndex++
				return m
			}
			mp.stage = stageEnd

		default:
			return MoveEmpty
		}
	}
}

// rootJitter diversifies helpers on quiet moves that do not give check.
func (mp *movePicker) rootJitter(m Move) int {
	if mp.position.GivesCheck(m) {
		return 0
	}
	return mp.jitter(jitterRange)
}

// pickBest moves the highest keyed move of ml[index:] to index.
func pickBest(ml []OrderedMove, index int) Move {
	var best = index
	for i := index + 1; i < len(ml); i++ {
		if ml[i].Key > ml[best].Key {
			best = i
		}
	}
	if best != index {
		ml[index], ml[best] = ml[best], ml[index]
	}
	return ml[index].Move
}

var sortPieceValues = [...]int{Empty: 0, Pawn: 1, Knight: 2, Bishop: 3, Rook: 4, Queen: 5, King: 6}

func mvvlva(move Move) int {
	return 8*(sortPieceValues[move.CapturedPiece()]+
		sortPieceValues[move.Promotion()]) -
		sortPieceValues[move.MovingPiece()]
}
