package eval

import (
	. "github.com/ChizhovVadim/CounterSearch/pkg/common"
)

const (
	minorPhase = 4
	rookPhase  = 6
	queenPhase = 12
	totalPhase = 2 * (4*minorPhase + 2*rookPhase + queenPhase)

	tempo = 10

	maxHeight = 256
)

var phaseValues = [PIECE_NB]int{Knight: minorPhase, Bishop: minorPhase, Rook: rookPhase, Queen: queenPhase}

// PeSTO material
var (
	materialMiddle = [PIECE_NB]int{Pawn: 82, Knight: 337, Bishop: 365, Rook: 477, Queen: 1025}
	materialEnd    = [PIECE_NB]int{Pawn: 94, Knight: 281, Bishop: 297, Rook: 512, Queen: 936}
)

// tables hold white-relative middle and end game values per piece and
// square, black entries are negated and mirrored.
var tables [2][PIECE_NB][64]struct{ mg, eg int }

type accumulator struct {
	mg, eg int
	phase  int
}

// EvaluationService is a tapered piece-square evaluator. The search feeds
// it every move, so the sums are updated per move instead of recomputed.
type EvaluationService struct {
	stack   [maxHeight]accumulator
	current int
}

func NewEvaluationService() *EvaluationService {
	return &EvaluationService{}
}

func (e *EvaluationService) Init(p *Position) {
	var acc accumulator
	for sq := 0; sq < 64; sq++ {
		var piece, white = p.GetPieceTypeAndSide(sq)
		if piece == Empty {
			continue
		}
		acc.add(piece, white, sq)
	}
	e.current = 0
	e.stack[0] = acc
}

func (acc *accumulator) add(piece int, white bool, sq int) {
	var v = &tables[sideIndex(white)][piece][sq]
	acc.mg += v.mg
	acc.eg += v.eg
	acc.phase += phaseValues[piece]
}

func (acc *accumulator) remove(piece int, white bool, sq int) {
	var v = &tables[sideIndex(white)][piece][sq]
	acc.mg -= v.mg
	acc.eg -= v.eg
	acc.phase -= phaseValues[piece]
}

// MakeMove is called with the position before m.
func (e *EvaluationService) MakeMove(p *Position, m Move) {
	var acc = e.stack[e.current]
	var from, to = m.From(), m.To()
	var piece = m.MovingPiece()
	var us = p.WhiteMove

	acc.remove(piece, us, from)
	if captured := m.CapturedPiece(); captured != Empty {
		var capSq = to
		if piece == Pawn && to == p.EpSquare {
			if us {
				capSq = to - 8
			} else {
				capSq = to + 8
			}
		}
		acc.remove(captured, !us, capSq)
	}
	if promotion := m.Promotion(); promotion != Empty {
		piece = promotion
	}
	acc.add(piece, us, to)

	if piece == King && AbsDelta(from, to) == 2 {
		var rookFrom, rookTo int
		switch to {
		case SquareG1:
			rookFrom, rookTo = SquareH1, SquareF1
		case SquareC1:
			rookFrom, rookTo = SquareA1, SquareD1
		case SquareG8:
			rookFrom, rookTo = SquareH8, SquareF8
		default:
			rookFrom, rookTo = SquareA8, SquareD8
		}
		acc.remove(Rook, us, rookFrom)
		acc.add(Rook, us, rookTo)
	}

	e.current++
	e.stack[e.current] = acc
}

func (e *EvaluationService) UnmakeMove() {
	e.current--
}

func (e *EvaluationService) MakeNullMove(p *Position) {
	e.stack[e.current+1] = e.stack[e.current]
	e.current++
}

func (e *EvaluationService) UnmakeNullMove() {
	e.current--
}

func (e *EvaluationService) EvaluateQuick(p *Position) int {
	var acc = &e.stack[e.current]
	var phase = Min(acc.phase, totalPhase)
	var result = (acc.mg*phase + acc.eg*(totalPhase-phase)) / totalPhase
	result = result * (200 - p.Rule50) / 200
	if !p.WhiteMove {
		result = -result
	}
	return result + tempo
}

func (e *EvaluationService) Evaluate(p *Position) int {
	e.Init(p)
	return e.EvaluateQuick(p)
}

func sideIndex(white bool) int {
	if white {
		return SideWhite
	}
	return SideBlack
}

// centerDistance is 0 for the four central squares and 3 on the rim.
func centerDistance(sq int) int {
	return Max(AbsDelta(2*File(sq), 7), AbsDelta(2*Rank(sq), 7)) / 2
}

func positional(piece, sq int) (mg, eg int) {
	var rank = Rank(sq)
	var d = centerDistance(sq)
	switch piece {
	case Pawn:
		var centre = 0
		if f := File(sq); f == FileD || f == FileE {
			centre = 10
		}
		return 5*(rank-1) + centre, 12 * (rank - 1)
	case Knight:
		return -12 * d, -10 * d
	case Bishop:
		return -6 * d, -5 * d
	case Rook:
		if rank == Rank7 {
			return 20, 10
		}
		return 0, 0
	case Queen:
		return -3 * d, -5 * d
	case King:
		return 20 - 25*Min(rank, 2), -15 * d
	}
	return 0, 0
}

func init() {
	for piece := Pawn; piece <= King; piece++ {
		for sq := 0; sq < 64; sq++ {
			var mg, eg = positional(piece, sq)
			mg += materialMiddle[piece]
			eg += materialEnd[piece]
			tables[SideWhite][piece][sq] = struct{ mg, eg int }{mg, eg}
			tables[SideBlack][piece][FlipSquare(sq)] = struct{ mg, eg int }{-mg, -eg}
		}
	}
}
