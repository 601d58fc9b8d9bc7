package eval

import (
	. "github.com/ChizhovVadim/CounterSearch/pkg/common"
)

var pieceValues = [PIECE_NB]int{Pawn: 100, Knight: 400, Bishop: 400, Rook: 600, Queen: 1200}

// EvaluationService counts material only. Search tests use it because
// its scores are easy to predict.
type EvaluationService struct{}

func NewEvaluationService() *EvaluationService {
	return &EvaluationService{}
}

func (e *EvaluationService) Evaluate(p *Position) int {
	var eval = 0
	for piece := Pawn; piece <= Queen; piece++ {
		var bb = pieceBoard(p, piece)
		eval += pieceValues[piece] * (PopCount(bb&p.White) - PopCount(bb&p.Black))
	}
	if !p.WhiteMove {
		eval = -eval
	}
	return eval
}

func pieceBoard(p *Position, piece int) uint64 {
	switch piece {
	case Pawn:
		return p.Pawns
	case Knight:
		return p.Knights
	case Bishop:
		return p.Bishops
	case Rook:
		return p.Rooks
	case Queen:
		return p.Queens
	}
	return p.Kings
}
