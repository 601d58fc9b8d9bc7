package engine

import (
	. "github.com/ChizhovVadim/CounterSearch/pkg/common"
)

// in pawns, king is never traded
var pieceValuesSEE = [PIECE_NB]int{Pawn: 1, Knight: 4, Bishop: 4, Rook: 6, Queen: 12, King: 120}

func seeGEZero(p *Position, move Move) bool {
	return SeeGE(p, move, 0)
}

// SeeGE reports whether the exchange started by move on its target square
// gains at least threshold pawns. Swap algorithm as in Ethereal.
func SeeGE(pos *Position, move Move, threshold int) bool {
	var from = move.From()
	var to = move.To()
	var movingPiece = move.MovingPiece()
	var promotionPiece = move.Promotion()

	var nextVictim = movingPiece
	var balance = pieceValuesSEE[move.CapturedPiece()] - threshold
	if promotionPiece != Empty {
		nextVictim = promotionPiece
		balance += pieceValuesSEE[promotionPiece] - pieceValuesSEE[Pawn]
	}
	if balance < 0 {
		return false
	}

	balance -= pieceValuesSEE[nextVictim]
	if balance >= 0 {
		return true
	}

	var occupied = pos.AllPieces()&^SquareMask[from] | SquareMask[to]
	if movingPiece == Pawn && to == pos.EpSquare {
		occupied &^= SquareMask[to+let(pos.WhiteMove, -8, 8)]
	}

	var attackers = pos.AttackersTo(to, occupied) & occupied
	var bishops = pos.Bishops | pos.Queens
	var rooks = pos.Rooks | pos.Queens
	var side = sideToMove(pos) ^ 1

	for {
		var myAttackers = attackers & pos.Colours(side)
		if myAttackers == 0 {
			break
		}

		var attackerType, attackerFrom = leastValuableAttacker(pos, myAttackers)
		occupied &^= SquareMask[attackerFrom]

		// uncover x-rays
		if attackerType == Pawn || attackerType == Bishop || attackerType == Queen {
			attackers |= BishopAttacks(to, occupied) & bishops
		}
		if attackerType == Rook || attackerType == Queen {
			attackers |= RookAttacks(to, occupied) & rooks
		}
		attackers &= occupied

		side ^= 1

		balance = -balance - 1 - pieceValuesSEE[attackerType]
		if balance >= 0 {
			if attackerType == King && attackers&pos.Colours(side) != 0 {
				side ^= 1
			}
			break
		}
	}

	return side != sideToMove(pos)
}

func let(ok bool, yes, no int) int {
	if ok {
		return yes
	}
	return no
}

func sideToMove(p *Position) int {
	if p.WhiteMove {
		return SideWhite
	}
	return SideBlack
}

func leastValuableAttacker(p *Position, attackers uint64) (attacker, from int) {
	for piece := Pawn; piece <= King; piece++ {
		if bb := pieceBitboard(p, piece) & attackers; bb != 0 {
			return piece, FirstOne(bb)
		}
	}
	return Empty, SquareNone
}

func pieceBitboard(p *Position, piece int) uint64 {
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
	case King:
		return p.Kings
	}
	return 0
}
