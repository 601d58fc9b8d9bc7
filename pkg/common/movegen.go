package common

const (
	f1g1Mask = (uint64(1) << SquareF1) | (uint64(1) << SquareG1)
	b1d1Mask = (uint64(1) << SquareB1) | (uint64(1) << SquareC1) | (uint64(1) << SquareD1)
	f8g8Mask = (uint64(1) << SquareF8) | (uint64(1) << SquareG8)
	b8d8Mask = (uint64(1) << SquareB8) | (uint64(1) << SquareC8) | (uint64(1) << SquareD8)
)

var (
	whiteKingSideCastle  = makeMove(SquareE1, SquareG1, King, Empty)
	whiteQueenSideCastle = makeMove(SquareE1, SquareC1, King, Empty)
	blackKingSideCastle  = makeMove(SquareE8, SquareG8, King, Empty)
	blackQueenSideCastle = makeMove(SquareE8, SquareC8, King, Empty)
)

type moveBuilder struct {
	ml    []OrderedMove
	count int
}

func (b *moveBuilder) add(m Move) {
	b.ml[b.count] = OrderedMove{Move: m}
	b.count++
}

func (b *moveBuilder) addTargets(from, piece int, p *Position, targets uint64) {
	for ; targets != 0; targets &= targets - 1 {
		var to = FirstOne(targets)
		b.add(makeMove(from, to, piece, p.WhatPiece(to)))
	}
}

func (b *moveBuilder) addPromotions(from, to, captured int, all bool) {
	b.add(makePawnMove(from, to, captured, Queen))
	if all {
		b.add(makePawnMove(from, to, captured, Rook))
		b.add(makePawnMove(from, to, captured, Bishop))
		b.add(makePawnMove(from, to, captured, Knight))
	}
}

func pawnPush(side bool) int {
	return let(side, 8, -8)
}

func promotionRank(side bool) int {
	return let(side, Rank7, Rank2)
}

// pawnMoves emits pawn moves. quiets adds pushes and under-promotions;
// without it only captures and queen promotions are produced.
func (b *moveBuilder) pawnMoves(p *Position, quiets bool) {
	var own, opp = p.ownAndOpp()
	var all = own | opp
	var push = pawnPush(p.WhiteMove)

	if p.EpSquare != SquareNone {
		for fromBB := PawnAttacks(p.EpSquare, !p.WhiteMove) & p.Pawns & own; fromBB != 0; fromBB &= fromBB - 1 {
			b.add(makeMove(FirstOne(fromBB), p.EpSquare, Pawn, Pawn))
		}
	}

	for fromBB := p.Pawns & own; fromBB != 0; fromBB &= fromBB - 1 {
		var from = FirstOne(fromBB)
		var promotes = Rank(from) == promotionRank(p.WhiteMove)
		var to = from + push
		if SquareMask[to]&all == 0 {
			if promotes {
				b.addPromotions(from, to, Empty, quiets)
			} else if quiets {
				b.add(makeMove(from, to, Pawn, Empty))
				if Rank(from) == promotionRank(!p.WhiteMove) && SquareMask[to+push]&all == 0 {
					b.add(makeMove(from, to+push, Pawn, Empty))
				}
			}
		}
		for toBB := PawnAttacks(from, p.WhiteMove) & opp; toBB != 0; toBB &= toBB - 1 {
			to = FirstOne(toBB)
			if promotes {
				b.addPromotions(from, to, p.WhatPiece(to), quiets)
			} else {
				b.add(makeMove(from, to, Pawn, p.WhatPiece(to)))
			}
		}
	}
}

func (b *moveBuilder) pieceMoves(p *Position, target uint64) {
	var own, _ = p.ownAndOpp()
	var all = p.White | p.Black
	for piece := Knight; piece <= Queen; piece++ {
		for fromBB := *pieceBoard(p, piece) & own; fromBB != 0; fromBB &= fromBB - 1 {
			var from = FirstOne(fromBB)
			b.addTargets(from, piece, p, PieceAttacks(piece, from, all)&target)
		}
	}
}

func (p *Position) canCastle(move Move) bool {
	var all = p.White | p.Black
	switch move {
	case whiteKingSideCastle:
		return p.WhiteMove && p.CastleRights&WhiteKingSide != 0 && all&f1g1Mask == 0 &&
			!p.isAttackedBySide(SquareE1, false) && !p.isAttackedBySide(SquareF1, false)
	case whiteQueenSideCastle:
		return p.WhiteMove && p.CastleRights&WhiteQueenSide != 0 && all&b1d1Mask == 0 &&
			!p.isAttackedBySide(SquareE1, false) && !p.isAttackedBySide(SquareD1, false)
	case blackKingSideCastle:
		return !p.WhiteMove && p.CastleRights&BlackKingSide != 0 && all&f8g8Mask == 0 &&
			!p.isAttackedBySide(SquareE8, true) && !p.isAttackedBySide(SquareF8, true)
	case blackQueenSideCastle:
		return !p.WhiteMove && p.CastleRights&BlackQueenSide != 0 && all&b8d8Mask == 0 &&
			!p.isAttackedBySide(SquareE8, true) && !p.isAttackedBySide(SquareD8, true)
	}
	return false
}

// evasionTarget limits non-king moves while in check.
func (p *Position) evasionTarget() uint64 {
	var own, _ = p.ownAndOpp()
	if p.Checkers == 0 {
		return ^own
	}
	var kingSq = FirstOne(p.Kings & own)
	return p.Checkers | betweenMask[FirstOne(p.Checkers)][kingSq]
}

// GenerateMoves returns pseudo-legal moves; MakeMove rejects the illegal ones.
func (p *Position) GenerateMoves(ml []OrderedMove) []OrderedMove {
	var b = moveBuilder{ml: ml}
	var own, _ = p.ownAndOpp()

	b.pawnMoves(p, true)
	b.pieceMoves(p, p.evasionTarget())

	var kingSq = FirstOne(p.Kings & own)
	b.addTargets(kingSq, King, p, KingAttacks[kingSq]&^own)
	if p.Checkers == 0 {
		var castles = [2]Move{blackKingSideCastle, blackQueenSideCastle}
		if p.WhiteMove {
			castles = [2]Move{whiteKingSideCastle, whiteQueenSideCastle}
		}
		for _, m := range castles {
			if p.canCastle(m) {
				b.add(m)
			}
		}
	}
	return ml[:b.count]
}

// GenerateCaptures returns captures and queen promotions. With genChecks it
// also adds quiet moves giving direct check.
func (p *Position) GenerateCaptures(ml []OrderedMove, genChecks bool) []OrderedMove {
	var b = moveBuilder{ml: ml}
	var own, opp = p.ownAndOpp()
	var all = own | opp

	b.pawnMoves(p, false)
	b.pieceMoves(p, opp)
	var kingSq = FirstOne(p.Kings & own)
	b.addTargets(kingSq, King, p, KingAttacks[kingSq]&opp)

	if genChecks {
		var oppKing = FirstOne(p.Kings & opp)
		for piece := Knight; piece <= Queen; piece++ {
			var checkSquares = PieceAttacks(piece, oppKing, all) &^ all
			for fromBB := *pieceBoard(p, piece) & own; fromBB != 0; fromBB &= fromBB - 1 {
				var from = FirstOne(fromBB)
				b.addTargets(from, piece, p, PieceAttacks(piece, from, all)&checkSquares)
			}
		}
		var push = pawnPush(p.WhiteMove)
		var pawnCheckSquares = PawnAttacks(oppKing, !p.WhiteMove) &^ all
		for toBB := pawnCheckSquares; toBB != 0; toBB &= toBB - 1 {
			var to = FirstOne(toBB)
			var from = to - push
			if from < 0 || from > 63 || Rank(from) == promotionRank(p.WhiteMove) {
				continue
			}
			if SquareMask[from]&p.Pawns&own != 0 {
				b.add(makeMove(from, to, Pawn, Empty))
			} else if from2 := from - push; SquareMask[from]&all == 0 &&
				Rank(from2) == promotionRank(!p.WhiteMove) && SquareMask[from2]&p.Pawns&own != 0 {
				b.add(makeMove(from2, to, Pawn, Empty))
			}
		}
	}
	return ml[:b.count]
}

func (p *Position) GenerateLegalMoves() []Move {
	var buffer [MaxMoves]OrderedMove
	var child Position
	var result []Move
	for _, om := range p.GenerateMoves(buffer[:]) {
		if p.MakeMove(om.Move, &child) {
			result = append(result, om.Move)
		}
	}
	return result
}
