package common

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var castleMask [64]int

var errBadFen = errors.New("parse fen failed")

func NewPositionFromFEN(fen string) (Position, error) {
	var tokens = strings.Fields(fen)
	if len(tokens) < 4 {
		return Position{}, fmt.Errorf("%w: %v", errBadFen, fen)
	}

	var p = Position{EpSquare: SquareNone}

	var rank, file = Rank8, FileA
	for _, ch := range tokens[0] {
		switch {
		case ch == '/':
			rank--
			file = FileA
		case ch >= '1' && ch <= '8':
			file += int(ch - '0')
		default:
			var piece = strings.IndexRune("pnbrqk", ch|0x20)
			if piece < 0 || file > FileH || rank < Rank1 {
				return Position{}, fmt.Errorf("%w: %v", errBadFen, fen)
			}
			xorPiece(&p, piece+Pawn, ch < 'a', MakeSquare(file, rank))
			file++
		}
	}
	if PopCount(p.Kings&p.White) != 1 || PopCount(p.Kings&p.Black) != 1 {
		return Position{}, fmt.Errorf("%w: %v", errBadFen, fen)
	}

	p.WhiteMove = tokens[1] == "w"

	for _, ch := range tokens[2] {
		switch ch {
		case 'K':
			p.CastleRights |= WhiteKingSide
		case 'Q':
			p.CastleRights |= WhiteQueenSide
		case 'k':
			p.CastleRights |= BlackKingSide
		case 'q':
			p.CastleRights |= BlackQueenSide
		}
	}

	var ep, err = ParseSquare(tokens[3])
	if err != nil {
		return Position{}, fmt.Errorf("%w: %v", errBadFen, err)
	}
	p.EpSquare = ep

	if len(tokens) > 4 {
		p.Rule50, _ = strconv.Atoi(tokens[4])
	}

	p.Key = p.computeKey()
	p.Checkers = p.computeCheckers()
	if !p.isLegal() {
		return Position{}, fmt.Errorf("%w: side not to move is in check: %v", errBadFen, fen)
	}
	return p, nil
}

func (p *Position) String() string {
	var sb strings.Builder
	for rank := Rank8; rank >= Rank1; rank-- {
		var emptyCount = 0
		for file := FileA; file <= FileH; file++ {
			var sq = MakeSquare(file, rank)
			var piece, side = p.GetPieceTypeAndSide(sq)
			if piece == Empty {
				emptyCount++
				continue
			}
			if emptyCount != 0 {
				sb.WriteString(strconv.Itoa(emptyCount))
				emptyCount = 0
			}
			sb.WriteString(pieceToChar(piece, side))
		}
		if emptyCount != 0 {
			sb.WriteString(strconv.Itoa(emptyCount))
		}
		if rank != Rank1 {
			sb.WriteByte('/')
		}
	}

	if p.WhiteMove {
		sb.WriteString(" w ")
	} else {
		sb.WriteString(" b ")
	}

	if p.CastleRights == 0 {
		sb.WriteString("-")
	}
	for i, ch := range "KQkq" {
		if p.CastleRights&(1<<uint(i)) != 0 {
			sb.WriteRune(ch)
		}
	}

	if p.EpSquare == SquareNone {
		sb.WriteString(" - ")
	} else {
		sb.WriteString(" " + SquareName(p.EpSquare) + " ")
	}
	sb.WriteString(strconv.Itoa(p.Rule50))
	sb.WriteString(" 1")
	return sb.String()
}

func pieceToChar(pieceType int, side bool) string {
	var result = "pnbrqk"[pieceType-Pawn : pieceType-Pawn+1]
	if side {
		return strings.ToUpper(result)
	}
	return result
}

func (p *Position) GetPieceTypeAndSide(sq int) (pieceType int, side bool) {
	var bb = SquareMask[sq]
	if p.White&bb == 0 && p.Black&bb == 0 {
		return Empty, false
	}
	return p.WhatPiece(sq), p.White&bb != 0
}

func (p *Position) WhatPiece(sq int) int {
	var bb = SquareMask[sq]
	switch {
	case (p.White|p.Black)&bb == 0:
		return Empty
	case p.Pawns&bb != 0:
		return Pawn
	case p.Knights&bb != 0:
		return Knight
	case p.Bishops&bb != 0:
		return Bishop
	case p.Rooks&bb != 0:
		return Rook
	case p.Queens&bb != 0:
		return Queen
	default:
		return King
	}
}

// MakeMove writes the successor to result and reports whether the move
// is legal. result is undefined when false is returned.
func (src *Position) MakeMove(move Move, result *Position) bool {
	var from = move.From()
	var to = move.To()
	var movingPiece = move.MovingPiece()
	var capturedPiece = move.CapturedPiece()

	*result = Position{
		Pawns:   src.Pawns,
		Knights: src.Knights,
		Bishops: src.Bishops,
		Rooks:   src.Rooks,
		Queens:  src.Queens,
		Kings:   src.Kings,
		White:   src.White,
		Black:   src.Black,

		WhiteMove:    !src.WhiteMove,
		CastleRights: src.CastleRights & castleMask[from] & castleMask[to],
		EpSquare:     SquareNone,
		Key:          src.Key ^ sideKey,
	}
	result.Key ^= castlingKey[result.CastleRights^src.CastleRights]
	if src.EpSquare != SquareNone {
		result.Key ^= enpassantKey[File(src.EpSquare)]
	}

	if movingPiece == Pawn || capturedPiece != Empty {
		result.Rule50 = 0
	} else {
		result.Rule50 = src.Rule50 + 1
	}

	if capturedPiece != Empty {
		if capturedPiece == Pawn && to == src.EpSquare {
			xorPiece(result, Pawn, !src.WhiteMove, to+let(src.WhiteMove, -8, 8))
		} else {
			xorPiece(result, capturedPiece, !src.WhiteMove, to)
		}
	}

	movePiece(result, movingPiece, src.WhiteMove, from, to)

	switch movingPiece {
	case Pawn:
		if AbsDelta(from, to) == 16 {
			result.EpSquare = (from + to) / 2
			result.Key ^= enpassantKey[File(result.EpSquare)]
		}
		if promotion := move.Promotion(); promotion != Empty {
			xorPiece(result, Pawn, src.WhiteMove, to)
			xorPiece(result, promotion, src.WhiteMove, to)
		}
	case King:
		if AbsDelta(from, to) == 2 {
			var rookFrom, rookTo = castleRookSquares(to)
			movePiece(result, Rook, src.WhiteMove, rookFrom, rookTo)
		}
	}

	if !result.isLegal() {
		return false
	}
	result.Checkers = result.computeCheckers()
	result.LastMove = move
	return true
}

func castleRookSquares(kingTo int) (from, to int) {
	switch kingTo {
	case SquareG1:
		return SquareH1, SquareF1
	case SquareC1:
		return SquareA1, SquareD1
	case SquareG8:
		return SquareH8, SquareF8
	default:
		return SquareA8, SquareD8
	}
}

func (src *Position) MakeNullMove(result *Position) {
	*result = *src
	result.Rule50 = src.Rule50 + 1
	result.WhiteMove = !src.WhiteMove
	result.Key = src.Key ^ sideKey
	result.EpSquare = SquareNone
	if src.EpSquare != SquareNone {
		result.Key ^= enpassantKey[File(src.EpSquare)]
	}
	result.Checkers = 0
	result.LastMove = MoveEmpty
}

func pieceBoard(p *Position, piece int) *uint64 {
	switch piece {
	case Pawn:
		return &p.Pawns
	case Knight:
		return &p.Knights
	case Bishop:
		return &p.Bishops
	case Rook:
		return &p.Rooks
	case Queen:
		return &p.Queens
	default:
		return &p.Kings
	}
}

func xorPiece(p *Position, piece int, side bool, square int) {
	var b = SquareMask[square]
	if side {
		p.White ^= b
	} else {
		p.Black ^= b
	}
	*pieceBoard(p, piece) ^= b
	p.Key ^= PieceSquareKey(piece, side, square)
}

func movePiece(p *Position, piece int, side bool, from, to int) {
	xorPiece(p, piece, side, from)
	xorPiece(p, piece, side, to)
}

func (p *Position) isAttackedBySide(sq int, side bool) bool {
	var enemy = p.PiecesByColor(side)
	var occ = p.White | p.Black
	return PawnAttacks(sq, !side)&p.Pawns&enemy != 0 ||
		KnightAttacks[sq]&p.Knights&enemy != 0 ||
		KingAttacks[sq]&p.Kings&enemy != 0 ||
		BishopAttacks(sq, occ)&(p.Bishops|p.Queens)&enemy != 0 ||
		RookAttacks(sq, occ)&(p.Rooks|p.Queens)&enemy != 0
}

func (p *Position) AttackersTo(sq int, occ uint64) uint64 {
	return (blackPawnAttacks[sq] & p.Pawns & p.White) |
		(whitePawnAttacks[sq] & p.Pawns & p.Black) |
		(KnightAttacks[sq] & p.Knights) |
		(BishopAttacks(sq, occ) & (p.Bishops | p.Queens)) |
		(RookAttacks(sq, occ) & (p.Rooks | p.Queens)) |
		(KingAttacks[sq] & p.Kings)
}

func (p *Position) computeCheckers() uint64 {
	var own, opp = p.ownAndOpp()
	return p.AttackersTo(FirstOne(p.Kings&own), p.White|p.Black) & opp
}

// isLegal reports whether the side that just moved left its king safe.
func (p *Position) isLegal() bool {
	var kingSq = FirstOne(p.Kings & p.PiecesByColor(!p.WhiteMove))
	return !p.isAttackedBySide(kingSq, p.WhiteMove)
}

func (p *Position) IsCheck() bool {
	return p.Checkers != 0
}

func init() {
	initKeys()
	for i := range castleMask {
		castleMask[i] = WhiteKingSide | WhiteQueenSide | BlackKingSide | BlackQueenSide
	}
	castleMask[SquareA1] &^= WhiteQueenSide
	castleMask[SquareE1] &^= WhiteQueenSide | WhiteKingSide
	castleMask[SquareH1] &^= WhiteKingSide
	castleMask[SquareA8] &^= BlackQueenSide
	castleMask[SquareE8] &^= BlackQueenSide | BlackKingSide
	castleMask[SquareH8] &^= BlackKingSide
}
