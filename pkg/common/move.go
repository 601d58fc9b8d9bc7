package common

import "strings"

// Move layout: from 0-5, to 6-11, moving piece 12-14, captured piece 15-17,
// promotion 18-20.
type Move int32

const MoveEmpty = Move(0)

func makeMove(from, to, movingPiece, capturedPiece int) Move {
	return Move(from ^ (to << 6) ^ (movingPiece << 12) ^ (capturedPiece << 15))
}

func makePawnMove(from, to, capturedPiece, promotion int) Move {
	return Move(from ^ (to << 6) ^ (Pawn << 12) ^ (capturedPiece << 15) ^ (promotion << 18))
}

func (m Move) From() int { return int(m & 63) }

func (m Move) To() int { return int((m >> 6) & 63) }

func (m Move) MovingPiece() int { return int((m >> 12) & 7) }

func (m Move) CapturedPiece() int { return int((m >> 15) & 7) }

func (m Move) Promotion() int { return int((m >> 18) & 7) }

func (m Move) IsCaptureOrPromotion() bool {
	return m.CapturedPiece() != Empty || m.Promotion() != Empty
}

// IsTactical reports whether the move belongs to the capture generator:
// captures and queen promotions. Under-promotions are quiet.
func (m Move) IsTactical() bool {
	if promotion := m.Promotion(); promotion != Empty {
		return promotion == Queen
	}
	return m.CapturedPiece() != Empty
}

// Pack keeps only from, to and promotion; UnpackMove restores the rest
// from a position.
func (m Move) Pack() uint16 {
	return uint16(m.From() | m.To()<<6 | m.Promotion()<<12)
}

func (m Move) String() string {
	if m == MoveEmpty {
		return "0000"
	}
	var s = SquareName(m.From()) + SquareName(m.To())
	if m.Promotion() != Empty {
		s += string("nbrq"[m.Promotion()-Knight])
	}
	return s
}

func (p *Position) MakeMoveLAN(lan string) (Position, bool) {
	var buffer [MaxMoves]OrderedMove
	for _, om := range p.GenerateMoves(buffer[:]) {
		if strings.EqualFold(om.Move.String(), lan) {
			var child Position
			if p.MakeMove(om.Move, &child) {
				return child, true
			}
			return Position{}, false
		}
	}
	return Position{}, false
}

// ParseMoveLAN returns the legal move with the given long algebraic notation.
func (p *Position) ParseMoveLAN(lan string) Move {
	for _, m := range p.GenerateLegalMoves() {
		if strings.EqualFold(m.String(), lan) {
			return m
		}
	}
	return MoveEmpty
}
