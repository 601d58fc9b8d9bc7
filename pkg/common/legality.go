package common

// IsPseudoLegal reports whether GenerateMoves could have produced m in
// this position. Moves coming from the hash table or killer slots go
// through here before they are played.
func (p *Position) IsPseudoLegal(m Move) bool {
	if m == MoveEmpty {
		return false
	}
	var own, opp = p.ownAndOpp()
	var all = own | opp
	var from, to = m.From(), m.To()
	var piece = m.MovingPiece()
	var captured = m.CapturedPiece()
	var promotion = m.Promotion()

	if SquareMask[from]&own == 0 || p.WhatPiece(from) != piece || SquareMask[to]&own != 0 {
		return false
	}
	if captured == King {
		return false
	}

	if piece == Pawn {
		var promotes = Rank(from) == promotionRank(p.WhiteMove)
		if promotes != (promotion != Empty) || promotion == Pawn || promotion > Queen {
			return false
		}
		if to == p.EpSquare && captured == Pawn {
			return PawnAttacks(from, p.WhiteMove)&SquareMask[to] != 0
		}
		if captured != p.WhatPiece(to) {
			return false
		}
		if captured != Empty {
			return PawnAttacks(from, p.WhiteMove)&SquareMask[to] != 0
		}
		var push = pawnPush(p.WhiteMove)
		if to == from+push {
			return SquareMask[to]&all == 0
		}
		return to == from+2*push &&
			Rank(from) == promotionRank(!p.WhiteMove) &&
			(SquareMask[from+push]|SquareMask[to])&all == 0
	}

	if promotion != Empty || captured != p.WhatPiece(to) {
		return false
	}

	if piece == King {
		if AbsDelta(from, to) == 2 {
			return p.Checkers == 0 && p.canCastle(m)
		}
		return KingAttacks[from]&SquareMask[to] != 0
	}

	return PieceAttacks(piece, from, all)&p.evasionTarget()&SquareMask[to] != 0
}

// UnpackMove rebuilds a move from its packed form, or returns MoveEmpty
// when it does not fit the position.
func (p *Position) UnpackMove(packed uint16) Move {
	if packed == 0 {
		return MoveEmpty
	}
	var from = int(packed & 63)
	var to = int((packed >> 6) & 63)
	var promotion = int((packed >> 12) & 7)

	var piece = p.WhatPiece(from)
	if piece == Empty {
		return MoveEmpty
	}
	var captured = p.WhatPiece(to)
	if piece == Pawn && to == p.EpSquare && File(from) != File(to) {
		captured = Pawn
	}
	var m = makeMove(from, to, piece, captured) ^ Move(promotion<<18)
	if !p.IsPseudoLegal(m) {
		return MoveEmpty
	}
	return m
}

// GivesCheck reports whether m is legal and leaves the opponent in check.
func (p *Position) GivesCheck(m Move) bool {
	var child Position
	return p.MakeMove(m, &child) && child.IsCheck()
}

// IsLegal reports whether m is pseudo-legal and does not expose the king.
func (p *Position) IsLegal(m Move) bool {
	var child Position
	return p.IsPseudoLegal(m) && p.MakeMove(m, &child)
}
