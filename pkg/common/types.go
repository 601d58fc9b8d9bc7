package common

const (
	WhiteKingSide = 1 << iota
	WhiteQueenSide
	BlackKingSide
	BlackQueenSide
)

// Position is a value type. MakeMove writes the successor into a separate
// slot, so the parent stays valid and unmake is free.
type Position struct {
	Pawns, Knights, Bishops, Rooks, Queens, Kings, White, Black, Checkers uint64
	WhiteMove                                                             bool
	CastleRights, Rule50, EpSquare                                        int
	Key                                                                   uint64
	LastMove                                                              Move
}

const InitialPositionFen = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

const (
	Empty int = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
	PIECE_NB
)

const (
	SideWhite = iota
	SideBlack
)

const MaxMoves = 256

type OrderedMove struct {
	Move Move
	Key  int32
}

func (p *Position) AllPieces() uint64 {
	return p.White | p.Black
}

func (p *Position) PiecesByColor(side bool) uint64 {
	if side {
		return p.White
	}
	return p.Black
}

// Colours takes SideWhite or SideBlack.
func (p *Position) Colours(side int) uint64 {
	if side == SideWhite {
		return p.White
	}
	return p.Black
}

func (p *Position) ownAndOpp() (own, opp uint64) {
	if p.WhiteMove {
		return p.White, p.Black
	}
	return p.Black, p.White
}
