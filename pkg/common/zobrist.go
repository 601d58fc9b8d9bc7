package common

import "lukechampine.com/frand"

var (
	sideKey        uint64
	enpassantKey   [8]uint64
	castlingKey    [16]uint64
	pieceSquareKey [2 * 7 * 64]uint64
)

// zobristSeed pins the keys so hashes are stable across runs.
var zobristSeed = [32]byte{'C', 'o', 'u', 'n', 't', 'e', 'r'}

func initKeys() {
	var rng = frand.NewCustom(zobristSeed[:], 1024, 12)
	sideKey = rng.Uint64n(^uint64(0))
	for i := range enpassantKey {
		enpassantKey[i] = rng.Uint64n(^uint64(0))
	}
	for i := range pieceSquareKey {
		pieceSquareKey[i] = rng.Uint64n(^uint64(0))
	}

	var castle [4]uint64
	for i := range castle {
		castle[i] = rng.Uint64n(^uint64(0))
	}
	for i := range castlingKey {
		for j := range castle {
			if i&(1<<uint(j)) != 0 {
				castlingKey[i] ^= castle[j]
			}
		}
	}
}

func PieceSquareKey(piece int, side bool, square int) uint64 {
	var index = piece
	if !side {
		index += 7
	}
	return pieceSquareKey[index*64+square]
}

func (p *Position) computeKey() uint64 {
	var result uint64
	if p.WhiteMove {
		result ^= sideKey
	}
	result ^= castlingKey[p.CastleRights]
	if p.EpSquare != SquareNone {
		result ^= enpassantKey[File(p.EpSquare)]
	}
	for bb := p.White | p.Black; bb != 0; bb &= bb - 1 {
		var sq = FirstOne(bb)
		var piece, side = p.GetPieceTypeAndSide(sq)
		result ^= PieceSquareKey(piece, side, sq)
	}
	return result
}

// ComputeKey recomputes the hash from scratch.
func (p *Position) ComputeKey() uint64 {
	return p.computeKey()
}
