package transtable

import (
	"math"

	"golang.org/x/exp/constraints"
)

type Bound uint8

const (
	BoundNone  Bound = 0
	BoundLower Bound = 1 << 0
	BoundUpper Bound = 1 << 1
	BoundExact       = BoundLower | BoundUpper
)

const (
	// DepthMin is the shallowest storable depth; quiescence writes -1 and 0.
	DepthMin = -8
	DepthMax = DepthMin + math.MaxUint8

	Cycle   = 32
	AgeMask = Cycle - 1

	EvalNone = math.MinInt16
)

// data word layout
const (
	moveShift  = 0
	valueShift = 16
	evalShift  = 32
	depthShift = 48
	boundShift = 56
	pvShift    = 58
	genShift   = 59
)

const occupiedBit = uint64(1) << 63

type Entry struct {
	Move       uint16
	Value      int16
	Eval       int16
	Depth      int
	Bound      Bound
	PV         bool
	Generation uint8
}

func clamp[T constraints.Integer](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampScore saturates a search score or eval to the int16 storage range.
// EvalNone is kept as is.
func ClampScore(v int) int16 {
	if v == EvalNone {
		return EvalNone
	}
	return int16(clamp(v, math.MinInt16+1, math.MaxInt16))
}

// KeyFragment is the part of the hash kept in the key word. It is never
// zero, so a zero key word marks an empty slot.
func KeyFragment(key uint64) uint64 {
	return (key >> 16) | occupiedBit
}

func IsOccupied(keyWord uint64) bool {
	return keyWord&occupiedBit != 0
}

func Encode(key uint64, e Entry) (keyWord, dataWord uint64) {
	return KeyFragment(key), encodeData(e)
}

func encodeData(e Entry) uint64 {
	var depth = uint64(clamp(e.Depth, DepthMin, DepthMax) - DepthMin)
	var pv uint64
	if e.PV {
		pv = 1
	}
	return uint64(e.Move)<<moveShift |
		uint64(uint16(e.Value))<<valueShift |
		uint64(uint16(e.Eval))<<evalShift |
		depth<<depthShift |
		uint64(e.Bound&3)<<boundShift |
		pv<<pvShift |
		uint64(e.Generation&AgeMask)<<genShift
}

func Decode(dataWord uint64) Entry {
	return Entry{
		Move:       uint16(dataWord >> moveShift),
		Value:      int16(uint16(dataWord >> valueShift)),
		Eval:       int16(uint16(dataWord >> evalShift)),
		Depth:      int(uint8(dataWord>>depthShift)) + DepthMin,
		Bound:      Bound(dataWord>>boundShift) & 3,
		PV:         (dataWord>>pvShift)&1 != 0,
		Generation: uint8(dataWord>>genShift) & AgeMask,
	}
}

// RelativeAge is the number of searches since the entry was written,
// modulo Cycle.
func RelativeAge(stored, current uint8) int {
	return int((Cycle + uint(current) - uint(stored)) & AgeMask)
}
