package common

import "time"

type LimitsType struct {
	Ponder         bool
	Infinite       bool
	WhiteTime      int
	BlackTime      int
	WhiteIncrement int
	BlackIncrement int
	Byoyomi        int
	MoveTime       int
	MovesToGo      int
	Depth          int
	Nodes          int
	Mate           int
}

type SearchParams struct {
	Positions []Position
	Limits    LimitsType
	MultiPV   int
	Progress  func(si SearchInfo)
}

// UciScore is either centipawns or, when IsMate is set, moves to mate.
// Mate 0 with IsMate means the side to move is already mated.
type UciScore struct {
	Centipawns int
	Mate       int
	IsMate     bool
}

type SearchInfo struct {
	ID          string
	Score       UciScore
	Value       int
	Depth       int
	SelDepth    int
	Nodes       int64
	QNodes      int64
	TTCutoffs   int64
	Time        time.Duration
	HashFull    int
	Duplication float64
	Worker      int
	MainLine    []Move
	Lines       []RootLine
}

// RootLine is one ranked candidate at the root (MultiPV).
type RootLine struct {
	Rank     int
	Move     Move
	Score    UciScore
	Value    int
	Bound    string
	Depth    int
	SelDepth int
	PV       []Move
	Nodes    int64
	Time     time.Duration
	NPS      int64
}

func (si *SearchInfo) BestMove() Move {
	if len(si.MainLine) == 0 {
		return MoveEmpty
	}
	return si.MainLine[0]
}

func (si *SearchInfo) PonderMove() Move {
	if len(si.MainLine) < 2 {
		return MoveEmpty
	}
	return si.MainLine[1]
}
