package eval

import (
	"testing"

	"github.com/matryer/is"
	"lukechampine.com/frand"

	"github.com/ChizhovVadim/CounterSearch/pkg/common"
)

var testFENs = []string{
	common.InitialPositionFen,
	"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
	"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
	"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1",
	"8/8/8/2k5/3Pp3/8/8/4K3 b - d3 0 1",
}

// Random playouts: the incremental value must match a fresh evaluation
// after every move and after taking moves back.
func TestIncrementalMatchesScratch(t *testing.T) {
	is := is.New(t)
	var rng = frand.NewCustom(make([]byte, 32), 1024, 12)
	var e = NewEvaluationService()
	var fresh = NewEvaluationService()
	for _, fen := range testFENs {
		var root, err = common.NewPositionFromFEN(fen)
		is.NoErr(err)
		for game := 0; game < 20; game++ {
			var positions = []common.Position{root}
			e.Init(&root)
			for ply := 0; ply < 60; ply++ {
				var p = &positions[len(positions)-1]
				var moves = p.GenerateLegalMoves()
				if len(moves) == 0 {
					break
				}
				var child common.Position
				if rng.Intn(8) == 0 && !p.IsCheck() {
					p.MakeNullMove(&child)
					e.MakeNullMove(p)
				} else {
					var m = moves[rng.Intn(len(moves))]
					is.True(p.MakeMove(m, &child))
					e.MakeMove(p, m)
				}
				positions = append(positions, child)
				is.Equal(e.EvaluateQuick(&child), fresh.Evaluate(&child))
			}
			for len(positions) > 1 {
				var last = positions[len(positions)-1]
				if last.LastMove == common.MoveEmpty {
					e.UnmakeNullMove()
				} else {
					e.UnmakeMove()
				}
				positions = positions[:len(positions)-1]
				var p = &positions[len(positions)-1]
				is.Equal(e.EvaluateQuick(p), fresh.Evaluate(p))
			}
		}
	}
}

func TestSymmetry(t *testing.T) {
	var e = NewEvaluationService()
	var white, _ = common.NewPositionFromFEN("4k3/8/8/8/8/8/4P3/4K3 w - - 0 1")
	var black, _ = common.NewPositionFromFEN("4k3/4p3/8/8/8/8/8/4K3 b - - 0 1")
	if e.Evaluate(&white) != e.Evaluate(&black) {
		t.Error(e.Evaluate(&white), e.Evaluate(&black))
	}
	if e.Evaluate(&white) <= 0 {
		t.Error("extra pawn not rewarded")
	}
}
