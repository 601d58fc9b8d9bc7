package tactic

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/ChizhovVadim/CounterSearch/pkg/common"
	"github.com/ChizhovVadim/CounterSearch/pkg/engine"
	material "github.com/ChizhovVadim/CounterSearch/pkg/eval/material"
)

const epd = `6k1/5ppp/8/8/8/8/8/R5K1 w - - bm Ra8#; id "back rank";
r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - bm Bb5 Bc4; id "opening";
not a position bm e4;
8/8/8/8/8/8/8/K6k w - - bm Qh8;
`

func TestLoadEpd(t *testing.T) {
	is := is.New(t)
	var items, err = LoadEpd(strings.NewReader(epd), zerolog.Nop())
	is.NoErr(err)
	is.Equal(len(items), 2)
	is.Equal(len(items[0].BestMoves), 1)
	is.Equal(items[0].BestMoves[0].String(), "a1a8")
	is.Equal(len(items[1].BestMoves), 2)
	is.Equal(items[1].BestMoves[0].String(), "f1b5")
	is.Equal(items[1].BestMoves[1].String(), "f1c4")
}

type fixedSearcher struct {
	move string
}

func (f fixedSearcher) Search(ctx context.Context, params common.SearchParams) (common.SearchInfo, error) {
	var p = params.Positions[len(params.Positions)-1]
	return common.SearchInfo{MainLine: []common.Move{p.ParseMoveLAN(f.move)}}, nil
}

func TestSolveTactic(t *testing.T) {
	is := is.New(t)
	var items, err = LoadEpd(strings.NewReader(epd), zerolog.Nop())
	is.NoErr(err)

	solved, err := SolveTactic(context.Background(), items, fixedSearcher{move: "a1a8"}, time.Millisecond, zerolog.Nop())
	is.NoErr(err)
	is.Equal(solved, 1)

	var eng = engine.NewEngine(func() interface{} { return material.NewEvaluationService() }, zerolog.Nop())
	eng.Options.Hash = 4
	solved, err = SolveTactic(context.Background(), items[:1], eng, 200*time.Millisecond, zerolog.Nop())
	is.NoErr(err)
	is.Equal(solved, 1)
}
