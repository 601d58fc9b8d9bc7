package tactic

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"github.com/ChizhovVadim/CounterSearch/pkg/common"
)

type EpdItem struct {
	Content   string
	Position  common.Position
	BestMoves []common.Move
}

// LoadEpd reads "fen bm <san>...;" lines. Lines that do not parse are
// logged and skipped.
func LoadEpd(r io.Reader, logger zerolog.Logger) ([]EpdItem, error) {
	var result []EpdItem
	var scanner = bufio.NewScanner(r)
	for scanner.Scan() {
		var line = strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var test, err = parseEpdTest(line)
		if err != nil {
			logger.Warn().Err(err).Msg("skip epd line")
			continue
		}
		result = append(result, test)
	}
	return result, scanner.Err()
}

func parseEpdTest(s string) (EpdItem, error) {
	var bmBegin = strings.Index(s, " bm ")
	if bmBegin < 0 {
		return EpdItem{}, fmt.Errorf("no best move %v", s)
	}
	var bmEnd = strings.Index(s[bmBegin:], ";")
	if bmEnd < 0 {
		bmEnd = len(s)
	} else {
		bmEnd += bmBegin
	}
	var fen = strings.TrimSpace(s[:bmBegin])
	var sBestMoves = strings.Fields(s[bmBegin+len(" bm ") : bmEnd])

	var p, err = common.NewPositionFromFEN(fen)
	if err != nil {
		return EpdItem{}, err
	}
	// epd carries four fen fields only
	if len(strings.Fields(fen)) == 4 {
		fen += " 0 1"
	}
	opt, err := chess.FEN(fen)
	if err != nil {
		return EpdItem{}, err
	}
	var sanPosition = chess.NewGame(opt).Position()

	var bestMoves []common.Move
	for _, sBestMove := range sBestMoves {
		var san, err = chess.AlgebraicNotation{}.Decode(sanPosition, sBestMove)
		if err != nil {
			return EpdItem{}, fmt.Errorf("parse move %v failed: %w", sBestMove, err)
		}
		var move = p.ParseMoveLAN(chess.UCINotation{}.Encode(sanPosition, san))
		if move == common.MoveEmpty {
			return EpdItem{}, fmt.Errorf("illegal move %v", sBestMove)
		}
		bestMoves = append(bestMoves, move)
	}
	if len(bestMoves) == 0 {
		return EpdItem{}, errors.New("empty best moves " + s)
	}

	return EpdItem{
		Content:   s,
		Position:  p,
		BestMoves: bestMoves,
	}, nil
}

type Searcher interface {
	Search(ctx context.Context, searchParams common.SearchParams) (common.SearchInfo, error)
}

// SolveTactic searches every item for moveTime and counts the items whose
// best move is one of the expected ones.
func SolveTactic(ctx context.Context, tests []EpdItem, eng Searcher,
	moveTime time.Duration, logger zerolog.Logger) (solved int, err error) {
	for i := range tests {
		var test = &tests[i]
		var info, err = eng.Search(ctx, common.SearchParams{
			Positions: []common.Position{test.Position},
			Limits:    common.LimitsType{MoveTime: int(moveTime.Milliseconds())},
		})
		if err != nil {
			return solved, err
		}
		var ok = false
		for _, m := range test.BestMoves {
			if m == info.BestMove() {
				ok = true
				break
			}
		}
		if ok {
			solved++
		}
		logger.Debug().
			Int("test", i+1).
			Bool("solved", ok).
			Str("move", info.BestMove().String()).
			Int("depth", info.Depth).
			Msg(test.Content)
		if err := ctx.Err(); err != nil {
			return solved, err
		}
	}
	return solved, nil
}
