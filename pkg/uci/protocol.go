package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ChizhovVadim/CounterSearch/pkg/common"
)

var (
	errSearchRunning   = errors.New("search still run")
	errCommandNotFound = errors.New("command not found")
)

type Engine interface {
	Prepare()
	Clear()
	Search(ctx context.Context, searchParams common.SearchParams) (common.SearchInfo, error)
	PonderHit()
}

type Protocol struct {
	name      string
	author    string
	version   string
	options   []Option
	engine    Engine
	logger    zerolog.Logger
	out       io.Writer
	positions []common.Position

	thinking     bool
	engineOutput chan common.SearchInfo
	searchErr    error
	cancel       context.CancelFunc
}

func New(name, author, version string, engine Engine, options []Option,
	out io.Writer, logger zerolog.Logger) *Protocol {
	var initPosition, err = common.NewPositionFromFEN(common.InitialPositionFen)
	if err != nil {
		panic(err)
	}
	return &Protocol{
		name:      name,
		author:    author,
		version:   version,
		engine:    engine,
		options:   options,
		logger:    logger,
		out:       out,
		positions: []common.Position{initPosition},
	}
}

// Run serves commands from in until quit or end of input. At end of input a
// running search is allowed to finish; quit stops it.
func (uci *Protocol) Run(in io.Reader) {
	var commands = make(chan string)
	go func() {
		defer close(commands)
		readCommands(in, commands)
	}()

	var searchResult common.SearchInfo
	var quit bool
	for {
		select {
		case si, ok := <-uci.engineOutput:
			if ok {
				searchResult = si
				for _, line := range searchInfoToUci(si) {
					fmt.Fprintln(uci.out, line)
				}
				continue
			}
			uci.finishSearch(searchResult)
			searchResult = common.SearchInfo{}
			if commands == nil {
				return
			}
		case commandLine, ok := <-commands:
			if !ok {
				commands = nil
				if quit && uci.cancel != nil {
					uci.cancel()
				}
				if !uci.thinking {
					return
				}
				continue
			}
			if commandLine == "quit" {
				quit = true
				continue
			}
			if err := uci.handle(commandLine); err != nil {
				uci.logger.Warn().Err(err).Str("command", commandLine).Msg("uci command failed")
			}
		}
	}
}

func (uci *Protocol) finishSearch(searchResult common.SearchInfo) {
	if uci.searchErr != nil {
		uci.logger.Error().Err(uci.searchErr).Msg("search failed")
	}
	if bestMove := searchResult.BestMove(); bestMove != common.MoveEmpty {
		if ponderMove := searchResult.PonderMove(); ponderMove != common.MoveEmpty {
			fmt.Fprintf(uci.out, "bestmove %v ponder %v\n", bestMove, ponderMove)
		} else {
			fmt.Fprintf(uci.out, "bestmove %v\n", bestMove)
		}
	} else {
		fmt.Fprintln(uci.out, "bestmove 0000")
	}
	uci.cancel()
	uci.thinking = false
	uci.cancel = nil
	uci.engineOutput = nil
	uci.searchErr = nil
}

// readCommands stops at quit, which it forwards so that Run can stop a
// running search.
func readCommands(in io.Reader, commands chan<- string) {
	var scanner = bufio.NewScanner(in)
	for scanner.Scan() {
		var commandLine = strings.TrimSpace(scanner.Text())
		if commandLine == "" {
			continue
		}
		commands <- commandLine
		if commandLine == "quit" {
			return
		}
	}
}

func (uci *Protocol) handle(commandLine string) error {
	var fields = strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil
	}
	var commandName = fields[0]
	fields = fields[1:]

	if uci.thinking {
		switch commandName {
		case "stop":
			uci.cancel()
			return nil
		case "ponderhit":
			uci.engine.PonderHit()
			return nil
		case "isready":
			fmt.Fprintln(uci.out, "readyok")
			return nil
		}
		return errSearchRunning
	}

	var h func(fields []string) error

	switch commandName {
	case "uci":
		h = uci.uciCommand
	case "setoption":
		h = uci.setOptionCommand
	case "isready":
		h = uci.isReadyCommand
	case "position":
		h = uci.positionCommand
	case "go":
		h = uci.goCommand
	case "ucinewgame":
		h = uci.uciNewGameCommand
	case "stop", "ponderhit":
		return nil
	}

	if h == nil {
		return errCommandNotFound
	}

	return h(fields)
}

func (uci *Protocol) uciCommand(fields []string) error {
	fmt.Fprintf(uci.out, "id name %s %s\n", uci.name, uci.version)
	fmt.Fprintf(uci.out, "id author %s\n", uci.author)
	for _, option := range uci.options {
		fmt.Fprintln(uci.out, option.UciString())
	}
	fmt.Fprintln(uci.out, "uciok")
	return nil
}

// setoption name <name with spaces> [value <value>]
func (uci *Protocol) setOptionCommand(fields []string) error {
	if len(fields) < 2 || fields[0] != "name" {
		return errors.New("invalid setoption arguments")
	}
	var valueIndex = findIndexString(fields, "value")
	var name, value string
	if valueIndex == -1 {
		name = strings.Join(fields[1:], " ")
	} else {
		name = strings.Join(fields[1:valueIndex], " ")
		value = strings.Join(fields[valueIndex+1:], " ")
	}
	for _, option := range uci.options {
		if strings.EqualFold(option.UciName(), name) {
			if err := option.Set(value); err != nil {
				return err
			}
			uci.logger.Debug().Str("name", name).Str("value", value).Msg("option set")
			return nil
		}
	}
	return fmt.Errorf("unhandled option %v", name)
}

func (uci *Protocol) isReadyCommand(fields []string) error {
	uci.engine.Prepare()
	fmt.Fprintln(uci.out, "readyok")
	return nil
}

func (uci *Protocol) positionCommand(fields []string) error {
	if len(fields) == 0 {
		return errors.New("empty position command")
	}
	var args = fields
	var token = args[0]
	var fen string
	var movesIndex = findIndexString(args, "moves")
	if token == "startpos" {
		fen = common.InitialPositionFen
	} else if token == "fen" {
		if movesIndex == -1 {
			fen = strings.Join(args[1:], " ")
		} else {
			fen = strings.Join(args[1:movesIndex], " ")
		}
	} else {
		return errors.New("unknown position command")
	}
	var p, err = common.NewPositionFromFEN(fen)
	if err != nil {
		return err
	}
	var positions = []common.Position{p}
	if movesIndex >= 0 && movesIndex+1 < len(args) {
		for _, smove := range args[movesIndex+1:] {
			var newPos, ok = positions[len(positions)-1].MakeMoveLAN(smove)
			if !ok {
				return fmt.Errorf("parse move %v failed", smove)
			}
			positions = append(positions, newPos)
		}
	}
	uci.positions = positions
	return nil
}

func (uci *Protocol) goCommand(fields []string) error {
	var limits, err = parseLimits(fields)
	if err != nil {
		return err
	}
	var ctx, cancel = context.WithCancel(context.Background())
	var engineOutput = make(chan common.SearchInfo, 3)
	uci.cancel = cancel
	uci.thinking = true
	uci.engineOutput = engineOutput
	var positions = uci.positions
	go func() {
		var searchResult, err = uci.engine.Search(ctx, common.SearchParams{
			Positions: positions,
			Limits:    limits,
			Progress: func(si common.SearchInfo) {
				select {
				case engineOutput <- si:
				default:
				}
			},
		})
		uci.searchErr = err
		engineOutput <- searchResult
		close(engineOutput)
	}()
	return nil
}

func (uci *Protocol) uciNewGameCommand(fields []string) error {
	uci.engine.Clear()
	return nil
}

// searchInfoToUci renders one info line per root line.
func searchInfoToUci(si common.SearchInfo) []string {
	if len(si.Lines) == 0 {
		if si.Depth == 0 {
			return nil
		}
		si.Lines = []common.RootLine{{
			Rank:     1,
			Score:    si.Score,
			Depth:    si.Depth,
			SelDepth: si.SelDepth,
			PV:       si.MainLine,
		}}
	}
	var timeMs = si.Time.Milliseconds()
	var nps = si.Nodes * 1000 / (timeMs + 1)
	var result = make([]string, 0, len(si.Lines))
	for _, line := range si.Lines {
		var sb = &strings.Builder{}
		fmt.Fprintf(sb, "info depth %v seldepth %v", si.Depth, common.Max(line.SelDepth, si.SelDepth))
		if len(si.Lines) > 1 {
			fmt.Fprintf(sb, " multipv %v", line.Rank)
		}
		if line.Score.IsMate {
			fmt.Fprintf(sb, " score mate %v", line.Score.Mate)
		} else {
			fmt.Fprintf(sb, " score cp %v", line.Score.Centipawns)
		}
		fmt.Fprintf(sb, " nodes %v time %v nps %v hashfull %v",
			si.Nodes, timeMs, nps, si.HashFull)
		if len(line.PV) != 0 {
			fmt.Fprintf(sb, " pv")
			for _, move := range line.PV {
				sb.WriteString(" ")
				sb.WriteString(move.String())
			}
		}
		result = append(result, sb.String())
	}
	return result
}

func parseLimits(args []string) (result common.LimitsType, err error) {
	var next = func(i int) (int, error) {
		if i+1 >= len(args) {
			return 0, fmt.Errorf("missing value for %v", args[i])
		}
		return strconv.Atoi(args[i+1])
	}
	for i := 0; i < len(args) && err == nil; i++ {
		switch args[i] {
		case "ponder":
			result.Ponder = true
		case "infinite":
			result.Infinite = true
		case "wtime":
			result.WhiteTime, err = next(i)
			i++
		case "btime":
			result.BlackTime, err = next(i)
			i++
		case "winc":
			result.WhiteIncrement, err = next(i)
			i++
		case "binc":
			result.BlackIncrement, err = next(i)
			i++
		case "byoyomi":
			result.Byoyomi, err = next(i)
			i++
		case "movestogo":
			result.MovesToGo, err = next(i)
			i++
		case "depth":
			result.Depth, err = next(i)
			i++
		case "nodes":
			result.Nodes, err = next(i)
			i++
		case "mate":
			result.Mate, err = next(i)
			i++
		case "movetime":
			result.MoveTime, err = next(i)
			i++
		}
	}
	return
}

func findIndexString(slice []string, value string) int {
	for p, v := range slice {
		if v == value {
			return p
		}
	}
	return -1
}
