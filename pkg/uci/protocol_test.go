package uci

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/ChizhovVadim/CounterSearch/pkg/common"
	"github.com/ChizhovVadim/CounterSearch/pkg/engine"
	material "github.com/ChizhovVadim/CounterSearch/pkg/eval/material"
)

func newTestProtocol(out *bytes.Buffer) (*Protocol, *engine.Engine) {
	var eng = engine.NewEngine(func() interface{} {
		return material.NewEvaluationService()
	}, zerolog.Nop())
	eng.Options.Hash = 4
	var protocol = New("Counter", "test", "dev", eng,
		[]Option{
			&IntOption{Name: "Hash", Min: 4, Max: 1024, Value: &eng.Options.Hash},
			&IntOption{Name: "Threads", Min: 1, Max: 8, Value: &eng.Options.Threads},
			&IntOption{Name: "MultiPV", Min: 1, Max: 16, Value: &eng.Options.MultiPV},
			&ComboOption{Name: "Profile", Vars: []string{engine.ProfileDefault, engine.ProfileClassic, engine.ProfileMinimal},
				Value: &eng.Options.Profile, Apply: eng.Options.ApplyProfile},
			&BoolOption{Name: "Debug Torn Reads", Value: &eng.Options.DebugTornReads},
			&ButtonOption{Name: "Clear Hash", Action: eng.Clear},
		},
		out, zerolog.Nop())
	return protocol, eng
}

func run(commands ...string) (string, *engine.Engine) {
	var out bytes.Buffer
	var protocol, eng = newTestProtocol(&out)
	protocol.Run(strings.NewReader(strings.Join(commands, "\n") + "\n"))
	return out.String(), eng
}

func TestHandshake(t *testing.T) {
	is := is.New(t)
	var out, _ = run("uci", "isready")
	is.True(strings.Contains(out, "id name Counter dev\n"))
	is.True(strings.Contains(out, "option name Hash type spin default 4 min 4 max 1024\n"))
	is.True(strings.Contains(out, "option name Profile type combo default default var default var classic var minimal\n"))
	is.True(strings.Contains(out, "option name Clear Hash type button\n"))
	is.True(strings.HasSuffix(out, "uciok\nreadyok\n"))
}

func TestSetOption(t *testing.T) {
	is := is.New(t)
	var _, eng = run(
		"setoption name Threads value 3",
		"setoption name Profile value Classic",
		"setoption name Debug Torn Reads value true",
		"setoption name Hash value 100000",
		"setoption name Clear Hash",
	)
	is.Equal(eng.Options.Threads, 3)
	is.Equal(eng.Options.Profile, engine.ProfileClassic)
	is.True(!eng.Options.Razoring)
	is.True(eng.Options.DebugTornReads)
	is.Equal(eng.Options.Hash, 4)
}

func TestGoDepth(t *testing.T) {
	is := is.New(t)
	var out, _ = run("position startpos moves e2e4 e7e5", "go depth 3")
	var lines = strings.Split(strings.TrimSpace(out), "\n")
	var last = lines[len(lines)-1]
	is.True(strings.HasPrefix(last, "bestmove "))
	is.True(strings.Contains(out, "info depth 3 seldepth "))
}

func TestGoMultiPV(t *testing.T) {
	is := is.New(t)
	var out, _ = run("setoption name MultiPV value 2", "position startpos", "go depth 2")
	is.True(strings.Contains(out, " multipv 1 "))
	is.True(strings.Contains(out, " multipv 2 "))
}

func TestQuitStopsInfinite(t *testing.T) {
	is := is.New(t)
	var done = make(chan string)
	go func() {
		var out, _ = run("position startpos", "go infinite", "quit")
		done <- out
	}()
	select {
	case out := <-done:
		is.True(strings.Contains(out, "bestmove "))
	case <-time.After(10 * time.Second):
		t.Fatal("quit did not stop the search")
	}
}

func TestMatedPosition(t *testing.T) {
	is := is.New(t)
	var out, _ = run("position fen R5k1/5ppp/8/8/8/8/8/6K1 b - - 0 1", "go depth 3")
	is.True(strings.HasSuffix(out, "bestmove 0000\n"))
}

func TestBadCommands(t *testing.T) {
	is := is.New(t)
	var out bytes.Buffer
	var protocol, _ = newTestProtocol(&out)
	is.True(protocol.handle("position fen not-a-fen") != nil)
	is.True(protocol.handle("position startpos moves e2e5") != nil)
	is.True(protocol.handle("go depth") != nil)
	is.Equal(protocol.handle("xyzzy"), errCommandNotFound)
	is.True(protocol.handle("setoption name Hash value 1") != nil)
	is.True(protocol.handle("setoption name Missing value 1") != nil)
}

func TestParseLimits(t *testing.T) {
	is := is.New(t)
	var limits, err = parseLimits(strings.Fields("ponder wtime 1000 btime 2000 winc 10 binc 20 movestogo 5 byoyomi 300"))
	is.NoErr(err)
	is.Equal(limits, common.LimitsType{
		Ponder: true, WhiteTime: 1000, BlackTime: 2000,
		WhiteIncrement: 10, BlackIncrement: 20, MovesToGo: 5, Byoyomi: 300,
	})
	limits, err = parseLimits(strings.Fields("depth 7 nodes 1000 mate 3 movetime 50 infinite"))
	is.NoErr(err)
	is.Equal(limits, common.LimitsType{Depth: 7, Nodes: 1000, Mate: 3, MoveTime: 50, Infinite: true})
	_, err = parseLimits(strings.Fields("depth x"))
	is.True(err != nil)
}

func TestSearchInfoToUci(t *testing.T) {
	is := is.New(t)
	var p, _ = common.NewPositionFromFEN(common.InitialPositionFen)
	var e4 = p.ParseMoveLAN("e2e4")
	var d4 = p.ParseMoveLAN("d2d4")
	var lines = searchInfoToUci(common.SearchInfo{
		Depth:    5,
		SelDepth: 9,
		Nodes:    1000,
		Time:     time.Second,
		HashFull: 12,
		Lines: []common.RootLine{
			{Rank: 1, Score: common.UciScore{Centipawns: 30}, PV: []common.Move{e4}},
			{Rank: 2, Score: common.UciScore{Mate: -3, IsMate: true}, PV: []common.Move{d4}},
		},
	})
	is.Equal(lines, []string{
		"info depth 5 seldepth 9 multipv 1 score cp 30 nodes 1000 time 1000 nps 999 hashfull 12 pv e2e4",
		"info depth 5 seldepth 9 multipv 2 score mate -3 nodes 1000 time 1000 nps 999 hashfull 12 pv d2d4",
	})
	is.Equal(len(searchInfoToUci(common.SearchInfo{})), 0)

	lines = searchInfoToUci(common.SearchInfo{Depth: 1, Score: common.UciScore{IsMate: true}})
	is.Equal(lines, []string{"info depth 1 seldepth 0 score mate 0 nodes 0 time 0 nps 0 hashfull 0"})
}
