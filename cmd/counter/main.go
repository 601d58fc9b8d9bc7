package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/ChizhovVadim/CounterSearch/internal/evalbuilder"
	"github.com/ChizhovVadim/CounterSearch/internal/server"
	"github.com/ChizhovVadim/CounterSearch/pkg/engine"
	"github.com/ChizhovVadim/CounterSearch/pkg/uci"
)

/*
Counter Copyright (C) 2017-2023 Vadim Chizhov
This program is free software: you can redistribute it and/or modify it under the terms of the GNU General Public License as published by the Free Software Foundation, either version 3 of the License, or (at your option) any later version.
This program is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU General Public License for more details.
You should have received a copy of the GNU General Public License along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

const (
	name   = "Counter"
	author = "Vadim Chizhov"
)

var (
	versionName = "dev"
	buildDate   = "(null)"
	gitRevision = "(null)"
)

var (
	flgMode    string
	flgEval    string
	flgAddr    string
	flgDebug   bool
	flgHash    int
	flgThreads int
)

func main() {
	flag.StringVar(&flgMode, "mode", "uci", "uci or serve")
	flag.StringVar(&flgEval, "eval", evalbuilder.Default, "specifies evaluation function")
	flag.StringVar(&flgAddr, "addr", ":8080", "listen address for serve mode")
	flag.BoolVar(&flgDebug, "debug", false, "debug logging")
	flag.IntVar(&flgHash, "hash", 16, "transposition table size in MB")
	flag.IntVar(&flgThreads, "threads", 1, "search threads")
	flag.Parse()

	var level = zerolog.InfoLevel
	if flgDebug {
		level = zerolog.DebugLevel
	}
	var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()

	logger.Info().
		Str("versionName", versionName).
		Str("buildDate", buildDate).
		Str("gitRevision", gitRevision).
		Str("runtimeVersion", runtime.Version()).
		Str("goarch", runtime.GOARCH).
		Str("goos", runtime.GOOS).
		Int("numCPU", runtime.NumCPU()).
		Msg(name)

	var evalBuilder, err = evalbuilder.Get(flgEval)
	if err != nil {
		logger.Fatal().Err(err).Msg("bad eval flag")
	}
	var eng = engine.NewEngine(evalBuilder, logger)
	eng.Options.Hash = flgHash
	eng.Options.Threads = flgThreads

	switch flgMode {
	case "uci":
		runUci(eng, logger)
	case "serve":
		if err := runServer(eng, logger); err != nil {
			logger.Fatal().Err(err).Msg("server failed")
		}
	default:
		logger.Fatal().Str("mode", flgMode).Msg("unknown mode")
	}
}

func runUci(eng *engine.Engine, logger zerolog.Logger) {
	var protocol = uci.New(name, author, versionName, eng,
		[]uci.Option{
			&uci.IntOption{Name: "Hash", Min: 4, Max: 1 << 16, Value: &eng.Options.Hash},
			&uci.IntOption{Name: "Threads", Min: 1, Max: runtime.NumCPU(), Value: &eng.Options.Threads},
			&uci.IntOption{Name: "MultiPV", Min: 1, Max: 64, Value: &eng.Options.MultiPV},
			&uci.IntOption{Name: "BucketSize", Min: 4, Max: 16, Value: &eng.Options.BucketSize},
			&uci.ComboOption{Name: "Profile",
				Vars:  []string{engine.ProfileDefault, engine.ProfileClassic, engine.ProfileMinimal},
				Value: &eng.Options.Profile, Apply: eng.Options.ApplyProfile},
			&uci.BoolOption{Name: "DebugTornReads", Value: &eng.Options.DebugTornReads},
			&uci.ButtonOption{Name: "Clear Hash", Action: eng.Clear},
		},
		os.Stdout, logger,
	)
	protocol.Run(os.Stdin)
}

func runServer(eng *engine.Engine, logger zerolog.Logger) error {
	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var srv = &http.Server{
		Addr:              flgAddr,
		Handler:           server.New(eng, logger).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		var shutdownCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info().Str("addr", flgAddr).Msg("analysis server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
