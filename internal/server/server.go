package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/ChizhovVadim/CounterSearch/pkg/common"
	"github.com/ChizhovVadim/CounterSearch/pkg/transtable"
)

const (
	defaultMoveTime = time.Second
	maxMoveTime     = time.Minute
	maxBodyBytes    = 1 << 16
)

var errBadLimit = errors.New("negative search limit")

// Searcher is the part of the engine the server drives.
type Searcher interface {
	Search(ctx context.Context, searchParams common.SearchParams) (common.SearchInfo, error)
	TransTable() *transtable.Table
}

type Server struct {
	engine Searcher
	logger zerolog.Logger
}

func New(eng Searcher, logger zerolog.Logger) *Server {
	return &Server{engine: eng, logger: logger}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Post("/api/search", s.handleSearch)
	r.Get("/api/tt", s.handleTransTable)
	r.Get("/ws/analyze", s.serveAnalyzeWS)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ww = middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		var start = time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("request", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

type searchRequest struct {
	Fen      string   `json:"fen"`
	Moves    []string `json:"moves"`
	Depth    int      `json:"depth"`
	Nodes    int      `json:"nodes"`
	MoveTime int      `json:"movetime"`
	MultiPV  int      `json:"multipv"`
}

type scoreDTO struct {
	Cp   int  `json:"cp"`
	Mate *int `json:"mate,omitempty"`
}

type lineDTO struct {
	Rank     int      `json:"rank"`
	Move     string   `json:"move"`
	Score    scoreDTO `json:"score"`
	SelDepth int      `json:"seldepth"`
	PV       []string `json:"pv"`
}

type searchResponse struct {
	ID          string    `json:"id"`
	BestMove    string    `json:"bestmove,omitempty"`
	Ponder      string    `json:"ponder,omitempty"`
	Score       scoreDTO  `json:"score"`
	Depth       int       `json:"depth"`
	SelDepth    int       `json:"seldepth"`
	Nodes       int64     `json:"nodes"`
	NodesHuman  string    `json:"nodes_human"`
	NPS         int64     `json:"nps"`
	TimeMs      int64     `json:"time_ms"`
	HashFull    int       `json:"hashfull"`
	Duplication float64   `json:"duplication"`
	Lines       []lineDTO `json:"lines"`
}

type ttResponse struct {
	Megabytes  int              `json:"megabytes"`
	Size       string           `json:"size"`
	Buckets    int              `json:"buckets"`
	BucketSize int              `json:"bucket_size"`
	Generation uint8            `json:"generation"`
	HashFull   int              `json:"hashfull"`
	Occupancy  int              `json:"occupancy"`
	GCPending  bool             `json:"gc_pending"`
	Stats      transtable.Stats `json:"stats"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var params, err = req.searchParams()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	info, err := s.engine.Search(r.Context(), params)
	if err != nil {
		s.logger.Error().Err(err).Msg("search failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, newSearchResponse(info))
}

func (s *Server) handleTransTable(w http.ResponseWriter, r *http.Request) {
	var tt = s.engine.TransTable()
	writeJSON(w, http.StatusOK, ttResponse{
		Megabytes:  tt.Megabytes(),
		Size:       humanize.IBytes(uint64(tt.Megabytes()) << 20),
		Buckets:    tt.Buckets(),
		BucketSize: tt.BucketSize(),
		Generation: tt.Generation(),
		HashFull:   tt.HashFull(),
		Occupancy:  tt.Occupancy(),
		GCPending:  tt.GCPending(),
		Stats:      tt.Stats(),
	})
}

// searchParams applies the server limits: movetime is capped and a
// request without any limit gets the default movetime.
func (req *searchRequest) searchParams() (common.SearchParams, error) {
	var positions, err = parsePositions(req.Fen, req.Moves)
	if err != nil {
		return common.SearchParams{}, err
	}
	if req.Depth < 0 || req.Nodes < 0 || req.MoveTime < 0 {
		return common.SearchParams{}, errBadLimit
	}
	var limits = common.LimitsType{
		Depth:    req.Depth,
		Nodes:    req.Nodes,
		MoveTime: req.MoveTime,
	}
	if limits.Depth == 0 && limits.Nodes == 0 && limits.MoveTime == 0 {
		limits.MoveTime = int(defaultMoveTime.Milliseconds())
	}
	limits.MoveTime = min(limits.MoveTime, int(maxMoveTime.Milliseconds()))
	if limits.MoveTime == 0 {
		limits.MoveTime = int(maxMoveTime.Milliseconds())
	}
	return common.SearchParams{
		Positions: positions,
		Limits:    limits,
		MultiPV:   req.MultiPV,
	}, nil
}

func parsePositions(fen string, moves []string) ([]common.Position, error) {
	if fen == "" || fen == "startpos" {
		fen = common.InitialPositionFen
	}
	var p, err = common.NewPositionFromFEN(fen)
	if err != nil {
		return nil, err
	}
	var positions = []common.Position{p}
	for _, smove := range moves {
		var child, ok = positions[len(positions)-1].MakeMoveLAN(smove)
		if !ok {
			return nil, fmt.Errorf("illegal move %v", smove)
		}
		positions = append(positions, child)
	}
	return positions, nil
}

func newScoreDTO(score common.UciScore) scoreDTO {
	var result = scoreDTO{Cp: score.Centipawns}
	if score.IsMate {
		result.Mate = lo.ToPtr(score.Mate)
	}
	return result
}

func movesToStrings(moves []common.Move) []string {
	return lo.Map(moves, func(m common.Move, _ int) string { return m.String() })
}

func newSearchResponse(info common.SearchInfo) searchResponse {
	var result = searchResponse{
		ID:          info.ID,
		Score:       newScoreDTO(info.Score),
		Depth:       info.Depth,
		SelDepth:    info.SelDepth,
		Nodes:       info.Nodes,
		NodesHuman:  humanize.Comma(info.Nodes),
		TimeMs:      info.Time.Milliseconds(),
		HashFull:    info.HashFull,
		Duplication: info.Duplication,
		Lines: lo.Map(info.Lines, func(line common.RootLine, _ int) lineDTO {
			return lineDTO{
				Rank:     line.Rank,
				Move:     line.Move.String(),
				Score:    newScoreDTO(line.Score),
				SelDepth: line.SelDepth,
				PV:       movesToStrings(line.PV),
			}
		}),
	}
	if m := info.BestMove(); m != common.MoveEmpty {
		result.BestMove = m.String()
	}
	if m := info.PonderMove(); m != common.MoveEmpty {
		result.Ponder = m.String()
	}
	if ms := info.Time.Milliseconds(); ms > 0 {
		result.NPS = info.Nodes * 1000 / ms
	}
	return result
}

func mustMarshal(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
