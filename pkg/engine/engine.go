package engine

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"lukechampine.com/frand"

	. "github.com/ChizhovVadim/CounterSearch/pkg/common"
	"github.com/ChizhovVadim/CounterSearch/pkg/transtable"
)

var (
	ErrPrimaryWorker = errors.New("primary search worker failed")
	errBadEvaluator  = errors.New("bad eval builder")
)

type Engine struct {
	Options     Options
	logger      zerolog.Logger
	evalBuilder func() interface{}
	transTable  *transtable.Table
	table       atomic.Pointer[transtable.Table]
	threads     []thread
	historyKeys map[uint64]int
	timeManager atomic.Pointer[timeManager]
	progress    func(SearchInfo)
	start       time.Time
	multiPV     int

	stop        atomic.Bool
	stopPending atomic.Bool
	nodes       atomic.Int64
	qnodes      atomic.Int64

	searchMu sync.Mutex
}

type thread struct {
	engine    *Engine
	id        int
	evaluator IUpdatableEvaluator
	rng       *frand.RNG
	history   historyTables

	nodes        int64
	qnodes       int64
	flushedNodes int64
	flushedQ     int64
	flushes      int
	selDepth     int
	ttCutoffs    int64

	rootMoves []rootMove
	pvIdx     int
	result    workerResult

	stack [stackSize]struct {
		position       Position
		picker         movePicker
		moveList       [MaxMoves]OrderedMove
		badCaptures    [MaxMoves]Move
		quietsSearched [MaxMoves]Move
		pv             pv
		staticEval     int
		killer1        Move
		killer2        Move
	}
}

type rootMove struct {
	move      Move
	score     int
	prevScore int
	selDepth  int
	pv        []Move
}

type pv struct {
	items [stackSize]Move
	size  int
}

type IEvaluator interface {
	Evaluate(p *Position) int
}

// IUpdatableEvaluator is notified of every move the search makes and takes
// back. Calls are balanced: each MakeMove is followed by one UnmakeMove,
// each MakeNullMove by one UnmakeNullMove.
type IUpdatableEvaluator interface {
	Init(p *Position)
	MakeMove(p *Position, m Move)
	UnmakeMove()
	MakeNullMove(p *Position)
	UnmakeNullMove()
	EvaluateQuick(p *Position) int
}

func NewEngine(evalBuilder func() interface{}, logger zerolog.Logger) *Engine {
	return &Engine{
		Options:     NewOptions(),
		logger:      logger,
		evalBuilder: evalBuilder,
	}
}

func (e *Engine) Prepare() {
	var options = &e.Options
	if e.transTable == nil ||
		e.transTable.Megabytes() != options.Hash ||
		e.transTable.BucketSize() != options.BucketSize {
		if e.transTable != nil {
			e.transTable = nil
			runtime.GC()
		}
		var cfg = transtable.DefaultConfig(options.Hash)
		cfg.BucketSize = options.BucketSize
		cfg.ScoreLimit = valueInfinity
		cfg.DebugTornReads = options.DebugTornReads
		cfg.Logger = e.logger
		e.transTable = transtable.New(cfg)
		e.table.Store(e.transTable)
	}
	var threads = Max(1, options.Threads)
	if len(e.threads) != threads {
		e.threads = make([]thread, threads)
		for i := range e.threads {
			var t = &e.threads[i]
			t.engine = e
			t.id = i
			t.evaluator = e.buildEvaluator()
			if i != 0 {
				// helpers are reproducible for a given worker count
				var seed [32]byte
				seed[0] = byte(i)
				t.rng = frand.NewCustom(seed[:], 1024, 12)
			}
		}
	}
}

// Search blocks until the search is stopped by its limits, by ctx or by
// Stop. The returned error is set only when the primary worker failed.
func (e *Engine) Search(ctx context.Context, searchParams SearchParams) (SearchInfo, error) {
	e.searchMu.Lock()
	defer e.searchMu.Unlock()

	e.start = time.Now()
	e.Prepare()
	var p = &searchParams.Positions[len(searchParams.Positions)-1]

	e.stop.Store(false)
	e.nodes.Store(0)
	e.qnodes.Store(0)
	var tm = newTimeManager(ctx, e.start, searchParams.Limits, p, &e.stop)
	e.timeManager.Store(tm)
	if e.stopPending.Swap(false) {
		tm.stopSearch()
	}
	defer func() {
		tm.Close()
		e.timeManager.Store(nil)
	}()

	e.transTable.NewSearch()
	e.historyKeys = getHistoryKeys(searchParams.Positions)
	e.progress = searchParams.Progress
	e.multiPV = Max(1, Max(searchParams.MultiPV, e.Options.MultiPV))
	for i := range e.threads {
		e.threads[i].reset(p)
	}

	var id = uuid.NewString()
	var rootMoves = e.genRootMoves()
	e.logger.Debug().
		Str("id", id).
		Int("rootMoves", len(rootMoves)).
		Int("threads", len(e.threads)).
		Str("profile", e.Options.Profile).
		Msg("search started")

	var result SearchInfo
	var err error
	switch len(rootMoves) {
	case 0:
		result = e.noMovesResult(p)
	case 1:
		result = e.singleMoveResult(p, rootMoves[0].move)
		tm.waitRelease()
	default:
		result, err = lazySmp(e, rootMoves)
	}
	result.ID = id
	result.Time = time.Since(e.start)
	result.HashFull = e.transTable.HashFull()

	e.logger.Debug().
		Str("id", id).
		Int("depth", result.Depth).
		Int64("nodes", result.Nodes).
		Int64("ttCutoffs", result.TTCutoffs).
		Float64("duplication", result.Duplication).
		Dur("time", result.Time).
		Err(err).
		Msg("search finished")
	return result, err
}

// Stop makes the running search return as soon as possible. A Stop that
// arrives while no search is running applies to the next one.
func (e *Engine) Stop() {
	if tm := e.timeManager.Load(); tm != nil {
		tm.stopSearch()
		return
	}
	e.stopPending.Store(true)
	// Search may have installed its time manager after the first load.
	if tm := e.timeManager.Load(); tm != nil && e.stopPending.Swap(false) {
		tm.stopSearch()
	}
}

// PonderHit turns a running ponder search into a normal timed search.
func (e *Engine) PonderHit() {
	if tm := e.timeManager.Load(); tm != nil {
		tm.PonderHit()
	}
}

// TransTable does not wait for a running search.
func (e *Engine) TransTable() *transtable.Table {
	if tt := e.table.Load(); tt != nil {
		return tt
	}
	e.searchMu.Lock()
	defer e.searchMu.Unlock()
	e.Prepare()
	return e.transTable
}

func getHistoryKeys(positions []Position) map[uint64]int {
	var result = make(map[uint64]int)
	for i := len(positions) - 1; i >= 0; i-- {
		var p = &positions[i]
		result[p.Key]++
		if p.Rule50 == 0 {
			break
		}
	}
	return result
}

func (e *Engine) Clear() {
	e.searchMu.Lock()
	defer e.searchMu.Unlock()
	if e.transTable != nil {
		e.transTable.Clear()
	}
	for i := range e.threads {
		e.threads[i].history.clear()
	}
}

func (t *thread) reset(p *Position) {
	t.nodes = 0
	t.qnodes = 0
	t.flushedNodes = 0
	t.flushedQ = 0
	t.flushes = 0
	t.ttCutoffs = 0
	t.selDepth = 0
	t.result = workerResult{id: t.id}
	t.history.clear()
	for i := range t.stack {
		t.stack[i].killer1 = MoveEmpty
		t.stack[i].killer2 = MoveEmpty
	}
	t.stack[0].position = *p
}

// genRootMoves orders the legal root moves the way the picker would.
func (e *Engine) genRootMoves() []rootMove {
	var t = &e.threads[0]
	const height = 0
	var p = &t.stack[height].position
	var ttMove Move
	if entry, ok := e.transTable.Probe(p.Key); ok {
		ttMove = p.UnpackMove(entry.Move)
	}
	var historyContext = t.getHistoryContext(height)
	var mp = t.initPicker(height, ttMove, MoveEmpty, &historyContext)
	mp.jitter = nil

	var result []rootMove
	var child Position
	for {
		var move = mp.Next()
		if move == MoveEmpty {
			break
		}
		if p.MakeMove(move, &child) {
			result = append(result, rootMove{
				move:      move,
				score:     -valueInfinity,
				prevScore: -valueInfinity,
			})
		}
	}
	return result
}

func (e *Engine) noMovesResult(p *Position) SearchInfo {
	var value = valueDraw
	if p.IsCheck() {
		value = lossIn(0)
	}
	return SearchInfo{
		Score: newUciScore(value),
		Value: value,
	}
}

// singleMoveResult answers a forced move without searching.
func (e *Engine) singleMoveResult(p *Position, move Move) SearchInfo {
	var evaluator = e.threads[0].evaluator
	evaluator.Init(p)
	var value = evaluator.EvaluateQuick(p)
	var line = RootLine{
		Rank:  1,
		Move:  move,
		Score: newUciScore(value),
		Value: value,
		Depth: 1,
		PV:    []Move{move},
	}
	return SearchInfo{
		Score:    line.Score,
		Value:    value,
		Depth:    1,
		SelDepth: 1,
		MainLine: line.PV,
		Lines:    []RootLine{line},
	}
}

func (pv *pv) clear() {
	pv.size = 0
}

func (pv *pv) assign(m Move, child *pv) {
	pv.size = 1
	pv.items[0] = m
	if child.size > 0 {
		pv.size += child.size
		copy(pv.items[1:], child.items[:child.size])
	}
}

// EvaluatorAdapter lets a plain IEvaluator serve the search.
type EvaluatorAdapter struct {
	evaluator IEvaluator
}

func (e *EvaluatorAdapter) Init(p *Position)             {}
func (e *EvaluatorAdapter) MakeMove(p *Position, m Move) {}
func (e *EvaluatorAdapter) UnmakeMove()                  {}
func (e *EvaluatorAdapter) MakeNullMove(p *Position)     {}
func (e *EvaluatorAdapter) UnmakeNullMove()              {}

func (e *EvaluatorAdapter) EvaluateQuick(p *Position) int {
	return e.evaluator.Evaluate(p)
}

func (e *Engine) buildEvaluator() IUpdatableEvaluator {
	var evaluationService = e.evalBuilder()
	if ue, ok := evaluationService.(IUpdatableEvaluator); ok {
		return ue
	}
	if e, ok := evaluationService.(IEvaluator); ok {
		return &EvaluatorAdapter{evaluator: e}
	}
	panic(errBadEvaluator)
}
