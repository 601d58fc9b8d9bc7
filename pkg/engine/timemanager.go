package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/ChizhovVadim/CounterSearch/pkg/common"
)

// timeManager turns LimitsType into soft and hard deadlines and owns the
// stop flag of one search. The hard deadline is enforced twice: by the
// primary at node flushes and by a timer that fires even when no node
// check happens.
type timeManager struct {
	limits    LimitsType
	softLimit time.Duration
	hardLimit time.Duration
	stop      *atomic.Bool

	mu        sync.Mutex
	start     time.Time
	pondering bool
	timer     *time.Timer

	once       sync.Once
	done       chan struct{}
	ponderHit  chan struct{}
	ponderOnce sync.Once
	stopCtx    func() bool
}

func newTimeManager(ctx context.Context, start time.Time,
	limits LimitsType, p *Position, stop *atomic.Bool) *timeManager {

	var tm = &timeManager{
		limits:    limits,
		stop:      stop,
		start:     start,
		pondering: limits.Ponder,
		done:      make(chan struct{}),
		ponderHit: make(chan struct{}),
	}

	if limits.MoveTime > 0 {
		tm.hardLimit = time.Duration(limits.MoveTime) * time.Millisecond
	} else if limits.WhiteTime > 0 || limits.BlackTime > 0 || limits.Byoyomi > 0 {
		var main, inc time.Duration
		if p.WhiteMove {
			main = time.Duration(limits.WhiteTime) * time.Millisecond
			inc = time.Duration(limits.WhiteIncrement) * time.Millisecond
		} else {
			main = time.Duration(limits.BlackTime) * time.Millisecond
			inc = time.Duration(limits.BlackIncrement) * time.Millisecond
		}
		var byoyomi = time.Duration(limits.Byoyomi) * time.Millisecond
		tm.softLimit, tm.hardLimit = calcLimits(main, inc, byoyomi, limits.MovesToGo)
	}

	if ctx.Err() != nil {
		tm.stopSearch()
		tm.stopCtx = func() bool { return true }
		return tm
	}
	tm.stopCtx = context.AfterFunc(ctx, tm.stopSearch)
	if !tm.pondering {
		tm.armTimer()
	}
	return tm
}

func (tm *timeManager) armTimer() {
	if tm.hardLimit == 0 {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.timer = time.AfterFunc(tm.hardLimit-time.Since(tm.start), tm.stopSearch)
}

func (tm *timeManager) stopSearch() {
	tm.once.Do(func() {
		tm.stop.Store(true)
		close(tm.done)
	})
}

// PonderHit restarts the clock: the budget is counted from now.
func (tm *timeManager) PonderHit() {
	tm.ponderOnce.Do(func() {
		tm.mu.Lock()
		tm.pondering = false
		tm.start = time.Now()
		tm.mu.Unlock()
		close(tm.ponderHit)
		tm.armTimer()
	})
}

func (tm *timeManager) elapsed() (time.Duration, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return time.Since(tm.start), tm.pondering
}

// checkDeadline is called by the primary every few thousand nodes.
func (tm *timeManager) checkDeadline() {
	if tm.hardLimit == 0 {
		return
	}
	if elapsed, pondering := tm.elapsed(); !pondering && elapsed >= tm.hardLimit {
		tm.stopSearch()
	}
}

func (tm *timeManager) OnNodesChanged(nodes int64) {
	if tm.limits.Nodes > 0 && nodes >= int64(tm.limits.Nodes) {
		tm.stopSearch()
	}
}

func (tm *timeManager) OnIterationComplete(depth, score int) {
	if tm.limits.Infinite {
		return
	}
	if tm.limits.Depth != 0 && depth >= tm.limits.Depth {
		tm.stopSearch()
		return
	}
	if tm.limits.Mate > 0 {
		if ply, ok := MatePly(score); ok && ply > 0 && (ply+1)/2 <= tm.limits.Mate {
			tm.stopSearch()
			return
		}
	}
	var elapsed, pondering = tm.elapsed()
	if pondering {
		return
	}
	if score >= winIn(depth-5) ||
		score <= lossIn(depth-5) {
		tm.stopSearch()
		return
	}
	if tm.softLimit != 0 && elapsed >= tm.softLimit {
		tm.stopSearch()
		return
	}
}

// waitRelease holds back the result of an infinite or ponder search that
// ran out of depth until the GUI asks for it.
func (tm *timeManager) waitRelease() {
	if tm.limits.Infinite {
		<-tm.done
		return
	}
	if _, pondering := tm.elapsed(); pondering {
		select {
		case <-tm.done:
		case <-tm.ponderHit:
		}
	}
}

func (tm *timeManager) Close() {
	tm.stopCtx()
	tm.stopSearch()
	tm.mu.Lock()
	if tm.timer != nil {
		tm.timer.Stop()
	}
	tm.mu.Unlock()
}

func calcLimits(main, inc, byoyomi time.Duration, moves int) (soft, hard time.Duration) {
	const (
		DefaultMovesToGo = 40
		MoveOverhead     = 300 * time.Millisecond
		MinTimeLimit     = 1 * time.Millisecond
	)

	main -= MoveOverhead
	if main < MinTimeLimit {
		main = MinTimeLimit
	}

	if moves == 0 {
		var ideal = main/35 + inc/2
		soft = ideal * 7 / 10
		hard = ideal * 21 / 10
	} else {
		moves = Min(moves, DefaultMovesToGo)
		soft = (main/time.Duration(moves+1) + inc) * 7 / 10
		hard = (main/time.Duration(moves+1) + inc) * 21 / 10
	}

	var maximum = main
	// byoyomi is spent each move, on top of the main time
	if byoyomi -= MoveOverhead; byoyomi > 0 {
		soft += byoyomi / 2
		hard += byoyomi
		maximum += byoyomi
	}

	hard = limitDuration(hard, MinTimeLimit, maximum)
	soft = limitDuration(soft, MinTimeLimit, maximum)

	return
}

func limitDuration(v, min, max time.Duration) time.Duration {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
