package engine

import . "github.com/ChizhovVadim/CounterSearch/pkg/common"

const historyMax = 1 << 14

type historyTables struct {
	main         [2 << 12]int16
	continuation [1 << 10][1 << 10]int16
}

type historyContext struct {
	tables     *historyTables
	sideToMove bool
	cont1      int
	cont2      int
}

func (h *historyContext) ReadTotal(m Move) int {
	var score = int(h.tables.main[sideFromToIndex(h.sideToMove, m)])
	var pieceToIndex = pieceSquareIndex(h.sideToMove, m)
	if h.cont1 != -1 {
		score += int(h.tables.continuation[h.cont1][pieceToIndex])
	}
	if h.cont2 != -1 {
		score += int(h.tables.continuation[h.cont2][pieceToIndex])
	}
	return score
}

// Update rewards bestMove and penalizes the quiets tried before it.
func (h *historyContext) Update(quietsSearched []Move, bestMove Move, depth int) {
	var bonus = Min(depth*depth, 400)
	var tables = h.tables

	for _, m := range quietsSearched {
		var good = m == bestMove

		updateHistory(&tables.main[sideFromToIndex(h.sideToMove, m)], bonus, good)
		var pieceToIndex = pieceSquareIndex(h.sideToMove, m)
		if h.cont1 != -1 {
			updateHistory(&tables.continuation[h.cont1][pieceToIndex], bonus, good)
		}
		if h.cont2 != -1 {
			updateHistory(&tables.continuation[h.cont2][pieceToIndex], bonus, good)
		}

		if good {
			break
		}
	}
}

// Exponential moving average
func updateHistory(v *int16, bonus int, good bool) {
	var newVal int
	if good {
		newVal = historyMax
	} else {
		newVal = -historyMax
	}
	*v += int16((newVal - int(*v)) * bonus / 512)
}

func (h *historyTables) clear() {
	*h = historyTables{}
}

func (t *thread) getHistoryContext(height int) historyContext {
	var sideToMove = t.stack[height].position.WhiteMove
	var cont1 = -1
	if prev1 := t.stack[height].position.LastMove; prev1 != MoveEmpty {
		cont1 = pieceSquareIndex(!sideToMove, prev1)
	}
	var cont2 = -1
	if height > 0 {
		if prev2 := t.stack[height-1].position.LastMove; prev2 != MoveEmpty {
			cont2 = pieceSquareIndex(sideToMove, prev2)
		}
	}
	return historyContext{
		tables:     &t.history,
		sideToMove: sideToMove,
		cont1:      cont1,
		cont2:      cont2,
	}
}

func pieceSquareIndex(side bool, move Move) int {
	var result = (move.MovingPiece() << 6) | move.To()
	if side {
		result |= 1 << 9
	}
	return result
}

func sideFromToIndex(side bool, move Move) int {
	var result = (move.From() << 6) | move.To()
	if side {
		result |= 1 << 12
	}
	return result
}

func (t *thread) updateKiller(move Move, height int) {
	if t.stack[height].killer1 != move {
		t.stack[height].killer2 = t.stack[height].killer1
		t.stack[height].killer1 = move
	}
}
