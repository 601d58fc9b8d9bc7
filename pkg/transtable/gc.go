package transtable

// PerformIncrementalGC clears up to n stale slots, scanning from a shared
// cursor so concurrent callers work on different parts of the table. A slot
// is stale when it was written GCAgeThreshold or more searches ago. It
// returns the number of cleared slots and disarms the trigger after a full
// sweep.
func (t *Table) PerformIncrementalGC(n int) int {
	if n <= 0 {
		return 0
	}
	var total = uint64(len(t.slots))
	var generation = t.Generation()
	var cleared = 0
	for i := 0; i < n; i++ {
		var index = t.gcCursor.Add(1) - 1
		if index%total == total-1 {
			t.gcPending.Store(false)
		}
		var s = &t.slots[index%total]
		var keyWord = s.key.Load()
		if !IsOccupied(keyWord) {
			continue
		}
		var data = s.data.Load()
		if data == 0 {
			continue
		}
		if RelativeAge(Decode(data).Generation, generation) < t.cfg.GCAgeThreshold {
			continue
		}
		// Data first so a concurrent reader sees a miss, never a stale hit
		// under a fresh key.
		if !s.data.CompareAndSwap(data, 0) {
			continue
		}
		s.key.CompareAndSwap(keyWord, 0)
		cleared++
	}
	if cleared != 0 {
		t.gcCleared.Add(uint64(cleared))
	}
	return cleared
}
