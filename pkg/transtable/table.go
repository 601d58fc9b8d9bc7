package transtable

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog"
)

type StoreResult int

const (
	Filtered StoreResult = iota
	Stored
	Updated
	Decayed
)

func (r StoreResult) String() string {
	switch r {
	case Stored:
		return "stored"
	case Updated:
		return "updated"
	case Decayed:
		return "decayed"
	default:
		return "filtered"
	}
}

const (
	cacheLineSize  = 64
	entrySize      = 16
	maxCASRetries  = 4
	spinRetries    = 2
	sampleBuckets  = 256
	fullPermille   = 950
	permilleFactor = 1000
)

// ReplaceWeights tune the victim priority
// depth - age + PV*pv + Exact*exact - Plain*(!pv && !exact).
type ReplaceWeights struct {
	PV    int
	Exact int
	Plain int
}

type Config struct {
	Megabytes  int
	BucketSize int

	// ScoreLimit bounds |value| and |eval| of a trusted entry.
	ScoreLimit int
	Weights    ReplaceWeights

	// InsertThresholds are occupancy permille steps; crossing step i raises
	// the minimum insert depth to i+1.
	InsertThresholds [5]int

	GCAgeThreshold   int
	GCTriggerSamples int

	DebugTornReads bool
	Logger         zerolog.Logger
}

func DefaultConfig(megabytes int) Config {
	return Config{
		Megabytes:        megabytes,
		BucketSize:       4,
		ScoreLimit:       math16Max,
		Weights:          ReplaceWeights{PV: 32, Exact: 16, Plain: 2},
		InsertThresholds: [5]int{600, 750, 850, 900, 950},
		GCAgeThreshold:   4,
		GCTriggerSamples: 8,
		Logger:           zerolog.Nop(),
	}
}

const math16Max = 1<<15 - 1

type slot struct {
	key  atomic.Uint64
	data atomic.Uint64
}

type Stats struct {
	TornReads   uint64
	Filtered    uint64
	Decays      uint64
	CASFailures uint64
	GCCleared   uint64
}

// Table is a fixed-size lock-free hash table. Each slot is a key word and a
// data word. Writers store data then key, readers load key then data, and
// a reader that sees a mismatch treats the slot as a miss.
type Table struct {
	cfg        Config
	logger     zerolog.Logger
	backing    []slot
	slots      []slot
	bucketMask uint64
	bucketBits uint

	generation atomic.Uint32

	occupancy   atomic.Int32
	hashfull    atomic.Int32
	fullSamples atomic.Int32
	gcPending   atomic.Bool
	gcCursor    atomic.Uint64

	tornReads   atomic.Uint64
	filtered    atomic.Uint64
	decays      atomic.Uint64
	casFailures atomic.Uint64
	gcCleared   atomic.Uint64
}

func New(cfg Config) *Table {
	switch cfg.BucketSize {
	case 4, 8, 16:
	default:
		cfg.BucketSize = 4
	}
	if cfg.Megabytes < 1 {
		cfg.Megabytes = 1
	}
	var buckets = roundPowerOfTwo(cfg.Megabytes * 1024 * 1024 / (entrySize * cfg.BucketSize))

	var t = &Table{
		cfg:        cfg,
		logger:     cfg.Logger.With().Str("component", "transtable").Logger(),
		bucketMask: uint64(buckets - 1),
	}
	for 1<<t.bucketBits < cfg.BucketSize {
		t.bucketBits++
	}
	t.backing, t.slots = alignedSlots(buckets * cfg.BucketSize)
	t.logger.Debug().
		Int("megabytes", cfg.Megabytes).
		Int("buckets", buckets).
		Int("bucketSize", cfg.BucketSize).
		Msg("transposition table allocated")
	return t
}

// alignedSlots returns n slots starting on a cache line boundary.
func alignedSlots(n int) (backing, slots []slot) {
	const perLine = cacheLineSize / entrySize
	backing = make([]slot, n+perLine)
	var offset = 0
	for uintptr(unsafe.Pointer(&backing[offset]))%cacheLineSize != 0 {
		offset++
	}
	return backing, backing[offset : offset+n]
}

func roundPowerOfTwo(size int) int {
	var x = 1
	for (x << 1) <= size {
		x <<= 1
	}
	return x
}

func (t *Table) Megabytes() int {
	return t.cfg.Megabytes
}

func (t *Table) BucketSize() int {
	return t.cfg.BucketSize
}

func (t *Table) Buckets() int {
	return int(t.bucketMask + 1)
}

func (t *Table) Generation() uint8 {
	return uint8(t.generation.Load() & AgeMask)
}

// NewSearch advances the generation. Call once per root search.
func (t *Table) NewSearch() {
	t.generation.Store((t.generation.Load() + 1) & AgeMask)
	t.RefreshOccupancy()
}

func (t *Table) Clear() {
	for i := range t.slots {
		t.slots[i].data.Store(0)
		t.slots[i].key.Store(0)
	}
	t.generation.Store(0)
	t.occupancy.Store(0)
	t.hashfull.Store(0)
	t.fullSamples.Store(0)
	t.gcPending.Store(false)
	t.gcCursor.Store(0)
}

func (t *Table) bucket(key uint64) []slot {
	var start = (key & t.bucketMask) << t.bucketBits
	return t.slots[start : start+uint64(t.cfg.BucketSize)]
}

// Prefetch touches the bucket so a later probe finds it in cache.
func (t *Table) Prefetch(key uint64) {
	var start = (key & t.bucketMask) << t.bucketBits
	_ = t.slots[start].key.Load()
}

func (t *Table) valid(e Entry) bool {
	if e.Bound == BoundNone {
		return false
	}
	if int(e.Value) > t.cfg.ScoreLimit || int(e.Value) < -t.cfg.ScoreLimit {
		return false
	}
	if e.Eval != EvalNone && (int(e.Eval) > t.cfg.ScoreLimit || int(e.Eval) < -t.cfg.ScoreLimit) {
		return false
	}
	return true
}

// Probe returns a copy of the entry stored for key.
func (t *Table) Probe(key uint64) (Entry, bool) {
	var fragment = KeyFragment(key)
	var b = t.bucket(key)
	for i := range b {
		var s = &b[i]
		if s.key.Load() != fragment {
			continue
		}
		var data = s.data.Load()
		if data == 0 {
			// cleared under our feet
			return Entry{}, false
		}
		var e = Decode(data)
		if s.key.Load() != fragment || !t.valid(e) {
			t.tornReads.Add(1)
			if t.cfg.DebugTornReads {
				t.logger.Debug().
					Uint64("key", key).
					Uint64("data", data).
					Msg("torn read")
			}
			return Entry{}, false
		}
		return e, true
	}
	return Entry{}, false
}

func (t *Table) priority(e Entry, generation uint8) int {
	var w = &t.cfg.Weights
	var result = e.Depth - RelativeAge(e.Generation, generation)
	var exact = e.Bound == BoundExact
	if e.PV {
		result += w.PV
	}
	if exact {
		result += w.Exact
	}
	if !e.PV && !exact {
		result -= w.Plain
	}
	return result
}

// MinInsertDepth is the depth a new key needs to take a slot at the
// current occupancy. Updates of a present key are never filtered by it.
func (t *Table) MinInsertDepth() int {
	var occupancy = int(t.occupancy.Load())
	var result = DepthMin
	for i, threshold := range t.cfg.InsertThresholds {
		if occupancy >= threshold {
			result = i + 1
		}
	}
	return result
}

// Store writes a search result. It never blocks: under contention the
// write may be dropped and Filtered returned.
func (t *Table) Store(key uint64, move uint16, value, eval, depth int, bound Bound, pv bool) StoreResult {
	var generation = t.Generation()
	var fragment = KeyFragment(key)
	var fresh = Entry{
		Move:       move,
		Value:      ClampScore(value),
		Eval:       ClampScore(eval),
		Depth:      clamp(depth, DepthMin, DepthMax),
		Bound:      bound,
		PV:         pv,
		Generation: generation,
	}

	var b = t.bucket(key)
	var empty, victim = -1, -1
	var victimPriority int
	for i := range b {
		var k = b[i].key.Load()
		if k == fragment {
			return t.update(&b[i], fragment, fresh)
		}
		if k == 0 {
			if empty < 0 {
				empty = i
			}
			continue
		}
		if empty >= 0 {
			continue
		}
		var p = t.priority(Decode(b[i].data.Load()), generation)
		if victim < 0 || p < victimPriority {
			victim, victimPriority = i, p
		}
	}

	if fresh.Depth < t.MinInsertDepth() {
		t.filtered.Add(1)
		return Filtered
	}
	var target = empty
	if target < 0 {
		target = victim
	}
	return t.replace(&b[target], fragment, fresh)
}

// update applies the same-key rule: exact results, a new generation or a
// search that is not much shallower replace the entry; otherwise a deep
// non-exact entry loses one ply so it eventually yields.
func (t *Table) update(s *slot, fragment uint64, fresh Entry) StoreResult {
	var pvBonus = 0
	if fresh.PV {
		pvBonus = 2
	}
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		var oldData = s.data.Load()
		if oldData == 0 {
			// GC is clearing the slot and will reset the key next.
			t.filtered.Add(1)
			return Filtered
		}
		var old = Decode(oldData)
		var next Entry
		var result StoreResult
		switch {
		case fresh.Bound == BoundExact || old.Generation != fresh.Generation || old.Bound == BoundNone:
			next, result = fresh, Updated
		case old.Bound == BoundExact && fresh.Depth < old.Depth:
			t.filtered.Add(1)
			return Filtered
		case fresh.Depth+pvBonus > old.Depth-4:
			next, result = fresh, Updated
		case old.Depth > DepthMin:
			next, result = old, Decayed
			next.Depth--
		default:
			t.filtered.Add(1)
			return Filtered
		}
		if result == Updated && next.Move == 0 {
			next.Move = old.Move
		}
		if s.data.CompareAndSwap(oldData, encodeData(next)) {
			s.key.Store(fragment)
			if result == Decayed {
				t.decays.Add(1)
			}
			return result
		}
		if t.lostRace(s, fresh, attempt) {
			return Filtered
		}
	}
	t.filtered.Add(1)
	return Filtered
}

func (t *Table) replace(s *slot, fragment uint64, fresh Entry) StoreResult {
	var data = encodeData(fresh)
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		var oldData = s.data.Load()
		if s.data.CompareAndSwap(oldData, data) {
			s.key.Store(fragment)
			return Stored
		}
		if t.lostRace(s, fresh, attempt) {
			return Filtered
		}
	}
	t.filtered.Add(1)
	return Filtered
}

// lostRace reports whether a competing writer already stored something at
// least as useful as fresh; otherwise it backs off before the next attempt.
func (t *Table) lostRace(s *slot, fresh Entry, attempt int) bool {
	t.casFailures.Add(1)
	var current = Decode(s.data.Load())
	if current.Bound != BoundNone &&
		current.Generation == fresh.Generation &&
		current.Depth >= fresh.Depth {
		t.filtered.Add(1)
		return true
	}
	if attempt >= spinRetries {
		for i := 0; i < 1<<uint(attempt-spinRetries); i++ {
			runtime.Gosched()
		}
	}
	return false
}

// RefreshOccupancy samples a fixed set of buckets spread over the table
// and updates HashFull, Occupancy and the GC trigger.
func (t *Table) RefreshOccupancy() {
	var buckets = t.Buckets()
	var samples = sampleBuckets
	if samples > buckets {
		samples = buckets
	}
	var stride = buckets / samples
	var generation = t.Generation()
	var used, current int
	for i := 0; i < samples; i++ {
		var start = (i * stride) << t.bucketBits
		for j := start; j < start+t.cfg.BucketSize; j++ {
			var s = &t.slots[j]
			if !IsOccupied(s.key.Load()) {
				continue
			}
			var data = s.data.Load()
			if data == 0 {
				continue
			}
			used++
			if Decode(data).Generation == generation {
				current++
			}
		}
	}
	var total = samples * t.cfg.BucketSize
	var occupancy = int32(used * permilleFactor / total)
	t.occupancy.Store(occupancy)
	t.hashfull.Store(int32(current * permilleFactor / total))

	if occupancy >= fullPermille {
		if t.fullSamples.Add(1) >= int32(t.cfg.GCTriggerSamples) && !t.gcPending.Load() {
			t.gcPending.Store(true)
			t.logger.Debug().Int32("occupancy", occupancy).Msg("incremental gc armed")
		}
	} else {
		t.fullSamples.Store(0)
		t.gcPending.Store(false)
	}
}

// HashFull is the sampled permille of slots written in this generation.
func (t *Table) HashFull() int {
	return int(t.hashfull.Load())
}

// Occupancy is the sampled permille of used slots of any generation.
func (t *Table) Occupancy() int {
	return int(t.occupancy.Load())
}

func (t *Table) GCPending() bool {
	return t.gcPending.Load()
}

func (t *Table) Stats() Stats {
	return Stats{
		TornReads:   t.tornReads.Load(),
		Filtered:    t.filtered.Load(),
		Decays:      t.decays.Load(),
		CASFailures: t.casFailures.Load(),
		GCCleared:   t.gcCleared.Load(),
	}
}
