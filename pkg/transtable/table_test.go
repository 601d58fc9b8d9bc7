package transtable

import (
	"math"
	"sync"
	"testing"
	"unsafe"

	"github.com/matryer/is"
	"lukechampine.com/frand"
)

const testScoreLimit = 30001

// sameBucketKey returns distinct keys that all map to bucket 0.
func sameBucketKey(i int) uint64 {
	return uint64(i) << 32
}

func newTestTable(megabytes int) *Table {
	var cfg = DefaultConfig(megabytes)
	cfg.ScoreLimit = testScoreLimit
	return New(cfg)
}

func TestBucketsAreCacheAligned(t *testing.T) {
	is := is.New(t)
	for _, size := range []int{4, 8, 16} {
		var cfg = DefaultConfig(1)
		cfg.BucketSize = size
		var tt = New(cfg)
		is.Equal(uintptr(unsafe.Pointer(&tt.slots[0]))%cacheLineSize, uintptr(0)) // bucket alignment
		is.Equal(tt.Buckets()*size*entrySize, 1024*1024)
	}
}

func TestStoreProbe(t *testing.T) {
	is := is.New(t)
	var tt = newTestTable(1)
	var rng = frand.NewCustom(make([]byte, 32), 1024, 12)
	for i := 0; i < 1000; i++ {
		var key = rng.Uint64n(math.MaxUint64)
		var value = int(rng.Uint64n(2000)) - 1000
		var depth = int(rng.Uint64n(30))
		is.True(tt.Store(key, uint16(i+1), value, value/2, depth, BoundLower, i%2 == 0) == Stored)
		var e, ok = tt.Probe(key)
		is.True(ok)
		is.Equal(e.Move, uint16(i+1))
		is.Equal(int(e.Value), value)
		is.Equal(int(e.Eval), value/2)
		is.Equal(e.Depth, depth)
		is.Equal(e.Bound, BoundLower)
		is.Equal(e.PV, i%2 == 0)
	}
}

func TestProbeMiss(t *testing.T) {
	is := is.New(t)
	var tt = newTestTable(1)
	var _, ok = tt.Probe(12345)
	is.True(!ok) // hit in empty table
}

func TestExactIsNotDowngraded(t *testing.T) {
	is := is.New(t)
	var tt = newTestTable(1)
	const key = 0x123456789
	is.Equal(tt.Store(key, 10, 50, 0, 10, BoundExact, true), Stored)
	is.Equal(tt.Store(key, 11, 80, 0, 3, BoundLower, false), Filtered)
	var e, ok = tt.Probe(key)
	is.True(ok)
	is.Equal(e.Bound, BoundExact)
	is.Equal(e.Depth, 10)
	is.Equal(e.Move, uint16(10))
}

func TestShallowUpdateDecays(t *testing.T) {
	is := is.New(t)
	var tt = newTestTable(1)
	const key = 0xabcdef
	tt.Store(key, 10, 50, 0, 12, BoundLower, false)
	is.Equal(tt.Store(key, 11, 70, 0, 2, BoundLower, false), Decayed)
	var e, _ = tt.Probe(key)
	is.Equal(e.Depth, 11)
	is.Equal(e.Move, uint16(10))
	is.Equal(tt.Stats().Decays, uint64(1))

	// close enough in depth: replaced
	is.Equal(tt.Store(key, 12, 90, 0, 8, BoundUpper, false), Updated)
	e, _ = tt.Probe(key)
	is.Equal(e.Depth, 8)
	is.Equal(e.Bound, BoundUpper)
}

func TestUpdateKeepsMoveWhenNoneGiven(t *testing.T) {
	is := is.New(t)
	var tt = newTestTable(1)
	tt.Store(77, 42, 10, 0, 4, BoundLower, false)
	is.Equal(tt.Store(77, 0, 5, 0, 5, BoundUpper, false), Updated)
	var e, _ = tt.Probe(77)
	is.Equal(e.Move, uint16(42))
}

func TestNewGenerationReplaces(t *testing.T) {
	is := is.New(t)
	var tt = newTestTable(1)
	tt.Store(99, 1, 10, 0, 20, BoundExact, true)
	tt.NewSearch()
	is.Equal(tt.Store(99, 2, 20, 0, 1, BoundLower, false), Updated)
	var e, _ = tt.Probe(99)
	is.Equal(e.Depth, 1)
	is.Equal(e.Generation, tt.Generation())
}

func TestReplacementPrefersStaleShallow(t *testing.T) {
	is := is.New(t)
	var tt = newTestTable(1)
	// fill bucket 0, the slot at depth 1 is the weakest
	var depths = []int{10, 1, 9, 8}
	for i, d := range depths {
		is.Equal(tt.Store(sameBucketKey(i), 1, 0, 0, d, BoundLower, false), Stored)
	}
	is.Equal(tt.Store(sameBucketKey(len(depths)), 1, 0, 0, 5, BoundLower, false), Stored)
	var _, ok = tt.Probe(sameBucketKey(1))
	is.True(!ok)
	_, ok = tt.Probe(0)
	is.True(ok)
}

func TestInsertFilter(t *testing.T) {
	is := is.New(t)
	var tt = newTestTable(1)
	is.Equal(tt.MinInsertDepth(), DepthMin)
	tt.occupancy.Store(800)
	is.Equal(tt.MinInsertDepth(), 2)
	is.Equal(tt.Store(5, 1, 0, 0, 1, BoundLower, false), Filtered)
	is.Equal(tt.Store(5, 1, 0, 0, 2, BoundLower, false), Stored)
	tt.occupancy.Store(990)
	is.Equal(tt.MinInsertDepth(), 5)
	// updates of a present key pass
	is.Equal(tt.Store(5, 1, 0, 0, 1, BoundExact, false), Updated)
}

func TestHashFull(t *testing.T) {
	is := is.New(t)
	var tt = newTestTable(1)
	tt.RefreshOccupancy()
	is.Equal(tt.HashFull(), 0)
	is.Equal(tt.Occupancy(), 0)
	for i := 0; i < len(tt.slots); i++ {
		tt.Store(uint64(i)*0x9E3779B97F4A7C15, 1, 0, 0, 1, BoundLower, false)
	}
	tt.RefreshOccupancy()
	is.True(tt.HashFull() >= 200)
	tt.NewSearch()
	is.Equal(tt.HashFull(), 0) // new generation counted as full
	is.True(tt.Occupancy() > 0)
}

func TestConcurrentStoresStayInRange(t *testing.T) {
	is := is.NewRelaxed(t)
	var tt = newTestTable(1)
	const key = 0x5555aaaa5555aaaa
	const writers = 8
	var wg sync.WaitGroup
	var stop = make(chan struct{})
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			var rng = frand.New()
			for i := 0; i < 20000; i++ {
				var v = int(rng.Uint64n(60000)) - 30000
				tt.Store(key, uint16(w), v, -v, int(rng.Uint64n(40)), Bound(1+rng.Uint64n(3)), w == 0)
			}
		}(w)
	}
	var readerDone = make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if e, ok := tt.Probe(key); ok {
				is.True(int(e.Value) <= testScoreLimit && int(e.Value) >= -testScoreLimit)
				is.True(e.Eval == EvalNone || int(e.Eval) <= testScoreLimit && int(e.Eval) >= -testScoreLimit)
			}
		}
	}()
	wg.Wait()
	close(stop)
	<-readerDone
}

func TestStoreSkipsSlotBeingCleared(t *testing.T) {
	is := is.New(t)
	var tt = newTestTable(1)
	const key = 0x77
	is.Equal(tt.Store(key, 1, 10, 0, 6, BoundLower, false), Stored)

	// GC has zeroed the data word but not yet the key
	var s = &tt.bucket(key)[0]
	is.Equal(s.key.Load(), KeyFragment(key))
	s.data.Store(0)

	is.Equal(tt.Store(key, 2, 20, 0, 8, BoundExact, true), Filtered)
	is.Equal(s.data.Load(), uint64(0))
	// the key CAS of the collector still succeeds and leaves an empty slot
	is.True(s.key.CompareAndSwap(KeyFragment(key), 0))
	var _, ok = tt.Probe(key)
	is.True(!ok)
	is.Equal(tt.Store(key, 3, 30, 0, 8, BoundExact, true), Stored)
}

func TestClear(t *testing.T) {
	is := is.New(t)
	var tt = newTestTable(1)
	tt.Store(1, 1, 1, 1, 1, BoundExact, false)
	tt.NewSearch()
	tt.Clear()
	_, ok := tt.Probe(1)
	is.True(!ok)
	is.Equal(tt.Generation(), uint8(0))
}
