package transtable

import (
	"testing"

	"github.com/matryer/is"
)

func TestIncrementalGC(t *testing.T) {
	is := is.New(t)
	var cfg = DefaultConfig(1)
	cfg.GCAgeThreshold = 2
	var tt = New(cfg)

	tt.Store(sameBucketKey(0), 1, 0, 0, 5, BoundLower, false) // age 3 after the loop
	tt.NewSearch()
	tt.Store(sameBucketKey(1), 1, 0, 0, 5, BoundLower, false) // age 2
	tt.NewSearch()
	tt.Store(sameBucketKey(2), 1, 0, 0, 5, BoundLower, false) // age 1
	tt.NewSearch()
	tt.Store(sameBucketKey(3), 1, 0, 0, 5, BoundLower, false) // age 0

	var total = len(tt.slots)
	var cleared = 0
	for i := 0; i < total; i += 1000 {
		cleared += tt.PerformIncrementalGC(1000)
	}
	is.Equal(cleared, 2)

	_, ok := tt.Probe(sameBucketKey(0))
	is.True(!ok)
	_, ok = tt.Probe(sameBucketKey(1))
	is.True(!ok)
	_, ok = tt.Probe(sameBucketKey(2))
	is.True(ok)
	_, ok = tt.Probe(sameBucketKey(3))
	is.True(ok)

	// nothing left above the threshold
	is.Equal(tt.PerformIncrementalGC(total), 0)
	is.Equal(tt.Stats().GCCleared, uint64(2))

	tt.RefreshOccupancy()
	is.True(tt.Occupancy() >= 0)
	is.True(!tt.GCPending())
}

func TestGCTrigger(t *testing.T) {
	is := is.New(t)
	var cfg = DefaultConfig(1)
	cfg.GCTriggerSamples = 3
	var tt = New(cfg)
	for i := range tt.slots {
		tt.slots[i].data.Store(encodeData(Entry{Depth: 1, Bound: BoundLower}))
		tt.slots[i].key.Store(KeyFragment(uint64(i)))
	}
	tt.RefreshOccupancy()
	tt.RefreshOccupancy()
	is.True(!tt.GCPending())
	tt.RefreshOccupancy()
	is.True(tt.GCPending())

	// a full sweep disarms it
	tt.PerformIncrementalGC(len(tt.slots))
	is.True(!tt.GCPending())
}
