package engine

import (
	"fmt"
	"math"

	"github.com/ChizhovVadim/CounterSearch/pkg/common"
)

const (
	ProfileDefault = "default"
	ProfileClassic = "classic"
	ProfileMinimal = "minimal"
)

type Options struct {
	Hash             int
	BucketSize       int
	Threads          int
	MultiPV          int
	Profile          string
	ProgressMinNodes int
	DebugTornReads   bool

	AspirationWindows bool
	Razoring          bool
	ReverseFutility   bool
	NullMovePruning   bool
	Probcut           bool
	IID               bool
	SingularExt       bool
	CheckExt          bool
	Lmp               bool
	Futility          bool
	See               bool
	LateMoveReduction bool

	reductions [64][64]int
}

func NewOptions() Options {
	var result = Options{
		Hash:             16,
		BucketSize:       4,
		Threads:          1,
		MultiPV:          1,
		ProgressMinNodes: 1_000_000,
	}
	result.ApplyProfile(ProfileDefault)
	result.InitLmr(LmrMult)
	return result
}

// ApplyProfile switches the forward pruning families on or off as a group.
func (o *Options) ApplyProfile(name string) error {
	var on = func(flags ...*bool) {
		for _, f := range flags {
			*f = true
		}
	}
	var all = []*bool{&o.AspirationWindows, &o.Razoring, &o.ReverseFutility,
		&o.NullMovePruning, &o.Probcut, &o.IID, &o.SingularExt, &o.CheckExt,
		&o.Lmp, &o.Futility, &o.See, &o.LateMoveReduction}
	for _, f := range all {
		*f = false
	}
	switch name {
	case ProfileDefault:
		on(all...)
	case ProfileClassic:
		on(&o.AspirationWindows, &o.ReverseFutility, &o.NullMovePruning,
			&o.CheckExt, &o.Lmp, &o.Futility, &o.See, &o.LateMoveReduction)
	case ProfileMinimal:
		on(&o.AspirationWindows)
	default:
		o.ApplyProfile(ProfileDefault)
		return fmt.Errorf("unknown search profile %q", name)
	}
	o.Profile = name
	return nil
}

func (o *Options) Lmr(d, m int) int {
	return o.reductions[common.Min(d, 63)][common.Min(m, 63)]
}

func (o *Options) InitLmr(f func(d, m float64) float64) {
	initLmr(&o.reductions, f)
}

func initLmr(reductions *[64][64]int,
	f func(d, m float64) float64) {
	for d := 1; d < 64; d++ {
		for m := 1; m < 64; m++ {
			var r = f(float64(d), float64(m))
			reductions[d][m] = int(r)
		}
	}
}

func LmrMult(d, m float64) float64 {
	return lirp(math.Log(d)*math.Log(m), math.Log(5)*math.Log(22), math.Log(63)*math.Log(63), 3, 8)
}

func lirp(x, x1, x2, y1, y2 float64) float64 {
	return y1 + (y2-y1)*(x-x1)/(x2-x1)
}
