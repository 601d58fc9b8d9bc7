package eval

import (
	"testing"

	"github.com/ChizhovVadim/CounterSearch/pkg/common"
)

func TestMaterial(t *testing.T) {
	var tests = []struct {
		fen  string
		want int
	}{
		{common.InitialPositionFen, 0},
		{"4k3/8/8/8/8/8/8/3QK3 w - - 0 1", 1200},
		{"4k3/8/8/8/8/8/8/3QK3 b - - 0 1", -1200},
		{"4k3/pppp4/8/8/8/8/8/R3K3 w - - 0 1", 200},
	}
	var e = NewEvaluationService()
	for _, test := range tests {
		var p, err = common.NewPositionFromFEN(test.fen)
		if err != nil {
			t.Fatal(err)
		}
		if got := e.Evaluate(&p); got != test.want {
			t.Error(test.fen, got, test.want)
		}
	}
}
