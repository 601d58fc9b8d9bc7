package evalbuilder

import (
	"fmt"

	material "github.com/ChizhovVadim/CounterSearch/pkg/eval/material"
	psqt "github.com/ChizhovVadim/CounterSearch/pkg/eval/psqt"
)

const Default = "psqt"

// Names lists the evaluators Get accepts.
var Names = []string{"material", "psqt"}

// Get returns a builder for the named evaluator. Each call of the builder
// yields a fresh instance, one per search worker.
func Get(key string) (func() interface{}, error) {
	switch key {
	case "", Default:
		return func() interface{} { return psqt.NewEvaluationService() }, nil
	case "material":
		return func() interface{} { return material.NewEvaluationService() }, nil
	}
	return nil, fmt.Errorf("bad eval %v", key)
}
