package problem

import (
	"fmt"
	"sort"
)

// Problem scores gene sequences. All bundled benchmarks normalize fitness
// into [0,1] with 1.0 at the global optimum, so termination goals are
// comparable across problems.
type Problem interface {
	Name() string
	Evaluate(genes []uint8) (float64, error)
}

// SubProblemCounter reports which decomposable sub problems a gene sequence
// has solved, as a vector of 0s and 1s. Problems without a natural
// decomposition report a single entry for the global optimum.
type SubProblemCounter interface {
	SubProblemsSolved(genes []uint8) ([]int, error)
}

// Bounded exposes the best achievable fitness, when known.
type Bounded interface {
	MaxFitness() float64
}

// Params collects the knobs shared across benchmark constructors. Each
// problem reads the subset it needs and validates it.
type Params struct {
	Dimensions  int
	K           int
	StepSize    int
	ProblemSeed int64
	InstanceDir string
}

type factory func(p Params, runNumber int) (Problem, error)

var registry = map[string]factory{
	"one_max": func(p Params, _ int) (Problem, error) {
		return NewOneMax(p.Dimensions)
	},
	"deceptive_trap": func(p Params, _ int) (Problem, error) {
		return NewDeceptiveTrap(p.Dimensions, p.K)
	},
	"deceptive_step_trap": func(p Params, _ int) (Problem, error) {
		return NewDeceptiveStepTrap(p.Dimensions, p.K, p.StepSize)
	},
	"hiff": func(p Params, _ int) (Problem, error) {
		return NewHIFF(p.Dimensions)
	},
	"nearest_neighbor_nk": func(p Params, runNumber int) (Problem, error) {
		return NewNearestNeighborNK(p, runNumber)
	},
}

// New builds a registered benchmark. The run number feeds instance selection
// for problems that generate a distinct landscape per run.
func New(name string, p Params, runNumber int) (Problem, error) {
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown problem: %s", name)
	}
	return build(p, runNumber)
}

// Names lists the registered benchmarks in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
