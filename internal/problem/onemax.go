package problem

import "fmt"

// OneMax scores the fraction of genes set to one. It has no linkage at all,
// which makes it the smoke-test problem for the rest of the pipeline.
type OneMax struct {
	n int
}

func NewOneMax(dimensions int) (*OneMax, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("one_max dimensions must be > 0")
	}
	return &OneMax{n: dimensions}, nil
}

func (f *OneMax) Name() string { return "one_max" }

func (f *OneMax) MaxFitness() float64 { return 1.0 }

func (f *OneMax) Evaluate(genes []uint8) (float64, error) {
	if len(genes) != f.n {
		return 0, fmt.Errorf("one_max expects %d genes, got %d", f.n, len(genes))
	}
	ones := 0
	for _, g := range genes {
		if g == 1 {
			ones++
		}
	}
	return float64(ones) / float64(f.n), nil
}

func (f *OneMax) SubProblemsSolved(genes []uint8) ([]int, error) {
	solved := make([]int, len(genes))
	for i, g := range genes {
		if g == 1 {
			solved[i] = 1
		}
	}
	return solved, nil
}
