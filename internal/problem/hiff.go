package problem

import "fmt"

// HIFF is the hierarchical if-and-only-if benchmark. The genome is scored
// at every level of a balanced binary hierarchy: a block contributes its
// size when all of its genes agree, and blocks of agreeing blocks keep
// contributing up to the full genome. Both the all-zeros and all-ones
// strings are global optima. Fitness is normalized so the optima score 1.0.
type HIFF struct {
	n      int
	levels int
	max    float64
}

func NewHIFF(dimensions int) (*HIFF, error) {
	if dimensions <= 0 || dimensions&(dimensions-1) != 0 {
		return nil, fmt.Errorf("hiff dimensions must be a power of two, got %d", dimensions)
	}
	levels := 0
	for 1<<levels < dimensions {
		levels++
	}
	return &HIFF{
		n:      dimensions,
		levels: levels,
		max:    float64(dimensions * (levels + 1)),
	}, nil
}

func (f *HIFF) Name() string { return "hiff" }

func (f *HIFF) MaxFitness() float64 { return 1.0 }

const hiffMixed = uint8(2)

func (f *HIFF) Evaluate(genes []uint8) (float64, error) {
	if len(genes) != f.n {
		return 0, fmt.Errorf("hiff expects %d genes, got %d", f.n, len(genes))
	}
	// Genes must stay below the mixed-block sentinel.
	for i, g := range genes {
		if g > 1 {
			return 0, fmt.Errorf("hiff genes must be binary, got %d at position %d", g, i)
		}
	}
	level := append([]uint8(nil), genes...)
	fitness := f.n
	blockSize := 1
	for len(level) > 1 {
		next := make([]uint8, len(level)/2)
		blockSize *= 2
		for i := range next {
			a, b := level[2*i], level[2*i+1]
			if a == b && a != hiffMixed {
				next[i] = a
				fitness += blockSize
			} else {
				next[i] = hiffMixed
			}
		}
		level = next
	}
	return float64(fitness) / f.max, nil
}

// SubProblemsSolved reports agreement of the top-level halves: whether each
// half of the genome has collapsed to a single value.
func (f *HIFF) SubProblemsSolved(genes []uint8) ([]int, error) {
	if len(genes) != f.n {
		return nil, fmt.Errorf("hiff expects %d genes, got %d", f.n, len(genes))
	}
	if f.n == 1 {
		return []int{1}, nil
	}
	solved := make([]int, 2)
	half := f.n / 2
	for s := 0; s < 2; s++ {
		part := genes[s*half : (s+1)*half]
		uniform := 1
		for _, g := range part {
			if g != part[0] {
				uniform = 0
				break
			}
		}
		solved[s] = uniform
	}
	return solved, nil
}
