package problem

import "fmt"

// DeceptiveTrap partitions the genome into traps of k genes. A trap scores
// its number of ones when fully set, and k-1-ones otherwise, so local
// gradients point away from the optimum. Fitness is normalized by genome
// length; the all-ones string scores 1.0.
type DeceptiveTrap struct {
	n        int
	trapSize int
}

func NewDeceptiveTrap(dimensions, k int) (*DeceptiveTrap, error) {
	if k <= 0 {
		return nil, fmt.Errorf("deceptive_trap trap size must be > 0")
	}
	if dimensions <= 0 || dimensions%k != 0 {
		return nil, fmt.Errorf("deceptive_trap dimensions must be a positive multiple of k: dimensions=%d k=%d", dimensions, k)
	}
	return &DeceptiveTrap{n: dimensions, trapSize: k}, nil
}

func (f *DeceptiveTrap) Name() string { return "deceptive_trap" }

func (f *DeceptiveTrap) MaxFitness() float64 { return 1.0 }

func (f *DeceptiveTrap) scoreTrap(genes []uint8) int {
	trap := 0
	for _, g := range genes {
		trap += int(g)
	}
	if trap == f.trapSize {
		return trap
	}
	return f.trapSize - trap - 1
}

func (f *DeceptiveTrap) Evaluate(genes []uint8) (float64, error) {
	if len(genes) != f.n {
		return 0, fmt.Errorf("deceptive_trap expects %d genes, got %d", f.n, len(genes))
	}
	fitness := 0
	for i := 0; i < len(genes); i += f.trapSize {
		fitness += f.scoreTrap(genes[i : i+f.trapSize])
	}
	return float64(fitness) / float64(f.n), nil
}

func (f *DeceptiveTrap) SubProblemsSolved(genes []uint8) ([]int, error) {
	if len(genes) != f.n {
		return nil, fmt.Errorf("deceptive_trap expects %d genes, got %d", f.n, len(genes))
	}
	solved := make([]int, 0, f.n/f.trapSize)
	for i := 0; i < len(genes); i += f.trapSize {
		ones := 0
		for _, g := range genes[i : i+f.trapSize] {
			ones += int(g)
		}
		if ones == f.trapSize {
			solved = append(solved, 1)
		} else {
			solved = append(solved, 0)
		}
	}
	return solved, nil
}

// DeceptiveStepTrap adds fitness plateaus to the deceptive trap: raw trap
// scores are bucketed by an integer step size, so several neighboring trap
// values collapse onto the same fitness.
type DeceptiveStepTrap struct {
	DeceptiveTrap
	stepSize        int
	offset          int
	possiblePerGene float64
}

func NewDeceptiveStepTrap(dimensions, k, stepSize int) (*DeceptiveStepTrap, error) {
	base, err := NewDeceptiveTrap(dimensions, k)
	if err != nil {
		return nil, err
	}
	if stepSize <= 0 {
		return nil, fmt.Errorf("deceptive_step_trap step size must be > 0")
	}
	offset := (k - stepSize) % stepSize
	if offset < 0 {
		offset += stepSize
	}
	return &DeceptiveStepTrap{
		DeceptiveTrap:   *base,
		stepSize:        stepSize,
		offset:          offset,
		possiblePerGene: float64(k/stepSize+offset) / float64(k),
	}, nil
}

func (f *DeceptiveStepTrap) Name() string { return "deceptive_step_trap" }

func (f *DeceptiveStepTrap) scoreTrap(genes []uint8) int {
	return (f.offset + f.DeceptiveTrap.scoreTrap(genes)) / f.stepSize
}

func (f *DeceptiveStepTrap) Evaluate(genes []uint8) (float64, error) {
	if len(genes) != f.n {
		return 0, fmt.Errorf("deceptive_step_trap expects %d genes, got %d", f.n, len(genes))
	}
	fitness := 0
	for i := 0; i < len(genes); i += f.trapSize {
		fitness += f.scoreTrap(genes[i : i+f.trapSize])
	}
	return float64(fitness) / (float64(f.n) * f.possiblePerGene), nil
}
