// Package hillclimb provides local search used to seed populations before
// model-building optimization starts.
package hillclimb

import (
	"fmt"
	"math/rand"
)

// EvalFunc scores a gene sequence.
type EvalFunc func(genes []uint8) (float64, error)

// SteepestAscent improves binary genes in place: each pass evaluates every
// single-bit flip in a shuffled order and commits the best strictly
// improving one, stopping at a local optimum. It returns the fitness of the
// final genes and the number of evaluations spent, including the initial
// scoring of the input.
func SteepestAscent(genes []uint8, eval EvalFunc, rng *rand.Rand) (float64, int, error) {
	evals := 1
	best, err := eval(genes)
	if err != nil {
		return 0, evals, fmt.Errorf("hill climb initial evaluation: %w", err)
	}
	for {
		bestIndex := -1
		for _, index := range rng.Perm(len(genes)) {
			genes[index] = 1 - genes[index]
			score, err := eval(genes)
			evals++
			if err != nil {
				genes[index] = 1 - genes[index]
				return best, evals, fmt.Errorf("hill climb evaluation: %w", err)
			}
			if score > best {
				best = score
				bestIndex = index
			}
			genes[index] = 1 - genes[index]
		}
		if bestIndex == -1 {
			return best, evals, nil
		}
		genes[bestIndex] = 1 - genes[bestIndex]
	}
}
