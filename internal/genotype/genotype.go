package genotype

import (
	"fmt"
	"math/rand"
)

// Genotype is one candidate solution: a fixed-length sequence of discrete
// gene values plus a cached fitness score. Any gene write invalidates the
// cache, so a stale score never survives a mutation.
type Genotype struct {
	genes     []uint8
	fitness   float64
	evaluated bool
}

// New copies genes into a fresh, unevaluated genotype.
func New(genes []uint8) *Genotype {
	return &Genotype{genes: append([]uint8(nil), genes...)}
}

// Random draws a uniform random genotype of the given length over the
// alphabet {0..alphabet-1}.
func Random(length, alphabet int, rng *rand.Rand) *Genotype {
	genes := make([]uint8, length)
	for i := range genes {
		genes[i] = uint8(rng.Intn(alphabet))
	}
	return &Genotype{genes: genes}
}

func (g *Genotype) Len() int {
	return len(g.genes)
}

func (g *Genotype) Gene(i int) uint8 {
	return g.genes[i]
}

// Genes returns a copy of the gene sequence.
func (g *Genotype) Genes() []uint8 {
	return append([]uint8(nil), g.genes...)
}

// ValuesAt extracts the gene values at the given positions, in mask order.
func (g *Genotype) ValuesAt(mask []int) []uint8 {
	values := make([]uint8, len(mask))
	for i, p := range mask {
		values[i] = g.genes[p]
	}
	return values
}

// SetValuesAt overwrites the genes at the given positions and invalidates
// the fitness cache.
func (g *Genotype) SetValuesAt(mask []int, values []uint8) {
	for i, p := range mask {
		g.genes[p] = values[i]
	}
	g.evaluated = false
}

// SetGene overwrites a single gene and invalidates the fitness cache.
func (g *Genotype) SetGene(i int, v uint8) {
	g.genes[i] = v
	g.evaluated = false
}

// Fitness returns the cached score and whether it is valid for the current
// genes.
func (g *Genotype) Fitness() (float64, bool) {
	return g.fitness, g.evaluated
}

func (g *Genotype) SetFitness(f float64) {
	g.fitness = f
	g.evaluated = true
}

func (g *Genotype) Clone() *Genotype {
	return &Genotype{
		genes:     append([]uint8(nil), g.genes...),
		fitness:   g.fitness,
		evaluated: g.evaluated,
	}
}

// Key is a compact identity of the gene content, usable as a map key for
// uniqueness checks and evaluation caching.
func (g *Genotype) Key() string {
	return string(g.genes)
}

func (g *Genotype) Equal(other *Genotype) bool {
	if other == nil || len(g.genes) != len(other.genes) {
		return false
	}
	for i := range g.genes {
		if g.genes[i] != other.genes[i] {
			return false
		}
	}
	return true
}

func (g *Genotype) String() string {
	buf := make([]byte, len(g.genes))
	for i, v := range g.genes {
		buf[i] = '0' + v
	}
	if g.evaluated {
		return fmt.Sprintf("(%s) = %g", buf, g.fitness)
	}
	return fmt.Sprintf("(%s) = ?", buf)
}
