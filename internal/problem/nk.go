package problem

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
)

// NearestNeighborNK is the nearest neighbor NK landscape: n subproblems,
// each reading a gene and its k circular neighbors against a random fitness
// table. The circular structure keeps the landscape solvable in polynomial
// time by dynamic programming, which is used at construction to find the
// global minimum and maximum so that fitness can be normalized into [0,1].
//
// Instances are derived from a problem seed plus the run number, so every
// run of an experiment sees a different landscape while staying
// reproducible. Solved instances are cached on disk as JSON; solving is the
// expensive part, not generating.
type NearestNeighborNK struct {
	n, k      int
	epistasis [][]int
	fitness   [][]float64
	min, max  float64
	optimal   []int
}

// nkInstance is the on-disk form of a solved landscape.
type nkInstance struct {
	Min     float64     `json:"min"`
	Max     float64     `json:"max"`
	Optimal []int       `json:"optimal"`
	Fitness [][]float64 `json:"fitness"`
}

func NewNearestNeighborNK(p Params, runNumber int) (*NearestNeighborNK, error) {
	if p.K <= 0 {
		return nil, fmt.Errorf("nearest_neighbor_nk k must be > 0")
	}
	if p.Dimensions <= 0 || p.Dimensions%p.K != 0 || p.Dimensions/p.K < 2 {
		return nil, fmt.Errorf("nearest_neighbor_nk dimensions must be a multiple of k with at least two chunks: dimensions=%d k=%d", p.Dimensions, p.K)
	}
	f := &NearestNeighborNK{n: p.Dimensions, k: p.K}
	f.epistasis = make([][]int, f.n)
	for g := range f.epistasis {
		neighborhood := make([]int, f.k+1)
		for i := range neighborhood {
			neighborhood[i] = (g + i) % f.n
		}
		f.epistasis[g] = neighborhood
	}

	problemNumber := p.ProblemSeed + int64(runNumber)
	if err := f.buildInstance(p.InstanceDir, problemNumber); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *NearestNeighborNK) Name() string { return "nearest_neighbor_nk" }

func (f *NearestNeighborNK) MaxFitness() float64 { return 1.0 }

func (f *NearestNeighborNK) buildInstance(dir string, problemNumber int64) error {
	path := ""
	if dir != "" {
		path = filepath.Join(dir, fmt.Sprintf("%d_%d_%d.json", f.n, f.k, problemNumber))
		if data, err := os.ReadFile(path); err == nil {
			var inst nkInstance
			if err := json.Unmarshal(data, &inst); err != nil {
				return fmt.Errorf("decode nk instance %s: %w", path, err)
			}
			f.min, f.max, f.optimal, f.fitness = inst.Min, inst.Max, inst.Optimal, inst.Fitness
			return nil
		}
	}

	rng := rand.New(rand.NewSource(problemNumber))
	f.fitness = make([][]float64, f.n)
	for g := range f.fitness {
		table := make([]float64, 1<<(f.k+1))
		for i := range table {
			table[i] = rng.Float64()
		}
		f.fitness[g] = table
	}
	var err error
	if f.min, _, err = f.solve(false); err != nil {
		return err
	}
	if f.max, f.optimal, err = f.solve(true); err != nil {
		return err
	}

	if path != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create nk instance folder: %w", err)
		}
		data, err := json.Marshal(nkInstance{Min: f.min, Max: f.max, Optimal: f.optimal, Fitness: f.fitness})
		if err != nil {
			return fmt.Errorf("encode nk instance: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write nk instance %s: %w", path, err)
		}
	}
	return nil
}

func (f *NearestNeighborNK) Evaluate(genes []uint8) (float64, error) {
	if len(genes) != f.n {
		return 0, fmt.Errorf("nearest_neighbor_nk expects %d genes, got %d", f.n, len(genes))
	}
	fitness := 0.0
	for g, neighborhood := range f.epistasis {
		idx := 0
		for _, x := range neighborhood {
			idx = idx<<1 | int(genes[x])
		}
		fitness += f.fitness[g][idx]
	}
	normalized := (fitness - f.min) / (f.max - f.min)
	return math.Round(normalized*1e6) / 1e6, nil
}

func (f *NearestNeighborNK) SubProblemsSolved(genes []uint8) ([]int, error) {
	if len(genes) != f.n {
		return nil, fmt.Errorf("nearest_neighbor_nk expects %d genes, got %d", f.n, len(genes))
	}
	solved := make([]int, len(f.epistasis))
	for g, neighborhood := range f.epistasis {
		match := 1
		for _, x := range neighborhood {
			if int(genes[x]) != f.optimal[x] {
				match = 0
				break
			}
		}
		solved[g] = match
	}
	return solved, nil
}

// subFitness scores one subproblem from the gene values of its
// neighborhood, packed as raw 0/1 bytes.
func (f *NearestNeighborNK) subFitness(g int, neighborhood string) float64 {
	idx := 0
	for i := 0; i < len(neighborhood); i++ {
		idx = idx<<1 | int(neighborhood[i])
	}
	return f.fitness[g][idx]
}

type nkChunkKey struct {
	chunk int
	a, b  string
}

// solve finds the extreme fitness of this instance, and the genome
// achieving it, in polynomial time. It is the dynamic program of Wright,
// Thompson and Zhang (IEEE Trans. Evolutionary Computation, 2000): the
// genome is split into n/k chunks of k genes, and chunks are eliminated one
// at a time from the end, folding their contribution into a table keyed by
// the surrounding chunk values.
func (f *NearestNeighborNK) solve(maximize bool) (float64, []int, error) {
	chunks := f.n / f.k
	patterns := binaryPatterns(f.k)
	values := make(map[nkChunkKey]float64)
	choices := make(map[nkChunkKey]string)

	// multiF sums the k subproblems rooted in a chunk, given that chunk's
	// genes and the next chunk's genes.
	multiF := func(chunk int, a, b string) float64 {
		key := nkChunkKey{chunk: chunk, a: a, b: b}
		if v, ok := values[key]; ok {
			return v
		}
		wrap := a + b
		total := 0.0
		for g := 0; g < f.k; g++ {
			total += f.subFitness(chunk*f.k+g, wrap[g:g+f.k+1])
		}
		values[key] = total
		return total
	}

	better := func(val float64, b string, bestVal float64, bestB string) bool {
		if val != bestVal {
			return (val > bestVal) == maximize
		}
		if b > bestB {
			return maximize
		}
		return !maximize && b < bestB
	}

	for stage := chunks - 1; stage >= 2; stage-- {
		folded := make(map[[2]string]float64, len(patterns)*len(patterns))
		middle := make(map[[2]string]string, len(patterns)*len(patterns))
		for _, a := range patterns {
			for _, c := range patterns {
				bestVal, bestB := 0.0, ""
				for i, b := range patterns {
					val := multiF(stage-1, a, b) + multiF(stage, b, c)
					if i == 0 || better(val, b, bestVal, bestB) {
						bestVal, bestB = val, b
					}
				}
				folded[[2]string{a, c}] = bestVal
				middle[[2]string{a, c}] = bestB
			}
		}
		// Overwrites the direct chunk sums with folded values; stages
		// above this one are never consulted again.
		for _, a := range patterns {
			for _, c := range patterns {
				values[nkChunkKey{chunk: stage - 1, a: a, b: c}] = folded[[2]string{a, c}]
				choices[nkChunkKey{chunk: stage, a: a, b: c}] = middle[[2]string{a, c}]
			}
		}
	}

	bestVal, bestA, bestC := 0.0, "", ""
	first := true
	for _, c := range patterns {
		for _, a := range patterns {
			val := multiF(0, a, c) + multiF(1, c, a)
			if first || better(val, a+c, bestVal, bestA+bestC) {
				bestVal, bestA, bestC = val, a, c
				first = false
			}
		}
	}

	genome := bestA + bestC
	last := bestC
	for i := 2; i < chunks; i++ {
		next, ok := choices[nkChunkKey{chunk: i, a: last, b: bestA}]
		if !ok {
			return 0, nil, fmt.Errorf("nk solver has no stored choice for chunk %d", i)
		}
		last = next
		genome += last
	}
	optimal := make([]int, len(genome))
	for i := 0; i < len(genome); i++ {
		optimal[i] = int(genome[i])
	}
	return bestVal, optimal, nil
}

// binaryPatterns lists every k-bit gene setting as raw 0/1 bytes, in
// lexicographic order.
func binaryPatterns(k int) []string {
	patterns := make([]string, 0, 1<<k)
	for i := 0; i < 1<<k; i++ {
		buf := make([]byte, k)
		for j := 0; j < k; j++ {
			buf[j] = byte(i >> (k - 1 - j) & 1)
		}
		patterns = append(patterns, string(buf))
	}
	return patterns
}
