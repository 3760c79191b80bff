package linkage

import (
	"fmt"
	"math"
	"sort"

	"ltga/internal/genotype"
)

type MetricVariant string

const (
	// MetricCluster is the exact entropic distance between two clusters:
	// 2 - (H(A)+H(B))/H(A,B), computed over the joint empirical
	// distribution of the merged cluster.
	MetricCluster MetricVariant = "cluster"
	// MetricPairwise approximates the cluster distance by averaging the
	// singleton distances between every pair of positions drawn from the
	// two clusters.
	MetricPairwise MetricVariant = "pairwise"
)

// MaxDistance is the fallback distance for clusters whose joint entropy is
// zero (constant gene columns). Zero division only happens in 0/0, and the
// clusters involved carry no linkage signal, so they are treated as
// maximally unrelated.
const MaxDistance = 2.0

// Metric computes a linkage distance between two disjoint, non-empty sets
// of gene positions. Lower means more related.
type Metric interface {
	Distance(a, b []int) float64
}

// EntropyMetric measures statistical linkage from the empirical gene-value
// distributions of a frozen population sample. Entropies are cached per
// cluster so that distances to a newly merged cluster only pay for the one
// new joint distribution, not a full recomputation.
type EntropyMetric struct {
	samples   [][]uint8
	variant   MetricVariant
	entropies map[string]float64
	singleton map[[2]int]float64
}

func NewEntropyMetric(pop *genotype.Population, variant MetricVariant) (*EntropyMetric, error) {
	switch variant {
	case MetricCluster, MetricPairwise:
	default:
		return nil, fmt.Errorf("unsupported linkage metric: %s", variant)
	}
	samples := make([][]uint8, pop.Size())
	for i := 0; i < pop.Size(); i++ {
		samples[i] = pop.Member(i).Genes()
	}
	return &EntropyMetric{
		samples:   samples,
		variant:   variant,
		entropies: make(map[string]float64),
		singleton: make(map[[2]int]float64),
	}, nil
}

func (m *EntropyMetric) Distance(a, b []int) float64 {
	if m.variant == MetricPairwise {
		return m.pairwiseDistance(a, b)
	}
	return m.clusterDistance(a, b)
}

func (m *EntropyMetric) clusterDistance(a, b []int) float64 {
	joint := m.Entropy(append(append(make([]int, 0, len(a)+len(b)), a...), b...))
	if joint == 0 {
		return MaxDistance
	}
	return 2 - (m.Entropy(a)+m.Entropy(b))/joint
}

func (m *EntropyMetric) pairwiseDistance(a, b []int) float64 {
	total := 0.0
	for _, i := range a {
		for _, j := range b {
			total += m.singletonDistance(i, j)
		}
	}
	return total / float64(len(a)*len(b))
}

func (m *EntropyMetric) singletonDistance(i, j int) float64 {
	key := [2]int{i, j}
	if i > j {
		key = [2]int{j, i}
	}
	if d, ok := m.singleton[key]; ok {
		return d
	}
	d := m.clusterDistance([]int{i}, []int{j})
	m.singleton[key] = d
	return d
}

// Entropy returns the Shannon entropy, in bits, of the joint distribution
// of gene values at the masked positions across the population sample.
func (m *EntropyMetric) Entropy(mask []int) float64 {
	key := maskKey(mask)
	if h, ok := m.entropies[key]; ok {
		return h
	}
	counts := make(map[string]int)
	value := make([]byte, len(mask))
	for _, sample := range m.samples {
		for i, p := range mask {
			value[i] = sample[p]
		}
		counts[string(value)]++
	}
	// Sum in a fixed order. Float addition is not associative, so summing
	// in map order would perturb the last bits between calls and make tied
	// distances compare unequal.
	ordered := make([]int, 0, len(counts))
	for _, count := range counts {
		ordered = append(ordered, count)
	}
	sort.Ints(ordered)
	total := float64(len(m.samples))
	h := 0.0
	for _, count := range ordered {
		p := float64(count) / total
		h -= p * math.Log2(p)
	}
	m.entropies[key] = h
	return h
}

// maskKey canonicalizes a position set independent of ordering. Entropy is
// invariant under permutation of the mask, so sorted positions share one
// cache slot.
func maskKey(mask []int) string {
	sorted := append([]int(nil), mask...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	buf := make([]byte, 0, len(sorted)*2)
	for _, p := range sorted {
		buf = append(buf, byte(p), byte(p>>8))
	}
	return string(buf)
}
