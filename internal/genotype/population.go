package genotype

import (
	"fmt"
	"math/rand"
)

// Population is a fixed-size ordered collection of genotypes. The size and
// genome length are fixed at construction and constant for a run.
type Population struct {
	members []*Genotype
}

func NewPopulation(members []*Genotype) (*Population, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("population must not be empty")
	}
	length := members[0].Len()
	for i, member := range members {
		if member == nil {
			return nil, fmt.Errorf("population member is nil at index %d", i)
		}
		if member.Len() != length {
			return nil, fmt.Errorf("genome length mismatch at index %d: got=%d want=%d", i, member.Len(), length)
		}
	}
	return &Population{members: members}, nil
}

// NewRandomPopulation draws size uniform random genotypes of the given
// length over the alphabet {0..alphabet-1}.
func NewRandomPopulation(size, length, alphabet int, rng *rand.Rand) (*Population, error) {
	if size <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if length <= 0 {
		return nil, fmt.Errorf("genome length must be > 0")
	}
	if alphabet < 2 {
		return nil, fmt.Errorf("alphabet size must be >= 2")
	}
	members := make([]*Genotype, size)
	for i := range members {
		members[i] = Random(length, alphabet, rng)
	}
	return &Population{members: members}, nil
}

func (p *Population) Size() int {
	return len(p.members)
}

func (p *Population) GenomeLength() int {
	return p.members[0].Len()
}

func (p *Population) Member(i int) *Genotype {
	return p.members[i]
}

// Members returns the underlying slice. Callers mutate members in place;
// the slice itself must not be resized.
func (p *Population) Members() []*Genotype {
	return p.members
}

// Snapshot deep-copies every member, freezing the population's current
// genetic content and fitness caches.
func (p *Population) Snapshot() []*Genotype {
	frozen := make([]*Genotype, len(p.members))
	for i, member := range p.members {
		frozen[i] = member.Clone()
	}
	return frozen
}

// Best returns the member with the highest cached fitness. It requires every
// member to have been evaluated.
func (p *Population) Best() (*Genotype, error) {
	var best *Genotype
	bestFitness := 0.0
	for i, member := range p.members {
		fitness, ok := member.Fitness()
		if !ok {
			return nil, fmt.Errorf("population member %d has no fitness", i)
		}
		if best == nil || fitness > bestFitness {
			best = member
			bestFitness = fitness
		}
	}
	return best, nil
}

// MeanFitness averages the cached fitness over all evaluated members.
func (p *Population) MeanFitness() (float64, error) {
	total := 0.0
	for i, member := range p.members {
		fitness, ok := member.Fitness()
		if !ok {
			return 0, fmt.Errorf("population member %d has no fitness", i)
		}
		total += fitness
	}
	return total / float64(len(p.members)), nil
}

// UniqueKeys returns the set of distinct gene contents currently present.
func (p *Population) UniqueKeys() map[string]struct{} {
	keys := make(map[string]struct{}, len(p.members))
	for _, member := range p.members {
		keys[member.Key()] = struct{}{}
	}
	return keys
}
