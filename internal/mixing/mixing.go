package mixing

import (
	"bytes"
	"fmt"
	"math/rand"

	"ltga/internal/genotype"
)

type AcceptancePolicy string

const (
	// AcceptImprovement keeps a trial only when it is strictly better than
	// the subject.
	AcceptImprovement AcceptancePolicy = "improvement"
	// AcceptEqualOrBetter also keeps fitness-neutral trials, which lets the
	// population drift across plateaus.
	AcceptEqualOrBetter AcceptancePolicy = "equal_or_better"
)

// EvalFunc scores a gene sequence. An error marks the evaluation as failed;
// the trial that caused it is rejected.
type EvalFunc func(genes []uint8) (float64, error)

// Result aggregates what happened during one subject's pass over the masks.
type Result struct {
	Accepted    int
	Trials      int
	Skipped     int
	Evaluations int
	Improved    bool
}

// Mixer applies optimal mixing: for each mask it copies the masked genes
// from a random donor into the subject, evaluates the trial, and keeps or
// reverts it per the acceptance policy.
type Mixer struct {
	Policy AcceptancePolicy
	// ExcludeSubject removes the subject's own slot from the donor pool.
	// With a pool of one the subject donates to itself, which is a no-op
	// trial and is skipped like any other.
	ExcludeSubject bool
}

func NewMixer(policy AcceptancePolicy, excludeSubject bool) (*Mixer, error) {
	switch policy {
	case AcceptImprovement, AcceptEqualOrBetter:
	default:
		return nil, fmt.Errorf("unsupported acceptance policy: %s", policy)
	}
	return &Mixer{Policy: policy, ExcludeSubject: excludeSubject}, nil
}

// Mix runs the subject through every mask in order. The subject must carry a
// valid fitness on entry and always carries one on exit; its fitness never
// decreases. The donor pool is read-only here; donors are sampled per mask.
func (m *Mixer) Mix(subject *genotype.Genotype, subjectIndex int, donors []*genotype.Genotype, masks [][]int, eval EvalFunc, rng *rand.Rand) (Result, error) {
	var res Result
	fitness, ok := subject.Fitness()
	if !ok {
		return res, fmt.Errorf("mixing subject has no fitness")
	}
	if len(donors) == 0 {
		return res, fmt.Errorf("donor pool is empty")
	}

	for _, mask := range masks {
		donor := m.pickDonor(donors, subjectIndex, rng)
		if donor == nil {
			res.Skipped++
			continue
		}
		donated := donor.ValuesAt(mask)
		original := subject.ValuesAt(mask)
		if bytes.Equal(donated, original) {
			res.Skipped++
			continue
		}

		subject.SetValuesAt(mask, donated)
		res.Trials++
		trial, err := eval(subject.Genes())
		if err != nil {
			subject.SetValuesAt(mask, original)
			subject.SetFitness(fitness)
			continue
		}
		res.Evaluations++

		if m.accepts(trial, fitness) {
			if trial > fitness {
				res.Improved = true
			}
			fitness = trial
			subject.SetFitness(trial)
			res.Accepted++
		} else {
			subject.SetValuesAt(mask, original)
			subject.SetFitness(fitness)
		}
	}
	return res, nil
}

// ForceImprove donates from a single elite genotype, mask by mask, and stops
// at the first strict improvement. It is the fallback when an entire mixing
// pass over the population accepted nothing.
func (m *Mixer) ForceImprove(subject *genotype.Genotype, elite *genotype.Genotype, masks [][]int, eval EvalFunc) (Result, error) {
	var res Result
	fitness, ok := subject.Fitness()
	if !ok {
		return res, fmt.Errorf("mixing subject has no fitness")
	}
	if elite == nil {
		return res, fmt.Errorf("elite donor is nil")
	}

	for _, mask := range masks {
		donated := elite.ValuesAt(mask)
		original := subject.ValuesAt(mask)
		if bytes.Equal(donated, original) {
			res.Skipped++
			continue
		}

		subject.SetValuesAt(mask, donated)
		res.Trials++
		trial, err := eval(subject.Genes())
		if err != nil {
			subject.SetValuesAt(mask, original)
			subject.SetFitness(fitness)
			continue
		}
		res.Evaluations++

		if trial > fitness {
			subject.SetFitness(trial)
			res.Accepted++
			res.Improved = true
			return res, nil
		}
		subject.SetValuesAt(mask, original)
		subject.SetFitness(fitness)
	}
	return res, nil
}

func (m *Mixer) accepts(trial, current float64) bool {
	if m.Policy == AcceptEqualOrBetter {
		return trial >= current
	}
	return trial > current
}

func (m *Mixer) pickDonor(donors []*genotype.Genotype, subjectIndex int, rng *rand.Rand) *genotype.Genotype {
	if !m.ExcludeSubject || subjectIndex < 0 || subjectIndex >= len(donors) {
		return donors[rng.Intn(len(donors))]
	}
	if len(donors) == 1 {
		return donors[0]
	}
	i := rng.Intn(len(donors) - 1)
	if i >= subjectIndex {
		i++
	}
	return donors[i]
}
