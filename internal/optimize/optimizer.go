// Package optimize runs linkage tree optimization: per generation it builds
// an entropy-based linkage tree over the population and applies optimal
// mixing with the tree's clusters as crossover masks.
package optimize

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"ltga/internal/genotype"
	"ltga/internal/hillclimb"
	"ltga/internal/linkage"
	"ltga/internal/mixing"
	"ltga/internal/model"
	"ltga/internal/problem"
)

type Variant string

const (
	// VariantSequential mixes subjects one at a time against the live
	// population, so improvements propagate within a generation.
	VariantSequential Variant = "sequential"
	// VariantGenerational mixes every subject against a frozen snapshot of
	// the generation's start and commits all subjects at once. Subjects are
	// independent, so they are mixed in parallel.
	VariantGenerational Variant = "generational"
)

// Config holds everything a run needs. Zero values select the defaults
// noted per field.
type Config struct {
	Problem        problem.Problem
	PopulationSize int
	GenomeLength   int
	Alphabet       int // default 2

	Generations      int     // 0 means no generation limit
	EvaluationsLimit int     // 0 means no evaluation budget
	FitnessGoal      float64 // >0 stops the run once best fitness reaches it

	Seed    int64
	Workers int // generational parallelism, default 1

	Metric            linkage.MetricVariant  // default cluster
	Traversal         linkage.TraversalOrder // default smallest_first
	Acceptance        mixing.AcceptancePolicy
	ForcedImprovement bool
	ExcludeSubject    bool
	Variant           Variant // default sequential

	// UniqueEvaluations caches fitness by gene content; repeat evaluations
	// of an already seen genotype do not count against the budget.
	UniqueEvaluations bool
	// LocalSearch hill climbs every initial member before evolution starts.
	LocalSearch bool
	RecordTrees bool

	// Initial overrides random initialization. Its size and genome length
	// take precedence over PopulationSize and GenomeLength.
	Initial *genotype.Population
}

// RunResult is what a finished run reports. Evaluations is the total spent;
// InitialEvaluations is the share consumed before the generation loop
// started (initial scoring plus local search), so mixing cost can be
// reported on its own.
type RunResult struct {
	BestGenes          []uint8
	BestFitness        float64
	Generations        int
	Evaluations        int
	InitialEvaluations int
	Converged          bool
	GoalReached        bool
	Diagnostics        []model.GenerationDiagnostics
	Trees              []model.TreeGeneration
	FinalPopulation    *genotype.Population
}

// Optimizer is a single-run engine. Construct with New, run once with Run.
type Optimizer struct {
	cfg   Config
	mixer *mixing.Mixer
	rng   *rand.Rand
}

func New(cfg Config) (*Optimizer, error) {
	if cfg.Problem == nil {
		return nil, fmt.Errorf("optimizer requires a problem")
	}
	if cfg.Initial == nil {
		if cfg.PopulationSize < 2 {
			return nil, fmt.Errorf("population size must be >= 2, got %d", cfg.PopulationSize)
		}
		if cfg.GenomeLength < 1 {
			return nil, fmt.Errorf("genome length must be >= 1, got %d", cfg.GenomeLength)
		}
	}
	if cfg.Alphabet == 0 {
		cfg.Alphabet = 2
	}
	if cfg.Alphabet < 2 {
		return nil, fmt.Errorf("alphabet size must be >= 2, got %d", cfg.Alphabet)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Metric == "" {
		cfg.Metric = linkage.MetricCluster
	}
	if cfg.Traversal == "" {
		cfg.Traversal = linkage.OrderSmallestFirst
	}
	if cfg.Acceptance == "" {
		cfg.Acceptance = mixing.AcceptImprovement
	}
	if cfg.Variant == "" {
		cfg.Variant = VariantSequential
	}
	switch cfg.Variant {
	case VariantSequential, VariantGenerational:
	default:
		return nil, fmt.Errorf("unsupported mixing variant: %s", cfg.Variant)
	}
	switch cfg.Traversal {
	case linkage.OrderSmallestFirst, linkage.OrderLeastLinkedFirst:
	default:
		return nil, fmt.Errorf("unsupported traversal order: %s", cfg.Traversal)
	}

	mixer, err := mixing.NewMixer(cfg.Acceptance, cfg.ExcludeSubject)
	if err != nil {
		return nil, err
	}
	return &Optimizer{
		cfg:   cfg,
		mixer: mixer,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// evalCounter wraps the problem with evaluation accounting and the optional
// unique-genotype cache. It is safe for concurrent use; generational mixing
// evaluates from multiple workers.
type evalCounter struct {
	mu      sync.Mutex
	problem problem.Problem
	unique  map[string]float64
	count   int
}

func newEvalCounter(p problem.Problem, unique bool) *evalCounter {
	c := &evalCounter{problem: p}
	if unique {
		c.unique = make(map[string]float64)
	}
	return c
}

func (c *evalCounter) eval(genes []uint8) (float64, error) {
	if c.unique != nil {
		key := string(genes)
		c.mu.Lock()
		fitness, seen := c.unique[key]
		c.mu.Unlock()
		if seen {
			return fitness, nil
		}
		fitness, err := c.problem.Evaluate(genes)
		if err != nil {
			return 0, err
		}
		c.mu.Lock()
		c.unique[key] = fitness
		c.count++
		c.mu.Unlock()
		return fitness, nil
	}
	fitness, err := c.problem.Evaluate(genes)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
	return fitness, nil
}

func (c *evalCounter) evaluations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Run executes the full optimization loop. It stops on the fitness goal,
// the evaluation budget, the generation limit, population convergence, or
// context cancellation, whichever comes first.
func (o *Optimizer) Run(ctx context.Context) (*RunResult, error) {
	cfg := o.cfg
	counter := newEvalCounter(cfg.Problem, cfg.UniqueEvaluations)

	pop := cfg.Initial
	if pop == nil {
		var err error
		pop, err = genotype.NewRandomPopulation(cfg.PopulationSize, cfg.GenomeLength, cfg.Alphabet, o.rng)
		if err != nil {
			return nil, err
		}
	}

	if cfg.LocalSearch {
		for _, member := range pop.Members() {
			genes := member.Genes()
			best, _, err := hillclimb.SteepestAscent(genes, counter.eval, o.rng)
			if err != nil {
				return nil, err
			}
			member.SetValuesAt(fullMask(len(genes)), genes)
			member.SetFitness(best)
		}
	}
	for i, member := range pop.Members() {
		if _, ok := member.Fitness(); ok {
			continue
		}
		fitness, err := counter.eval(member.Genes())
		if err != nil {
			return nil, fmt.Errorf("evaluate initial member %d: %w", i, err)
		}
		member.SetFitness(fitness)
	}

	result := &RunResult{FinalPopulation: pop}
	result.InitialEvaluations = counter.evaluations()
	elite, err := pop.Best()
	if err != nil {
		return nil, err
	}
	elite = elite.Clone()

	// The evaluation budget covers the generation loop only; initial
	// scoring and local search are accounted for separately.
	budgetSpent := func() bool {
		return cfg.EvaluationsLimit > 0 &&
			counter.evaluations()-result.InitialEvaluations >= cfg.EvaluationsLimit
	}

	previousKeys := pop.UniqueKeys()
	for gen := 0; ; gen++ {
		if err := ctx.Err(); err != nil {
			break
		}
		if cfg.FitnessGoal > 0 && eliteFitness(elite) >= cfg.FitnessGoal {
			break
		}
		if budgetSpent() {
			break
		}
		if cfg.Generations > 0 && gen >= cfg.Generations {
			break
		}

		metric, err := linkage.NewEntropyMetric(pop, cfg.Metric)
		if err != nil {
			return nil, err
		}
		tree, err := linkage.Build(pop, metric, o.rng)
		if err != nil {
			return nil, fmt.Errorf("build linkage tree for generation %d: %w", gen, err)
		}
		masks := tree.Masks(cfg.Traversal)
		if cfg.RecordTrees {
			result.Trees = append(result.Trees, treeRecord(gen, tree))
		}

		var accepted, forced int
		if cfg.Variant == VariantGenerational {
			accepted, forced, err = o.mixGenerational(ctx, pop, masks, counter, elite, gen)
		} else {
			accepted, forced, err = o.mixSequential(ctx, pop, masks, counter, elite, budgetSpent)
		}
		if err != nil {
			return nil, err
		}

		best, err := pop.Best()
		if err != nil {
			return nil, err
		}
		if bf, _ := best.Fitness(); eliteFitness(elite) < bf {
			elite = best.Clone()
		}
		result.Generations = gen + 1
		result.Diagnostics = append(result.Diagnostics, diagnostics(gen, pop, counter, accepted, forced))

		currentKeys := pop.UniqueKeys()
		if len(currentKeys) == 1 || keysEqual(currentKeys, previousKeys) {
			result.Converged = true
			break
		}
		previousKeys = currentKeys
	}

	result.Evaluations = counter.evaluations()
	result.BestGenes = elite.Genes()
	result.BestFitness = eliteFitness(elite)
	result.GoalReached = cfg.FitnessGoal > 0 && result.BestFitness >= cfg.FitnessGoal
	return result, nil
}

// mixSequential walks the population in index order, mixing each member
// against the live population. Accepted donations become visible to later
// subjects within the same generation.
func (o *Optimizer) mixSequential(ctx context.Context, pop *genotype.Population, masks [][]int, counter *evalCounter, elite *genotype.Genotype, budgetSpent func() bool) (int, int, error) {
	accepted, forced := 0, 0
	members := pop.Members()
	for i, subject := range members {
		if err := ctx.Err(); err != nil {
			return accepted, forced, nil
		}
		res, err := o.mixer.Mix(subject, i, members, masks, counter.eval, o.rng)
		if err != nil {
			return accepted, forced, fmt.Errorf("mix member %d: %w", i, err)
		}
		accepted += res.Accepted
		if res.Accepted == 0 && o.cfg.ForcedImprovement {
			fres, err := o.mixer.ForceImprove(subject, elite, masks, counter.eval)
			if err != nil {
				return accepted, forced, fmt.Errorf("forced improvement of member %d: %w", i, err)
			}
			forced += fres.Accepted
		}
		if budgetSpent() {
			return accepted, forced, nil
		}
	}
	return accepted, forced, nil
}

// mixGenerational mixes every member against a snapshot frozen at the start
// of the generation and commits all results at once. Each subject gets its
// own RNG derived from the run seed, the generation, and its index, so the
// outcome does not depend on worker scheduling.
func (o *Optimizer) mixGenerational(ctx context.Context, pop *genotype.Population, masks [][]int, counter *evalCounter, elite *genotype.Genotype, gen int) (int, int, error) {
	donors := pop.Snapshot()
	subjects := pop.Snapshot()

	type outcome struct {
		accepted int
		forced   int
		err      error
	}
	outcomes := make([]outcome, len(subjects))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < o.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				subject := subjects[i]
				rng := rand.New(rand.NewSource(o.cfg.Seed + int64(gen)*1000003 + int64(i)))
				res, err := o.mixer.Mix(subject, i, donors, masks, counter.eval, rng)
				if err != nil {
					outcomes[i] = outcome{err: fmt.Errorf("mix member %d: %w", i, err)}
					continue
				}
				out := outcome{accepted: res.Accepted}
				if res.Accepted == 0 && o.cfg.ForcedImprovement {
					fres, err := o.mixer.ForceImprove(subject, elite, masks, counter.eval)
					if err != nil {
						out.err = fmt.Errorf("forced improvement of member %d: %w", i, err)
					} else {
						out.forced = fres.Accepted
					}
				}
				outcomes[i] = out
			}
		}()
	}
feed:
	for i := range subjects {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	accepted, forced := 0, 0
	members := pop.Members()
	for i, out := range outcomes {
		if out.err != nil {
			return accepted, forced, out.err
		}
		accepted += out.accepted
		forced += out.forced
		members[i] = subjects[i]
	}
	return accepted, forced, nil
}

func diagnostics(gen int, pop *genotype.Population, counter *evalCounter, accepted, forced int) model.GenerationDiagnostics {
	best, minFitness := 0.0, 0.0
	total := 0.0
	for i, member := range pop.Members() {
		f, _ := member.Fitness()
		if i == 0 || f > best {
			best = f
		}
		if i == 0 || f < minFitness {
			minFitness = f
		}
		total += f
	}
	return model.GenerationDiagnostics{
		Generation:      gen,
		BestFitness:     best,
		MeanFitness:     total / float64(pop.Size()),
		MinFitness:      minFitness,
		Evaluations:     counter.evaluations(),
		AcceptedMixes:   accepted,
		ForcedMixes:     forced,
		UniqueGenotypes: len(pop.UniqueKeys()),
	}
}

func treeRecord(gen int, tree *linkage.Tree) model.TreeGeneration {
	merges := tree.Merges()
	record := model.TreeGeneration{Generation: gen, Merges: make([]model.TreeMerge, len(merges))}
	for i, m := range merges {
		record.Merges[i] = model.TreeMerge{Left: m.Left, Right: m.Right, Distance: m.Distance}
	}
	return record
}

func eliteFitness(elite *genotype.Genotype) float64 {
	f, _ := elite.Fitness()
	return f
}

func keysEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func fullMask(n int) []int {
	mask := make([]int, n)
	for i := range mask {
		mask[i] = i
	}
	return mask
}
