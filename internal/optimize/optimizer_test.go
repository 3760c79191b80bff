package optimize

import (
	"context"
	"reflect"
	"testing"

	"ltga/internal/problem"
)

func oneMax(t *testing.T, dimensions int) problem.Problem {
	t.Helper()

	f, err := problem.NewOneMax(dimensions)
	if err != nil {
		t.Fatalf("new one_max: %v", err)
	}
	return f
}

func TestRunSolvesOneMax(t *testing.T) {
	opt, err := New(Config{
		Problem:        oneMax(t, 16),
		PopulationSize: 32,
		GenomeLength:   16,
		Generations:    60,
		FitnessGoal:    1.0,
		Seed:           5,
	})
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}
	result, err := opt.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !result.GoalReached || result.BestFitness != 1.0 {
		t.Fatalf("one_max not solved: %+v", result)
	}
	for i, g := range result.BestGenes {
		if g != 1 {
			t.Fatalf("best gene %d is %d, want 1", i, g)
		}
	}
	if result.Generations == 0 || len(result.Diagnostics) != result.Generations {
		t.Fatalf("diagnostics out of step: gens=%d diags=%d", result.Generations, len(result.Diagnostics))
	}
	if result.Diagnostics[0].Generation != 0 {
		t.Fatalf("first diagnostic generation = %d, want 0", result.Diagnostics[0].Generation)
	}
	if result.InitialEvaluations != 32 {
		t.Fatalf("initial evaluations = %d, want one per member", result.InitialEvaluations)
	}
}

func TestRunIsDeterministicUnderSeed(t *testing.T) {
	cfg := Config{
		Problem:        oneMax(t, 12),
		PopulationSize: 20,
		GenomeLength:   12,
		Generations:    15,
		Seed:           99,
	}

	run := func() *RunResult {
		opt, err := New(cfg)
		if err != nil {
			t.Fatalf("new optimizer: %v", err)
		}
		result, err := opt.Run(context.Background())
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return result
	}

	first, second := run(), run()
	if !reflect.DeepEqual(first.BestGenes, second.BestGenes) {
		t.Fatal("same seed must find the same best genes")
	}
	if first.Evaluations != second.Evaluations {
		t.Fatalf("evaluation counts diverge: %d vs %d", first.Evaluations, second.Evaluations)
	}
	if !reflect.DeepEqual(first.Diagnostics, second.Diagnostics) {
		t.Fatal("same seed must reproduce the diagnostics")
	}
}

func TestGenerationalVariantSolvesOneMax(t *testing.T) {
	opt, err := New(Config{
		Problem:        oneMax(t, 16),
		PopulationSize: 32,
		GenomeLength:   16,
		Generations:    60,
		FitnessGoal:    1.0,
		Seed:           7,
		Workers:        4,
		Variant:        VariantGenerational,
	})
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}
	result, err := opt.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.GoalReached {
		t.Fatalf("generational variant did not reach the goal: best=%f", result.BestFitness)
	}
}

func TestGenerationalVariantIgnoresWorkerCount(t *testing.T) {
	run := func(workers int) *RunResult {
		opt, err := New(Config{
			Problem:        oneMax(t, 12),
			PopulationSize: 20,
			GenomeLength:   12,
			Generations:    10,
			Seed:           21,
			Workers:        workers,
			Variant:        VariantGenerational,
		})
		if err != nil {
			t.Fatalf("new optimizer: %v", err)
		}
		result, err := opt.Run(context.Background())
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return result
	}

	// Per-subject RNG seeding makes the outcome identical however the
	// subjects are spread over workers.
	serial, parallel := run(1), run(8)
	if !reflect.DeepEqual(serial.BestGenes, parallel.BestGenes) {
		t.Fatal("worker count changed the outcome")
	}
	if serial.BestFitness != parallel.BestFitness {
		t.Fatalf("worker count changed the best fitness: %f vs %f", serial.BestFitness, parallel.BestFitness)
	}
}

func TestGenerationLimitStopsRun(t *testing.T) {
	opt, err := New(Config{
		Problem:        oneMax(t, 20),
		PopulationSize: 8,
		GenomeLength:   20,
		Generations:    3,
		Seed:           1,
	})
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}
	result, err := opt.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Generations > 3 {
		t.Fatalf("ran %d generations past the limit", result.Generations)
	}
}

func TestEvaluationBudgetExcludesInitialScoring(t *testing.T) {
	opt, err := New(Config{
		Problem:          oneMax(t, 20),
		PopulationSize:   16,
		GenomeLength:     20,
		EvaluationsLimit: 50,
		Seed:             3,
	})
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}
	result, err := opt.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.InitialEvaluations != 16 {
		t.Fatalf("initial evaluations = %d, want 16", result.InitialEvaluations)
	}
	spent := result.Evaluations - result.InitialEvaluations
	if spent < 50 && !result.Converged {
		t.Fatalf("run stopped with %d of 50 budget spent and no convergence", spent)
	}
	// The budget is checked between subjects, so one subject's pass may
	// overshoot by at most the mask count.
	if spent > 50+2*20 {
		t.Fatalf("budget overshot too far: spent %d of 50", spent)
	}
}

func TestLocalSearchSeedsPopulation(t *testing.T) {
	opt, err := New(Config{
		Problem:        oneMax(t, 10),
		PopulationSize: 6,
		GenomeLength:   10,
		Generations:    1,
		Seed:           11,
		LocalSearch:    true,
	})
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}
	result, err := opt.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Hill climbing spends far more than one evaluation per member.
	if result.InitialEvaluations <= 6 {
		t.Fatalf("initial evaluations = %d, expected local search cost", result.InitialEvaluations)
	}
	// Every member hill climbs to the all-ones optimum on one_max.
	if result.BestFitness != 1.0 {
		t.Fatalf("best fitness = %f, want 1 after local search", result.BestFitness)
	}
}

func TestUniqueEvaluationsBoundsTheCount(t *testing.T) {
	opt, err := New(Config{
		Problem:           oneMax(t, 6),
		PopulationSize:    16,
		GenomeLength:      6,
		Generations:       40,
		Seed:              13,
		UniqueEvaluations: true,
	})
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}
	result, err := opt.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Evaluations > 1<<6 {
		t.Fatalf("counted %d evaluations for a space of %d genotypes", result.Evaluations, 1<<6)
	}
}

func TestRecordTreesTracksGenerations(t *testing.T) {
	opt, err := New(Config{
		Problem:        oneMax(t, 8),
		PopulationSize: 12,
		GenomeLength:   8,
		Generations:    5,
		Seed:           17,
		RecordTrees:    true,
	})
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}
	result, err := opt.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Trees) != result.Generations {
		t.Fatalf("trees=%d generations=%d", len(result.Trees), result.Generations)
	}
	for _, tree := range result.Trees {
		if len(tree.Merges) != 7 {
			t.Fatalf("expected 7 merges for 8 genes, got %d", len(tree.Merges))
		}
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	opt, err := New(Config{
		Problem:        oneMax(t, 16),
		PopulationSize: 16,
		GenomeLength:   16,
		Seed:           19,
	})
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := opt.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Generations != 0 {
		t.Fatalf("cancelled run executed %d generations", result.Generations)
	}
	if result.Evaluations != result.InitialEvaluations {
		t.Fatalf("cancelled run kept evaluating: %+v", result)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	base := Config{Problem: oneMax(t, 4), PopulationSize: 4, GenomeLength: 4}

	if _, err := New(Config{}); err == nil {
		t.Fatal("expected missing problem error")
	}

	cfg := base
	cfg.PopulationSize = 1
	if _, err := New(cfg); err == nil {
		t.Fatal("expected population size error")
	}

	cfg = base
	cfg.Variant = Variant("bogus")
	if _, err := New(cfg); err == nil {
		t.Fatal("expected variant error")
	}

	cfg = base
	cfg.Traversal = "bogus"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected traversal error")
	}

	cfg = base
	cfg.Acceptance = "bogus"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected acceptance policy error")
	}

	cfg = base
	cfg.Alphabet = 1
	if _, err := New(cfg); err == nil {
		t.Fatal("expected alphabet error")
	}
}
