// Package experiment orchestrates batches of optimization runs: repeated
// runs on fresh problem instances, combined statistics, and bisection to
// find the smallest reliable population size.
package experiment

import (
	"context"
	"fmt"

	"ltga/internal/linkage"
	"ltga/internal/mixing"
	"ltga/internal/optimize"
	"ltga/internal/problem"
	"ltga/internal/stats"
)

// RunReport describes one finished run. Evaluations excludes local search;
// LocalSearchEvaluations carries that share so runs where the hill climber
// already solved the problem can be told apart.
type RunReport struct {
	RunNumber              int     `json:"run_number"`
	Success                bool    `json:"success"`
	Evaluations            int     `json:"evaluations"`
	LocalSearchEvaluations int     `json:"local_search_evaluations"`
	BestFitness            float64 `json:"best_fitness"`
	Generations            int     `json:"generations"`
}

// Summary is the combined view over a batch of runs. Following the usual
// reporting convention, evaluation statistics cover only successful runs
// that actually spent optimizer evaluations; the success rate denominator
// excludes runs local search solved outright.
type Summary struct {
	Runs           int     `json:"runs"`
	SuccessRate    float64 `json:"success_rate"`
	EvaluationsAvg float64 `json:"evaluations_avg"`
	EvaluationsStd float64 `json:"evaluations_std"`
	EvaluationsMed float64 `json:"evaluations_med"`
	BestFitnessAvg float64 `json:"best_fitness_avg"`
	BestFitnessStd float64 `json:"best_fitness_std"`
}

// OneRun performs a single optimization run. The run number selects the
// problem instance and offsets the seed, so runs within an experiment are
// independent but the whole experiment replays under a fixed seed.
func OneRun(ctx context.Context, cfg Config, runNumber int) (RunReport, error) {
	report := RunReport{RunNumber: runNumber}

	evaluator, err := problem.New(cfg.Problem, problem.Params{
		Dimensions:  cfg.Dimensions,
		K:           cfg.K,
		StepSize:    cfg.StepSize,
		ProblemSeed: cfg.ProblemSeed,
		InstanceDir: cfg.InstanceDir,
	}, runNumber)
	if err != nil {
		return report, fmt.Errorf("build problem for run %d: %w", runNumber, err)
	}

	goal := cfg.MaximumFitness
	if goal == 0 {
		if bounded, ok := evaluator.(problem.Bounded); ok {
			goal = bounded.MaxFitness()
		}
	}

	opt, err := optimize.New(optimize.Config{
		Problem:           evaluator,
		PopulationSize:    cfg.PopSize,
		GenomeLength:      cfg.Dimensions,
		EvaluationsLimit:  cfg.MaximumEvaluations,
		FitnessGoal:       goal,
		Seed:              cfg.Seed + int64(runNumber),
		Workers:           cfg.Workers,
		Metric:            linkage.MetricVariant(cfg.Metric),
		Traversal:         linkage.TraversalOrder(cfg.Traversal),
		Acceptance:        mixing.AcceptancePolicy(cfg.Acceptance),
		ForcedImprovement: cfg.ForcedImprovement,
		Variant:           optimize.Variant(cfg.Variant),
		UniqueEvaluations: cfg.Unique,
		LocalSearch:       cfg.LocalSearch,
	})
	if err != nil {
		return report, fmt.Errorf("configure run %d: %w", runNumber, err)
	}

	result, err := opt.Run(ctx)
	if err != nil {
		return report, fmt.Errorf("run %d: %w", runNumber, err)
	}

	report.Success = goal > 0 && result.BestFitness >= goal
	report.Evaluations = result.Evaluations - result.InitialEvaluations
	report.LocalSearchEvaluations = result.InitialEvaluations
	report.BestFitness = result.BestFitness
	report.Generations = result.Generations
	return report, nil
}

// FullRun performs every run of the experiment. On context cancellation it
// returns the reports gathered so far.
func FullRun(ctx context.Context, cfg Config) ([]RunReport, error) {
	reports := make([]RunReport, 0, cfg.Runs)
	for runNumber := 0; runNumber < cfg.Runs; runNumber++ {
		if ctx.Err() != nil {
			return reports, nil
		}
		report, err := OneRun(ctx, cfg, runNumber)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Combine aggregates run reports into a summary.
func Combine(reports []RunReport) Summary {
	summary := Summary{Runs: len(reports)}

	var evaluations, fitnesses []float64
	counted := 0
	for _, report := range reports {
		if report.Evaluations != 0 {
			counted++
		}
		if report.Success && report.Evaluations != 0 {
			evaluations = append(evaluations, float64(report.Evaluations))
			fitnesses = append(fitnesses, report.BestFitness)
		}
	}
	if counted > 0 {
		summary.SuccessRate = float64(len(evaluations)) / float64(counted)
	}
	summary.EvaluationsAvg, summary.EvaluationsStd = stats.MeanStd(evaluations)
	summary.EvaluationsMed = stats.Median(evaluations, 0)
	summary.BestFitnessAvg, summary.BestFitnessStd = stats.MeanStd(fitnesses)
	return summary
}

// bisectionPopulationCap bounds the doubling phase; a problem that still
// fails at this population size is treated as unsolvable by the
// configuration rather than doubling forever.
const bisectionPopulationCap = 1 << 20

// Bisection finds the smallest population size that solves the problem
// reliably: it doubles from 2 until the success criterion holds, then
// binary searches between the last failing and first succeeding sizes. The
// criterion is at most BisectionFailureLimit failures over BisectionRuns
// runs.
func Bisection(ctx context.Context, cfg Config) (int, error) {
	if cfg.BisectionRuns <= 0 {
		return 0, fmt.Errorf("bisection requires bisection_runs > 0, got %d", cfg.BisectionRuns)
	}

	canSucceed := func(popSize int) (bool, error) {
		probe := cfg
		probe.PopSize = popSize
		failures := 0
		for runNumber := 0; runNumber < probe.BisectionRuns; runNumber++ {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			report, err := OneRun(ctx, probe, runNumber)
			if err != nil {
				return false, err
			}
			if !report.Success {
				failures++
				if failures > probe.BisectionFailureLimit {
					return false, nil
				}
			}
		}
		return true, nil
	}

	least, most := 0, 1
	for {
		least = most
		most *= 2
		if most > bisectionPopulationCap {
			return 0, fmt.Errorf("bisection exceeded population cap %d without success", bisectionPopulationCap)
		}
		ok, err := canSucceed(most)
		if err != nil {
			return 0, err
		}
		if ok {
			break
		}
	}
	for least+1 < most {
		mid := (most + least) / 2
		ok, err := canSucceed(mid)
		if err != nil {
			return 0, err
		}
		if ok {
			most = mid
		} else {
			least = mid
		}
	}
	return most, nil
}
