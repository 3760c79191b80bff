package ltga

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ltga/internal/experiment"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := New(Options{
		StoreKind:    "memory",
		ArtifactsDir: filepath.Join(t.TempDir(), "artifacts"),
		ExportsDir:   filepath.Join(t.TempDir(), "exports"),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClientRunWritesArtifacts(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Run(ctx, RunRequest{
		Problem:     "one_max",
		Dimensions:  12,
		Population:  24,
		Generations: 40,
		Seed:        5,
		RecordTrees: true,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID == "" {
		t.Fatal("expected a run id")
	}
	if !summary.GoalReached {
		t.Fatalf("expected one_max to be solved, best=%f", summary.FinalBestFitness)
	}
	if len(summary.BestByGeneration) == 0 {
		t.Fatal("expected fitness history")
	}

	for _, file := range []string{
		"config.json",
		"fitness_history.json",
		"top_solutions.json",
		"generation_diagnostics.json",
		"tree_history.json",
		"fitness_series.csv",
	} {
		if _, err := os.Stat(filepath.Join(summary.ArtifactsDir, file)); err != nil {
			t.Fatalf("missing artifact %s: %v", file, err)
		}
	}

	history, err := client.FitnessHistory(ctx, FitnessHistoryRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("fitness history: %v", err)
	}
	if len(history) != len(summary.BestByGeneration) {
		t.Fatalf("history length %d, summary length %d", len(history), len(summary.BestByGeneration))
	}

	diagnostics, err := client.Diagnostics(ctx, DiagnosticsRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("diagnostics: %v", err)
	}
	if len(diagnostics) == 0 {
		t.Fatal("expected diagnostics")
	}

	trees, err := client.Trees(ctx, TreesRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("trees: %v", err)
	}
	if len(trees) == 0 {
		t.Fatal("expected tree history")
	}
	if len(trees[0].Merges) != 11 {
		t.Fatalf("expected 11 merges for 12 genes, got %d", len(trees[0].Merges))
	}

	top, err := client.TopSolutions(ctx, TopSolutionsRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("top solutions: %v", err)
	}
	if len(top) == 0 || top[0].Fitness != summary.FinalBestFitness {
		t.Fatalf("unexpected top solutions: %+v", top)
	}

	problemSummary, err := client.ProblemSummary(ctx, "one_max")
	if err != nil {
		t.Fatalf("problem summary: %v", err)
	}
	if problemSummary.BestFitness != summary.FinalBestFitness {
		t.Fatalf("summary best %f, run best %f", problemSummary.BestFitness, summary.FinalBestFitness)
	}
}

func TestClientRunsListsNewestFirst(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	first, err := client.Run(ctx, RunRequest{Problem: "one_max", Dimensions: 8, Population: 12, Generations: 5, Seed: 1})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := client.Run(ctx, RunRequest{Problem: "one_max", Dimensions: 8, Population: 12, Generations: 5, Seed: 2})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	items, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(items))
	}
	if items[0].RunID != second.RunID || items[1].RunID != first.RunID {
		t.Fatalf("unexpected order: %s, %s", items[0].RunID, items[1].RunID)
	}

	limited, err := client.Runs(ctx, RunsRequest{Limit: 1})
	if err != nil {
		t.Fatalf("limited runs: %v", err)
	}
	if len(limited) != 1 || limited[0].RunID != second.RunID {
		t.Fatalf("unexpected limited listing: %+v", limited)
	}
}

func TestClientExportLatest(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Run(ctx, RunRequest{Problem: "one_max", Dimensions: 8, Population: 12, Generations: 5})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	exported, err := client.Export(ctx, ExportRequest{Latest: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported.RunID != summary.RunID {
		t.Fatalf("exported %s, expected %s", exported.RunID, summary.RunID)
	}
	if _, err := os.Stat(filepath.Join(exported.Directory, "config.json")); err != nil {
		t.Fatalf("missing exported config: %v", err)
	}

	if _, err := client.Export(ctx, ExportRequest{RunID: "x", Latest: true}); err == nil {
		t.Fatal("expected run id and latest to conflict")
	}
	if _, err := client.Export(ctx, ExportRequest{}); err == nil {
		t.Fatal("expected export to require a run selector")
	}
}

func TestClientExperimentCheckpointsAndCompletes(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	cfg := experiment.Config{
		Problem:    "one_max",
		Dimensions: 10,
		PopSize:    16,
		Runs:       3,
		Seed:       9,
	}
	summary, err := client.Experiment(ctx, ExperimentRequest{ExperimentID: "exp-api", Config: cfg})
	if err != nil {
		t.Fatalf("experiment: %v", err)
	}
	if summary.Runs != 3 || summary.Resumed {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	exps, err := client.Experiments(ctx)
	if err != nil {
		t.Fatalf("list experiments: %v", err)
	}
	if len(exps) != 1 || exps[0].ProgressFlag != "completed" || exps[0].RunIndex != 3 {
		t.Fatalf("unexpected experiment artifacts: %+v", exps)
	}
	if len(exps[0].BestFitnesses) != 3 {
		t.Fatalf("expected 3 checkpointed fitnesses, got %d", len(exps[0].BestFitnesses))
	}

	if _, err := client.Experiment(ctx, ExperimentRequest{ExperimentID: "exp-api", Config: cfg}); err == nil {
		t.Fatal("expected rerun of a completed experiment to fail")
	}
}

func TestClientBisectFindsOneMaxPopulation(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Bisect(ctx, BisectRequest{Config: experiment.Config{
		Problem:       "one_max",
		Dimensions:    8,
		PopSize:       2,
		BisectionRuns: 2,
		Seed:          3,
	}})
	if err != nil {
		t.Fatalf("bisect: %v", err)
	}
	if summary.Population < 2 {
		t.Fatalf("unexpected population: %d", summary.Population)
	}
}

func TestClientRejectsUnknownProblem(t *testing.T) {
	client := newTestClient(t)

	if _, err := client.Run(context.Background(), RunRequest{Problem: "no_such_problem", Dimensions: 8}); err == nil {
		t.Fatal("expected unknown problem error")
	}
}
