package storage

import (
	"context"
	"testing"

	"ltga/internal/model"
)

func TestMemoryStorePopulationSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := model.PopulationSnapshot{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		ID:              "run-1",
		Generation:      3,
		Genotypes: []model.GenotypeRecord{
			{Genes: []int{0, 1, 1, 0}, Fitness: 0.5, Evaluated: true},
			{Genes: []int{1, 1, 1, 1}, Fitness: 1.0, Evaluated: true},
		},
	}
	if err := store.SavePopulationSnapshot(ctx, input); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	output, ok, err := store.GetPopulationSnapshot(ctx, "run-1")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted snapshot")
	}
	if output.Generation != 3 || len(output.Genotypes) != 2 || output.Genotypes[1].Fitness != 1.0 {
		t.Fatalf("unexpected snapshot: %+v", output)
	}
}

func TestMemoryStoreFitnessHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := []float64{0.1, 0.2, 0.3}
	if err := store.SaveFitnessHistory(ctx, "run-1", input); err != nil {
		t.Fatalf("save history: %v", err)
	}
	output, ok, err := store.GetFitnessHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted fitness history")
	}
	if len(output) != len(input) || output[2] != input[2] {
		t.Fatalf("unexpected history: %+v", output)
	}
}

func TestMemoryStoreGenerationDiagnosticsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := []model.GenerationDiagnostics{
		{Generation: 1, BestFitness: 0.8, MeanFitness: 0.6, MinFitness: 0.2, AcceptedMixes: 4, UniqueGenotypes: 5},
		{Generation: 2, BestFitness: 0.9, MeanFitness: 0.7, MinFitness: 0.3, AcceptedMixes: 2, UniqueGenotypes: 3},
	}
	if err := store.SaveGenerationDiagnostics(ctx, "run-1", input); err != nil {
		t.Fatalf("save diagnostics: %v", err)
	}
	output, ok, err := store.GetGenerationDiagnostics(ctx, "run-1")
	if err != nil {
		t.Fatalf("get diagnostics: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted diagnostics")
	}
	if len(output) != len(input) || output[1].AcceptedMixes != input[1].AcceptedMixes {
		t.Fatalf("unexpected diagnostics: %+v", output)
	}
}

func TestMemoryStoreTreeHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := []model.TreeGeneration{{
		Generation: 0,
		Merges: []model.TreeMerge{
			{Left: []int{0}, Right: []int{1}, Distance: 0.25},
			{Left: []int{2}, Right: []int{3}, Distance: 0.75},
		},
	}}
	if err := store.SaveTreeHistory(ctx, "run-1", input); err != nil {
		t.Fatalf("save trees: %v", err)
	}
	output, ok, err := store.GetTreeHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("get trees: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted tree history")
	}
	if len(output) != 1 || len(output[0].Merges) != 2 || output[0].Merges[1].Distance != 0.75 {
		t.Fatalf("unexpected tree history: %+v", output)
	}

	// Stored copy must not alias the caller's slices.
	input[0].Merges[0].Left[0] = 99
	output, _, _ = store.GetTreeHistory(ctx, "run-1")
	if output[0].Merges[0].Left[0] == 99 {
		t.Fatal("stored tree history aliases caller data")
	}
}

func TestMemoryStoreExperimentReportRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := model.ExperimentReport{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		ID:              "exp-1",
		Problem:         "deceptive_trap",
		Runs:            30,
		SuccessRate:     0.9,
		EvaluationsAvg:  1234.5,
	}
	if err := store.SaveExperimentReport(ctx, input); err != nil {
		t.Fatalf("save report: %v", err)
	}
	output, ok, err := store.GetExperimentReport(ctx, "exp-1")
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted report")
	}
	if output.Problem != "deceptive_trap" || output.Runs != 30 {
		t.Fatalf("unexpected report: %+v", output)
	}
}
