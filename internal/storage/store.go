package storage

import (
	"context"

	"ltga/internal/model"
)

// Store defines transaction-like persistence operations for run artifacts.
type Store interface {
	Init(ctx context.Context) error
	SavePopulationSnapshot(ctx context.Context, snapshot model.PopulationSnapshot) error
	GetPopulationSnapshot(ctx context.Context, id string) (model.PopulationSnapshot, bool, error)
	SaveProblemSummary(ctx context.Context, summary model.ProblemSummary) error
	GetProblemSummary(ctx context.Context, name string) (model.ProblemSummary, bool, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	SaveTreeHistory(ctx context.Context, runID string, trees []model.TreeGeneration) error
	GetTreeHistory(ctx context.Context, runID string) ([]model.TreeGeneration, bool, error)
	SaveExperimentReport(ctx context.Context, report model.ExperimentReport) error
	GetExperimentReport(ctx context.Context, id string) (model.ExperimentReport, bool, error)
}

// Resetter is implemented by stores that can drop all persisted data.
type Resetter interface {
	Reset(ctx context.Context) error
}
