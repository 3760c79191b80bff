package storage

import (
	"context"
	"sync"

	"ltga/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	snapshots   map[string]model.PopulationSnapshot
	problems    map[string]model.ProblemSummary
	history     map[string][]float64
	diagnostics map[string][]model.GenerationDiagnostics
	trees       map[string][]model.TreeGeneration
	experiments map[string]model.ExperimentReport
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.snapshots = make(map[string]model.PopulationSnapshot)
	s.problems = make(map[string]model.ProblemSummary)
	s.history = make(map[string][]float64)
	s.diagnostics = make(map[string][]model.GenerationDiagnostics)
	s.trees = make(map[string][]model.TreeGeneration)
	s.experiments = make(map[string]model.ExperimentReport)
	return nil
}

func (s *MemoryStore) Reset(ctx context.Context) error {
	return s.Init(ctx)
}

func (s *MemoryStore) SavePopulationSnapshot(_ context.Context, snapshot model.PopulationSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snapshot.ID] = snapshot
	return nil
}

func (s *MemoryStore) GetPopulationSnapshot(_ context.Context, id string) (model.PopulationSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[id]
	return snapshot, ok, nil
}

func (s *MemoryStore) SaveProblemSummary(_ context.Context, summary model.ProblemSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.problems[summary.Name] = summary
	return nil
}

func (s *MemoryStore) GetProblemSummary(_ context.Context, name string) (model.ProblemSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.problems[name]
	return summary, ok, nil
}

func (s *MemoryStore) SaveFitnessHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := append([]float64(nil), history...)
	s.history[runID] = copied
	return nil
}

func (s *MemoryStore) GetFitnessHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	copied := append([]float64(nil), history...)
	return copied, true, nil
}

func (s *MemoryStore) SaveGenerationDiagnostics(_ context.Context, runID string, diagnostics []model.GenerationDiagnostics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(copied, diagnostics)
	s.diagnostics[runID] = copied
	return nil
}

func (s *MemoryStore) GetGenerationDiagnostics(_ context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	diagnostics, ok := s.diagnostics[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(copied, diagnostics)
	return copied, true, nil
}

func (s *MemoryStore) SaveTreeHistory(_ context.Context, runID string, trees []model.TreeGeneration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.TreeGeneration, 0, len(trees))
	for _, generation := range trees {
		merges := make([]model.TreeMerge, 0, len(generation.Merges))
		for _, merge := range generation.Merges {
			merges = append(merges, model.TreeMerge{
				Left:     append([]int(nil), merge.Left...),
				Right:    append([]int(nil), merge.Right...),
				Distance: merge.Distance,
			})
		}
		copied = append(copied, model.TreeGeneration{
			Generation: generation.Generation,
			Merges:     merges,
		})
	}
	s.trees[runID] = copied
	return nil
}

func (s *MemoryStore) GetTreeHistory(_ context.Context, runID string) ([]model.TreeGeneration, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trees, ok := s.trees[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.TreeGeneration, 0, len(trees))
	for _, generation := range trees {
		merges := make([]model.TreeMerge, 0, len(generation.Merges))
		for _, merge := range generation.Merges {
			merges = append(merges, model.TreeMerge{
				Left:     append([]int(nil), merge.Left...),
				Right:    append([]int(nil), merge.Right...),
				Distance: merge.Distance,
			})
		}
		copied = append(copied, model.TreeGeneration{
			Generation: generation.Generation,
			Merges:     merges,
		})
	}
	return copied, true, nil
}

func (s *MemoryStore) SaveExperimentReport(_ context.Context, report model.ExperimentReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.experiments[report.ID] = report
	return nil
}

func (s *MemoryStore) GetExperimentReport(_ context.Context, id string) (model.ExperimentReport, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.experiments[id]
	return report, ok, nil
}
