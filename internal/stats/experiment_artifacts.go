package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const experimentsDir = "experiments"

// ExperimentArtifacts tracks a multi-run experiment on disk: its progress,
// the runs it produced, and the combined statistics. The progress fields
// make interrupted experiments visible instead of silently partial.
type ExperimentArtifacts struct {
	ID             string    `json:"id"`
	Problem        string    `json:"problem"`
	Notes          string    `json:"notes,omitempty"`
	ProgressFlag   string    `json:"progress_flag"`
	RunIndex       int       `json:"run_index"`
	TotalRuns      int       `json:"total_runs"`
	StartedAtUTC   string    `json:"started_at_utc,omitempty"`
	CompletedAtUTC string    `json:"completed_at_utc,omitempty"`
	Interruptions  []string  `json:"interruptions,omitempty"`
	RunIDs         []string  `json:"run_ids,omitempty"`
	SuccessRate    float64   `json:"success_rate"`
	EvaluationsAvg float64   `json:"evaluations_avg"`
	EvaluationsStd float64   `json:"evaluations_std"`
	EvaluationsMed float64   `json:"evaluations_med"`
	BestFitnessAvg float64   `json:"best_fitness_avg"`
	BestFitnessStd float64   `json:"best_fitness_std"`
	Evaluations    []float64 `json:"evaluations,omitempty"`
	BestFitnesses  []float64 `json:"best_fitnesses,omitempty"`
}

func WriteExperimentArtifacts(baseDir string, exp ExperimentArtifacts) error {
	if exp.ID == "" {
		return fmt.Errorf("experiment id is required")
	}
	path := experimentPath(baseDir, exp.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func ReadExperimentArtifacts(baseDir, id string) (ExperimentArtifacts, bool, error) {
	if id == "" {
		return ExperimentArtifacts{}, false, fmt.Errorf("experiment id is required")
	}
	path := experimentPath(baseDir, id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ExperimentArtifacts{}, false, nil
		}
		return ExperimentArtifacts{}, false, err
	}
	var exp ExperimentArtifacts
	if err := json.Unmarshal(data, &exp); err != nil {
		return ExperimentArtifacts{}, false, err
	}
	return exp, true, nil
}

func ListExperimentArtifacts(baseDir string) ([]ExperimentArtifacts, error) {
	root := filepath.Join(baseDir, experimentsDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return []ExperimentArtifacts{}, nil
		}
		return nil, err
	}

	exps := make([]ExperimentArtifacts, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		exp, ok, err := ReadExperimentArtifacts(baseDir, entry.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		exps = append(exps, exp)
	}
	sort.Slice(exps, func(i, j int) bool {
		switch {
		case exps[i].StartedAtUTC == exps[j].StartedAtUTC:
			return exps[i].ID < exps[j].ID
		case exps[i].StartedAtUTC == "":
			return false
		case exps[j].StartedAtUTC == "":
			return true
		default:
			return exps[i].StartedAtUTC > exps[j].StartedAtUTC
		}
	})
	return exps, nil
}

func experimentPath(baseDir, id string) string {
	return filepath.Join(baseDir, experimentsDir, id, "experiment.json")
}
