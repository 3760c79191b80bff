// Package ltga is the embedding-friendly client API: it owns a store and a
// lab, runs optimizations and experiments, and writes run artifacts to disk.
package ltga

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"ltga/internal/experiment"
	"ltga/internal/linkage"
	"ltga/internal/mixing"
	"ltga/internal/model"
	"ltga/internal/optimize"
	"ltga/internal/platform"
	"ltga/internal/problem"
	"ltga/internal/stats"
	"ltga/internal/storage"
)

const (
	defaultArtifactsDir = "artifacts"
	defaultExportsDir   = "exports"
	defaultDBPath       = "ltga.db"
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
}

type Client struct {
	store storage.Store
	lab   *platform.Lab

	artifactsDir string
	exportsDir   string
}

// RunRequest describes one optimization run. Zero values select the
// defaults noted in Run.
type RunRequest struct {
	Problem     string
	Dimensions  int
	K           int
	StepSize    int
	ProblemSeed int64
	InstanceDir string

	Population       int
	Generations      int
	EvaluationsLimit int
	FitnessGoal      float64
	Seed             int64
	Workers          int

	Metric            string
	Traversal         string
	Acceptance        string
	ForcedImprovement bool
	ExcludeSubject    bool
	Variant           string

	UniqueEvaluations bool
	LocalSearch       bool
	RecordTrees       bool
}

type RunSummary struct {
	RunID            string
	ArtifactsDir     string
	BestByGeneration []float64
	FinalBestFitness float64
	Evaluations      int
	GoalReached      bool
	Converged        bool
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID            string
	CreatedAtUTC     string
	Problem          string
	Dimensions       int
	Population       int
	Generations      int
	Seed             int64
	Variant          string
	FinalBestFitness float64
	Evaluations      int
	GoalReached      bool
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type FitnessHistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type DiagnosticsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type TreesRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type TopSolutionsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type ProblemSummaryItem struct {
	Name        string
	Description string
	BestFitness float64
}

// ExperimentRequest runs a batch of independent runs and tracks progress on
// disk, so an interrupted experiment resumes instead of starting over.
type ExperimentRequest struct {
	ExperimentID string
	Notes        string
	Config       experiment.Config
}

type ExperimentSummary struct {
	ExperimentID string
	Runs         int
	Resumed      bool
	SuccessRate  float64
	Summary      experiment.Summary
}

type BisectRequest struct {
	Config experiment.Config
}

type BisectSummary struct {
	Population int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensureLab(ctx)
	return err
}

func (c *Client) Reset(ctx context.Context) error {
	lab, err := c.ensureLab(ctx)
	if err != nil {
		return err
	}
	return lab.Reset(ctx)
}

// Problems lists the registered benchmark names.
func (c *Client) Problems() []string {
	return problem.Names()
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Problem == "" {
		req.Problem = "one_max"
	}
	if req.Dimensions <= 0 {
		req.Dimensions = 30
	}
	if req.Population <= 0 {
		req.Population = 50
	}
	if req.Generations < 0 {
		return RunSummary{}, errors.New("generations must be >= 0")
	}
	if req.Workers <= 0 {
		req.Workers = 1
	}

	lab, err := c.ensureLab(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	target, err := problem.New(req.Problem, problem.Params{
		Dimensions:  req.Dimensions,
		K:           req.K,
		StepSize:    req.StepSize,
		ProblemSeed: req.ProblemSeed,
		InstanceDir: req.InstanceDir,
	}, 0)
	if err != nil {
		return RunSummary{}, err
	}
	if err := lab.RegisterProblem(target); err != nil {
		return RunSummary{}, err
	}

	goal := req.FitnessGoal
	if goal == 0 {
		if bounded, ok := target.(problem.Bounded); ok {
			goal = bounded.MaxFitness()
		}
	}

	now := time.Now().UTC()
	runID := uuid.NewString()

	result, err := lab.RunOptimization(ctx, platform.OptimizationConfig{
		RunID:             runID,
		ProblemName:       target.Name(),
		PopulationSize:    req.Population,
		GenomeLength:      req.Dimensions,
		Generations:       req.Generations,
		EvaluationsLimit:  req.EvaluationsLimit,
		FitnessGoal:       goal,
		Seed:              req.Seed,
		Workers:           req.Workers,
		Metric:            metricVariant(req.Metric),
		Traversal:         traversalOrder(req.Traversal),
		Acceptance:        acceptancePolicy(req.Acceptance),
		ForcedImprovement: req.ForcedImprovement,
		ExcludeSubject:    req.ExcludeSubject,
		Variant:           optimizeVariant(req.Variant),
		UniqueEvaluations: req.UniqueEvaluations,
		LocalSearch:       req.LocalSearch,
		RecordTrees:       req.RecordTrees,
	})
	if err != nil {
		return RunSummary{}, err
	}

	top, err := c.topSolutionsFromSnapshot(ctx, runID)
	if err != nil {
		return RunSummary{}, err
	}

	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:             runID,
			Problem:           target.Name(),
			Dimensions:        req.Dimensions,
			K:                 req.K,
			StepSize:          req.StepSize,
			ProblemSeed:       req.ProblemSeed,
			PopulationSize:    req.Population,
			Generations:       req.Generations,
			EvaluationsLimit:  req.EvaluationsLimit,
			FitnessGoal:       goal,
			Seed:              req.Seed,
			Workers:           req.Workers,
			Metric:            string(metricVariant(req.Metric)),
			Traversal:         string(traversalOrder(req.Traversal)),
			Acceptance:        string(acceptancePolicy(req.Acceptance)),
			ForcedImprovement: req.ForcedImprovement,
			Variant:           string(optimizeVariant(req.Variant)),
			UniqueEvaluations: req.UniqueEvaluations,
			LocalSearch:       req.LocalSearch,
		},
		BestByGeneration:      result.BestByGeneration,
		GenerationDiagnostics: result.Diagnostics,
		TreeHistory:           result.Trees,
		FinalBestFitness:      result.BestFitness,
		Evaluations:           result.Evaluations,
		GoalReached:           result.GoalReached,
		TopSolutions:          top,
	})
	if err != nil {
		return RunSummary{}, err
	}

	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:            runID,
		Problem:          target.Name(),
		Dimensions:       req.Dimensions,
		PopulationSize:   req.Population,
		Generations:      result.Generations,
		Seed:             req.Seed,
		Workers:          req.Workers,
		Variant:          string(optimizeVariant(req.Variant)),
		FinalBestFitness: result.BestFitness,
		Evaluations:      result.Evaluations,
		GoalReached:      result.GoalReached,
		CreatedAtUTC:     now.Format(time.RFC3339Nano),
	}); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:            runID,
		ArtifactsDir:     filepath.Clean(runDir),
		BestByGeneration: append([]float64(nil), result.BestByGeneration...),
		FinalBestFitness: result.BestFitness,
		Evaluations:      result.Evaluations,
		GoalReached:      result.GoalReached,
		Converged:        result.Converged,
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:            e.RunID,
			CreatedAtUTC:     e.CreatedAtUTC,
			Problem:          e.Problem,
			Dimensions:       e.Dimensions,
			Population:       e.PopulationSize,
			Generations:      e.Generations,
			Seed:             e.Seed,
			Variant:          e.Variant,
			FinalBestFitness: e.FinalBestFitness,
			Evaluations:      e.Evaluations,
			GoalReached:      e.GoalReached,
		})
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) FitnessHistory(ctx context.Context, req FitnessHistoryRequest) ([]float64, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, req.Limit)
	if err != nil {
		return nil, err
	}
	if _, err := c.ensureLab(ctx); err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]float64(nil), history...), nil
}

func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) ([]model.GenerationDiagnostics, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, req.Limit)
	if err != nil {
		return nil, err
	}
	if _, err := c.ensureLab(ctx); err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	out := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(out, diagnostics)
	return out, nil
}

func (c *Client) Trees(ctx context.Context, req TreesRequest) ([]model.TreeGeneration, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, req.Limit)
	if err != nil {
		return nil, err
	}
	if _, err := c.ensureLab(ctx); err != nil {
		return nil, err
	}
	trees, ok, err := c.store.GetTreeHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("tree history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(trees) > req.Limit {
		trees = trees[:req.Limit]
	}
	out := make([]model.TreeGeneration, len(trees))
	copy(out, trees)
	return out, nil
}

func (c *Client) TopSolutions(_ context.Context, req TopSolutionsRequest) ([]stats.TopSolution, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, req.Limit)
	if err != nil {
		return nil, err
	}
	top, ok, err := stats.ReadTopSolutions(c.artifactsDir, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("top solutions not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(top) > req.Limit {
		top = top[:req.Limit]
	}
	return top, nil
}

func (c *Client) ProblemSummary(ctx context.Context, name string) (ProblemSummaryItem, error) {
	if name == "" {
		return ProblemSummaryItem{}, errors.New("problem name is required")
	}
	if _, err := c.ensureLab(ctx); err != nil {
		return ProblemSummaryItem{}, err
	}
	summary, ok, err := c.store.GetProblemSummary(ctx, name)
	if err != nil {
		return ProblemSummaryItem{}, err
	}
	if !ok {
		return ProblemSummaryItem{}, fmt.Errorf("problem summary not found: %s", name)
	}
	return ProblemSummaryItem{
		Name:        summary.Name,
		Description: summary.Description,
		BestFitness: summary.BestFitness,
	}, nil
}

// Experiment runs a batch of runs, checkpointing after every run. If a
// progress file for the experiment id already exists, the completed runs are
// kept and the batch resumes from the recorded run index.
func (c *Client) Experiment(ctx context.Context, req ExperimentRequest) (ExperimentSummary, error) {
	if req.ExperimentID == "" {
		req.ExperimentID = uuid.NewString()
	}
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return ExperimentSummary{}, err
	}
	if _, err := c.ensureLab(ctx); err != nil {
		return ExperimentSummary{}, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	progress, resuming, err := stats.ReadExperimentArtifacts(c.artifactsDir, req.ExperimentID)
	if err != nil {
		return ExperimentSummary{}, err
	}
	if resuming && progress.ProgressFlag == "completed" {
		return ExperimentSummary{}, fmt.Errorf("experiment already completed: %s", req.ExperimentID)
	}
	if !resuming {
		progress = stats.ExperimentArtifacts{
			ID:           req.ExperimentID,
			Problem:      cfg.Problem,
			Notes:        req.Notes,
			TotalRuns:    cfg.Runs,
			StartedAtUTC: now,
		}
	} else {
		progress.Interruptions = append(progress.Interruptions, now)
	}
	progress.ProgressFlag = "in_progress"

	reports := make([]experiment.RunReport, 0, cfg.Runs)
	for runNumber := 0; runNumber < progress.RunIndex; runNumber++ {
		// Rebuild already-completed reports from the checkpoint.
		reports = append(reports, experiment.RunReport{
			RunNumber:   runNumber,
			Success:     runNumber < len(progress.Evaluations) && progress.Evaluations[runNumber] >= 0,
			Evaluations: checkpointEvaluations(progress, runNumber),
			BestFitness: checkpointFitness(progress, runNumber),
		})
	}

	for runNumber := progress.RunIndex; runNumber < cfg.Runs; runNumber++ {
		if err := ctx.Err(); err != nil {
			return ExperimentSummary{}, err
		}
		report, err := experiment.OneRun(ctx, cfg, runNumber)
		if err != nil {
			return ExperimentSummary{}, err
		}
		reports = append(reports, report)

		progress.RunIndex = runNumber + 1
		evaluations := float64(report.Evaluations)
		if !report.Success {
			evaluations = -evaluations
		}
		progress.Evaluations = append(progress.Evaluations, evaluations)
		progress.BestFitnesses = append(progress.BestFitnesses, report.BestFitness)
		if err := stats.WriteExperimentArtifacts(c.artifactsDir, progress); err != nil {
			return ExperimentSummary{}, err
		}
	}

	summary := experiment.Combine(reports)
	progress.ProgressFlag = "completed"
	progress.CompletedAtUTC = time.Now().UTC().Format(time.RFC3339Nano)
	progress.SuccessRate = summary.SuccessRate
	progress.EvaluationsAvg = summary.EvaluationsAvg
	progress.EvaluationsStd = summary.EvaluationsStd
	progress.EvaluationsMed = summary.EvaluationsMed
	progress.BestFitnessAvg = summary.BestFitnessAvg
	progress.BestFitnessStd = summary.BestFitnessStd
	if err := stats.WriteExperimentArtifacts(c.artifactsDir, progress); err != nil {
		return ExperimentSummary{}, err
	}

	report := model.ExperimentReport{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:             req.ExperimentID,
		Problem:        cfg.Problem,
		Runs:           summary.Runs,
		SuccessRate:    summary.SuccessRate,
		EvaluationsAvg: summary.EvaluationsAvg,
		EvaluationsStd: summary.EvaluationsStd,
		BestFitnessAvg: summary.BestFitnessAvg,
		BestFitnessStd: summary.BestFitnessStd,
	}
	if err := c.store.SaveExperimentReport(ctx, report); err != nil {
		return ExperimentSummary{}, err
	}

	return ExperimentSummary{
		ExperimentID: req.ExperimentID,
		Runs:         summary.Runs,
		Resumed:      resuming,
		SuccessRate:  summary.SuccessRate,
		Summary:      summary,
	}, nil
}

func (c *Client) Experiments(_ context.Context) ([]stats.ExperimentArtifacts, error) {
	return stats.ListExperimentArtifacts(c.artifactsDir)
}

// Bisect searches for the smallest population size that solves the
// configured problem reliably.
func (c *Client) Bisect(ctx context.Context, req BisectRequest) (BisectSummary, error) {
	population, err := experiment.Bisection(ctx, req.Config)
	if err != nil {
		return BisectSummary{}, err
	}
	return BisectSummary{Population: population}, nil
}

func (c *Client) resolveRunID(runID string, latest bool, limit int) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if limit < 0 {
		return "", errors.New("limit must be >= 0")
	}
	if latest {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return "", errors.New("no runs available")
		}
		return entries[0].RunID, nil
	}
	if runID == "" {
		return "", errors.New("run id or latest is required")
	}
	return runID, nil
}

const topSolutionCount = 5

// topSolutionsFromSnapshot ranks the distinct genotypes of the run's final
// population and keeps the best few.
func (c *Client) topSolutionsFromSnapshot(ctx context.Context, runID string) ([]stats.TopSolution, error) {
	snapshot, ok, err := c.store.GetPopulationSnapshot(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []stats.TopSolution{}, nil
	}

	ranked := append([]model.GenotypeRecord(nil), snapshot.Genotypes...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness > ranked[j].Fitness
	})

	seen := make(map[string]struct{}, len(ranked))
	top := make([]stats.TopSolution, 0, topSolutionCount)
	for _, record := range ranked {
		key := fmt.Sprint(record.Genes)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		top = append(top, stats.TopSolution{
			Rank:    len(top) + 1,
			Fitness: record.Fitness,
			Genes:   append([]int(nil), record.Genes...),
		})
		if len(top) == topSolutionCount {
			break
		}
	}
	return top, nil
}

func checkpointEvaluations(progress stats.ExperimentArtifacts, runNumber int) int {
	if runNumber >= len(progress.Evaluations) {
		return 0
	}
	v := progress.Evaluations[runNumber]
	if v < 0 {
		v = -v
	}
	return int(v)
}

func checkpointFitness(progress stats.ExperimentArtifacts, runNumber int) float64 {
	if runNumber >= len(progress.BestFitnesses) {
		return 0
	}
	return progress.BestFitnesses[runNumber]
}

// The name helpers fill in defaults; invalid names are rejected by the
// optimizer's own validation.

func metricVariant(name string) linkage.MetricVariant {
	if name == "" {
		return linkage.MetricCluster
	}
	return linkage.MetricVariant(name)
}

func traversalOrder(name string) linkage.TraversalOrder {
	if name == "" {
		return linkage.OrderSmallestFirst
	}
	return linkage.TraversalOrder(name)
}

func acceptancePolicy(name string) mixing.AcceptancePolicy {
	if name == "" {
		return mixing.AcceptImprovement
	}
	return mixing.AcceptancePolicy(name)
}

func optimizeVariant(name string) optimize.Variant {
	if name == "" {
		return optimize.VariantSequential
	}
	return optimize.Variant(name)
}

func (c *Client) ensureLab(ctx context.Context) (*platform.Lab, error) {
	if c.lab != nil {
		return c.lab, nil
	}
	lab := platform.NewLab(platform.Config{Store: c.store})
	if err := lab.Init(ctx); err != nil {
		return nil, err
	}
	c.lab = lab
	return c.lab, nil
}
