// Package platform wires the optimizer, the problem registry, and the
// persistence layer into a single long-lived service. A Lab owns a Store,
// knows which problems are registered, and records every run it performs.
package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ltga/internal/experiment"
	"ltga/internal/genotype"
	"ltga/internal/linkage"
	"ltga/internal/mixing"
	"ltga/internal/model"
	"ltga/internal/optimize"
	"ltga/internal/problem"
	"ltga/internal/storage"
)

type Config struct {
	Store    storage.Store
	Problems []problem.Problem
}

type StopReason string

const (
	StopReasonNormal   StopReason = "normal"
	StopReasonShutdown StopReason = "shutdown"
)

// OptimizationConfig describes one persisted run.
type OptimizationConfig struct {
	RunID       string
	ProblemName string

	PopulationSize int
	GenomeLength   int

	Generations      int
	EvaluationsLimit int
	FitnessGoal      float64

	Seed    int64
	Workers int

	Metric            linkage.MetricVariant
	Traversal         linkage.TraversalOrder
	Acceptance        mixing.AcceptancePolicy
	ForcedImprovement bool
	ExcludeSubject    bool
	Variant           optimize.Variant

	UniqueEvaluations bool
	LocalSearch       bool
	RecordTrees       bool

	// InitialGeneration marks the run as a continuation: Initial carries the
	// restored population, and stored history for the run id is kept as the
	// prefix of the new history.
	InitialGeneration int
	Initial           *genotype.Population
}

type OptimizationResult struct {
	RunID              string
	BestGenes          []uint8
	BestFitness        float64
	Generations        int
	Evaluations        int
	InitialEvaluations int
	Converged          bool
	GoalReached        bool
	BestByGeneration   []float64
	Diagnostics        []model.GenerationDiagnostics
	Trees              []model.TreeGeneration
}

// Lab is the run coordinator. Construct with NewLab, initialize with Init.
type Lab struct {
	store storage.Store

	mu sync.RWMutex

	problems       map[string]problem.Problem
	started        bool
	lastStopReason StopReason
	interruptions  map[string]int

	tasks *Supervisor

	config Config
}

var (
	defaultLabMu sync.Mutex
	defaultLab   *Lab
)

func NewLab(cfg Config) *Lab {
	lab := &Lab{
		store:          cfg.Store,
		problems:       make(map[string]problem.Problem),
		interruptions:  make(map[string]int),
		config:         cfg,
		lastStopReason: StopReasonNormal,
	}
	lab.tasks = NewSupervisorWithHooks(defaultSupervisorPolicy(), SupervisorHooks{
		OnTaskRestart: lab.noteInterruption,
	})
	return lab
}

// StartDefault initializes the process-wide Lab instance, reusing a running
// one if present.
func StartDefault(ctx context.Context, cfg Config) (*Lab, error) {
	defaultLabMu.Lock()
	defer defaultLabMu.Unlock()

	if defaultLab != nil && defaultLab.Started() {
		return defaultLab, nil
	}

	lab := NewLab(cfg)
	if err := lab.Init(ctx); err != nil {
		return nil, err
	}
	defaultLab = lab
	return defaultLab, nil
}

func Default() (*Lab, bool) {
	defaultLabMu.Lock()
	lab := defaultLab
	defaultLabMu.Unlock()

	if lab == nil || !lab.Started() {
		return nil, false
	}
	return lab, true
}

func StopDefault(reason StopReason) error {
	defaultLabMu.Lock()
	lab := defaultLab
	defaultLabMu.Unlock()
	if lab == nil {
		return nil
	}
	if err := lab.StopWithReason(reason); err != nil {
		return err
	}
	defaultLabMu.Lock()
	if defaultLab == lab {
		defaultLab = nil
	}
	defaultLabMu.Unlock()
	return nil
}

func (l *Lab) Init(ctx context.Context) error {
	if l.store == nil {
		return fmt.Errorf("store is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}
	if err := l.store.Init(ctx); err != nil {
		return err
	}

	for i, p := range l.config.Problems {
		if p == nil {
			l.problems = make(map[string]problem.Problem)
			return fmt.Errorf("problem is nil at index %d", i)
		}
		name := p.Name()
		if name == "" {
			l.problems = make(map[string]problem.Problem)
			return fmt.Errorf("problem name is required at index %d", i)
		}
		if _, exists := l.problems[name]; exists {
			l.problems = make(map[string]problem.Problem)
			return fmt.Errorf("duplicate problem: %s", name)
		}
		l.problems[name] = p
	}

	l.started = true
	return nil
}

// Reset wipes persisted state and reinitializes. Stores that cannot reset
// keep their data.
func (l *Lab) Reset(ctx context.Context) error {
	_ = l.StopWithReason(StopReasonShutdown)
	if resetter, ok := l.store.(storage.Resetter); ok {
		if err := resetter.Reset(ctx); err != nil {
			return err
		}
	}
	return l.Init(ctx)
}

func (l *Lab) RegisterProblem(p problem.Problem) error {
	if p == nil {
		return fmt.Errorf("problem is nil")
	}
	name := p.Name()
	if name == "" {
		return fmt.Errorf("problem name is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return fmt.Errorf("lab is not initialized")
	}
	l.problems[name] = p
	return nil
}

func (l *Lab) GetProblem(name string) (problem.Problem, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.problems[name]
	return p, ok
}

func (l *Lab) RegisteredProblems() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.problems))
	for name := range l.problems {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Lab) Stop() {
	_ = l.StopWithReason(StopReasonNormal)
}

func (l *Lab) Shutdown() {
	_ = l.StopWithReason(StopReasonShutdown)
}

func (l *Lab) StopWithReason(reason StopReason) error {
	if reason == "" {
		reason = StopReasonNormal
	}
	switch reason {
	case StopReasonNormal, StopReasonShutdown:
	default:
		return fmt.Errorf("unsupported stop reason: %s", reason)
	}

	l.tasks.StopAll()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = false
	l.lastStopReason = reason
	l.problems = make(map[string]problem.Problem)
	return nil
}

// RunOptimization performs one run against a registered problem and persists
// the final population, the fitness history, the per-generation diagnostics,
// the linkage tree history when recorded, and the problem's best-fitness
// summary.
func (l *Lab) RunOptimization(ctx context.Context, cfg OptimizationConfig) (OptimizationResult, error) {
	if cfg.RunID == "" {
		return OptimizationResult{}, fmt.Errorf("run id is required")
	}
	if cfg.ProblemName == "" {
		return OptimizationResult{}, fmt.Errorf("problem name is required")
	}
	if cfg.InitialGeneration > 0 && cfg.Initial == nil {
		return OptimizationResult{}, fmt.Errorf("continuation requires an initial population")
	}

	l.mu.RLock()
	target, ok := l.problems[cfg.ProblemName]
	started := l.started
	l.mu.RUnlock()

	if !started {
		return OptimizationResult{}, fmt.Errorf("lab is not initialized")
	}
	if !ok {
		return OptimizationResult{}, fmt.Errorf("problem not registered: %s", cfg.ProblemName)
	}

	opt, err := optimize.New(optimize.Config{
		Problem:           target,
		PopulationSize:    cfg.PopulationSize,
		GenomeLength:      cfg.GenomeLength,
		Generations:       cfg.Generations,
		EvaluationsLimit:  cfg.EvaluationsLimit,
		FitnessGoal:       cfg.FitnessGoal,
		Seed:              cfg.Seed,
		Workers:           cfg.Workers,
		Metric:            cfg.Metric,
		Traversal:         cfg.Traversal,
		Acceptance:        cfg.Acceptance,
		ForcedImprovement: cfg.ForcedImprovement,
		ExcludeSubject:    cfg.ExcludeSubject,
		Variant:           cfg.Variant,
		UniqueEvaluations: cfg.UniqueEvaluations,
		LocalSearch:       cfg.LocalSearch,
		RecordTrees:       cfg.RecordTrees,
		Initial:           cfg.Initial,
	})
	if err != nil {
		return OptimizationResult{}, err
	}

	runResult, err := opt.Run(ctx)
	if err != nil {
		return OptimizationResult{}, err
	}

	diagnostics := append([]model.GenerationDiagnostics(nil), runResult.Diagnostics...)
	for i := range diagnostics {
		diagnostics[i].Generation += cfg.InitialGeneration
	}
	history := make([]float64, 0, len(diagnostics))
	for _, d := range diagnostics {
		history = append(history, d.BestFitness)
	}
	trees := append([]model.TreeGeneration(nil), runResult.Trees...)
	for i := range trees {
		trees[i].Generation += cfg.InitialGeneration
	}

	if cfg.InitialGeneration > 0 {
		history, diagnostics, trees, err = l.mergeRunHistory(ctx, cfg.RunID, history, diagnostics, trees)
		if err != nil {
			return OptimizationResult{}, err
		}
	}

	executedGenerations := runResult.Generations + cfg.InitialGeneration
	if err := l.store.SavePopulationSnapshot(ctx, snapshotRecord(cfg.RunID, executedGenerations, runResult.FinalPopulation)); err != nil {
		return OptimizationResult{}, err
	}
	if err := l.store.SaveFitnessHistory(ctx, cfg.RunID, history); err != nil {
		return OptimizationResult{}, err
	}
	if err := l.store.SaveGenerationDiagnostics(ctx, cfg.RunID, diagnostics); err != nil {
		return OptimizationResult{}, err
	}
	if cfg.RecordTrees {
		if err := l.store.SaveTreeHistory(ctx, cfg.RunID, trees); err != nil {
			return OptimizationResult{}, err
		}
	}
	if err := l.updateProblemSummary(ctx, cfg.ProblemName, runResult.BestFitness); err != nil {
		return OptimizationResult{}, err
	}

	return OptimizationResult{
		RunID:              cfg.RunID,
		BestGenes:          append([]uint8(nil), runResult.BestGenes...),
		BestFitness:        runResult.BestFitness,
		Generations:        executedGenerations,
		Evaluations:        runResult.Evaluations,
		InitialEvaluations: runResult.InitialEvaluations,
		Converged:          runResult.Converged,
		GoalReached:        runResult.GoalReached,
		BestByGeneration:   history,
		Diagnostics:        diagnostics,
		Trees:              trees,
	}, nil
}

// RunExperiment performs a full batch of runs and persists the combined
// report under the experiment id.
func (l *Lab) RunExperiment(ctx context.Context, id string, cfg experiment.Config) (experiment.Summary, error) {
	if id == "" {
		return experiment.Summary{}, fmt.Errorf("experiment id is required")
	}
	if !l.Started() {
		return experiment.Summary{}, fmt.Errorf("lab is not initialized")
	}

	reports, err := experiment.FullRun(ctx, cfg)
	if err != nil {
		return experiment.Summary{}, err
	}
	summary := experiment.Combine(reports)

	report := model.ExperimentReport{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:             id,
		Problem:        cfg.Problem,
		Runs:           summary.Runs,
		SuccessRate:    summary.SuccessRate,
		EvaluationsAvg: summary.EvaluationsAvg,
		EvaluationsStd: summary.EvaluationsStd,
		BestFitnessAvg: summary.BestFitnessAvg,
		BestFitnessStd: summary.BestFitnessStd,
	}
	if err := l.store.SaveExperimentReport(ctx, report); err != nil {
		return experiment.Summary{}, err
	}
	return summary, nil
}

// StartExperimentTask runs an experiment in the background under the task
// supervisor. A task interrupted by a transient failure is restarted and the
// interruption is counted against the experiment id.
func (l *Lab) StartExperimentTask(id string, cfg experiment.Config) error {
	if !l.Started() {
		return fmt.Errorf("lab is not initialized")
	}
	return l.tasks.StartSpec(SupervisorChildSpec{
		Name:    id,
		Restart: SupervisorRestartTransient,
	}, func(ctx context.Context) error {
		_, err := l.RunExperiment(ctx, id, cfg)
		return err
	})
}

func (l *Lab) StopExperimentTask(id string) {
	l.tasks.Stop(id)
}

func (l *Lab) ActiveTasks() []string {
	return l.tasks.Tasks()
}

func (l *Lab) TaskStatus() []SupervisorChildStatus {
	return l.tasks.Children()
}

// ExperimentInterruptions reports how many times the named background task
// has been restarted after a failure.
func (l *Lab) ExperimentInterruptions(id string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.interruptions[id]
}

func (l *Lab) Started() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.started
}

func (l *Lab) LastStopReason() StopReason {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastStopReason
}

func (l *Lab) noteInterruption(name string, _ error, _ int) {
	l.mu.Lock()
	l.interruptions[name]++
	l.mu.Unlock()
}

// mergeRunHistory prefixes the current run's records with whatever the store
// already holds for the run id.
func (l *Lab) mergeRunHistory(ctx context.Context, runID string, history []float64, diagnostics []model.GenerationDiagnostics, trees []model.TreeGeneration) ([]float64, []model.GenerationDiagnostics, []model.TreeGeneration, error) {
	if prior, ok, err := l.store.GetFitnessHistory(ctx, runID); err != nil {
		return nil, nil, nil, err
	} else if ok {
		history = append(append([]float64(nil), prior...), history...)
	}
	if prior, ok, err := l.store.GetGenerationDiagnostics(ctx, runID); err != nil {
		return nil, nil, nil, err
	} else if ok {
		diagnostics = append(append([]model.GenerationDiagnostics(nil), prior...), diagnostics...)
	}
	if prior, ok, err := l.store.GetTreeHistory(ctx, runID); err != nil {
		return nil, nil, nil, err
	} else if ok {
		trees = append(append([]model.TreeGeneration(nil), prior...), trees...)
	}
	return history, diagnostics, trees, nil
}

func (l *Lab) updateProblemSummary(ctx context.Context, name string, fitness float64) error {
	summary, ok, err := l.store.GetProblemSummary(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		summary = model.ProblemSummary{
			VersionedRecord: model.VersionedRecord{
				SchemaVersion: storage.CurrentSchemaVersion,
				CodecVersion:  storage.CurrentCodecVersion,
			},
			Name:        name,
			Description: fmt.Sprintf("best observed fitness for problem %s", name),
		}
	}
	if fitness > summary.BestFitness {
		summary.BestFitness = fitness
	}
	return l.store.SaveProblemSummary(ctx, summary)
}

// RestorePopulation rebuilds a population from a persisted snapshot, for
// continuing an interrupted run.
func RestorePopulation(snapshot model.PopulationSnapshot) (*genotype.Population, error) {
	if len(snapshot.Genotypes) == 0 {
		return nil, fmt.Errorf("snapshot %s has no genotypes", snapshot.ID)
	}
	members := make([]*genotype.Genotype, 0, len(snapshot.Genotypes))
	for _, record := range snapshot.Genotypes {
		genes := make([]uint8, len(record.Genes))
		for i, v := range record.Genes {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("snapshot %s holds gene value %d outside the byte range", snapshot.ID, v)
			}
			genes[i] = uint8(v)
		}
		member := genotype.New(genes)
		if record.Evaluated {
			member.SetFitness(record.Fitness)
		}
		members = append(members, member)
	}
	return genotype.NewPopulation(members)
}

func snapshotRecord(runID string, generation int, pop *genotype.Population) model.PopulationSnapshot {
	snapshot := model.PopulationSnapshot{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:         runID,
		Generation: generation,
	}
	if pop == nil {
		return snapshot
	}
	snapshot.Genotypes = make([]model.GenotypeRecord, 0, pop.Size())
	for i := 0; i < pop.Size(); i++ {
		member := pop.Member(i)
		genes := make([]int, member.Len())
		for j := range genes {
			genes[j] = int(member.Gene(j))
		}
		fitness, evaluated := member.Fitness()
		snapshot.Genotypes = append(snapshot.Genotypes, model.GenotypeRecord{
			Genes:     genes,
			Fitness:   fitness,
			Evaluated: evaluated,
		})
	}
	return snapshot
}
