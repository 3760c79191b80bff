package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"ltga/internal/experiment"
	"ltga/internal/platform"
	"ltga/internal/storage"
	api "ltga/pkg/ltga"
)

const (
	artifactsDir = "artifacts"
	exportsDir   = "exports"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "problems":
		return runProblems(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "experiment":
		return runExperiment(ctx, args[1:])
	case "bisect":
		return runBisect(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "diagnostics":
		return runDiagnostics(ctx, args[1:])
	case "trees":
		return runTrees(ctx, args[1:])
	case "top":
		return runTop(ctx, args[1:])
	case "problem-summary":
		return runProblemSummary(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "ltga.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := storage.NewStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	lab := platform.NewLab(platform.Config{Store: store})
	if err := lab.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "ltga.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := storage.NewStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	lab := platform.NewLab(platform.Config{Store: store})
	if err := lab.Reset(ctx); err != nil {
		return err
	}

	fmt.Printf("reset store=%s\n", *storeKind)
	return nil
}

func runProblems(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("problems", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := api.New(api.Options{ArtifactsDir: artifactsDir, ExportsDir: exportsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	for _, name := range client.Problems() {
		fmt.Println(name)
	}
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	problemName := fs.String("problem", "one_max", "benchmark problem name")
	dimensions := fs.Int("dimensions", 30, "genome length")
	k := fs.Int("k", 5, "trap size for trap problems, neighborhood size for nk")
	stepSize := fs.Int("step-size", 2, "step size for deceptive_step_trap")
	problemSeed := fs.Int64("problem-seed", 0, "instance seed offset for generated landscapes")
	instanceDir := fs.String("instance-dir", "", "directory holding generated nk instances")
	population := fs.Int("pop", 50, "population size")
	generations := fs.Int("gens", 0, "generation limit (0 disables)")
	evaluationsLimit := fs.Int("evaluations-limit", 100000, "evaluation budget (0 disables)")
	fitnessGoal := fs.Float64("fitness-goal", 0.0, "early-stop best fitness goal (0 uses the problem optimum)")
	seed := fs.Int64("seed", 1, "rng seed")
	workers := fs.Int("workers", 1, "generational mixing worker count")
	metric := fs.String("metric", "cluster", "linkage metric: cluster|pairwise")
	traversal := fs.String("traversal", "smallest_first", "mask traversal: smallest_first|least_linked_first")
	acceptance := fs.String("acceptance", "improvement", "mixing acceptance: improvement|equal_or_better")
	forcedImprovement := fs.Bool("forced-improvement", false, "donate from the elite when a subject's mixing pass accepts nothing")
	excludeSubject := fs.Bool("exclude-subject", false, "never pick the subject as its own donor")
	variant := fs.String("variant", "sequential", "mixing variant: sequential|generational")
	unique := fs.Bool("unique", false, "cache fitness per distinct genotype")
	localSearch := fs.Bool("local-search", false, "hill climb the initial population")
	recordTrees := fs.Bool("record-trees", false, "persist the per-generation linkage trees")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "ltga.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := api.New(api.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, api.RunRequest{
		Problem:           *problemName,
		Dimensions:        *dimensions,
		K:                 *k,
		StepSize:          *stepSize,
		ProblemSeed:       *problemSeed,
		InstanceDir:       *instanceDir,
		Population:        *population,
		Generations:       *generations,
		EvaluationsLimit:  *evaluationsLimit,
		FitnessGoal:       *fitnessGoal,
		Seed:              *seed,
		Workers:           *workers,
		Metric:            *metric,
		Traversal:         *traversal,
		Acceptance:        *acceptance,
		ForcedImprovement: *forcedImprovement,
		ExcludeSubject:    *excludeSubject,
		Variant:           *variant,
		UniqueEvaluations: *unique,
		LocalSearch:       *localSearch,
		RecordTrees:       *recordTrees,
	})
	if err != nil {
		return err
	}

	fmt.Printf("run completed run_id=%s problem=%s pop=%d seed=%d\n", summary.RunID, *problemName, *population, *seed)
	for i, best := range summary.BestByGeneration {
		fmt.Printf("generation=%d best_fitness=%.6f\n", i+1, best)
	}
	fmt.Printf("final_best_fitness=%.6f evaluations=%d goal_reached=%t converged=%t\n",
		summary.FinalBestFitness, summary.Evaluations, summary.GoalReached, summary.Converged)
	fmt.Printf("artifacts_dir=%s\n", filepath.Clean(summary.ArtifactsDir))
	return nil
}

func runExperiment(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("experiment", flag.ContinueOnError)
	experimentID := fs.String("id", "", "experiment id (new uuid when empty, existing id resumes)")
	notes := fs.String("notes", "", "free-form notes stored with the experiment")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "ltga.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("experiment requires at least one YAML config file")
	}

	cfg, err := experiment.LoadConfig(fs.Args()...)
	if err != nil {
		return err
	}

	client, err := api.New(api.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Experiment(ctx, api.ExperimentRequest{
		ExperimentID: *experimentID,
		Notes:        *notes,
		Config:       cfg,
	})
	if err != nil {
		return err
	}

	fmt.Printf("experiment completed id=%s problem=%s runs=%d resumed=%t\n",
		summary.ExperimentID, cfg.Problem, summary.Runs, summary.Resumed)
	fmt.Printf("success_rate=%.4f evaluations_avg=%.2f evaluations_std=%.2f evaluations_med=%.2f\n",
		summary.Summary.SuccessRate, summary.Summary.EvaluationsAvg, summary.Summary.EvaluationsStd, summary.Summary.EvaluationsMed)
	fmt.Printf("best_fitness_avg=%.6f best_fitness_std=%.6f\n",
		summary.Summary.BestFitnessAvg, summary.Summary.BestFitnessStd)
	return nil
}

func runBisect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bisect", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("bisect requires at least one YAML config file")
	}

	cfg, err := experiment.LoadConfig(fs.Args()...)
	if err != nil {
		return err
	}

	client, err := api.New(api.Options{ArtifactsDir: artifactsDir, ExportsDir: exportsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Bisect(ctx, api.BisectRequest{Config: cfg})
	if err != nil {
		return err
	}

	fmt.Printf("bisection completed problem=%s population=%d\n", cfg.Problem, summary.Population)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := api.New(api.Options{ArtifactsDir: artifactsDir, ExportsDir: exportsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, api.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if *jsonOut {
		type runsItem struct {
			RunID            string  `json:"run_id"`
			CreatedAtUTC     string  `json:"created_at_utc"`
			Problem          string  `json:"problem"`
			Dimensions       int     `json:"dimensions"`
			PopulationSize   int     `json:"population_size"`
			Generations      int     `json:"generations"`
			Seed             int64   `json:"seed"`
			Variant          string  `json:"variant"`
			FinalBestFitness float64 `json:"final_best_fitness"`
			Evaluations      int     `json:"evaluations"`
			GoalReached      bool    `json:"goal_reached"`
		}
		out := make([]runsItem, 0, len(items))
		for _, item := range items {
			out = append(out, runsItem{
				RunID:            item.RunID,
				CreatedAtUTC:     item.CreatedAtUTC,
				Problem:          item.Problem,
				Dimensions:       item.Dimensions,
				PopulationSize:   item.Population,
				Generations:      item.Generations,
				Seed:             item.Seed,
				Variant:          item.Variant,
				FinalBestFitness: item.FinalBestFitness,
				Evaluations:      item.Evaluations,
				GoalReached:      item.GoalReached,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for _, item := range items {
		fmt.Printf("run_id=%s created_at=%s problem=%s dims=%d pop=%d gens=%d seed=%d variant=%s final_best_fitness=%.6f evaluations=%d goal_reached=%t\n",
			item.RunID,
			item.CreatedAtUTC,
			item.Problem,
			item.Dimensions,
			item.Population,
			item.Generations,
			item.Seed,
			item.Variant,
			item.FinalBestFitness,
			item.Evaluations,
			item.GoalReached,
		)
	}
	return nil
}

func runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show fitness history for the most recent run")
	limit := fs.Int("limit", 50, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "ltga.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := api.New(api.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.FitnessHistory(ctx, api.FitnessHistoryRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("no fitness history")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}

	for i, best := range history {
		fmt.Printf("generation=%d best_fitness=%.6f\n", i+1, best)
	}
	return nil
}

func runDiagnostics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show diagnostics for the most recent run")
	limit := fs.Int("limit", 50, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit diagnostics as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "ltga.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := api.New(api.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	diagnostics, err := client.Diagnostics(ctx, api.DiagnosticsRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if len(diagnostics) == 0 {
		fmt.Println("no diagnostics")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(diagnostics)
	}

	for _, d := range diagnostics {
		fmt.Printf("generation=%d best=%.6f mean=%.6f min=%.6f evaluations=%d accepted_mixes=%d forced_mixes=%d unique=%d\n",
			d.Generation,
			d.BestFitness,
			d.MeanFitness,
			d.MinFitness,
			d.Evaluations,
			d.AcceptedMixes,
			d.ForcedMixes,
			d.UniqueGenotypes,
		)
	}
	return nil
}

func runTrees(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("trees", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show linkage trees for the most recent run")
	limit := fs.Int("limit", 5, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit tree history as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "ltga.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := api.New(api.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	trees, err := client.Trees(ctx, api.TreesRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if len(trees) == 0 {
		fmt.Println("no tree history")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(trees)
	}

	for _, generation := range trees {
		fmt.Printf("generation=%d merges=%d\n", generation.Generation, len(generation.Merges))
		for _, merge := range generation.Merges {
			fmt.Printf("  left=%v right=%v distance=%.6f\n", merge.Left, merge.Right, merge.Distance)
		}
	}
	return nil
}

func runTop(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("top", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show top solutions for the most recent run")
	limit := fs.Int("limit", 5, "max solutions to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit top solutions as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := api.New(api.Options{ArtifactsDir: artifactsDir, ExportsDir: exportsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	top, err := client.TopSolutions(ctx, api.TopSolutionsRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if len(top) == 0 {
		fmt.Println("no top solutions")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(top)
	}

	for _, solution := range top {
		fmt.Printf("rank=%d fitness=%.6f genes=%s\n", solution.Rank, solution.Fitness, formatGenes(solution.Genes))
	}
	return nil
}

func runProblemSummary(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("problem-summary", flag.ContinueOnError)
	name := fs.String("problem", "", "problem name")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "ltga.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("problem-summary requires --problem")
	}

	client, err := api.New(api.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.ProblemSummary(ctx, *name)
	if err != nil {
		return err
	}
	fmt.Printf("problem=%s best_fitness=%.6f description=%q\n", summary.Name, summary.BestFitness, summary.Description)
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := api.New(api.Options{ArtifactsDir: artifactsDir, ExportsDir: exportsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Export(ctx, api.ExportRequest{
		RunID:  *runID,
		Latest: *latest,
		OutDir: *outDir,
	})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s dir=%s\n", summary.RunID, summary.Directory)
	return nil
}

func formatGenes(genes []int) string {
	buf := make([]byte, 0, len(genes))
	for _, v := range genes {
		if v >= 0 && v <= 9 {
			buf = append(buf, byte('0'+v))
			continue
		}
		return fmt.Sprint(genes)
	}
	return string(buf)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: ltgactl <init|reset|problems|run|experiment|bisect|runs|fitness|diagnostics|trees|top|problem-summary|export> [flags]", msg)
}
