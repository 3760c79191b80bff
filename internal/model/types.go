package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// GenotypeRecord is the persistence form of a single candidate solution.
type GenotypeRecord struct {
	Genes     []int   `json:"genes"`
	Fitness   float64 `json:"fitness"`
	Evaluated bool    `json:"evaluated"`
}

// PopulationSnapshot is the persistence form of a population at a given
// generation, identified by the run that produced it.
type PopulationSnapshot struct {
	VersionedRecord
	ID         string           `json:"id"`
	Generation int              `json:"generation"`
	Genotypes  []GenotypeRecord `json:"genotypes"`
}

type GenerationDiagnostics struct {
	Generation      int     `json:"generation"`
	BestFitness     float64 `json:"best_fitness"`
	MeanFitness     float64 `json:"mean_fitness"`
	MinFitness      float64 `json:"min_fitness"`
	Evaluations     int     `json:"evaluations"`
	AcceptedMixes   int     `json:"accepted_mixes"`
	ForcedMixes     int     `json:"forced_mixes"`
	UniqueGenotypes int     `json:"unique_genotypes"`
}

// TreeMerge records one agglomerative merge: the two clusters joined and the
// linkage distance at which they were joined.
type TreeMerge struct {
	Left     []int   `json:"left"`
	Right    []int   `json:"right"`
	Distance float64 `json:"distance"`
}

// TreeGeneration is the merge sequence of the linkage tree built for one
// generation, in creation order.
type TreeGeneration struct {
	Generation int         `json:"generation"`
	Merges     []TreeMerge `json:"merges"`
}

// ProblemSummary tracks the best observed fitness per registered problem.
type ProblemSummary struct {
	VersionedRecord
	Name        string  `json:"name"`
	Description string  `json:"description"`
	BestFitness float64 `json:"best_fitness"`
}

// ExperimentReport is the persistence form of a combined multi-run result.
type ExperimentReport struct {
	VersionedRecord
	ID             string  `json:"id"`
	Problem        string  `json:"problem"`
	Runs           int     `json:"runs"`
	SuccessRate    float64 `json:"success_rate"`
	EvaluationsAvg float64 `json:"evaluations_avg"`
	EvaluationsStd float64 `json:"evaluations_std"`
	BestFitnessAvg float64 `json:"best_fitness_avg"`
	BestFitnessStd float64 `json:"best_fitness_std"`
}
