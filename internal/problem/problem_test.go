package problem

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestOneMaxScoresFractionOfOnes(t *testing.T) {
	f, err := NewOneMax(4)
	if err != nil {
		t.Fatalf("new one_max: %v", err)
	}

	cases := []struct {
		genes []uint8
		want  float64
	}{
		{[]uint8{0, 0, 0, 0}, 0},
		{[]uint8{1, 0, 1, 0}, 0.5},
		{[]uint8{1, 1, 1, 1}, 1},
	}
	for _, tc := range cases {
		got, err := f.Evaluate(tc.genes)
		if err != nil {
			t.Fatalf("evaluate %v: %v", tc.genes, err)
		}
		if got != tc.want {
			t.Fatalf("one_max%v = %f, want %f", tc.genes, got, tc.want)
		}
	}

	if _, err := f.Evaluate([]uint8{1, 1}); err == nil {
		t.Fatal("expected genome length error")
	}
	solved, err := f.SubProblemsSolved([]uint8{1, 0, 1, 0})
	if err != nil {
		t.Fatalf("subproblems: %v", err)
	}
	if !reflect.DeepEqual(solved, []int{1, 0, 1, 0}) {
		t.Fatalf("unexpected subproblem vector: %v", solved)
	}
}

func TestDeceptiveTrapValues(t *testing.T) {
	f, err := NewDeceptiveTrap(10, 5)
	if err != nil {
		t.Fatalf("new deceptive_trap: %v", err)
	}

	cases := []struct {
		genes []uint8
		want  float64
	}{
		// All-zero traps score k-1 each, the deceptive local optimum.
		{[]uint8{0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, 0.8},
		{[]uint8{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, 1.0},
		// One solved trap, one trap with a single one.
		{[]uint8{1, 1, 1, 1, 1, 1, 0, 0, 0, 0}, 0.8},
		// Four ones in a trap is the worst trap value.
		{[]uint8{1, 1, 1, 1, 0, 0, 0, 0, 0, 0}, 0.4},
	}
	for _, tc := range cases {
		got, err := f.Evaluate(tc.genes)
		if err != nil {
			t.Fatalf("evaluate %v: %v", tc.genes, err)
		}
		if math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("deceptive_trap%v = %f, want %f", tc.genes, got, tc.want)
		}
	}

	solved, err := f.SubProblemsSolved([]uint8{1, 1, 1, 1, 1, 0, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("subproblems: %v", err)
	}
	if !reflect.DeepEqual(solved, []int{1, 0}) {
		t.Fatalf("unexpected subproblem vector: %v", solved)
	}
}

func TestDeceptiveTrapValidation(t *testing.T) {
	if _, err := NewDeceptiveTrap(10, 0); err == nil {
		t.Fatal("expected trap size error")
	}
	if _, err := NewDeceptiveTrap(11, 5); err == nil {
		t.Fatal("expected divisibility error")
	}
}

func TestDeceptiveStepTrapValues(t *testing.T) {
	f, err := NewDeceptiveStepTrap(5, 5, 2)
	if err != nil {
		t.Fatalf("new deceptive_step_trap: %v", err)
	}

	// k=5 with step 2 gives offset 1: raw trap scores 0..5 bucket into
	// 0, 1, 1, 2, 2, 3 and the per-trap maximum is 3.
	cases := []struct {
		genes []uint8
		want  float64
	}{
		{[]uint8{1, 1, 1, 1, 1}, 1.0},
		{[]uint8{0, 0, 0, 0, 0}, 2.0 / 3.0},
		{[]uint8{1, 0, 0, 0, 0}, 2.0 / 3.0},
		{[]uint8{1, 1, 0, 0, 0}, 1.0 / 3.0},
		{[]uint8{1, 1, 1, 0, 0}, 1.0 / 3.0},
		{[]uint8{1, 1, 1, 1, 0}, 0},
	}
	for _, tc := range cases {
		got, err := f.Evaluate(tc.genes)
		if err != nil {
			t.Fatalf("evaluate %v: %v", tc.genes, err)
		}
		if math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("deceptive_step_trap%v = %f, want %f", tc.genes, got, tc.want)
		}
	}

	if _, err := NewDeceptiveStepTrap(10, 5, 0); err == nil {
		t.Fatal("expected step size error")
	}
}

func TestHIFFValues(t *testing.T) {
	f, err := NewHIFF(8)
	if err != nil {
		t.Fatalf("new hiff: %v", err)
	}

	cases := []struct {
		genes []uint8
		want  float64
	}{
		// Both uniform strings are global optima.
		{[]uint8{1, 1, 1, 1, 1, 1, 1, 1}, 1.0},
		{[]uint8{0, 0, 0, 0, 0, 0, 0, 0}, 1.0},
		// Alternating genes only score the leaf level: 8 of 32.
		{[]uint8{0, 1, 0, 1, 0, 1, 0, 1}, 0.25},
		// Two uniform halves score everything but the root block.
		{[]uint8{1, 1, 1, 1, 0, 0, 0, 0}, 0.75},
	}
	for _, tc := range cases {
		got, err := f.Evaluate(tc.genes)
		if err != nil {
			t.Fatalf("evaluate %v: %v", tc.genes, err)
		}
		if math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("hiff%v = %f, want %f", tc.genes, got, tc.want)
		}
	}

	solved, err := f.SubProblemsSolved([]uint8{1, 1, 1, 1, 0, 1, 0, 0})
	if err != nil {
		t.Fatalf("subproblems: %v", err)
	}
	if !reflect.DeepEqual(solved, []int{1, 0}) {
		t.Fatalf("unexpected subproblem vector: %v", solved)
	}

	if _, err := NewHIFF(12); err == nil {
		t.Fatal("expected power-of-two error")
	}
	if _, err := f.Evaluate([]uint8{0, 1, 2, 0, 1, 0, 1, 0}); err == nil {
		t.Fatal("expected non-binary gene error")
	}
}

func TestNearestNeighborNKBruteForce(t *testing.T) {
	f, err := NewNearestNeighborNK(Params{Dimensions: 6, K: 2, ProblemSeed: 17}, 0)
	if err != nil {
		t.Fatalf("new nearest_neighbor_nk: %v", err)
	}

	best, worst := 0.0, 1.0
	var bestGenes []uint8
	for bits := 0; bits < 1<<6; bits++ {
		genes := make([]uint8, 6)
		for i := range genes {
			genes[i] = uint8(bits >> (5 - i) & 1)
		}
		fitness, err := f.Evaluate(genes)
		if err != nil {
			t.Fatalf("evaluate %v: %v", genes, err)
		}
		if fitness > best {
			best, bestGenes = fitness, genes
		}
		if fitness < worst {
			worst = fitness
		}
	}

	// Normalization pins the dynamic-programming extremes to the ends of
	// [0,1]; brute force must agree with the solver.
	if math.Abs(best-1) > 1e-6 {
		t.Fatalf("brute-force maximum = %f, want 1", best)
	}
	if math.Abs(worst) > 1e-6 {
		t.Fatalf("brute-force minimum = %f, want 0", worst)
	}

	solved, err := f.SubProblemsSolved(bestGenes)
	if err != nil {
		t.Fatalf("subproblems: %v", err)
	}
	for g, s := range solved {
		if s != 1 {
			t.Fatalf("subproblem %d unsolved on the optimum %v: %v", g, bestGenes, solved)
		}
	}
}

func TestNearestNeighborNKInstanceCache(t *testing.T) {
	dir := t.TempDir()
	params := Params{Dimensions: 6, K: 2, ProblemSeed: 3, InstanceDir: dir}

	first, err := NewNearestNeighborNK(params, 1)
	if err != nil {
		t.Fatalf("build instance: %v", err)
	}
	cached := filepath.Join(dir, "6_2_4.json")
	if _, err := os.Stat(cached); err != nil {
		t.Fatalf("missing cached instance: %v", err)
	}

	second, err := NewNearestNeighborNK(params, 1)
	if err != nil {
		t.Fatalf("reload instance: %v", err)
	}
	genes := []uint8{1, 0, 1, 1, 0, 0}
	a, err := first.Evaluate(genes)
	if err != nil {
		t.Fatalf("evaluate fresh: %v", err)
	}
	b, err := second.Evaluate(genes)
	if err != nil {
		t.Fatalf("evaluate cached: %v", err)
	}
	if a != b {
		t.Fatalf("cached instance disagrees: %f vs %f", a, b)
	}
}

func TestNearestNeighborNKValidation(t *testing.T) {
	if _, err := NewNearestNeighborNK(Params{Dimensions: 6, K: 0}, 0); err == nil {
		t.Fatal("expected k error")
	}
	if _, err := NewNearestNeighborNK(Params{Dimensions: 7, K: 2}, 0); err == nil {
		t.Fatal("expected divisibility error")
	}
	if _, err := NewNearestNeighborNK(Params{Dimensions: 2, K: 2}, 0); err == nil {
		t.Fatal("expected minimum chunk count error")
	}
}

func TestRegistry(t *testing.T) {
	if _, err := New("no_such_problem", Params{Dimensions: 4}, 0); err == nil {
		t.Fatal("expected unknown problem error")
	}

	f, err := New("one_max", Params{Dimensions: 4}, 0)
	if err != nil {
		t.Fatalf("build one_max: %v", err)
	}
	if f.Name() != "one_max" {
		t.Fatalf("unexpected name: %s", f.Name())
	}

	names := Names()
	want := []string{"deceptive_step_trap", "deceptive_trap", "hiff", "nearest_neighbor_nk", "one_max"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("unexpected registry listing: %v", names)
	}
}
