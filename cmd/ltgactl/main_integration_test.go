package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore wd: %v", err)
		}
	})
}

func TestRunCommandWritesArtifacts(t *testing.T) {
	chdir(t, t.TempDir())
	ctx := context.Background()

	err := run(ctx, []string{
		"run",
		"-problem", "one_max",
		"-dimensions", "10",
		"-pop", "16",
		"-gens", "20",
		"-seed", "3",
	})
	if err != nil {
		t.Fatalf("run command: %v", err)
	}

	if err := run(ctx, []string{"runs"}); err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if err := run(ctx, []string{"top", "-latest"}); err != nil {
		t.Fatalf("top command: %v", err)
	}
	if err := run(ctx, []string{"export", "-latest"}); err != nil {
		t.Fatalf("export command: %v", err)
	}

	entries, err := os.ReadDir(exportsDir)
	if err != nil {
		t.Fatalf("read exports dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one exported run, got %d", len(entries))
	}
	if _, err := os.Stat(filepath.Join(exportsDir, entries[0].Name(), "config.json")); err != nil {
		t.Fatalf("missing exported config: %v", err)
	}
}

func TestExperimentCommandUsesYAMLConfig(t *testing.T) {
	chdir(t, t.TempDir())
	ctx := context.Background()

	base := filepath.Join(".", "base.yaml")
	if err := os.WriteFile(base, []byte("problem: one_max\ndimensions: 8\npop_size: 12\nruns: 2\nseed: 5\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	override := filepath.Join(".", "override.yaml")
	if err := os.WriteFile(override, []byte("runs: 1\n"), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	if err := run(ctx, []string{"experiment", "-id", "exp-cli", base, override}); err != nil {
		t.Fatalf("experiment command: %v", err)
	}
	if _, err := os.Stat(filepath.Join(artifactsDir, "experiments", "exp-cli", "experiment.json")); err != nil {
		t.Fatalf("missing experiment artifacts: %v", err)
	}
}

func TestUnknownCommand(t *testing.T) {
	if err := run(context.Background(), []string{"bogus"}); err == nil {
		t.Fatal("expected unknown command error")
	}
	if err := run(context.Background(), nil); err == nil {
		t.Fatal("expected missing command error")
	}
}

func TestExperimentRequiresConfig(t *testing.T) {
	if err := run(context.Background(), []string{"experiment"}); err == nil {
		t.Fatal("expected missing config error")
	}
	if err := run(context.Background(), []string{"bisect"}); err == nil {
		t.Fatal("expected missing config error")
	}
}
