package platform

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSupervisorRequiresNameAndRunner(t *testing.T) {
	s := NewSupervisor(SupervisorPolicy{})
	if err := s.Start("", func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("expected missing name error")
	}
	if err := s.Start("task", nil); err == nil {
		t.Fatal("expected missing runner error")
	}
}

func TestSupervisorRejectsDuplicateStart(t *testing.T) {
	s := NewSupervisor(SupervisorPolicy{})
	defer s.StopAll()

	block := make(chan struct{})
	run := func(ctx context.Context) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}
	if err := s.Start("task", run); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := s.Start("task", run); err == nil {
		t.Fatal("expected duplicate start error")
	}
	close(block)
}

func TestSupervisorTemporaryDoesNotRestart(t *testing.T) {
	s := NewSupervisor(SupervisorPolicy{})

	var runs atomic.Int32
	err := s.StartSpec(SupervisorChildSpec{
		Name:    "once",
		Restart: SupervisorRestartTemporary,
	}, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("boom")
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(s.Tasks()) == 0 })
	if got := runs.Load(); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
	children := s.Children()
	if len(children) != 1 || children[0].LastError == "" {
		t.Fatalf("expected failed child status, got %+v", children)
	}
}

func TestSupervisorTransientRestartsUntilSuccess(t *testing.T) {
	s := NewSupervisor(SupervisorPolicy{InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})

	var restarts atomic.Int32
	s.hooks.OnTaskRestart = func(name string, err error, count int) {
		restarts.Add(1)
	}

	var attempts atomic.Int32
	err := s.StartSpec(SupervisorChildSpec{
		Name:    "flaky",
		Restart: SupervisorRestartTransient,
	}, func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient failure")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(s.Tasks()) == 0 })
	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if got := restarts.Load(); got != 2 {
		t.Fatalf("expected 2 restarts, got %d", got)
	}
}

func TestSupervisorMaxRestartsMarksPermanentFailure(t *testing.T) {
	s := NewSupervisor(SupervisorPolicy{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		MaxRestarts:    2,
	})

	err := s.StartSpec(SupervisorChildSpec{
		Name:    "doomed",
		Restart: SupervisorRestartPermanent,
	}, func(ctx context.Context) error {
		return errors.New("always fails")
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		children := s.Children()
		return len(children) == 1 && children[0].PermanentFailed
	})
	children := s.Children()
	if children[0].RestartCount != 2 {
		t.Fatalf("expected restart count 2, got %d", children[0].RestartCount)
	}
}

func TestSupervisorStopCancelsTask(t *testing.T) {
	s := NewSupervisor(SupervisorPolicy{})

	started := make(chan struct{})
	err := s.Start("long", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-started

	s.Stop("long")
	if tasks := s.Tasks(); len(tasks) != 0 {
		t.Fatalf("expected no tasks after stop, got %v", tasks)
	}
}
