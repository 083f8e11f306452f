package loadtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestCreateTestEnvironment(t *testing.T) {
	env, err := CreateTestEnvironment(filepath.Join(t.TempDir(), "load.db"), 3, 5)
	if err != nil {
		t.Fatalf("CreateTestEnvironment() error: %v", err)
	}
	defer env.Close()

	if len(env.PlanIDs) != 3 {
		t.Errorf("plans = %d, want 3", len(env.PlanIDs))
	}
	for _, planID := range env.PlanIDs {
		if len(env.taskRefs[planID]) != 5 {
			t.Errorf("plan %s has %d tasks, want 5", planID, len(env.taskRefs[planID]))
		}
	}
}

func TestToggleStormStaysConsistent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping load test in short mode")
	}

	env, err := CreateTestEnvironment(filepath.Join(t.TempDir(), "load.db"), 4, 8)
	if err != nil {
		t.Fatalf("CreateTestEnvironment() error: %v", err)
	}
	defer env.Close()

	stats, err := env.RunToggleStorm(8, 20)
	if err != nil {
		t.Fatalf("RunToggleStorm() error: %v", err)
	}

	if stats.Errors != 0 {
		t.Errorf("storm produced %d hard errors", stats.Errors)
	}
	if stats.TotalToggles != 8*20 {
		t.Errorf("toggles = %d, want %d", stats.TotalToggles, 8*20)
	}

	if err := env.VerifyConsistency(context.Background()); err != nil {
		t.Errorf("consistency check failed: %v", err)
	}
}

func TestComputeLatencyStats(t *testing.T) {
	durations := make([]time.Duration, 100)
	for i := range durations {
		durations[i] = time.Duration(i+1) * time.Millisecond
	}

	stats := computeLatencyStats(durations)

	if stats.Min != time.Millisecond {
		t.Errorf("min = %v, want 1ms", stats.Min)
	}
	if stats.Max != 100*time.Millisecond {
		t.Errorf("max = %v, want 100ms", stats.Max)
	}
	if stats.P50 != 51*time.Millisecond {
		t.Errorf("p50 = %v, want 51ms", stats.P50)
	}
	if stats.P95 != 96*time.Millisecond {
		t.Errorf("p95 = %v, want 96ms", stats.P95)
	}
	if stats.TotalToggles != 100 {
		t.Errorf("total = %d, want 100", stats.TotalToggles)
	}
}

func TestComputeLatencyStatsEmpty(t *testing.T) {
	stats := computeLatencyStats(nil)
	if stats.TotalToggles != 0 {
		t.Errorf("total = %d, want 0", stats.TotalToggles)
	}
}
