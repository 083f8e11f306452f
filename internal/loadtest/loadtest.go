// Package loadtest provides load testing utilities for the plan sync layer.
//
// This package simulates many concurrent sessions toggling tasks on a shared
// set of plans to validate that the version-guarded write path stays
// consistent under contention: no toggle is lost, every accepted write bumps
// the version by exactly one, and stored progress always matches the stored
// document.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	gosync "sync"
	"time"

	"github.com/pathwise/pathwise/internal/document"
	"github.com/pathwise/pathwise/internal/store"
	"github.com/pathwise/pathwise/internal/sync"
)

// Owner is the user id all load test plans belong to.
const Owner = "loadtest-user"

// TestEnvironment represents a populated database and service for load testing.
type TestEnvironment struct {
	DB      *store.DB
	Service sync.Service

	// PlanIDs are the plans available to toggle against.
	PlanIDs []string

	// taskRefs maps plan id to its toggleable (sectionID, itemID) pairs.
	taskRefs map[string][][2]string

	// accepted counts accepted toggle writes per plan.
	accepted   map[string]int
	acceptedMu gosync.Mutex
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration // Median
	P95          time.Duration
	P99          time.Duration
	TotalToggles int
	Conflicts    int
	Errors       int
	Durations    []time.Duration
}

// CreateTestEnvironment creates a database populated with generated plans.
//
// Each plan gets one phase section with tasksPerPlan open tasks. The
// connection pool is widened to support the concurrency the storm applies.
func CreateTestEnvironment(dbPath string, numPlans, tasksPerPlan int) (*TestEnvironment, error) {
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.RawDB().SetMaxOpenConns(150)
	db.RawDB().SetMaxIdleConns(50)
	db.RawDB().SetConnMaxLifetime(10 * time.Minute)

	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	svc := sync.New(db, nil, nil)

	env := &TestEnvironment{
		DB:       db,
		Service:  svc,
		PlanIDs:  make([]string, 0, numPlans),
		taskRefs: make(map[string][][2]string),
		accepted: make(map[string]int),
	}

	ctx := context.Background()
	for i := 0; i < numPlans; i++ {
		plan, err := svc.CreatePlan(ctx, Owner,
			fmt.Sprintf("Load test plan %d", i), generatePlanMarkdown(i, tasksPerPlan))
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create plan %d: %w", i, err)
		}

		env.PlanIDs = append(env.PlanIDs, plan.ID)
		for _, sec := range plan.StructuredContent.Sections {
			for _, item := range sec.Items {
				if item.Type == document.ItemTask {
					env.taskRefs[plan.ID] = append(env.taskRefs[plan.ID], [2]string{sec.ID, item.ID})
				}
			}
		}
	}

	return env, nil
}

// Close closes the underlying database connection.
func (env *TestEnvironment) Close() error {
	if env.DB != nil {
		return env.DB.Close()
	}
	return nil
}

// RunToggleStorm simulates numUsers concurrent sessions toggling random tasks.
//
// Each session performs togglesPerUser toggles against randomly chosen plans,
// recording latency for each. Conflicts surfaced as
// sync.ErrConcurrentModification are counted separately from hard errors.
func (env *TestEnvironment) RunToggleStorm(numUsers, togglesPerUser int) (*LatencyStats, error) {
	var wg gosync.WaitGroup

	resultsChan := make(chan []time.Duration, numUsers)
	conflictsChan := make(chan int, numUsers)
	errorsChan := make(chan error, numUsers*togglesPerUser)

	for i := 0; i < numUsers; i++ {
		wg.Add(1)
		go func(userSeed int) {
			defer wg.Done()

			rng := rand.New(rand.NewSource(int64(userSeed)))
			durations := make([]time.Duration, 0, togglesPerUser)
			conflicts := 0
			ctx := context.Background()

			for j := 0; j < togglesPerUser; j++ {
				planID := env.PlanIDs[rng.Intn(len(env.PlanIDs))]
				refs := env.taskRefs[planID]
				ref := refs[rng.Intn(len(refs))]

				start := time.Now()
				_, err := env.Service.ToggleTask(ctx, Owner, planID, ref[0], ref[1])
				durations = append(durations, time.Since(start))

				switch {
				case err == nil:
					env.recordAccepted(planID)
				case isConflict(err):
					conflicts++
				default:
					errorsChan <- fmt.Errorf("session %d toggle %d failed: %w", userSeed, j, err)
				}
			}

			resultsChan <- durations
			conflictsChan <- conflicts
		}(i)
	}

	wg.Wait()
	close(resultsChan)
	close(conflictsChan)
	close(errorsChan)

	errorCount := 0
	for range errorsChan {
		errorCount++
	}

	var allDurations []time.Duration
	for durations := range resultsChan {
		allDurations = append(allDurations, durations...)
	}
	conflictCount := 0
	for c := range conflictsChan {
		conflictCount += c
	}

	if len(allDurations) == 0 {
		return nil, fmt.Errorf("no toggles completed")
	}

	stats := computeLatencyStats(allDurations)
	stats.Conflicts = conflictCount
	stats.Errors = errorCount

	return stats, nil
}

// VerifyConsistency checks every plan's stored state after a storm.
//
// For each plan the stored version must equal 1 (creation) plus the number of
// accepted toggle writes, and stored progress must match the progress
// recomputed from the stored document.
func (env *TestEnvironment) VerifyConsistency(ctx context.Context) error {
	env.acceptedMu.Lock()
	defer env.acceptedMu.Unlock()

	for _, planID := range env.PlanIDs {
		plan, err := env.DB.GetPlanContext(ctx, planID)
		if err != nil {
			return fmt.Errorf("failed to read plan %s: %w", planID, err)
		}
		if plan.StructuredContent == nil {
			return fmt.Errorf("plan %s lost its structured content", planID)
		}

		wantVersion := 1 + env.accepted[planID]
		if plan.Version != wantVersion {
			return fmt.Errorf("plan %s: version %d does not match %d accepted writes",
				planID, plan.Version, env.accepted[planID])
		}
		if plan.StructuredContent.Version != plan.Version {
			return fmt.Errorf("plan %s: document version %d diverged from row version %d",
				planID, plan.StructuredContent.Version, plan.Version)
		}

		wantProgress := document.CalculateProgress(plan.StructuredContent.Sections)
		if plan.Progress != wantProgress {
			return fmt.Errorf("plan %s: stored progress %d, recomputed %d",
				planID, plan.Progress, wantProgress)
		}
	}
	return nil
}

func (env *TestEnvironment) recordAccepted(planID string) {
	env.acceptedMu.Lock()
	env.accepted[planID]++
	env.acceptedMu.Unlock()
}

func isConflict(err error) bool {
	return errors.Is(err, sync.ErrConcurrentModification)
}

// generatePlanMarkdown builds the markdown for one generated plan.
func generatePlanMarkdown(planIdx, tasks int) string {
	md := fmt.Sprintf("# Load Test Plan %d\n## Phase 1\n", planIdx)
	for i := 0; i < tasks; i++ {
		md += fmt.Sprintf("[ ] Task %d\n", i)
	}
	return md
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	mean := sum / time.Duration(len(durations))

	p50 := sorted[len(sorted)*50/100]
	p95 := sorted[len(sorted)*95/100]
	p99 := sorted[len(sorted)*99/100]

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         mean,
		P50:          p50,
		P95:          p95,
		P99:          p99,
		TotalToggles: len(durations),
		Durations:    sorted,
	}
}

// PrintStats formats and prints latency statistics.
func (s *LatencyStats) PrintStats() {
	fmt.Printf("Toggle Latency Statistics:\n")
	fmt.Printf("  Total Toggles: %d\n", s.TotalToggles)
	fmt.Printf("  Conflicts:     %d\n", s.Conflicts)
	fmt.Printf("  Errors:        %d\n", s.Errors)
	fmt.Printf("  Min:           %v\n", s.Min)
	fmt.Printf("  P50 (Median):  %v\n", s.P50)
	fmt.Printf("  Mean:          %v\n", s.Mean)
	fmt.Printf("  P95:           %v\n", s.P95)
	fmt.Printf("  P99:           %v\n", s.P99)
	fmt.Printf("  Max:           %v\n", s.Max)
}
