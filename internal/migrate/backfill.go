// Package migrate backfills structured content for legacy plans.
//
// Plans created before structured storage carry only raw markdown. The read
// path derives a document on demand for those rows, but the derivation is
// repeated on every read and its ids are never stable. Backfill parses each
// legacy row once and persists the result through the same version-guarded
// write every other mutation uses, so a concurrently edited row is skipped
// rather than clobbered.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/pathwise/pathwise/internal/document"
	"github.com/pathwise/pathwise/internal/markdown"
	"github.com/pathwise/pathwise/internal/store"
)

// Options configures a backfill run.
type Options struct {
	// DryRun reports what would be migrated without writing.
	DryRun bool

	// Logger receives per-plan progress. If nil, a default logger writing
	// to stderr is used.
	Logger *log.Logger
}

// Result contains statistics about a backfill run.
type Result struct {
	PlansScanned  int
	PlansMigrated int
	Degraded      int
	Skipped       int
	Errors        []string
}

// Backfill structures every legacy plan in the store.
//
// Rows whose markdown parses degraded (no recoverable structure) are still
// migrated with whatever was recovered, mirroring what plan creation does,
// and counted in Result.Degraded. A row modified concurrently during the
// run loses the version guard and is counted in Result.Skipped; rerunning
// the backfill picks it up if it is still legacy.
func Backfill(ctx context.Context, db *store.DB, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[migrate] ", log.LstdFlags)
	}

	plans, err := db.ListLegacyPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list legacy plans: %w", err)
	}

	result := &Result{PlansScanned: len(plans)}

	for _, plan := range plans {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		res, err := markdown.Parse(plan.RawContent)
		if err != nil && !errors.Is(err, markdown.ErrDegraded) {
			result.Errors = append(result.Errors,
				fmt.Sprintf("plan %s: parse failed: %v", plan.ID, err))
			continue
		}
		if err != nil {
			result.Degraded++
			logger.Printf("Warning: degraded parse for plan %s", plan.ID)
		}

		if opts.DryRun {
			result.PlansMigrated++
			continue
		}

		doc := res.Doc
		doc.Version = plan.Version + 1
		progress := document.CalculateProgress(doc.Sections)

		err = db.UpdateStructuredContext(ctx, plan.ID, plan.Version, doc, progress)
		switch {
		case errors.Is(err, store.ErrConflict):
			result.Skipped++
			logger.Printf("Skipping plan %s: modified concurrently", plan.ID)
		case errors.Is(err, store.ErrNotFound):
			result.Skipped++
			logger.Printf("Skipping plan %s: deleted concurrently", plan.ID)
		case err != nil:
			result.Errors = append(result.Errors,
				fmt.Sprintf("plan %s: write failed: %v", plan.ID, err))
		default:
			result.PlansMigrated++
			logger.Printf("Migrated plan %s (%d sections, %d%%)", plan.ID, len(doc.Sections), progress)
		}
	}

	return result, nil
}
