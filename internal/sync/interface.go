package sync

import (
	"context"

	"github.com/pathwise/pathwise/internal/document"
	"github.com/pathwise/pathwise/internal/store"
)

// Service is the single mutation path for plan content.
//
// All operations authenticate the caller by owner id: a plan fetched for a
// non-owner fails with ErrUnauthorized before any state is touched. All
// content mutations go through the store's version-guarded write; local
// copies of a document are always treated as potentially stale.
type Service interface {
	// CreatePlan parses raw markdown and stores a new plan for the owner.
	//
	// The structured content is populated immediately and the version
	// starts at 1. A degraded parse (no sections or items) is not fatal:
	// the plan is stored with whatever structure was recovered and the
	// degradation is logged.
	CreatePlan(ctx context.Context, ownerID, topic, rawContent string) (*store.Plan, error)

	// ImportPlan stores a new plan mirrored from a source file.
	//
	// It behaves like CreatePlan but records the source path on the plan,
	// so a later PlanBySource can find the plan the file produced even
	// across process restarts.
	ImportPlan(ctx context.Context, ownerID, topic, rawContent, sourcePath string) (*store.Plan, error)

	// PlanBySource fetches the caller's plan recorded for a source file.
	// Returns store.ErrNotFound when the path never produced a plan.
	PlanBySource(ctx context.Context, callerID, sourcePath string) (*store.Plan, error)

	// GetPlan fetches a plan for its owner.
	//
	// Legacy plans without structured content get a document derived on
	// demand from the raw markdown; the derivation is view-only and not
	// written back (the migrate package does the persistent backfill).
	//
	// Returns store.ErrNotFound for a missing plan and ErrUnauthorized
	// for an owner mismatch.
	GetPlan(ctx context.Context, callerID, planID string) (*store.Plan, error)

	// ListPlans returns the caller's plans, newest first.
	ListPlans(ctx context.Context, callerID string) ([]*store.Plan, error)

	// DeletePlan removes a plan owned by the caller.
	DeletePlan(ctx context.Context, callerID, planID string) error

	// ToggleTask flips one task item's completion state.
	//
	// The call reads the document at its current version, flips the item,
	// recalculates progress and performs the conditional write. When the
	// write reports a conflict, the service re-reads the stored document,
	// merges its own completion change into the newer structure (structure
	// wins from the store, completion wins from the local change) and
	// retries once. A second conflict propagates as
	// ErrConcurrentModification.
	//
	// On success the new status is propagated to the calendar tracker.
	// That propagation is best-effort: when it fails, the returned result
	// is still valid and the error wraps ErrCalendarPropagation so the
	// caller can tell the partial outcome apart from a failed toggle.
	ToggleTask(ctx context.Context, callerID, planID, sectionID, itemID string) (*ToggleResult, error)

	// UpdateContent applies an arbitrary content update.
	//
	// The updater receives a copy of the current document and returns the
	// desired next state. The write is guarded by the version observed at
	// read time; a conflict fails with ErrConcurrentModification and is
	// NOT retried here - callers restart the whole cycle if they want to.
	UpdateContent(ctx context.Context, callerID, planID string, fn UpdateFunc) (*document.Document, error)
}

// UpdateFunc computes the desired next document from the current state.
// The input is a private copy; mutating it in place and returning it is fine.
type UpdateFunc func(current *document.Document) (*document.Document, error)

// ToggleResult reports the outcome of a task toggle.
type ToggleResult struct {
	// NewStatus is "completed" or "pending".
	NewStatus string `json:"newStatus"`

	// NewVersion is the document version after the accepted write.
	NewVersion int `json:"newVersion"`

	// Progress is the recalculated completion percentage.
	Progress int `json:"progress"`
}
