package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	gosync "sync"

	"github.com/google/uuid"

	"github.com/pathwise/pathwise/internal/calendar"
	"github.com/pathwise/pathwise/internal/document"
	"github.com/pathwise/pathwise/internal/markdown"
	"github.com/pathwise/pathwise/internal/store"
)

// ErrUnauthorized is returned when the caller does not own the plan.
var ErrUnauthorized = errors.New("not the plan owner")

// ErrConcurrentModification is returned when a version-guarded write lost the
// race and the conflict could not be resolved internally.
var ErrConcurrentModification = errors.New("concurrent modification")

// ErrCalendarPropagation marks a toggle that succeeded but whose calendar
// side effect failed. The toggle result accompanying this error is valid.
var ErrCalendarPropagation = errors.New("calendar propagation failed")

// Status strings reported by ToggleResult.
const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
)

// service implements the Service interface.
type service struct {
	db       *store.DB
	calendar *calendar.Tracker
	logger   *log.Logger

	// Per-plan mutexes serialize same-process mutations.
	locksMu gosync.Mutex
	locks   map[string]*gosync.Mutex
}

// New creates a Service over an initialized store.
//
// The calendar tracker may be nil, in which case toggle outcomes are not
// propagated anywhere. If logger is nil, a default logger writing to stderr
// is used.
//
// Example:
//
//	db, err := store.Open(".pathwise/pathwise.db")
//	if err != nil {
//	    return err
//	}
//	if err := db.InitSchema(); err != nil {
//	    return err
//	}
//	svc := sync.New(db, calendar.New(db.RawDB(), nil), nil)
func New(db *store.DB, cal *calendar.Tracker, logger *log.Logger) Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &service{
		db:       db,
		calendar: cal,
		logger:   logger,
		locks:    make(map[string]*gosync.Mutex),
	}
}

// planLock returns the mutex serializing mutations for one plan id.
func (s *service) planLock(planID string) *gosync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.locks[planID]
	if !ok {
		lock = &gosync.Mutex{}
		s.locks[planID] = lock
	}
	return lock
}

// CreatePlan implements Service.CreatePlan.
func (s *service) CreatePlan(ctx context.Context, ownerID, topic, rawContent string) (*store.Plan, error) {
	return s.createPlan(ctx, ownerID, topic, rawContent, "")
}

// ImportPlan implements Service.ImportPlan.
func (s *service) ImportPlan(ctx context.Context, ownerID, topic, rawContent, sourcePath string) (*store.Plan, error) {
	if sourcePath == "" {
		return nil, fmt.Errorf("source path cannot be empty")
	}
	return s.createPlan(ctx, ownerID, topic, rawContent, sourcePath)
}

// PlanBySource implements Service.PlanBySource.
func (s *service) PlanBySource(ctx context.Context, callerID, sourcePath string) (*store.Plan, error) {
	return s.db.GetPlanBySource(ctx, callerID, sourcePath)
}

func (s *service) createPlan(ctx context.Context, ownerID, topic, rawContent, sourcePath string) (*store.Plan, error) {
	res, err := markdown.Parse(rawContent)
	if err != nil {
		if !errors.Is(err, markdown.ErrDegraded) {
			return nil, fmt.Errorf("failed to parse plan content: %w", err)
		}
		s.logger.Printf("Warning: degraded parse for new plan (topic %q)", topic)
	}

	if topic == "" {
		topic = res.Title
	}

	plan := &store.Plan{
		ID:                uuid.NewString(),
		OwnerID:           ownerID,
		Topic:             topic,
		RawContent:        rawContent,
		SourcePath:        sourcePath,
		StructuredContent: res.Doc,
		Progress:          document.CalculateProgress(res.Doc.Sections),
	}

	if err := s.db.CreatePlanContext(ctx, plan); err != nil {
		return nil, err
	}

	s.logger.Printf("Created plan %s (%s) with %d sections", plan.ID, plan.Topic, len(res.Doc.Sections))
	return plan, nil
}

// GetPlan implements Service.GetPlan.
func (s *service) GetPlan(ctx context.Context, callerID, planID string) (*store.Plan, error) {
	plan, err := s.db.GetPlanContext(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.OwnerID != callerID {
		return nil, fmt.Errorf("plan %s: %w", planID, ErrUnauthorized)
	}

	if plan.StructuredContent == nil {
		// Legacy row: derive for display only.
		doc, err := s.deriveDocument(plan)
		if err != nil {
			return nil, err
		}
		plan.StructuredContent = doc
		plan.Progress = document.CalculateProgress(doc.Sections)
	}

	return plan, nil
}

// ListPlans implements Service.ListPlans.
func (s *service) ListPlans(ctx context.Context, callerID string) ([]*store.Plan, error) {
	return s.db.ListPlans(ctx, callerID)
}

// DeletePlan implements Service.DeletePlan.
func (s *service) DeletePlan(ctx context.Context, callerID, planID string) error {
	plan, err := s.db.GetPlanContext(ctx, planID)
	if err != nil {
		return err
	}
	if plan.OwnerID != callerID {
		return fmt.Errorf("plan %s: %w", planID, ErrUnauthorized)
	}

	if err := s.db.DeletePlan(ctx, planID); err != nil {
		return err
	}

	s.logger.Printf("Deleted plan %s", planID)
	return nil
}

// ToggleTask implements Service.ToggleTask.
func (s *service) ToggleTask(ctx context.Context, callerID, planID, sectionID, itemID string) (*ToggleResult, error) {
	lock := s.planLock(planID)
	lock.Lock()
	defer lock.Unlock()

	plan, err := s.db.GetPlanContext(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.OwnerID != callerID {
		return nil, fmt.Errorf("plan %s: %w", planID, ErrUnauthorized)
	}

	doc := plan.StructuredContent
	if doc == nil {
		// Legacy row: first mutation structures it in the same write.
		if doc, err = s.deriveDocument(plan); err != nil {
			return nil, err
		}
	}

	work := doc.Clone()
	sec := work.FindSection(sectionID)
	if sec == nil {
		return nil, fmt.Errorf("section %s in plan %s: %w", sectionID, planID, store.ErrNotFound)
	}
	item := sec.FindItem(itemID)
	if item == nil {
		return nil, fmt.Errorf("item %s in plan %s: %w", itemID, planID, store.ErrNotFound)
	}
	if item.Type != document.ItemTask {
		return nil, fmt.Errorf("item %s is not a task", itemID)
	}

	item.IsComplete = !item.IsComplete
	nowComplete := item.IsComplete
	content := item.Content

	work.Version = plan.Version + 1
	progress := document.CalculateProgress(work.Sections)

	final := work
	err = s.db.UpdateStructuredContext(ctx, planID, plan.Version, work, progress)
	if errors.Is(err, store.ErrConflict) {
		final, progress, err = s.retryToggle(ctx, planID, itemID, work)
	}
	if err != nil {
		return nil, err
	}

	status := StatusPending
	if nowComplete {
		status = StatusCompleted
	}

	result := &ToggleResult{
		NewStatus:  status,
		NewVersion: final.Version,
		Progress:   progress,
	}

	s.logger.Printf("Toggled %s/%s -> %s (v%d, %d%%)", planID, itemID, status, final.Version, progress)

	if s.calendar != nil {
		ref := calendar.TaskRef{PlanID: planID, SectionID: sectionID, ItemID: itemID}
		if cerr := s.calendar.SetStatus(ctx, ref, calendar.Status(status), content); cerr != nil {
			return result, fmt.Errorf("%w: %v", ErrCalendarPropagation, cerr)
		}
	}

	return result, nil
}

// retryToggle resolves one write conflict by merging the local completion
// change into the freshly stored structure and retrying the guarded write.
func (s *service) retryToggle(ctx context.Context, planID, itemID string, local *document.Document) (*document.Document, int, error) {
	latest, err := s.db.GetPlanContext(ctx, planID)
	if err != nil {
		return nil, 0, err
	}
	if latest.StructuredContent == nil {
		// The racing writer erased structure out from under us; give up.
		return nil, 0, fmt.Errorf("plan %s: %w", planID, ErrConcurrentModification)
	}

	merged := document.Merge(local, latest.StructuredContent)
	if findItem(merged, itemID) == nil {
		// The racing structural edit removed the toggled item.
		return nil, 0, fmt.Errorf("item %s removed concurrently: %w", itemID, ErrConcurrentModification)
	}

	merged.Version = latest.Version + 1
	progress := document.CalculateProgress(merged.Sections)

	err = s.db.UpdateStructuredContext(ctx, planID, latest.Version, merged, progress)
	if errors.Is(err, store.ErrConflict) {
		return nil, 0, fmt.Errorf("plan %s: %w", planID, ErrConcurrentModification)
	}
	if err != nil {
		return nil, 0, err
	}

	s.logger.Printf("Resolved toggle conflict on plan %s via merge (v%d)", planID, merged.Version)
	return merged, progress, nil
}

// UpdateContent implements Service.UpdateContent.
func (s *service) UpdateContent(ctx context.Context, callerID, planID string, fn UpdateFunc) (*document.Document, error) {
	if fn == nil {
		return nil, fmt.Errorf("update function cannot be nil")
	}

	lock := s.planLock(planID)
	lock.Lock()
	defer lock.Unlock()

	plan, err := s.db.GetPlanContext(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.OwnerID != callerID {
		return nil, fmt.Errorf("plan %s: %w", planID, ErrUnauthorized)
	}

	doc := plan.StructuredContent
	if doc == nil {
		if doc, err = s.deriveDocument(plan); err != nil {
			return nil, err
		}
	}

	next, err := fn(doc.Clone())
	if err != nil {
		return nil, fmt.Errorf("update function failed: %w", err)
	}
	if next == nil {
		return nil, fmt.Errorf("update function returned nil document")
	}

	next.Version = plan.Version + 1
	progress := document.CalculateProgress(next.Sections)

	err = s.db.UpdateStructuredContext(ctx, planID, plan.Version, next, progress)
	if errors.Is(err, store.ErrConflict) {
		return nil, fmt.Errorf("plan %s: %w", planID, ErrConcurrentModification)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Printf("Updated content of plan %s (v%d, %d%%)", planID, next.Version, progress)
	return next, nil
}

// deriveDocument structures a legacy plan's raw markdown. The document carries
// the plan's current version so a following guarded write stamps version+1.
func (s *service) deriveDocument(plan *store.Plan) (*document.Document, error) {
	res, err := markdown.Parse(plan.RawContent)
	if err != nil {
		if !errors.Is(err, markdown.ErrDegraded) {
			return nil, fmt.Errorf("failed to derive document for plan %s: %w", plan.ID, err)
		}
		s.logger.Printf("Warning: degraded derivation for legacy plan %s", plan.ID)
	}
	res.Doc.Version = plan.Version
	return res.Doc, nil
}

func findItem(doc *document.Document, itemID string) *document.Item {
	for i := range doc.Sections {
		if item := doc.Sections[i].FindItem(itemID); item != nil {
			return item
		}
	}
	return nil
}
