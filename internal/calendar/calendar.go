// Package calendar tracks per-task calendar entries for plan items.
//
// Every task item can have a calendar record keyed by (plan, section, item).
// The sync layer propagates toggle outcomes here best-effort: a calendar
// failure never rolls back the toggle itself, it is surfaced as a distinct
// error. The tracker also extracts a due-date hint from the task text
// ("finish by Friday", "review next week") so calendar consumers can schedule
// the entry.
package calendar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Status is the calendar-visible state of a task.
type Status string

const (
	// StatusPending marks a task that still needs doing.
	StatusPending Status = "pending"
	// StatusCompleted marks a finished task.
	StatusCompleted Status = "completed"
)

// ErrNotTracked is returned when no calendar entry exists for the task.
var ErrNotTracked = errors.New("task not tracked")

// TaskRef identifies a task item within a plan.
type TaskRef struct {
	PlanID    string
	SectionID string
	ItemID    string
}

// Entry is a stored calendar record.
type Entry struct {
	TaskRef
	Status    Status
	DueAt     *time.Time
	UpdatedAt time.Time
}

// Tracker persists calendar entries in the shared plan database.
type Tracker struct {
	conn   *sql.DB
	parser *when.Parser
	logger *log.Logger
}

// New creates a calendar tracker over an initialized database connection.
//
// If logger is nil, a default logger writing to stderr is used.
func New(conn *sql.DB, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.New(os.Stderr, "[calendar] ", log.LstdFlags)
	}

	parser := when.New(nil)
	parser.Add(en.All...)
	parser.Add(common.All...)

	return &Tracker{
		conn:   conn,
		parser: parser,
		logger: logger,
	}
}

// SetStatus upserts the calendar entry for a task.
//
// The task content is scanned for a natural-language due hint; when one is
// found the entry's due date is set from it, otherwise any previous due date
// is kept.
func (t *Tracker) SetStatus(ctx context.Context, ref TaskRef, status Status, content string) error {
	if ref.PlanID == "" || ref.SectionID == "" || ref.ItemID == "" {
		return fmt.Errorf("task ref requires plan, section and item ids")
	}
	switch status {
	case StatusPending, StatusCompleted:
	default:
		return fmt.Errorf("unknown status %q", status)
	}

	due := t.DueHint(content, time.Now())
	var dueStr sql.NullString
	if due != nil {
		dueStr = sql.NullString{String: due.UTC().Format(time.RFC3339), Valid: true}
	}

	query := `
	INSERT INTO calendar_tasks (plan_id, section_id, item_id, status, due_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(plan_id, section_id, item_id) DO UPDATE SET
		status = excluded.status,
		due_at = COALESCE(excluded.due_at, calendar_tasks.due_at),
		updated_at = excluded.updated_at
	`

	_, err := t.conn.ExecContext(ctx, query,
		ref.PlanID,
		ref.SectionID,
		ref.ItemID,
		string(status),
		dueStr,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to set calendar status for %s/%s/%s: %w",
			ref.PlanID, ref.SectionID, ref.ItemID, err)
	}

	t.logger.Printf("Calendar status: %s/%s -> %s", ref.PlanID, ref.ItemID, status)
	return nil
}

// Get returns the calendar entry for a task, or ErrNotTracked.
func (t *Tracker) Get(ctx context.Context, ref TaskRef) (*Entry, error) {
	query := `
	SELECT status, due_at, updated_at
	FROM calendar_tasks
	WHERE plan_id = ? AND section_id = ? AND item_id = ?
	`

	var (
		status    string
		due       sql.NullString
		updatedAt string
	)
	err := t.conn.QueryRowContext(ctx, query, ref.PlanID, ref.SectionID, ref.ItemID).
		Scan(&status, &due, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s/%s: %w", ref.PlanID, ref.SectionID, ref.ItemID, ErrNotTracked)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar entry: %w", err)
	}

	entry := &Entry{
		TaskRef: ref,
		Status:  Status(status),
	}
	if entry.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if due.Valid {
		parsed, err := time.Parse(time.RFC3339, due.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse due_at: %w", err)
		}
		entry.DueAt = &parsed
	}

	return entry, nil
}

// DueHint extracts a due date from natural-language task text, relative to
// base. Returns nil when the text carries no recognizable date.
func (t *Tracker) DueHint(content string, base time.Time) *time.Time {
	if content == "" {
		return nil
	}

	result, err := t.parser.Parse(content, base)
	if err != nil || result == nil {
		return nil
	}
	return &result.Time
}
