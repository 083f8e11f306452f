package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pathwise/pathwise/internal/document"
)

// Plan is the top-level stored record.
//
// RawContent is the original markdown from the generator and is the immutable
// source of truth for re-derivation. StructuredContent may be nil for legacy
// rows created before structuring existed; callers derive it on demand from
// RawContent (see internal/migrate for the batch backfill).
//
// SourcePath is set only for plans mirrored from a file by the importer; it
// lets a restarted importer find the plan a file already produced.
type Plan struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	Topic      string    `json:"topic"`
	RawContent string    `json:"rawContent"`
	SourcePath string    `json:"sourcePath,omitempty"`
	Progress   int       `json:"progress"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	StructuredContent *document.Document `json:"structuredContent,omitempty"`
}

// Validate checks if the Plan has valid field values.
func (p *Plan) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.OwnerID == "" {
		return fmt.Errorf("owner id is required")
	}
	if p.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	if p.Progress < 0 || p.Progress > 100 {
		return fmt.Errorf("progress must be between 0 and 100 (got %d)", p.Progress)
	}
	if p.Version < 0 {
		return fmt.Errorf("version must be non-negative (got %d)", p.Version)
	}
	if p.StructuredContent != nil {
		if err := p.StructuredContent.Validate(); err != nil {
			return fmt.Errorf("structured content: %w", err)
		}
	}
	return nil
}

// CreatePlan inserts a new plan record.
func (db *DB) CreatePlan(plan *Plan) error {
	return db.CreatePlanContext(context.Background(), plan)
}

// CreatePlanContext inserts a new plan record with context support.
//
// The plan's CreatedAt/UpdatedAt are set to now when zero. Structured content,
// when present, is serialized to JSON and the version column mirrors the
// document's version stamp.
func (db *DB) CreatePlanContext(ctx context.Context, plan *Plan) error {
	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	if plan.UpdatedAt.IsZero() {
		plan.UpdatedAt = now
	}
	if plan.StructuredContent != nil {
		plan.Version = plan.StructuredContent.Version
	}

	if err := plan.Validate(); err != nil {
		return fmt.Errorf("invalid plan: %w", err)
	}

	structured, err := marshalDocument(plan.StructuredContent)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO plans (
		id, owner_id, topic, raw_content, source_path, structured_content,
		progress, version, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = db.conn.ExecContext(ctx, query,
		plan.ID,
		plan.OwnerID,
		plan.Topic,
		plan.RawContent,
		sql.NullString{String: plan.SourcePath, Valid: plan.SourcePath != ""},
		structured,
		plan.Progress,
		plan.Version,
		plan.CreatedAt.Format(time.RFC3339),
		plan.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create plan %s: %w", plan.ID, err)
	}

	return nil
}

// GetPlan fetches a plan by id.
func (db *DB) GetPlan(planID string) (*Plan, error) {
	return db.GetPlanContext(context.Background(), planID)
}

// GetPlanContext fetches a plan by id with context support.
// Returns ErrNotFound when no row exists; a plan with an empty document is a
// different, successful outcome.
func (db *DB) GetPlanContext(ctx context.Context, planID string) (*Plan, error) {
	query := `
	SELECT id, owner_id, topic, raw_content, source_path, structured_content,
	       progress, version, created_at, updated_at
	FROM plans WHERE id = ?
	`

	plan, err := scanPlan(db.conn.QueryRowContext(ctx, query, planID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("plan %s: %w", planID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get plan %s: %w", planID, err)
	}

	return plan, nil
}

// ListPlans returns all plans owned by the given user, newest first.
func (db *DB) ListPlans(ctx context.Context, ownerID string) ([]*Plan, error) {
	query := `
	SELECT id, owner_id, topic, raw_content, source_path, structured_content,
	       progress, version, created_at, updated_at
	FROM plans WHERE owner_id = ?
	ORDER BY created_at DESC
	`

	rows, err := db.conn.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []*Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plans: %w", err)
	}

	return plans, nil
}

// ListLegacyPlans returns all plans whose structured content has not been
// populated yet. Used by the migration backfill.
func (db *DB) ListLegacyPlans(ctx context.Context) ([]*Plan, error) {
	query := `
	SELECT id, owner_id, topic, raw_content, source_path, structured_content,
	       progress, version, created_at, updated_at
	FROM plans WHERE structured_content IS NULL
	ORDER BY created_at ASC
	`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list legacy plans: %w", err)
	}
	defer rows.Close()

	var plans []*Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plans: %w", err)
	}

	return plans, nil
}

// GetPlanBySource fetches the plan an owner's source file produced.
//
// Returns ErrNotFound when no plan records the given source path. When
// duplicates exist the newest row wins.
func (db *DB) GetPlanBySource(ctx context.Context, ownerID, sourcePath string) (*Plan, error) {
	query := `
	SELECT id, owner_id, topic, raw_content, source_path, structured_content,
	       progress, version, created_at, updated_at
	FROM plans WHERE owner_id = ? AND source_path = ?
	ORDER BY created_at DESC
	LIMIT 1
	`

	plan, err := scanPlan(db.conn.QueryRowContext(ctx, query, ownerID, sourcePath))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("source %s: %w", sourcePath, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get plan for source %s: %w", sourcePath, err)
	}

	return plan, nil
}

// UpdateStructured performs the version-guarded conditional write.
func (db *DB) UpdateStructured(planID string, observedVersion int, doc *document.Document, progress int) error {
	return db.UpdateStructuredContext(context.Background(), planID, observedVersion, doc, progress)
}

// UpdateStructuredContext writes new structured content for a plan, guarded by
// the version the caller last observed.
//
// The write is accepted only if the stored version still equals
// observedVersion; the new document must already carry the incremented stamp.
// On rejection the stored content is left untouched and the error
// distinguishes a missing plan (ErrNotFound) from a racing writer
// (ErrConflict).
func (db *DB) UpdateStructuredContext(ctx context.Context, planID string, observedVersion int, doc *document.Document, progress int) error {
	if doc == nil {
		return fmt.Errorf("document cannot be nil")
	}
	if doc.Version != observedVersion+1 {
		return fmt.Errorf("document version %d does not follow observed version %d",
			doc.Version, observedVersion)
	}
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("invalid document: %w", err)
	}

	structured, err := marshalDocument(doc)
	if err != nil {
		return err
	}

	query := `
	UPDATE plans
	SET structured_content = ?, progress = ?, version = ?, updated_at = ?
	WHERE id = ? AND version = ?
	`

	res, err := db.conn.ExecContext(ctx, query,
		structured,
		progress,
		doc.Version,
		time.Now().UTC().Format(time.RFC3339),
		planID,
		observedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update plan %s: %w", planID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// The guard rejected the write. Tell a stale writer apart from a
	// deleted plan.
	var exists int
	err = db.conn.QueryRowContext(ctx, "SELECT 1 FROM plans WHERE id = ?", planID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("plan %s: %w", planID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check plan existence: %w", err)
	}

	return fmt.Errorf("plan %s at observed version %d: %w", planID, observedVersion, ErrConflict)
}

// DeletePlan removes a plan and its calendar tasks.
// Returns ErrNotFound when the plan doesn't exist.
func (db *DB) DeletePlan(ctx context.Context, planID string) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM plans WHERE id = ?", planID)
	if err != nil {
		return fmt.Errorf("failed to delete plan %s: %w", planID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("plan %s: %w", planID, ErrNotFound)
	}

	return nil
}

// GetPlanCount returns the total number of plans.
func (db *DB) GetPlanCount(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM plans").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count plans: %w", err)
	}
	return count, nil
}

// GetLegacyPlanCount returns the number of plans without structured content.
func (db *DB) GetLegacyPlanCount(ctx context.Context) (int, error) {
	var count int
	query := "SELECT COUNT(*) FROM plans WHERE structured_content IS NULL"
	if err := db.conn.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count legacy plans: %w", err)
	}
	return count, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanPlan.
type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(row scanner) (*Plan, error) {
	var (
		plan       Plan
		sourcePath sql.NullString
		structured sql.NullString
		createdAt  string
		updatedAt  string
	)

	err := row.Scan(
		&plan.ID,
		&plan.OwnerID,
		&plan.Topic,
		&plan.RawContent,
		&sourcePath,
		&structured,
		&plan.Progress,
		&plan.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	plan.SourcePath = sourcePath.String

	if structured.Valid {
		var doc document.Document
		if err := json.Unmarshal([]byte(structured.String), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode structured content: %w", err)
		}
		plan.StructuredContent = &doc
	}

	if plan.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if plan.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &plan, nil
}

func marshalDocument(doc *document.Document) (sql.NullString, error) {
	if doc == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal document: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
