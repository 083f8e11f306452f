package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pathwise/pathwise/internal/store"
	"github.com/pathwise/pathwise/internal/sync"
)

const testOwner = "importer-user"

func setupImporter(t *testing.T) (*Importer, sync.Service, string) {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	svc := sync.New(db, nil, nil)
	dir := t.TempDir()

	cfg := DefaultConfig(testOwner, dir)
	cfg.DebounceInterval = 20 * time.Millisecond

	imp, err := New(svc, cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return imp, svc, dir
}

// startImporter runs the importer in the background and stops it at cleanup.
func startImporter(t *testing.T, imp *Importer) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = imp.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("importer did not stop in time")
		}
	})
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestNewValidation(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	defer db.Close()
	svc := sync.New(db, nil, nil)

	if _, err := New(nil, DefaultConfig("u", t.TempDir())); err == nil {
		t.Error("expected error for nil service")
	}
	if _, err := New(svc, DefaultConfig("u", "")); err == nil {
		t.Error("expected error for empty directory")
	}
	if _, err := New(svc, DefaultConfig("", t.TempDir())); err == nil {
		t.Error("expected error for empty owner")
	}
}

func TestImportsExistingFilesOnStart(t *testing.T) {
	imp, svc, dir := setupImporter(t)

	writeFile(t, filepath.Join(dir, "go-basics.md"),
		"# Go Basics\n## Phase 1\n[ ] Read the tour\n[x] Install Go")
	writeFile(t, filepath.Join(dir, "notes.txt"), "not a plan")

	startImporter(t, imp)

	ctx := context.Background()
	waitFor(t, 5*time.Second, func() bool {
		plans, err := svc.ListPlans(ctx, testOwner)
		return err == nil && len(plans) == 1
	}, "initial import did not create the plan")

	plans, err := svc.ListPlans(ctx, testOwner)
	if err != nil {
		t.Fatalf("ListPlans() error: %v", err)
	}
	if plans[0].Topic != "Go Basics" {
		t.Errorf("topic = %q, want parsed title", plans[0].Topic)
	}
	if plans[0].Progress != 50 {
		t.Errorf("progress = %d, want 50", plans[0].Progress)
	}
}

func TestImportsNewFile(t *testing.T) {
	imp, svc, dir := setupImporter(t)
	startImporter(t, imp)

	path := filepath.Join(dir, "rust.md")
	writeFile(t, path, "# Rust\n## Phase 1\n[ ] Read the book")

	ctx := context.Background()
	waitFor(t, 5*time.Second, func() bool {
		plans, err := svc.ListPlans(ctx, testOwner)
		return err == nil && len(plans) == 1
	}, "new file was not imported")

	if _, ok := imp.PlanFor(path); !ok {
		t.Error("importer did not record the file to plan mapping")
	}
}

func TestReimportsChangedFile(t *testing.T) {
	imp, svc, dir := setupImporter(t)

	path := filepath.Join(dir, "sql.md")
	writeFile(t, path, "# SQL\n## Phase 1\n[ ] Select basics")

	startImporter(t, imp)

	ctx := context.Background()
	waitFor(t, 5*time.Second, func() bool {
		plans, err := svc.ListPlans(ctx, testOwner)
		return err == nil && len(plans) == 1
	}, "initial import did not create the plan")

	planID, _ := imp.PlanFor(path)

	writeFile(t, path, "# SQL\n## Phase 1\n[ ] Select basics\n[ ] Joins\n## Phase 2\n[ ] Indexes")

	waitFor(t, 5*time.Second, func() bool {
		plan, err := svc.GetPlan(ctx, testOwner, planID)
		return err == nil && plan.Version > 1
	}, "changed file was not reimported")

	plan, err := svc.GetPlan(ctx, testOwner, planID)
	if err != nil {
		t.Fatalf("GetPlan() error: %v", err)
	}
	if len(plan.StructuredContent.Sections) != 2 {
		t.Errorf("sections = %d, want 2", len(plan.StructuredContent.Sections))
	}
}

func TestRemovedFileDeletesPlan(t *testing.T) {
	imp, svc, dir := setupImporter(t)

	path := filepath.Join(dir, "tmp.md")
	writeFile(t, path, "# Temp\n## Phase 1\n[ ] Something")

	startImporter(t, imp)

	ctx := context.Background()
	waitFor(t, 5*time.Second, func() bool {
		plans, err := svc.ListPlans(ctx, testOwner)
		return err == nil && len(plans) == 1
	}, "initial import did not create the plan")

	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove file: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		plans, err := svc.ListPlans(ctx, testOwner)
		return err == nil && len(plans) == 0
	}, "removed file did not delete the plan")

	if _, ok := imp.PlanFor(path); ok {
		t.Error("mapping should be dropped with the plan")
	}
}

func TestRestartResumesExistingPlans(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	svc := sync.New(db, nil, nil)
	dir := t.TempDir()

	path := filepath.Join(dir, "go.md")
	writeFile(t, path, "# Go Basics\n## Phase 1\n[ ] Read the tour")

	newImporter := func() *Importer {
		t.Helper()
		cfg := DefaultConfig(testOwner, dir)
		cfg.DebounceInterval = 20 * time.Millisecond
		imp, err := New(svc, cfg)
		if err != nil {
			t.Fatalf("New() error: %v", err)
		}
		return imp
	}

	ctx := context.Background()

	first := newImporter()
	firstCtx, stopFirst := context.WithCancel(ctx)
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_ = first.Start(firstCtx)
	}()

	waitFor(t, 5*time.Second, func() bool {
		plans, err := svc.ListPlans(ctx, testOwner)
		return err == nil && len(plans) == 1
	}, "initial import did not create the plan")

	stopFirst()
	select {
	case <-firstDone:
	case <-time.After(5 * time.Second):
		t.Fatal("first importer did not stop in time")
	}

	// A fresh process over the same database and directory picks the
	// existing plan back up instead of importing a duplicate.
	second := newImporter()
	startImporter(t, second)

	waitFor(t, 5*time.Second, func() bool {
		plan, err := svc.PlanBySource(ctx, testOwner, path)
		return err == nil && plan.Version > 1
	}, "restart did not update the existing plan")

	plans, err := svc.ListPlans(ctx, testOwner)
	if err != nil {
		t.Fatalf("ListPlans() error: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("one mirrored file produced %d plans after a restart, want 1", len(plans))
	}
	if id, ok := second.PlanFor(path); !ok || id != plans[0].ID {
		t.Error("restarted importer did not recover the file to plan mapping")
	}
}

func TestTopicFallsBackToFileName(t *testing.T) {
	imp, svc, dir := setupImporter(t)

	// No H1 title: the topic comes from the file name instead.
	writeFile(t, filepath.Join(dir, "scratch-plan.md"), "## Phase 1\n[ ] Task")

	startImporter(t, imp)

	ctx := context.Background()
	waitFor(t, 5*time.Second, func() bool {
		plans, err := svc.ListPlans(ctx, testOwner)
		return err == nil && len(plans) == 1
	}, "file without title was not imported")

	plans, _ := svc.ListPlans(ctx, testOwner)
	if plans[0].Topic != "scratch-plan" {
		t.Errorf("topic = %q, want file name fallback", plans[0].Topic)
	}
}
