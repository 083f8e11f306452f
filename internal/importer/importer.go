// Package importer provides the daemon that imports markdown plan files.
//
// The importer:
// 1. Watches a directory for markdown plan files
// 2. Creates a plan for each new file, for a configured owner
// 3. Replaces a plan's structured content when its file changes
// 4. Handles graceful shutdown
//
// The file to plan mapping is durable: each imported plan records its source
// path, so a restarted importer resumes the plans its directory already
// produced instead of importing duplicates.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pathwise/pathwise/internal/document"
	"github.com/pathwise/pathwise/internal/markdown"
	"github.com/pathwise/pathwise/internal/store"
	"github.com/pathwise/pathwise/internal/sync"
)

// Config holds configuration for the importer.
type Config struct {
	// OwnerID is the user all imported plans belong to.
	OwnerID string

	// Dir is the directory watched for *.md files.
	Dir string

	// DebounceInterval is how long to wait before processing file changes.
	// This batches rapid editor saves together.
	DebounceInterval time.Duration

	// Logger for importer activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults for the given owner and directory.
func DefaultConfig(ownerID, dir string) *Config {
	return &Config{
		OwnerID:          ownerID,
		Dir:              dir,
		DebounceInterval: 200 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[importer] ", log.LstdFlags),
	}
}

// Importer watches a directory and mirrors its markdown files into plans.
type Importer struct {
	svc    sync.Service
	config *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // filepath -> queued at
	changeQueueMu gosync.Mutex

	// plans caches the file path to plan id mapping. The mapping of record
	// lives on the plan rows themselves (see resolvePlan).
	plans   map[string]string
	plansMu gosync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// New creates an Importer. Use Start() to begin watching.
func New(svc sync.Service, config *Config) (*Importer, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if config == nil || config.Dir == "" {
		return nil, fmt.Errorf("import directory cannot be empty")
	}
	if config.OwnerID == "" {
		return nil, fmt.Errorf("owner id cannot be empty")
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 200 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[importer] ", log.LstdFlags)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Importer{
		svc:         svc,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		plans:       make(map[string]string),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the importer's operation.
//
// The importer performs an initial import of every markdown file already in
// the directory, then processes file changes with debouncing. This blocks
// until ctx is cancelled or an error occurs.
func (imp *Importer) Start(ctx context.Context) error {
	imp.config.Logger.Printf("Starting importer for %s", imp.config.Dir)

	if err := imp.importExisting(ctx); err != nil {
		return fmt.Errorf("initial import failed: %w", err)
	}

	if err := imp.watcher.Add(imp.config.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", imp.config.Dir, err)
	}

	imp.wg.Add(2)
	go imp.watchFileEvents()
	go imp.processChangeQueue()

	select {
	case <-ctx.Done():
		imp.config.Logger.Println("Shutdown signal received")
		return imp.Stop()
	case <-imp.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the importer.
func (imp *Importer) Stop() error {
	imp.config.Logger.Println("Stopping importer")

	imp.cancel()

	if err := imp.watcher.Close(); err != nil {
		imp.config.Logger.Printf("Error closing watcher: %v", err)
	}

	imp.wg.Wait()

	imp.config.Logger.Println("Importer stopped")
	return nil
}

// PlanFor returns the plan id imported from the given file path, if any.
func (imp *Importer) PlanFor(path string) (string, bool) {
	imp.plansMu.Lock()
	defer imp.plansMu.Unlock()
	id, ok := imp.plans[path]
	return id, ok
}

// resolvePlan finds the plan a file previously produced, consulting the
// in-memory cache first and falling back to the stored source path. The
// fallback is what survives a restart.
func (imp *Importer) resolvePlan(ctx context.Context, path string) (string, bool, error) {
	if id, ok := imp.PlanFor(path); ok {
		return id, true, nil
	}

	plan, err := imp.svc.PlanBySource(ctx, imp.config.OwnerID, path)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	imp.rememberPlan(path, plan.ID)
	return plan.ID, true, nil
}

func (imp *Importer) rememberPlan(path, planID string) {
	imp.plansMu.Lock()
	imp.plans[path] = planID
	imp.plansMu.Unlock()
}

func (imp *Importer) forgetPlan(path string) {
	imp.plansMu.Lock()
	delete(imp.plans, path)
	imp.plansMu.Unlock()
}

// importExisting imports every markdown file already present in the directory.
func (imp *Importer) importExisting(ctx context.Context) error {
	entries, err := os.ReadDir(imp.config.Dir)
	if err != nil {
		return fmt.Errorf("failed to read import directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
			continue
		}
		path := filepath.Join(imp.config.Dir, entry.Name())
		if err := imp.importFile(ctx, path); err != nil {
			imp.config.Logger.Printf("Warning: failed to import %s: %v", path, err)
		}
	}
	return nil
}

// watchFileEvents monitors filesystem events and queues changes.
func (imp *Importer) watchFileEvents() {
	defer imp.wg.Done()

	for {
		select {
		case <-imp.ctx.Done():
			return

		case event, ok := <-imp.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".md" {
				continue
			}

			imp.config.Logger.Printf("File event: %s %s", event.Op, event.Name)
			imp.queueChange(event.Name)

		case err, ok := <-imp.watcher.Errors:
			if !ok {
				return
			}
			imp.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange adds a file to the change queue with debouncing.
func (imp *Importer) queueChange(path string) {
	imp.changeQueueMu.Lock()
	defer imp.changeQueueMu.Unlock()

	imp.changeQueue[path] = time.Now()
}

// processChangeQueue processes queued file changes with debouncing.
func (imp *Importer) processChangeQueue() {
	defer imp.wg.Done()

	ticker := time.NewTicker(imp.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-imp.ctx.Done():
			return

		case <-ticker.C:
			imp.processPendingChanges()
		}
	}
}

// processPendingChanges imports files that have been quiet for long enough.
func (imp *Importer) processPendingChanges() {
	imp.changeQueueMu.Lock()
	defer imp.changeQueueMu.Unlock()

	now := time.Now()
	for path, queuedAt := range imp.changeQueue {
		if now.Sub(queuedAt) < imp.config.DebounceInterval {
			continue
		}
		delete(imp.changeQueue, path)

		if err := imp.syncFile(imp.ctx, path); err != nil {
			imp.config.Logger.Printf("Error importing %s: %v", path, err)
		}
	}
}

// syncFile reconciles one file with its plan. A removed file deletes the
// plan it produced; anything else creates or updates.
func (imp *Importer) syncFile(ctx context.Context, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		planID, ok, err := imp.resolvePlan(ctx, path)
		if err != nil || !ok {
			return err
		}

		imp.config.Logger.Printf("Deleting plan %s for removed file %s", planID, path)
		if err := imp.svc.DeletePlan(ctx, imp.config.OwnerID, planID); err != nil {
			return err
		}
		imp.forgetPlan(path)
		return nil
	}

	return imp.importFile(ctx, path)
}

// importFile creates or updates the plan backed by the given file.
func (imp *Importer) importFile(ctx context.Context, path string) error {
	// #nosec G304 - path comes from the watched directory
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	res, err := markdown.Parse(string(content))
	if err != nil && !errors.Is(err, markdown.ErrDegraded) {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	planID, ok, err := imp.resolvePlan(ctx, path)
	if err != nil {
		return err
	}
	if ok {
		// Replace the structured content of the existing plan. The raw
		// markdown stored at creation is not rewritten; the parse result
		// is the content of record.
		_, err = imp.svc.UpdateContent(ctx, imp.config.OwnerID, planID, func(_ *document.Document) (*document.Document, error) {
			return res.Doc, nil
		})
		if err != nil {
			return err
		}
		imp.config.Logger.Printf("Updated plan %s from %s", planID, path)
		return nil
	}

	topic := res.Title
	if topic == "" {
		topic = planTopic(path)
	}
	plan, err := imp.svc.ImportPlan(ctx, imp.config.OwnerID, topic, string(content), path)
	if err != nil {
		return err
	}

	imp.rememberPlan(path, plan.ID)

	imp.config.Logger.Printf("Imported %s as plan %s", path, plan.ID)
	return nil
}

// planTopic derives the plan topic from the file name.
func planTopic(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
