package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pathwise/pathwise/internal/calendar"
	"github.com/pathwise/pathwise/internal/genai"
	"github.com/pathwise/pathwise/internal/importer"
	"github.com/pathwise/pathwise/internal/logging"
	"github.com/pathwise/pathwise/internal/server"
	"github.com/pathwise/pathwise/internal/sync"
	"github.com/pathwise/pathwise/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pathwise API server",
	Long: `Start the HTTP API and WebSocket feed.

The server exposes:
  - REST endpoints under /api/plans for creating, reading, toggling,
    editing and deleting plans
  - A WebSocket feed at /ws broadcasting every mutation
  - A health check at /health

When import_dir is configured, the markdown importer runs alongside the
server and mirrors *.md files in that directory into plans.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		logger := logging.New("[pathwise] ", cfg.LogFile)

		db := openStore(cfg)
		defer db.Close()

		tracker := calendar.New(db.RawDB(), logger)
		svc := sync.New(db, tracker, logger)

		var generator genai.Generator
		if cfg.AnthropicAPIKey != "" {
			generator = genai.NewClient(&genai.Config{
				APIKey:  cfg.AnthropicAPIKey,
				Model:   cfg.Model,
				Timeout: cfg.GenerationTimeout,
				Logger:  logger,
			})
		} else {
			fmt.Printf("%s No API key configured, plan generation disabled\n", ui.RenderWarn("⚠"))
		}

		srv := server.NewServer(svc, db, &server.Config{
			Port:      cfg.ListenPort,
			Generator: generator,
			Logger:    logger,
		})

		if err := srv.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting server: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Pathwise listening on %s\n", ui.RenderPass("✓"), srv.GetAddr())
		fmt.Printf("   Database: %s\n", cfg.DBPath)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.ImportDir != "" {
			imp, err := importer.New(svc, &importer.Config{
				OwnerID: cfg.ImportOwner,
				Dir:     cfg.ImportDir,
				Logger:  logger,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating importer: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("%s Importing plans from %s\n", ui.RenderAccent("🗂"), cfg.ImportDir)
			go func() {
				if err := imp.Start(ctx); err != nil {
					logger.Printf("Importer stopped with error: %v", err)
				}
			}()
		}

		<-ctx.Done()
		fmt.Printf("\n%s Shutting down...\n", ui.RenderAccent("🔄"))

		if err := srv.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping server: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Stopped\n", ui.RenderPass("✓"))
	},
}
