package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pathwise/pathwise/internal/calendar"
	"github.com/pathwise/pathwise/internal/importer"
	"github.com/pathwise/pathwise/internal/logging"
	"github.com/pathwise/pathwise/internal/sync"
	"github.com/pathwise/pathwise/internal/ui"
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Watch a directory and import markdown plans",
	Long: `Run the markdown importer standalone.

Every *.md file in the directory becomes a plan owned by import_owner.
Files written while the importer runs are picked up with debouncing;
removing a file deletes the plan it produced. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		logger := logging.New("[pathwise] ", cfg.LogFile)

		db := openStore(cfg)
		defer db.Close()

		svc := sync.New(db, calendar.New(db.RawDB(), logger), logger)

		imp, err := importer.New(svc, &importer.Config{
			OwnerID: cfg.ImportOwner,
			Dir:     args[0],
			Logger:  logger,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating importer: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Watching %s for plan files (owner: %s)\n",
			ui.RenderAccent("🗂"), args[0], cfg.ImportOwner)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := imp.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error running importer: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Stopped\n", ui.RenderPass("✓"))
	},
}
