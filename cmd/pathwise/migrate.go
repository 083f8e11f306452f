package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pathwise/pathwise/internal/logging"
	"github.com/pathwise/pathwise/internal/migrate"
	"github.com/pathwise/pathwise/internal/ui"
)

var migrateDryRun bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Backfill structured content for legacy plans",
	Long: `Parse the raw markdown of every legacy plan and persist the structured
document, stamping version 1.

The backfill uses the same version-guarded write as live mutations, so
plans edited concurrently are skipped and picked up on the next run.
Use --dry-run to preview without writing.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		logger := logging.New("[pathwise] ", cfg.LogFile)

		db := openStore(cfg)
		defer db.Close()

		if migrateDryRun {
			fmt.Printf("%s Dry run, nothing will be written\n", ui.RenderWarn("⚠"))
		}

		result, err := migrate.Backfill(context.Background(), db, migrate.Options{
			DryRun: migrateDryRun,
			Logger: logger,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error running backfill: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Backfill complete\n", ui.RenderPass("✓"))
		fmt.Printf("   Scanned:  %d\n", result.PlansScanned)
		fmt.Printf("   Migrated: %d\n", result.PlansMigrated)
		fmt.Printf("   Degraded: %d\n", result.Degraded)
		fmt.Printf("   Skipped:  %d\n", result.Skipped)

		if len(result.Errors) > 0 {
			fmt.Printf("%s %d plans failed:\n", ui.RenderErr("✗"), len(result.Errors))
			for _, e := range result.Errors {
				fmt.Printf("   %s\n", e)
			}
			os.Exit(1)
		}
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "preview without writing")
}
