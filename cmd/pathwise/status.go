package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pathwise/pathwise/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database status",
	Long: `Display the current state of the pathwise database.

Shows:
  - Database file location and size
  - Number of plans
  - Number of legacy plans still awaiting backfill`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		info, err := os.Stat(cfg.DBPath)
		if os.IsNotExist(err) {
			fmt.Printf("\n%s Database not initialized\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run 'pathwise serve' or 'pathwise generate' to create it\n\n")
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading database file: %v\n", err)
			os.Exit(1)
		}

		db := openStore(cfg)
		defer db.Close()

		ctx := context.Background()
		total, err := db.GetPlanCount(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error counting plans: %v\n", err)
			os.Exit(1)
		}
		legacy, err := db.GetLegacyPlanCount(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error counting legacy plans: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\n%s Pathwise Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("   Database: %s (%.1f KB)\n", cfg.DBPath, float64(info.Size())/1024)
		fmt.Printf("   Plans:    %d\n", total)
		if legacy > 0 {
			fmt.Printf("   Legacy:   %d %s\n", legacy,
				ui.RenderFaint("(run 'pathwise migrate' to backfill)"))
		} else {
			fmt.Printf("   Legacy:   0\n")
		}
		fmt.Println()
	},
}
