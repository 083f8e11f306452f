package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pathwise/pathwise/internal/loadtest"
	"github.com/pathwise/pathwise/internal/ui"
)

var (
	loadtestPlans   int
	loadtestTasks   int
	loadtestUsers   int
	loadtestToggles int
)

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Run a concurrent toggle storm against a scratch database",
	Long: `Populate a temporary database with generated plans and hammer it with
concurrent sessions toggling random tasks.

Reports latency percentiles and verifies afterwards that no accepted
write was lost: every plan's version and progress must match the
toggles that actually landed.`,
	Run: func(cmd *cobra.Command, args []string) {
		dir, err := os.MkdirTemp("", "pathwise-loadtest-*")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating temp dir: %v\n", err)
			os.Exit(1)
		}
		defer os.RemoveAll(dir)

		fmt.Printf("%s Populating %d plans with %d tasks each...\n",
			ui.RenderAccent("🔄"), loadtestPlans, loadtestTasks)

		env, err := loadtest.CreateTestEnvironment(filepath.Join(dir, "load.db"), loadtestPlans, loadtestTasks)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating test environment: %v\n", err)
			os.Exit(1)
		}
		defer env.Close()

		fmt.Printf("%s Running %d sessions x %d toggles...\n",
			ui.RenderAccent("🚀"), loadtestUsers, loadtestToggles)

		stats, err := env.RunToggleStorm(loadtestUsers, loadtestToggles)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error running storm: %v\n", err)
			os.Exit(1)
		}

		fmt.Println()
		stats.PrintStats()
		fmt.Println()

		if err := env.VerifyConsistency(context.Background()); err != nil {
			fmt.Printf("%s Consistency check failed: %v\n", ui.RenderErr("✗"), err)
			os.Exit(1)
		}
		fmt.Printf("%s All plans consistent after storm\n", ui.RenderPass("✓"))

		if stats.Errors > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	loadtestCmd.Flags().IntVar(&loadtestPlans, "plans", 10, "number of plans to generate")
	loadtestCmd.Flags().IntVar(&loadtestTasks, "tasks", 10, "tasks per plan")
	loadtestCmd.Flags().IntVar(&loadtestUsers, "users", 50, "concurrent sessions")
	loadtestCmd.Flags().IntVar(&loadtestToggles, "toggles", 20, "toggles per session")
}
