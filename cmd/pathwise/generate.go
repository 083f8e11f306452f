package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pathwise/pathwise/internal/calendar"
	"github.com/pathwise/pathwise/internal/genai"
	"github.com/pathwise/pathwise/internal/logging"
	"github.com/pathwise/pathwise/internal/sync"
	"github.com/pathwise/pathwise/internal/ui"
)

var (
	generateOwner string
	generateShow  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <topic>",
	Short: "Generate and store a learning plan for a topic",
	Long: `Generate a structured learning plan with the configured model and
store it as a new plan.

A transient generation failure is retried once before giving up. Use
--show to print the generated markdown.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		topic := args[0]
		cfg := loadConfig()
		logger := logging.New("[pathwise] ", cfg.LogFile)

		if cfg.AnthropicAPIKey == "" {
			fmt.Fprintf(os.Stderr, "Error: anthropic_api_key is not configured\n")
			os.Exit(1)
		}

		client := genai.NewClient(&genai.Config{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.Model,
			Timeout: cfg.GenerationTimeout,
			Logger:  logger,
		})

		fmt.Printf("%s Generating plan for %q...\n", ui.RenderAccent("✨"), topic)

		ctx := context.Background()
		content, err := genai.GenerateWithRetry(ctx, client, genai.BuildPlanPrompt(topic), time.Second, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating plan: %v\n", err)
			os.Exit(1)
		}

		db := openStore(cfg)
		defer db.Close()

		svc := sync.New(db, calendar.New(db.RawDB(), logger), logger)
		plan, err := svc.CreatePlan(ctx, generateOwner, topic, content)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error storing plan: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Created plan %s\n", ui.RenderPass("✓"), plan.ID)
		fmt.Printf("   Topic:    %s\n", plan.Topic)
		fmt.Printf("   Sections: %d\n", len(plan.StructuredContent.Sections))
		fmt.Printf("   Progress: %d%%\n", plan.Progress)

		if generateShow {
			fmt.Printf("\n%s\n", content)
		}
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateOwner, "owner", "local", "owner id for the new plan")
	generateCmd.Flags().BoolVar(&generateShow, "show", false, "print the generated markdown")
}
