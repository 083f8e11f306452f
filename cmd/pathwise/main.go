package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pathwise/pathwise/internal/config"
	"github.com/pathwise/pathwise/internal/store"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "pathwise",
	Short: "AI-generated learning plans with live progress tracking",
	Long: `Pathwise generates structured learning plans from a topic, stores them
as versioned documents, and keeps concurrent sessions consistent through
version-guarded writes.

Configuration is read from pathwise.yaml and PATHWISE_* environment
variables; see 'pathwise serve --help' to get started.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./pathwise.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(loadtestCmd)
}

// loadConfig resolves the effective configuration for a command.
func loadConfig() *config.Config {
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// openStore opens the database and ensures the schema exists.
func openStore(cfg *config.Config) *store.DB {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}
	return db
}
