package cmd

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/botfleet/internal/config"
	"github.com/nextlevelbuilder/botfleet/internal/store"
	"github.com/nextlevelbuilder/botfleet/internal/store/pg"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/botfleet/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "botfleet",
	Short: "botfleet: multi-tenant Telegram bot platform",
	Long:  "botfleet runs many Telegram bots (stores, student verification, points) from one process, with an admin API to manage them.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadDotEnv()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFleet()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json or $BOTFLEET_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(botsCmd())
	rootCmd.AddCommand(importSQLiteCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("botfleet %s\n", Version)
		},
	}
}

// loadDotEnv fills unset environment variables from the env file. A
// missing file is not an error.
func loadDotEnv() {
	if envFile == "" {
		return
	}
	if _, err := os.Stat(envFile); err != nil {
		return
	}
	if err := godotenv.Load(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %s: %v\n", envFile, err)
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("BOTFLEET_CONFIG"); v != "" {
		return v
	}
	return "config.json"
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func resolveDSN(cfg *config.Config) (string, error) {
	if cfg.Database.PostgresDSN == "" {
		return "", fmt.Errorf("BOTFLEET_POSTGRES_DSN environment variable is not set")
	}
	return cfg.Database.PostgresDSN, nil
}

// openStores connects to Postgres. The caller closes the returned pool.
func openStores(cfg *config.Config) (*store.Stores, *sql.DB, error) {
	dsn, err := resolveDSN(cfg)
	if err != nil {
		return nil, nil, err
	}
	return pg.NewPGStores(store.StoreConfig{PostgresDSN: dsn})
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
