package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/framecraft/engagement/config"
	dbadapter "github.com/framecraft/engagement/db"
	"github.com/framecraft/engagement/model"
	"github.com/framecraft/engagement/resource"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "engagement",
	Short: "Studio engagement service",
	Long: `Progression and rewards for photography studios: XP and levels,
streaks with freezes, milestones, quests, skill trees, daily bonus and prestige.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and background jobs",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()
		db, err := dbadapter.Open(cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		if err := model.AutoMigrate(db); err != nil {
			return fmt.Errorf("db migrate: %w", err)
		}
		logger.Info("schema up to date", zap.String("mode", cfg.Database.Mode))
		return nil
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the quest, skill and milestone catalog",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Load and validate a catalog directory (default: configured or built-in)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ""
		if len(args) == 1 {
			dir = args[0]
		} else if cfg, err := config.Load(cfgPath); err == nil {
			dir = cfg.Catalog.Dir
		}
		cat, err := resource.NewLoader(dir).Load()
		if err != nil {
			return fmt.Errorf("catalog invalid: %w", err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cat.Summary())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config YAML (env ENGAGE_* overrides)")
	catalogCmd.AddCommand(catalogValidateCmd)
	rootCmd.AddCommand(serveCmd, migrateCmd, catalogCmd)
}

// bootstrap loads configuration and builds the logger.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	var logger *zap.Logger
	if cfg.Server.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
