package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/config"
)

var (
	cfg *config.Config

	configPath   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "buscai-import",
	Short: "Business listing import and dedup pipeline",
	Long: "Imports listings from the search API or operator uploads into the company registry, " +
		"deduplicating against existing companies and staging ambiguous rows for review.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.LoadFrom(configPath)
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if logLevelFlag != "" {
			loaded.Log.Level = logLevelFlag
		}
		if err := config.InitLogger(loaded.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		cfg = loaded
		zap.L().Debug("config loaded", zap.String("command", cmd.CommandPath()), zap.String("driver", cfg.Store.Driver))
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "override log.level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
