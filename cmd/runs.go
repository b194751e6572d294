package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/importer"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect import runs",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List import runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		status, _ := cmd.Flags().GetString("status")
		source, _ := cmd.Flags().GetString("source")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		runs, err := env.Service.ListRuns(ctx, importer.RunFilter{
			Status: importer.RunStatus(status),
			Source: importer.SourceKind(source),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Service.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, run)
		}
		formatRunDetail(os.Stdout, run)
		return nil
	},
}

// -- runs invalidate --

var runsInvalidateCmd = &cobra.Command{
	Use:   "invalidate <run-id>",
	Short: "Mark a finished run invalidated",
	Long:  "Marks a done run invalidated for audit. Companies it created or updated are left as they are.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		actor, _ := cmd.Flags().GetString("actor")
		run, err := env.Service.InvalidateRun(ctx, args[0], actor)
		if err != nil {
			return eris.Wrap(err, "runs invalidate")
		}

		zap.L().Info("run invalidated", zap.String("run_id", run.ID), zap.String("actor", actor))
		formatRunDetail(os.Stdout, run)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by status (pending, running, done, failed, invalidated)")
	runsListCmd.Flags().String("source", "", "filter by source (api_search, manual_upload)")
	runsListCmd.Flags().Int("limit", importer.DefaultPageSize, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "runs to skip")

	runsShowCmd.Flags().Bool("json", false, "print the run as JSON")

	runsInvalidateCmd.Flags().String("actor", "", "operator id recorded on the run")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsInvalidateCmd)
	rootCmd.AddCommand(runsCmd)
}
