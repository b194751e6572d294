package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/importer"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect and resolve run records",
}

// -- records list --

var recordsListCmd = &cobra.Command{
	Use:   "list <run-id>",
	Short: "List a run's records in upload order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		page, err := env.Service.ListRecords(ctx, importer.RecordFilter{
			RunID:  args[0],
			Status: importer.RecordStatus(status),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			return eris.Wrap(err, "records list")
		}

		formatRecordsList(os.Stdout, page)
		return nil
	},
}

// -- records resolve --

var recordsResolveCmd = &cobra.Command{
	Use:   "resolve <record-id>",
	Short: "Resolve a conflict record",
	Long:  "Applies link_existing, create_new or ignore to a record in conflict. link_existing and create_new need --company.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		action, _ := cmd.Flags().GetString("action")
		res := importer.ConflictResolution{Action: importer.ConflictAction(action)}
		res.ActorID, _ = cmd.Flags().GetString("actor")
		if cmd.Flags().Changed("company") {
			id, _ := cmd.Flags().GetInt64("company")
			res.CompanyID = &id
		}

		rec, err := env.Service.ResolveConflict(ctx, args[0], res)
		if err != nil {
			return eris.Wrap(err, "records resolve")
		}

		zap.L().Info("conflict resolved",
			zap.String("record_id", rec.ID),
			zap.String("action", action),
			zap.String("status", string(rec.Status)),
		)
		return writeJSON(os.Stdout, rec)
	},
}

func init() {
	recordsListCmd.Flags().String("status", "", "filter by status (inserted, updated, conflict, ignored, error)")
	recordsListCmd.Flags().Int("limit", importer.DefaultPageSize, "page size")
	recordsListCmd.Flags().Int("offset", 0, "records to skip")

	recordsResolveCmd.Flags().String("action", "", "link_existing, create_new or ignore (required)")
	recordsResolveCmd.Flags().Int64("company", 0, "target company id")
	recordsResolveCmd.Flags().String("actor", "", "operator id recorded on the record")
	_ = recordsResolveCmd.MarkFlagRequired("action")

	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsResolveCmd)
	rootCmd.AddCommand(recordsCmd)
}
