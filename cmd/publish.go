package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/importer"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish staged upload records into the registry",
}

// -- publish run --

var publishRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Publish every staged record of a manual run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.PublishRun(ctx, args[0], publishOptions(cmd))
		if err != nil {
			return eris.Wrap(err, "publish run")
		}

		zap.L().Info("run published",
			zap.String("run_id", args[0]),
			zap.Int("processed", res.Processed),
			zap.Int("inserted", res.Delta.Inserted),
			zap.Int("deduped", res.Delta.Deduped),
			zap.Int("errors", res.Delta.Errors),
		)
		formatPublishResult(os.Stdout, res)
		return nil
	},
}

// -- publish record --

var publishRecordCmd = &cobra.Command{
	Use:   "record <record-id>",
	Short: "Publish one staged record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Service.PublishRecord(ctx, args[0], publishOptions(cmd))
		if err != nil {
			return eris.Wrap(err, "publish record")
		}
		return writeJSON(os.Stdout, rec)
	},
}

func publishOptions(cmd *cobra.Command) importer.PublishOptions {
	var o importer.PublishOptions
	o.Force, _ = cmd.Flags().GetBool("force")
	o.ActorID, _ = cmd.Flags().GetString("actor")
	return o
}

func init() {
	for _, c := range []*cobra.Command{publishRunCmd, publishRecordCmd} {
		c.Flags().Bool("force", false, "create new companies even when a duplicate exists")
		c.Flags().String("actor", "", "operator id recorded on published records")
		publishCmd.AddCommand(c)
	}
	rootCmd.AddCommand(publishCmd)
}
