package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a run, its records or its companies as CSV or XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		formatFlag, _ := cmd.Flags().GetString("format")
		kindFlag, _ := cmd.Flags().GetString("kind")
		outPath, _ := cmd.Flags().GetString("out")

		format, err := export.ParseFormat(formatFlag)
		if err != nil {
			return err
		}
		kind, err := export.ParseKind(kindFlag)
		if err != nil {
			return err
		}
		if format == export.FormatXLSX && outPath == "" {
			return eris.New("export: --out is required for xlsx")
		}

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		t, err := export.RunExport(ctx, env.Service, args[0], kind)
		if err != nil {
			return eris.Wrap(err, "export")
		}

		var w io.Writer = os.Stdout
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return eris.Wrap(err, "export: create output")
			}
			defer f.Close() //nolint:errcheck
			w = f
		}
		if err := export.Write(w, format, t); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("run_id", args[0]),
			zap.String("kind", string(kind)),
			zap.Int("rows", len(t.Rows)),
			zap.String("out", outPath),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("format", "csv", "csv or xlsx")
	exportCmd.Flags().String("kind", "records", "run, records or companies")
	exportCmd.Flags().String("out", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}
