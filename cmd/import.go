package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/fetcher"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/importer"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/schema"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Start an import run",
}

// -- import api --

var importAPICmd = &cobra.Command{
	Use:   "api",
	Short: "Search listings for a city and niche and import them",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		req := importer.APIImportRequest{}
		req.CityID, _ = cmd.Flags().GetInt64("city")
		req.Query, _ = cmd.Flags().GetString("query")
		req.Limit, _ = cmd.Flags().GetInt("limit")
		req.APIKey, _ = cmd.Flags().GetString("api-key")
		req.ActorID, _ = cmd.Flags().GetString("actor")
		if cmd.Flags().Changed("niche") {
			niche, _ := cmd.Flags().GetInt64("niche")
			req.NicheID = &niche
		}
		req.Options = optionsFromFlags(cmd)

		run, err := env.Service.StartAPIImport(ctx, req)
		if err != nil {
			return eris.Wrap(err, "import api")
		}

		zap.L().Info("import complete",
			zap.String("run_id", run.ID),
			zap.Int("found", run.Counters.Found),
			zap.Int("inserted", run.Counters.Inserted),
			zap.Int("updated", run.Counters.Updated),
			zap.Int("conflicts", run.Counters.Conflicts),
		)
		formatRunDetail(os.Stdout, run)
		return nil
	},
}

// -- import upload --

var importUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Stage a CSV, XLSX or JSON upload for review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mappingPath, _ := cmd.Flags().GetString("mapping")
		req, err := buildStageRequest(ctx, args[0], mappingPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("city") {
			city, _ := cmd.Flags().GetInt64("city")
			req.FixedCityID = &city
		}
		if cmd.Flags().Changed("niche") {
			niche, _ := cmd.Flags().GetInt64("niche")
			req.FixedNicheID = &niche
		}
		req.ActorID, _ = cmd.Flags().GetString("actor")
		req.Options = optionsFromFlags(cmd)

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Service.StageUpload(ctx, *req)
		if err != nil {
			return eris.Wrap(err, "import upload")
		}

		zap.L().Info("upload staged",
			zap.String("run_id", run.ID),
			zap.String("file", req.FileName),
			zap.Int("rows", run.Counters.Found),
		)
		formatRunDetail(os.Stdout, run)
		fmt.Fprintf(os.Stderr, "Review with: buscai-import records list %s\n", run.ID)
		return nil
	},
}

// buildStageRequest reads the upload and the optional mapping file.
func buildStageRequest(ctx context.Context, path, mappingPath string) (*importer.StageRequest, error) {
	rows, err := fetcher.ReadFile(ctx, path)
	if err != nil {
		return nil, eris.Wrap(err, "import upload: read file")
	}
	req := &importer.StageRequest{
		Rows:     rows,
		FileName: filepath.Base(path),
	}
	if mappingPath != "" {
		m, err := loadMapping(mappingPath)
		if err != nil {
			return nil, err
		}
		req.Mapping = m
	}
	return req, nil
}

// loadMapping parses a YAML file of field: column pairs, e.g.
//
//	name: Nome Fantasia
//	phone: Telefone
func loadMapping(path string) (schema.Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "import upload: open mapping")
	}
	defer f.Close() //nolint:errcheck
	return parseMapping(f)
}

func parseMapping(r io.Reader) (schema.Mapping, error) {
	var m schema.Mapping
	if err := yaml.NewDecoder(r).Decode(&m); err != nil && err != io.EOF {
		return nil, eris.Wrap(err, "import upload: parse mapping")
	}
	for field := range m {
		if !slices.Contains(schema.Fields(), field) {
			return nil, eris.Errorf("import upload: unknown mapping field %q", field)
		}
	}
	return m, nil
}

func optionsFromFlags(cmd *cobra.Command) importer.Options {
	var o importer.Options
	o.IgnoreDuplicates, _ = cmd.Flags().GetBool("ignore-duplicates")
	o.UpdateExisting, _ = cmd.Flags().GetBool("update-existing")
	o.DryRun, _ = cmd.Flags().GetBool("dry-run")
	o.ActivateCompanies, _ = cmd.Flags().GetBool("activate")
	return o
}

func addOptionFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("ignore-duplicates", false, "skip items matching an existing company")
	cmd.Flags().Bool("update-existing", false, "overwrite non-empty fields of matched companies")
	cmd.Flags().Bool("dry-run", false, "decide every item without touching the registry")
	cmd.Flags().Bool("activate", false, "activate created companies that reach the quality threshold")
	cmd.Flags().String("actor", "", "operator id recorded on the run")
}

func init() {
	importAPICmd.Flags().Int64("city", 0, "city id (required)")
	importAPICmd.Flags().Int64("niche", 0, "niche id")
	importAPICmd.Flags().String("query", "", "search text replacing the niche label")
	importAPICmd.Flags().Int("limit", 0, "max results (default from config)")
	importAPICmd.Flags().String("api-key", "", "search API key for this run only")
	_ = importAPICmd.MarkFlagRequired("city")
	addOptionFlags(importAPICmd)

	importUploadCmd.Flags().String("mapping", "", "YAML file mapping fields to column names")
	importUploadCmd.Flags().Int64("city", 0, "fixed city id for every row")
	importUploadCmd.Flags().Int64("niche", 0, "fixed niche id for every row")
	addOptionFlags(importUploadCmd)

	importCmd.AddCommand(importAPICmd)
	importCmd.AddCommand(importUploadCmd)
	rootCmd.AddCommand(importCmd)
}
