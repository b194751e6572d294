package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/company"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/normalize"
)

// catalogFile is the seed format:
//
//	cities:
//	  - {name: São Paulo, state: SP}
//	niches: [Padaria, Mercado]
type catalogFile struct {
	Cities []struct {
		Name  string `yaml:"name"`
		State string `yaml:"state"`
	} `yaml:"cities"`
	Niches []string `yaml:"niches"`
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the city and niche catalogs",
}

var catalogSeedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Add cities and niches from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "catalog seed: open")
		}
		defer f.Close() //nolint:errcheck

		cat, err := parseCatalog(f)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		cities, niches, err := seedCatalog(ctx, env.Registry, cat)
		if err != nil {
			return err
		}
		zap.L().Info("catalog seeded", zap.Int("cities_added", cities), zap.Int("niches", niches))
		fmt.Fprintf(os.Stderr, "Added %d cities, ensured %d niches.\n", cities, niches)
		return nil
	},
}

func parseCatalog(r io.Reader) (*catalogFile, error) {
	var cat catalogFile
	if err := yaml.NewDecoder(r).Decode(&cat); err != nil && err != io.EOF {
		return nil, eris.Wrap(err, "catalog seed: parse")
	}
	return &cat, nil
}

// seedCatalog inserts cities not yet present (same folded name and state)
// and ensures every niche label.
func seedCatalog(ctx context.Context, reg registryStore, cat *catalogFile) (citiesAdded, niches int, err error) {
	for _, c := range cat.Cities {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		state := strings.ToUpper(strings.TrimSpace(c.State))
		existing, err := reg.FindCitiesByKey(ctx, normalize.Key(name))
		if err != nil {
			return citiesAdded, niches, err
		}
		if hasState(existing, state) {
			continue
		}
		if err := reg.InsertCity(ctx, &company.City{Name: name, State: state}); err != nil {
			return citiesAdded, niches, err
		}
		citiesAdded++
	}
	for _, label := range cat.Niches {
		if strings.TrimSpace(label) == "" {
			continue
		}
		if _, err := reg.EnsureNiche(ctx, label); err != nil {
			return citiesAdded, niches, err
		}
		niches++
	}
	return citiesAdded, niches, nil
}

func hasState(cities []company.City, state string) bool {
	for _, c := range cities {
		if strings.EqualFold(c.State, state) {
			return true
		}
	}
	return false
}

func init() {
	catalogCmd.AddCommand(catalogSeedCmd)
	rootCmd.AddCommand(catalogCmd)
}
