package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/secrets"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage sealed integration secrets",
}

// -- secrets generate-key --

var secretsGenerateKeyCmd = &cobra.Command{
	Use:   "generate-key",
	Short: "Print a new base64 master key for BUSCAI_SECRETS_MASTER_KEY",
	RunE: func(_ *cobra.Command, _ []string) error {
		key, err := secrets.GenerateMasterKey()
		if err != nil {
			return err
		}
		fmt.Println(key)
		return nil
	},
}

// -- secrets set-serpapi-key --

var secretsSetSerpAPIKeyCmd = &cobra.Command{
	Use:   "set-serpapi-key [key]",
	Short: "Seal the search API key in the vault",
	Long:  "Seals the search API key under the configured master key. Reads the key from stdin when no argument is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		key := ""
		if len(args) == 1 {
			key = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return eris.Wrap(err, "secrets: read key")
			}
			key = line
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return eris.New("secrets: key is empty")
		}

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()
		if env.Vault == nil {
			return eris.New("secrets: master key is required (BUSCAI_SECRETS_MASTER_KEY)")
		}

		if err := env.Vault.Set(ctx, secrets.SerpAPIKey, key); err != nil {
			return err
		}
		zap.L().Info("search API key stored")
		return nil
	},
}

// -- secrets rotate --

var secretsRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Re-seal stored secrets under a new master key",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		newKeyB64, _ := cmd.Flags().GetString("new-key")
		newKey, err := secrets.ParseMasterKey(newKeyB64)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()
		if env.Vault == nil {
			return eris.New("secrets: current master key is required (BUSCAI_SECRETS_MASTER_KEY)")
		}

		if err := env.Vault.Rotate(ctx, newKey, secrets.SerpAPIKey); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "Secrets re-sealed. Update BUSCAI_SECRETS_MASTER_KEY to the new key.")
		return nil
	},
}

func init() {
	secretsRotateCmd.Flags().String("new-key", "", "new base64 master key (required)")
	_ = secretsRotateCmd.MarkFlagRequired("new-key")

	secretsCmd.AddCommand(secretsGenerateKeyCmd)
	secretsCmd.AddCommand(secretsSetSerpAPIKeyCmd)
	secretsCmd.AddCommand(secretsRotateCmd)
	rootCmd.AddCommand(secretsCmd)
}
