// Package cli implements walletctl, the operator command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"storefront-wallet/internal/bootstrap"
	"storefront-wallet/internal/config"
	"storefront-wallet/pkg/logger"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "walletctl",
	Short: "Operate the storefront wallet ledger",
	Long: `walletctl inspects and corrects storefront wallets directly against the
ledger database. It reads the same environment (and CONFIG_FILE) as the API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "Print results as JSON")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig is replaced in tests.
var loadConfig = config.Load

// openDeps loads config and connects to the ledger. The caller must Close.
func openDeps(cmd *cobra.Command) (*bootstrap.Deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.App.AutoMigrate = false
	ctx := logger.With(cmd.Context(), logger.NewWithWriter(cfg.App.Env, cmd.ErrOrStderr()))
	cmd.SetContext(ctx)
	return bootstrap.Open(ctx, cfg)
}

// printResult writes v as indented JSON when --json is set, otherwise calls text.
func printResult(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(out)
	return nil
}
