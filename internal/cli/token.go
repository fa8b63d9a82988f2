package cli

import (
	"fmt"
	"time"

	"storefront-wallet/internal/auth"
	"storefront-wallet/internal/rbac"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().String("role", rbac.RoleService, "Access role carried by the token (service or admin)")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
}

var tokenCmd = &cobra.Command{
	Use:   "token NAME",
	Short: "Issue an access token for an event producer or operator",
	Long: `Issue a signed access token. Service tokens authorize POST /internal/events;
admin tokens authorize the /v1/admin routes. NAME becomes the token subject.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if role != rbac.RoleService && role != rbac.RoleAdmin {
			return fmt.Errorf("role must be %q or %q", rbac.RoleService, rbac.RoleAdmin)
		}
		if ttl <= 0 {
			return fmt.Errorf("ttl must be positive")
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		m, err := auth.NewManager(cfg.Auth)
		if err != nil {
			return err
		}
		tok, err := m.IssueServiceToken(time.Now(), args[0], role, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}
