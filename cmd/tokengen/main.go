// Command tokengen mints a service API token.
//
//	tokengen --subject feed-agent --role agent --ttl 720h
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/likefeed/backend/internal/auth"
	"github.com/likefeed/backend/internal/config"
	"github.com/likefeed/backend/internal/rbac"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cfg := config.Load()

	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:          "tokengen",
		Short:        "Mint a service API token signed with API_TOKEN_SECRET",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := auth.GenerateAPIToken(cfg.APITokenSecret, subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "service name the token is issued to")
	cmd.Flags().StringVar(&role, "role", rbac.RoleAgent, "agent or operator")
	cmd.Flags().DurationVar(&ttl, "ttl", cfg.APITokenExpiration, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
