package cmd

import (
	"fmt"
	"time"

	"github.com/BikramMondal5/MediVerify/internal/auth"
	"github.com/BikramMondal5/MediVerify/internal/identity"
	"github.com/spf13/cobra"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Mint a bearer token for the API",
		Long: `Signs an HS256 token with MEDIVERIFY_JWT_SECRET for use in the
Authorization header. Without a user id a new guest identity is issued.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("MEDIVERIFY_JWT_SECRET is not set")
			}
			if cmd.Flags().Changed("ttl") {
				cfg.Auth.TokenTTL = ttl
			}

			userID := string(identity.NewGuestToken(time.Now()))
			if len(args) == 1 {
				userID = args[0]
			}
			token, err := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).Issue(userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	return cmd
}
