package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/sampleops/auth"
)

func newTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		roles   []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with the configured jwt secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			if !cfg.Server.JWT.Enabled() {
				return errors.New("server.jwt.secret is not configured")
			}

			authn := auth.NewJWTAuthenticator(cfg.JWTConfig(),
				auth.NewStaticKeyProvider([]byte(cfg.Server.JWT.Secret)))
			token, err := authn.Issue(cmd.Context(), subject, roles, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "token subject")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role to grant (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime; 0 issues a token without expiry")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
