package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unityvault/ticketflow/internal/auth"
	"github.com/unityvault/ticketflow/internal/domain"
)

func tokenCommand() *cobra.Command {
	var (
		subject string
		roles   []string
		perms   []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token carrying an actor, for adapters and local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(subject) == "" {
				return errors.New("--sub is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			permissions, err := auth.ParsePermissions(perms)
			if err != nil {
				return err
			}
			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
			token, expiresAt, err := tokens.GenerateToken(domain.Actor{
				ID:          subject,
				RoleIDs:     domain.NormalizeRoles(roles),
				Permissions: permissions,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format("2006-01-02T15:04:05Z07:00"))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "actor id")
	cmd.Flags().StringSliceVar(&roles, "roles", nil, "role ids held by the actor")
	cmd.Flags().StringSliceVar(&perms, "perms", nil, "permission names, or \"admin\" for the administrative bundle")
	return cmd
}
