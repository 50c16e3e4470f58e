package main

import (
	"errors"
	"fmt"

	"github.com/hiroki-koketsu/task-assignment/internal/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd(a *app) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for a stored user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			ctx := cmd.Context()

			store, err := a.openStore(ctx, a.logger.Logger)
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			user, err := store.Users.GetByID(ctx, userID)
			if err != nil {
				return fmt.Errorf("lookup user %s: %w", userID, err)
			}
			token, err := auth.NewTokens(a.cfg.JWTSecret, a.cfg.TokenTTL).Issue(user)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user ID to issue the token for")
	return cmd
}
