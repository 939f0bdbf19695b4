package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bnema/procure-cli/internal/adapters/authapi"
	"github.com/bnema/procure-cli/internal/domain"
)

func newLoginCmd(app *app) *cobra.Command {
	var email string
	var password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and persist the session for every process on this machine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("PROCURE_PASSWORD")
			}
			if password == "" {
				return errors.New("password is required: pass --password or set PROCURE_PASSWORD")
			}

			manager, err := app.newManager()
			if err != nil {
				return err
			}

			var session domain.Session
			exchange := func(ctx context.Context) error {
				var loginErr error
				session, loginErr = app.authClient.Login(ctx, authapi.Credentials{
					Email:    email,
					Password: password,
				})
				return loginErr
			}

			if err := runExchangeSpinner(cmd.Context(), cmd.ErrOrStderr(), "Signing in...", exchange); err != nil {
				return fmt.Errorf("login: %w", err)
			}

			if err := manager.Login(cmd.Context(), session); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (expires %s)\n",
				session.Claims.Email, session.ExpiresAt.Local().Format("15:04:05"))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (falls back to PROCURE_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
