package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newRenewCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "renew",
		Short: "Exchange the refresh token for a fresh session now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := app.newManager()
			if err != nil {
				return err
			}
			if err := manager.Start(cmd.Context()); err != nil {
				return err
			}

			renew := func(ctx context.Context) error {
				return manager.RenewNow(ctx)
			}
			if err := runExchangeSpinner(cmd.Context(), cmd.ErrOrStderr(), "Renewing session...", renew); err != nil {
				return err
			}

			session := manager.Session()
			if session == nil {
				return fmt.Errorf("renewal left no active session")
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Session renewed (expires %s)\n",
				session.ExpiresAt.Local().Format("15:04:05"))
			return nil
		},
	}
}
