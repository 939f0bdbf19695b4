package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bnema/procure-cli/internal/domain"
)

func newWhoamiCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the identity of the active session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := app.newManager()
			if err != nil {
				return err
			}
			if err := manager.Start(cmd.Context()); err != nil {
				return err
			}

			session := manager.Session()
			if session == nil {
				return fmt.Errorf("not logged in: %w", domain.ErrNoSession)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "subject: %s\n", session.Claims.Subject)
			_, _ = fmt.Fprintf(out, "email: %s\n", session.Claims.Email)
			_, _ = fmt.Fprintf(out, "kind: %s\n", session.Claims.Kind)
			if len(session.Claims.Roles) > 0 {
				_, _ = fmt.Fprintf(out, "roles: %s\n", strings.Join(session.Claims.Roles, ", "))
			}
			return nil
		},
	}
}
