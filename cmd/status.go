package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	statusadapter "github.com/bnema/procure-cli/internal/adapters/render/status"
	"github.com/bnema/procure-cli/internal/application"
)

func newStatusCmd(app *app) *cobra.Command {
	var asJSON bool
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the session state, identity, and expiry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := app.newManager()
			if err != nil {
				return err
			}

			if watch {
				return watchStatus(cmd, app, manager)
			}

			if err := manager.Start(cmd.Context()); err != nil {
				return err
			}
			manager.Check(cmd.Context())

			return writeStatusOutput(cmd, app, manager, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-render on every session change until interrupted")
	cmd.MarkFlagsMutuallyExclusive("json", "watch")

	return cmd
}

func writeStatusOutput(cmd *cobra.Command, app *app, manager *application.SessionManager, asJSON bool) error {
	view := statusadapter.ViewFromSession(manager.State(), manager.Session())

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	rendered, err := app.statusRenderer(view, statusadapter.RenderOptions{
		Now:        app.clock.Now(),
		WarnWindow: app.warnWindow,
	})
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

// watchStatus re-renders on every lifecycle transition, whether it came
// from this process, the periodic expiry check, or another process
// touching the shared session record.
func watchStatus(cmd *cobra.Command, app *app, manager *application.SessionManager) error {
	changes := make(chan application.SessionChange, 8)
	manager.OnChange(func(change application.SessionChange) {
		select {
		case changes <- change:
		default:
		}
	})

	if err := manager.Start(cmd.Context()); err != nil {
		return err
	}
	manager.Check(cmd.Context())

	if err := writeStatusOutput(cmd, app, manager, false); err != nil {
		return err
	}

	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case <-changes:
			if err := writeStatusOutput(cmd, app, manager, false); err != nil {
				return err
			}
		}
	}
}
