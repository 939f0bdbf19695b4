package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "procure",
		Short:         "Procurement platform CLI: authenticated API access from the terminal",
		Long:          "procure signs in to the procurement platform, keeps the session record in sync across processes, silently renews expiring tokens, and sends authenticated API requests.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newLoginCmd(app),
		newLogoutCmd(app),
		newRenewCmd(app),
		newStatusCmd(app),
		newWhoamiCmd(app),
		newRequestCmd(app),
	)

	return rootCmd
}
