// Package commands implements the onetask command line.
package commands

import (
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X ...commands.version=v1.2.3".
var version = "dev"

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	debug      bool
	logFormat  string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "onetask",
		Short:         "One task at a time",
		Long:          "Manage tasks and run focus sessions against Supabase or a local Postgres/SQLite database.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default $ONETASK_CONFIG or ~/.config/onetask/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "cli", "Log format: cli, console or json")

	rootCmd.AddCommand(newSignUpCmd(flags))
	rootCmd.AddCommand(newSignInCmd(flags))
	rootCmd.AddCommand(newSignOutCmd(flags))
	rootCmd.AddCommand(newWhoAmICmd(flags))
	rootCmd.AddCommand(newTasksCmd(flags))
	rootCmd.AddCommand(newFocusCmd(flags))
	rootCmd.AddCommand(newSessionsCmd(flags))
	rootCmd.AddCommand(newEventsCmd(flags))
	rootCmd.AddCommand(newMigrateCmd(flags))
	rootCmd.AddCommand(newStatusCmd(flags))

	return rootCmd
}
