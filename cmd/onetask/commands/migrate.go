package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations (postgres and sqlite backends)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(app *App) error {
				if app.DB == nil {
					return errors.New("migrate only applies to the postgres and sqlite backends")
				}
				if err := app.DB.Migrate(cmd.Context()); err != nil {
					return err
				}
				version, err := app.DB.SchemaVersion(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Schema is at version %d\n", version)
				return nil
			})
		},
	}
}
