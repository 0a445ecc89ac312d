package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/onetask/internal/queue"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newEventsCmd(flags *globalFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow focus and notification events for the signed-in user",
		Long:  "Streams events published by other onetask clients. Requires rabbitmq_url.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != outputJSON && output != "text" {
				return fmt.Errorf("invalid output format %q (want text or json)", output)
			}
			return withApp(cmd.Context(), flags, func(app *App) error {
				userID, err := app.Auth.CurrentUserID()
				if err != nil {
					return app.RequireUser()
				}
				if app.Broker == nil {
					return errors.New("no event broker configured (set rabbitmq_url)")
				}

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				var sub queue.Subscriber = app.Broker
				msgs, errs, err := sub.Subscribe(ctx, userID.String())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for {
					select {
					case <-ctx.Done():
						return nil
					case err, ok := <-errs:
						if ok && err != nil {
							return err
						}
						errs = nil
					case msg, ok := <-msgs:
						if !ok {
							return nil
						}
						if output == outputJSON {
							if err := writeStructured(out, outputJSON, msg.Event); err != nil {
								return err
							}
						} else {
							fmt.Fprintf(out, "%s  %-32s %v\n", msg.Event.CreatedAt.Local().Format(time.TimeOnly), msg.Event.Type, msg.Event.Payload)
						}
						if err := msg.Ack(); err != nil {
							app.Logger.Warn("failed_to_ack_event", zap.Error(err))
						}
					}
				}
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text or json")
	return cmd
}
