package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benvon/onetask/internal/control"
	"github.com/benvon/onetask/internal/dashboard"
	"github.com/benvon/onetask/internal/focus"
	"github.com/benvon/onetask/internal/models"
	"github.com/benvon/onetask/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newFocusCmd(flags *globalFlags) *cobra.Command {
	var (
		minutes     int
		controlAddr string
	)
	cmd := &cobra.Command{
		Use:   "focus <task-id>",
		Short: "Start a focus session on a task",
		Long: "Runs a countdown for one task with notifications held back until it ends. " +
			"With --control-addr the session can also be driven over HTTP.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(app *App) error {
				if err := app.RequireUser(); err != nil {
					return err
				}
				ctrl, err := app.Controller(minutes)
				if err != nil {
					return err
				}
				if err := loadTasks(cmd.Context(), ctrl, false); err != nil {
					return err
				}
				task, err := resolveTask(ctrl, args[0])
				if err != nil {
					return err
				}
				if controlAddr == "" {
					controlAddr = app.Config.ControlAddr
				}
				return runFocus(cmd, app, ctrl, task, controlAddr)
			})
		},
	}
	cmd.Flags().IntVarP(&minutes, "minutes", "m", 0, "Session length in minutes (default from config)")
	cmd.Flags().StringVar(&controlAddr, "control-addr", "", "Serve the focus control API on this address, e.g. 127.0.0.1:7420")
	return cmd
}

func runFocus(cmd *cobra.Command, app *App, ctrl *dashboard.Controller, task models.Task, controlAddr string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := ctrl.StartFocus(ctx, task.ID)
	if err != nil {
		if errors.Is(err, dashboard.ErrTaskCompleted) {
			return fmt.Errorf("%q is already completed; toggle it back to pending first", task.Title)
		}
		return err
	}
	defer session.Close()

	go session.Run(ctx, focus.SystemClock{})

	if controlAddr != "" {
		srv, err := control.NewServer(ctrl, control.Options{
			AllowedOrigins: app.Config.ControlAllowedOrigins,
			Rate:           app.Config.ControlRate,
			Tracing:        app.Config.OTELEnabled,
		}, app.Logger)
		if err != nil {
			return err
		}
		go func() {
			if err := srv.ListenAndServe(ctx, controlAddr); err != nil {
				app.Logger.Error("control_api_failed", zap.Error(err))
			}
		}()
	}

	program := tea.NewProgram(
		tui.NewFocusModel(ctx, session, app.Config.BreakMinutes),
		tea.WithReportFocus(),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	final, err := program.Run()
	if err != nil {
		return fmt.Errorf("focus screen: %w", err)
	}

	if m, ok := final.(tui.FocusModel); ok && m.Result() != nil {
		r := m.Result()
		app.Logger.Debug("focus_screen_closed", zap.String("outcome", string(r.Outcome)))
	}
	return nil
}

func newSessionsCmd(flags *globalFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "sessions <task-id>",
		Short: "Show focus sessions recorded for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			return withTasks(cmd, flags, false, func(app *App, ctrl *dashboard.Controller) error {
				task, err := resolveTask(ctrl, args[0])
				if err != nil {
					return err
				}
				sessions, err := app.History.ByTask(cmd.Context(), task.ID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if output != outputTable {
					return writeStructured(out, output, sessions)
				}
				if len(sessions) == 0 {
					fmt.Fprintf(out, "No focus sessions for %q yet.\n", task.Title)
					return nil
				}
				fmt.Fprintln(out, sessionsTable(sessions))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format: table, json or yaml")
	return cmd
}
