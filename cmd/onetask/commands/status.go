package commands

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatusResponse is the status command output.
type StatusResponse struct {
	Status    string            `json:"status" yaml:"status"`
	Timestamp string            `json:"timestamp" yaml:"timestamp"`
	Backend   string            `json:"backend" yaml:"backend"`
	User      string            `json:"user,omitempty" yaml:"user,omitempty"`
	Checks    map[string]string `json:"checks" yaml:"checks"`
}

func runChecks(ctx context.Context, checks map[string]healthChecker) (map[string]string, bool) {
	results := make(map[string]string, len(checks))
	healthy := true
	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			healthy = false
			results[name] = "unhealthy: " + err.Error()
			continue
		}
		results[name] = "healthy"
	}
	return results, healthy
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the backend, cache and event broker connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			return withApp(cmd.Context(), flags, func(app *App) error {
				checks := map[string]healthChecker{}
				if hc, ok := app.Backend.(healthChecker); ok {
					checks["backend"] = hc
				}
				if app.Redis != nil {
					checks["cache"] = redisChecker{app.Redis}
				}
				if app.Broker != nil {
					checks["events"] = app.Broker
				}

				results, healthy := runChecks(cmd.Context(), checks)
				resp := StatusResponse{
					Status:    "healthy",
					Timestamp: time.Now().UTC().Format(time.RFC3339),
					Backend:   app.Config.Backend,
					Checks:    results,
				}
				if !healthy {
					resp.Status = "unhealthy"
				}
				if u := app.Auth.User(); u != nil {
					resp.User = u.Email
				}

				out := cmd.OutOrStdout()
				if output != outputTable {
					if err := writeStructured(out, output, resp); err != nil {
						return err
					}
				} else {
					names := make([]string, 0, len(results))
					for name := range results {
						names = append(names, name)
					}
					sort.Strings(names)
					rows := make([][]string, 0, len(names))
					for _, name := range names {
						rows = append(rows, []string{name, results[name]})
					}
					fmt.Fprintf(out, "Backend: %s\n", resp.Backend)
					if resp.User != "" {
						fmt.Fprintf(out, "User:    %s\n", resp.User)
					}
					fmt.Fprintln(out, renderTable([]string{"CHECK", "STATUS"}, rows, nil))
				}
				if !healthy {
					return fmt.Errorf("one or more checks failed")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format: table, json or yaml")
	return cmd
}
