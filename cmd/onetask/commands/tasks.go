package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benvon/onetask/internal/dashboard"
	"github.com/benvon/onetask/internal/models"
	"github.com/benvon/onetask/internal/validation"
	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newTasksCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task", "t"},
		Short:   "List and manage tasks",
	}
	cmd.AddCommand(newTasksListCmd(flags))
	cmd.AddCommand(newTasksAddCmd(flags))
	cmd.AddCommand(newTasksUpdateCmd(flags))
	cmd.AddCommand(newTasksToggleCmd(flags))
	cmd.AddCommand(newTasksRemoveCmd(flags))
	return cmd
}

// loadTasks fetches tasks and surfaces a recorded fetch failure.
func loadTasks(ctx context.Context, ctrl *dashboard.Controller, force bool) error {
	ctrl.Refresh(ctx, force)
	if err := ctrl.Store().Err(); err != nil {
		return err
	}
	return nil
}

// resolveTask accepts a full id or an unambiguous prefix of one.
func resolveTask(ctrl *dashboard.Controller, arg string) (models.Task, error) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	if id, err := uuid.Parse(arg); err == nil {
		if t, ok := ctrl.Store().Find(id); ok {
			return t, nil
		}
		return models.Task{}, fmt.Errorf("%w: %s", dashboard.ErrTaskNotFound, arg)
	}

	var matches []models.Task
	for _, t := range ctrl.View(dashboard.FilterAll) {
		if strings.HasPrefix(t.ID.String(), arg) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return models.Task{}, fmt.Errorf("%w: %s", dashboard.ErrTaskNotFound, arg)
	case 1:
		return matches[0], nil
	default:
		return models.Task{}, fmt.Errorf("task id %q is ambiguous (%d matches)", arg, len(matches))
	}
}

// withTasks requires a signed-in user, builds the controller and loads tasks.
func withTasks(cmd *cobra.Command, flags *globalFlags, force bool, fn func(*App, *dashboard.Controller) error) error {
	return withApp(cmd.Context(), flags, func(app *App) error {
		if err := app.RequireUser(); err != nil {
			return err
		}
		ctrl, err := app.Controller(0)
		if err != nil {
			return err
		}
		if err := loadTasks(cmd.Context(), ctrl, force); err != nil {
			return err
		}
		return fn(app, ctrl)
	})
}

func newTasksListCmd(flags *globalFlags) *cobra.Command {
	var (
		filter  string
		output  string
		refresh bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := dashboard.ParseFilter(filter)
			if err != nil {
				return err
			}
			if err := validateOutput(output); err != nil {
				return err
			}
			return withTasks(cmd, flags, refresh, func(app *App, ctrl *dashboard.Controller) error {
				tasks := ctrl.View(f)
				out := cmd.OutOrStdout()
				if output != outputTable {
					return writeStructured(out, output, tasks)
				}
				if len(tasks) == 0 {
					fmt.Fprintln(out, "No tasks.")
					return nil
				}
				pending, completed := ctrl.Counts()
				fmt.Fprintln(out, tasksTable(tasks))
				fmt.Fprintf(out, "%d pending, %d completed\n", pending, completed)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "all", "Filter: all, pending or completed")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format: table, json or yaml")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass the cache")
	return cmd
}

type taskFields struct {
	title       string
	description string
	priority    int
	due         string
	tags        string
	status      string
}

func nonEmpty(label string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", label)
		}
		return nil
	}
}

func optionalDueDate(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	_, err := validation.NormalizeDueDate(s)
	return err
}

func priorityOptions() []huh.Option[int] {
	return []huh.Option[int]{
		huh.NewOption("1 - Low", 1),
		huh.NewOption("2", 2),
		huh.NewOption("3 - Medium", 3),
		huh.NewOption("4", 4),
		huh.NewOption("5 - High", 5),
	}
}

func taskForm(f *taskFields) error {
	if f.priority == 0 {
		f.priority = models.DefaultPriority
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Title").Value(&f.title).Validate(nonEmpty("title")),
			huh.NewText().Title("Description").Value(&f.description),
			huh.NewSelect[int]().Title("Priority").Options(priorityOptions()...).Value(&f.priority),
			huh.NewInput().Title("Due date").Placeholder("YYYY-MM-DD").Value(&f.due).Validate(optionalDueDate),
			huh.NewInput().Title("Tags").Placeholder("comma separated").Value(&f.tags),
		),
	).Run()
}

func (f taskFields) createInput() (models.CreateTaskInput, error) {
	in := models.CreateTaskInput{Title: f.title, Priority: f.priority}
	if f.priority != 0 {
		if err := validation.ValidateFormPriority(f.priority); err != nil {
			return in, err
		}
	}
	if d := strings.TrimSpace(f.description); d != "" {
		in.Description = &d
	}
	if strings.TrimSpace(f.due) != "" {
		due, err := validation.NormalizeDueDate(f.due)
		if err != nil {
			return in, err
		}
		in.DueDate = &due
	}
	in.Tags = validation.ParseTags(f.tags)
	if err := validation.PrepareCreateInput(&in); err != nil {
		return in, err
	}
	return in, nil
}

func newTasksAddCmd(flags *globalFlags) *cobra.Command {
	f := &taskFields{}
	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Add a task (opens a form when no title is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.title = strings.Join(args, " ")
			if strings.TrimSpace(f.title) == "" {
				if err := taskForm(f); err != nil {
					return err
				}
			}
			in, err := f.createInput()
			if err != nil {
				return err
			}
			return withTasks(cmd, flags, false, func(app *App, ctrl *dashboard.Controller) error {
				task, err := ctrl.AddTask(cmd.Context(), in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s %s\n", shortID(task.ID), task.Title)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&f.description, "description", "d", "", "Description")
	cmd.Flags().IntVarP(&f.priority, "priority", "p", 0, "Priority 1-5 (default 1)")
	cmd.Flags().StringVar(&f.due, "due", "", "Due date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&f.tags, "tags", "", "Comma separated tags")
	return cmd
}

func (f taskFields) patch(changed func(string) bool) (models.TaskPatch, error) {
	var p models.TaskPatch
	if changed("title") {
		p.Title = &f.title
	}
	if changed("description") {
		p.Description = &f.description
	}
	if changed("priority") {
		if err := validation.ValidateFormPriority(f.priority); err != nil {
			return p, err
		}
		p.Priority = &f.priority
	}
	if changed("due") {
		due, err := validation.NormalizeDueDate(f.due)
		if err != nil {
			return p, err
		}
		p.DueDate = &due
	}
	if changed("tags") {
		p.Tags = validation.ParseTags(f.tags)
	}
	if changed("status") {
		if err := validation.ValidateTaskStatus(f.status); err != nil {
			return p, err
		}
		status := models.TaskStatus(f.status)
		p.Status = &status
	}
	if p.Empty() {
		return p, errors.New("nothing to update (pass at least one flag)")
	}
	if err := validation.PreparePatch(&p); err != nil {
		return p, err
	}
	return p, nil
}

func newTasksUpdateCmd(flags *globalFlags) *cobra.Command {
	f := &taskFields{}
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a task's fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := f.patch(cmd.Flags().Changed)
			if err != nil {
				return err
			}
			return withTasks(cmd, flags, false, func(app *App, ctrl *dashboard.Controller) error {
				task, err := resolveTask(ctrl, args[0])
				if err != nil {
					return err
				}
				updated, err := ctrl.UpdateTask(cmd.Context(), task.ID, patch)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s %s\n", shortID(updated.ID), updated.Title)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.title, "title", "", "Title")
	cmd.Flags().StringVarP(&f.description, "description", "d", "", "Description")
	cmd.Flags().IntVarP(&f.priority, "priority", "p", 0, "Priority 1-5")
	cmd.Flags().StringVar(&f.due, "due", "", "Due date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&f.tags, "tags", "", "Comma separated tags (replaces existing)")
	cmd.Flags().StringVar(&f.status, "status", "", "pending or completed")
	return cmd
}

func newTasksToggleCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Mark a task completed, or pending again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTasks(cmd, flags, false, func(app *App, ctrl *dashboard.Controller) error {
				task, err := resolveTask(ctrl, args[0])
				if err != nil {
					return err
				}
				updated, err := ctrl.ToggleStatus(cmd.Context(), task.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", statusMark(updated.Status), shortID(updated.ID), updated.Title)
				return nil
			})
		},
	}
}

func newTasksRemoveCmd(flags *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTasks(cmd, flags, false, func(app *App, ctrl *dashboard.Controller) error {
				task, err := resolveTask(ctrl, args[0])
				if err != nil {
					return err
				}
				if !yes {
					confirmed := false
					err := huh.NewConfirm().
						Title(fmt.Sprintf("Delete %q?", task.Title)).
						Value(&confirmed).
						Run()
					if err != nil {
						return err
					}
					if !confirmed {
						return nil
					}
				}
				if err := ctrl.Delete(cmd.Context(), task.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %s\n", shortID(task.ID), task.Title)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
