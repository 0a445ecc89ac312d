package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/benvon/onetask/internal/models"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"
)

// Output formats
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func validateOutput(format string) error {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return nil
	}
	return fmt.Errorf("invalid output format %q (want table, json or yaml)", format)
}

// writeStructured writes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	}
	return validateOutput(format)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	doneStyle   = lipgloss.NewStyle().Padding(0, 1).Faint(true)
)

func renderTable(headers []string, rows [][]string, faint func(row int) bool) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case faint != nil && faint(row):
				return doneStyle
			default:
				return cellStyle
			}
		}).
		String()
}

func shortID(id fmt.Stringer) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func tasksTable(tasks []models.Task) string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		due := ""
		if t.DueDate != nil {
			due = formatDue(*t.DueDate)
		}
		rows = append(rows, []string{
			shortID(t.ID),
			statusMark(t.Status),
			t.Title,
			strconv.Itoa(t.Priority),
			due,
			strings.Join(t.Tags, ", "),
		})
	}
	return renderTable(
		[]string{"ID", "", "TITLE", "PRI", "DUE", "TAGS"},
		rows,
		func(row int) bool { return row >= 0 && row < len(tasks) && tasks[row].IsCompleted() },
	)
}

func statusMark(s models.TaskStatus) string {
	if s == models.TaskStatusCompleted {
		return "[x]"
	}
	return "[ ]"
}

func formatDue(raw string) string {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.Format(time.DateOnly)
	}
	return raw
}

func sessionsTable(sessions []models.FocusSession) string {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		end := ""
		if s.EndTime != nil {
			end = s.EndTime.Local().Format(time.TimeOnly)
		}
		notes := ""
		if s.Notes != nil {
			notes = *s.Notes
		}
		done := "no"
		if s.Completed {
			done = "yes"
		}
		rows = append(rows, []string{
			s.StartTime.Local().Format(time.DateTime),
			end,
			strconv.Itoa(s.Duration) + "m",
			done,
			notes,
		})
	}
	return renderTable([]string{"STARTED", "ENDED", "LENGTH", "COMPLETED", "NOTES"}, rows, nil)
}
