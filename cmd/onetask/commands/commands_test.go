package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/benvon/onetask/internal/backend"
	"github.com/benvon/onetask/internal/dashboard"
	"github.com/benvon/onetask/internal/focus"
	"github.com/benvon/onetask/internal/models"
	"github.com/benvon/onetask/internal/notify"
	"github.com/benvon/onetask/internal/taskstore"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

func TestTaskFields_CreateInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		fields      taskFields
		expectError bool
		validate    func(*testing.T, models.CreateTaskInput)
	}{
		{
			name:   "full input",
			fields: taskFields{title: "  Write report ", description: "Q3", priority: 3, due: "2024-05-01", tags: "work, urgent,work"},
			validate: func(t *testing.T, in models.CreateTaskInput) {
				if in.Title != "Write report" {
					t.Errorf("Expected trimmed title, got %q", in.Title)
				}
				if in.Description == nil || *in.Description != "Q3" {
					t.Errorf("Expected description, got %v", in.Description)
				}
				if in.DueDate == nil || *in.DueDate != "2024-05-01T00:00:00Z" {
					t.Errorf("Expected normalized due date, got %v", in.DueDate)
				}
				if len(in.Tags) != 2 || in.Tags[0] != "work" || in.Tags[1] != "urgent" {
					t.Errorf("Expected deduplicated tags, got %v", in.Tags)
				}
			},
		},
		{
			name:   "blank optional fields",
			fields: taskFields{title: "Only a title"},
			validate: func(t *testing.T, in models.CreateTaskInput) {
				if in.Description != nil || in.DueDate != nil {
					t.Errorf("Expected nil optional fields, got %+v", in)
				}
				if in.Priority != 0 {
					t.Errorf("Expected priority left for the store to default, got %d", in.Priority)
				}
			},
		},
		{name: "priority out of range", fields: taskFields{title: "x", priority: 9}, expectError: true},
		{name: "bad due date", fields: taskFields{title: "x", due: "next week"}, expectError: true},
		{name: "empty title", fields: taskFields{title: "   "}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in, err := tt.fields.createInput()
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			tt.validate(t, in)
		})
	}
}

func TestTaskFields_Patch(t *testing.T) {
	t.Parallel()

	changed := func(names ...string) func(string) bool {
		return func(n string) bool {
			for _, name := range names {
				if name == n {
					return true
				}
			}
			return false
		}
	}

	f := taskFields{title: "New", priority: 2, status: "completed", tags: "a,b"}
	p, err := f.patch(changed("title", "priority", "status", "tags"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p.Title == nil || *p.Title != "New" || p.Priority == nil || *p.Priority != 2 {
		t.Errorf("Expected title and priority, got %+v", p)
	}
	if p.Status == nil || *p.Status != models.TaskStatusCompleted {
		t.Errorf("Expected completed status, got %v", p.Status)
	}
	if p.Description != nil || p.DueDate != nil {
		t.Error("Expected unchanged fields to stay nil")
	}

	if _, err := f.patch(changed()); err == nil {
		t.Error("Expected error for an empty patch")
	}
	bad := taskFields{status: "archived"}
	if _, err := bad.patch(changed("status")); err == nil {
		t.Error("Expected error for an invalid status")
	}
}

type listOnly struct {
	rows []models.Task
}

func (l *listOnly) ListTasks(context.Context, uuid.UUID) ([]models.Task, error) { return l.rows, nil }
func (l *listOnly) InsertTask(context.Context, backend.NewTask) (*models.Task, error) {
	return nil, errors.New("read only")
}
func (l *listOnly) UpdateTask(context.Context, backend.Match, backend.TaskChanges) (*models.Task, error) {
	return nil, errors.New("read only")
}
func (l *listOnly) DeleteTask(context.Context, backend.Match) (int, error) { return 0, errors.New("read only") }

func TestResolveTask(t *testing.T) {
	t.Parallel()

	a := models.Task{ID: uuid.MustParse("aaaa1111-0000-0000-0000-000000000001"), Title: "a"}
	b := models.Task{ID: uuid.MustParse("aaaa2222-0000-0000-0000-000000000002"), Title: "b"}
	users := taskstore.UserSourceFunc(func() (uuid.UUID, error) { return uuid.New(), nil })
	store := taskstore.New(&listOnly{rows: []models.Task{b, a}}, users)
	n := notify.NewLocal(notify.PermissionDenied, notify.PermissionDenied, nil)
	ctrl := dashboard.New(store, focus.NewSuppressor(n, nil))
	if err := loadTasks(context.Background(), ctrl, true); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	tests := []struct {
		arg     string
		want    string
		wantErr bool
	}{
		{arg: a.ID.String(), want: "a"},
		{arg: "aaaa2", want: "b"},
		{arg: "AAAA1", want: "a"},
		{arg: "aaaa", wantErr: true},
		{arg: "ffff", wantErr: true},
		{arg: uuid.New().String(), wantErr: true},
	}
	for _, tt := range tests {
		got, err := resolveTask(ctrl, tt.arg)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error, got %s", tt.arg, got.Title)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.arg, err)
			continue
		}
		if got.Title != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.arg, tt.want, got.Title)
		}
	}
}

func TestWriteStructured(t *testing.T) {
	t.Parallel()

	tasks := []models.Task{{ID: uuid.New(), Title: "one", Status: models.TaskStatusPending, Tags: []string{"x"}}}

	var js bytes.Buffer
	if err := writeStructured(&js, outputJSON, tasks); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatalf("Expected valid JSON: %v", err)
	}
	if decoded[0]["title"] != "one" {
		t.Errorf("Expected title 'one', got %v", decoded[0]["title"])
	}

	var ym bytes.Buffer
	if err := writeStructured(&ym, outputYAML, map[string]string{"title": "one"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var back map[string]string
	if err := yaml.Unmarshal(ym.Bytes(), &back); err != nil || back["title"] != "one" {
		t.Errorf("Expected YAML round trip, got %v, %v", back, err)
	}

	if err := writeStructured(&ym, "xml", tasks); err == nil {
		t.Error("Expected unknown format to be rejected")
	}
}

func TestTasksTable(t *testing.T) {
	t.Parallel()

	due := "2024-05-01T00:00:00Z"
	out := tasksTable([]models.Task{
		{ID: uuid.MustParse("12345678-0000-0000-0000-000000000000"), Title: "Write report", Priority: 3, DueDate: &due, Tags: []string{"work", "q3"}},
		{ID: uuid.New(), Title: "Done thing", Status: models.TaskStatusCompleted},
	})
	for _, want := range []string{"12345678", "Write report", "2024-05-01", "work, q3", "[x]", "[ ]"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected table to contain %q:\n%s", want, out)
		}
	}
}

func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	for _, path := range [][]string{
		{"signup"}, {"signin"}, {"signout"}, {"whoami"},
		{"tasks", "list"}, {"tasks", "add"}, {"tasks", "update"}, {"tasks", "toggle"}, {"tasks", "rm"},
		{"focus"}, {"sessions"}, {"events"}, {"migrate"}, {"status"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd == nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("Expected command %v, got %v, %v", path, cmd, err)
		}
	}
	if root.Version != version {
		t.Errorf("Expected version %q, got %q", version, root.Version)
	}
}

type stubCheck struct{ err error }

func (s stubCheck) HealthCheck(context.Context) error { return s.err }

func TestRunChecks(t *testing.T) {
	t.Parallel()

	results, healthy := runChecks(context.Background(), map[string]healthChecker{
		"backend": stubCheck{},
		"cache":   stubCheck{err: errors.New("connection refused")},
	})
	if healthy {
		t.Error("Expected overall unhealthy")
	}
	if results["backend"] != "healthy" {
		t.Errorf("Expected backend healthy, got %q", results["backend"])
	}
	if results["cache"] != "unhealthy: connection refused" {
		t.Errorf("Expected cache failure, got %q", results["cache"])
	}

	if _, healthy := runChecks(context.Background(), nil); !healthy {
		t.Error("Expected no checks to be healthy")
	}
}
