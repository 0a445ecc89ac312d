package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benvon/onetask/internal/backend"
	"github.com/benvon/onetask/internal/models"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const testAnonKey = "anon-key"

type capturedRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Header http.Header
	Body   map[string]any
}

type recorder struct {
	mu       sync.Mutex
	requests []capturedRequest
}

func (r *recorder) last() capturedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[len(r.requests)-1]
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  map[string]string{},
			Header: r.Header.Clone(),
		}
		for k, v := range r.URL.Query() {
			c.Query[k] = v[0]
		}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &c.Body)
		}
		rec.mu.Lock()
		rec.requests = append(rec.requests, c)
		rec.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", testAnonKey, WithHTTPClient(srv.Client())), rec
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_SignIn(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	expires := time.Now().Add(time.Hour).Unix()
	c, rec := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "access",
			"token_type":    "bearer",
			"expires_in":    3600,
			"expires_at":    expires,
			"refresh_token": "refresh",
			"user":          map[string]any{"id": userID.String(), "email": "a@example.com"},
		})
	})

	s, err := c.SignIn(context.Background(), "a@example.com", "secret")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	req := rec.last()
	if req.Method != http.MethodPost || req.Path != "/auth/v1/token" || req.Query["grant_type"] != "password" {
		t.Errorf("Expected POST /auth/v1/token?grant_type=password, got %s %s %v", req.Method, req.Path, req.Query)
	}
	if req.Header.Get("apikey") != testAnonKey {
		t.Errorf("Expected apikey header, got %q", req.Header.Get("apikey"))
	}
	if req.Body["email"] != "a@example.com" || req.Body["password"] != "secret" {
		t.Errorf("Expected credentials in body, got %v", req.Body)
	}
	if s.AccessToken != "access" || s.RefreshToken != "refresh" || s.User.ID != userID {
		t.Errorf("Expected decoded session, got %+v", s)
	}
	if s.ExpiresAt.Unix() != expires {
		t.Errorf("Expected expiry %d, got %d", expires, s.ExpiresAt.Unix())
	}
}

func TestClient_SignInInvalidCredentials(t *testing.T) {
	t.Parallel()

	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code":       400,
			"error_code": "invalid_credentials",
			"msg":        "Invalid login credentials",
		})
	})

	_, err := c.SignIn(context.Background(), "a@example.com", "wrong")
	if !errors.Is(err, backend.ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	apiErr, ok := AsError(err)
	if !ok || apiErr.Message != "Invalid login credentials" || apiErr.Status != http.StatusBadRequest {
		t.Errorf("Expected decoded error, got %+v", apiErr)
	}
}

func TestClient_SignUpPendingConfirmation(t *testing.T) {
	t.Parallel()

	c, rec := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": uuid.New().String(), "email": "new@example.com"})
	})

	s, err := c.SignUp(context.Background(), "new@example.com", "secret")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if s != nil {
		t.Errorf("Expected no session while confirmation is pending, got %+v", s)
	}
	if rec.last().Path != "/auth/v1/signup" {
		t.Errorf("Expected /auth/v1/signup, got %s", rec.last().Path)
	}
}

func TestClient_SignOutUsesAccessToken(t *testing.T) {
	t.Parallel()

	c, rec := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.SignOut(context.Background(), "user-token"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := rec.last().Header.Get("Authorization"); got != "Bearer user-token" {
		t.Errorf("Expected user bearer token, got %q", got)
	}
}

func TestClient_ListTasks(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	c, rec := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": uuid.New().String(), "user_id": userID.String(), "title": "b", "priority": 1, "status": "pending", "tags": []string{}, "created_at": "2024-01-02T00:00:00.123456+00:00", "updated_at": "2024-01-02T00:00:00.123456+00:00", "ai_priority_score": nil},
			{"id": uuid.New().String(), "user_id": userID.String(), "title": "a", "priority": 2, "status": "completed", "tags": []string{"x"}, "created_at": "2024-01-01T00:00:00+00:00", "updated_at": "2024-01-01T00:00:00+00:00", "ai_priority_score": nil},
		})
	})
	c.SetTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "user-token", TokenType: "Bearer"}))

	tasks, err := c.ListTasks(context.Background(), userID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	req := rec.last()
	if req.Path != "/rest/v1/tasks" || req.Query["user_id"] != "eq."+userID.String() || req.Query["order"] != "created_at.desc" {
		t.Errorf("Expected filtered, ordered select, got %s %v", req.Path, req.Query)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer user-token" {
		t.Errorf("Expected token source bearer, got %q", got)
	}
	if len(tasks) != 2 || tasks[0].Title != "b" || tasks[1].Status != models.TaskStatusCompleted {
		t.Errorf("Expected decoded tasks, got %+v", tasks)
	}
}

func TestClient_InsertTask(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		respond []map[string]any
		wantNil bool
	}{
		{
			name:    "row returned",
			respond: []map[string]any{{"id": uuid.New().String(), "title": "new", "status": "pending"}},
		},
		{
			name:    "no row returned",
			respond: []map[string]any{},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, rec := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusCreated, tt.respond)
			})

			now := time.Now().UTC()
			task, err := c.InsertTask(context.Background(), backend.NewTask{
				UserID:    uuid.New(),
				Title:     "new",
				Priority:  1,
				Status:    models.TaskStatusPending,
				Tags:      []string{},
				CreatedAt: now,
				UpdatedAt: now,
			})
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if (task == nil) != tt.wantNil {
				t.Errorf("Expected nil=%v, got %+v", tt.wantNil, task)
			}

			req := rec.last()
			if req.Header.Get("Prefer") != "return=representation" {
				t.Errorf("Expected return=representation, got %q", req.Header.Get("Prefer"))
			}
			if req.Body["ai_priority_score"] != nil || req.Body["status"] != "pending" {
				t.Errorf("Expected pending status and null score in body, got %v", req.Body)
			}
			if _, ok := req.Body["tags"].([]any); !ok {
				t.Errorf("Expected tags array in body, got %#v", req.Body["tags"])
			}
		})
	}
}

func TestClient_UpdateTaskFilters(t *testing.T) {
	t.Parallel()

	c, rec := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{})
	})

	id, owner := uuid.New(), uuid.New()
	seen := time.Date(2024, 1, 1, 10, 0, 0, 500, time.UTC)
	title := "renamed"
	_, err := c.UpdateTask(context.Background(),
		backend.Match{ID: id, UserID: owner, UpdatedAt: &seen},
		backend.TaskChanges{TaskPatch: models.TaskPatch{Title: &title}, UpdatedAt: time.Now()},
	)
	if !errors.Is(err, backend.ErrNoRows) {
		t.Errorf("Expected ErrNoRows for empty result, got %v", err)
	}

	req := rec.last()
	if req.Method != http.MethodPatch {
		t.Errorf("Expected PATCH, got %s", req.Method)
	}
	if req.Query["id"] != "eq."+id.String() || req.Query["user_id"] != "eq."+owner.String() {
		t.Errorf("Expected id and owner filters, got %v", req.Query)
	}
	if req.Query["updated_at"] != "eq.2024-01-01T10:00:00.0000005Z" {
		t.Errorf("Expected version filter, got %q", req.Query["updated_at"])
	}
	if req.Body["title"] != "renamed" || req.Body["updated_at"] == nil {
		t.Errorf("Expected title and updated_at in body, got %v", req.Body)
	}
	if _, ok := req.Body["id"]; ok {
		t.Error("Expected id not to be written")
	}
}

func TestClient_DeleteTaskCountsRows(t *testing.T) {
	t.Parallel()

	c, rec := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{"id": uuid.New().String()}})
	})

	n, err := c.DeleteTask(context.Background(), backend.Match{ID: uuid.New(), UserID: uuid.New()})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 row, got %d", n)
	}
	if rec.last().Method != http.MethodDelete {
		t.Errorf("Expected DELETE, got %s", rec.last().Method)
	}
}

func TestClient_PostgRESTError(t *testing.T) {
	t.Parallel()

	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"code":    "42501",
			"message": "new row violates row-level security policy for table \"tasks\"",
			"details": nil,
			"hint":    nil,
		})
	})

	_, err := c.InsertTask(context.Background(), backend.NewTask{Title: "x"})
	apiErr, ok := AsError(err)
	if !ok {
		t.Fatalf("Expected *Error, got %v", err)
	}
	if apiErr.Code != "42501" || apiErr.Status != http.StatusForbidden {
		t.Errorf("Expected code 42501 status 403, got %+v", apiErr)
	}
}

func TestClient_TokenSourceErrorSurfaces(t *testing.T) {
	t.Parallel()

	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	})
	c.SetTokenSource(failingSource{})

	_, err := c.ListTasks(context.Background(), uuid.New())
	if !errors.Is(err, backend.ErrNotAuthenticated) {
		t.Errorf("Expected ErrNotAuthenticated, got %v", err)
	}
}

type failingSource struct{}

func (failingSource) Token() (*oauth2.Token, error) { return nil, backend.ErrNotAuthenticated }

func TestClient_FocusSessions(t *testing.T) {
	t.Parallel()

	taskID, userID := uuid.New(), uuid.New()
	c, rec := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, []map[string]any{})
		default:
			writeJSON(w, http.StatusOK, []map[string]any{{"id": uuid.New().String(), "task_id": taskID.String(), "user_id": userID.String(), "duration": 25, "start_time": "2024-01-01T00:00:00Z", "completed": false}})
		}
	})
	ctx := context.Background()

	s, err := c.InsertFocusSession(ctx, backend.NewFocusSession{TaskID: taskID, UserID: userID, Duration: 25, StartTime: time.Now()})
	if err != nil || s == nil || s.Duration != 25 {
		t.Fatalf("Expected inserted session, got %+v, %v", s, err)
	}
	if rec.last().Path != "/rest/v1/focus_sessions" {
		t.Errorf("Expected focus_sessions table, got %s", rec.last().Path)
	}

	done := true
	if _, err := c.UpdateFocusSession(ctx, backend.Match{ID: s.ID, UserID: userID}, models.UpdateFocusSessionInput{Completed: &done}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rec.last().Body["completed"] != true {
		t.Errorf("Expected completed in body, got %v", rec.last().Body)
	}

	if _, err := c.ListFocusSessions(ctx, userID, taskID); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	req := rec.last()
	if req.Query["order"] != "start_time.desc" || req.Query["task_id"] != "eq."+taskID.String() {
		t.Errorf("Expected task filter ordered by start_time desc, got %v", req.Query)
	}
}

func TestClient_HealthCheck(t *testing.T) {
	t.Parallel()

	healthy := true
	var mu sync.Mutex
	c, rec := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if !healthy {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"msg": "down"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": "GoTrue"})
	})

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := rec.last(); got.Method != http.MethodGet || got.Path != "/auth/v1/health" {
		t.Errorf("Expected GET /auth/v1/health, got %s %s", got.Method, got.Path)
	}

	mu.Lock()
	healthy = false
	mu.Unlock()
	if err := c.HealthCheck(context.Background()); err == nil {
		t.Error("Expected error from an unhealthy service")
	}
}
