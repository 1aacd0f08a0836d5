package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"smart-todos/internal/auth"
	"smart-todos/internal/model"
	"smart-todos/internal/repository"
	"smart-todos/internal/service"
	"smart-todos/internal/view"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts Options, aiURL string) *Server {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repository.NewDB(fmt.Sprintf("file:api_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	users := repository.NewUserRepository(db)
	tasks := repository.NewTaskRepository(db)
	categories := service.NewCategoryService(repository.NewCategoryRepository(db))
	tokens := auth.NewJWTManager(auth.DefaultJWTConfig("api-test-secret"))
	authSvc := service.NewAuthService(users, tasks, tokens, auth.NewPasswordHasherWithCost(bcrypt.MinCost))

	if aiURL == "" {
		aiURL = "http://127.0.0.1:1"
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	return NewServer(authSvc, service.NewTaskService(tasks, categories), categories, service.NewSubtaskService(aiURL, time.Second), opts)
}

func do(t *testing.T, s *Server, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func detail(t *testing.T, raw []byte) string {
	return decode[map[string]any](t, raw)["detail"].(string)
}

func signupToken(t *testing.T, s *Server, email string) string {
	t.Helper()
	status, body := do(t, s, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Tester", "email": email, "password": "secret123",
	})
	require.Equal(t, http.StatusOK, status, string(body))
	return decode[service.AuthResult](t, body).AccessToken
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Options{}, "")
	status, body := do(t, s, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	got := decode[map[string]any](t, body)
	assert.Equal(t, "healthy", got["status"])
	assert.Equal(t, "2024-03-10T12:00:00Z", got["timestamp"])
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, Options{}, "")

	status, body := do(t, s, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Ann", "email": "ann@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, status)
	signed := decode[service.AuthResult](t, body)
	assert.Equal(t, "bearer", signed.TokenType)
	assert.NotContains(t, string(body), "password")

	status, body = do(t, s, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Ann", "email": "ann@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Email already registered", detail(t, body))

	status, body = do(t, s, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ann@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid email or password", detail(t, body))

	status, body = do(t, s, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ann@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, status)
	logged := decode[service.AuthResult](t, body)

	status, body = do(t, s, http.MethodGet, "/api/auth/me", logged.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ann@example.com", decode[model.User](t, body).Email)

	status, body = do(t, s, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": logged.RefreshToken})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, decode[service.AuthResult](t, body).AccessToken)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, Options{}, "")

	for _, path := range []string{"/api/todos", "/api/statistics", "/api/view", "/api/export", "/api/auth/me"} {
		status, body := do(t, s, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status, path)
		assert.Equal(t, "Could not validate credentials", detail(t, body), path)
	}

	status, _ := do(t, s, http.MethodGet, "/api/todos", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestTodoLifecycle(t *testing.T) {
	s := newTestServer(t, Options{}, "")
	token := signupToken(t, s, "life@example.com")

	status, body := do(t, s, http.MethodPost, "/api/todos", token, map[string]any{
		"title": "Write tests", "priority": "high", "category": "Work", "due_date": "2024-03-01",
	})
	require.Equal(t, http.StatusOK, status, string(body))
	created := decode[model.Task](t, body)
	assert.Equal(t, model.PriorityHigh, created.Priority)

	status, body = do(t, s, http.MethodPost, "/api/todos", token, map[string]any{"title": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "title: title is required", detail(t, body))

	path := fmt.Sprintf("/api/todos/%d", created.ID)
	status, body = do(t, s, http.MethodPut, path, token, map[string]any{"completed": true, "starred": true})
	require.Equal(t, http.StatusOK, status)
	updated := decode[model.Task](t, body)
	assert.True(t, updated.Completed)
	assert.True(t, updated.Starred)
	assert.Equal(t, "Write tests", updated.Title)

	status, body = do(t, s, http.MethodGet, "/api/todos?completed=true", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]model.Task](t, body), 1)

	status, body = do(t, s, http.MethodGet, "/api/todos/completed/false", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "[]", string(body))

	status, _ = do(t, s, http.MethodGet, "/api/todos?limit=500", token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, body = do(t, s, http.MethodDelete, path, token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Todo deleted successfully", decode[map[string]string](t, body)["message"])

	status, body = do(t, s, http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Todo not found", detail(t, body))
}

func TestTodoOwnership(t *testing.T) {
	s := newTestServer(t, Options{}, "")
	owner := signupToken(t, s, "owner@example.com")
	intruder := signupToken(t, s, "intruder@example.com")

	_, body := do(t, s, http.MethodPost, "/api/todos", owner, map[string]any{"title": "mine"})
	task := decode[model.Task](t, body)

	status, body := do(t, s, http.MethodGet, fmt.Sprintf("/api/todos/%d", task.ID), intruder, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Access denied", detail(t, body))
}

func TestViewAndDateQueries(t *testing.T) {
	s := newTestServer(t, Options{}, "")
	token := signupToken(t, s, "view@example.com")

	for _, todo := range []map[string]any{
		{"title": "late", "due_date": "2024-03-01"},
		{"title": "soon", "due_date": "2024-03-11"},
		{"title": "no date", "due_date": nil},
		{"title": "done", "due_date": "2024-02-01"},
	} {
		status, body := do(t, s, http.MethodPost, "/api/todos", token, todo)
		require.Equal(t, http.StatusOK, status, string(body))
		if todo["title"] == "done" {
			id := decode[model.Task](t, body).ID
			status, _ = do(t, s, http.MethodPut, fmt.Sprintf("/api/todos/%d", id), token, map[string]any{"completed": true})
			require.Equal(t, http.StatusOK, status)
		}
	}

	status, body := do(t, s, http.MethodGet, "/api/view?filter=overdue", token, nil)
	require.Equal(t, http.StatusOK, status)
	res := decode[service.ViewResult](t, body)
	require.Len(t, res.Todos, 1)
	assert.Equal(t, "late", res.Todos[0].Title)
	assert.Equal(t, view.Counts{All: 4, Active: 3, Completed: 1, Overdue: 1}, res.Counts)

	status, body = do(t, s, http.MethodGet, "/api/view?filter=active&q=SOON", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[service.ViewResult](t, body).Todos, 1)

	status, _ = do(t, s, http.MethodGet, "/api/view?filter=someday", token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, body = do(t, s, http.MethodGet, "/api/todos/overdue", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]model.Task](t, body), 1)

	status, body = do(t, s, http.MethodGet, "/api/todos/due-soon?days=2", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]model.Task](t, body), 1)

	status, _ = do(t, s, http.MethodGet, "/api/todos/due-soon?days=40", token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestBulkImportExportAndMetadata(t *testing.T) {
	s := newTestServer(t, Options{}, "")
	token := signupToken(t, s, "bulk@example.com")

	status, body := do(t, s, http.MethodPost, "/api/todos/import", token, []map[string]any{
		{"title": "a", "category": "Garden"},
		{"title": "b"},
		{"title": ""},
	})
	require.Equal(t, http.StatusOK, status)
	imported := decode[service.ImportResult](t, body)
	assert.Equal(t, 2, imported.ImportedCount)
	assert.Len(t, imported.Errors, 1)

	status, body = do(t, s, http.MethodPost, "/api/todos/bulk-update", token, map[string]any{
		"todo_ids": append(imported.ImportedTodoIDs, 999),
		"updates":  map[string]any{"priority": "urgent"},
	})
	require.Equal(t, http.StatusOK, status)
	bulk := decode[service.BulkResult](t, body)
	assert.Equal(t, 2, bulk.UpdatedCount)
	assert.Equal(t, []string{"Todo 999 not found"}, bulk.Errors)

	status, body = do(t, s, http.MethodGet, "/api/statistics", token, nil)
	require.Equal(t, http.StatusOK, status)
	stats := decode[service.Statistics](t, body)
	assert.Equal(t, 2, stats.ByPriority["urgent"])

	status, body = do(t, s, http.MethodGet, "/api/search?q=a&include_completed=false", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]model.Task](t, body), 1)

	status, body = do(t, s, http.MethodGet, "/api/categories", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"Garden"}, decode[[]string](t, body))

	status, body = do(t, s, http.MethodGet, "/api/priorities", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"low", "medium", "high", "urgent"}, decode[[]string](t, body))

	status, body = do(t, s, http.MethodGet, "/api/export", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]model.Task](t, body), 2)

	status, body = do(t, s, http.MethodDelete, "/api/todos", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Cleared 2 todos", decode[map[string]string](t, body)["message"])
}

func TestGenerateSubtasks(t *testing.T) {
	ai := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"1. a\n2. b"}}]}`))
	}))
	defer ai.Close()
	s := newTestServer(t, Options{}, ai.URL)

	status, body := do(t, s, http.MethodPost, "/api/ai/subtasks", "", map[string]string{"title": "Trip"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "API key required", detail(t, body))

	status, body = do(t, s, http.MethodPost, "/api/ai/subtasks", "sk-bad", map[string]string{"title": "Trip"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid API key", detail(t, body))

	status, body = do(t, s, http.MethodPost, "/api/ai/subtasks", "sk-good", map[string]string{"title": "Trip"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "1. a\n2. b", decode[map[string]string](t, body)["subtasks"])
}

func TestLoginRateLimit(t *testing.T) {
	s := newTestServer(t, Options{AuthLimiter: NewMemoryLimiter(2, time.Minute)}, "")
	creds := map[string]string{"email": "x@example.com", "password": "whatever"}

	for i := 0; i < 2; i++ {
		status, _ := do(t, s, http.MethodPost, "/api/auth/login", "", creds)
		assert.Equal(t, http.StatusUnauthorized, status)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"x@example.com","password":"whatever"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}
