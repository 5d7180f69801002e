package http

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/ViniZap4/tasks-server/auth"
	"github.com/ViniZap4/tasks-server/config"
	"github.com/ViniZap4/tasks-server/domain"
	"github.com/ViniZap4/tasks-server/store"
	"github.com/ViniZap4/tasks-server/ws"
)

type testServer struct {
	app   *fiber.App
	store *store.Store
	hub   *ws.Hub
	token string
}

func newTestServer(t *testing.T, requireAuth bool) *testServer {
	t.Helper()
	st, err := store.New(store.Options{
		Dir:             t.TempDir(),
		ReadRetryDelay:  time.Microsecond,
		WriteRetryDelay: time.Microsecond,
	})
	assert.NoError(t, err)

	authn, err := auth.New(config.AuthConfig{
		Username:    "admin",
		Password:    "1234",
		TokenSecret: "test-secret",
		TokenTTL:    time.Hour,
	})
	assert.NoError(t, err)
	token, _, err := authn.Login("admin", "1234")
	assert.NoError(t, err)

	hub := ws.NewHub(zerolog.Nop())
	go hub.Run()
	t.Cleanup(hub.Close)

	srv := NewServer(st, hub, authn, Options{CORSOrigins: "*", RequireAuth: requireAuth}, zerolog.Nop())
	return &testServer{app: srv.App(), store: st, hub: hub, token: token}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if ts.token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+ts.token)
	}
	resp, err := ts.app.Test(req, -1)
	assert.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	var out map[string]any
	if len(data) > 0 {
		assert.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp.StatusCode, out
}

func taskField(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	task, ok := body["task"].(map[string]any)
	assert.True(t, ok, "response has no task: %v", body)
	return task
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, true)
	ts.token = ""
	status, body := ts.do(t, fiber.MethodGet, "/api/health", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t, true)
	ts.token = ""

	status, body := ts.do(t, fiber.MethodPost, "/api/login", `{"username":"admin"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, false, body["ok"])

	status, _ = ts.do(t, fiber.MethodPost, "/api/login", `{"username":"admin","password":"nope"}`)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body = ts.do(t, fiber.MethodPost, "/api/login", `{"username":"admin","password":"1234"}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, map[string]any{"username": "admin"}, body["user"])
	token, _ := body["token"].(string)
	assert.NotEqual(t, "", token)

	ts.token = token
	status, _ = ts.do(t, fiber.MethodGet, "/api/todos", "")
	assert.Equal(t, fiber.StatusOK, status)
}

func TestTodosRequireToken(t *testing.T) {
	ts := newTestServer(t, true)
	ts.token = ""

	for _, tc := range []struct{ method, path string }{
		{fiber.MethodGet, "/api/todos"},
		{fiber.MethodPost, "/api/todos"},
		{fiber.MethodPatch, "/api/todos/1"},
		{fiber.MethodDelete, "/api/todos/1"},
		{fiber.MethodPost, "/api/todos/complete-all"},
		{fiber.MethodGet, "/ws"},
	} {
		status, body := ts.do(t, tc.method, tc.path, "")
		assert.Equal(t, fiber.StatusUnauthorized, status, tc.path)
		assert.Equal(t, "Unauthorized", body["message"])
	}
}

func TestAuthCanBeDisabled(t *testing.T) {
	ts := newTestServer(t, false)
	ts.token = ""
	status, body := ts.do(t, fiber.MethodGet, "/api/todos", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, []any{}, body["tasks"])
}

func TestCreateAndList(t *testing.T) {
	ts := newTestServer(t, true)

	status, body := ts.do(t, fiber.MethodPost, "/api/todos", `{"title":"  Buy milk  "}`)
	assert.Equal(t, fiber.StatusCreated, status)
	task := taskField(t, body)
	assert.Equal(t, "Buy milk", task["title"])
	assert.Equal(t, float64(1), task["id"])
	assert.Equal(t, false, task["completed"])

	status, body = ts.do(t, fiber.MethodGet, "/api/todos", "")
	assert.Equal(t, fiber.StatusOK, status)
	tasks, _ := body["tasks"].([]any)
	assert.Equal(t, 1, len(tasks))
}

func TestCreateRejectsMissingTitle(t *testing.T) {
	ts := newTestServer(t, true)
	for _, payload := range []string{"", `{}`, `{"title":"   "}`, `{"title":42}`, `{"title":null}`} {
		status, body := ts.do(t, fiber.MethodPost, "/api/todos", payload)
		assert.Equal(t, fiber.StatusBadRequest, status, payload)
		assert.Equal(t, "Title is required", body["message"])
	}
	assert.Equal(t, 0, len(ts.store.List()))

	status, _ := ts.do(t, fiber.MethodPost, "/api/todos", `{not json`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestUpdateCoercesFields(t *testing.T) {
	ts := newTestServer(t, true)
	created, err := ts.store.Create("Write tests")
	assert.NoError(t, err)

	cases := []struct {
		body      string
		title     string
		completed bool
	}{
		{`{"completed":"yes"}`, "Write tests", true},
		{`{"completed":0}`, "Write tests", false},
		{`{"completed":1}`, "Write tests", true},
		{`{"completed":null}`, "Write tests", false},
		{`{"completed":[]}`, "Write tests", true},
		{`{"completed":""}`, "Write tests", false},
		{`{"title":""}`, "Write tests", false},
		{`{"title":false}`, "Write tests", false},
		{`{"title":5}`, "5", false},
		{`{"title":"  Ship it "}`, "Ship it", false},
		{``, "Ship it", false},
	}
	for _, tc := range cases {
		status, body := ts.do(t, fiber.MethodPatch, "/api/todos/1", tc.body)
		assert.Equal(t, fiber.StatusOK, status, tc.body)
		task := taskField(t, body)
		assert.Equal(t, tc.title, task["title"], tc.body)
		assert.Equal(t, tc.completed, task["completed"], tc.body)
		assert.Equal(t, created.CreatedAt, task["createdAt"])
	}
}

func TestUpdateAndDeleteErrors(t *testing.T) {
	ts := newTestServer(t, true)

	status, body := ts.do(t, fiber.MethodPatch, "/api/todos/abc", `{"completed":true}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Invalid ID", body["message"])

	status, body = ts.do(t, fiber.MethodPatch, "/api/todos/99", `{"completed":true}`)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "Task not found", body["message"])

	status, _ = ts.do(t, fiber.MethodDelete, "/api/todos/abc", "")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = ts.do(t, fiber.MethodDelete, "/api/todos/99", "")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestDelete(t *testing.T) {
	ts := newTestServer(t, true)
	_, err := ts.store.Create("a")
	assert.NoError(t, err)
	_, err = ts.store.Create("b")
	assert.NoError(t, err)

	status, body := ts.do(t, fiber.MethodDelete, "/api/todos/1", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["ok"])

	tasks := ts.store.List()
	assert.Equal(t, 1, len(tasks))
	assert.Equal(t, 2, tasks[0].ID)
}

func TestBulkRoutes(t *testing.T) {
	ts := newTestServer(t, true)
	for _, title := range []string{"a", "b", "c"} {
		_, err := ts.store.Create(title)
		assert.NoError(t, err)
	}
	done := true
	_, _, err := ts.store.Update(2, domain.TaskPatch{Completed: &done})
	assert.NoError(t, err)

	status, body := ts.do(t, fiber.MethodPost, "/api/todos/complete-all", "")
	assert.Equal(t, fiber.StatusOK, status)
	changed, _ := body["tasks"].([]any)
	assert.Equal(t, 2, len(changed))
	assert.Equal(t, 3, domain.Summarize(ts.store.List()).Completed)

	status, body = ts.do(t, fiber.MethodPost, "/api/todos/uncheck-completed", "")
	assert.Equal(t, fiber.StatusOK, status)
	changed, _ = body["tasks"].([]any)
	assert.Equal(t, 3, len(changed))
	assert.Equal(t, 0, domain.Summarize(ts.store.List()).Completed)

	status, body = ts.do(t, fiber.MethodPost, "/api/todos/uncheck-completed", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, []any{}, body["tasks"])
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	ts := newTestServer(t, true)
	status, _ := ts.do(t, fiber.MethodGet, "/ws", "")
	assert.Equal(t, fiber.StatusUpgradeRequired, status)
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, true)
	_, err := ts.store.Create("count me")
	assert.NoError(t, err)

	resp, err := ts.app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil), -1)
	assert.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(data), "tasks_store_operation_duration_seconds"))
}

func TestRequestIDHeader(t *testing.T) {
	ts := newTestServer(t, true)
	req := httptest.NewRequest(fiber.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	resp, err := ts.app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, "abc-123", resp.Header.Get(requestIDHeader))

	resp, err = ts.app.Test(httptest.NewRequest(fiber.MethodGet, "/api/health", nil), -1)
	assert.NoError(t, err)
	assert.NotEqual(t, "", resp.Header.Get(requestIDHeader))
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	ts := newTestServer(t, true)
	status, body := ts.do(t, fiber.MethodGet, "/api/nope", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, false, body["ok"])
}
