package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hiroki-koketsu/task-assignment/internal/auth"
	"github.com/hiroki-koketsu/task-assignment/internal/model"
	"github.com/hiroki-koketsu/task-assignment/internal/repository"
	"github.com/hiroki-koketsu/task-assignment/internal/service"
	"github.com/hiroki-koketsu/task-assignment/internal/telemetry"
	"go.opentelemetry.io/otel/metric/noop"
)

type testServer struct {
	t      *testing.T
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewMemoryStore()
	tokens := auth.NewTokens("handler-test", time.Hour)

	metrics, err := telemetry.NewMetrics(noop.NewMeterProvider().Meter("test"), store.Tasks.Count)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	svc := Services{
		Tasks:    service.NewTaskService(store.Tasks, store.Users, logger, metrics),
		Members:  service.NewMemberService(store.Users, logger),
		Accounts: service.NewAccountService(store.Users, tokens, logger),
	}
	router := NewRouter(svc, RouterOptions{Tokens: tokens, Metrics: metrics, Logger: logger})
	return &testServer{t: t, router: router}
}

// do sends a request and decodes the JSON response into out when non-nil.
func (s *testServer) do(method, path, token string, body any, out any) int {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			s.t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

type session struct {
	token string
	user  *model.User
}

func (s *testServer) signup(name, email string) session {
	s.t.Helper()
	var resp model.LoginResponse
	code := s.do(http.MethodPost, "/api/v1/auth/signup", "", model.SignupRequest{Name: name, Email: email, Password: "secret1"}, &resp)
	if code != http.StatusCreated {
		s.t.Fatalf("signup: status %d", code)
	}
	return session{token: resp.Token, user: resp.User}
}

func (s *testServer) member(admin session, name, email string) session {
	s.t.Helper()
	var created model.User
	code := s.do(http.MethodPost, "/api/v1/members", admin.token, model.CreateMemberRequest{Name: name, Email: email, Password: "secret1"}, &created)
	if code != http.StatusCreated {
		s.t.Fatalf("create member: status %d", code)
	}
	var resp model.LoginResponse
	code = s.do(http.MethodPost, "/api/v1/auth/login", "", model.LoginRequest{Email: email, Password: "secret1"}, &resp)
	if code != http.StatusOK {
		s.t.Fatalf("login: status %d", code)
	}
	return session{token: resp.Token, user: resp.User}
}

func (s *testServer) createTask(admin session, req model.CreateTaskRequest) model.TaskView {
	s.t.Helper()
	var view model.TaskView
	if code := s.do(http.MethodPost, "/api/v1/tasks", admin.token, req, &view); code != http.StatusCreated {
		s.t.Fatalf("create task %s: status %d", req.Name, code)
	}
	return view
}

func taskRequest(name string, assignee session, dep string) model.CreateTaskRequest {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	return model.CreateTaskRequest{
		Name:          name,
		Description:   name + " work",
		CreatedDate:   start,
		EndDate:       start.Add(48 * time.Hour),
		AssignedTo:    assignee.user.ID,
		PerHourCost:   12.5,
		DependentTask: dep,
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	var body map[string]string
	if code := s.do(http.MethodGet, "/health", "", nil, &body); code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health: %d %v", code, body)
	}
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	var body errorBody
	if code := s.do(http.MethodGet, "/api/v1/tasks", "", nil, &body); code != http.StatusUnauthorized || body.Kind != KindUnauthenticated {
		t.Fatalf("missing token: %d %+v", code, body)
	}
	if code := s.do(http.MethodGet, "/api/v1/tasks", "garbage", nil, &body); code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", code)
	}

	s.signup("Ada", "ada@example.com")
	if code := s.do(http.MethodPost, "/api/v1/auth/login", "", model.LoginRequest{Email: "ada@example.com", Password: "nope-nope"}, &body); code != http.StatusUnauthorized {
		t.Fatalf("bad credentials: %d %+v", code, body)
	}
	if code := s.do(http.MethodPost, "/api/v1/auth/signup", "", model.SignupRequest{Name: "Ada", Email: "ada@example.com", Password: "secret1"}, &body); code != http.StatusConflict {
		t.Fatalf("duplicate signup: %d %+v", code, body)
	}
}

func TestTaskLifecycle(t *testing.T) {
	s := newTestServer(t)
	admin := s.signup("Ada", "ada@example.com")
	mia := s.member(admin, "Mia", "mia@example.com")

	a := s.createTask(admin, taskRequest("A", mia, ""))
	if a.Status != model.StatusNotStarted || a.AssignedTo.Name != "Mia" || a.CreatedBy.ID != admin.user.ID {
		t.Fatalf("unexpected created view: %+v", a)
	}

	var view model.TaskView
	if code := s.do(http.MethodPost, "/api/v1/tasks/"+a.ID+"/advance", mia.token, nil, &view); code != http.StatusOK {
		t.Fatalf("start: %d", code)
	}
	if view.Status != model.StatusInProgress || view.TotalCost != nil {
		t.Fatalf("unexpected started view: %+v", view)
	}

	var body errorBody
	if code := s.do(http.MethodPost, "/api/v1/tasks/"+a.ID+"/advance", mia.token, map[string]any{}, &body); code != http.StatusUnprocessableEntity {
		t.Fatalf("complete without hours: %d %+v", code, body)
	}

	if code := s.do(http.MethodPost, "/api/v1/tasks/"+a.ID+"/advance", mia.token, map[string]any{"reported_hours": 8}, &view); code != http.StatusOK {
		t.Fatalf("complete: %d", code)
	}
	if view.Status != model.StatusCompleted || view.TotalHours != 8 || view.CompletionDate == nil {
		t.Fatalf("unexpected completed view: %+v", view)
	}
	if view.TotalCost == nil || *view.TotalCost != 100 {
		t.Fatalf("expected total cost 100, got %v", view.TotalCost)
	}

	if code := s.do(http.MethodPost, "/api/v1/tasks/"+a.ID+"/advance", mia.token, nil, &body); code != http.StatusConflict || body.Kind != model.KindInvalidTransition {
		t.Fatalf("advance completed: %d %+v", code, body)
	}
}

func TestBlockedTransitionResponse(t *testing.T) {
	s := newTestServer(t)
	admin := s.signup("Ada", "ada@example.com")
	mia := s.member(admin, "Mia", "mia@example.com")

	a := s.createTask(admin, taskRequest("A", mia, ""))
	b := s.createTask(admin, taskRequest("B", mia, a.ID))
	if b.DependentTask == nil || b.DependentTask.ID != a.ID {
		t.Fatalf("expected dependency on A: %+v", b.DependentTask)
	}

	var body errorBody
	code := s.do(http.MethodPost, "/api/v1/tasks/"+b.ID+"/advance", mia.token, nil, &body)
	if code != http.StatusConflict || body.Kind != model.KindBlocked {
		t.Fatalf("expected blocked: %d %+v", code, body)
	}
	if body.Dependency == nil || body.Dependency.ID != a.ID || body.Dependency.Name != "A" {
		t.Fatalf("blocked body must name A: %+v", body.Dependency)
	}
	if body.Error != "A("+a.ID+") task is not completed yet" {
		t.Fatalf("unexpected message %q", body.Error)
	}
}

func TestRoleEnforcement(t *testing.T) {
	s := newTestServer(t)
	admin := s.signup("Ada", "ada@example.com")
	mia := s.member(admin, "Mia", "mia@example.com")
	a := s.createTask(admin, taskRequest("A", mia, ""))

	var body errorBody
	if code := s.do(http.MethodPost, "/api/v1/tasks", mia.token, taskRequest("X", mia, ""), &body); code != http.StatusForbidden {
		t.Fatalf("member create: %d %+v", code, body)
	}
	if code := s.do(http.MethodPost, "/api/v1/tasks/"+a.ID+"/advance", admin.token, nil, &body); code != http.StatusForbidden {
		t.Fatalf("admin advance: %d %+v", code, body)
	}
	if code := s.do(http.MethodPost, "/api/v1/tasks/"+a.ID+"/terminate", mia.token, nil, &body); code != http.StatusForbidden {
		t.Fatalf("member terminate: %d %+v", code, body)
	}
	if code := s.do(http.MethodGet, "/api/v1/members", mia.token, nil, &body); code != http.StatusForbidden {
		t.Fatalf("member list members: %d %+v", code, body)
	}
	if code := s.do(http.MethodGet, "/api/v1/tasks/missing", admin.token, nil, &body); code != http.StatusNotFound {
		t.Fatalf("missing task: %d %+v", code, body)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	s := newTestServer(t)
	admin := s.signup("Ada", "ada@example.com")
	mia := s.member(admin, "Mia", "mia@example.com")

	req := taskRequest("A", mia, "")
	req.PerHourCost = 0
	var body errorBody
	if code := s.do(http.MethodPost, "/api/v1/tasks", admin.token, req, &body); code != http.StatusUnprocessableEntity || body.Kind != model.KindValidation {
		t.Fatalf("zero cost: %d %+v", code, body)
	}

	rec := httptest.NewRecorder()
	bad := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewReader([]byte("{not json")))
	bad.Header.Set("Authorization", "Bearer "+admin.token)
	s.router.ServeHTTP(rec, bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: %d", rec.Code)
	}
}

func TestListFilteringAndUpdate(t *testing.T) {
	s := newTestServer(t)
	admin := s.signup("Ada", "ada@example.com")
	mia := s.member(admin, "Mia", "mia@example.com")
	maxie := s.member(admin, "Max", "max@example.com")

	a := s.createTask(admin, taskRequest("A", mia, ""))
	s.createTask(admin, taskRequest("B", maxie, ""))
	if code := s.do(http.MethodPost, "/api/v1/tasks/"+a.ID+"/advance", mia.token, nil, nil); code != http.StatusOK {
		t.Fatalf("start: %d", code)
	}

	var views []model.TaskView
	if code := s.do(http.MethodGet, "/api/v1/tasks", admin.token, nil, &views); code != http.StatusOK || len(views) != 2 {
		t.Fatalf("admin list: %d %d", code, len(views))
	}
	if views[0].Name != "A" || views[1].Name != "B" {
		t.Fatalf("expected insertion order, got %s %s", views[0].Name, views[1].Name)
	}
	if code := s.do(http.MethodGet, "/api/v1/tasks?status=in_progress", admin.token, nil, &views); code != http.StatusOK || len(views) != 1 || views[0].ID != a.ID {
		t.Fatalf("status filter: %d %+v", code, views)
	}
	if code := s.do(http.MethodGet, "/api/v1/tasks", maxie.token, nil, &views); code != http.StatusOK || len(views) != 1 || views[0].Name != "B" {
		t.Fatalf("member list: %d %+v", code, views)
	}
	var body errorBody
	if code := s.do(http.MethodGet, "/api/v1/tasks?status=paused", admin.token, nil, &body); code != http.StatusUnprocessableEntity {
		t.Fatalf("bad status filter: %d %+v", code, body)
	}

	var view model.TaskView
	end := a.EndDate.Add(24 * time.Hour)
	if code := s.do(http.MethodPatch, "/api/v1/tasks/"+a.ID, admin.token, model.UpdateTaskRequest{EndDate: &end, AssignedTo: &maxie.user.ID}, &view); code != http.StatusOK {
		t.Fatalf("patch: %d", code)
	}
	if view.AssignedTo.ID != maxie.user.ID || !view.EndDate.Equal(end) {
		t.Fatalf("unexpected patched view: %+v", view)
	}

	if code := s.do(http.MethodPost, "/api/v1/tasks/"+a.ID+"/terminate", admin.token, nil, &view); code != http.StatusOK || view.Status != model.StatusTerminated {
		t.Fatalf("terminate: %d %+v", code, view)
	}
}

func TestMemberDirectory(t *testing.T) {
	s := newTestServer(t)
	ada := s.signup("Ada", "ada@example.com")
	bo := s.signup("Bo", "bo@example.com")
	s.member(ada, "Mia", "mia@example.com")
	s.member(bo, "Eli", "eli@example.com")

	var members []model.User
	if code := s.do(http.MethodGet, "/api/v1/members", ada.token, nil, &members); code != http.StatusOK {
		t.Fatalf("list: %d", code)
	}
	if len(members) != 1 || members[0].Name != "Mia" || members[0].PasswordHash != "" {
		t.Fatalf("unexpected directory: %+v", members)
	}

	var body errorBody
	req := model.CreateMemberRequest{Name: "Mia", Email: "mia@example.com", Password: "secret1"}
	if code := s.do(http.MethodPost, "/api/v1/members", ada.token, req, &body); code != http.StatusConflict {
		t.Fatalf("duplicate member: %d %+v", code, body)
	}
}
