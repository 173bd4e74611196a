package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	dbfs "github.com/garnizeh/fixbuddy/db"
	"github.com/garnizeh/fixbuddy/api"
	"github.com/garnizeh/fixbuddy/internal/agent"
	"github.com/garnizeh/fixbuddy/internal/config"
	dbpkg "github.com/garnizeh/fixbuddy/internal/db"
	"github.com/garnizeh/fixbuddy/internal/metrics"
	sqlite "github.com/garnizeh/fixbuddy/internal/repository/sqlite"
	"github.com/garnizeh/fixbuddy/pkg/models"
)

// persistingRunner stores a canned result for the caller, like the orchestrator does.
type persistingRunner struct {
	repo *sqlite.SQLiteRepo
}

func (p *persistingRunner) Run(ctx context.Context, req agent.Request) (agent.Outcome, error) {
	if err := agent.ValidateRequest(req); err != nil {
		return agent.Outcome{}, err
	}
	name := "Desk lamp"
	res := models.DiagnosisResult{
		ItemName:                &name,
		RepairabilityScore:      70,
		RepairabilityConfidence: "medium",
		Issues:                  []models.Issue{{Problem: "Worn switch", Probability: 0.6}},
		Diagnosis:               models.Guidance{Safety: "Unplug the lamp.", Tools: []string{}, Steps: []string{"Replace the switch"}, Parts: []models.Part{}},
		Tutorials:               []models.Tutorial{},
		Confidence:              0.6,
	}
	d := &models.Diagnosis{UserID: req.UserID, Result: res}
	id, err := p.repo.CreateDiagnosis(ctx, d)
	if err != nil {
		return agent.Outcome{}, err
	}
	res.ID = id
	return agent.Outcome{Result: res, Strategy: "two_stage", DiagnosisID: id}, nil
}

type testServer struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	d, err := dbpkg.New(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := dbpkg.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := sqlite.New(d, nil)

	cfg := &config.Config{JWTSecret: "routes-secret", TokenDuration: time.Hour}
	cfg.RateLimit.Requests = 3
	cfg.RateLimit.Window = time.Minute

	router := api.SetupRoutes(cfg, "test", "now", api.Deps{
		Users:     repo,
		Profiles:  repo,
		Diagnoses: repo,
		History:   repo,
		Runner:    &persistingRunner{repo: repo},
		Metrics:   metrics.New(prometheus.NewRegistry()),
		Ping:      func(ctx context.Context) error { return d.GetConn().PingContext(ctx) },
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv}
}

func (s *testServer) do(method, path, token string, body any) (int, map[string]any) {
	s.t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rdr = bytes.NewReader(raw)
	}
	req, _ := http.NewRequest(method, s.srv.URL+path, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		s.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	raw, _ := io.ReadAll(res.Body)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return res.StatusCode, out
}

func (s *testServer) login(username string) string {
	s.t.Helper()
	if code, body := s.do(http.MethodPost, "/api/users", "", map[string]any{"username": username, "password": "pw", "experience": "beginner"}); code != http.StatusCreated {
		s.t.Fatalf("signup: %d %v", code, body)
	}
	code, body := s.do(http.MethodPost, "/api/login", "", map[string]string{"username": username, "password": "pw"})
	if code != http.StatusOK {
		s.t.Fatalf("login: %d %v", code, body)
	}
	return body["token"].(string)
}

func TestRoutes_DiagnosisLifecycle(t *testing.T) {
	s := newTestServer(t)
	token := s.login("alice")
	other := s.login("bob")

	if code, _ := s.do(http.MethodPost, "/api/users", "", map[string]any{"username": "alice", "password": "x", "experience": "expert"}); code != http.StatusConflict {
		t.Fatalf("duplicate signup: expected 409, got %d", code)
	}

	code, body := s.do(http.MethodGet, "/api/profile", token, nil)
	if code != http.StatusOK || body["profile"].(map[string]any)["experience"] != "beginner" {
		t.Fatalf("profile: %d %v", code, body)
	}

	code, body = s.do(http.MethodPost, "/api/agent", token, map[string]string{"description": "lamp flickers"})
	if code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("agent: %d %v", code, body)
	}
	id := body["result"].(map[string]any)["id"].(string)

	code, body = s.do(http.MethodGet, "/api/diagnoses", token, nil)
	if code != http.StatusOK || len(body["diagnoses"].([]any)) != 1 {
		t.Fatalf("list: %d %v", code, body)
	}
	if code, _ := s.do(http.MethodGet, "/api/diagnoses/"+id, token, nil); code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", code)
	}
	if code, _ := s.do(http.MethodGet, "/api/diagnoses/"+id, other, nil); code != http.StatusNotFound {
		t.Fatalf("get as another user: expected 404, got %d", code)
	}
	if code, _ := s.do(http.MethodDelete, "/api/diagnoses/"+id, token, nil); code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", code)
	}
	if code, _ := s.do(http.MethodGet, "/api/diagnoses/"+id, token, nil); code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", code)
	}

	if code, body := s.do(http.MethodPost, "/api/agent", token, map[string]string{}); code != http.StatusBadRequest || body["code"] != api.CodeBadRequest {
		t.Fatalf("empty agent request: %d %v", code, body)
	}
}

func TestRoutes_Unauthorized(t *testing.T) {
	s := newTestServer(t)
	for _, p := range []struct{ method, path string }{
		{http.MethodPost, "/api/agent"},
		{http.MethodGet, "/api/diagnoses"},
		{http.MethodGet, "/api/profile"},
		{http.MethodGet, "/api/history"},
	} {
		code, body := s.do(p.method, p.path, "", nil)
		if code != http.StatusUnauthorized || body["code"] != api.CodeUnauthorized {
			t.Fatalf("%s %s without token: %d %v", p.method, p.path, code, body)
		}
	}
	if code, _ := s.do(http.MethodPost, "/api/login", "", map[string]string{"username": "ghost", "password": "x"}); code != http.StatusUnauthorized {
		t.Fatalf("unknown user login: expected 401, got %d", code)
	}
}

func TestRoutes_RateLimitAndMetrics(t *testing.T) {
	s := newTestServer(t)
	token := s.login("carol")

	for i := 0; i < 3; i++ {
		if code, _ := s.do(http.MethodPost, "/api/agent", token, map[string]string{"description": "squeaky door"}); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, code)
		}
	}
	code, body := s.do(http.MethodPost, "/api/agent", token, map[string]string{"description": "squeaky door"})
	if code != http.StatusTooManyRequests || body["code"] != api.CodeRateLimited {
		t.Fatalf("expected 429 RATE_LIMITED, got %d %v", code, body)
	}
	// other endpoints are not limited
	if code, _ := s.do(http.MethodGet, "/api/diagnoses", token, nil); code != http.StatusOK {
		t.Fatalf("list after limit: expected 200, got %d", code)
	}

	if code, body := s.do(http.MethodGet, "/health", "", nil); code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: %d %v", code, body)
	}

	res, err := http.Get(s.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer res.Body.Close()
	raw, _ := io.ReadAll(res.Body)
	for _, want := range []string{
		`fixbuddy_rate_limited_total{route="/api/agent"} 1`,
		`fixbuddy_http_requests_total{method="POST",route="/api/agent",status="200"} 3`,
	} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
