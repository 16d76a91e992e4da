package http

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/rs/zerolog"

    "github.com/valeriy-chepelev/expendo/internal/config"
    "github.com/valeriy-chepelev/expendo/internal/domain"
    "github.com/valeriy-chepelev/expendo/internal/services"
    "github.com/valeriy-chepelev/expendo/internal/window"
)

type stubService struct {
    evalParams *services.EvalParams
    evalErr    error
    warmed     bool
    lastRun    *domain.EvalRun
}

func (s *stubService) Evaluate(_ context.Context, p services.EvalParams) ([]domain.MetricResult, error) {
    s.evalParams = &p
    if s.evalErr != nil { return nil, s.evalErr }
    return []domain.MetricResult{{Value: 3, Kind: domain.KindCount, Contributing: 3}}, nil
}

func (s *stubService) WarmCache(context.Context) error { s.warmed = true; return nil }

func (s *stubService) MetricNames() []string { return []string{"created", "resolved"} }

func (s *stubService) GetLastRun(context.Context) (*domain.EvalRun, error) { return s.lastRun, nil }

func serve(t *testing.T, svc service, method, path, body string) *httptest.ResponseRecorder {
    t.Helper()
    r := NewRouter(config.Config{AppEnv: "test"}, zerolog.Nop(), svc)
    req := httptest.NewRequest(method, path, strings.NewReader(body))
    if body != "" { req.Header.Set("Content-Type", "application/json") }
    w := httptest.NewRecorder()
    r.ServeHTTP(w, req)
    return w
}

func TestHealthz(t *testing.T) {
    w := serve(t, &stubService{}, http.MethodGet, "/healthz", "")
    if w.Code != http.StatusOK { t.Fatalf("status = %d", w.Code) }
}

func TestMetricsList(t *testing.T) {
    w := serve(t, &stubService{}, http.MethodGet, "/metrics", "")
    if w.Code != http.StatusOK { t.Fatalf("status = %d", w.Code) }
    var resp struct {
        Metrics []string `json:"metrics"`
    }
    if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil { t.Fatal(err) }
    if len(resp.Metrics) != 2 { t.Fatalf("metrics = %v", resp.Metrics) }
}

func TestEvaluate_PassesParamsThrough(t *testing.T) {
    svc := &stubService{}
    body := `{"issues":["A-1","A-2"],"metric":"resolved","mode":"sprint",
        "from":"2026-03-01T00:00:00Z","to":"2026-03-28T00:00:00Z","sprint_len":7,"group_by":"queue"}`
    w := serve(t, svc, http.MethodPost, "/evaluate", body)
    if w.Code != http.StatusOK { t.Fatalf("status = %d body=%s", w.Code, w.Body.String()) }
    p := svc.evalParams
    if p == nil { t.Fatal("service never called") }
    if p.Metric != "resolved" || p.Mode != "sprint" || p.SprintLen != 7 || len(p.Issues) != 2 {
        t.Fatalf("params = %+v", p)
    }
    if p.GroupBy != "queue" { t.Fatalf("group_by = %q", p.GroupBy) }
    if !p.To.Equal(time.Date(2026, 3, 28, 0, 0, 0, 0, time.UTC)) {
        t.Fatalf("to = %v", p.To)
    }
}

func TestEvaluate_RejectsEmptySelection(t *testing.T) {
    w := serve(t, &stubService{}, http.MethodPost, "/evaluate",
        `{"metric":"created","mode":"daily","to":"2026-03-05T00:00:00Z"}`)
    if w.Code != http.StatusBadRequest { t.Fatalf("status = %d", w.Code) }
}

func TestEvaluate_WindowErrorsAreBadRequests(t *testing.T) {
    svc := &stubService{evalErr: window.ErrInvalidWindow}
    w := serve(t, svc, http.MethodPost, "/evaluate",
        `{"issues":["A-1"],"metric":"created","mode":"sprint","to":"2026-03-05T00:00:00Z"}`)
    if w.Code != http.StatusBadRequest { t.Fatalf("status = %d", w.Code) }
}

func TestLastRun_NotFoundWithoutRuns(t *testing.T) {
    w := serve(t, &stubService{}, http.MethodGet, "/admin/last-run", "")
    if w.Code != http.StatusNotFound { t.Fatalf("status = %d", w.Code) }

    svc := &stubService{lastRun: &domain.EvalRun{ID: 7, Metric: "ttr", OK: true}}
    w = serve(t, svc, http.MethodGet, "/admin/last-run", "")
    if w.Code != http.StatusOK { t.Fatalf("status = %d", w.Code) }
}

func TestWarm_Accepted(t *testing.T) {
    svc := &stubService{}
    w := serve(t, svc, http.MethodPost, "/admin/warm", "")
    if w.Code != http.StatusAccepted { t.Fatalf("status = %d", w.Code) }
}
