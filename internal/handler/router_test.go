package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/jobboard/internal/job"
	"github.com/hitoshi/jobboard/internal/middleware"
	"github.com/hitoshi/jobboard/internal/model"
)

// --- モック定義 ---

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error { return m.err }

type mockSessionFinder struct {
	sessions map[string]string
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if accountID, ok := m.sessions[id]; ok {
		return &model.Session{ID: id, AccountID: accountID, ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	return nil, nil
}

// mockJobService はGetとPostのみ振る舞いを持つ。
type mockJobService struct {
	JobServiceInterface
	getFn  func(ctx context.Context, viewerID, jobID string) (*model.JobPosting, error)
	postFn func(ctx context.Context, actorID string, in job.Input) (*model.JobPosting, error)
}

func (m *mockJobService) Get(ctx context.Context, viewerID, jobID string) (*model.JobPosting, error) {
	return m.getFn(ctx, viewerID, jobID)
}

func (m *mockJobService) Post(ctx context.Context, actorID string, in job.Input) (*model.JobPosting, error) {
	return m.postFn(ctx, actorID, in)
}

type routerFixture struct {
	router  http.Handler
	viewers []string
	posted  []string
}

func newRouterFixture(t *testing.T, health HealthChecker, metrics http.Handler) *routerFixture {
	t.Helper()
	f := &routerFixture{}
	jobs := &mockJobService{
		getFn: func(ctx context.Context, viewerID, jobID string) (*model.JobPosting, error) {
			f.viewers = append(f.viewers, viewerID)
			if jobID != "job-1" {
				return nil, model.NewNotFoundError("求人")
			}
			return &model.JobPosting{ID: "job-1", OwnerID: "acme", Title: "Engineer", Company: "Acme", IsActive: true}, nil
		},
		postFn: func(ctx context.Context, actorID string, in job.Input) (*model.JobPosting, error) {
			f.posted = append(f.posted, actorID)
			return &model.JobPosting{ID: "job-2", OwnerID: actorID, Title: in.Title, Company: "Acme", IsActive: true}, nil
		},
	}

	cfg := middleware.DefaultRateLimiterConfig()
	cfg.GeneralBurst = 1000
	limiter := middleware.NewRateLimiter(cfg)
	t.Cleanup(limiter.Stop)

	f.router = NewRouter(&RouterDeps{
		HealthChecker:      health,
		MetricsHandler:     metrics,
		SessionFinder:      &mockSessionFinder{sessions: map[string]string{"s-acme": "acme"}},
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		RateLimiter:        limiter,
		AuthService:        &mockAuthService{},
		AuthConfig:         testAuthConfig,
		JobService:         jobs,
	})
	return f
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	req.RemoteAddr = "192.0.2.10:5555"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// --- テスト ---

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name       string
		checker    HealthChecker
		wantStatus int
		wantBody   string
	}{
		{"healthy", &mockHealthChecker{}, http.StatusOK, "ok"},
		{"database down", &mockHealthChecker{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "unavailable"},
		{"no checker", nil, http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t, tt.checker, nil)
			w := serve(f.router, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body healthResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Status != tt.wantBody {
				t.Errorf("status body = %q, want %q", body.Status, tt.wantBody)
			}
		})
	}
}

func TestRouter_MetricsMountedOnlyWhenConfigured(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jobboard_applications_submitted_total 0\n"))
	})

	f := newRouterFixture(t, nil, metrics)
	w := serve(f.router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "jobboard_") {
		t.Errorf("metrics: status = %d, body = %q", w.Code, w.Body.String())
	}

	f = newRouterFixture(t, nil, nil)
	w = serve(f.router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("metrics without handler: status = %d, want 404", w.Code)
	}
}

func TestRouter_PublicJobIsVisibleAnonymously(t *testing.T) {
	f := newRouterFixture(t, nil, nil)

	w := serve(f.router, httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", w.Code, w.Body.String())
	}
	var body jobResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Title != "Engineer" {
		t.Errorf("title = %q", body.Title)
	}
	if len(f.viewers) != 1 || f.viewers[0] != "" {
		t.Errorf("viewers = %v, want one anonymous lookup", f.viewers)
	}
}

func TestRouter_PublicJobPassesViewerWhenLoggedIn(t *testing.T) {
	f := newRouterFixture(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "s-acme"})
	serve(f.router, req)

	if len(f.viewers) != 1 || f.viewers[0] != "acme" {
		t.Errorf("viewers = %v, want [acme]", f.viewers)
	}
}

func TestRouter_MissingJobIsNotFound(t *testing.T) {
	f := newRouterFixture(t, nil, nil)

	w := serve(f.router, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRouter_AuthenticatedRoutesRequireSession(t *testing.T) {
	f := newRouterFixture(t, nil, nil)

	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/account/"},
		{http.MethodGet, "/api/applications/mine"},
		{http.MethodGet, "/api/notifications"},
		{http.MethodPost, "/api/jobs"},
	}
	for _, p := range paths {
		w := serve(f.router, httptest.NewRequest(p.method, p.path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", p.method, p.path, w.Code)
		}
	}
}

func TestRouter_StateChangingRequestsRequireCSRFToken(t *testing.T) {
	f := newRouterFixture(t, nil, nil)
	body := `{"title":"Engineer","description":"d","location":"Tokyo"}`

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "s-acme"})
	w := serve(f.router, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("without token: status = %d, want 403", w.Code)
	}
	if len(f.posted) != 0 {
		t.Fatal("handler should not run without a CSRF token")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "s-acme"})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok"})
	req.Header.Set("X-CSRF-Token", "tok")
	w = serve(f.router, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("with token: status = %d, want 201, body = %s", w.Code, w.Body.String())
	}
	if len(f.posted) != 1 || f.posted[0] != "acme" {
		t.Errorf("posted by = %v, want [acme]", f.posted)
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	f := newRouterFixture(t, nil, nil)

	w := serve(f.router, httptest.NewRequest(http.MethodGet, "/health", nil))
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}
