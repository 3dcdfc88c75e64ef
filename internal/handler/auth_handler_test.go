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

	"github.com/hitoshi/jobboard/internal/auth"
	"github.com/hitoshi/jobboard/internal/middleware"
	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/verification"
)

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn       func(state string) string
	handleCallbackFn    func(ctx context.Context, code string, role model.Role) (*auth.LoginResult, error)
	logoutFn            func(ctx context.Context, sessionID string) error
	getCurrentAccountFn func(ctx context.Context, sessionID string) (*model.Account, error)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string, role model.Role) (*auth.LoginResult, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code, role)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentAccount(ctx context.Context, sessionID string) (*model.Account, error) {
	if m.getCurrentAccountFn != nil {
		return m.getCurrentAccountFn(ctx, sessionID)
	}
	return nil, nil
}

type mockEmailIssuer struct {
	calls []string
	err   error
}

func (m *mockEmailIssuer) IssueEmailToken(ctx context.Context, accountID string) (*verification.Issued, error) {
	m.calls = append(m.calls, accountID)
	if m.err != nil {
		return nil, m.err
	}
	return &verification.Issued{Channel: verification.ChannelEmail, Destination: accountID + "@example.com"}, nil
}

var testAuthConfig = AuthHandlerConfig{
	BaseURL:       "http://localhost:3000",
	SessionMaxAge: 86400,
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func loginResult(created bool) *auth.LoginResult {
	return &auth.LoginResult{
		Session: &model.Session{ID: "session-abc", AccountID: "acc-1", ExpiresAt: time.Now().Add(24 * time.Hour)},
		Account: &model.Account{ID: "acc-1", Email: "jo@example.com", Role: model.RoleJobSeeker},
		Created: created,
	}
}

// --- テスト ---

func TestAuthHandler_Login_RedirectsWithStateAndRoleCookies(t *testing.T) {
	var gotState string
	svc := &mockAuthService{
		getLoginURLFn: func(state string) string {
			gotState = state
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}
	h := NewAuthHandler(svc, nil, testAuthConfig)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/login?role=employer", nil)
	w := httptest.NewRecorder()
	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if !strings.Contains(resp.Header.Get("Location"), "accounts.google.com") {
		t.Errorf("Location = %q, should contain google oauth URL", resp.Header.Get("Location"))
	}

	state := findCookie(resp, oauthStateCookie)
	if state == nil || state.Value == "" || state.Value != gotState {
		t.Errorf("state cookie = %+v, want value %q", state, gotState)
	}
	if !state.HttpOnly {
		t.Error("state cookie should be HttpOnly")
	}
	role := findCookie(resp, signupRoleCookie)
	if role == nil || role.Value != string(model.RoleEmployer) {
		t.Errorf("role cookie = %+v, want employer", role)
	}
}

func TestAuthHandler_Login_RejectsUnknownRole(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, nil, testAuthConfig)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/login?role=admin", nil)
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAuthHandler_Callback_Success_SetsCookieAndRedirects(t *testing.T) {
	var gotRole model.Role
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string, role model.Role) (*auth.LoginResult, error) {
			gotRole = role
			return loginResult(false), nil
		},
	}
	emails := &mockEmailIssuer{}
	h := NewAuthHandler(svc, emails, testAuthConfig)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=test-code&state=test-state", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "test-state"})
	req.AddCookie(&http.Cookie{Name: signupRoleCookie, Value: "employer"})
	w := httptest.NewRecorder()
	h.Callback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if loc := resp.Header.Get("Location"); loc != "http://localhost:3000" {
		t.Errorf("Location = %q, want %q", loc, "http://localhost:3000")
	}
	if gotRole != model.RoleEmployer {
		t.Errorf("signup role = %q, want employer", gotRole)
	}

	session := findCookie(resp, middleware.SessionCookieName)
	if session == nil || session.Value != "session-abc" {
		t.Fatalf("session cookie = %+v", session)
	}
	if !session.HttpOnly || session.MaxAge != 86400 {
		t.Errorf("session cookie attributes = %+v", session)
	}
	if len(emails.calls) != 0 {
		t.Errorf("existing account should not receive a verification email, got %v", emails.calls)
	}
}

func TestAuthHandler_Callback_NewAccountGetsVerificationEmail(t *testing.T) {
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string, role model.Role) (*auth.LoginResult, error) {
			return loginResult(true), nil
		},
	}
	emails := &mockEmailIssuer{err: errors.New("smtp down")}
	h := NewAuthHandler(svc, emails, testAuthConfig)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=c&state=s", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "s"})
	w := httptest.NewRecorder()
	h.Callback(w, req)

	// 確認メールの失敗はログインを妨げない
	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTemporaryRedirect)
	}
	if len(emails.calls) != 1 || emails.calls[0] != "acc-1" {
		t.Errorf("email token calls = %v, want [acc-1]", emails.calls)
	}
}

func TestAuthHandler_Callback_StateMismatch(t *testing.T) {
	called := false
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string, role model.Role) (*auth.LoginResult, error) {
			called = true
			return loginResult(false), nil
		},
	}
	h := NewAuthHandler(svc, nil, testAuthConfig)

	tests := []struct {
		name   string
		query  string
		cookie string
	}{
		{"no cookie", "?code=c&state=s", ""},
		{"different state", "?code=c&state=s", "other"},
		{"empty state", "?code=c", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/google/callback"+tt.query, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			h.Callback(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
	if called {
		t.Error("HandleCallback should not be called when state does not match")
	}
}

func TestAuthHandler_Callback_MissingCode(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, nil, testAuthConfig)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=s", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "s"})
	w := httptest.NewRecorder()
	h.Callback(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAuthHandler_Callback_ServiceError(t *testing.T) {
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string, role model.Role) (*auth.LoginResult, error) {
			return nil, errors.New("token exchange failed")
		},
	}
	h := NewAuthHandler(svc, nil, testAuthConfig)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=c&state=s", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "s"})
	w := httptest.NewRecorder()
	h.Callback(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if findCookie(w.Result(), middleware.SessionCookieName) != nil {
		t.Error("session cookie should not be set on failure")
	}
}

func TestAuthHandler_Logout_ClearsCookie(t *testing.T) {
	var loggedOut string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			loggedOut = sessionID
			return errors.New("already gone")
		},
	}
	h := NewAuthHandler(svc, nil, testAuthConfig)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-abc"})
	w := httptest.NewRecorder()
	h.Logout(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if loggedOut != "session-abc" {
		t.Errorf("logout session = %q, want session-abc", loggedOut)
	}
	c := findCookie(w.Result(), middleware.SessionCookieName)
	if c == nil || c.MaxAge >= 0 {
		t.Errorf("session cookie should be cleared, got %+v", c)
	}
}

func TestAuthHandler_Me(t *testing.T) {
	svc := &mockAuthService{
		getCurrentAccountFn: func(ctx context.Context, sessionID string) (*model.Account, error) {
			if sessionID != "valid" {
				return nil, errors.New("session not found or expired")
			}
			return &model.Account{
				ID:      "acc-1",
				Email:   "acme@example.com",
				Name:    "Acme",
				Role:    model.RoleEmployer,
				Profile: &model.EmployerProfile{CompanyName: "Acme"},
			}, nil
		},
	}
	h := NewAuthHandler(svc, nil, testAuthConfig)

	t.Run("no cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Me(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("expired session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "stale"})
		w := httptest.NewRecorder()
		h.Me(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("valid session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "valid"})
		w := httptest.NewRecorder()
		h.Me(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		var body accountResponse
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if body.ID != "acc-1" || body.Role != "employer" || body.Profile.CompanyName != "Acme" {
			t.Errorf("unexpected body: %+v", body)
		}
	})
}
