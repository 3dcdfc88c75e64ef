package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/repository"
	"github.com/hitoshi/jobboard/internal/repository/memstore"
	"github.com/hitoshi/jobboard/internal/testutil"
)

// --- モック定義 ---

type mockOAuthProvider struct {
	getLoginURLFn  func(state string) string
	exchangeCodeFn func(ctx context.Context, code string) (*OAuthUserInfo, error)
}

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, nil
}

type mockSessionRepo struct {
	repository.SessionRepository
	createFn     func(ctx context.Context, session *model.Session) error
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	return m.createFn(ctx, session)
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return m.deleteByIDFn(ctx, id)
}

var _ OAuthProvider = (*mockOAuthProvider)(nil)

func googleUser(sub, email, name string) *mockOAuthProvider {
	return &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{ProviderUserID: sub, Email: email, EmailVerified: true, Name: name, Provider: "google"}, nil
		},
	}
}

func newMemService(t *testing.T, provider OAuthProvider) (*Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	svc := NewService(provider, st.Accounts(), st.Identities(), st.Sessions(), ServiceConfig{SessionMaxAge: 3600})
	return svc, st
}

// --- テスト ---

func TestGetLoginURL_ReturnsOAuthURL(t *testing.T) {
	provider := &mockOAuthProvider{
		getLoginURLFn: func(state string) string {
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}
	svc := NewService(provider, nil, nil, nil, ServiceConfig{SessionMaxAge: 86400})

	want := "https://accounts.google.com/o/oauth2/auth?state=test-state"
	if got := svc.GetLoginURL("test-state"); got != want {
		t.Errorf("GetLoginURL() = %q, want %q", got, want)
	}
}

func TestHandleCallback_Signup(t *testing.T) {
	tests := []struct {
		name string
		role model.Role
		want model.Role
	}{
		{"default job seeker", "", model.RoleJobSeeker},
		{"employer", model.RoleEmployer, model.RoleEmployer},
		{"recruiter", model.RoleRecruiter, model.RoleRecruiter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st := newMemService(t, googleUser("sub-1", "Hana@Example.com", "Hana"))
			ctx := context.Background()

			res, err := svc.HandleCallback(ctx, "code", tt.role)
			if err != nil {
				t.Fatalf("HandleCallback() error = %v", err)
			}
			if !res.Created {
				t.Error("expected a new account")
			}
			if res.Account.Role != tt.want || res.Account.Profile.ProfileRole() != tt.want {
				t.Errorf("role = %q, profile = %T", res.Account.Role, res.Account.Profile)
			}
			if res.Account.Email != "hana@example.com" {
				t.Errorf("expected lowercase email, got %q", res.Account.Email)
			}
			if res.Account.Approved {
				t.Error("new accounts must not be approved")
			}
			if len(res.Session.ID) != 64 {
				t.Errorf("expected 64 hex chars session ID, got %d", len(res.Session.ID))
			}

			stored, err := st.Sessions().FindByID(ctx, res.Session.ID)
			if err != nil || stored == nil || stored.AccountID != res.Account.ID {
				t.Errorf("expected session to be persisted, got %+v, %v", stored, err)
			}
		})
	}
}

func TestHandleCallback_ExistingAccountKeepsRole(t *testing.T) {
	svc, _ := newMemService(t, googleUser("sub-1", "hana@example.com", "Hana"))
	ctx := context.Background()

	first, err := svc.HandleCallback(ctx, "code", model.RoleEmployer)
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := svc.HandleCallback(ctx, "code", model.RoleJobSeeker)
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if second.Created {
		t.Error("expected existing account")
	}
	if second.Account.ID != first.Account.ID || second.Account.Role != model.RoleEmployer {
		t.Errorf("unexpected account: %+v", second.Account)
	}
	if second.Session.ID == first.Session.ID {
		t.Error("expected a fresh session")
	}
}

func TestHandleCallback_Errors(t *testing.T) {
	t.Run("oauth error", func(t *testing.T) {
		provider := &mockOAuthProvider{
			exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
				return nil, errors.New("invalid code")
			},
		}
		svc, _ := newMemService(t, provider)
		if _, err := svc.HandleCallback(context.Background(), "bad", ""); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("invalid role", func(t *testing.T) {
		svc, _ := newMemService(t, googleUser("sub-1", "hana@example.com", "Hana"))
		_, err := svc.HandleCallback(context.Background(), "code", model.Role("admin"))
		if !model.HasCode(err, model.ErrCodeInvalidInput) {
			t.Errorf("expected INVALID_INPUT, got %v", err)
		}
	})

	t.Run("email taken by another identity", func(t *testing.T) {
		svc, st := newMemService(t, googleUser("sub-2", "acme@example.com", "Acme"))
		seed := &testutil.Seeder{T: t, Store: st}
		seed.Employer("acme", "Acme")

		_, err := svc.HandleCallback(context.Background(), "code", model.RoleEmployer)
		if !model.HasCode(err, model.ErrCodeDuplicateName) {
			t.Errorf("expected DUPLICATE_NAME, got %v", err)
		}
	})
}

func TestLogout(t *testing.T) {
	var deleted string
	sessions := &mockSessionRepo{deleteByIDFn: func(ctx context.Context, id string) error {
		deleted = id
		return nil
	}}
	svc := NewService(&mockOAuthProvider{}, nil, nil, sessions, ServiceConfig{})

	if err := svc.Logout(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if deleted != "sess-1" {
		t.Errorf("deleted %q, want sess-1", deleted)
	}
	if err := svc.Logout(context.Background(), ""); err == nil {
		t.Error("expected error for empty session ID")
	}
}

func TestHandleCallback_SessionSaveError(t *testing.T) {
	st := memstore.New()
	sessions := &mockSessionRepo{createFn: func(ctx context.Context, session *model.Session) error {
		return errors.New("db down")
	}}
	svc := NewService(googleUser("sub-1", "hana@example.com", "Hana"), st.Accounts(), st.Identities(), sessions, ServiceConfig{SessionMaxAge: 60})

	if _, err := svc.HandleCallback(context.Background(), "code", ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestGetCurrentAccount(t *testing.T) {
	svc, _ := newMemService(t, googleUser("sub-1", "hana@example.com", "Hana"))
	ctx := context.Background()
	res, err := svc.HandleCallback(ctx, "code", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	got, err := svc.GetCurrentAccount(ctx, res.Session.ID)
	if err != nil {
		t.Fatalf("GetCurrentAccount() error = %v", err)
	}
	if got.ID != res.Account.ID {
		t.Errorf("got account %q, want %q", got.ID, res.Account.ID)
	}

	if _, err := svc.GetCurrentAccount(ctx, ""); err == nil {
		t.Error("expected error for empty session ID")
	}
	if _, err := svc.GetCurrentAccount(ctx, "unknown"); err == nil {
		t.Error("expected error for unknown session")
	}

	svc.config.SessionMaxAge = -1
	expired, err := svc.HandleCallback(ctx, "code", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.GetCurrentAccount(ctx, expired.Session.ID); err == nil {
		t.Error("expected error for expired session")
	}
}
