package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/hitoshi/jobboard/internal/auth"
	"github.com/hitoshi/jobboard/internal/middleware"
	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/verification"
)

const (
	oauthStateCookie = "oauth_state"
	signupRoleCookie = "signup_role"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string, signupRole model.Role) (*auth.LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentAccount(ctx context.Context, sessionID string) (*model.Account, error)
}

// EmailTokenIssuer は新規登録時の確認メール送信に使う。
type EmailTokenIssuer interface {
	IssueEmailToken(ctx context.Context, accountID string) (*verification.Issued, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	emails  EmailTokenIssuer
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。emailsがnilなら登録時の確認メールは送らない。
func NewAuthHandler(service AuthServiceInterface, emails EmailTokenIssuer, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		emails:  emails,
		config:  config,
	}
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google/login?role=employer
// roleは新規登録時のみ使われ、既存アカウントのロールは変わらない。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	role := model.Role(r.URL.Query().Get("role"))
	if role != "" && !role.Valid() {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("不明なロールです"))
		return
	}

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	h.setShortCookie(w, oauthStateCookie, state, 600)
	if role != "" {
		h.setShortCookie(w, signupRoleCookie, string(role), 600)
	}

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("stateパラメータが一致しません"))
		return
	}
	h.setShortCookie(w, oauthStateCookie, "", -1)

	var role model.Role
	if c, err := r.Cookie(signupRoleCookie); err == nil {
		role = model.Role(c.Value)
		h.setShortCookie(w, signupRoleCookie, "", -1)
	}

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("認可コードがありません"))
		return
	}

	// 3. 認証処理
	result, err := h.service.HandleCallback(r.Context(), code, role)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	// 4. 新規登録ならメールアドレス確認を送る。失敗してもログインは続行する
	if result.Created && h.emails != nil {
		if issued, err := h.emails.IssueEmailToken(r.Context(), result.Account.ID); err != nil {
			slog.Warn("failed to issue signup email token",
				slog.String("account_id", result.Account.ID),
				slog.String("error", err.Error()),
			)
		} else if issued.DeliveryErr != nil {
			slog.Warn("signup email token not delivered",
				slog.String("account_id", result.Account.ID),
				slog.String("error", issued.DeliveryErr.Error()),
			)
		}
	}

	// 5. セッションCookieを設定（HTTP Only）
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    result.Session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 6. フロントエンドにリダイレクト
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			// ログアウト失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインアカウント情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		middleware.WriteUnauthenticated(w)
		return
	}

	account, err := h.service.GetCurrentAccount(r.Context(), cookie.Value)
	if err != nil {
		slog.Debug("failed to get current account", slog.String("error", err.Error()))
		middleware.WriteUnauthenticated(w)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *AuthHandler) setShortCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
