// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/jobboard/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

type contextKey string

var (
	accountIDContextKey     = contextKey("account_id")
	accountHolderContextKey = contextKey("account_holder")
)

// accountHolder は外側のミドルウェアが内側で確定したアカウントIDを受け取るための入れ物。
type accountHolder struct {
	id string
}

func withAccountHolder(ctx context.Context, h *accountHolder) context.Context {
	return context.WithValue(ctx, accountHolderContextKey, h)
}

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// 認証済みアカウントIDをリクエストコンテキストに注入するミドルウェアを返す。
// 未認証リクエストには401を返す。
func NewSessionMiddleware(finder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID := lookupSession(r, finder)
			if accountID == "" {
				WriteUnauthenticated(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithAccountID(r.Context(), accountID)))
		})
	}
}

// NewOptionalSessionMiddleware は有効なセッションがあればアカウントIDを注入し、
// なければそのまま次に渡すミドルウェアを返す。公開エンドポイント用。
func NewOptionalSessionMiddleware(finder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if accountID := lookupSession(r, finder); accountID != "" {
				r = r.WithContext(ContextWithAccountID(r.Context(), accountID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func lookupSession(r *http.Request, finder SessionFinder) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	session, err := finder.FindByID(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to find session", slog.String("error", err.Error()))
		return ""
	}
	if session == nil {
		return ""
	}
	return session.AccountID
}

// AccountIDFromContext はリクエストコンテキストからアカウントIDを取得する。
func AccountIDFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(accountIDContextKey).(string)
	if !ok || id == "" {
		return "", fmt.Errorf("account ID not found in context")
	}
	return id, nil
}

// ContextWithAccountID はコンテキストにアカウントIDを注入する。
func ContextWithAccountID(ctx context.Context, accountID string) context.Context {
	if h, ok := ctx.Value(accountHolderContextKey).(*accountHolder); ok {
		h.id = accountID
	}
	return context.WithValue(ctx, accountIDContextKey, accountID)
}
