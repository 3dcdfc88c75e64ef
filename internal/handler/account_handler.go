package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/jobboard/internal/account"
	"github.com/hitoshi/jobboard/internal/middleware"
	"github.com/hitoshi/jobboard/internal/model"
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	Get(ctx context.Context, accountID string) (*model.Account, error)
	UpdateProfile(ctx context.Context, accountID string, in account.ProfileInput) (*model.Account, error)
	// Withdraw はセッションとアカウントを削除する。応募や履歴の操作者参照は外れる。
	Withdraw(ctx context.Context, accountID string) error
}

// AccountHandler はアカウント管理のHTTPハンドラー。
type AccountHandler struct {
	service      AccountServiceInterface
	cookieDomain string
	cookieSecure bool
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface, config AuthHandlerConfig) *AccountHandler {
	return &AccountHandler{
		service:      service,
		cookieDomain: config.CookieDomain,
		cookieSecure: config.CookieSecure,
	}
}

type profileRequest struct {
	Name        string `json:"name"`
	Headline    string `json:"headline"`
	Skills      string `json:"skills"`
	Location    string `json:"location"`
	ResumeRef   string `json:"resume_ref"`
	LinkedInURL string `json:"linkedin_url"`
	CompanyName string `json:"company_name"`
	Description string `json:"description"`
	Website     string `json:"website"`
	AgencyName  string `json:"agency_name"`
}

// Get はログイン中のアカウントを返す。
// GET /api/account
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	acc, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

// UpdateProfile はプロフィールを更新する。ロールに関係しない項目は無視される。
// PUT /api/account
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	acc, err := h.service.UpdateProfile(r.Context(), id, account.ProfileInput{
		Name:        req.Name,
		Headline:    req.Headline,
		Skills:      req.Skills,
		Location:    req.Location,
		ResumeRef:   req.ResumeRef,
		LinkedInURL: req.LinkedInURL,
		CompanyName: req.CompanyName,
		Description: req.Description,
		Website:     req.Website,
		AgencyName:  req.AgencyName,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

// Withdraw は退会処理を実行し、セッションCookieを削除する。
// DELETE /api/account
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	if err := h.service.Withdraw(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.cookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
