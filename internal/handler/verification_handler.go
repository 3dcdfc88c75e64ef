package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/verification"
)

// VerificationServiceInterface は本人確認ハンドラーが必要とするサービスインターフェース。
type VerificationServiceInterface interface {
	IssuePhoneCode(ctx context.Context, accountID, phone string) (*verification.Issued, error)
	ResendPhoneCode(ctx context.Context, accountID string) (*verification.Issued, error)
	VerifyPhoneCode(ctx context.Context, accountID, code string) error
	IssueEmailToken(ctx context.Context, accountID string) (*verification.Issued, error)
	VerifyEmailToken(ctx context.Context, token string) (*model.Account, error)
	IssueTwoFactorCode(ctx context.Context, accountID string) (*verification.Issued, error)
	VerifyTwoFactorCode(ctx context.Context, accountID, code string) error
	Status(ctx context.Context, accountID string) (*model.VerificationStatus, error)
}

// VerificationHandler は電話番号・メールアドレス・2段階認証のHTTPハンドラー。
type VerificationHandler struct {
	service VerificationServiceInterface
	baseURL string
}

// NewVerificationHandler はVerificationHandlerを生成する。
// baseURLはメール確認リンクを開いた後のリダイレクト先。
func NewVerificationHandler(service VerificationServiceInterface, baseURL string) *VerificationHandler {
	return &VerificationHandler{service: service, baseURL: baseURL}
}

type phoneRequest struct {
	Phone string `json:"phone"`
}

type codeRequest struct {
	Code string `json:"code"`
}

// issuedResponse は発行結果。送信に失敗してもコードは有効なため200で返し、警告を付ける。
type issuedResponse struct {
	Channel     string    `json:"channel"`
	Destination string    `json:"destination"`
	ExpiresAt   time.Time `json:"expires_at"`
	Delivered   bool      `json:"delivered"`
	Warning     string    `json:"warning,omitempty"`
}

func toIssuedResponse(i *verification.Issued) issuedResponse {
	return issuedResponse{
		Channel:     i.Channel,
		Destination: i.Destination,
		ExpiresAt:   i.ExpiresAt,
		Delivered:   i.DeliveryErr == nil,
		Warning:     warningOf(i.DeliveryErr),
	}
}

// Status は確認状況と本人確認レベルを返す。
// GET /api/verification
func (h *VerificationHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	st, err := h.service.Status(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verificationStatusResponse{
		PhoneVerified: st.PhoneVerified,
		EmailVerified: st.EmailVerified,
		Phone:         st.Phone,
		Level:         string(st.Level),
	})
}

// IssuePhoneCode はSMS確認コードを発行する。
// POST /api/verification/phone
func (h *VerificationHandler) IssuePhoneCode(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req phoneRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.writeIssued(w, r, func(ctx context.Context) (*verification.Issued, error) {
		return h.service.IssuePhoneCode(ctx, id, req.Phone)
	})
}

// ResendPhoneCode は直近の電話番号に確認コードを再発行する。
// POST /api/verification/phone/resend
func (h *VerificationHandler) ResendPhoneCode(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	h.writeIssued(w, r, func(ctx context.Context) (*verification.Issued, error) {
		return h.service.ResendPhoneCode(ctx, id)
	})
}

// VerifyPhoneCode はSMS確認コードを照合する。
// POST /api/verification/phone/verify
func (h *VerificationHandler) VerifyPhoneCode(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req codeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.VerifyPhoneCode(r.Context(), id, req.Code); err != nil {
		handleServiceError(w, err)
		return
	}
	h.Status(w, r)
}

// IssueEmailToken はメールアドレス確認リンクを送る。
// POST /api/verification/email
func (h *VerificationHandler) IssueEmailToken(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	h.writeIssued(w, r, func(ctx context.Context) (*verification.Issued, error) {
		return h.service.IssueEmailToken(ctx, id)
	})
}

// VerifyEmail はメール内のリンクからトークンを照合し、フロントエンドにリダイレクトする。
// ログインしていなくても照合できる。
// GET /verify-email/{token}
func (h *VerificationHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if _, err := h.service.VerifyEmailToken(r.Context(), token); err != nil {
		handleServiceError(w, err)
		return
	}
	http.Redirect(w, r, h.baseURL+"/?email_verified=1", http.StatusSeeOther)
}

// IssueTwoFactorCode は2段階認証コードを確認済みの電話番号へ送る。
// POST /api/verification/2fa
func (h *VerificationHandler) IssueTwoFactorCode(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	h.writeIssued(w, r, func(ctx context.Context) (*verification.Issued, error) {
		return h.service.IssueTwoFactorCode(ctx, id)
	})
}

// VerifyTwoFactorCode は2段階認証コードを照合する。
// POST /api/verification/2fa/verify
func (h *VerificationHandler) VerifyTwoFactorCode(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req codeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.VerifyTwoFactorCode(r.Context(), id, req.Code); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *VerificationHandler) writeIssued(w http.ResponseWriter, r *http.Request, issue func(context.Context) (*verification.Issued, error)) {
	issued, err := issue(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIssuedResponse(issued))
}
