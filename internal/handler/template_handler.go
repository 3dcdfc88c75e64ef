package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/notify"
)

// TemplateServiceInterface はメールテンプレートハンドラーが必要とするサービスインターフェース。
type TemplateServiceInterface interface {
	List(ctx context.Context, actorID string) ([]*model.EmailTemplate, error)
	Create(ctx context.Context, actorID string, in notify.TemplateInput) (*model.EmailTemplate, error)
	Update(ctx context.Context, actorID, id string, in notify.TemplateInput) (*model.EmailTemplate, error)
	Delete(ctx context.Context, actorID, id string) error
	Send(ctx context.Context, in notify.SendInput) (*notify.Outcome, error)
}

// TemplateHandler はメールテンプレートと応募者へのメール送信のHTTPハンドラー。
type TemplateHandler struct {
	service TemplateServiceInterface
}

// NewTemplateHandler はTemplateHandlerを生成する。
func NewTemplateHandler(service TemplateServiceInterface) *TemplateHandler {
	return &TemplateHandler{service: service}
}

type templateRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	IsActive *bool  `json:"is_active"`
}

func (r templateRequest) toInput() notify.TemplateInput {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return notify.TemplateInput{
		Name:     r.Name,
		Type:     model.TemplateType(r.Type),
		Subject:  r.Subject,
		Body:     r.Body,
		IsActive: active,
	}
}

type sendEmailRequest struct {
	TemplateID string `json:"template_id"`
}

type sendEmailResponse struct {
	Delivered bool   `json:"delivered"`
	Warning   string `json:"warning,omitempty"`
}

// List はテンプレート一覧を返す。未作成なら既定テンプレートを投入する。
// GET /api/templates
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	templates, err := h.service.List(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	out := make([]templateResponse, len(templates))
	for i, t := range templates {
		out[i] = toTemplateResponse(t)
	}
	writeJSON(w, http.StatusOK, out)
}

// Create はテンプレートを作成する。
// POST /api/templates
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req templateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.service.Create(r.Context(), id, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTemplateResponse(t))
}

// Update はテンプレートを更新する。
// PUT /api/templates/{id}
func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req templateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.service.Update(r.Context(), id, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateResponse(t))
}

// Delete はテンプレートを削除する。
// DELETE /api/templates/{id}
func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Send はテンプレートを使って応募者にメールを送る。
// 送信に失敗しても送信ログは残るため、200で警告を返す。
// POST /api/applications/{id}/emails
func (h *TemplateHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req sendEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := h.service.Send(r.Context(), notify.SendInput{
		ActorID:       id,
		ApplicationID: chi.URLParam(r, "id"),
		TemplateID:    req.TemplateID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sendEmailResponse{Delivered: out.Delivered, Warning: warningOf(out.Err)})
}
