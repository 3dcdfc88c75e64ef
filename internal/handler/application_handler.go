package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobboard/internal/application"
	"github.com/hitoshi/jobboard/internal/model"
)

// ApplicationServiceInterface は応募ハンドラーが必要とするサービスインターフェース。
type ApplicationServiceInterface interface {
	Submit(ctx context.Context, in application.SubmitInput) (*application.SubmitResult, error)
	Get(ctx context.Context, actorID, applicationID string) (*model.Application, error)
	Resume(ctx context.Context, actorID, applicationID string) (string, error)
	ListForJob(ctx context.Context, actorID, jobID string) ([]*model.Application, error)
	ListMine(ctx context.Context, applicantID string) ([]*model.Application, error)
	UpdateStatus(ctx context.Context, actorID, applicationID string, status model.LegacyStatus) (*model.Application, error)
}

// ApplicationHandler は応募のHTTPハンドラー。
type ApplicationHandler struct {
	service ApplicationServiceInterface
}

// NewApplicationHandler はApplicationHandlerを生成する。
func NewApplicationHandler(service ApplicationServiceInterface) *ApplicationHandler {
	return &ApplicationHandler{service: service}
}

type applyRequest struct {
	CoverLetter string `json:"cover_letter"`
	ResumeRef   string `json:"resume_ref"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type resumeResponse struct {
	ResumeRef string `json:"resume_ref"`
}

// appliedResponse は応募結果。通知の失敗は応募の成否に影響しないため警告として返す。
type appliedResponse struct {
	Application applicationResponse `json:"application"`
	Warning     string              `json:"warning,omitempty"`
}

// Apply は求人に応募する。
// POST /api/jobs/{id}/apply
func (h *ApplicationHandler) Apply(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req applyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.service.Submit(r.Context(), application.SubmitInput{
		JobID:       chi.URLParam(r, "id"),
		ApplicantID: id,
		CoverLetter: req.CoverLetter,
		ResumeRef:   req.ResumeRef,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appliedResponse{
		Application: toApplicationResponse(result.Application),
		Warning:     warningOf(result.Notification.Err),
	})
}

// Get は応募を返す。応募者本人と、求人に対してview権限を持つ採用側が閲覧できる。
// GET /api/applications/{id}
func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	app, err := h.service.Get(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

// Resume は応募に使う履歴書の参照を返す。応募ごとの添付がなければプロフィールの既定を返す。
// GET /api/applications/{id}/resume
func (h *ApplicationHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	ref, err := h.service.Resume(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resumeResponse{ResumeRef: ref})
}

// ListForJob は求人への応募を返す。
// GET /api/jobs/{id}/applications
func (h *ApplicationHandler) ListForJob(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	apps, err := h.service.ListForJob(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponses(apps))
}

// ListMine は自分の応募を返す。
// GET /api/applications/mine
func (h *ApplicationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	apps, err := h.service.ListMine(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponses(apps))
}

// UpdateStatus は粗い応募状態を直接更新する。
// PUT /api/applications/{id}/status
func (h *ApplicationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	app, err := h.service.UpdateStatus(r.Context(), id, chi.URLParam(r, "id"), model.LegacyStatus(req.Status))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}
