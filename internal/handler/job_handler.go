package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobboard/internal/job"
	"github.com/hitoshi/jobboard/internal/middleware"
	"github.com/hitoshi/jobboard/internal/model"
)

// JobServiceInterface は求人ハンドラーが必要とするサービスインターフェース。
type JobServiceInterface interface {
	Post(ctx context.Context, actorID string, in job.Input) (*model.JobPosting, error)
	Update(ctx context.Context, actorID, jobID string, in job.Input) (*model.JobPosting, error)
	Toggle(ctx context.Context, actorID, jobID string) (*model.JobPosting, error)
	Get(ctx context.Context, viewerID, jobID string) (*model.JobPosting, error)
	Search(ctx context.Context, q model.JobQuery) ([]*model.JobPosting, error)
	Dashboard(ctx context.Context, actorID string) ([]*model.JobSummary, error)
	Save(ctx context.Context, userID, jobID string) error
	Unsave(ctx context.Context, userID, jobID string) error
	Saved(ctx context.Context, userID string) ([]*model.JobPosting, error)
}

// JobHandler は求人のHTTPハンドラー。
type JobHandler struct {
	service JobServiceInterface
}

// NewJobHandler はJobHandlerを生成する。
func NewJobHandler(service JobServiceInterface) *JobHandler {
	return &JobHandler{service: service}
}

// Search は公開中の求人を検索する。
// GET /api/jobs?q=go&limit=20&offset=0
func (h *JobHandler) Search(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.Search(r.Context(), model.JobQuery{
		Keyword: r.URL.Query().Get("q"),
		Limit:   queryInt(r, "limit", 0),
		Offset:  queryInt(r, "offset", 0),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponses(jobs))
}

// Get は求人を返す。非公開の求人は採用側のメンバーのみ閲覧できる。
// GET /api/jobs/{id}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	// 任意認証のため、未ログインなら空のviewerで問い合わせる
	viewer, _ := middleware.AccountIDFromContext(r.Context())
	j, err := h.service.Get(r.Context(), viewer, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(j))
}

// Post は求人を投稿する。
// POST /api/jobs
func (h *JobHandler) Post(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req jobInputRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	j, err := h.service.Post(r.Context(), id, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJobResponse(j))
}

// Update は求人を編集する。
// PUT /api/jobs/{id}
func (h *JobHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req jobInputRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	j, err := h.service.Update(r.Context(), id, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(j))
}

// Toggle は求人の公開・非公開を切り替える。
// POST /api/jobs/{id}/toggle
func (h *JobHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	j, err := h.service.Toggle(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(j))
}

// Mine は採用側ダッシュボード向けに求人と応募件数を返す。
// GET /api/jobs/mine
func (h *JobHandler) Mine(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	summaries, err := h.service.Dashboard(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobSummaryResponses(summaries))
}

// Save は求人を保存する。保存済みでも成功する。
// POST /api/jobs/{id}/save
func (h *JobHandler) Save(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	if err := h.service.Save(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unsave は保存を解除する。
// DELETE /api/jobs/{id}/save
func (h *JobHandler) Unsave(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	if err := h.service.Unsave(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Saved は保存した求人を返す。
// GET /api/saved-jobs
func (h *JobHandler) Saved(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	jobs, err := h.service.Saved(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponses(jobs))
}
