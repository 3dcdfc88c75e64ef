package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/review"
)

// ReviewServiceInterface はメモ・評価・タグのハンドラーが必要とするサービスインターフェース。
type ReviewServiceInterface interface {
	AddNote(ctx context.Context, actorID, applicationID, content string, private bool) (*model.Note, error)
	ListNotes(ctx context.Context, actorID, applicationID string) ([]*model.Note, error)
	DeleteNote(ctx context.Context, actorID, applicationID, noteID string) error
	Rate(ctx context.Context, actorID, applicationID string, in review.RatingInput) (*model.Rating, error)
	Ratings(ctx context.Context, actorID, applicationID string) (*review.RatingSummary, error)
	ListTags(ctx context.Context, actorID string) ([]*model.Tag, error)
	CreateTag(ctx context.Context, actorID, name, color string) (*model.Tag, error)
	DeleteTag(ctx context.Context, actorID, tagID string) error
	ApplicationTags(ctx context.Context, actorID, applicationID string) ([]*model.Tag, error)
	AssignTag(ctx context.Context, actorID, applicationID, tagID string) error
	UnassignTag(ctx context.Context, actorID, applicationID, tagID string) error
}

// ReviewHandler は応募の社内評価（メモ・評価・タグ）のHTTPハンドラー。
type ReviewHandler struct {
	service ReviewServiceInterface
}

// NewReviewHandler はReviewHandlerを生成する。
func NewReviewHandler(service ReviewServiceInterface) *ReviewHandler {
	return &ReviewHandler{service: service}
}

type noteRequest struct {
	Content   string `json:"content"`
	IsPrivate bool   `json:"is_private"`
}

type ratingRequest struct {
	Overall       int    `json:"overall"`
	Technical     *int   `json:"technical"`
	Communication *int   `json:"communication"`
	CultureFit    *int   `json:"culture_fit"`
	Comment       string `json:"comment"`
}

type tagRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type assignTagRequest struct {
	TagID string `json:"tag_id"`
}

// ListNotes はアクターが閲覧できるメモを返す。
// GET /api/applications/{id}/notes
func (h *ReviewHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	notes, err := h.service.ListNotes(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	out := make([]noteResponse, len(notes))
	for i, n := range notes {
		out[i] = toNoteResponse(n)
	}
	writeJSON(w, http.StatusOK, out)
}

// AddNote はメモを追加する。
// POST /api/applications/{id}/notes
func (h *ReviewHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req noteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	note, err := h.service.AddNote(r.Context(), id, chi.URLParam(r, "id"), req.Content, req.IsPrivate)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNoteResponse(note))
}

// DeleteNote は自分のメモを削除する。
// DELETE /api/applications/{id}/notes/{noteID}
func (h *ReviewHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteNote(r.Context(), id, chi.URLParam(r, "id"), chi.URLParam(r, "noteID")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Ratings は評価一覧と平均を返す。
// GET /api/applications/{id}/ratings
func (h *ReviewHandler) Ratings(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	summary, err := h.service.Ratings(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRatingSummaryResponse(summary))
}

// Rate は自分の評価を作成または更新する。
// PUT /api/applications/{id}/ratings
func (h *ReviewHandler) Rate(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req ratingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rating, err := h.service.Rate(r.Context(), id, chi.URLParam(r, "id"), review.RatingInput{
		Overall:       req.Overall,
		Technical:     req.Technical,
		Communication: req.Communication,
		CultureFit:    req.CultureFit,
		Comment:       req.Comment,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRatingResponse(rating))
}

// ListTags は雇用者のタグを返す。
// GET /api/tags
func (h *ReviewHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	tags, err := h.service.ListTags(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTagResponses(tags))
}

// CreateTag はタグを作成する。
// POST /api/tags
func (h *ReviewHandler) CreateTag(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req tagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tag, err := h.service.CreateTag(r.Context(), id, req.Name, req.Color)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTagResponses([]*model.Tag{tag})[0])
}

// DeleteTag はタグを削除する。割り当ても消える。
// DELETE /api/tags/{id}
func (h *ReviewHandler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteTag(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplicationTags は応募に割り当てられたタグを返す。
// GET /api/applications/{id}/tags
func (h *ReviewHandler) ApplicationTags(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	tags, err := h.service.ApplicationTags(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTagResponses(tags))
}

// AssignTag は応募にタグを割り当てる。割り当て済みでも成功する。
// POST /api/applications/{id}/tags
func (h *ReviewHandler) AssignTag(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req assignTagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.AssignTag(r.Context(), id, chi.URLParam(r, "id"), req.TagID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnassignTag は応募からタグを外す。
// DELETE /api/applications/{id}/tags/{tagID}
func (h *ReviewHandler) UnassignTag(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	if err := h.service.UnassignTag(r.Context(), id, chi.URLParam(r, "id"), chi.URLParam(r, "tagID")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
