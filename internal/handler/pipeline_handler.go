package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/pipeline"
)

// PipelineServiceInterface はパイプラインハンドラーが必要とするサービスインターフェース。
type PipelineServiceInterface interface {
	ListStages(ctx context.Context, actorID string) ([]*model.Stage, error)
	CreateStage(ctx context.Context, actorID string, in pipeline.StageInput) (*model.Stage, error)
	UpdateStage(ctx context.Context, actorID, stageID string, in pipeline.StageInput) (*model.Stage, error)
	ReorderStages(ctx context.Context, actorID string, orderedIDs []string) ([]*model.Stage, error)
	DeleteStage(ctx context.Context, actorID, stageID string) (int, error)
	Move(ctx context.Context, in pipeline.MoveInput) (*pipeline.MoveResult, error)
	History(ctx context.Context, actorID, applicationID string) ([]*model.StageHistory, error)
	Board(ctx context.Context, actorID, jobID string) (*pipeline.Board, error)
	Analytics(ctx context.Context, actorID, jobID string) (*pipeline.Analytics, error)
}

// PipelineHandler は採用パイプラインのHTTPハンドラー。
type PipelineHandler struct {
	service PipelineServiceInterface
}

// NewPipelineHandler はPipelineHandlerを生成する。
func NewPipelineHandler(service PipelineServiceInterface) *PipelineHandler {
	return &PipelineHandler{service: service}
}

type stageRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type reorderRequest struct {
	StageIDs []string `json:"stage_ids"`
}

type moveRequest struct {
	StageID   string `json:"stage_id"`
	Notes     string `json:"notes"`
	SendEmail bool   `json:"send_email"`
}

type moveResponse struct {
	Application   applicationResponse `json:"application"`
	History       historyResponse     `json:"history"`
	PreviousStage *string             `json:"previous_stage_id"`
	EmailSent     bool                `json:"email_sent"`
	Warning       string              `json:"warning,omitempty"`
}

type deleteStageResponse struct {
	Reassigned int `json:"reassigned"`
}

// ListStages は雇用者のステージを順番どおりに返す。未作成なら既定ステージを投入する。
// GET /api/stages
func (h *PipelineHandler) ListStages(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	stages, err := h.service.ListStages(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStageResponses(stages))
}

// CreateStage はステージを末尾に追加する。
// POST /api/stages
func (h *PipelineHandler) CreateStage(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req stageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	st, err := h.service.CreateStage(r.Context(), id, pipeline.StageInput{Name: req.Name, Color: req.Color})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStageResponse(st))
}

// UpdateStage はステージ名・色を変更する。
// PATCH /api/stages/{id}
func (h *PipelineHandler) UpdateStage(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req stageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	st, err := h.service.UpdateStage(r.Context(), id, chi.URLParam(r, "id"), pipeline.StageInput{Name: req.Name, Color: req.Color})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStageResponse(st))
}

// ReorderStages はステージの並び順を置き換える。
// PUT /api/stages/order
func (h *PipelineHandler) ReorderStages(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req reorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	stages, err := h.service.ReorderStages(r.Context(), id, req.StageIDs)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStageResponses(stages))
}

// DeleteStage はステージを削除し、所属していた応募を先頭のステージへ移す。
// DELETE /api/stages/{id}
func (h *PipelineHandler) DeleteStage(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	n, err := h.service.DeleteStage(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteStageResponse{Reassigned: n})
}

// Move は応募を別のステージに移動する。
// POST /api/applications/{id}/stage
func (h *PipelineHandler) Move(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.service.Move(r.Context(), pipeline.MoveInput{
		ActorID:       id,
		ApplicationID: chi.URLParam(r, "id"),
		StageID:       req.StageID,
		Notes:         req.Notes,
		SendEmail:     req.SendEmail,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, moveResponse{
		Application:   toApplicationResponse(result.Application),
		History:       toHistoryResponse(result.Entry),
		PreviousStage: result.PreviousStage,
		EmailSent:     result.Notification.Delivered,
		Warning:       warningOf(result.Notification.Err),
	})
}

// History は応募のステージ履歴を新しい順に返す。
// GET /api/applications/{id}/history
func (h *PipelineHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	entries, err := h.service.History(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	out := make([]historyResponse, len(entries))
	for i, e := range entries {
		out[i] = toHistoryResponse(e)
	}
	writeJSON(w, http.StatusOK, out)
}

// Board は求人の応募をステージ列ごとに返す。
// GET /api/jobs/{id}/pipeline
func (h *PipelineHandler) Board(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	board, err := h.service.Board(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBoardResponse(board))
}

// Analytics は求人の応募集計を返す。
// GET /api/jobs/{id}/analytics
func (h *PipelineHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	a, err := h.service.Analytics(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAnalyticsResponse(a))
}
