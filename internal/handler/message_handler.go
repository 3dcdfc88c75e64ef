package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobboard/internal/message"
	"github.com/hitoshi/jobboard/internal/model"
)

// MessageServiceInterface はメッセージハンドラーが必要とするサービスインターフェース。
type MessageServiceInterface interface {
	Thread(ctx context.Context, actorID, applicationID string) ([]*model.Message, error)
	Send(ctx context.Context, actorID, applicationID, content string) (*message.SendResult, error)
}

// MessageHandler は応募ごとのメッセージスレッドのHTTPハンドラー。
type MessageHandler struct {
	service MessageServiceInterface
}

// NewMessageHandler はMessageHandlerを生成する。
func NewMessageHandler(service MessageServiceInterface) *MessageHandler {
	return &MessageHandler{service: service}
}

type messageRequest struct {
	Content string `json:"content"`
}

type sentMessageResponse struct {
	Message messageResponse `json:"message"`
	Warning string          `json:"warning,omitempty"`
}

// Thread はスレッドを古い順に返し、受信分を既読にする。
// GET /api/applications/{id}/messages
func (h *MessageHandler) Thread(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	msgs, err := h.service.Thread(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	out := make([]messageResponse, len(msgs))
	for i, m := range msgs {
		out[i] = toMessageResponse(m)
	}
	writeJSON(w, http.StatusOK, out)
}

// Send はメッセージを投稿する。
// POST /api/applications/{id}/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.service.Send(r.Context(), id, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sentMessageResponse{
		Message: toMessageResponse(result.Message),
		Warning: warningOf(result.Notification.Err),
	})
}
