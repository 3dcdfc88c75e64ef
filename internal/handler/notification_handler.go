package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobboard/internal/model"
)

// InboxInterface は通知ハンドラーが必要とするサービスインターフェース。
type InboxInterface interface {
	List(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]*model.Notification, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, recipientID, id string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}

// NotificationHandler はアプリ内通知のHTTPハンドラー。
type NotificationHandler struct {
	inbox InboxInterface
}

// NewNotificationHandler はNotificationHandlerを生成する。
func NewNotificationHandler(inbox InboxInterface) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

type unreadCountResponse struct {
	Count int `json:"count"`
}

type markAllReadResponse struct {
	Updated int64 `json:"updated"`
}

// List は通知を新しい順に返す。
// GET /api/notifications?unread=true&limit=50
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"
	list, err := h.inbox.List(r.Context(), id, unreadOnly, queryInt(r, "limit", 0))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	out := make([]notificationResponse, len(list))
	for i, n := range list {
		out[i] = toNotificationResponse(n)
	}
	writeJSON(w, http.StatusOK, out)
}

// UnreadCount は未読件数を返す。
// GET /api/notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	n, err := h.inbox.UnreadCount(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, unreadCountResponse{Count: n})
}

// MarkRead は1件を既読にする。
// POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	if err := h.inbox.MarkRead(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead は未読をすべて既読にする。
// POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	n, err := h.inbox.MarkAllRead(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, markAllReadResponse{Updated: n})
}
