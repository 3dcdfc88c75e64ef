package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/team"
)

// TeamServiceInterface はチームハンドラーが必要とするサービスインターフェース。
type TeamServiceInterface interface {
	Create(ctx context.Context, ownerID, name string) (*model.Team, error)
	Mine(ctx context.Context, actorID string) (*model.Team, model.TeamRole, error)
	Members(ctx context.Context, actorID, teamID string) ([]*model.TeamMember, error)
	ChangeRole(ctx context.Context, actorID, teamID, userID string, role model.TeamRole) error
	RemoveMember(ctx context.Context, actorID, teamID, userID string) error
	Invite(ctx context.Context, actorID, teamID, email string, role model.TeamRole) (*team.InviteResult, error)
	Invitations(ctx context.Context, actorID, teamID string) ([]*model.TeamInvitation, error)
	Accept(ctx context.Context, actorID, token string) (*model.TeamMember, error)
	Decline(ctx context.Context, actorID, token string) error
	Activity(ctx context.Context, actorID, teamID string, limit int) ([]*model.ActivityLog, error)
}

// TeamHandler は採用チームと招待のHTTPハンドラー。
type TeamHandler struct {
	service TeamServiceInterface
}

// NewTeamHandler はTeamHandlerを生成する。
func NewTeamHandler(service TeamServiceInterface) *TeamHandler {
	return &TeamHandler{service: service}
}

type createTeamRequest struct {
	Name string `json:"name"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type inviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type invitedResponse struct {
	Invitation invitationResponse `json:"invitation"`
	EmailSent  bool               `json:"email_sent"`
	Warning    string             `json:"warning,omitempty"`
}

// Create はチームを作成する。作成者が所有者になる。
// POST /api/teams
func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req createTeamRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.service.Create(r.Context(), id, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, teamResponse{ID: t.ID, OwnerID: t.OwnerID, Name: t.Name, Role: string(model.TeamRoleOwner)})
}

// Mine は所有または所属しているチームと自分の役割を返す。
// GET /api/teams/mine
func (h *TeamHandler) Mine(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	t, role, err := h.service.Mine(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if t == nil {
		handleServiceError(w, model.NewNotFoundError("チーム"))
		return
	}
	writeJSON(w, http.StatusOK, teamResponse{ID: t.ID, OwnerID: t.OwnerID, Name: t.Name, Role: string(role)})
}

// Members はアクティブなメンバーを返す。
// GET /api/teams/{id}/members
func (h *TeamHandler) Members(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	members, err := h.service.Members(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	out := make([]memberResponse, len(members))
	for i, m := range members {
		out[i] = memberResponse{UserID: m.UserID, Role: string(m.Role), IsActive: m.IsActive, JoinedAt: m.JoinedAt}
	}
	writeJSON(w, http.StatusOK, out)
}

// ChangeRole はメンバーの役割を変更する。
// PUT /api/teams/{id}/members/{userID}
func (h *TeamHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.ChangeRole(r.Context(), id, chi.URLParam(r, "id"), chi.URLParam(r, "userID"), model.TeamRole(req.Role)); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember はメンバーをチームから外す。
// DELETE /api/teams/{id}/members/{userID}
func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveMember(r.Context(), id, chi.URLParam(r, "id"), chi.URLParam(r, "userID")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Invite はメールアドレス宛てに招待を送る。
// POST /api/teams/{id}/invitations
func (h *TeamHandler) Invite(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	var req inviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.service.Invite(r.Context(), id, chi.URLParam(r, "id"), req.Email, model.TeamRole(req.Role))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, invitedResponse{
		Invitation: toInvitationResponse(result.Invitation),
		EmailSent:  result.Notification.Delivered,
		Warning:    warningOf(result.Notification.Err),
	})
}

// Invitations はチームの招待一覧を返す。
// GET /api/teams/{id}/invitations
func (h *TeamHandler) Invitations(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	list, err := h.service.Invitations(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	out := make([]invitationResponse, len(list))
	for i, inv := range list {
		out[i] = toInvitationResponse(inv)
	}
	writeJSON(w, http.StatusOK, out)
}

// Activity はチームの操作ログを新しい順に返す。
// GET /api/teams/{id}/activity?limit=50
func (h *TeamHandler) Activity(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	logs, err := h.service.Activity(r.Context(), id, chi.URLParam(r, "id"), queryInt(r, "limit", 0))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	out := make([]activityResponse, len(logs))
	for i, l := range logs {
		out[i] = toActivityResponse(l)
	}
	writeJSON(w, http.StatusOK, out)
}

// Accept は招待を承諾してチームに参加する。
// POST /api/invitations/{token}/accept
func (h *TeamHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	m, err := h.service.Accept(r.Context(), id, chi.URLParam(r, "token"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, memberResponse{UserID: m.UserID, Role: string(m.Role), IsActive: m.IsActive, JoinedAt: m.JoinedAt})
}

// Decline は招待を辞退する。
// POST /api/invitations/{token}/decline
func (h *TeamHandler) Decline(w http.ResponseWriter, r *http.Request) {
	id, ok := actorID(w, r)
	if !ok {
		return
	}
	if err := h.service.Decline(r.Context(), id, chi.URLParam(r, "token")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
