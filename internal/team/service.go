// Package team は採用チーム、メンバー、招待、操作ログを扱う。
package team

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/notify"
	"github.com/hitoshi/jobboard/internal/permission"
	"github.com/hitoshi/jobboard/internal/repository"
	"github.com/hitoshi/jobboard/internal/security"
)

const (
	// DefaultInvitationTTL は招待の既定の有効期間。
	DefaultInvitationTTL = 7 * 24 * time.Hour

	defaultActivityLimit = 50
	maxActivityLimit     = 200
	tokenBytes           = 32
	tokenAttempts        = 3
)

// Notifier は招待イベントを受け取る。
type Notifier interface {
	Dispatch(ctx context.Context, ev notify.Event) notify.Outcome
}

// Service はチーム管理のビジネスロジックを提供する。
type Service struct {
	teams       repository.TeamRepository
	invitations repository.InvitationRepository
	activity    repository.ActivityRepository
	accounts    repository.AccountRepository
	resolver    *permission.Resolver
	notifier    Notifier
	sanitizer   *security.Sanitizer
	ttl         time.Duration
	now         func() time.Time
}

// NewService はServiceを生成する。ttlが0以下なら7日。
func NewService(
	teams repository.TeamRepository,
	invitations repository.InvitationRepository,
	activity repository.ActivityRepository,
	accounts repository.AccountRepository,
	resolver *permission.Resolver,
	notifier Notifier,
	sanitizer *security.Sanitizer,
	ttl time.Duration,
) *Service {
	if ttl <= 0 {
		ttl = DefaultInvitationTTL
	}
	return &Service{
		teams:       teams,
		invitations: invitations,
		activity:    activity,
		accounts:    accounts,
		resolver:    resolver,
		notifier:    notifier,
		sanitizer:   sanitizer,
		ttl:         ttl,
		now:         time.Now,
	}
}

// Create はアクターを所有者とするチームを作成する。採用側のアカウントのみ作成できる。
func (s *Service) Create(ctx context.Context, ownerID, name string) (*model.Team, error) {
	owner, err := s.accounts.FindByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if owner == nil {
		return nil, model.NewNotFoundError("アカウント")
	}
	if !owner.Role.IsHiring() {
		return nil, model.NewUnauthorizedError(model.CapManageTeam)
	}
	member, err := s.teams.FindActiveMembership(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("所属の取得に失敗しました: %w", err)
	}
	if member != nil {
		return nil, model.NewAlreadyMemberError()
	}

	name = s.sanitizer.Text(name)
	if name == "" || utf8.RuneCountInString(name) > 100 {
		return nil, model.NewInvalidInputError("チーム名は1〜100文字で入力してください")
	}

	team := &model.Team{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: s.now(),
	}
	if err := s.teams.Create(ctx, team); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewTeamExistsError()
		}
		return nil, fmt.Errorf("チームの作成に失敗しました: %w", err)
	}
	slog.Info("チームを作成しました", slog.String("team_id", team.ID), slog.String("owner_id", ownerID))
	return team, nil
}

// Mine はアクターが所有または所属しているチームを返す。どちらもなければnil。
func (s *Service) Mine(ctx context.Context, actorID string) (*model.Team, model.TeamRole, error) {
	team, err := s.teams.FindByOwnerID(ctx, actorID)
	if err != nil {
		return nil, "", fmt.Errorf("チームの取得に失敗しました: %w", err)
	}
	if team != nil {
		return team, model.TeamRoleOwner, nil
	}
	member, err := s.teams.FindActiveMembership(ctx, actorID)
	if err != nil {
		return nil, "", fmt.Errorf("所属の取得に失敗しました: %w", err)
	}
	if member == nil {
		return nil, "", nil
	}
	team, err = s.teams.FindByID(ctx, member.TeamID)
	if err != nil {
		return nil, "", fmt.Errorf("チームの取得に失敗しました: %w", err)
	}
	return team, member.Role, nil
}

// Members はチームのアクティブなメンバーを参加順に返す。
func (s *Service) Members(ctx context.Context, actorID, teamID string) ([]*model.TeamMember, error) {
	team, err := s.authorized(ctx, actorID, teamID, model.CapView)
	if err != nil {
		return nil, err
	}
	members, err := s.teams.ListMembers(ctx, team.ID)
	if err != nil {
		return nil, fmt.Errorf("メンバーの取得に失敗しました: %w", err)
	}
	return members, nil
}

// ChangeRole はメンバーの役割を変更する。所有者の役割は変更できない。
func (s *Service) ChangeRole(ctx context.Context, actorID, teamID, userID string, role model.TeamRole) error {
	team, err := s.authorized(ctx, actorID, teamID, model.CapManageTeam)
	if err != nil {
		return err
	}
	if !model.AssignableTeamRole(role) {
		return model.NewInvalidInputError(fmt.Sprintf("割り当てできない役割です: %s", role))
	}
	if userID == team.OwnerID {
		return model.NewInvalidInputError("チームの所有者の役割は変更できません")
	}
	if err := s.teams.UpdateMemberRole(ctx, team.ID, userID, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewNotFoundError("メンバー")
		}
		return fmt.Errorf("役割の変更に失敗しました: %w", err)
	}
	return nil
}

// RemoveMember はメンバーを無効化する。行は残し、再招待で再有効化できる。
func (s *Service) RemoveMember(ctx context.Context, actorID, teamID, userID string) error {
	team, err := s.authorized(ctx, actorID, teamID, model.CapManageTeam)
	if err != nil {
		return err
	}
	if userID == team.OwnerID {
		return model.NewInvalidInputError("チームの所有者は削除できません")
	}
	if err := s.teams.DeactivateMember(ctx, team.ID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewNotFoundError("メンバー")
		}
		return fmt.Errorf("メンバーの削除に失敗しました: %w", err)
	}
	s.log(ctx, team.ID, actorID, model.ActionMemberRemoved, fmt.Sprintf("Removed member %s", userID))
	return nil
}

// InviteResult は招待の結果。Notification.Errは警告としてのみ扱う。
type InviteResult struct {
	Invitation   *model.TeamInvitation
	Notification notify.Outcome
}

// Invite はメールアドレス宛てに招待を作成し、招待メールを送る。
func (s *Service) Invite(ctx context.Context, actorID, teamID, email string, role model.TeamRole) (*InviteResult, error) {
	team, err := s.authorized(ctx, actorID, teamID, model.CapManageTeam)
	if err != nil {
		return nil, err
	}
	if !model.AssignableTeamRole(role) {
		return nil, model.NewInvalidInputError(fmt.Sprintf("割り当てできない役割です: %s", role))
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, model.NewInvalidInputError("メールアドレスの形式が正しくありません")
	}
	inviter, err := s.accounts.FindByID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if inviter == nil {
		return nil, model.NewNotFoundError("アカウント")
	}

	now := s.now()
	invitedBy := actorID
	inv := &model.TeamInvitation{
		ID:        uuid.New().String(),
		TeamID:    team.ID,
		Email:     strings.ToLower(addr.Address),
		Role:      role,
		Status:    model.InvitationPending,
		InvitedBy: &invitedBy,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	for attempt := 1; ; attempt++ {
		inv.Token, err = newToken()
		if err != nil {
			return nil, err
		}
		err = s.invitations.Create(ctx, inv)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicate) || attempt == tokenAttempts {
			return nil, fmt.Errorf("招待の作成に失敗しました: %w", err)
		}
	}

	s.log(ctx, team.ID, actorID, model.ActionMemberInvited, fmt.Sprintf("Invited %s as %s", inv.Email, role))
	out := s.notifier.Dispatch(ctx, notify.InvitationSent{Invitation: inv, Team: team, Inviter: inviter})
	return &InviteResult{Invitation: inv, Notification: out}, nil
}

// Invitations はチームの招待を新しい順に返す。
func (s *Service) Invitations(ctx context.Context, actorID, teamID string) ([]*model.TeamInvitation, error) {
	team, err := s.authorized(ctx, actorID, teamID, model.CapManageTeam)
	if err != nil {
		return nil, err
	}
	invs, err := s.invitations.ListByTeam(ctx, team.ID)
	if err != nil {
		return nil, fmt.Errorf("招待の取得に失敗しました: %w", err)
	}
	return invs, nil
}

// Accept は招待を承諾してチームに参加する。
// 招待先のメールアドレスとアカウントのメールアドレスが一致する必要がある（大文字小文字は区別しない）。
// 雇用者アカウントは承諾できない。
func (s *Service) Accept(ctx context.Context, actorID, token string) (*model.TeamMember, error) {
	inv, account, err := s.pending(ctx, actorID, token)
	if err != nil {
		return nil, err
	}
	if account.Role == model.RoleEmployer {
		return nil, model.NewEmployerCannotJoinError()
	}
	owned, err := s.teams.FindByOwnerID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("チームの取得に失敗しました: %w", err)
	}
	if owned != nil {
		return nil, model.NewAlreadyMemberError()
	}

	now := s.now()
	member := &model.TeamMember{
		ID:       uuid.New().String(),
		TeamID:   inv.TeamID,
		UserID:   account.ID,
		Role:     inv.Role,
		IsActive: true,
		JoinedAt: now,
	}
	if err := s.invitations.Accept(ctx, inv, member, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotPending):
			return nil, model.NewInvitationNotPendingError(inv.Status)
		case errors.Is(err, repository.ErrDuplicate):
			return nil, model.NewAlreadyMemberError()
		}
		return nil, fmt.Errorf("招待の承諾に失敗しました: %w", err)
	}
	slog.Info("招待を承諾しました",
		slog.String("team_id", inv.TeamID),
		slog.String("user_id", account.ID),
		slog.String("role", string(inv.Role)),
	)
	return member, nil
}

// Decline は招待を辞退する。
func (s *Service) Decline(ctx context.Context, actorID, token string) error {
	inv, _, err := s.pending(ctx, actorID, token)
	if err != nil {
		return err
	}
	if err := s.invitations.Respond(ctx, inv.ID, model.InvitationDeclined, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotPending) {
			return model.NewInvitationNotPendingError(inv.Status)
		}
		return fmt.Errorf("招待の辞退に失敗しました: %w", err)
	}
	return nil
}

// ExpireInvitations は期限切れのpending招待をexpiredにし、件数を返す。
func (s *Service) ExpireInvitations(ctx context.Context) (int64, error) {
	n, err := s.invitations.ExpirePending(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("招待の期限切れ処理に失敗しました: %w", err)
	}
	return n, nil
}

// Activity はチームの操作ログを新しい順に返す。limitは1〜200、0以下なら50。
func (s *Service) Activity(ctx context.Context, actorID, teamID string, limit int) ([]*model.ActivityLog, error) {
	team, err := s.authorized(ctx, actorID, teamID, model.CapView)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}
	logs, err := s.activity.ListByTeam(ctx, team.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("操作ログの取得に失敗しました: %w", err)
	}
	return logs, nil
}

// pending はトークンの招待が承諾・辞退できる状態か確認する。
// 期限切れの招待はその場でexpiredに遷移させる。
func (s *Service) pending(ctx context.Context, actorID, token string) (*model.TeamInvitation, *model.Account, error) {
	inv, err := s.invitations.FindByToken(ctx, token)
	if err != nil {
		return nil, nil, fmt.Errorf("招待の取得に失敗しました: %w", err)
	}
	if inv == nil {
		return nil, nil, model.NewNotFoundError("招待")
	}
	account, err := s.accounts.FindByID(ctx, actorID)
	if err != nil {
		return nil, nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil || !strings.EqualFold(account.Email, inv.Email) {
		return nil, nil, model.NewNotFoundError("招待")
	}
	if inv.Status != model.InvitationPending {
		return nil, nil, model.NewInvitationNotPendingError(inv.Status)
	}
	now := s.now()
	if inv.IsExpired(now) {
		if err := s.invitations.Respond(ctx, inv.ID, model.InvitationExpired, now); err != nil && !errors.Is(err, repository.ErrNotPending) {
			slog.Warn("招待の期限切れ更新に失敗しました",
				slog.String("invitation_id", inv.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, nil, model.NewInvitationExpiredError()
	}
	return inv, account, nil
}

// authorized はチームを取得し、アクターがcapabilityを持つか確認する。
func (s *Service) authorized(ctx context.Context, actorID, teamID string, capability model.Capability) (*model.Team, error) {
	team, err := s.teams.FindByID(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("チームの取得に失敗しました: %w", err)
	}
	if team == nil {
		return nil, model.NewNotFoundError("チーム")
	}
	set, err := s.resolver.ForTeam(ctx, actorID, team)
	if err != nil {
		return nil, err
	}
	if err := permission.Authorize(set, capability, "チーム"); err != nil {
		return nil, err
	}
	return team, nil
}

// log はチームの操作ログを追記する。失敗は警告ログのみ。
func (s *Service) log(ctx context.Context, teamID, actorID string, action model.ActivityAction, description string) {
	actor := actorID
	entry := &model.ActivityLog{
		ID:          uuid.New().String(),
		TeamID:      teamID,
		ActorID:     &actor,
		Action:      action,
		Description: description,
		CreatedAt:   s.now(),
	}
	if err := s.activity.Create(ctx, entry); err != nil {
		slog.Warn("操作ログの記録に失敗しました",
			slog.String("team_id", teamID),
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
	}
}

// newToken はURLに埋め込める招待トークンを生成する。
func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("招待トークンの生成に失敗しました: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
