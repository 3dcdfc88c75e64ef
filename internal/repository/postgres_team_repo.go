package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/jobboard/internal/model"
)

// PostgresTeamRepo はPostgreSQLを使用したチームのリポジトリ。
type PostgresTeamRepo struct {
	db *sql.DB
}

// NewPostgresTeamRepo はPostgresTeamRepoを生成する。
func NewPostgresTeamRepo(db *sql.DB) *PostgresTeamRepo {
	return &PostgresTeamRepo{db: db}
}

// Create はチームを作成する。owner_idの一意制約により所有者1人につき1チーム。
func (r *PostgresTeamRepo) Create(ctx context.Context, team *model.Team) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO teams (id, owner_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		team.ID, team.OwnerID, team.Name, team.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

func (r *PostgresTeamRepo) findOne(ctx context.Context, where string, arg string) (*model.Team, error) {
	t := &model.Team{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, created_at FROM teams WHERE `+where, arg,
	).Scan(&t.ID, &t.OwnerID, &t.Name, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find team: %w", err)
	}
	return t, nil
}

func (r *PostgresTeamRepo) FindByID(ctx context.Context, id string) (*model.Team, error) {
	return r.findOne(ctx, "id = $1", id)
}

func (r *PostgresTeamRepo) FindByOwnerID(ctx context.Context, ownerID string) (*model.Team, error) {
	return r.findOne(ctx, "owner_id = $1", ownerID)
}

const memberColumns = `id, team_id, user_id, role, is_active, joined_at`

func scanMember(s rowScanner) (*model.TeamMember, error) {
	m := &model.TeamMember{}
	if err := s.Scan(&m.ID, &m.TeamID, &m.UserID, &m.Role, &m.IsActive, &m.JoinedAt); err != nil {
		return nil, err
	}
	return m, nil
}

// FindActiveMembership はユーザーのアクティブな所属を返す。
func (r *PostgresTeamRepo) FindActiveMembership(ctx context.Context, userID string) (*model.TeamMember, error) {
	m, err := scanMember(r.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM team_members WHERE user_id = $1 AND is_active`, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}
	return m, nil
}

// ListMembers はチームのアクティブなメンバーを参加順に返す。
func (r *PostgresTeamRepo) ListMembers(ctx context.Context, teamID string) ([]*model.TeamMember, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM team_members WHERE team_id = $1 AND is_active ORDER BY joined_at`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*model.TeamMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *PostgresTeamRepo) UpdateMemberRole(ctx context.Context, teamID, userID string, role model.TeamRole) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE team_members SET role = $3 WHERE team_id = $1 AND user_id = $2 AND is_active`,
		teamID, userID, role,
	)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	return checkAffected(result)
}

// DeactivateMember はメンバーを無効化する。行は残し、再招待時に再有効化する。
func (r *PostgresTeamRepo) DeactivateMember(ctx context.Context, teamID, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE team_members SET is_active = FALSE WHERE team_id = $1 AND user_id = $2 AND is_active`,
		teamID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate member: %w", err)
	}
	return checkAffected(result)
}

// PostgresInvitationRepo はPostgreSQLを使用したチーム招待のリポジトリ。
type PostgresInvitationRepo struct {
	db *sql.DB
}

// NewPostgresInvitationRepo はPostgresInvitationRepoを生成する。
func NewPostgresInvitationRepo(db *sql.DB) *PostgresInvitationRepo {
	return &PostgresInvitationRepo{db: db}
}

const invitationColumns = `id, team_id, email, role, token, status, invited_by, accepted_by, created_at, expires_at, responded_at`

func scanInvitation(s rowScanner) (*model.TeamInvitation, error) {
	inv := &model.TeamInvitation{}
	var invitedBy, acceptedBy sql.NullString
	var respondedAt sql.NullTime
	err := s.Scan(&inv.ID, &inv.TeamID, &inv.Email, &inv.Role, &inv.Token, &inv.Status,
		&invitedBy, &acceptedBy, &inv.CreatedAt, &inv.ExpiresAt, &respondedAt)
	if err != nil {
		return nil, err
	}
	inv.InvitedBy = stringPtr(invitedBy)
	inv.AcceptedBy = stringPtr(acceptedBy)
	inv.RespondedAt = timePtr(respondedAt)
	return inv, nil
}

func (r *PostgresInvitationRepo) Create(ctx context.Context, inv *model.TeamInvitation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO team_invitations (`+invitationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		inv.ID, inv.TeamID, inv.Email, inv.Role, inv.Token, inv.Status,
		nullString(inv.InvitedBy), nullString(inv.AcceptedBy), inv.CreatedAt, inv.ExpiresAt,
		nullTime(inv.RespondedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

func (r *PostgresInvitationRepo) FindByToken(ctx context.Context, token string) (*model.TeamInvitation, error) {
	inv, err := scanInvitation(r.db.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM team_invitations WHERE token = $1`, token))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invitation: %w", err)
	}
	return inv, nil
}

func (r *PostgresInvitationRepo) ListByTeam(ctx context.Context, teamID string) ([]*model.TeamInvitation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+invitationColumns+` FROM team_invitations WHERE team_id = $1 ORDER BY created_at DESC`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var list []*model.TeamInvitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		list = append(list, inv)
	}
	return list, rows.Err()
}

// Accept は招待の遷移とメンバー作成を同一トランザクションで行う。
// 状態の条件付きUPDATEにより、同じトークンの同時承諾は1件だけ成功する。
func (r *PostgresInvitationRepo) Accept(ctx context.Context, inv *model.TeamInvitation, member *model.TeamMember, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE team_invitations SET status = 'accepted', accepted_by = $2, responded_at = $3
		 WHERE id = $1 AND status = 'pending'`,
		inv.ID, member.UserID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to accept invitation: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotPending
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO team_members (id, team_id, user_id, role, is_active, joined_at)
		 VALUES ($1, $2, $3, $4, TRUE, $5)
		 ON CONFLICT (team_id, user_id) DO UPDATE SET role = EXCLUDED.role, is_active = TRUE, joined_at = EXCLUDED.joined_at
		 RETURNING id`,
		member.ID, member.TeamID, member.UserID, member.Role, member.JoinedAt,
	).Scan(&member.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to add member: %w", err)
	}
	member.IsActive = true

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	inv.Status = model.InvitationAccepted
	inv.AcceptedBy = &member.UserID
	inv.RespondedAt = &at
	return nil
}

// Respond は招待をpendingからtoに遷移させる。
func (r *PostgresInvitationRepo) Respond(ctx context.Context, id string, to model.InvitationStatus, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE team_invitations SET status = $2, responded_at = $3 WHERE id = $1 AND status = 'pending'`,
		id, to, at,
	)
	if err != nil {
		return fmt.Errorf("failed to respond to invitation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotPending
	}
	return nil
}

// ExpirePending は期限を過ぎたpending招待をexpiredにする。
func (r *PostgresInvitationRepo) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE team_invitations SET status = 'expired', responded_at = $1
		 WHERE status = 'pending' AND expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}
	return result.RowsAffected()
}

// PostgresActivityRepo はPostgreSQLを使用した操作ログのリポジトリ。
type PostgresActivityRepo struct {
	db *sql.DB
}

// NewPostgresActivityRepo はPostgresActivityRepoを生成する。
func NewPostgresActivityRepo(db *sql.DB) *PostgresActivityRepo {
	return &PostgresActivityRepo{db: db}
}

func (r *PostgresActivityRepo) Create(ctx context.Context, e *model.ActivityLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO activity_logs (id, team_id, actor_id, action, description, application_id, job_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.TeamID, nullString(e.ActorID), e.Action, e.Description,
		nullString(e.ApplicationID), nullString(e.JobID), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create activity log: %w", err)
	}
	return nil
}

func (r *PostgresActivityRepo) ListByTeam(ctx context.Context, teamID string, limit int) ([]*model.ActivityLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, team_id, actor_id, action, description, application_id, job_id, created_at
		 FROM activity_logs WHERE team_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		teamID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var logs []*model.ActivityLog
	for rows.Next() {
		e := &model.ActivityLog{}
		var actorID, appID, jobID sql.NullString
		if err := rows.Scan(&e.ID, &e.TeamID, &actorID, &e.Action, &e.Description,
			&appID, &jobID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity log: %w", err)
		}
		e.ActorID = stringPtr(actorID)
		e.ApplicationID = stringPtr(appID)
		e.JobID = stringPtr(jobID)
		logs = append(logs, e)
	}
	return logs, rows.Err()
}

var (
	_ TeamRepository       = (*PostgresTeamRepo)(nil)
	_ InvitationRepository = (*PostgresInvitationRepo)(nil)
	_ ActivityRepository   = (*PostgresActivityRepo)(nil)
)
