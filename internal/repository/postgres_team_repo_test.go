package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hitoshi/jobboard/internal/model"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pending以外の招待の承諾はErrNotPendingになりメンバーが作られないことを検証
func TestPostgresInvitationRepo_Accept_NotPending(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresInvitationRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE team_invitations SET status = 'accepted'").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	now := time.Now()
	err := repo.Accept(context.Background(),
		&model.TeamInvitation{ID: "inv-1"},
		&model.TeamMember{ID: "m-1", TeamID: "team-1", UserID: "user-1", Role: model.TeamRoleReviewer, JoinedAt: now},
		now)

	assert.ErrorIs(t, err, ErrNotPending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 承諾で招待の遷移とメンバーのupsertがコミットされることを検証
func TestPostgresInvitationRepo_Accept_Success(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresInvitationRepo(db)

	now := time.Now()
	inv := &model.TeamInvitation{ID: "inv-1", Status: model.InvitationPending}
	member := &model.TeamMember{ID: "m-new", TeamID: "team-1", UserID: "user-1", Role: model.TeamRoleReviewer, JoinedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE team_invitations SET status = 'accepted'").
		WithArgs("inv-1", "user-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO team_members .+ ON CONFLICT \\(team_id, user_id\\) DO UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("m-old"))
	mock.ExpectCommit()

	require.NoError(t, repo.Accept(context.Background(), inv, member, now))
	assert.Equal(t, "m-old", member.ID)
	assert.True(t, member.IsActive)
	assert.Equal(t, model.InvitationAccepted, inv.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 他チームにアクティブ所属がある場合ErrDuplicateになることを検証
func TestPostgresInvitationRepo_Accept_ActiveElsewhere(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresInvitationRepo(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE team_invitations SET status = 'accepted'").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO team_members").
		WillReturnError(&pq.Error{Code: uniqueViolation})
	mock.ExpectRollback()

	err := repo.Accept(context.Background(),
		&model.TeamInvitation{ID: "inv-1"},
		&model.TeamMember{ID: "m-1", TeamID: "team-1", UserID: "user-1", Role: model.TeamRoleViewer, JoinedAt: now},
		now)

	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 所有者が既にチームを持つ場合ErrDuplicateになることを検証
func TestPostgresTeamRepo_Create_Duplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresTeamRepo(db)

	mock.ExpectExec("INSERT INTO teams").
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := repo.Create(context.Background(), &model.Team{ID: "t-1", OwnerID: "emp-1", Name: "Acme", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrDuplicate)
}

// 期限切れのpending招待の件数が返ることを検証
func TestPostgresInvitationRepo_ExpirePending(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresInvitationRepo(db)

	now := time.Now()
	mock.ExpectExec("UPDATE team_invitations SET status = 'expired'").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.ExpirePending(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
