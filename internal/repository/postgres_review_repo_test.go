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

// 評価のupsertが保存後の行を返し、未指定の副評価がnilのままであることを検証
func TestPostgresRatingRepo_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRatingRepo(db)

	now := time.Now()
	created := now.Add(-time.Hour)
	mock.ExpectQuery("INSERT INTO ratings .+ ON CONFLICT \\(application_id, rater_id\\) DO UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "application_id", "rater_id", "overall", "technical", "communication", "culture_fit", "comment", "created_at", "updated_at"}).
			AddRow("r-old", "app-1", "emp-1", 4, 5, nil, nil, "good", created, now))

	tech := 5
	saved, err := repo.Upsert(context.Background(), &model.Rating{
		ID: "r-new", ApplicationID: "app-1", RaterID: "emp-1", Overall: 4, Technical: &tech,
		Comment: "good", CreatedAt: now, UpdatedAt: now,
	})

	require.NoError(t, err)
	assert.Equal(t, "r-old", saved.ID)
	assert.Equal(t, created, saved.CreatedAt)
	require.NotNil(t, saved.Technical)
	assert.Equal(t, 5, *saved.Technical)
	assert.Nil(t, saved.Communication)
	assert.Nil(t, saved.CultureFit)
}

// 応募が削除済みで外部キー制約違反になった場合にErrNotFoundへ変換されることを検証
func TestPostgresRatingRepo_Upsert_ApplicationDeleted(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresRatingRepo(db)

	mock.ExpectQuery("INSERT INTO ratings").
		WillReturnError(&pq.Error{Code: foreignKeyViolation})

	now := time.Now()
	saved, err := repo.Upsert(context.Background(), &model.Rating{
		ID: "r-1", ApplicationID: "gone", RaterID: "emp-1", Overall: 3, CreatedAt: now, UpdatedAt: now,
	})

	assert.Nil(t, saved)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 割り当て済みタグの再割り当てがfalseを返すことを検証
func TestPostgresTagRepo_Assign_AlreadyAssigned(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresTagRepo(db)

	mock.ExpectExec("INSERT INTO tag_assignments .+ ON CONFLICT").
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.Assign(context.Background(), &model.TagAssignment{ApplicationID: "app-1", TagID: "tag-1", AssignedBy: "emp-1", CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, created)
}

// 他人の通知の既読化がErrNotFoundになることを検証
func TestPostgresNotificationRepo_MarkRead_OtherRecipient(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresNotificationRepo(db)

	mock.ExpectExec("UPDATE notifications SET is_read = TRUE WHERE id = \\$1 AND recipient_id = \\$2").
		WithArgs("n-1", "intruder").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkRead(context.Background(), "intruder", "n-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

// 有効なテンプレートが用途で検索できることを検証
func TestPostgresTemplateRepo_FindActiveByType(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresTemplateRepo(db)

	now := time.Now()
	mock.ExpectQuery("SELECT .+ FROM email_templates\\s+WHERE employer_id = \\$1 AND template_type = \\$2 AND is_active").
		WithArgs("emp-1", model.TemplateRejection).
		WillReturnRows(sqlmock.NewRows([]string{"id", "employer_id", "name", "template_type", "subject", "body", "is_active", "created_at", "updated_at"}).
			AddRow("tpl-1", "emp-1", "Application Rejected", "rejection", "Update on {{job_title}}", "Dear {{applicant_name}}", true, now, now))

	tmpl, err := repo.FindActiveByType(context.Background(), "emp-1", model.TemplateRejection)
	require.NoError(t, err)
	require.NotNil(t, tmpl)
	assert.Equal(t, model.TemplateRejection, tmpl.Type)
}
