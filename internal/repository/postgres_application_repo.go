package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/jobboard/internal/model"
)

// PostgresApplicationRepo はPostgreSQLを使用した応募リポジトリ。
type PostgresApplicationRepo struct {
	db *sql.DB
}

// NewPostgresApplicationRepo はPostgresApplicationRepoを生成する。
func NewPostgresApplicationRepo(db *sql.DB) *PostgresApplicationRepo {
	return &PostgresApplicationRepo{db: db}
}

const applicationColumns = `id, job_id, applicant_id, cover_letter, resume_ref, status, stage_id, applied_at, updated_at`

func scanApplication(s rowScanner) (*model.Application, error) {
	a := &model.Application{}
	var resumeRef, stageID sql.NullString
	err := s.Scan(&a.ID, &a.JobID, &a.ApplicantID, &a.CoverLetter, &resumeRef,
		&a.Status, &stageID, &a.AppliedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.ResumeRef = stringPtr(resumeRef)
	a.StageID = stringPtr(stageID)
	return a, nil
}

func (r *PostgresApplicationRepo) queryApplications(ctx context.Context, query string, args ...interface{}) ([]*model.Application, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var apps []*model.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

// Create は応募を作成する。(job_id, applicant_id) の一意制約違反はErrDuplicateを返す。
// 事前の存在確認は行わず、同時応募の競合は制約で解決する。
func (r *PostgresApplicationRepo) Create(ctx context.Context, app *model.Application) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO applications (id, job_id, applicant_id, cover_letter, resume_ref, status, stage_id, applied_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		app.ID, app.JobID, app.ApplicantID, app.CoverLetter, nullString(app.ResumeRef),
		app.Status, nullString(app.StageID), app.AppliedAt, app.UpdatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return ErrDuplicate
		case isForeignKeyViolation(err):
			return ErrNotFound
		}
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

// FindByID は指定IDの応募を取得する。見つからない場合はnilを返す。
func (r *PostgresApplicationRepo) FindByID(ctx context.Context, id string) (*model.Application, error) {
	a, err := scanApplication(r.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find application: %w", err)
	}
	return a, nil
}

// ListByJob は求人への応募を応募の新しい順に返す。
func (r *PostgresApplicationRepo) ListByJob(ctx context.Context, jobID string) ([]*model.Application, error) {
	return r.queryApplications(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE job_id = $1 ORDER BY applied_at DESC`, jobID)
}

// ListByApplicant は応募者の応募を新しい順に返す。
func (r *PostgresApplicationRepo) ListByApplicant(ctx context.Context, applicantID string) ([]*model.Application, error) {
	return r.queryApplications(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE applicant_id = $1 ORDER BY applied_at DESC`, applicantID)
}

// UpdateStatus は応募の状態のみを更新する。
func (r *PostgresApplicationRepo) UpdateStatus(ctx context.Context, id string, status model.LegacyStatus, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE applications SET status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
	if err != nil {
		return fmt.Errorf("failed to update application status: %w", err)
	}
	return checkAffected(result)
}

// ApplyTransition は応募のステージと状態の更新、履歴の追記を同一トランザクションで行う。
// 応募または遷移先ステージが存在しない場合はErrNotFoundを返す。
func (r *PostgresApplicationRepo) ApplyTransition(ctx context.Context, app *model.Application, entry *model.StageHistory) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE applications SET stage_id = $2, status = $3, updated_at = $4 WHERE id = $1`,
		app.ID, nullString(app.StageID), app.Status, app.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update application stage: %w", err)
	}
	if err := checkAffected(result); err != nil {
		return err
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO stage_history (id, application_id, stage_id, stage_name, changed_by, changed_at, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING seq`,
		entry.ID, entry.ApplicationID, nullString(entry.StageID), entry.StageName,
		nullString(entry.ChangedBy), entry.ChangedAt, entry.Notes,
	).Scan(&entry.Seq)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to insert stage history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PostgresApplicationRepo) queryHistory(ctx context.Context, query string, arg string) ([]*model.StageHistory, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage history: %w", err)
	}
	defer rows.Close()

	var entries []*model.StageHistory
	for rows.Next() {
		h := &model.StageHistory{}
		var stageID, changedBy sql.NullString
		if err := rows.Scan(&h.ID, &h.Seq, &h.ApplicationID, &stageID, &h.StageName,
			&changedBy, &h.ChangedAt, &h.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan stage history: %w", err)
		}
		h.StageID = stringPtr(stageID)
		h.ChangedBy = stringPtr(changedBy)
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

// ListHistory は応募のステージ履歴を新しい順に返す。
func (r *PostgresApplicationRepo) ListHistory(ctx context.Context, applicationID string) ([]*model.StageHistory, error) {
	return r.queryHistory(ctx,
		`SELECT id, seq, application_id, stage_id, stage_name, changed_by, changed_at, notes
		 FROM stage_history WHERE application_id = $1
		 ORDER BY changed_at DESC, seq DESC`,
		applicationID,
	)
}

// ListHistoryByJob は求人に属する全応募のステージ履歴をSeq昇順で返す。
func (r *PostgresApplicationRepo) ListHistoryByJob(ctx context.Context, jobID string) ([]*model.StageHistory, error) {
	return r.queryHistory(ctx,
		`SELECT h.id, h.seq, h.application_id, h.stage_id, h.stage_name, h.changed_by, h.changed_at, h.notes
		 FROM stage_history h JOIN applications a ON a.id = h.application_id
		 WHERE a.job_id = $1
		 ORDER BY h.seq`,
		jobID,
	)
}

var _ ApplicationRepository = (*PostgresApplicationRepo)(nil)
