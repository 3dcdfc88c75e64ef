package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/lib/pq"
)

// PostgresJobRepo はPostgreSQLを使用した求人リポジトリ。
type PostgresJobRepo struct {
	db *sql.DB
}

// NewPostgresJobRepo はPostgresJobRepoを生成する。
func NewPostgresJobRepo(db *sql.DB) *PostgresJobRepo {
	return &PostgresJobRepo{db: db}
}

const jobColumns = `j.id, j.owner_id, j.title, j.company, j.description, j.location, j.salary,
	j.is_active, j.expires_at, j.created_at, j.updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(s rowScanner, extra ...interface{}) (*model.JobPosting, error) {
	j := &model.JobPosting{}
	var expiresAt sql.NullTime
	dest := []interface{}{
		&j.ID, &j.OwnerID, &j.Title, &j.Company, &j.Description, &j.Location, &j.Salary,
		&j.IsActive, &expiresAt, &j.CreatedAt, &j.UpdatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	j.ExpiresAt = timePtr(expiresAt)
	return j, nil
}

func (r *PostgresJobRepo) queryJobs(ctx context.Context, query string, args ...interface{}) ([]*model.JobPosting, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.JobPosting
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// FindByID は指定IDの求人を取得する。見つからない場合はnilを返す。
func (r *PostgresJobRepo) FindByID(ctx context.Context, id string) (*model.JobPosting, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs j WHERE j.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job: %w", err)
	}
	return j, nil
}

// Create は求人を作成する。
func (r *PostgresJobRepo) Create(ctx context.Context, job *model.JobPosting) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (id, owner_id, title, company, description, location, salary,
		                   is_active, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID, job.OwnerID, job.Title, job.Company, job.Description, job.Location, job.Salary,
		job.IsActive, nullTime(job.ExpiresAt), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// Update は求人の内容を更新する。掲載状態は変更しない。
func (r *PostgresJobRepo) Update(ctx context.Context, job *model.JobPosting) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET title = $2, company = $3, description = $4, location = $5, salary = $6,
		        expires_at = $7, updated_at = $8
		 WHERE id = $1`,
		job.ID, job.Title, job.Company, job.Description, job.Location, job.Salary,
		nullTime(job.ExpiresAt), job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return checkAffected(result)
}

// SetActive は求人の掲載状態を設定する。
func (r *PostgresJobRepo) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET is_active = $2, updated_at = $3 WHERE id = $1`,
		id, active, at,
	)
	if err != nil {
		return fmt.Errorf("failed to set job active: %w", err)
	}
	return checkAffected(result)
}

// escapeLike はLIKEパターンのメタ文字をエスケープする。
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Search は掲載中の求人をタイトル・会社名・説明・勤務地のキーワードで検索する。
func (r *PostgresJobRepo) Search(ctx context.Context, q model.JobQuery) ([]*model.JobPosting, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs j WHERE j.is_active`
	args := []interface{}{}
	if kw := strings.TrimSpace(q.Keyword); kw != "" {
		args = append(args, "%"+escapeLike(kw)+"%")
		query += ` AND (j.title ILIKE $1 OR j.company ILIKE $1 OR j.description ILIKE $1 OR j.location ILIKE $1)`
	}
	args = append(args, q.Limit, q.Offset)
	query += fmt.Sprintf(` ORDER BY j.created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	return r.queryJobs(ctx, query, args...)
}

// ListByIDs は指定IDの掲載中求人をidsの順で返す。
func (r *PostgresJobRepo) ListByIDs(ctx context.Context, ids []string) ([]*model.JobPosting, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.queryJobs(ctx,
		`SELECT `+jobColumns+`
		 FROM jobs j
		 JOIN unnest($1::uuid[]) WITH ORDINALITY AS ord(id, pos) ON ord.id = j.id
		 WHERE j.is_active
		 ORDER BY ord.pos`,
		pq.Array(ids),
	)
}

// ListByOwner は所有者の全求人を応募件数付きで新しい順に返す。
func (r *PostgresJobRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.JobSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+`, COUNT(a.id)
		 FROM jobs j
		 LEFT JOIN applications a ON a.job_id = j.id
		 WHERE j.owner_id = $1
		 GROUP BY j.id
		 ORDER BY j.created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs by owner: %w", err)
	}
	defer rows.Close()

	var summaries []*model.JobSummary
	for rows.Next() {
		var count int
		j, err := scanJob(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job summary: %w", err)
		}
		summaries = append(summaries, &model.JobSummary{Job: j, ApplicationCount: count})
	}
	return summaries, rows.Err()
}

// PostgresSavedJobRepo はPostgreSQLを使用した保存求人リポジトリ。
type PostgresSavedJobRepo struct {
	db *sql.DB
}

// NewPostgresSavedJobRepo はPostgresSavedJobRepoを生成する。
func NewPostgresSavedJobRepo(db *sql.DB) *PostgresSavedJobRepo {
	return &PostgresSavedJobRepo{db: db}
}

// Save は求人を保存する。保存済みの場合は何もしない。
func (r *PostgresSavedJobRepo) Save(ctx context.Context, saved *model.SavedJob) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO saved_jobs (id, user_id, job_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, job_id) DO NOTHING`,
		saved.ID, saved.UserID, saved.JobID, saved.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// Delete は保存を解除する。
func (r *PostgresSavedJobRepo) Delete(ctx context.Context, userID, jobID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM saved_jobs WHERE user_id = $1 AND job_id = $2`, userID, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete saved job: %w", err)
	}
	return checkAffected(result)
}

// ListJobsByUser はユーザーが保存した求人を保存の新しい順に返す。
func (r *PostgresSavedJobRepo) ListJobsByUser(ctx context.Context, userID string) ([]*model.JobPosting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+`
		 FROM saved_jobs s JOIN jobs j ON j.id = s.job_id
		 WHERE s.user_id = $1
		 ORDER BY s.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.JobPosting
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan saved job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

var (
	_ JobRepository      = (*PostgresJobRepo)(nil)
	_ SavedJobRepository = (*PostgresSavedJobRepo)(nil)
)
