package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/jobboard/internal/model"
)

// PostgresNoteRepo はPostgreSQLを使用した社内メモのリポジトリ。
type PostgresNoteRepo struct {
	db *sql.DB
}

// NewPostgresNoteRepo はPostgresNoteRepoを生成する。
func NewPostgresNoteRepo(db *sql.DB) *PostgresNoteRepo {
	return &PostgresNoteRepo{db: db}
}

func (r *PostgresNoteRepo) Create(ctx context.Context, note *model.Note) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notes (id, application_id, author_id, content, is_private, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		note.ID, note.ApplicationID, note.AuthorID, note.Content, note.IsPrivate, note.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}
	return nil
}

// FindByID は指定IDのメモを取得する。見つからない場合はnilを返す。
func (r *PostgresNoteRepo) FindByID(ctx context.Context, id string) (*model.Note, error) {
	n := &model.Note{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, application_id, author_id, content, is_private, created_at FROM notes WHERE id = $1`, id,
	).Scan(&n.ID, &n.ApplicationID, &n.AuthorID, &n.Content, &n.IsPrivate, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find note: %w", err)
	}
	return n, nil
}

// ListByApplication は応募のメモを新しい順に返す。可視性の判定は呼び出し側で行う。
func (r *PostgresNoteRepo) ListByApplication(ctx context.Context, applicationID string) ([]*model.Note, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, application_id, author_id, content, is_private, created_at
		 FROM notes WHERE application_id = $1 ORDER BY created_at DESC`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*model.Note
	for rows.Next() {
		n := &model.Note{}
		if err := rows.Scan(&n.ID, &n.ApplicationID, &n.AuthorID, &n.Content, &n.IsPrivate, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (r *PostgresNoteRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return checkAffected(result)
}

// PostgresRatingRepo はPostgreSQLを使用した評価のリポジトリ。
type PostgresRatingRepo struct {
	db *sql.DB
}

// NewPostgresRatingRepo はPostgresRatingRepoを生成する。
func NewPostgresRatingRepo(db *sql.DB) *PostgresRatingRepo {
	return &PostgresRatingRepo{db: db}
}

const ratingColumns = `id, application_id, rater_id, overall, technical, communication, culture_fit, comment, created_at, updated_at`

func scanRating(s rowScanner) (*model.Rating, error) {
	rt := &model.Rating{}
	var technical, communication, cultureFit sql.NullInt64
	err := s.Scan(&rt.ID, &rt.ApplicationID, &rt.RaterID, &rt.Overall,
		&technical, &communication, &cultureFit, &rt.Comment, &rt.CreatedAt, &rt.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rt.Technical = intPtr(technical)
	rt.Communication = intPtr(communication)
	rt.CultureFit = intPtr(cultureFit)
	return rt, nil
}

// Upsert は(application_id, rater_id)で評価を作成または上書きする。
// 既存行がある場合はIDと作成日時が保たれる。
func (r *PostgresRatingRepo) Upsert(ctx context.Context, rating *model.Rating) (*model.Rating, error) {
	saved, err := scanRating(r.db.QueryRowContext(ctx,
		`INSERT INTO ratings (id, application_id, rater_id, overall, technical, communication, culture_fit, comment, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (application_id, rater_id) DO UPDATE SET
		   overall = EXCLUDED.overall,
		   technical = EXCLUDED.technical,
		   communication = EXCLUDED.communication,
		   culture_fit = EXCLUDED.culture_fit,
		   comment = EXCLUDED.comment,
		   updated_at = EXCLUDED.updated_at
		 RETURNING `+ratingColumns,
		rating.ID, rating.ApplicationID, rating.RaterID, rating.Overall,
		nullInt(rating.Technical), nullInt(rating.Communication), nullInt(rating.CultureFit),
		rating.Comment, rating.CreatedAt, rating.UpdatedAt,
	))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to upsert rating: %w", err)
	}
	return saved, nil
}

// ListByApplication は応募の評価を作成順に返す。
func (r *PostgresRatingRepo) ListByApplication(ctx context.Context, applicationID string) ([]*model.Rating, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ratingColumns+` FROM ratings WHERE application_id = $1 ORDER BY created_at`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ratings: %w", err)
	}
	defer rows.Close()

	var ratings []*model.Rating
	for rows.Next() {
		rt, err := scanRating(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		ratings = append(ratings, rt)
	}
	return ratings, rows.Err()
}

// PostgresTagRepo はPostgreSQLを使用したタグのリポジトリ。
type PostgresTagRepo struct {
	db *sql.DB
}

// NewPostgresTagRepo はPostgresTagRepoを生成する。
func NewPostgresTagRepo(db *sql.DB) *PostgresTagRepo {
	return &PostgresTagRepo{db: db}
}

func (r *PostgresTagRepo) Create(ctx context.Context, tag *model.Tag) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tags (id, employer_id, name, color, created_at) VALUES ($1, $2, $3, $4, $5)`,
		tag.ID, tag.EmployerID, tag.Name, tag.Color, tag.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create tag: %w", err)
	}
	return nil
}

func (r *PostgresTagRepo) FindByID(ctx context.Context, id string) (*model.Tag, error) {
	t := &model.Tag{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, employer_id, name, color, created_at FROM tags WHERE id = $1`, id,
	).Scan(&t.ID, &t.EmployerID, &t.Name, &t.Color, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tag: %w", err)
	}
	return t, nil
}

func (r *PostgresTagRepo) queryTags(ctx context.Context, query, arg string) ([]*model.Tag, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []*model.Tag
	for rows.Next() {
		t := &model.Tag{}
		if err := rows.Scan(&t.ID, &t.EmployerID, &t.Name, &t.Color, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (r *PostgresTagRepo) ListByEmployer(ctx context.Context, employerID string) ([]*model.Tag, error) {
	return r.queryTags(ctx,
		`SELECT id, employer_id, name, color, created_at FROM tags WHERE employer_id = $1 ORDER BY name`,
		employerID)
}

// Delete はタグを削除する。割り当てはCASCADEで消える。
func (r *PostgresTagRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	return checkAffected(result)
}

func (r *PostgresTagRepo) Assign(ctx context.Context, a *model.TagAssignment) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO tag_assignments (application_id, tag_id, assigned_by, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (application_id, tag_id) DO NOTHING`,
		a.ApplicationID, a.TagID, nullEmpty(a.AssignedBy), a.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to assign tag: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresTagRepo) Unassign(ctx context.Context, applicationID, tagID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tag_assignments WHERE application_id = $1 AND tag_id = $2`,
		applicationID, tagID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to unassign tag: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresTagRepo) ListByApplication(ctx context.Context, applicationID string) ([]*model.Tag, error) {
	return r.queryTags(ctx,
		`SELECT t.id, t.employer_id, t.name, t.color, t.created_at
		 FROM tags t JOIN tag_assignments ta ON ta.tag_id = t.id
		 WHERE ta.application_id = $1 ORDER BY t.name`,
		applicationID)
}

var (
	_ NoteRepository   = (*PostgresNoteRepo)(nil)
	_ RatingRepository = (*PostgresRatingRepo)(nil)
	_ TagRepository    = (*PostgresTagRepo)(nil)
)
