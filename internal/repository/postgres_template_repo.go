package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/jobboard/internal/model"
)

// PostgresTemplateRepo はPostgreSQLを使用したメールテンプレートのリポジトリ。
type PostgresTemplateRepo struct {
	db *sql.DB
}

// NewPostgresTemplateRepo はPostgresTemplateRepoを生成する。
func NewPostgresTemplateRepo(db *sql.DB) *PostgresTemplateRepo {
	return &PostgresTemplateRepo{db: db}
}

const templateColumns = `id, employer_id, name, template_type, subject, body, is_active, created_at, updated_at`

func scanTemplate(s rowScanner) (*model.EmailTemplate, error) {
	t := &model.EmailTemplate{}
	err := s.Scan(&t.ID, &t.EmployerID, &t.Name, &t.Type, &t.Subject, &t.Body,
		&t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// EnsureDefaults は不足している既定テンプレートのみ作成する。既存テンプレートの本文は変更しない。
func (r *PostgresTemplateRepo) EnsureDefaults(ctx context.Context, employerID string, defaults []*model.EmailTemplate) ([]*model.EmailTemplate, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, t := range defaults {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO email_templates (`+templateColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (employer_id, name) DO NOTHING`,
			t.ID, employerID, t.Name, t.Type, t.Subject, t.Body, t.IsActive, t.CreatedAt, t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to seed template %q: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return r.ListByEmployer(ctx, employerID)
}

func (r *PostgresTemplateRepo) ListByEmployer(ctx context.Context, employerID string) ([]*model.EmailTemplate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM email_templates WHERE employer_id = $1 ORDER BY name`,
		employerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*model.EmailTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (r *PostgresTemplateRepo) findOne(ctx context.Context, query string, args ...interface{}) (*model.EmailTemplate, error) {
	t, err := scanTemplate(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find template: %w", err)
	}
	return t, nil
}

func (r *PostgresTemplateRepo) FindByID(ctx context.Context, id string) (*model.EmailTemplate, error) {
	return r.findOne(ctx, `SELECT `+templateColumns+` FROM email_templates WHERE id = $1`, id)
}

func (r *PostgresTemplateRepo) FindActiveByType(ctx context.Context, employerID string, t model.TemplateType) (*model.EmailTemplate, error) {
	return r.findOne(ctx,
		`SELECT `+templateColumns+` FROM email_templates
		 WHERE employer_id = $1 AND template_type = $2 AND is_active
		 ORDER BY name LIMIT 1`,
		employerID, t)
}

func (r *PostgresTemplateRepo) Create(ctx context.Context, tmpl *model.EmailTemplate) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO email_templates (`+templateColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tmpl.ID, tmpl.EmployerID, tmpl.Name, tmpl.Type, tmpl.Subject, tmpl.Body,
		tmpl.IsActive, tmpl.CreatedAt, tmpl.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

func (r *PostgresTemplateRepo) Update(ctx context.Context, tmpl *model.EmailTemplate) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE email_templates
		 SET name = $2, template_type = $3, subject = $4, body = $5, is_active = $6, updated_at = $7
		 WHERE id = $1`,
		tmpl.ID, tmpl.Name, tmpl.Type, tmpl.Subject, tmpl.Body, tmpl.IsActive, tmpl.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update template: %w", err)
	}
	return checkAffected(result)
}

func (r *PostgresTemplateRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM email_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return checkAffected(result)
}

// PostgresEmailLogRepo はPostgreSQLを使用したメール送信ログのリポジトリ。
type PostgresEmailLogRepo struct {
	db *sql.DB
}

// NewPostgresEmailLogRepo はPostgresEmailLogRepoを生成する。
func NewPostgresEmailLogRepo(db *sql.DB) *PostgresEmailLogRepo {
	return &PostgresEmailLogRepo{db: db}
}

func (r *PostgresEmailLogRepo) Create(ctx context.Context, l *model.EmailLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO email_logs (id, application_id, template_id, sender_id, recipient_email, subject, body, status, error_message, sent_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		l.ID, nullString(l.ApplicationID), nullString(l.TemplateID), nullString(l.SenderID),
		l.RecipientEmail, l.Subject, l.Body, l.Status, l.ErrorMessage, nullTime(l.SentAt), l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create email log: %w", err)
	}
	return nil
}

// UpdateStatus は送信結果を記録する。
func (r *PostgresEmailLogRepo) UpdateStatus(ctx context.Context, id string, status model.EmailStatus, errMsg string, sentAt *time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE email_logs SET status = $2, error_message = $3, sent_at = $4 WHERE id = $1`,
		id, status, errMsg, nullTime(sentAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update email log: %w", err)
	}
	return checkAffected(result)
}

var (
	_ TemplateRepository = (*PostgresTemplateRepo)(nil)
	_ EmailLogRepository = (*PostgresEmailLogRepo)(nil)
)
