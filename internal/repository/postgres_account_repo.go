package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/jobboard/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

const selectAccountSQL = `
	SELECT a.id, a.email, a.name, a.role, a.approved, a.created_at, a.updated_at,
	       COALESCE(p.headline, ''), COALESCE(p.skills, ''), COALESCE(p.location, ''),
	       COALESCE(p.resume_ref, ''), COALESCE(p.linkedin_url, ''),
	       COALESCE(p.company_name, ''), COALESCE(p.website, ''), COALESCE(p.description, ''),
	       COALESCE(p.agency_name, '')
	FROM accounts a
	LEFT JOIN profiles p ON p.account_id = a.id`

// profileColumns はprofilesテーブルの1行分の値。ロールによって使う列が異なる。
type profileColumns struct {
	headline, skills, location, resumeRef, linkedInURL string
	companyName, website, description, agencyName      string
}

// toProfile はロールに応じたプロフィール型に変換する。
func (c profileColumns) toProfile(role model.Role) (model.Profile, error) {
	switch role {
	case model.RoleJobSeeker:
		return &model.JobSeekerProfile{
			Headline:    c.headline,
			Skills:      c.skills,
			Location:    c.location,
			ResumeRef:   c.resumeRef,
			LinkedInURL: c.linkedInURL,
		}, nil
	case model.RoleEmployer:
		return &model.EmployerProfile{
			CompanyName: c.companyName,
			Website:     c.website,
			Description: c.description,
		}, nil
	case model.RoleRecruiter:
		return &model.RecruiterProfile{
			AgencyName: c.agencyName,
			Website:    c.website,
		}, nil
	default:
		return nil, fmt.Errorf("unknown role: %q", role)
	}
}

// fromProfile はプロフィール型をprofilesテーブルの列に展開する。
func fromProfile(p model.Profile) profileColumns {
	var c profileColumns
	switch v := p.(type) {
	case *model.JobSeekerProfile:
		c.headline, c.skills, c.location = v.Headline, v.Skills, v.Location
		c.resumeRef, c.linkedInURL = v.ResumeRef, v.LinkedInURL
	case *model.EmployerProfile:
		c.companyName, c.website, c.description = v.CompanyName, v.Website, v.Description
	case *model.RecruiterProfile:
		c.agencyName, c.website = v.AgencyName, v.Website
	}
	return c
}

func (r *PostgresAccountRepo) findOne(ctx context.Context, where string, arg interface{}) (*model.Account, error) {
	a := &model.Account{}
	var c profileColumns
	err := r.db.QueryRowContext(ctx, selectAccountSQL+" WHERE "+where, arg).Scan(
		&a.ID, &a.Email, &a.Name, &a.Role, &a.Approved, &a.CreatedAt, &a.UpdatedAt,
		&c.headline, &c.skills, &c.location, &c.resumeRef, &c.linkedInURL,
		&c.companyName, &c.website, &c.description, &c.agencyName,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	profile, err := c.toProfile(a.Role)
	if err != nil {
		return nil, err
	}
	a.Profile = profile
	return a, nil
}

// FindByID は指定IDのアカウントをプロフィール付きで取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return r.findOne(ctx, "a.id = $1", id)
}

// FindByEmail はメールアドレスでアカウントを検索する。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.findOne(ctx, "lower(a.email) = lower($1)", email)
}

// CreateWithIdentity はアカウント、プロフィール、identityを同一トランザクションで作成する。
func (r *PostgresAccountRepo) CreateWithIdentity(ctx context.Context, account *model.Account, identity *model.Identity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (id, email, name, role, approved, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		account.ID, account.Email, account.Name, account.Role, account.Approved,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}

	c := fromProfile(account.Profile)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (account_id, headline, skills, location, resume_ref, linkedin_url,
		                       company_name, website, description, agency_name)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		account.ID, c.headline, c.skills, c.location, c.resumeRef, c.linkedInURL,
		c.companyName, c.website, c.description, c.agencyName,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO identities (id, account_id, provider, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		identity.ID, identity.AccountID, identity.Provider, identity.ProviderUserID, identity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateProfile はアカウント名とプロフィールを更新する。
func (r *PostgresAccountRepo) UpdateProfile(ctx context.Context, account *model.Account) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE accounts SET name = $2, updated_at = $3 WHERE id = $1`,
		account.ID, account.Name, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if err := checkAffected(result); err != nil {
		return err
	}

	c := fromProfile(account.Profile)
	_, err = tx.ExecContext(ctx,
		`UPDATE profiles SET headline = $2, skills = $3, location = $4, resume_ref = $5,
		        linkedin_url = $6, company_name = $7, website = $8, description = $9, agency_name = $10
		 WHERE account_id = $1`,
		account.ID, c.headline, c.skills, c.location, c.resumeRef, c.linkedInURL,
		c.companyName, c.website, c.description, c.agencyName,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SetApproved はリクルーターの承認フラグを設定する。
func (r *PostgresAccountRepo) SetApproved(ctx context.Context, id string, approved bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET approved = $2, updated_at = now() WHERE id = $1 AND role = 'recruiter'`,
		id, approved,
	)
	if err != nil {
		return fmt.Errorf("failed to set approved: %w", err)
	}
	return checkAffected(result)
}

// DeleteByID は指定IDのアカウントを削除する。
func (r *PostgresAccountRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return checkAffected(result)
}

var _ AccountRepository = (*PostgresAccountRepo)(nil)
