package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/jobboard/internal/model"
)

// PostgresVerificationRepo はPostgreSQLを使用した本人確認レコードのリポジトリ。
type PostgresVerificationRepo struct {
	db *sql.DB
}

// NewPostgresVerificationRepo はPostgresVerificationRepoを生成する。
func NewPostgresVerificationRepo(db *sql.DB) *PostgresVerificationRepo {
	return &PostgresVerificationRepo{db: db}
}

// FindPhone はアカウントの電話番号確認レコードを返す。見つからない場合はnilを返す。
func (r *PostgresVerificationRepo) FindPhone(ctx context.Context, accountID string) (*model.PhoneVerification, error) {
	v := &model.PhoneVerification{}
	var verifiedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT account_id, phone, code, issued_at, verified, verified_at
		 FROM phone_verifications WHERE account_id = $1`,
		accountID,
	).Scan(&v.AccountID, &v.Phone, &v.Code, &v.IssuedAt, &v.Verified, &verifiedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find phone verification: %w", err)
	}
	v.VerifiedAt = timePtr(verifiedAt)
	return v, nil
}

// UpsertPhone は電話番号確認レコードを作成、または上書きする。
// 上書き時は確認済みフラグもリセットされる。
func (r *PostgresVerificationRepo) UpsertPhone(ctx context.Context, v *model.PhoneVerification) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO phone_verifications (account_id, phone, code, issued_at, verified, verified_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (account_id) DO UPDATE SET
		     phone = EXCLUDED.phone,
		     code = EXCLUDED.code,
		     issued_at = EXCLUDED.issued_at,
		     verified = EXCLUDED.verified,
		     verified_at = EXCLUDED.verified_at`,
		v.AccountID, v.Phone, v.Code, v.IssuedAt, v.Verified, nullTime(v.VerifiedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert phone verification: %w", err)
	}
	return nil
}

// MarkPhoneVerified は電話番号を確認済みにする。
func (r *PostgresVerificationRepo) MarkPhoneVerified(ctx context.Context, accountID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE phone_verifications SET verified = TRUE, verified_at = $2 WHERE account_id = $1`,
		accountID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to mark phone verified: %w", err)
	}
	return checkAffected(result)
}

func (r *PostgresVerificationRepo) findEmail(ctx context.Context, where string, arg string) (*model.EmailVerification, error) {
	v := &model.EmailVerification{}
	var verifiedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT account_id, token, issued_at, verified, verified_at
		 FROM email_verifications WHERE `+where,
		arg,
	).Scan(&v.AccountID, &v.Token, &v.IssuedAt, &v.Verified, &verifiedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find email verification: %w", err)
	}
	v.VerifiedAt = timePtr(verifiedAt)
	return v, nil
}

// FindEmailByAccount はアカウントのメール確認レコードを返す。見つからない場合はnilを返す。
func (r *PostgresVerificationRepo) FindEmailByAccount(ctx context.Context, accountID string) (*model.EmailVerification, error) {
	return r.findEmail(ctx, "account_id = $1", accountID)
}

// FindEmailByToken はトークンでメール確認レコードを検索する。見つからない場合はnilを返す。
func (r *PostgresVerificationRepo) FindEmailByToken(ctx context.Context, token string) (*model.EmailVerification, error) {
	return r.findEmail(ctx, "token = $1", token)
}

// UpsertEmail はメール確認レコードを作成、または上書きする。
// トークンが他のアカウントと衝突した場合はErrDuplicateを返す。
func (r *PostgresVerificationRepo) UpsertEmail(ctx context.Context, v *model.EmailVerification) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO email_verifications (account_id, token, issued_at, verified, verified_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (account_id) DO UPDATE SET
		     token = EXCLUDED.token,
		     issued_at = EXCLUDED.issued_at,
		     verified = EXCLUDED.verified,
		     verified_at = EXCLUDED.verified_at`,
		v.AccountID, v.Token, v.IssuedAt, v.Verified, nullTime(v.VerifiedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to upsert email verification: %w", err)
	}
	return nil
}

// MarkEmailVerified はメールアドレスを確認済みにする。
func (r *PostgresVerificationRepo) MarkEmailVerified(ctx context.Context, accountID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE email_verifications SET verified = TRUE, verified_at = $2 WHERE account_id = $1`,
		accountID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	return checkAffected(result)
}

var _ VerificationRepository = (*PostgresVerificationRepo)(nil)
