package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/hitoshi/jobboard/internal/model"
)

// PostgresStageRepo はPostgreSQLを使用したパイプラインステージのリポジトリ。
type PostgresStageRepo struct {
	db *sql.DB
}

// NewPostgresStageRepo はPostgresStageRepoを生成する。
func NewPostgresStageRepo(db *sql.DB) *PostgresStageRepo {
	return &PostgresStageRepo{db: db}
}

// ListByEmployer は雇用者のステージを表示順に返す。
func (r *PostgresStageRepo) ListByEmployer(ctx context.Context, employerID string) ([]*model.Stage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, employer_id, name, color, sort_order, created_at
		 FROM stages WHERE employer_id = $1
		 ORDER BY sort_order, created_at`,
		employerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer rows.Close()

	var stages []*model.Stage
	for rows.Next() {
		s := &model.Stage{}
		if err := rows.Scan(&s.ID, &s.EmployerID, &s.Name, &s.Color, &s.Order, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		stages = append(stages, s)
	}
	return stages, rows.Err()
}

// FindByID は指定IDのステージを取得する。見つからない場合はnilを返す。
func (r *PostgresStageRepo) FindByID(ctx context.Context, id string) (*model.Stage, error) {
	s := &model.Stage{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, employer_id, name, color, sort_order, created_at FROM stages WHERE id = $1`, id,
	).Scan(&s.ID, &s.EmployerID, &s.Name, &s.Color, &s.Order, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find stage: %w", err)
	}
	return s, nil
}

// EnsureDefaults は(employer_id, name)で存在しない既定ステージのみ作成する。
// 既存のステージは変更しない。
func (r *PostgresStageRepo) EnsureDefaults(ctx context.Context, employerID string, defaults []*model.Stage) ([]*model.Stage, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, s := range defaults {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO stages (id, employer_id, name, color, sort_order, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (employer_id, name) DO NOTHING`,
			s.ID, employerID, s.Name, s.Color, s.Order, s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to seed stage %q: %w", s.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return r.ListByEmployer(ctx, employerID)
}

// Create はステージを作成する。名前が重複する場合はErrDuplicateを返す。
func (r *PostgresStageRepo) Create(ctx context.Context, stage *model.Stage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO stages (id, employer_id, name, color, sort_order, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		stage.ID, stage.EmployerID, stage.Name, stage.Color, stage.Order, stage.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create stage: %w", err)
	}
	return nil
}

// Update はステージの名前と色を更新する。
func (r *PostgresStageRepo) Update(ctx context.Context, stage *model.Stage) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE stages SET name = $2, color = $3 WHERE id = $1`,
		stage.ID, stage.Name, stage.Color,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update stage: %w", err)
	}
	return checkAffected(result)
}

// Reorder はorderedIDsの順に0から表示順を振り直す。
// 雇用者に属さないIDが含まれる場合はErrNotFoundを返す。
func (r *PostgresStageRepo) Reorder(ctx context.Context, employerID string, orderedIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, id := range orderedIDs {
		result, err := tx.ExecContext(ctx,
			`UPDATE stages SET sort_order = $3 WHERE id = $1 AND employer_id = $2`,
			id, employerID, i,
		)
		if err != nil {
			return fmt.Errorf("failed to reorder stage: %w", err)
		}
		if err := checkAffected(result); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteAndReassign は割り当て中の応募を付け替え先に移し、履歴を追記してからステージを削除する。
// 対象の応募は行ロックを取り、付け替えと削除の間に新たな割り当てが入らないようにする。
func (r *PostgresStageRepo) DeleteAndReassign(ctx context.Context, stageID string, re StageReassignment) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM applications WHERE stage_id = $1 FOR UPDATE`, stageID)
	if err != nil {
		return 0, fmt.Errorf("failed to lock assigned applications: %w", err)
	}
	var appIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan application id: %w", err)
		}
		appIDs = append(appIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(appIDs) > 0 && re.Fallback == nil {
		return 0, ErrInUse
	}

	var status sql.NullString
	if re.Status != nil {
		status = sql.NullString{String: string(*re.Status), Valid: true}
	}

	for _, appID := range appIDs {
		_, err := tx.ExecContext(ctx,
			`UPDATE applications SET stage_id = $2, status = COALESCE($3, status), updated_at = $4 WHERE id = $1`,
			appID, re.Fallback.ID, status, re.At,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to reassign application: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO stage_history (id, application_id, stage_id, stage_name, changed_by, changed_at, notes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New().String(), appID, re.Fallback.ID, re.Fallback.Name, nullEmpty(re.ActorID), re.At, re.Notes,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert reassignment history: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM stages WHERE id = $1`, stageID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stage: %w", err)
	}
	if err := checkAffected(result); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(appIDs), nil
}

var _ StageRepository = (*PostgresStageRepo)(nil)
