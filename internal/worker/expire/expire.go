// Package expire は掲載期限切れの求人・期限切れの招待・失効セッションを片付ける定期ジョブを提供する。
// どのジョブも冪等で、対象がなくてもエラーにならない。
package expire

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/jobboard/internal/metrics"
)

// Executor はSQLの実行を抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Task はRunnerが周期的に実行する1つの片付け処理。
type Task interface {
	Name() string
	Run(ctx context.Context) (int64, error)
}

// JobSweep は掲載期限を過ぎた公開中の求人を非公開にする。
type JobSweep struct {
	db      Executor
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	now     func() time.Time

	// DryRun がtrueなら更新せず、対象件数の数え上げのみ行う。
	DryRun bool
}

// NewJobSweep はJobSweepを生成する。
func NewJobSweep(db Executor, logger *slog.Logger, collector metrics.MetricsCollector) *JobSweep {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &JobSweep{db: db, logger: logger, metrics: collector, now: time.Now}
}

// Name はTaskインターフェースを実装する。
func (j *JobSweep) Name() string { return "expire_jobs" }

// Run は expires_at < now の公開中求人を非公開にし、件数を返す。
// 期限のない求人は対象にならない。
func (j *JobSweep) Run(ctx context.Context) (int64, error) {
	start := time.Now()
	now := j.now().UTC()

	if j.DryRun {
		var n int64
		err := j.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM jobs WHERE is_active AND expires_at IS NOT NULL AND expires_at < $1`,
			now,
		).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("期限切れ求人の集計に失敗: %w", err)
		}
		if n == 0 {
			j.logger.Info("期限切れの求人はありません", slog.Bool("dry_run", true))
		} else {
			j.logger.Info("期限切れの求人が見つかりました",
				slog.Int64("count", n),
				slog.Bool("dry_run", true),
			)
		}
		return n, nil
	}

	result, err := j.db.ExecContext(ctx,
		`UPDATE jobs SET is_active = FALSE, updated_at = $1
		 WHERE is_active AND expires_at IS NOT NULL AND expires_at < $1`,
		now,
	)
	if err != nil {
		j.logger.Error("求人の期限切れ処理に失敗しました", slog.String("error", err.Error()))
		return 0, fmt.Errorf("求人の期限切れ処理に失敗: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}

	j.metrics.RecordJobsExpired(int(n))
	j.logger.Info("求人の期限切れ処理が完了しました",
		slog.Int64("expired_count", n),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return n, nil
}

// SessionSweep は有効期限を過ぎたセッションを削除する。
type SessionSweep struct {
	db     Executor
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionSweep はSessionSweepを生成する。
func NewSessionSweep(db Executor, logger *slog.Logger) *SessionSweep {
	return &SessionSweep{db: db, logger: logger, now: time.Now}
}

// Name はTaskインターフェースを実装する。
func (s *SessionSweep) Name() string { return "purge_sessions" }

// Run は失効済みのセッションを削除し、件数を返す。
func (s *SessionSweep) Run(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("セッションの削除に失敗: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	s.logger.Info("失効セッションを削除しました", slog.Int64("deleted_count", n))
	return n, nil
}

// InvitationExpirer は期限切れ招待の状態遷移を行うサービス。team.Serviceが満たす。
type InvitationExpirer interface {
	ExpireInvitations(ctx context.Context) (int64, error)
}

// InvitationSweep は期限を過ぎたpendingの招待をexpiredにする。
type InvitationSweep struct {
	expirer InvitationExpirer
	logger  *slog.Logger
}

// NewInvitationSweep はInvitationSweepを生成する。
func NewInvitationSweep(expirer InvitationExpirer, logger *slog.Logger) *InvitationSweep {
	return &InvitationSweep{expirer: expirer, logger: logger}
}

// Name はTaskインターフェースを実装する。
func (s *InvitationSweep) Name() string { return "expire_invitations" }

// Run は期限切れの招待を遷移させ、件数を返す。
func (s *InvitationSweep) Run(ctx context.Context) (int64, error) {
	n, err := s.expirer.ExpireInvitations(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("招待の期限切れ処理が完了しました", slog.Int64("expired_count", n))
	return n, nil
}
