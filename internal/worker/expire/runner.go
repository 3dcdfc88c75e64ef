package expire

import (
	"context"
	"log/slog"
	"time"
)

// Runner はTaskを一定間隔で順に実行する。
// 1つのTaskが失敗しても残りのTaskは実行する。
type Runner struct {
	tasks  []Task
	logger *slog.Logger
}

// NewRunner はRunnerを生成する。
func NewRunner(logger *slog.Logger, tasks ...Task) *Runner {
	return &Runner{tasks: tasks, logger: logger}
}

// Start はintervalごとにRunOnceを実行する。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("定期ジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Int("task_count", len(r.tasks)),
	)

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("定期ジョブを停止しました")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce は全Taskを1回ずつ実行し、失敗したTaskの数を返す。
func (r *Runner) RunOnce(ctx context.Context) int {
	failed := 0
	for _, t := range r.tasks {
		if ctx.Err() != nil {
			return failed
		}
		if _, err := t.Run(ctx); err != nil {
			failed++
			r.logger.Error("定期ジョブの実行に失敗しました",
				slog.String("task", t.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
	return failed
}
