// Package activity はチーム単位の操作ログを記録する。
package activity

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/repository"
)

// Entry は記録する操作。
type Entry struct {
	EmployerID    string // チームの所有者
	ActorID       string
	Action        model.ActivityAction
	Description   string
	ApplicationID string
	JobID         string
}

// Recorder は雇用者のチームに操作ログを追記する。
// 雇用者がチームを持っていない場合は何もしない。
type Recorder struct {
	teams repository.TeamRepository
	logs  repository.ActivityRepository
	now   func() time.Time
}

// NewRecorder はRecorderを生成する。
func NewRecorder(teams repository.TeamRepository, logs repository.ActivityRepository) *Recorder {
	return &Recorder{teams: teams, logs: logs, now: time.Now}
}

// Record は操作ログを追記する。記録の失敗は警告ログのみで、呼び出し元の操作は失敗させない。
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil {
		return
	}
	team, err := r.teams.FindByOwnerID(ctx, e.EmployerID)
	if err != nil {
		slog.Warn("操作ログのチーム取得に失敗しました",
			slog.String("employer_id", e.EmployerID),
			slog.String("error", err.Error()),
		)
		return
	}
	if team == nil {
		return
	}

	entry := &model.ActivityLog{
		ID:            uuid.New().String(),
		TeamID:        team.ID,
		ActorID:       optional(e.ActorID),
		Action:        e.Action,
		Description:   e.Description,
		ApplicationID: optional(e.ApplicationID),
		JobID:         optional(e.JobID),
		CreatedAt:     r.now(),
	}
	if err := r.logs.Create(ctx, entry); err != nil {
		slog.Warn("操作ログの記録に失敗しました",
			slog.String("team_id", team.ID),
			slog.String("action", string(e.Action)),
			slog.String("error", err.Error()),
		)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
