// Package review は応募に対する採用チームの評価作業（社内メモ、評価、タグ）を扱う。
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/jobboard/internal/activity"
	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/permission"
	"github.com/hitoshi/jobboard/internal/repository"
	"github.com/hitoshi/jobboard/internal/security"
)

// Service は社内メモ・評価・タグのビジネスロジックを提供する。
type Service struct {
	applications repository.ApplicationRepository
	jobs         repository.JobRepository
	notes        repository.NoteRepository
	ratings      repository.RatingRepository
	tags         repository.TagRepository
	resolver     *permission.Resolver
	recorder     *activity.Recorder
	sanitizer    *security.Sanitizer
	now          func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	applications repository.ApplicationRepository,
	jobs repository.JobRepository,
	notes repository.NoteRepository,
	ratings repository.RatingRepository,
	tags repository.TagRepository,
	resolver *permission.Resolver,
	recorder *activity.Recorder,
	sanitizer *security.Sanitizer,
) *Service {
	return &Service{
		applications: applications,
		jobs:         jobs,
		notes:        notes,
		ratings:      ratings,
		tags:         tags,
		resolver:     resolver,
		recorder:     recorder,
		sanitizer:    sanitizer,
		now:          time.Now,
	}
}

// target は権限確認済みの応募と求人。
type target struct {
	app *model.Application
	job *model.JobPosting
}

// authorize は応募を取得し、アクターが求人に対してcapabilityを持つか確認する。
// 範囲外の応募は存在しない応募と同じNOT_FOUNDになる。
func (s *Service) authorize(ctx context.Context, actorID, applicationID string, capability model.Capability) (*target, error) {
	app, err := s.applications.FindByID(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("応募の取得に失敗しました: %w", err)
	}
	if app == nil {
		return nil, model.NewNotFoundError("応募")
	}
	job, err := s.jobs.FindByID(ctx, app.JobID)
	if err != nil {
		return nil, fmt.Errorf("求人の取得に失敗しました: %w", err)
	}
	if job == nil {
		return nil, model.NewNotFoundError("応募")
	}
	set, err := s.resolver.ForJob(ctx, actorID, job)
	if err != nil {
		return nil, err
	}
	if err := permission.Authorize(set, capability, "応募"); err != nil {
		return nil, err
	}
	return &target{app: app, job: job}, nil
}

func (s *Service) record(ctx context.Context, t *target, actorID string, action model.ActivityAction, description string) {
	s.recorder.Record(ctx, activity.Entry{
		EmployerID:    t.job.OwnerID,
		ActorID:       actorID,
		Action:        action,
		Description:   description,
		ApplicationID: t.app.ID,
		JobID:         t.job.ID,
	})
}
