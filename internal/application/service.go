// Package application は求人への応募と応募情報の参照を扱う。
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/jobboard/internal/activity"
	"github.com/hitoshi/jobboard/internal/metrics"
	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/notify"
	"github.com/hitoshi/jobboard/internal/permission"
	"github.com/hitoshi/jobboard/internal/repository"
	"github.com/hitoshi/jobboard/internal/security"
)

const maxCoverLetterLength = 10000

// LevelSource はアカウントの本人確認レベルを返す。
type LevelSource interface {
	Level(ctx context.Context, accountID string) (model.VerificationLevel, error)
}

// Notifier は応募イベントを受け取る。
type Notifier interface {
	Dispatch(ctx context.Context, ev notify.Event) notify.Outcome
}

// Service は応募のビジネスロジックを提供する。
type Service struct {
	applications repository.ApplicationRepository
	jobs         repository.JobRepository
	accounts     repository.AccountRepository
	levels       LevelSource
	resolver     *permission.Resolver
	notifier     Notifier
	recorder     *activity.Recorder
	sanitizer    *security.Sanitizer
	metrics      metrics.MetricsCollector
	now          func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	applications repository.ApplicationRepository,
	jobs repository.JobRepository,
	accounts repository.AccountRepository,
	levels LevelSource,
	resolver *permission.Resolver,
	notifier Notifier,
	recorder *activity.Recorder,
	sanitizer *security.Sanitizer,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		applications: applications,
		jobs:         jobs,
		accounts:     accounts,
		levels:       levels,
		resolver:     resolver,
		notifier:     notifier,
		recorder:     recorder,
		sanitizer:    sanitizer,
		metrics:      collector,
		now:          time.Now,
	}
}

// SubmitInput は応募の入力。
type SubmitInput struct {
	JobID       string
	ApplicantID string
	CoverLetter string
	ResumeRef   string // 空なら応募時の添付なし
}

// SubmitResult は応募の結果。Notification.Errは警告としてのみ扱う。
type SubmitResult struct {
	Application  *model.Application
	Notification notify.Outcome
}

// Submit は求人に応募する。
// 重複応募はストレージの一意制約で検出するため、同時に送信されても1件しか作成されない。
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	job, err := s.jobs.FindByID(ctx, in.JobID)
	if err != nil {
		return nil, fmt.Errorf("求人の取得に失敗しました: %w", err)
	}
	if job == nil {
		return nil, model.NewNotFoundError("求人")
	}
	now := s.now()
	if !job.IsActive || job.IsExpired(now) {
		return nil, model.NewJobClosedError()
	}

	applicant, err := s.accounts.FindByID(ctx, in.ApplicantID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if applicant == nil {
		return nil, model.NewNotFoundError("アカウント")
	}
	if applicant.Role.IsHiring() {
		return nil, model.NewEmployerCannotApplyError()
	}

	level, err := s.levels.Level(ctx, applicant.ID)
	if err != nil {
		return nil, err
	}
	if level == model.LevelNone {
		return nil, model.NewNotEligibleError()
	}

	cover := s.sanitizer.Text(in.CoverLetter)
	if utf8.RuneCountInString(cover) > maxCoverLetterLength {
		return nil, model.NewInvalidInputError(fmt.Sprintf("カバーレターは%d文字以内で入力してください", maxCoverLetterLength))
	}

	app := &model.Application{
		ID:          uuid.New().String(),
		JobID:       job.ID,
		ApplicantID: applicant.ID,
		CoverLetter: cover,
		Status:      model.StatusPending,
		AppliedAt:   now,
		UpdatedAt:   now,
	}
	if in.ResumeRef != "" {
		ref := in.ResumeRef
		app.ResumeRef = &ref
	}
	if err := s.applications.Create(ctx, app); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, model.NewAlreadyAppliedError()
		case errors.Is(err, repository.ErrNotFound):
			return nil, model.NewNotFoundError("求人")
		}
		return nil, fmt.Errorf("応募の作成に失敗しました: %w", err)
	}
	s.metrics.RecordApplicationSubmitted()

	slog.Info("応募を受け付けました",
		slog.String("application_id", app.ID),
		slog.String("job_id", job.ID),
		slog.String("applicant_id", applicant.ID),
	)

	out := s.notifier.Dispatch(ctx, notify.ApplicationSubmitted{Application: app, Job: job, Applicant: applicant})
	return &SubmitResult{Application: app, Notification: out}, nil
}

// ResolveResume は応募に使う履歴書の参照を返す。
// 応募時の添付を優先し、なければ求職者プロフィールの既定を使う。どちらもなければfalse。
func ResolveResume(app *model.Application, applicant *model.Account) (string, bool) {
	if app != nil && app.ResumeRef != nil && *app.ResumeRef != "" {
		return *app.ResumeRef, true
	}
	if applicant == nil {
		return "", false
	}
	if p, ok := applicant.Profile.(*model.JobSeekerProfile); ok && p.ResumeRef != "" {
		return p.ResumeRef, true
	}
	return "", false
}

// Get は応募を返す。応募者本人か、求人に対してviewを持つアクターのみ参照できる。
// 採用側が参照した場合は操作ログに残す。
func (s *Service) Get(ctx context.Context, actorID, applicationID string) (*model.Application, error) {
	app, job, err := s.load(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.ApplicantID == actorID {
		return app, nil
	}
	if err := s.authorize(ctx, actorID, job, model.CapView); err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, activity.Entry{
		EmployerID:    job.OwnerID,
		ActorID:       actorID,
		Action:        model.ActionApplicationViewed,
		Description:   fmt.Sprintf("Viewed application for %s", job.Title),
		ApplicationID: app.ID,
		JobID:         job.ID,
	})
	return app, nil
}

// Resume は採用側のアクター向けに応募の履歴書の参照を返す。
func (s *Service) Resume(ctx context.Context, actorID, applicationID string) (string, error) {
	app, job, err := s.load(ctx, applicationID)
	if err != nil {
		return "", err
	}
	if err := s.authorize(ctx, actorID, job, model.CapView); err != nil {
		return "", err
	}
	applicant, err := s.accounts.FindByID(ctx, app.ApplicantID)
	if err != nil {
		return "", fmt.Errorf("応募者の取得に失敗しました: %w", err)
	}
	ref, ok := ResolveResume(app, applicant)
	if !ok {
		return "", model.NewNotFoundError("履歴書")
	}
	return ref, nil
}

// ListForJob は求人への応募を新しい順に返す。
func (s *Service) ListForJob(ctx context.Context, actorID, jobID string) ([]*model.Application, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("求人の取得に失敗しました: %w", err)
	}
	if job == nil {
		return nil, model.NewNotFoundError("求人")
	}
	if err := s.authorize(ctx, actorID, job, model.CapView); err != nil {
		return nil, err
	}
	apps, err := s.applications.ListByJob(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("応募の取得に失敗しました: %w", err)
	}
	return apps, nil
}

// ListMine は応募者本人の応募を新しい順に返す。
func (s *Service) ListMine(ctx context.Context, applicantID string) ([]*model.Application, error) {
	apps, err := s.applications.ListByApplicant(ctx, applicantID)
	if err != nil {
		return nil, fmt.Errorf("応募の取得に失敗しました: %w", err)
	}
	return apps, nil
}

// UpdateStatus はステージを変えずに粗い状態のみ変更する。
func (s *Service) UpdateStatus(ctx context.Context, actorID, applicationID string, status model.LegacyStatus) (*model.Application, error) {
	if !status.Valid() {
		return nil, model.NewInvalidInputError(fmt.Sprintf("不明な状態です: %s", status))
	}
	app, job, err := s.load(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, job, model.CapManageApplications); err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.applications.UpdateStatus(ctx, app.ID, status, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("応募")
		}
		return nil, fmt.Errorf("応募の状態更新に失敗しました: %w", err)
	}
	app.Status = status
	app.UpdatedAt = now
	return app, nil
}

func (s *Service) load(ctx context.Context, applicationID string) (*model.Application, *model.JobPosting, error) {
	app, err := s.applications.FindByID(ctx, applicationID)
	if err != nil {
		return nil, nil, fmt.Errorf("応募の取得に失敗しました: %w", err)
	}
	if app == nil {
		return nil, nil, model.NewNotFoundError("応募")
	}
	job, err := s.jobs.FindByID(ctx, app.JobID)
	if err != nil {
		return nil, nil, fmt.Errorf("求人の取得に失敗しました: %w", err)
	}
	if job == nil {
		return nil, nil, model.NewNotFoundError("応募")
	}
	return app, job, nil
}

func (s *Service) authorize(ctx context.Context, actorID string, job *model.JobPosting, capability model.Capability) error {
	set, err := s.resolver.ForJob(ctx, actorID, job)
	if err != nil {
		return err
	}
	return permission.Authorize(set, capability, "応募")
}
