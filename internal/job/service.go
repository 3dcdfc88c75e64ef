// Package job は求人の投稿・編集・検索と保存済み求人を扱う。
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/jobboard/internal/activity"
	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/permission"
	"github.com/hitoshi/jobboard/internal/repository"
	"github.com/hitoshi/jobboard/internal/security"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// Index は求人の全文検索インデックス。Elasticsearchを使わない構成ではnil。
type Index interface {
	Index(ctx context.Context, job *model.JobPosting) error
	Remove(ctx context.Context, jobID string) error
	Search(ctx context.Context, q model.JobQuery) ([]string, error)
}

// Service は求人のビジネスロジックを提供する。
type Service struct {
	jobs      repository.JobRepository
	saved     repository.SavedJobRepository
	accounts  repository.AccountRepository
	index     Index
	resolver  *permission.Resolver
	recorder  *activity.Recorder
	sanitizer *security.Sanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。indexはnilでもよい。
func NewService(
	jobs repository.JobRepository,
	saved repository.SavedJobRepository,
	accounts repository.AccountRepository,
	index Index,
	resolver *permission.Resolver,
	recorder *activity.Recorder,
	sanitizer *security.Sanitizer,
) *Service {
	return &Service{
		jobs:      jobs,
		saved:     saved,
		accounts:  accounts,
		index:     index,
		resolver:  resolver,
		recorder:  recorder,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// Input は求人の作成・更新の入力。
type Input struct {
	Title       string
	Company     string // 空なら投稿者の会社名
	Description string
	Location    string
	Salary      string
	ExpiresAt   *time.Time
}

// Post は求人を投稿する。雇用者と承認済みリクルーターのみ投稿できる。
func (s *Service) Post(ctx context.Context, actorID string, in Input) (*model.JobPosting, error) {
	owner, err := s.accounts.FindByID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if owner == nil {
		return nil, model.NewNotFoundError("アカウント")
	}
	if !owner.CanPostJobs() {
		if owner.Role == model.RoleRecruiter {
			return nil, model.NewRecruiterNotApprovedError()
		}
		return nil, model.NewUnauthorizedError(model.CapManageApplications)
	}
	if in.Company == "" {
		in.Company = owner.CompanyName()
	}
	in, err = s.clean(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	job := &model.JobPosting{
		ID:          uuid.New().String(),
		OwnerID:     owner.ID,
		Title:       in.Title,
		Company:     in.Company,
		Description: in.Description,
		Location:    in.Location,
		Salary:      in.Salary,
		IsActive:    true,
		ExpiresAt:   in.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("求人の作成に失敗しました: %w", err)
	}
	slog.Info("求人を投稿しました", slog.String("job_id", job.ID), slog.String("owner_id", owner.ID))

	s.reindex(ctx, job)
	s.recorder.Record(ctx, activity.Entry{
		EmployerID:  owner.ID,
		ActorID:     actorID,
		Action:      model.ActionJobPosted,
		Description: fmt.Sprintf("Posted %s", job.Title),
		JobID:       job.ID,
	})
	return job, nil
}

// Update は求人の内容を更新する。求人に対してmanage_applicationsが必要。
func (s *Service) Update(ctx context.Context, actorID, jobID string, in Input) (*model.JobPosting, error) {
	job, err := s.manageable(ctx, actorID, jobID)
	if err != nil {
		return nil, err
	}
	if in.Company == "" {
		in.Company = job.Company
	}
	in, err = s.clean(in)
	if err != nil {
		return nil, err
	}

	job.Title = in.Title
	job.Company = in.Company
	job.Description = in.Description
	job.Location = in.Location
	job.Salary = in.Salary
	job.ExpiresAt = in.ExpiresAt
	job.UpdatedAt = s.now()
	if err := s.jobs.Update(ctx, job); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("求人")
		}
		return nil, fmt.Errorf("求人の更新に失敗しました: %w", err)
	}

	s.reindex(ctx, job)
	s.recorder.Record(ctx, activity.Entry{
		EmployerID:  job.OwnerID,
		ActorID:     actorID,
		Action:      model.ActionJobEdited,
		Description: fmt.Sprintf("Edited %s", job.Title),
		JobID:       job.ID,
	})
	return job, nil
}

// Toggle は求人の掲載状態を切り替える。
func (s *Service) Toggle(ctx context.Context, actorID, jobID string) (*model.JobPosting, error) {
	job, err := s.manageable(ctx, actorID, jobID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.jobs.SetActive(ctx, job.ID, !job.IsActive, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("求人")
		}
		return nil, fmt.Errorf("求人の掲載状態の変更に失敗しました: %w", err)
	}
	job.IsActive = !job.IsActive
	job.UpdatedAt = now
	s.reindex(ctx, job)
	return job, nil
}

// Get は求人を返す。掲載停止中の求人は雇用者スコープのアクターにのみ返す。
func (s *Service) Get(ctx context.Context, viewerID, jobID string) (*model.JobPosting, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("求人の取得に失敗しました: %w", err)
	}
	if job == nil {
		return nil, model.NewNotFoundError("求人")
	}
	if job.IsActive {
		return job, nil
	}
	if viewerID == "" {
		return nil, model.NewNotFoundError("求人")
	}
	set, err := s.resolver.ForJob(ctx, viewerID, job)
	if err != nil {
		return nil, err
	}
	if err := permission.Authorize(set, model.CapView, "求人"); err != nil {
		return nil, err
	}
	return job, nil
}

// Search は掲載中の求人を新しい順に検索する。
// インデックスが設定されていればインデックスを使い、失敗時はデータベース検索に切り替える。
func (s *Service) Search(ctx context.Context, q model.JobQuery) ([]*model.JobPosting, error) {
	q.Keyword = strings.TrimSpace(q.Keyword)
	if q.Limit <= 0 {
		q.Limit = defaultSearchLimit
	}
	if q.Limit > maxSearchLimit {
		q.Limit = maxSearchLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	if s.index != nil {
		ids, err := s.index.Search(ctx, q)
		if err == nil {
			jobs, err := s.jobs.ListByIDs(ctx, ids)
			if err != nil {
				return nil, fmt.Errorf("求人の取得に失敗しました: %w", err)
			}
			return jobs, nil
		}
		slog.Warn("検索インデックスでの検索に失敗しました",
			slog.String("keyword", q.Keyword),
			slog.String("error", err.Error()),
		)
	}

	jobs, err := s.jobs.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("求人の検索に失敗しました: %w", err)
	}
	return jobs, nil
}

// Dashboard はアクターの雇用者スコープの求人を応募件数付きで返す。
func (s *Service) Dashboard(ctx context.Context, actorID string) ([]*model.JobSummary, error) {
	scope, err := s.resolver.Scope(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := permission.Require(scope, model.CapView); err != nil {
		return nil, err
	}
	summaries, err := s.jobs.ListByOwner(ctx, scope.EmployerID)
	if err != nil {
		return nil, fmt.Errorf("求人の取得に失敗しました: %w", err)
	}
	return summaries, nil
}

// Save は求人を保存する。保存済みでも成功する。
func (s *Service) Save(ctx context.Context, userID, jobID string) error {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("求人の取得に失敗しました: %w", err)
	}
	if job == nil || !job.IsActive {
		return model.NewNotFoundError("求人")
	}
	err = s.saved.Save(ctx, &model.SavedJob{
		ID:        uuid.New().String(),
		UserID:    userID,
		JobID:     job.ID,
		CreatedAt: s.now(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewNotFoundError("求人")
		}
		return fmt.Errorf("求人の保存に失敗しました: %w", err)
	}
	return nil
}

// Unsave は保存を解除する。保存していない求人はNOT_FOUND。
func (s *Service) Unsave(ctx context.Context, userID, jobID string) error {
	if err := s.saved.Delete(ctx, userID, jobID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewNotFoundError("保存済みの求人")
		}
		return fmt.Errorf("保存の解除に失敗しました: %w", err)
	}
	return nil
}

// Saved は保存した求人を保存の新しい順に返す。
func (s *Service) Saved(ctx context.Context, userID string) ([]*model.JobPosting, error) {
	jobs, err := s.saved.ListJobsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("保存済みの求人の取得に失敗しました: %w", err)
	}
	return jobs, nil
}

func (s *Service) manageable(ctx context.Context, actorID, jobID string) (*model.JobPosting, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("求人の取得に失敗しました: %w", err)
	}
	if job == nil {
		return nil, model.NewNotFoundError("求人")
	}
	set, err := s.resolver.ForJob(ctx, actorID, job)
	if err != nil {
		return nil, err
	}
	if err := permission.Authorize(set, model.CapManageApplications, "求人"); err != nil {
		return nil, err
	}
	return job, nil
}

// reindex は検索インデックスを更新する。失敗は警告ログのみ。
func (s *Service) reindex(ctx context.Context, job *model.JobPosting) {
	if s.index == nil {
		return
	}
	var err error
	if job.IsActive {
		err = s.index.Index(ctx, job)
	} else {
		err = s.index.Remove(ctx, job.ID)
	}
	if err != nil {
		slog.Warn("検索インデックスの更新に失敗しました",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) clean(in Input) (Input, error) {
	in.Title = s.sanitizer.Text(in.Title)
	in.Company = s.sanitizer.Text(in.Company)
	in.Location = s.sanitizer.Text(in.Location)
	in.Salary = s.sanitizer.Text(in.Salary)
	in.Description = s.sanitizer.RichText(in.Description)

	switch {
	case in.Title == "" || utf8.RuneCountInString(in.Title) > 200:
		return in, model.NewInvalidInputError("タイトルは1〜200文字で入力してください")
	case in.Company == "" || utf8.RuneCountInString(in.Company) > 200:
		return in, model.NewInvalidInputError("会社名は1〜200文字で入力してください")
	case in.Description == "":
		return in, model.NewInvalidInputError("説明は必須です")
	case utf8.RuneCountInString(in.Location) > 200:
		return in, model.NewInvalidInputError("勤務地は200文字以内で入力してください")
	case utf8.RuneCountInString(in.Salary) > 100:
		return in, model.NewInvalidInputError("給与は100文字以内で入力してください")
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return in, model.NewInvalidInputError("掲載期限は未来の日時を指定してください")
	}
	return in, nil
}
