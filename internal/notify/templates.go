package notify

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/jobboard/internal/activity"
	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/permission"
	"github.com/hitoshi/jobboard/internal/repository"
	"github.com/hitoshi/jobboard/internal/security"
)

// TemplateInput はテンプレートの作成・更新の入力。
type TemplateInput struct {
	Name     string
	Type     model.TemplateType
	Subject  string
	Body     string
	IsActive bool
}

// TemplateService はメールテンプレートの管理と、テンプレートを使った応募者へのメール送信を提供する。
type TemplateService struct {
	templates    repository.TemplateRepository
	applications repository.ApplicationRepository
	jobs         repository.JobRepository
	accounts     repository.AccountRepository
	stages       repository.StageRepository
	resolver     *permission.Resolver
	dispatcher   *Dispatcher
	sanitizer    *security.Sanitizer
	recorder     *activity.Recorder
	now          func() time.Time
}

// NewTemplateService はTemplateServiceを生成する。
func NewTemplateService(
	templates repository.TemplateRepository,
	applications repository.ApplicationRepository,
	jobs repository.JobRepository,
	accounts repository.AccountRepository,
	stages repository.StageRepository,
	resolver *permission.Resolver,
	dispatcher *Dispatcher,
	sanitizer *security.Sanitizer,
	recorder *activity.Recorder,
) *TemplateService {
	return &TemplateService{
		templates:    templates,
		applications: applications,
		jobs:         jobs,
		accounts:     accounts,
		stages:       stages,
		resolver:     resolver,
		dispatcher:   dispatcher,
		sanitizer:    sanitizer,
		recorder:     recorder,
		now:          time.Now,
	}
}

// List はアクターのスコープのテンプレートを返す。初回は既定テンプレートを投入する。
func (s *TemplateService) List(ctx context.Context, actorID string) ([]*model.EmailTemplate, error) {
	scope, err := s.resolver.Scope(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := permission.Require(scope, model.CapView); err != nil {
		return nil, err
	}
	return EnsureDefaultTemplates(ctx, s.templates, scope.EmployerID, s.now())
}

// Create はテンプレートを作成する。同名のテンプレートがあればDUPLICATE_NAMEを返す。
func (s *TemplateService) Create(ctx context.Context, actorID string, in TemplateInput) (*model.EmailTemplate, error) {
	scope, err := s.resolver.Scope(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := permission.Require(scope, model.CapManageApplications); err != nil {
		return nil, err
	}
	in, err = s.clean(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	tmpl := &model.EmailTemplate{
		ID:         uuid.New().String(),
		EmployerID: scope.EmployerID,
		Name:       in.Name,
		Type:       in.Type,
		Subject:    in.Subject,
		Body:       in.Body,
		IsActive:   in.IsActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.templates.Create(ctx, tmpl); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateNameError("メールテンプレート", in.Name)
		}
		return nil, fmt.Errorf("テンプレートの作成に失敗しました: %w", err)
	}
	return tmpl, nil
}

// Update はテンプレートを更新する。
func (s *TemplateService) Update(ctx context.Context, actorID, id string, in TemplateInput) (*model.EmailTemplate, error) {
	tmpl, err := s.authorized(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	in, err = s.clean(in)
	if err != nil {
		return nil, err
	}

	tmpl.Name = in.Name
	tmpl.Type = in.Type
	tmpl.Subject = in.Subject
	tmpl.Body = in.Body
	tmpl.IsActive = in.IsActive
	tmpl.UpdatedAt = s.now()
	if err := s.templates.Update(ctx, tmpl); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateNameError("メールテンプレート", in.Name)
		}
		return nil, fmt.Errorf("テンプレートの更新に失敗しました: %w", err)
	}
	return tmpl, nil
}

// Delete はテンプレートを削除する。送信ログのテンプレート参照はNULLになる。
func (s *TemplateService) Delete(ctx context.Context, actorID, id string) error {
	if _, err := s.authorized(ctx, actorID, id); err != nil {
		return err
	}
	if err := s.templates.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewNotFoundError("メールテンプレート")
		}
		return fmt.Errorf("テンプレートの削除に失敗しました: %w", err)
	}
	return nil
}

// SendInput はテンプレートメール送信の入力。
type SendInput struct {
	ActorID       string
	ApplicationID string
	TemplateID    string
}

// Send は応募者にテンプレートメールを送信する。
// 送信失敗は戻り値のエラーではなくOutcome.Errで返す。
func (s *TemplateService) Send(ctx context.Context, in SendInput) (*Outcome, error) {
	app, err := s.applications.FindByID(ctx, in.ApplicationID)
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
	set, err := s.resolver.ForJob(ctx, in.ActorID, job)
	if err != nil {
		return nil, err
	}
	if err := permission.Authorize(set, model.CapManageApplications, "応募"); err != nil {
		return nil, err
	}

	tmpl, err := s.templates.FindByID(ctx, in.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("テンプレートの取得に失敗しました: %w", err)
	}
	if tmpl == nil || tmpl.EmployerID != job.OwnerID {
		return nil, model.NewNotFoundError("メールテンプレート")
	}
	applicant, err := s.accounts.FindByID(ctx, app.ApplicantID)
	if err != nil {
		return nil, fmt.Errorf("応募者の取得に失敗しました: %w", err)
	}
	if applicant == nil {
		return nil, model.NewNotFoundError("応募者")
	}

	stageName := ""
	if app.StageID != nil {
		stage, err := s.stages.FindByID(ctx, *app.StageID)
		if err != nil {
			return nil, fmt.Errorf("ステージの取得に失敗しました: %w", err)
		}
		if stage != nil {
			stageName = stage.Name
		}
	}

	vars := NewVars(
		VarApplicantName, applicant.Name,
		VarJobTitle, job.Title,
		VarCompanyName, job.Company,
		VarStageName, stageName,
	)
	subject, body := RenderTemplate(tmpl, vars)
	delivered, sendErr := s.dispatcher.Send(ctx, Mail{
		To:            applicant.Email,
		Subject:       subject,
		Body:          body,
		ApplicationID: &app.ID,
		TemplateID:    &tmpl.ID,
		SenderID:      &in.ActorID,
	})

	s.recorder.Record(ctx, activity.Entry{
		EmployerID:    job.OwnerID,
		ActorID:       in.ActorID,
		Action:        model.ActionEmailSent,
		Description:   fmt.Sprintf("Sent %q to %s", tmpl.Name, applicant.Name),
		ApplicationID: app.ID,
		JobID:         job.ID,
	})
	return &Outcome{Delivered: delivered, Err: sendErr}, nil
}

// authorized はテンプレートを取得し、アクターが管理できるかを確認する。
func (s *TemplateService) authorized(ctx context.Context, actorID, id string) (*model.EmailTemplate, error) {
	tmpl, err := s.templates.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("テンプレートの取得に失敗しました: %w", err)
	}
	if tmpl == nil {
		return nil, model.NewNotFoundError("メールテンプレート")
	}
	set, err := s.resolver.ForEmployer(ctx, actorID, tmpl.EmployerID)
	if err != nil {
		return nil, err
	}
	if err := permission.Authorize(set, model.CapManageApplications, "メールテンプレート"); err != nil {
		return nil, err
	}
	return tmpl, nil
}

func (s *TemplateService) clean(in TemplateInput) (TemplateInput, error) {
	in.Name = s.sanitizer.Text(in.Name)
	in.Subject = s.sanitizer.Text(in.Subject)
	in.Body = s.sanitizer.Text(in.Body)
	if in.Type == "" {
		in.Type = model.TemplateCustom
	}
	switch {
	case in.Name == "" || utf8.RuneCountInString(in.Name) > 100:
		return in, model.NewInvalidInputError("テンプレート名は1〜100文字で入力してください")
	case in.Subject == "" || utf8.RuneCountInString(in.Subject) > 200:
		return in, model.NewInvalidInputError("件名は1〜200文字で入力してください")
	case in.Body == "":
		return in, model.NewInvalidInputError("本文を入力してください")
	case !in.Type.Valid():
		return in, model.NewInvalidInputError("テンプレートの用途が不正です")
	}
	return in, nil
}
