// Package pipeline は雇用者ごとの採用パイプライン（ステージ）と応募のステージ遷移を扱う。
//
// ステージ遷移は応募の更新と履歴の追記を同一トランザクションで行い、
// 通知は遷移の確定後に送る。通知の失敗は遷移を取り消さない。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
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

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Notifier はステージ遷移のイベントを受け取る。
type Notifier interface {
	Dispatch(ctx context.Context, ev notify.Event) notify.Outcome
}

// Engine はステージ管理とステージ遷移のサービス層。
type Engine struct {
	stages       repository.StageRepository
	applications repository.ApplicationRepository
	jobs         repository.JobRepository
	accounts     repository.AccountRepository
	ratings      repository.RatingRepository
	resolver     *permission.Resolver
	notifier     Notifier
	recorder     *activity.Recorder
	sanitizer    *security.Sanitizer
	metrics      metrics.MetricsCollector
	now          func() time.Time
}

// NewEngine はEngineを生成する。
func NewEngine(
	stages repository.StageRepository,
	applications repository.ApplicationRepository,
	jobs repository.JobRepository,
	accounts repository.AccountRepository,
	ratings repository.RatingRepository,
	resolver *permission.Resolver,
	notifier Notifier,
	recorder *activity.Recorder,
	sanitizer *security.Sanitizer,
	collector metrics.MetricsCollector,
) *Engine {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Engine{
		stages:       stages,
		applications: applications,
		jobs:         jobs,
		accounts:     accounts,
		ratings:      ratings,
		resolver:     resolver,
		notifier:     notifier,
		recorder:     recorder,
		sanitizer:    sanitizer,
		metrics:      collector,
		now:          time.Now,
	}
}

// EnsureDefaultStages は雇用者に既定の6ステージがなければ作成し、全ステージを表示順で返す。
// 何度呼んでも同名のステージは重複しない。
func (e *Engine) EnsureDefaultStages(ctx context.Context, employerID string) ([]*model.Stage, error) {
	now := e.now()
	defaults := DefaultStages(employerID)
	for _, st := range defaults {
		st.ID = uuid.New().String()
		st.CreatedAt = now
	}
	stages, err := e.stages.EnsureDefaults(ctx, employerID, defaults)
	if err != nil {
		return nil, fmt.Errorf("既定ステージの作成に失敗しました: %w", err)
	}
	return stages, nil
}

// ListStages はアクターのパイプラインのステージを表示順で返す。
func (e *Engine) ListStages(ctx context.Context, actorID string) ([]*model.Stage, error) {
	scope, err := e.resolver.Scope(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := permission.Require(scope, model.CapView); err != nil {
		return nil, err
	}
	return e.EnsureDefaultStages(ctx, scope.EmployerID)
}

// StageInput はステージの作成・更新の入力。
type StageInput struct {
	Name  string
	Color string
}

// CreateStage はパイプラインの末尾にステージを追加する。
func (e *Engine) CreateStage(ctx context.Context, actorID string, in StageInput) (*model.Stage, error) {
	scope, err := e.resolver.Scope(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := permission.Require(scope, model.CapManageApplications); err != nil {
		return nil, err
	}
	in, err = e.cleanStage(in)
	if err != nil {
		return nil, err
	}

	existing, err := e.EnsureDefaultStages(ctx, scope.EmployerID)
	if err != nil {
		return nil, err
	}
	order := 0
	for _, st := range existing {
		if st.Order >= order {
			order = st.Order + 1
		}
	}

	stage := &model.Stage{
		ID:         uuid.New().String(),
		EmployerID: scope.EmployerID,
		Name:       in.Name,
		Color:      in.Color,
		Order:      order,
		CreatedAt:  e.now(),
	}
	if err := e.stages.Create(ctx, stage); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateNameError("ステージ", in.Name)
		}
		return nil, fmt.Errorf("ステージの作成に失敗しました: %w", err)
	}
	return stage, nil
}

// UpdateStage はステージの名前と色を変更する。
func (e *Engine) UpdateStage(ctx context.Context, actorID, stageID string, in StageInput) (*model.Stage, error) {
	stage, err := e.manageableStage(ctx, actorID, stageID)
	if err != nil {
		return nil, err
	}
	in, err = e.cleanStage(in)
	if err != nil {
		return nil, err
	}

	stage.Name = in.Name
	stage.Color = in.Color
	if err := e.stages.Update(ctx, stage); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateNameError("ステージ", in.Name)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("ステージ")
		}
		return nil, fmt.Errorf("ステージの更新に失敗しました: %w", err)
	}
	return stage, nil
}

// ReorderStages はorderedIDsの順に表示順を振り直す。
// orderedIDsはパイプラインの全ステージを過不足なく含む必要がある。
func (e *Engine) ReorderStages(ctx context.Context, actorID string, orderedIDs []string) ([]*model.Stage, error) {
	scope, err := e.resolver.Scope(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := permission.Require(scope, model.CapManageApplications); err != nil {
		return nil, err
	}

	current, err := e.stages.ListByEmployer(ctx, scope.EmployerID)
	if err != nil {
		return nil, fmt.Errorf("ステージの取得に失敗しました: %w", err)
	}
	if !samePermutation(current, orderedIDs) {
		return nil, model.NewInvalidInputError("ステージIDの一覧がパイプラインと一致しません")
	}
	if err := e.stages.Reorder(ctx, scope.EmployerID, orderedIDs); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("ステージ")
		}
		return nil, fmt.Errorf("ステージの並び替えに失敗しました: %w", err)
	}
	return e.stages.ListByEmployer(ctx, scope.EmployerID)
}

// MoveInput はステージ遷移の入力。
type MoveInput struct {
	ActorID       string
	ApplicationID string
	StageID       string
	Notes         string
	SendEmail     bool // 応募者にテンプレートメールを送る
}

// MoveResult はステージ遷移の結果。
type MoveResult struct {
	Application   *model.Application
	Entry         *model.StageHistory
	PreviousStage *string
	Notification  notify.Outcome
}

// Move は応募を指定ステージに移動する。
//  1. アクターが求人に対してmanage_applicationsを持つか確認する
//  2. 移動先が求人の雇用者のステージか確認する
//  3. 応募のステージと粗い状態を更新し、履歴を追記する（同一トランザクション）
//  4. 応募者に通知する
//
// 終了扱いのステージ（Hired、Rejected）からの移動も許可する。
func (e *Engine) Move(ctx context.Context, in MoveInput) (*MoveResult, error) {
	app, job, err := e.applicationForActor(ctx, in.ActorID, in.ApplicationID, model.CapManageApplications)
	if err != nil {
		return nil, err
	}

	stage, err := e.stages.FindByID(ctx, in.StageID)
	if err != nil {
		return nil, fmt.Errorf("ステージの取得に失敗しました: %w", err)
	}
	if stage == nil || stage.EmployerID != job.OwnerID {
		return nil, model.NewInvalidStageError()
	}

	now := e.now()
	previous := app.StageID
	stageID := stage.ID
	app.StageID = &stageID
	if status, ok := LegacyStatusFor(stage.Name); ok {
		app.Status = status
	}
	app.UpdatedAt = now

	actorID := in.ActorID
	entry := &model.StageHistory{
		ID:            uuid.New().String(),
		ApplicationID: app.ID,
		StageID:       &stageID,
		StageName:     stage.Name,
		ChangedBy:     &actorID,
		ChangedAt:     now,
		Notes:         e.sanitizer.Text(in.Notes),
	}
	if err := e.applications.ApplyTransition(ctx, app, entry); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// 遷移の直前にステージが削除された
			return nil, model.NewInvalidStageError()
		}
		return nil, fmt.Errorf("ステージ遷移の保存に失敗しました: %w", err)
	}
	e.metrics.RecordStageTransition(stage.Name)

	slog.Info("応募のステージを変更しました",
		slog.String("application_id", app.ID),
		slog.String("stage", stage.Name),
		slog.String("actor_id", in.ActorID),
	)

	result := &MoveResult{Application: app, Entry: entry, PreviousStage: previous}

	applicant, err := e.accounts.FindByID(ctx, app.ApplicantID)
	if err != nil {
		slog.Warn("応募者の取得に失敗しました",
			slog.String("application_id", app.ID),
			slog.String("error", err.Error()),
		)
		result.Notification = notify.Outcome{Err: err}
	} else if applicant != nil {
		result.Notification = e.notifier.Dispatch(ctx, notify.StageChanged{
			Application: app,
			Job:         job,
			Applicant:   applicant,
			Stage:       stage,
			Kind:        NotificationTypeFor(stage.Name),
			ActorID:     in.ActorID,
			SendEmail:   in.SendEmail,
		})
	}

	applicantName := app.ApplicantID
	if applicant != nil {
		applicantName = applicant.Name
	}
	e.recorder.Record(ctx, activity.Entry{
		EmployerID:    job.OwnerID,
		ActorID:       in.ActorID,
		Action:        model.ActionStageChanged,
		Description:   fmt.Sprintf("Moved %s to %s", applicantName, stage.Name),
		ApplicationID: app.ID,
		JobID:         job.ID,
	})
	return result, nil
}

// DeleteStage はステージを削除する。
// 割り当て中の応募は表示順で先頭の残りステージに付け替え、付け替えも履歴に残す。
// 最後の1ステージに応募が割り当てられている場合はSTAGE_IN_USEを返す。
func (e *Engine) DeleteStage(ctx context.Context, actorID, stageID string) (int, error) {
	stage, err := e.manageableStage(ctx, actorID, stageID)
	if err != nil {
		return 0, err
	}

	all, err := e.stages.ListByEmployer(ctx, stage.EmployerID)
	if err != nil {
		return 0, fmt.Errorf("ステージの取得に失敗しました: %w", err)
	}
	re := repository.StageReassignment{
		ActorID: actorID,
		Notes:   fmt.Sprintf("Stage %q was deleted", stage.Name),
		At:      e.now(),
	}
	for _, st := range all {
		if st.ID != stage.ID {
			re.Fallback = st
			break
		}
	}
	if re.Fallback != nil {
		if status, ok := LegacyStatusFor(re.Fallback.Name); ok {
			re.Status = &status
		}
	}

	n, err := e.stages.DeleteAndReassign(ctx, stage.ID, re)
	switch {
	case errors.Is(err, repository.ErrInUse):
		return 0, model.NewStageInUseError()
	case errors.Is(err, repository.ErrNotFound):
		return 0, model.NewNotFoundError("ステージ")
	case err != nil:
		return 0, fmt.Errorf("ステージの削除に失敗しました: %w", err)
	}

	slog.Info("ステージを削除しました",
		slog.String("stage_id", stage.ID),
		slog.Int("reassigned", n),
	)
	return n, nil
}

// manageableStage はステージを取得し、アクターがmanage_applicationsを持つか確認する。
func (e *Engine) manageableStage(ctx context.Context, actorID, stageID string) (*model.Stage, error) {
	stage, err := e.stages.FindByID(ctx, stageID)
	if err != nil {
		return nil, fmt.Errorf("ステージの取得に失敗しました: %w", err)
	}
	if stage == nil {
		return nil, model.NewNotFoundError("ステージ")
	}
	set, err := e.resolver.ForEmployer(ctx, actorID, stage.EmployerID)
	if err != nil {
		return nil, err
	}
	if err := permission.Authorize(set, model.CapManageApplications, "ステージ"); err != nil {
		return nil, err
	}
	return stage, nil
}

// applicationForActor は応募と求人を取得し、アクターの権限を確認する。
func (e *Engine) applicationForActor(ctx context.Context, actorID, applicationID string, capability model.Capability) (*model.Application, *model.JobPosting, error) {
	app, err := e.applications.FindByID(ctx, applicationID)
	if err != nil {
		return nil, nil, fmt.Errorf("応募の取得に失敗しました: %w", err)
	}
	if app == nil {
		return nil, nil, model.NewNotFoundError("応募")
	}
	job, err := e.jobs.FindByID(ctx, app.JobID)
	if err != nil {
		return nil, nil, fmt.Errorf("求人の取得に失敗しました: %w", err)
	}
	if job == nil {
		return nil, nil, model.NewNotFoundError("応募")
	}
	set, err := e.resolver.ForJob(ctx, actorID, job)
	if err != nil {
		return nil, nil, err
	}
	if err := permission.Authorize(set, capability, "応募"); err != nil {
		return nil, nil, err
	}
	return app, job, nil
}

func (e *Engine) cleanStage(in StageInput) (StageInput, error) {
	in.Name = e.sanitizer.Text(in.Name)
	if in.Name == "" || utf8.RuneCountInString(in.Name) > 100 {
		return in, model.NewInvalidInputError("ステージ名は1〜100文字で入力してください")
	}
	if in.Color == "" {
		in.Color = DefaultStageColor
	}
	if !colorPattern.MatchString(in.Color) {
		return in, model.NewInvalidInputError("色は#rrggbb形式で指定してください")
	}
	return in, nil
}

func samePermutation(stages []*model.Stage, ids []string) bool {
	if len(stages) != len(ids) {
		return false
	}
	want := make(map[string]bool, len(stages))
	for _, st := range stages {
		want[st.ID] = true
	}
	for _, id := range ids {
		if !want[id] {
			return false
		}
		delete(want, id)
	}
	return len(want) == 0
}
