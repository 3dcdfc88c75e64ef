// Package message は応募ごとの応募者と採用チームのメッセージスレッドを扱う。
package message

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/jobboard/internal/activity"
	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/notify"
	"github.com/hitoshi/jobboard/internal/permission"
	"github.com/hitoshi/jobboard/internal/repository"
	"github.com/hitoshi/jobboard/internal/security"
)

const maxMessageLength = 5000

// Notifier はメッセージ投稿のイベントを受け取る。
type Notifier interface {
	Dispatch(ctx context.Context, ev notify.Event) notify.Outcome
}

// Service はメッセージスレッドのビジネスロジックを提供する。
// 採用チーム側の宛先は常に求人の所有者で、チームメンバーは所有者の受信箱を共有する。
type Service struct {
	applications repository.ApplicationRepository
	jobs         repository.JobRepository
	accounts     repository.AccountRepository
	messages     repository.MessageRepository
	resolver     *permission.Resolver
	notifier     Notifier
	recorder     *activity.Recorder
	sanitizer    *security.Sanitizer
	now          func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	applications repository.ApplicationRepository,
	jobs repository.JobRepository,
	accounts repository.AccountRepository,
	messages repository.MessageRepository,
	resolver *permission.Resolver,
	notifier Notifier,
	recorder *activity.Recorder,
	sanitizer *security.Sanitizer,
) *Service {
	return &Service{
		applications: applications,
		jobs:         jobs,
		accounts:     accounts,
		messages:     messages,
		resolver:     resolver,
		notifier:     notifier,
		recorder:     recorder,
		sanitizer:    sanitizer,
		now:          time.Now,
	}
}

// participant はスレッドに対するアクターの立場。
type participant struct {
	app       *model.Application
	job       *model.JobPosting
	applicant bool   // 応募者本人
	inbox     string // アクター側の受信者ID
	peer      string // 相手側の受信者ID
}

// resolve はアクターがスレッドに参加できるか確認する。
// 採用側はcapabilityが必要で、応募者本人は常に参加できる。
func (s *Service) resolve(ctx context.Context, actorID, applicationID string, capability model.Capability) (*participant, error) {
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

	if app.ApplicantID == actorID {
		return &participant{app: app, job: job, applicant: true, inbox: actorID, peer: job.OwnerID}, nil
	}
	set, err := s.resolver.ForJob(ctx, actorID, job)
	if err != nil {
		return nil, err
	}
	if err := permission.Authorize(set, capability, "応募"); err != nil {
		return nil, err
	}
	return &participant{app: app, job: job, inbox: job.OwnerID, peer: app.ApplicantID}, nil
}

// Thread はスレッドのメッセージを古い順に返し、アクター側宛てのメッセージを既読にする。
func (s *Service) Thread(ctx context.Context, actorID, applicationID string) ([]*model.Message, error) {
	p, err := s.resolve(ctx, actorID, applicationID, model.CapView)
	if err != nil {
		return nil, err
	}
	if _, err := s.messages.MarkReadForRecipient(ctx, p.app.ID, p.inbox); err != nil {
		return nil, fmt.Errorf("メッセージの既読化に失敗しました: %w", err)
	}
	msgs, err := s.messages.ListByApplication(ctx, p.app.ID)
	if err != nil {
		return nil, fmt.Errorf("メッセージの取得に失敗しました: %w", err)
	}
	return msgs, nil
}

// SendResult はメッセージ投稿の結果。
type SendResult struct {
	Message      *model.Message
	Notification notify.Outcome
}

// Send はスレッドにメッセージを投稿し、相手側に通知する。
func (s *Service) Send(ctx context.Context, actorID, applicationID, content string) (*SendResult, error) {
	p, err := s.resolve(ctx, actorID, applicationID, model.CapManageApplications)
	if err != nil {
		return nil, err
	}
	content = s.sanitizer.Text(content)
	if content == "" || utf8.RuneCountInString(content) > maxMessageLength {
		return nil, model.NewInvalidInputError(fmt.Sprintf("メッセージは1〜%d文字で入力してください", maxMessageLength))
	}

	sender, err := s.accounts.FindByID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("送信者の取得に失敗しました: %w", err)
	}
	if sender == nil {
		return nil, model.NewNotFoundError("アカウント")
	}

	msg := &model.Message{
		ID:            uuid.New().String(),
		ApplicationID: p.app.ID,
		SenderID:      actorID,
		RecipientID:   p.peer,
		Content:       content,
		CreatedAt:     s.now(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("メッセージの作成に失敗しました: %w", err)
	}
	slog.Info("メッセージを送信しました",
		slog.String("application_id", p.app.ID),
		slog.String("sender_id", actorID),
	)

	out := s.notifier.Dispatch(ctx, notify.MessageSent{Message: msg, Job: p.job, Sender: sender})
	if !p.applicant {
		s.recorder.Record(ctx, activity.Entry{
			EmployerID:    p.job.OwnerID,
			ActorID:       actorID,
			Action:        model.ActionMessageSent,
			Description:   "Sent a message to the applicant",
			ApplicationID: p.app.ID,
			JobID:         p.job.ID,
		})
	}
	return &SendResult{Message: msg, Notification: out}, nil
}
