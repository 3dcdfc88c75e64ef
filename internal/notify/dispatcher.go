// Package notify はドメインイベントからアプリ内通知とメールを生成する。
// 送信の失敗は呼び出し元の操作を失敗させず、Outcomeで警告として返す。
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/jobboard/internal/metrics"
	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/repository"
	"github.com/hitoshi/jobboard/internal/transport"
)

// Event はDispatcherが扱うドメインイベント。実装はこのパッケージ内の型のみ。
type Event interface {
	isEvent()
}

// ApplicationSubmitted は応募の受付。求人の所有者に通知する。
type ApplicationSubmitted struct {
	Application *model.Application
	Job         *model.JobPosting
	Applicant   *model.Account
}

// StageChanged はステージの移動。応募者に通知し、SendEmailならテンプレートメールも送る。
type StageChanged struct {
	Application *model.Application
	Job         *model.JobPosting
	Applicant   *model.Account
	Stage       *model.Stage
	Kind        model.NotificationType
	ActorID     string
	SendEmail   bool
}

// MessageSent はスレッドへのメッセージ投稿。受信者に通知する。
type MessageSent struct {
	Message *model.Message
	Job     *model.JobPosting
	Sender  *model.Account
}

// InvitationSent はチームへの招待。招待先のメールアドレスにのみ送信し、アプリ内通知は作らない。
type InvitationSent struct {
	Invitation *model.TeamInvitation
	Team       *model.Team
	Inviter    *model.Account
}

func (ApplicationSubmitted) isEvent() {}
func (StageChanged) isEvent()         {}
func (MessageSent) isEvent()          {}
func (InvitationSent) isEvent()       {}

// Outcome はイベント処理の結果。
type Outcome struct {
	Notification *model.Notification // 作成した通知。メールのみのイベントではnil
	Delivered    bool                // メールを送信できた場合true
	Err          error               // 永続化・送信の失敗。呼び出し元は警告として扱う
}

// Mail は送信ログ付きで送るメール。
type Mail struct {
	To            string
	Subject       string
	Body          string
	ApplicationID *string
	TemplateID    *string
	SenderID      *string
}

// Config はDispatcherの設定。
type Config struct {
	BaseURL  string
	SiteName string
}

// Dispatcher はドメインイベントを通知とメールに変換する。
type Dispatcher struct {
	notifications repository.NotificationRepository
	emailLogs     repository.EmailLogRepository
	templates     repository.TemplateRepository
	email         transport.EmailSender
	metrics       metrics.MetricsCollector
	cfg           Config
	now           func() time.Time
}

// NewDispatcher はDispatcherを生成する。
func NewDispatcher(
	notifications repository.NotificationRepository,
	emailLogs repository.EmailLogRepository,
	templates repository.TemplateRepository,
	email transport.EmailSender,
	collector metrics.MetricsCollector,
	cfg Config,
) *Dispatcher {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if cfg.SiteName == "" {
		cfg.SiteName = "JobBoard"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Dispatcher{
		notifications: notifications,
		emailLogs:     emailLogs,
		templates:     templates,
		email:         email,
		metrics:       collector,
		cfg:           cfg,
		now:           time.Now,
	}
}

// Dispatch はイベントを処理する。エラーは返さず、失敗はOutcome.Errに入れてログに残す。
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Outcome {
	switch e := ev.(type) {
	case ApplicationSubmitted:
		return d.applicationSubmitted(ctx, e)
	case StageChanged:
		return d.stageChanged(ctx, e)
	case MessageSent:
		return d.messageSent(ctx, e)
	case InvitationSent:
		return d.invitationSent(ctx, e)
	default:
		return Outcome{Err: fmt.Errorf("unknown event: %T", ev)}
	}
}

func (d *Dispatcher) applicationSubmitted(ctx context.Context, e ApplicationSubmitted) Outcome {
	n := &model.Notification{
		RecipientID:   e.Job.OwnerID,
		Type:          model.NotifyApplicationReceived,
		Title:         fmt.Sprintf("New application for %s", e.Job.Title),
		Message:       fmt.Sprintf("%s applied for %s.", e.Applicant.Name, e.Job.Title),
		Link:          "/applications/" + e.Application.ID,
		ApplicationID: &e.Application.ID,
		JobID:         &e.Job.ID,
	}
	return d.notify(ctx, n)
}

func (d *Dispatcher) stageChanged(ctx context.Context, e StageChanged) Outcome {
	kind := e.Kind
	if kind == "" {
		kind = model.NotifyStageChange
	}
	n := &model.Notification{
		RecipientID:   e.Applicant.ID,
		Type:          kind,
		Title:         stageTitle(kind, e.Job.Title),
		Message:       fmt.Sprintf("Your application for %s at %s has moved to %s.", e.Job.Title, e.Job.Company, e.Stage.Name),
		Link:          "/applications/" + e.Application.ID,
		ApplicationID: &e.Application.ID,
		JobID:         &e.Job.ID,
	}
	out := d.notify(ctx, n)
	if !e.SendEmail {
		return out
	}

	tmpl, err := d.templateFor(ctx, e.Job.OwnerID, TemplateTypeFor(kind))
	if err != nil {
		d.warn("テンプレートの取得に失敗しました", err, slog.String("application_id", e.Application.ID))
		out.Err = err
		return out
	}
	if tmpl == nil {
		out.Err = model.NewNotFoundError("メールテンプレート")
		return out
	}

	vars := NewVars(
		VarApplicantName, e.Applicant.Name,
		VarJobTitle, e.Job.Title,
		VarCompanyName, e.Job.Company,
		VarStageName, e.Stage.Name,
	)
	subject, body := RenderTemplate(tmpl, vars)
	mail := Mail{
		To:            e.Applicant.Email,
		Subject:       subject,
		Body:          body,
		ApplicationID: &e.Application.ID,
		TemplateID:    &tmpl.ID,
	}
	if e.ActorID != "" {
		mail.SenderID = &e.ActorID
	}
	delivered, err := d.Send(ctx, mail)
	out.Delivered = delivered
	if err != nil && out.Err == nil {
		out.Err = err
	}
	return out
}

func (d *Dispatcher) messageSent(ctx context.Context, e MessageSent) Outcome {
	n := &model.Notification{
		RecipientID:   e.Message.RecipientID,
		Type:          model.NotifyMessageReceived,
		Title:         fmt.Sprintf("New message about %s", e.Job.Title),
		Message:       fmt.Sprintf("%s sent you a message.", e.Sender.Name),
		Link:          "/applications/" + e.Message.ApplicationID + "/messages",
		ApplicationID: &e.Message.ApplicationID,
		JobID:         &e.Job.ID,
	}
	return d.notify(ctx, n)
}

func (d *Dispatcher) invitationSent(ctx context.Context, e InvitationSent) Outcome {
	link := fmt.Sprintf("%s/invitations/%s", d.cfg.BaseURL, e.Invitation.Token)
	subject := fmt.Sprintf("You're invited to join %s on %s", e.Team.Name, d.cfg.SiteName)
	body := fmt.Sprintf(`Hello,

%s has invited you to join the hiring team "%s" as %s.

Accept the invitation here:
%s

This invitation expires on %s.
`, e.Inviter.Name, e.Team.Name, e.Invitation.Role, link, e.Invitation.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))

	mail := Mail{To: e.Invitation.Email, Subject: subject, Body: body, SenderID: &e.Inviter.ID}
	delivered, err := d.Send(ctx, mail)
	d.metrics.RecordNotification("team_invitation")
	return Outcome{Delivered: delivered, Err: err}
}

// notify は通知を保存する。
func (d *Dispatcher) notify(ctx context.Context, n *model.Notification) Outcome {
	n.ID = uuid.New().String()
	n.CreatedAt = d.now()
	if err := d.notifications.Create(ctx, n); err != nil {
		d.warn("通知の作成に失敗しました", err,
			slog.String("recipient_id", n.RecipientID),
			slog.String("type", string(n.Type)),
		)
		return Outcome{Err: fmt.Errorf("通知の作成に失敗しました: %w", err)}
	}
	d.metrics.RecordNotification(string(n.Type))
	return Outcome{Notification: n}
}

// Send はメールを送信し、送信ログをpendingからsentまたはfailedに更新する。
// 送信ログの保存に失敗しても送信は行う。
func (d *Dispatcher) Send(ctx context.Context, m Mail) (bool, error) {
	entry := &model.EmailLog{
		ID:             uuid.New().String(),
		ApplicationID:  m.ApplicationID,
		TemplateID:     m.TemplateID,
		SenderID:       m.SenderID,
		RecipientEmail: m.To,
		Subject:        m.Subject,
		Body:           m.Body,
		Status:         model.EmailPending,
		CreatedAt:      d.now(),
	}
	logged := true
	if err := d.emailLogs.Create(ctx, entry); err != nil {
		d.warn("送信ログの作成に失敗しました", err, slog.String("to", m.To))
		logged = false
	}

	sendErr := d.email.SendEmail(ctx, m.To, m.Subject, m.Body)
	d.metrics.RecordDelivery("email", sendErr == nil)

	if logged {
		var err error
		if sendErr != nil {
			err = d.emailLogs.UpdateStatus(ctx, entry.ID, model.EmailFailed, sendErr.Error(), nil)
		} else {
			sentAt := d.now()
			err = d.emailLogs.UpdateStatus(ctx, entry.ID, model.EmailSent, "", &sentAt)
		}
		if err != nil {
			d.warn("送信ログの更新に失敗しました", err, slog.String("email_log_id", entry.ID))
		}
	}

	if sendErr != nil {
		d.warn("メールの送信に失敗しました", sendErr, slog.String("to", m.To))
		return false, model.NewDeliveryFailedError("メール")
	}
	return true, nil
}

// templateFor は用途に合う有効なテンプレートを返す。
// 雇用者にテンプレートが1件もなければ既定テンプレートを投入してから探し、
// 見つからなければstage_change用途にフォールバックする。
func (d *Dispatcher) templateFor(ctx context.Context, employerID string, kind model.TemplateType) (*model.EmailTemplate, error) {
	tmpl, err := d.templates.FindActiveByType(ctx, employerID, kind)
	if err != nil || tmpl != nil {
		return tmpl, err
	}
	if _, err := EnsureDefaultTemplates(ctx, d.templates, employerID, d.now()); err != nil {
		return nil, err
	}
	tmpl, err = d.templates.FindActiveByType(ctx, employerID, kind)
	if err != nil || tmpl != nil || kind == model.TemplateStageChange {
		return tmpl, err
	}
	return d.templates.FindActiveByType(ctx, employerID, model.TemplateStageChange)
}

func (d *Dispatcher) warn(msg string, err error, attrs ...any) {
	attrs = append(attrs, slog.String("error", err.Error()))
	slog.Warn(msg, attrs...)
}

// EnsureDefaultTemplates は既定テンプレートのうち不足分のみ投入し、雇用者の全テンプレートを返す。
func EnsureDefaultTemplates(ctx context.Context, repo repository.TemplateRepository, employerID string, now time.Time) ([]*model.EmailTemplate, error) {
	defaults := DefaultTemplates(employerID)
	for _, t := range defaults {
		t.ID = uuid.New().String()
		t.CreatedAt = now
		t.UpdatedAt = now
	}
	templates, err := repo.EnsureDefaults(ctx, employerID, defaults)
	if err != nil {
		return nil, fmt.Errorf("既定テンプレートの作成に失敗しました: %w", err)
	}
	return templates, nil
}

func stageTitle(kind model.NotificationType, jobTitle string) string {
	switch kind {
	case model.NotifyInterviewScheduled:
		return "Interview invitation: " + jobTitle
	case model.NotifyOfferReceived:
		return "Job offer: " + jobTitle
	default:
		return "Application update: " + jobTitle
	}
}
