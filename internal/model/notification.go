package model

import "time"

// NotificationType はアプリ内通知の種別。
type NotificationType string

const (
	NotifyApplicationReceived NotificationType = "application_received"
	NotifyApplicationViewed   NotificationType = "application_viewed"
	NotifyStageChange         NotificationType = "stage_change"
	NotifyMessageReceived     NotificationType = "message_received"
	NotifyInterviewScheduled  NotificationType = "interview_scheduled"
	NotifyOfferReceived       NotificationType = "offer_received"
	NotifyApplicationRejected NotificationType = "application_rejected"
	NotifyGeneral             NotificationType = "general"
)

// Notification は受信者ごとのアプリ内通知。自動削除はしない。
type Notification struct {
	ID            string
	RecipientID   string
	Type          NotificationType
	Title         string
	Message       string
	Link          string
	IsRead        bool
	ApplicationID *string
	JobID         *string
	CreatedAt     time.Time
}

// TemplateType はメールテンプレートの用途。
type TemplateType string

const (
	TemplateApplicationReceived TemplateType = "application_received"
	TemplateStageChange         TemplateType = "stage_change"
	TemplateInterviewInvite     TemplateType = "interview_invite"
	TemplateOffer               TemplateType = "offer"
	TemplateRejection           TemplateType = "rejection"
	TemplateCustom              TemplateType = "custom"
)

// Valid は定義済みの用途かを判定する。
func (t TemplateType) Valid() bool {
	switch t {
	case TemplateApplicationReceived, TemplateStageChange, TemplateInterviewInvite,
		TemplateOffer, TemplateRejection, TemplateCustom:
		return true
	default:
		return false
	}
}

// EmailTemplate は雇用者ごとのメールテンプレート。(EmployerID, Name) で一意。
type EmailTemplate struct {
	ID         string
	EmployerID string
	Name       string
	Type       TemplateType
	Subject    string
	Body       string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EmailStatus は送信ログの状態。
type EmailStatus string

const (
	EmailPending EmailStatus = "pending"
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
)

// EmailLog は送信したメールの記録。
type EmailLog struct {
	ID             string
	ApplicationID  *string
	TemplateID     *string
	SenderID       *string
	RecipientEmail string
	Subject        string
	Body           string
	Status         EmailStatus
	ErrorMessage   string
	SentAt         *time.Time
	CreatedAt      time.Time
}
