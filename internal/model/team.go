package model

import "time"

// Capability はチーム内の操作権限を表す。
type Capability string

const (
	CapManageTeam         Capability = "manage_team"
	CapManageApplications Capability = "manage_applications"
	CapReview             Capability = "review"
	CapView               Capability = "view"
)

// TeamRole はチーム内の役割を表す。
// ownerはチーム所有者として算出される役割で、メンバー行には保存しない。
type TeamRole string

const (
	TeamRoleOwner     TeamRole = "owner"
	TeamRoleAdmin     TeamRole = "admin"
	TeamRoleRecruiter TeamRole = "recruiter"
	TeamRoleReviewer  TeamRole = "reviewer"
	TeamRoleViewer    TeamRole = "viewer"
)

// AssignableTeamRole はメンバーに割り当て可能な役割かを判定する。
func AssignableTeamRole(r TeamRole) bool {
	switch r {
	case TeamRoleAdmin, TeamRoleRecruiter, TeamRoleReviewer, TeamRoleViewer:
		return true
	default:
		return false
	}
}

// Team は雇用者の採用チーム。所有者は1人。
type Team struct {
	ID        string
	OwnerID   string
	Name      string
	CreatedAt time.Time
}

// TeamMember はチームの所属メンバー。
// 1ユーザーがアクティブに所属できるチームは1つまで。
type TeamMember struct {
	ID       string
	TeamID   string
	UserID   string
	Role     TeamRole
	IsActive bool
	JoinedAt time.Time
}

// InvitationStatus はチーム招待の状態。pendingからのみ遷移する。
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
)

// TeamInvitation はメールアドレス宛のチーム招待。トークンは1回限り有効。
type TeamInvitation struct {
	ID          string
	TeamID      string
	Email       string
	Role        TeamRole
	Token       string
	Status      InvitationStatus
	InvitedBy   *string
	AcceptedBy  *string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	RespondedAt *time.Time
}

// IsExpired は招待の有効期限がnowを過ぎているかを判定する。
func (i *TeamInvitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// ActivityAction はチームの操作ログの種別。
type ActivityAction string

const (
	ActionApplicationViewed ActivityAction = "application_viewed"
	ActionStageChanged      ActivityAction = "stage_changed"
	ActionNoteAdded         ActivityAction = "note_added"
	ActionRatingAdded       ActivityAction = "rating_added"
	ActionEmailSent         ActivityAction = "email_sent"
	ActionMessageSent       ActivityAction = "message_sent"
	ActionTagAdded          ActivityAction = "tag_added"
	ActionTagRemoved        ActivityAction = "tag_removed"
	ActionMemberInvited     ActivityAction = "member_invited"
	ActionMemberRemoved     ActivityAction = "member_removed"
	ActionJobPosted         ActivityAction = "job_posted"
	ActionJobEdited         ActivityAction = "job_edited"
)

// ActivityLog はチーム単位の追記専用の操作ログ。
type ActivityLog struct {
	ID            string
	TeamID        string
	ActorID       *string
	Action        ActivityAction
	Description   string
	ApplicationID *string
	JobID         *string
	CreatedAt     time.Time
}
