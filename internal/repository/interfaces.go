// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/jobboard/internal/model"
)

// AccountRepository はアカウントとプロフィールの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントをプロフィール付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByEmail はメールアドレスでアカウントを検索する。大文字小文字は区別しない。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// CreateWithIdentity はアカウント、プロフィール、identityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, account *model.Account, identity *model.Identity) error

	// UpdateProfile はアカウント名とプロフィールを更新する。
	UpdateProfile(ctx context.Context, account *model.Account) error

	// SetApproved はリクルーターの承認フラグを設定する。
	SetApproved(ctx context.Context, id string, approved bool) error

	// DeleteByID は指定IDのアカウントを削除する。
	// 操作ログやステージ履歴の操作者はSET NULLで残る。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByAccountID(ctx context.Context, accountID string) error
}

// VerificationRepository は電話番号・メールアドレス確認レコードの永続化インターフェース。
// どちらもアカウントごとに1レコード。
type VerificationRepository interface {
	FindPhone(ctx context.Context, accountID string) (*model.PhoneVerification, error)
	// UpsertPhone は既存レコードを上書きする。
	UpsertPhone(ctx context.Context, v *model.PhoneVerification) error
	MarkPhoneVerified(ctx context.Context, accountID string, at time.Time) error

	FindEmailByAccount(ctx context.Context, accountID string) (*model.EmailVerification, error)
	FindEmailByToken(ctx context.Context, token string) (*model.EmailVerification, error)
	// UpsertEmail はトークンが他アカウントと衝突した場合ErrDuplicateを返す。
	UpsertEmail(ctx context.Context, v *model.EmailVerification) error
	MarkEmailVerified(ctx context.Context, accountID string, at time.Time) error
}

// JobRepository は求人の永続化インターフェース。
type JobRepository interface {
	FindByID(ctx context.Context, id string) (*model.JobPosting, error)
	Create(ctx context.Context, job *model.JobPosting) error
	Update(ctx context.Context, job *model.JobPosting) error
	SetActive(ctx context.Context, id string, active bool, at time.Time) error

	// Search は掲載中の求人をキーワードで検索する。新しい順。
	Search(ctx context.Context, q model.JobQuery) ([]*model.JobPosting, error)

	// ListByIDs は指定IDの掲載中求人をidsの順で返す。
	ListByIDs(ctx context.Context, ids []string) ([]*model.JobPosting, error)

	// ListByOwner は所有者の全求人を応募件数付きで返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.JobSummary, error)
}

// SavedJobRepository は保存した求人の永続化インターフェース。
type SavedJobRepository interface {
	// Save は保存済みでも成功する。
	Save(ctx context.Context, saved *model.SavedJob) error
	Delete(ctx context.Context, userID, jobID string) error
	ListJobsByUser(ctx context.Context, userID string) ([]*model.JobPosting, error)
}

// ApplicationRepository は応募とステージ履歴の永続化インターフェース。
type ApplicationRepository interface {
	// Create は応募を作成する。(job_id, applicant_id) が重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, app *model.Application) error
	FindByID(ctx context.Context, id string) (*model.Application, error)
	ListByJob(ctx context.Context, jobID string) ([]*model.Application, error)
	ListByApplicant(ctx context.Context, applicantID string) ([]*model.Application, error)
	UpdateStatus(ctx context.Context, id string, status model.LegacyStatus, at time.Time) error

	// ApplyTransition は応募のステージと状態の更新、履歴の追記を同一トランザクションで行う。
	// 成功時はentry.Seqに採番された値を設定する。
	ApplyTransition(ctx context.Context, app *model.Application, entry *model.StageHistory) error

	// ListHistory は応募のステージ履歴を新しい順に返す。
	ListHistory(ctx context.Context, applicationID string) ([]*model.StageHistory, error)

	// ListHistoryByJob は求人に属する全応募のステージ履歴をSeq昇順で返す。
	ListHistoryByJob(ctx context.Context, jobID string) ([]*model.StageHistory, error)
}

// StageReassignment はステージ削除時の応募の付け替え内容。
type StageReassignment struct {
	Fallback *model.Stage        // nilの場合、割り当て中の応募があればErrInUse
	Status   *model.LegacyStatus // nilの場合は状態を変更しない
	ActorID  string
	Notes    string
	At       time.Time
}

// StageRepository はパイプラインステージの永続化インターフェース。
type StageRepository interface {
	// ListByEmployer は雇用者のステージを表示順に返す。
	ListByEmployer(ctx context.Context, employerID string) ([]*model.Stage, error)
	FindByID(ctx context.Context, id string) (*model.Stage, error)

	// EnsureDefaults は(employer_id, name)をキーに不足している既定ステージのみ作成し、
	// 雇用者の全ステージを表示順に返す。
	EnsureDefaults(ctx context.Context, employerID string, defaults []*model.Stage) ([]*model.Stage, error)

	// Create は名前が重複する場合ErrDuplicateを返す。
	Create(ctx context.Context, stage *model.Stage) error
	// Update は名前と色を更新する。名前が重複する場合ErrDuplicateを返す。
	Update(ctx context.Context, stage *model.Stage) error
	// Reorder はorderedIDsの順に表示順を振り直す。
	Reorder(ctx context.Context, employerID string, orderedIDs []string) error

	// DeleteAndReassign は割り当て中の応募を付け替えてからステージを削除する。
	// 付け替えた件数を返す。
	DeleteAndReassign(ctx context.Context, stageID string, r StageReassignment) (int, error)
}

// NoteRepository は社内メモの永続化インターフェース。
type NoteRepository interface {
	Create(ctx context.Context, note *model.Note) error
	FindByID(ctx context.Context, id string) (*model.Note, error)
	ListByApplication(ctx context.Context, applicationID string) ([]*model.Note, error)
	Delete(ctx context.Context, id string) error
}

// RatingRepository は評価の永続化インターフェース。
type RatingRepository interface {
	// Upsert は(application_id, rater_id)で原子的に作成または更新し、保存後の値を返す。
	Upsert(ctx context.Context, rating *model.Rating) (*model.Rating, error)
	ListByApplication(ctx context.Context, applicationID string) ([]*model.Rating, error)
}

// TagRepository はタグと割り当ての永続化インターフェース。
type TagRepository interface {
	// Create は名前が重複する場合ErrDuplicateを返す。
	Create(ctx context.Context, tag *model.Tag) error
	FindByID(ctx context.Context, id string) (*model.Tag, error)
	ListByEmployer(ctx context.Context, employerID string) ([]*model.Tag, error)
	Delete(ctx context.Context, id string) error

	// Assign は割り当てを作成する。既に割り当て済みの場合はfalseを返す。
	Assign(ctx context.Context, a *model.TagAssignment) (bool, error)
	// Unassign は割り当てを削除する。割り当てがなかった場合はfalseを返す。
	Unassign(ctx context.Context, applicationID, tagID string) (bool, error)
	ListByApplication(ctx context.Context, applicationID string) ([]*model.Tag, error)
}

// TemplateRepository はメールテンプレートの永続化インターフェース。
type TemplateRepository interface {
	// EnsureDefaults は(employer_id, name)をキーに不足している既定テンプレートのみ作成し、
	// 雇用者の全テンプレートを返す。
	EnsureDefaults(ctx context.Context, employerID string, defaults []*model.EmailTemplate) ([]*model.EmailTemplate, error)
	ListByEmployer(ctx context.Context, employerID string) ([]*model.EmailTemplate, error)
	FindByID(ctx context.Context, id string) (*model.EmailTemplate, error)
	// FindActiveByType は用途が一致する有効なテンプレートを名前順で最初の1件返す。
	FindActiveByType(ctx context.Context, employerID string, t model.TemplateType) (*model.EmailTemplate, error)
	Create(ctx context.Context, tmpl *model.EmailTemplate) error
	Update(ctx context.Context, tmpl *model.EmailTemplate) error
	Delete(ctx context.Context, id string) error
}

// EmailLogRepository はメール送信ログの永続化インターフェース。
type EmailLogRepository interface {
	Create(ctx context.Context, log *model.EmailLog) error
	UpdateStatus(ctx context.Context, id string, status model.EmailStatus, errMsg string, sentAt *time.Time) error
}

// NotificationRepository はアプリ内通知の永続化インターフェース。
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	// ListByRecipient は新しい順に最大limit件返す。
	ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]*model.Notification, error)
	// MarkRead は受信者本人の通知のみ既読にする。対象がない場合ErrNotFoundを返す。
	MarkRead(ctx context.Context, recipientID, id string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
}

// MessageRepository は応募スレッドのメッセージの永続化インターフェース。
type MessageRepository interface {
	Create(ctx context.Context, m *model.Message) error
	// ListByApplication は古い順に返す。
	ListByApplication(ctx context.Context, applicationID string) ([]*model.Message, error)
	MarkReadForRecipient(ctx context.Context, applicationID, recipientID string) (int64, error)
}

// TeamRepository はチームとメンバーの永続化インターフェース。
type TeamRepository interface {
	// Create は所有者が既にチームを持つ場合ErrDuplicateを返す。
	Create(ctx context.Context, team *model.Team) error
	FindByID(ctx context.Context, id string) (*model.Team, error)
	FindByOwnerID(ctx context.Context, ownerID string) (*model.Team, error)

	// FindActiveMembership はユーザーのアクティブな所属を返す。所属がない場合はnilを返す。
	FindActiveMembership(ctx context.Context, userID string) (*model.TeamMember, error)
	ListMembers(ctx context.Context, teamID string) ([]*model.TeamMember, error)
	UpdateMemberRole(ctx context.Context, teamID, userID string, role model.TeamRole) error
	DeactivateMember(ctx context.Context, teamID, userID string) error
}

// InvitationRepository はチーム招待の永続化インターフェース。
type InvitationRepository interface {
	Create(ctx context.Context, inv *model.TeamInvitation) error
	FindByToken(ctx context.Context, token string) (*model.TeamInvitation, error)
	ListByTeam(ctx context.Context, teamID string) ([]*model.TeamInvitation, error)

	// Accept は招待をpendingからacceptedに遷移させ、メンバーを作成（または再有効化）する。
	// 同一トランザクションで行う。pendingでない場合ErrNotPending、
	// 他チームにアクティブ所属がある場合ErrDuplicateを返す。
	Accept(ctx context.Context, inv *model.TeamInvitation, member *model.TeamMember, at time.Time) error

	// Respond は招待をpendingからtoに遷移させる。pendingでない場合ErrNotPendingを返す。
	Respond(ctx context.Context, id string, to model.InvitationStatus, at time.Time) error

	// ExpirePending は期限切れのpending招待をexpiredにし、件数を返す。
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

// ActivityRepository はチーム操作ログの永続化インターフェース。
type ActivityRepository interface {
	Create(ctx context.Context, entry *model.ActivityLog) error
	// ListByTeam は新しい順に最大limit件返す。
	ListByTeam(ctx context.Context, teamID string, limit int) ([]*model.ActivityLog, error)
}
