package model

import (
	"math"
	"time"
)

// LegacyStatus はパイプラインと同期して保持する粗い応募状態。
type LegacyStatus string

const (
	StatusPending  LegacyStatus = "pending"
	StatusReviewed LegacyStatus = "reviewed"
	StatusAccepted LegacyStatus = "accepted"
	StatusRejected LegacyStatus = "rejected"
)

// Valid は定義済みの状態かを判定する。
func (s LegacyStatus) Valid() bool {
	switch s {
	case StatusPending, StatusReviewed, StatusAccepted, StatusRejected:
		return true
	default:
		return false
	}
}

// Application は求人への応募を表す。
// (JobID, ApplicantID) はストレージの一意制約で重複を防ぐ。
type Application struct {
	ID          string
	JobID       string
	ApplicantID string
	CoverLetter string
	ResumeRef   *string // 応募ごとに添付された履歴書。nilならプロフィールの既定を使う
	Status      LegacyStatus
	StageID     *string
	AppliedAt   time.Time
	UpdatedAt   time.Time
}

// Stage は雇用者ごとの採用パイプラインのステップ。
type Stage struct {
	ID         string
	EmployerID string
	Name       string
	Color      string
	Order      int
	CreatedAt  time.Time
}

// StageHistory はステージ遷移の追記専用ログ。
// Seqは作成順を表し、滞在時間の計算はSeqの昇順で行う。
type StageHistory struct {
	ID            string
	Seq           int64
	ApplicationID string
	StageID       *string // ステージ削除後はnil
	StageName     string  // 記録時点のステージ名
	ChangedBy     *string // 操作者の退会後はnil
	ChangedAt     time.Time
	Notes         string
}

// Note は応募に対する社内メモ。
type Note struct {
	ID            string
	ApplicationID string
	AuthorID      string
	Content       string
	IsPrivate     bool
	CreatedAt     time.Time
}

// VisibleTo はviewerIDがこのメモを閲覧できるかを判定する。
// 非公開メモは作成者のみが閲覧できる。
func (n *Note) VisibleTo(viewerID string) bool {
	return !n.IsPrivate || n.AuthorID == viewerID
}

// Rating は評価者ごとの応募評価。(ApplicationID, RaterID) で一意。
type Rating struct {
	ID            string
	ApplicationID string
	RaterID       string
	Overall       int
	Technical     *int
	Communication *int
	CultureFit    *int
	Comment       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AverageRating は総合評価の平均を小数第1位に丸めて返す。
// 評価が1件もない場合はfalseを返す。
func AverageRating(ratings []*Rating) (float64, bool) {
	if len(ratings) == 0 {
		return 0, false
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Overall
	}
	avg := float64(sum) / float64(len(ratings))
	return math.Round(avg*10) / 10, true
}

// Tag は雇用者ごとの応募分類ラベル。
type Tag struct {
	ID         string
	EmployerID string
	Name       string
	Color      string
	CreatedAt  time.Time
}

// TagAssignment は応募とタグの割り当て。(ApplicationID, TagID) で一意。
type TagAssignment struct {
	ApplicationID string
	TagID         string
	AssignedBy    string
	CreatedAt     time.Time
}

// Message は応募ごとの応募者と採用チームのメッセージ。
type Message struct {
	ID            string
	ApplicationID string
	SenderID      string
	RecipientID   string
	Content       string
	IsRead        bool
	CreatedAt     time.Time
}
