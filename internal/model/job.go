package model

import "time"

// JobPosting は求人を表す。
type JobPosting struct {
	ID          string
	OwnerID     string
	Title       string
	Company     string
	Description string
	Location    string
	Salary      string
	IsActive    bool
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsExpired は求人の掲載期限がnowより前かを判定する。
// 期限が設定されていない求人は期限切れにならない。
func (j *JobPosting) IsExpired(now time.Time) bool {
	return j.ExpiresAt != nil && j.ExpiresAt.Before(now)
}

// JobSummary は雇用者ダッシュボード向けの求人と応募件数の組。
type JobSummary struct {
	Job              *JobPosting
	ApplicationCount int
}

// SavedJob は求職者が保存した求人。
type SavedJob struct {
	ID        string
	UserID    string
	JobID     string
	CreatedAt time.Time
}

// JobQuery は求人検索の条件。
type JobQuery struct {
	Keyword string
	Limit   int
	Offset  int
}
