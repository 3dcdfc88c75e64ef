package model

import (
	"fmt"
	"time"
)

// Role はアカウントの種別を表す。
type Role string

const (
	RoleJobSeeker Role = "job_seeker"
	RoleEmployer  Role = "employer"
	RoleRecruiter Role = "recruiter"
)

// Valid はロールが定義済みの値かを判定する。
func (r Role) Valid() bool {
	switch r {
	case RoleJobSeeker, RoleEmployer, RoleRecruiter:
		return true
	default:
		return false
	}
}

// IsHiring は採用側（雇用者・リクルーター）のロールかを判定する。
func (r Role) IsHiring() bool {
	return r == RoleEmployer || r == RoleRecruiter
}

// Account はサービス利用アカウントを表す。
// Profileはロールに対応する型を必ず1つ持つ。
type Account struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	Approved  bool // リクルーターのみ意味を持つ。管理者だけが設定する
	Profile   Profile
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanPostJobs は求人を投稿できるアカウントかを判定する。
// 雇用者、または承認済みのリクルーターのみ投稿できる。
func (a *Account) CanPostJobs() bool {
	switch a.Role {
	case RoleEmployer:
		return true
	case RoleRecruiter:
		return a.Approved
	default:
		return false
	}
}

// Profile はロールごとのプロフィールを表すタグ付き共用体。
// 実装はJobSeekerProfile、EmployerProfile、RecruiterProfileのみ。
type Profile interface {
	ProfileRole() Role
}

// JobSeekerProfile は求職者のプロフィール。
type JobSeekerProfile struct {
	Headline    string
	Skills      string
	Location    string
	ResumeRef   string // 既定の履歴書の参照（ストレージ上のキー）
	LinkedInURL string
}

// ProfileRole はProfileインターフェースを実装する。
func (*JobSeekerProfile) ProfileRole() Role { return RoleJobSeeker }

// EmployerProfile は雇用者のプロフィール。
type EmployerProfile struct {
	CompanyName string
	Website     string
	Description string
}

// ProfileRole はProfileインターフェースを実装する。
func (*EmployerProfile) ProfileRole() Role { return RoleEmployer }

// RecruiterProfile はリクルーターのプロフィール。
type RecruiterProfile struct {
	AgencyName string
	Website    string
}

// ProfileRole はProfileインターフェースを実装する。
func (*RecruiterProfile) ProfileRole() Role { return RoleRecruiter }

// NewProfile はロールに対応する空のプロフィールを生成する。
func NewProfile(role Role) (Profile, error) {
	switch role {
	case RoleJobSeeker:
		return &JobSeekerProfile{}, nil
	case RoleEmployer:
		return &EmployerProfile{}, nil
	case RoleRecruiter:
		return &RecruiterProfile{}, nil
	default:
		return nil, fmt.Errorf("unknown role: %q", role)
	}
}

// CompanyName は求人やメールに表示する会社名を返す。
// 雇用者は会社名、リクルーターはエージェンシー名、それ以外はアカウント名を使う。
func (a *Account) CompanyName() string {
	switch p := a.Profile.(type) {
	case *EmployerProfile:
		if p.CompanyName != "" {
			return p.CompanyName
		}
	case *RecruiterProfile:
		if p.AgencyName != "" {
			return p.AgencyName
		}
	}
	return a.Name
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	AccountID      string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はアカウントのログインセッションを表す。
type Session struct {
	ID        string
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
}
