package model

import "time"

// PhoneVerification はアカウントごとの電話番号確認レコード。
type PhoneVerification struct {
	AccountID  string
	Phone      string // E.164形式
	Code       string
	IssuedAt   time.Time
	Verified   bool
	VerifiedAt *time.Time
}

// EmailVerification はアカウントごとのメールアドレス確認レコード。
type EmailVerification struct {
	AccountID  string
	Token      string
	IssuedAt   time.Time
	Verified   bool
	VerifiedAt *time.Time
}

// VerificationLevel は確認済みチャネルから算出する本人確認レベル。保存はしない。
type VerificationLevel string

const (
	LevelNone     VerificationLevel = "none"
	LevelBasic    VerificationLevel = "basic"
	LevelEnhanced VerificationLevel = "enhanced"
	LevelComplete VerificationLevel = "complete"
)

// VerificationStatus はアカウントの確認状況。
type VerificationStatus struct {
	PhoneVerified bool
	EmailVerified bool
	Phone         string
	Level         VerificationLevel
}
