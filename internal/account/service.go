// Package account はアカウントとロール別プロフィールの管理を提供する。
package account

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/repository"
	"github.com/hitoshi/jobboard/internal/security"
)

// Service はアカウント管理のサービス層。
type Service struct {
	accounts  repository.AccountRepository
	sessions  repository.SessionRepository
	sanitizer *security.Sanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	accounts repository.AccountRepository,
	sessions repository.SessionRepository,
	sanitizer *security.Sanitizer,
) *Service {
	return &Service{
		accounts:  accounts,
		sessions:  sessions,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// ProfileInput はプロフィール更新の入力。ロールに関係しない項目は無視する。
type ProfileInput struct {
	Name string

	// 求職者
	Headline    string
	Skills      string
	Location    string
	ResumeRef   string
	LinkedInURL string

	// 雇用者
	CompanyName string
	Description string

	// 雇用者・リクルーター
	Website string

	// リクルーター
	AgencyName string
}

// Get はアカウントをプロフィール付きで返す。
func (s *Service) Get(ctx context.Context, accountID string) (*model.Account, error) {
	a, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if a == nil {
		return nil, model.NewNotFoundError("アカウント")
	}
	return a, nil
}

// UpdateProfile はアカウント名とロールに対応するプロフィールを更新する。
func (s *Service) UpdateProfile(ctx context.Context, accountID string, in ProfileInput) (*model.Account, error) {
	a, err := s.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	name := s.sanitizer.Text(in.Name)
	if name == "" || utf8.RuneCountInString(name) > 100 {
		return nil, model.NewInvalidInputError("名前は1〜100文字で入力してください")
	}

	var profile model.Profile
	switch a.Role {
	case model.RoleJobSeeker:
		p := &model.JobSeekerProfile{
			Headline:  s.sanitizer.Text(in.Headline),
			Skills:    s.sanitizer.Text(in.Skills),
			Location:  s.sanitizer.Text(in.Location),
			ResumeRef: strings.TrimSpace(in.ResumeRef),
		}
		if p.LinkedInURL, err = linkedInURL(in.LinkedInURL); err != nil {
			return nil, err
		}
		if utf8.RuneCountInString(p.Headline) > 200 {
			return nil, model.NewInvalidInputError("見出しは200文字以内で入力してください")
		}
		profile = p
	case model.RoleEmployer:
		p := &model.EmployerProfile{
			CompanyName: s.sanitizer.Text(in.CompanyName),
			Description: s.sanitizer.RichText(in.Description),
		}
		if p.Website, err = websiteURL(in.Website); err != nil {
			return nil, err
		}
		if p.CompanyName == "" || utf8.RuneCountInString(p.CompanyName) > 200 {
			return nil, model.NewInvalidInputError("会社名は1〜200文字で入力してください")
		}
		profile = p
	case model.RoleRecruiter:
		p := &model.RecruiterProfile{AgencyName: s.sanitizer.Text(in.AgencyName)}
		if p.Website, err = websiteURL(in.Website); err != nil {
			return nil, err
		}
		if utf8.RuneCountInString(p.AgencyName) > 200 {
			return nil, model.NewInvalidInputError("エージェンシー名は200文字以内で入力してください")
		}
		profile = p
	default:
		return nil, fmt.Errorf("unknown role: %q", a.Role)
	}

	a.Name = name
	a.Profile = profile
	a.UpdatedAt = s.now()
	if err := s.accounts.UpdateProfile(ctx, a); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return a, nil
}

// ApproveRecruiter はリクルーターを承認し、求人を投稿できるようにする。管理者用。
func (s *Service) ApproveRecruiter(ctx context.Context, accountID string) (*model.Account, error) {
	a, err := s.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a.Role != model.RoleRecruiter {
		return nil, model.NewInvalidInputError("リクルーター以外のアカウントは承認できません")
	}
	if a.Approved {
		return a, nil
	}
	if err := s.accounts.SetApproved(ctx, a.ID, true); err != nil {
		return nil, fmt.Errorf("リクルーターの承認に失敗しました: %w", err)
	}
	a.Approved = true
	slog.Info("リクルーターを承認しました", slog.String("account_id", a.ID))
	return a, nil
}

// Withdraw はアカウントの退会処理を実行する。
// 削除順序: sessions → account（応募・保存・通知などはCASCADE、操作ログの操作者はSET NULL）
func (s *Service) Withdraw(ctx context.Context, accountID string) error {
	if _, err := s.Get(ctx, accountID); err != nil {
		return err
	}

	slog.Info("退会処理を開始します", slog.String("account_id", accountID))

	if s.sessions != nil {
		if err := s.sessions.DeleteByAccountID(ctx, accountID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}
	if err := s.accounts.DeleteByID(ctx, accountID); err != nil {
		return fmt.Errorf("アカウントの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました", slog.String("account_id", accountID))
	return nil
}

// linkedInURL はLinkedInのプロフィールURLを検証する。空は許可する。
func linkedInURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" {
		return "", model.NewInvalidInputError("LinkedInのURLはhttpsで入力してください")
	}
	host := strings.ToLower(u.Hostname())
	if host != "linkedin.com" && !strings.HasSuffix(host, ".linkedin.com") {
		return "", model.NewInvalidInputError("LinkedInのURLを入力してください")
	}
	return u.String(), nil
}

// websiteURL はWebサイトのURLを検証する。空は許可する。
func websiteURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", model.NewInvalidInputError("WebサイトのURLはhttpまたはhttpsで入力してください")
	}
	return u.String(), nil
}
