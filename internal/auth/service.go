// Package auth はOAuthによるサインアップ・ログインとセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	accountRepo repository.AccountRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	accountRepo repository.AccountRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		accountRepo: accountRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// LoginResult はOAuthコールバックの処理結果。
type LoginResult struct {
	Session *model.Session
	Account *model.Account
	Created bool // 今回のコールバックでアカウントを作成した場合true
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はsignupRoleのアカウントとidentityを同時に作成する。
// signupRoleが空なら求職者として登録する。登録済みユーザーのロールは変更しない。
func (s *Service) HandleCallback(ctx context.Context, code string, signupRole model.Role) (*LoginResult, error) {
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	result := &LoginResult{}
	if identity != nil {
		account, err := s.accountRepo.FindByID(ctx, identity.AccountID)
		if err != nil {
			return nil, fmt.Errorf("failed to find account: %w", err)
		}
		if account == nil {
			return nil, model.NewNotFoundError("アカウント")
		}
		result.Account = account
		slog.Info("existing account logged in",
			slog.String("account_id", account.ID),
			slog.String("provider", info.Provider),
		)
	} else {
		account, err := s.signup(ctx, info, signupRole)
		if err != nil {
			return nil, err
		}
		result.Account = account
		result.Created = true
	}

	session, err := s.createSession(ctx, result.Account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	result.Session = session
	return result, nil
}

func (s *Service) signup(ctx context.Context, info *OAuthUserInfo, role model.Role) (*model.Account, error) {
	if role == "" {
		role = model.RoleJobSeeker
	}
	profile, err := model.NewProfile(role)
	if err != nil {
		return nil, model.NewInvalidInputError("ロールが不正です")
	}
	if info.Email == "" {
		return nil, model.NewInvalidInputError("メールアドレスを取得できませんでした")
	}

	now := s.now()
	account := &model.Account{
		ID:        uuid.New().String(),
		Email:     strings.ToLower(info.Email),
		Name:      info.Name,
		Role:      role,
		Profile:   profile,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if account.Name == "" {
		account.Name = account.Email
	}
	identity := &model.Identity{
		ID:             uuid.New().String(),
		AccountID:      account.ID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	if err := s.accountRepo.CreateWithIdentity(ctx, account, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateNameError("アカウント", account.Email)
		}
		return nil, fmt.Errorf("failed to create account and identity: %w", err)
	}

	slog.Info("new account created",
		slog.String("account_id", account.ID),
		slog.String("role", string(role)),
		slog.String("provider", info.Provider),
	)
	return account, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("account logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentAccount はセッションから現在のアカウントを取得する。
func (s *Service) GetCurrentAccount(ctx context.Context, sessionID string) (*model.Account, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	account, err := s.accountRepo.FindByID(ctx, session.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("account not found")
	}
	return account, nil
}

func (s *Service) createSession(ctx context.Context, accountID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		AccountID: accountID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
