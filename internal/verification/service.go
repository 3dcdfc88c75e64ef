// Package verification は電話番号・メールアドレスの確認と二要素認証を提供する。
// 本人確認レベルは保存せず、呼び出しのたびに確認状況から算出する。
package verification

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/jobboard/internal/metrics"
	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/repository"
	"github.com/hitoshi/jobboard/internal/transport"
)

// 送信チャネル
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// メールトークン衝突時の再生成回数
const tokenAttempts = 3

// Config は確認処理の設定。
type Config struct {
	PhoneCodeTTL  time.Duration // 既定10分
	EmailTokenTTL time.Duration // 既定24時間
	TwoFactorTTL  time.Duration // 既定5分
	BaseURL       string        // メール内リンクの基点
	SiteName      string
}

func (c Config) withDefaults() Config {
	if c.PhoneCodeTTL <= 0 {
		c.PhoneCodeTTL = 10 * time.Minute
	}
	if c.EmailTokenTTL <= 0 {
		c.EmailTokenTTL = 24 * time.Hour
	}
	if c.TwoFactorTTL <= 0 {
		c.TwoFactorTTL = 5 * time.Minute
	}
	if c.SiteName == "" {
		c.SiteName = "JobBoard"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}

// Issued はコード・トークン発行の結果。
// DeliveryErrが設定されていても発行自体は成功しており、コードは有効なまま残る。
type Issued struct {
	Channel     string
	Destination string // 送信先（E.164の電話番号またはメールアドレス）
	ExpiresAt   time.Time
	DeliveryErr error
}

// Service は本人確認のサービス層。
type Service struct {
	verifications repository.VerificationRepository
	accounts      repository.AccountRepository
	sms           transport.SMSSender
	email         transport.EmailSender
	twoFactor     TwoFactorStore
	metrics       metrics.MetricsCollector
	cfg           Config
	now           func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// twoFactorがnilの場合、二要素認証はTWO_FACTOR_UNAVAILABLEを返す。
func NewService(
	verifications repository.VerificationRepository,
	accounts repository.AccountRepository,
	sms transport.SMSSender,
	email transport.EmailSender,
	twoFactor TwoFactorStore,
	collector metrics.MetricsCollector,
	cfg Config,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		verifications: verifications,
		accounts:      accounts,
		sms:           sms,
		email:         email,
		twoFactor:     twoFactor,
		metrics:       collector,
		cfg:           cfg.withDefaults(),
		now:           time.Now,
	}
}

func (s *Service) account(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return nil, model.NewNotFoundError("アカウント")
	}
	return account, nil
}

// IssuePhoneCode は電話番号をE.164に正規化し、6桁の確認コードをSMSで送信する。
// アカウントの既存の電話番号確認レコードは上書きする。
// 確認済みの同じ番号に対してはALREADY_VERIFIEDを返す。
func (s *Service) IssuePhoneCode(ctx context.Context, accountID, phone string) (*Issued, error) {
	if _, err := s.account(ctx, accountID); err != nil {
		return nil, err
	}

	e164, err := FormatE164(phone)
	if err != nil {
		return nil, err
	}

	existing, err := s.verifications.FindPhone(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("電話番号確認の取得に失敗しました: %w", err)
	}
	if existing != nil && existing.Verified && existing.Phone == e164 {
		return nil, model.NewAlreadyVerifiedError("電話番号")
	}

	code, err := newCode()
	if err != nil {
		return nil, err
	}
	now := s.now()
	rec := &model.PhoneVerification{
		AccountID: accountID,
		Phone:     e164,
		Code:      code,
		IssuedAt:  now,
	}
	if err := s.verifications.UpsertPhone(ctx, rec); err != nil {
		return nil, fmt.Errorf("電話番号確認の保存に失敗しました: %w", err)
	}
	s.metrics.RecordVerification(ChannelSMS, "issued")

	body := fmt.Sprintf("Your %s verification code is: %s. Valid for %d minutes.",
		s.cfg.SiteName, code, int(s.cfg.PhoneCodeTTL/time.Minute))
	issued := &Issued{
		Channel:     ChannelSMS,
		Destination: e164,
		ExpiresAt:   now.Add(s.cfg.PhoneCodeTTL),
	}
	issued.DeliveryErr = s.deliverSMS(ctx, accountID, e164, body)
	return issued, nil
}

// ResendPhoneCode は保存済みの電話番号に新しいコードを再発行する。
func (s *Service) ResendPhoneCode(ctx context.Context, accountID string) (*Issued, error) {
	existing, err := s.verifications.FindPhone(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("電話番号確認の取得に失敗しました: %w", err)
	}
	if existing == nil {
		return nil, model.NewNotFoundError("電話番号の確認")
	}
	return s.IssuePhoneCode(ctx, accountID, existing.Phone)
}

// VerifyPhoneCode は電話番号の確認コードを照合する。
// 確認済みの場合は何もせず成功を返す。
func (s *Service) VerifyPhoneCode(ctx context.Context, accountID, code string) error {
	rec, err := s.verifications.FindPhone(ctx, accountID)
	if err != nil {
		return fmt.Errorf("電話番号確認の取得に失敗しました: %w", err)
	}
	if rec == nil {
		return model.NewNotFoundError("電話番号の確認")
	}
	if rec.Verified {
		return nil
	}

	now := s.now()
	if now.After(rec.IssuedAt.Add(s.cfg.PhoneCodeTTL)) {
		s.metrics.RecordVerification(ChannelSMS, "expired")
		return model.NewVerificationExpiredError()
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(rec.Code)) != 1 {
		s.metrics.RecordVerification(ChannelSMS, "mismatch")
		return model.NewVerificationMismatchError()
	}

	if err := s.verifications.MarkPhoneVerified(ctx, accountID, now); err != nil {
		return fmt.Errorf("電話番号確認の更新に失敗しました: %w", err)
	}
	s.metrics.RecordVerification(ChannelSMS, "verified")
	slog.Info("電話番号を確認しました", slog.String("account_id", accountID))
	return nil
}

// IssueEmailToken はメールアドレス確認用のトークンを発行し、確認リンクをメールで送信する。
// トークンが他アカウントと衝突した場合は再生成する。
func (s *Service) IssueEmailToken(ctx context.Context, accountID string) (*Issued, error) {
	account, err := s.account(ctx, accountID)
	if err != nil {
		return nil, err
	}

	existing, err := s.verifications.FindEmailByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("メール確認の取得に失敗しました: %w", err)
	}
	if existing != nil && existing.Verified {
		return nil, model.NewAlreadyVerifiedError("メールアドレス")
	}

	now := s.now()
	var rec *model.EmailVerification
	for attempt := 0; attempt < tokenAttempts; attempt++ {
		token, err := newToken()
		if err != nil {
			return nil, err
		}
		rec = &model.EmailVerification{AccountID: accountID, Token: token, IssuedAt: now}
		err = s.verifications.UpsertEmail(ctx, rec)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicate) || attempt == tokenAttempts-1 {
			return nil, fmt.Errorf("メール確認の保存に失敗しました: %w", err)
		}
		rec = nil
	}
	s.metrics.RecordVerification(ChannelEmail, "issued")

	link := fmt.Sprintf("%s/verify-email/%s", s.cfg.BaseURL, rec.Token)
	subject := fmt.Sprintf("Verify your email - %s", s.cfg.SiteName)
	body := fmt.Sprintf("Hi %s,\n\nPlease verify your email address by opening the link below:\n\n%s\n\nThis link will expire in %d hours.\n",
		account.Name, link, int(s.cfg.EmailTokenTTL/time.Hour))

	issued := &Issued{
		Channel:     ChannelEmail,
		Destination: account.Email,
		ExpiresAt:   now.Add(s.cfg.EmailTokenTTL),
	}
	issued.DeliveryErr = s.deliverEmail(ctx, accountID, account.Email, subject, body)
	return issued, nil
}

// VerifyEmailToken はトークンでメールアドレスを確認し、対象アカウントを返す。
// 確認済みのトークンは期限に関係なく成功として扱う。
func (s *Service) VerifyEmailToken(ctx context.Context, token string) (*model.Account, error) {
	rec, err := s.verifications.FindEmailByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("メール確認の取得に失敗しました: %w", err)
	}
	if rec == nil {
		return nil, model.NewNotFoundError("確認リンク")
	}
	account, err := s.account(ctx, rec.AccountID)
	if err != nil {
		return nil, err
	}
	if rec.Verified {
		return account, nil
	}

	now := s.now()
	if now.After(rec.IssuedAt.Add(s.cfg.EmailTokenTTL)) {
		s.metrics.RecordVerification(ChannelEmail, "expired")
		return nil, model.NewVerificationExpiredError()
	}
	if err := s.verifications.MarkEmailVerified(ctx, rec.AccountID, now); err != nil {
		return nil, fmt.Errorf("メール確認の更新に失敗しました: %w", err)
	}
	s.metrics.RecordVerification(ChannelEmail, "verified")
	slog.Info("メールアドレスを確認しました", slog.String("account_id", rec.AccountID))
	return account, nil
}

// IssueTwoFactorCode は二要素認証コードを発行する。
// 未使用のコードがあれば上書きし、最新のコードのみ有効になる。
// 電話番号が確認済みならSMS、それ以外はメールで送信する。
func (s *Service) IssueTwoFactorCode(ctx context.Context, accountID string) (*Issued, error) {
	if s.twoFactor == nil {
		return nil, model.NewTwoFactorUnavailableError()
	}
	account, err := s.account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	phone, err := s.verifications.FindPhone(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("電話番号確認の取得に失敗しました: %w", err)
	}

	code, err := newCode()
	if err != nil {
		return nil, err
	}
	if err := s.twoFactor.Save(ctx, accountID, code, s.cfg.TwoFactorTTL); err != nil {
		return nil, fmt.Errorf("二要素認証コードの保存に失敗しました: %w", err)
	}

	minutes := int(s.cfg.TwoFactorTTL / time.Minute)
	issued := &Issued{ExpiresAt: s.now().Add(s.cfg.TwoFactorTTL)}
	if phone != nil && phone.Verified {
		issued.Channel = ChannelSMS
		issued.Destination = phone.Phone
		body := fmt.Sprintf("Your %s login code is: %s. Valid for %d minutes.", s.cfg.SiteName, code, minutes)
		issued.DeliveryErr = s.deliverSMS(ctx, accountID, phone.Phone, body)
	} else {
		issued.Channel = ChannelEmail
		issued.Destination = account.Email
		subject := fmt.Sprintf("Your login code - %s", s.cfg.SiteName)
		body := fmt.Sprintf("Your login code is: %s\n\nThis code will expire in %d minutes.\n", code, minutes)
		issued.DeliveryErr = s.deliverEmail(ctx, accountID, account.Email, subject, body)
	}
	s.metrics.RecordVerification("2fa", "issued")
	return issued, nil
}

// VerifyTwoFactorCode は二要素認証コードを照合する。一致したコードは消費され、再利用できない。
func (s *Service) VerifyTwoFactorCode(ctx context.Context, accountID, code string) error {
	if s.twoFactor == nil {
		return model.NewTwoFactorUnavailableError()
	}
	result, err := s.twoFactor.Consume(ctx, accountID, strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("二要素認証コードの照合に失敗しました: %w", err)
	}
	switch result {
	case ConsumeOK:
		s.metrics.RecordVerification("2fa", "verified")
		return nil
	case ConsumeMismatch:
		s.metrics.RecordVerification("2fa", "mismatch")
		return model.NewVerificationMismatchError()
	default:
		s.metrics.RecordVerification("2fa", "expired")
		return model.NewVerificationExpiredError()
	}
}

// DeriveLevel は確認済みチャネルから本人確認レベルを算出する。
func DeriveLevel(phone, email, linkedIn bool) model.VerificationLevel {
	switch {
	case phone && email && linkedIn:
		return model.LevelComplete
	case phone && email:
		return model.LevelEnhanced
	case phone || email:
		return model.LevelBasic
	default:
		return model.LevelNone
	}
}

// Status はアカウントの確認状況と本人確認レベルを返す。
func (s *Service) Status(ctx context.Context, accountID string) (*model.VerificationStatus, error) {
	account, err := s.account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	phone, err := s.verifications.FindPhone(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("電話番号確認の取得に失敗しました: %w", err)
	}
	email, err := s.verifications.FindEmailByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("メール確認の取得に失敗しました: %w", err)
	}

	st := &model.VerificationStatus{
		PhoneVerified: phone != nil && phone.Verified,
		EmailVerified: email != nil && email.Verified,
	}
	if phone != nil {
		st.Phone = phone.Phone
	}
	st.Level = DeriveLevel(st.PhoneVerified, st.EmailVerified, hasLinkedIn(account))
	return st, nil
}

// Level はアカウントの現在の本人確認レベルを返す。
func (s *Service) Level(ctx context.Context, accountID string) (model.VerificationLevel, error) {
	st, err := s.Status(ctx, accountID)
	if err != nil {
		return model.LevelNone, err
	}
	return st.Level, nil
}

func hasLinkedIn(account *model.Account) bool {
	p, ok := account.Profile.(*model.JobSeekerProfile)
	return ok && strings.TrimSpace(p.LinkedInURL) != ""
}

func (s *Service) deliverSMS(ctx context.Context, accountID, phone, body string) error {
	err := s.sms.SendSMS(ctx, phone, body)
	s.metrics.RecordDelivery(ChannelSMS, err == nil)
	if err != nil {
		slog.Warn("SMSの送信に失敗しました",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return model.NewDeliveryFailedError("SMS")
	}
	return nil
}

func (s *Service) deliverEmail(ctx context.Context, accountID, to, subject, body string) error {
	err := s.email.SendEmail(ctx, to, subject, body)
	s.metrics.RecordDelivery(ChannelEmail, err == nil)
	if err != nil {
		slog.Warn("メールの送信に失敗しました",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return model.NewDeliveryFailedError("メール")
	}
	return nil
}
