package verification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/repository/memstore"
)

// --- テスト用の送信手段 ---

type sentMessage struct {
	to      string
	subject string
	body    string
}

type fakeSender struct {
	sms    []sentMessage
	emails []sentMessage
	err    error
}

func (f *fakeSender) SendSMS(ctx context.Context, phone, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sms = append(f.sms, sentMessage{to: phone, body: body})
	return nil
}

func (f *fakeSender) SendEmail(ctx context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.emails = append(f.emails, sentMessage{to: to, subject: subject, body: body})
	return nil
}

type testEnv struct {
	store  *memstore.Store
	sender *fakeSender
	svc    *Service
	now    time.Time
}

func newTestEnv(t *testing.T, twoFactor TwoFactorStore) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  memstore.New(),
		sender: &fakeSender{},
		now:    time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
	}
	env.svc = NewService(env.store.Verifications(), env.store.Accounts(), env.sender, env.sender, twoFactor, nil, Config{
		PhoneCodeTTL: 10 * time.Minute,
		BaseURL:      "https://jobs.example.com/",
		SiteName:     "JobBoard",
	})
	env.svc.now = func() time.Time { return env.now }
	return env
}

func (e *testEnv) addSeeker(t *testing.T, id string, linkedIn string) {
	t.Helper()
	err := e.store.Accounts().CreateWithIdentity(context.Background(), &model.Account{
		ID:      id,
		Email:   id + "@example.com",
		Name:    "Seeker " + id,
		Role:    model.RoleJobSeeker,
		Profile: &model.JobSeekerProfile{LinkedInURL: linkedIn},
	}, nil)
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
}

func (e *testEnv) phoneCode(t *testing.T, accountID string) string {
	t.Helper()
	rec, err := e.store.Verifications().FindPhone(context.Background(), accountID)
	if err != nil || rec == nil {
		t.Fatalf("phone verification not found: %v", err)
	}
	return rec.Code
}

// --- 電話番号確認 ---

func TestService_IssuePhoneCode(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addSeeker(t, "u1", "")

	issued, err := env.svc.IssuePhoneCode(context.Background(), "u1", "555-123-4567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if issued.Destination != "+15551234567" {
		t.Errorf("expected E.164 destination, got %q", issued.Destination)
	}
	if !issued.ExpiresAt.Equal(env.now.Add(10 * time.Minute)) {
		t.Errorf("unexpected expiry: %v", issued.ExpiresAt)
	}
	if len(env.sender.sms) != 1 {
		t.Fatalf("expected 1 SMS, got %d", len(env.sender.sms))
	}
	code := env.phoneCode(t, "u1")
	want := "Your JobBoard verification code is: " + code + ". Valid for 10 minutes."
	if env.sender.sms[0].body != want {
		t.Errorf("unexpected SMS body: %q", env.sender.sms[0].body)
	}
}

func TestService_IssuePhoneCode_InvalidPhone(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addSeeker(t, "u1", "")

	_, err := env.svc.IssuePhoneCode(context.Background(), "u1", "12345")
	if !model.IsCategory(err, model.CategoryValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(env.sender.sms) != 0 {
		t.Error("no SMS should be sent for an invalid number")
	}
}

// TestService_IssuePhoneCode_DeliveryFailure は送信失敗が警告扱いでコードは有効なまま残ることを検証する。
func TestService_IssuePhoneCode_DeliveryFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addSeeker(t, "u1", "")
	env.sender.err = errors.New("sns unavailable")

	issued, err := env.svc.IssuePhoneCode(context.Background(), "u1", "5551234567")
	if err != nil {
		t.Fatalf("issue must succeed even when delivery fails: %v", err)
	}
	if !model.IsCategory(issued.DeliveryErr, model.CategoryTransport) {
		t.Fatalf("expected transport warning, got %v", issued.DeliveryErr)
	}

	code := env.phoneCode(t, "u1")
	if err := env.svc.VerifyPhoneCode(context.Background(), "u1", code); err != nil {
		t.Fatalf("code must remain valid after delivery failure: %v", err)
	}
}

func TestService_IssuePhoneCode_AlreadyVerifiedSameNumber(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addSeeker(t, "u1", "")
	ctx := context.Background()

	if _, err := env.svc.IssuePhoneCode(ctx, "u1", "5551234567"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := env.svc.VerifyPhoneCode(ctx, "u1", env.phoneCode(t, "u1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := env.svc.IssuePhoneCode(ctx, "u1", "+1 (555) 123-4567")
	if !model.HasCode(err, model.ErrCodeAlreadyVerified) {
		t.Fatalf("expected ALREADY_VERIFIED, got %v", err)
	}

	// 別の番号なら再発行できる
	if _, err := env.svc.IssuePhoneCode(ctx, "u1", "5559876543"); err != nil {
		t.Fatalf("a different number must be accepted: %v", err)
	}
}

// TestService_VerifyPhoneCode_Window は有効期限の境界の前後で結果が変わることを検証する。
func TestService_VerifyPhoneCode_Window(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr string
	}{
		{"期限の1秒前", 10*time.Minute - time.Second, ""},
		{"期限ちょうど", 10 * time.Minute, ""},
		{"期限の1秒後", 10*time.Minute + time.Second, model.ErrCodeVerificationExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.addSeeker(t, "u1", "")
			ctx := context.Background()

			if _, err := env.svc.IssuePhoneCode(ctx, "u1", "5551234567"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			code := env.phoneCode(t, "u1")
			env.now = env.now.Add(tt.elapsed)

			err := env.svc.VerifyPhoneCode(ctx, "u1", code)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !model.HasCode(err, tt.wantErr) {
				t.Fatalf("expected %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestService_VerifyPhoneCode_Mismatch(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addSeeker(t, "u1", "")
	ctx := context.Background()

	if _, err := env.svc.IssuePhoneCode(ctx, "u1", "5551234567"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	code := env.phoneCode(t, "u1")
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	err := env.svc.VerifyPhoneCode(ctx, "u1", wrong)
	if !model.HasCode(err, model.ErrCodeVerificationMismatch) {
		t.Fatalf("expected VERIFICATION_MISMATCH, got %v", err)
	}
}

func TestService_VerifyPhoneCode_NoRecord(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addSeeker(t, "u1", "")

	err := env.svc.VerifyPhoneCode(context.Background(), "u1", "123456")
	if !model.IsCategory(err, model.CategoryNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// TestService_ResendPhoneCode は再送で古いコードが無効になることを検証する。
func TestService_ResendPhoneCode(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addSeeker(t, "u1", "")
	ctx := context.Background()

	if _, err := env.svc.IssuePhoneCode(ctx, "u1", "5551234567"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := env.phoneCode(t, "u1")

	issued, err := env.svc.ResendPhoneCode(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if issued.Destination != "+15551234567" {
		t.Errorf("resend must target the stored number, got %q", issued.Destination)
	}
	second := env.phoneCode(t, "u1")
	if first != second {
		if err := env.svc.VerifyPhoneCode(ctx, "u1", first); !model.HasCode(err, model.ErrCodeVerificationMismatch) {
			t.Fatalf("the previous code must no longer validate, got %v", err)
		}
	}
	if err := env.svc.VerifyPhoneCode(ctx, "u1", second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- メールアドレス確認 ---

func TestService_EmailToken_Flow(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addSeeker(t, "u1", "")
	ctx := context.Background()

	issued, err := env.svc.IssueEmailToken(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if issued.Destination != "u1@example.com" {
		t.Errorf("unexpected destination: %q", issued.Destination)
	}
	if len(env.sender.emails) != 1 {
		t.Fatalf("expected 1 email, got %d", len(env.sender.emails))
	}
	mail := env.sender.emails[0]
	if mail.subject != "Verify your email - JobBoard" {
		t.Errorf("unexpected subject: %q", mail.subject)
	}

	rec, _ := env.store.Verifications().FindEmailByAccount(ctx, "u1")
	if !strings.Contains(mail.body, "https://jobs.example.com/verify-email/"+rec.Token) {
		t.Errorf("email must contain the verification link: %q", mail.body)
	}

	account, err := env.svc.VerifyEmailToken(ctx, rec.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.ID != "u1" {
		t.Errorf("unexpected account: %s", account.ID)
	}

	// 確認済みのトークンは再度成功する
	env.now = env.now.Add(48 * time.Hour)
	if _, err := env.svc.VerifyEmailToken(ctx, rec.Token); err != nil {
		t.Fatalf("verified token must succeed again: %v", err)
	}

	if _, err := env.svc.IssueEmailToken(ctx, "u1"); !model.HasCode(err, model.ErrCodeAlreadyVerified) {
		t.Fatalf("expected ALREADY_VERIFIED, got %v", err)
	}
}

func TestService_VerifyEmailToken_Window(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr string
	}{
		{"期限の1秒前", 24*time.Hour - time.Second, ""},
		{"期限の1秒後", 24*time.Hour + time.Second, model.ErrCodeVerificationExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.addSeeker(t, "u1", "")
			ctx := context.Background()

			if _, err := env.svc.IssueEmailToken(ctx, "u1"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			rec, _ := env.store.Verifications().FindEmailByAccount(ctx, "u1")
			env.now = env.now.Add(tt.elapsed)

			account, err := env.svc.VerifyEmailToken(ctx, rec.Token)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if account == nil || account.ID != "u1" {
					t.Fatalf("expected account u1, got %+v", account)
				}
				return
			}
			if !model.HasCode(err, tt.wantErr) {
				t.Fatalf("expected %s, got %v", tt.wantErr, err)
			}
			if !model.IsCategory(err, model.CategoryExpired) {
				t.Errorf("expected expired category, got %v", err)
			}
		})
	}
}

func TestService_VerifyEmailToken_Unknown(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.svc.VerifyEmailToken(context.Background(), "no-such-token")
	if !model.IsCategory(err, model.CategoryNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// --- 二要素認証 ---

func TestService_TwoFactor_Unavailable(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addSeeker(t, "u1", "")

	if _, err := env.svc.IssueTwoFactorCode(context.Background(), "u1"); !model.HasCode(err, model.ErrCodeTwoFactorUnavailable) {
		t.Fatalf("expected TWO_FACTOR_UNAVAILABLE, got %v", err)
	}
}

// TestService_TwoFactor_SingleUse はコードが1回だけ有効で、最新のコードのみ通ることを検証する。
func TestService_TwoFactor_SingleUse(t *testing.T) {
	_, store := newTestRedis(t)
	env := newTestEnv(t, store)
	env.addSeeker(t, "u1", "")
	ctx := context.Background()

	issued, err := env.svc.IssueTwoFactorCode(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 電話番号未確認のためメールで届く
	if issued.Channel != ChannelEmail || len(env.sender.emails) != 1 {
		t.Fatalf("expected delivery by email, got %+v", issued)
	}
	code := lastCode(env.sender.emails[0].body)

	if err := env.svc.VerifyTwoFactorCode(ctx, "u1", code); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := env.svc.VerifyTwoFactorCode(ctx, "u1", code); !model.HasCode(err, model.ErrCodeVerificationExpired) {
		t.Fatalf("a consumed code must not validate again, got %v", err)
	}
}

func TestService_TwoFactor_Window(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr string
	}{
		{"期限の1秒前", 5*time.Minute - time.Second, ""},
		{"期限の1秒後", 5*time.Minute + time.Second, model.ErrCodeVerificationExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr, store := newTestRedis(t)
			env := newTestEnv(t, store)
			env.addSeeker(t, "u1", "")
			ctx := context.Background()

			if _, err := env.svc.IssueTwoFactorCode(ctx, "u1"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			code := lastCode(env.sender.emails[0].body)
			mr.FastForward(tt.elapsed)

			err := env.svc.VerifyTwoFactorCode(ctx, "u1", code)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !model.HasCode(err, tt.wantErr) {
				t.Fatalf("expected %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestService_TwoFactor_PrefersVerifiedPhone(t *testing.T) {
	_, store := newTestRedis(t)
	env := newTestEnv(t, store)
	env.addSeeker(t, "u1", "")
	ctx := context.Background()

	if _, err := env.svc.IssuePhoneCode(ctx, "u1", "5551234567"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := env.svc.VerifyPhoneCode(ctx, "u1", env.phoneCode(t, "u1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	issued, err := env.svc.IssueTwoFactorCode(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if issued.Channel != ChannelSMS || issued.Destination != "+15551234567" {
		t.Fatalf("expected delivery by SMS, got %+v", issued)
	}
}

// lastCode は本文中の6桁のコードを取り出す。
func lastCode(body string) string {
	idx := strings.Index(body, "code is: ")
	if idx < 0 {
		return ""
	}
	return body[idx+len("code is: ") : idx+len("code is: ")+6]
}

// --- 本人確認レベル ---

// TestService_Level は確認操作に応じてレベルがその場で再計算されることを検証する。
func TestService_Level(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addSeeker(t, "u1", "https://www.linkedin.com/in/u1")
	ctx := context.Background()

	assertLevel := func(want model.VerificationLevel) {
		t.Helper()
		got, err := env.svc.Level(ctx, "u1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("level = %s, want %s", got, want)
		}
	}

	assertLevel(model.LevelNone)

	if _, err := env.svc.IssuePhoneCode(ctx, "u1", "5551234567"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := env.svc.VerifyPhoneCode(ctx, "u1", env.phoneCode(t, "u1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLevel(model.LevelBasic)

	if _, err := env.svc.IssueEmailToken(ctx, "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, _ := env.store.Verifications().FindEmailByAccount(ctx, "u1")
	if _, err := env.svc.VerifyEmailToken(ctx, rec.Token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLevel(model.LevelComplete)

	st, err := env.svc.Status(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !st.PhoneVerified || !st.EmailVerified || st.Phone != "+15551234567" {
		t.Errorf("unexpected status: %+v", st)
	}
}
