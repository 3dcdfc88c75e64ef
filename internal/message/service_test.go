package message

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/jobboard/internal/activity"
	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/notify"
	"github.com/hitoshi/jobboard/internal/permission"
	"github.com/hitoshi/jobboard/internal/security"
	"github.com/hitoshi/jobboard/internal/testutil"
)

type nopMailer struct{}

func (nopMailer) SendEmail(context.Context, string, string, string) error { return nil }

type env struct {
	seed *testutil.Seeder
	svc  *Service
	tick time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	seed := testutil.NewSeeder(t)
	seed.Employer("acme", "Acme")
	seed.Employer("rec", "Rec")
	seed.Employer("val", "Val")
	seed.Employer("globex", "Globex")
	seed.JobSeeker("jo", "Jo", nil)
	seed.Job("job-1", "acme", "Engineer", "Acme")
	seed.Application("app-1", "job-1", "jo")
	seed.Team("team-1", "acme", "Acme Hiring")
	seed.Member("team-1", "rec", model.TeamRoleRecruiter)
	seed.Member("team-1", "val", model.TeamRoleViewer)

	st := seed.Store
	dispatcher := notify.NewDispatcher(st.Notifications(), st.EmailLogs(), st.Templates(), nopMailer{}, nil, notify.Config{})
	svc := NewService(st.Applications(), st.Jobs(), st.Accounts(), st.Messages(),
		permission.NewResolver(st.Teams()), dispatcher,
		activity.NewRecorder(st.Teams(), st.Activity()),
		security.NewSanitizer())
	e := &env{seed: seed, svc: svc, tick: testutil.Base}
	// 送信順が作成日時の順になるよう1分ずつ進める
	svc.now = func() time.Time {
		e.tick = e.tick.Add(time.Minute)
		return e.tick
	}
	return e
}

func TestSend_ApplicantToEmployer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.svc.Send(ctx, "jo", "app-1", "Is the role remote?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Message.RecipientID != "acme" {
		t.Errorf("recipient = %s, want acme", res.Message.RecipientID)
	}
	n := res.Notification.Notification
	if n == nil || n.RecipientID != "acme" || n.Type != model.NotifyMessageReceived {
		t.Errorf("unexpected notification: %+v", n)
	}
	logs, _ := e.seed.Store.Activity().ListByTeam(ctx, "team-1", 10)
	if len(logs) != 0 {
		t.Errorf("applicant messages are not team activity, got %d", len(logs))
	}
}

func TestSend_TeamToApplicant(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.svc.Send(ctx, "rec", "app-1", "Yes, fully remote.")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Message.RecipientID != "jo" || res.Message.SenderID != "rec" {
		t.Errorf("unexpected message: %+v", res.Message)
	}
	logs, _ := e.seed.Store.Activity().ListByTeam(ctx, "team-1", 10)
	if len(logs) != 1 || logs[0].Action != model.ActionMessageSent {
		t.Errorf("expected message_sent activity, got %+v", logs)
	}

	if _, err := e.svc.Send(ctx, "val", "app-1", "hello"); !model.HasCode(err, model.ErrCodeUnauthorized) {
		t.Errorf("viewer: expected UNAUTHORIZED, got %v", err)
	}
	if _, err := e.svc.Send(ctx, "globex", "app-1", "hello"); !model.HasCode(err, model.ErrCodeNotFound) {
		t.Errorf("other employer: expected NOT_FOUND, got %v", err)
	}
	if _, err := e.svc.Send(ctx, "jo", "app-1", "<p></p>"); !model.HasCode(err, model.ErrCodeInvalidInput) {
		t.Errorf("empty: expected INVALID_INPUT, got %v", err)
	}
}

func TestThread_MarksOwnSideRead(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for _, m := range []struct{ from, body string }{
		{"jo", "Hi"},
		{"acme", "Hello"},
		{"jo", "Thanks"},
	} {
		if _, err := e.svc.Send(ctx, m.from, "app-1", m.body); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	// 閲覧者(val)が読むと、所有者宛てのメッセージが既読になる
	msgs, err := e.svc.Thread(ctx, "val", "app-1")
	if err != nil {
		t.Fatalf("Thread: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Content != "Hi" || msgs[2].Content != "Thanks" {
		t.Fatalf("unexpected thread order: %+v", msgs)
	}
	for _, m := range msgs {
		wantRead := m.RecipientID == "acme"
		if m.IsRead != wantRead {
			t.Errorf("message %q read = %v, want %v", m.Content, m.IsRead, wantRead)
		}
	}

	msgs, err = e.svc.Thread(ctx, "jo", "app-1")
	if err != nil {
		t.Fatalf("Thread: %v", err)
	}
	for _, m := range msgs {
		if !m.IsRead {
			t.Errorf("message %q should be read after both sides opened the thread", m.Content)
		}
	}
}
