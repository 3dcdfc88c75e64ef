package notify

import (
	"context"
	"testing"

	"github.com/hitoshi/jobboard/internal/model"
)

func TestInbox(t *testing.T) {
	f := newFixture(t)
	d := newTestDispatcher(f.seed.Store, &fakeMailer{})
	inbox := NewInbox(f.seed.Store.Notifications())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if out := d.Dispatch(ctx, ApplicationSubmitted{Application: f.app, Job: f.job, Applicant: f.seeker}); out.Err != nil {
			t.Fatalf("unexpected error: %v", out.Err)
		}
	}

	list, err := inbox.List(ctx, "acme", false, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(list))
	}

	if err := inbox.MarkRead(ctx, "acme", list[0].ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, _ := inbox.UnreadCount(ctx, "acme"); n != 2 {
		t.Errorf("unread = %d, want 2", n)
	}

	// 他人の通知は既読にできない
	if err := inbox.MarkRead(ctx, "jo", list[1].ID); !model.IsCategory(err, model.CategoryNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	n, err := inbox.MarkAllRead(ctx, "acme")
	if err != nil || n != 2 {
		t.Fatalf("MarkAllRead = %d, %v; want 2", n, err)
	}
	unread, _ := inbox.List(ctx, "acme", true, 10)
	if len(unread) != 0 {
		t.Errorf("expected no unread notifications, got %d", len(unread))
	}
}
