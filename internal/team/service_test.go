package team

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/notify"
	"github.com/hitoshi/jobboard/internal/permission"
	"github.com/hitoshi/jobboard/internal/security"
	"github.com/hitoshi/jobboard/internal/testutil"
)

type capturedMail struct{ to, body string }

type fakeMailer struct{ sent []capturedMail }

func (f *fakeMailer) SendEmail(_ context.Context, to, _, body string) error {
	f.sent = append(f.sent, capturedMail{to: to, body: body})
	return nil
}

type env struct {
	seed   *testutil.Seeder
	svc    *Service
	mailer *fakeMailer
	clock  time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	seed := testutil.NewSeeder(t)
	seed.Employer("acme", "Acme")
	seed.Recruiter("bob", "Bob", true)
	seed.Employer("globex", "Globex")
	seed.JobSeeker("jo", "Jo", nil)

	st := seed.Store
	mailer := &fakeMailer{}
	dispatcher := notify.NewDispatcher(st.Notifications(), st.EmailLogs(), st.Templates(), mailer, nil,
		notify.Config{BaseURL: "https://jobs.example.com"})
	svc := NewService(st.Teams(), st.Invitations(), st.Activity(), st.Accounts(),
		permission.NewResolver(st.Teams()), dispatcher, security.NewSanitizer(), 0)
	e := &env{seed: seed, svc: svc, mailer: mailer, clock: testutil.Base}
	svc.now = func() time.Time { return e.clock }
	return e
}

func (e *env) team(t *testing.T) *model.Team {
	t.Helper()
	team, err := e.svc.Create(context.Background(), "acme", "Acme Hiring")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return team
}

func TestCreate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	team := e.team(t)
	if team.OwnerID != "acme" || team.Name != "Acme Hiring" {
		t.Errorf("unexpected team: %+v", team)
	}

	if _, err := e.svc.Create(ctx, "acme", "Second"); !model.HasCode(err, model.ErrCodeTeamExists) {
		t.Errorf("expected TEAM_EXISTS, got %v", err)
	}
	if _, err := e.svc.Create(ctx, "jo", "Seekers"); !model.HasCode(err, model.ErrCodeUnauthorized) {
		t.Errorf("seeker: expected UNAUTHORIZED, got %v", err)
	}

	got, role, err := e.svc.Mine(ctx, "acme")
	if err != nil || got == nil || got.ID != team.ID || role != model.TeamRoleOwner {
		t.Errorf("Mine() = %+v, %s, %v", got, role, err)
	}
	none, _, err := e.svc.Mine(ctx, "globex")
	if err != nil || none != nil {
		t.Errorf("Mine(globex) = %+v, %v", none, err)
	}
}

func TestInviteAndAccept(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	team := e.team(t)

	res, err := e.svc.Invite(ctx, "acme", team.ID, " Bob@Example.com ", model.TeamRoleRecruiter)
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	inv := res.Invitation
	if inv.Email != "bob@example.com" || inv.Status != model.InvitationPending {
		t.Errorf("unexpected invitation: %+v", inv)
	}
	if !inv.ExpiresAt.Equal(testutil.Base.Add(7 * 24 * time.Hour)) {
		t.Errorf("expires at %v", inv.ExpiresAt)
	}
	if len(inv.Token) < 40 {
		t.Errorf("token too short: %q", inv.Token)
	}
	if !res.Notification.Delivered || len(e.mailer.sent) != 1 {
		t.Fatalf("expected invitation email, got %+v", res.Notification)
	}
	if !strings.Contains(e.mailer.sent[0].body, "https://jobs.example.com/invitations/"+inv.Token) {
		t.Errorf("email must contain the invitation link: %s", e.mailer.sent[0].body)
	}
	if n, _ := e.seed.Store.Notifications().CountUnread(ctx, "bob"); n != 0 {
		t.Errorf("invitations must not create in-app notifications, got %d", n)
	}

	if _, err := e.svc.Accept(ctx, "globex", inv.Token); !model.HasCode(err, model.ErrCodeNotFound) {
		t.Errorf("wrong account: expected NOT_FOUND, got %v", err)
	}

	member, err := e.svc.Accept(ctx, "bob", inv.Token)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if member.Role != model.TeamRoleRecruiter || member.TeamID != team.ID || !member.IsActive {
		t.Errorf("unexpected member: %+v", member)
	}

	if _, err := e.svc.Accept(ctx, "bob", inv.Token); !model.HasCode(err, model.ErrCodeInvitationNotPending) {
		t.Errorf("second accept: expected INVITATION_NOT_PENDING, got %v", err)
	}

	members, err := e.svc.Members(ctx, "bob", team.ID)
	if err != nil || len(members) != 1 {
		t.Fatalf("Members() = %d, %v", len(members), err)
	}
	logs, err := e.svc.Activity(ctx, "bob", team.ID, 0)
	if err != nil || len(logs) != 1 || logs[0].Action != model.ActionMemberInvited {
		t.Errorf("Activity() = %+v, %v", logs, err)
	}
}

func TestAccept_Expired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	team := e.team(t)
	res, err := e.svc.Invite(ctx, "acme", team.ID, "bob@example.com", model.TeamRoleViewer)
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}

	e.clock = testutil.Base.Add(7*24*time.Hour + time.Second)
	if _, err := e.svc.Accept(ctx, "bob", res.Invitation.Token); !model.HasCode(err, model.ErrCodeInvitationExpired) {
		t.Fatalf("expected INVITATION_EXPIRED, got %v", err)
	}
	inv, _ := e.seed.Store.Invitations().FindByToken(ctx, res.Invitation.Token)
	if inv.Status != model.InvitationExpired {
		t.Errorf("status = %s, want expired", inv.Status)
	}
	if _, err := e.svc.Accept(ctx, "bob", res.Invitation.Token); !model.HasCode(err, model.ErrCodeInvitationNotPending) {
		t.Errorf("expected INVITATION_NOT_PENDING after expiry, got %v", err)
	}
}

func TestAccept_AlreadyInAnotherTeam(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acme := e.team(t)
	globex, err := e.svc.Create(ctx, "globex", "Globex Hiring")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	first, _ := e.svc.Invite(ctx, "acme", acme.ID, "bob@example.com", model.TeamRoleViewer)
	second, _ := e.svc.Invite(ctx, "globex", globex.ID, "bob@example.com", model.TeamRoleViewer)

	if _, err := e.svc.Accept(ctx, "bob", first.Invitation.Token); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := e.svc.Accept(ctx, "bob", second.Invitation.Token); !model.HasCode(err, model.ErrCodeAlreadyMember) {
		t.Fatalf("expected ALREADY_TEAM_MEMBER, got %v", err)
	}
	inv, _ := e.seed.Store.Invitations().FindByToken(ctx, second.Invitation.Token)
	if inv.Status != model.InvitationPending {
		t.Errorf("rejected accept must leave the invitation pending, got %s", inv.Status)
	}
}

func TestAccept_EmployerCannotJoin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed.Job("job-1", "globex", "Engineer", "Globex")
	team := e.team(t)
	res, err := e.svc.Invite(ctx, "acme", team.ID, "globex@example.com", model.TeamRoleViewer)
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}

	if _, err := e.svc.Accept(ctx, "globex", res.Invitation.Token); !model.HasCode(err, model.ErrCodeEmployerCannotJoin) {
		t.Fatalf("expected EMPLOYER_CANNOT_JOIN_TEAM, got %v", err)
	}
	member, _ := e.seed.Store.Teams().FindActiveMembership(ctx, "globex")
	if member != nil {
		t.Errorf("employer must not become a member, got %+v", member)
	}
	inv, _ := e.seed.Store.Invitations().FindByToken(ctx, res.Invitation.Token)
	if inv.Status != model.InvitationPending {
		t.Errorf("rejected accept must leave the invitation pending, got %s", inv.Status)
	}
}

func TestDecline(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	team := e.team(t)
	res, _ := e.svc.Invite(ctx, "acme", team.ID, "bob@example.com", model.TeamRoleViewer)

	if err := e.svc.Decline(ctx, "bob", res.Invitation.Token); err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if _, err := e.svc.Accept(ctx, "bob", res.Invitation.Token); !model.HasCode(err, model.ErrCodeInvitationNotPending) {
		t.Errorf("expected INVITATION_NOT_PENDING, got %v", err)
	}
}

func TestMemberManagement(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	team := e.team(t)
	e.seed.Member(team.ID, "bob", model.TeamRoleViewer)

	if err := e.svc.ChangeRole(ctx, "bob", team.ID, "bob", model.TeamRoleAdmin); !model.HasCode(err, model.ErrCodeUnauthorized) {
		t.Errorf("viewer: expected UNAUTHORIZED, got %v", err)
	}
	if err := e.svc.ChangeRole(ctx, "acme", team.ID, "bob", model.TeamRoleOwner); !model.HasCode(err, model.ErrCodeInvalidInput) {
		t.Errorf("owner role: expected INVALID_INPUT, got %v", err)
	}
	if err := e.svc.ChangeRole(ctx, "acme", team.ID, "bob", model.TeamRoleAdmin); err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	// adminになったbobは招待を管理できる
	if _, err := e.svc.Invitations(ctx, "bob", team.ID); err != nil {
		t.Errorf("admin: unexpected error: %v", err)
	}
	if err := e.svc.RemoveMember(ctx, "bob", team.ID, "acme"); !model.HasCode(err, model.ErrCodeInvalidInput) {
		t.Errorf("removing the owner: expected INVALID_INPUT, got %v", err)
	}

	if err := e.svc.RemoveMember(ctx, "acme", team.ID, "bob"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if _, err := e.svc.Members(ctx, "bob", team.ID); !model.HasCode(err, model.ErrCodeNotFound) {
		t.Errorf("removed member: expected NOT_FOUND, got %v", err)
	}
	if _, err := e.svc.Members(ctx, "globex", team.ID); !model.HasCode(err, model.ErrCodeNotFound) {
		t.Errorf("outsider: expected NOT_FOUND, got %v", err)
	}
}

func TestExpireInvitations(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	team := e.team(t)
	if _, err := e.svc.Invite(ctx, "acme", team.ID, "a@example.com", model.TeamRoleViewer); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	e.clock = testutil.Base.Add(24 * time.Hour)
	if _, err := e.svc.Invite(ctx, "acme", team.ID, "b@example.com", model.TeamRoleViewer); err != nil {
		t.Fatalf("Invite: %v", err)
	}

	e.clock = testutil.Base.Add(7*24*time.Hour + time.Hour)
	n, err := e.svc.ExpireInvitations(ctx)
	if err != nil {
		t.Fatalf("ExpireInvitations: %v", err)
	}
	if n != 1 {
		t.Errorf("expired = %d, want 1", n)
	}
}
