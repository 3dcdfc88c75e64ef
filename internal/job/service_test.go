package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/jobboard/internal/activity"
	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/permission"
	"github.com/hitoshi/jobboard/internal/security"
	"github.com/hitoshi/jobboard/internal/testutil"
)

// fakeIndex はIndexのテスト用実装。
type fakeIndex struct {
	mu        sync.Mutex
	indexed   map[string]*model.JobPosting
	removed   []string
	searchIDs []string
	searchErr error
	indexErr  error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{indexed: map[string]*model.JobPosting{}}
}

func (f *fakeIndex) Index(_ context.Context, job *model.JobPosting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return f.indexErr
	}
	f.indexed[job.ID] = job
	return nil
}

func (f *fakeIndex) Remove(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.indexed, jobID)
	f.removed = append(f.removed, jobID)
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ model.JobQuery) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchIDs, f.searchErr
}

type env struct {
	seed *testutil.Seeder
	svc  *Service
}

func newEnv(t *testing.T, index Index) *env {
	t.Helper()
	seed := testutil.NewSeeder(t)
	seed.Employer("acme", "Acme")
	seed.Recruiter("rec", "Hunters", true)
	seed.Recruiter("pending", "Later", false)
	seed.JobSeeker("jo", "Jo", nil)

	st := seed.Store
	svc := NewService(st.Jobs(), st.SavedJobs(), st.Accounts(), index,
		permission.NewResolver(st.Teams()),
		activity.NewRecorder(st.Teams(), st.Activity()),
		security.NewSanitizer())
	clock := testutil.Base
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return &env{seed: seed, svc: svc}
}

func validInput(title string) Input {
	return Input{Title: title, Description: "<p>Ship <script>x()</script>code</p>", Location: "Tokyo", Salary: "10M JPY"}
}

func TestPost_Success(t *testing.T) {
	idx := newFakeIndex()
	e := newEnv(t, idx)

	job, err := e.svc.Post(context.Background(), "acme", validInput("Backend Engineer"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Company != "Acme" {
		t.Errorf("expected company from profile, got %q", job.Company)
	}
	if !job.IsActive {
		t.Error("expected a new job to be active")
	}
	if job.Description != "<p>Ship code</p>" {
		t.Errorf("expected sanitized description, got %q", job.Description)
	}
	if _, ok := idx.indexed[job.ID]; !ok {
		t.Error("expected job to be indexed")
	}
}

func TestPost_RecruiterUsesAgencyName(t *testing.T) {
	e := newEnv(t, nil)

	job, err := e.svc.Post(context.Background(), "rec", validInput("Sales"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Company != "Hunters" {
		t.Errorf("expected agency name, got %q", job.Company)
	}
}

func TestPost_Rejected(t *testing.T) {
	tests := []struct {
		name  string
		actor string
		in    Input
		code  string
	}{
		{"unapproved recruiter", "pending", validInput("Sales"), model.ErrCodeRecruiterNotApproved},
		{"job seeker", "jo", validInput("Sales"), model.ErrCodeUnauthorized},
		{"unknown account", "ghost", validInput("Sales"), model.ErrCodeNotFound},
		{"empty title", "acme", validInput("   "), model.ErrCodeInvalidInput},
		{"empty description", "acme", Input{Title: "Sales"}, model.ErrCodeInvalidInput},
		{"past expiry", "acme", func() Input {
			in := validInput("Sales")
			past := testutil.Base.Add(-time.Hour)
			in.ExpiresAt = &past
			return in
		}(), model.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, nil)
			_, err := e.svc.Post(context.Background(), tt.actor, tt.in)
			if !model.HasCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestPost_IndexFailureDoesNotFail(t *testing.T) {
	idx := newFakeIndex()
	idx.indexErr = errors.New("cluster down")
	e := newEnv(t, idx)

	if _, err := e.svc.Post(context.Background(), "acme", validInput("Engineer")); err != nil {
		t.Fatalf("expected post to succeed, got %v", err)
	}
}

func TestUpdate_PermissionsAndActivity(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	e.seed.Employer("hr", "HR")
	e.seed.Team("team-1", "acme", "Acme Hiring")
	e.seed.Member("team-1", "hr", model.TeamRoleRecruiter)
	e.seed.Member("team-1", "rec", model.TeamRoleViewer)

	job, err := e.svc.Post(ctx, "acme", validInput("Engineer"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}

	in := validInput("Senior Engineer")
	updated, err := e.svc.Update(ctx, "hr", job.ID, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Title != "Senior Engineer" || updated.Company != "Acme" {
		t.Errorf("unexpected job: %+v", updated)
	}

	if _, err := e.svc.Update(ctx, "rec", job.ID, in); !model.HasCode(err, model.ErrCodeUnauthorized) {
		t.Errorf("expected viewer to be unauthorized, got %v", err)
	}
	if _, err := e.svc.Update(ctx, "jo", job.ID, in); !model.HasCode(err, model.ErrCodeNotFound) {
		t.Errorf("expected outsider to get not found, got %v", err)
	}

	logs, err := e.seed.Store.Activity().ListByTeam(ctx, "team-1", 10)
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	actions := map[model.ActivityAction]bool{}
	for _, l := range logs {
		actions[l.Action] = true
	}
	if !actions[model.ActionJobPosted] || !actions[model.ActionJobEdited] {
		t.Errorf("expected job_posted and job_edited, got %v", actions)
	}
}

func TestToggleAndGet(t *testing.T) {
	idx := newFakeIndex()
	e := newEnv(t, idx)
	ctx := context.Background()

	job, err := e.svc.Post(ctx, "acme", validInput("Engineer"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	toggled, err := e.svc.Toggle(ctx, "acme", job.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if toggled.IsActive {
		t.Fatal("expected job to be deactivated")
	}
	if len(idx.removed) != 1 || idx.removed[0] != job.ID {
		t.Errorf("expected job to be removed from index, got %v", idx.removed)
	}

	if _, err := e.svc.Get(ctx, "", job.ID); !model.HasCode(err, model.ErrCodeNotFound) {
		t.Errorf("expected anonymous viewer to get not found, got %v", err)
	}
	if _, err := e.svc.Get(ctx, "jo", job.ID); !model.HasCode(err, model.ErrCodeNotFound) {
		t.Errorf("expected job seeker to get not found, got %v", err)
	}
	if got, err := e.svc.Get(ctx, "acme", job.ID); err != nil || got.ID != job.ID {
		t.Errorf("expected owner to see inactive job, got %v, %v", got, err)
	}

	if _, err := e.svc.Toggle(ctx, "acme", job.ID); err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if _, err := e.svc.Get(ctx, "", job.ID); err != nil {
		t.Errorf("expected active job to be public, got %v", err)
	}
}

func TestSearch_Database(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	for _, title := range []string{"Go Engineer", "Designer", "Go SRE"} {
		if _, err := e.svc.Post(ctx, "acme", validInput(title)); err != nil {
			t.Fatalf("post: %v", err)
		}
	}

	jobs, err := e.svc.Search(ctx, model.JobQuery{Keyword: "  go "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].Title != "Go SRE" {
		t.Errorf("expected newest first, got %q", jobs[0].Title)
	}
}

func TestSearch_IndexAndFallback(t *testing.T) {
	idx := newFakeIndex()
	e := newEnv(t, idx)
	ctx := context.Background()
	a, _ := e.svc.Post(ctx, "acme", validInput("Go Engineer"))
	b, _ := e.svc.Post(ctx, "acme", validInput("Designer"))

	idx.searchIDs = []string{b.ID, a.ID}
	jobs, err := e.svc.Search(ctx, model.JobQuery{Keyword: "anything"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != b.ID {
		t.Fatalf("expected index order, got %v", jobs)
	}

	idx.searchErr = errors.New("timeout")
	jobs, err = e.svc.Search(ctx, model.JobQuery{Keyword: "designer"})
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != b.ID {
		t.Errorf("expected database result, got %v", jobs)
	}
}

func TestSaveUnsaveSaved(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	job, _ := e.svc.Post(ctx, "acme", validInput("Engineer"))

	for i := 0; i < 2; i++ {
		if err := e.svc.Save(ctx, "jo", job.ID); err != nil {
			t.Fatalf("save #%d: %v", i+1, err)
		}
	}
	saved, err := e.svc.Saved(ctx, "jo")
	if err != nil {
		t.Fatalf("saved: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("expected 1 saved job, got %d", len(saved))
	}

	if err := e.svc.Save(ctx, "jo", "missing"); !model.HasCode(err, model.ErrCodeNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := e.svc.Unsave(ctx, "jo", job.ID); err != nil {
		t.Fatalf("unsave: %v", err)
	}
	if err := e.svc.Unsave(ctx, "jo", job.ID); !model.HasCode(err, model.ErrCodeNotFound) {
		t.Errorf("expected second unsave to be not found, got %v", err)
	}
}

func TestDashboard(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	e.seed.Employer("hr", "HR")
	e.seed.Team("team-1", "acme", "Acme Hiring")
	e.seed.Member("team-1", "hr", model.TeamRoleViewer)
	job, _ := e.svc.Post(ctx, "acme", validInput("Engineer"))
	e.seed.Application("app-1", job.ID, "jo")

	summaries, err := e.svc.Dashboard(ctx, "hr")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 1 || summaries[0].ApplicationCount != 1 {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}

	own, err := e.svc.Dashboard(ctx, "jo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(own) != 0 {
		t.Errorf("expected no jobs for job seeker, got %d", len(own))
	}
}
