// Package testutil はサービス層のテストで使うメモリストアの初期データ投入を提供する。
package testutil

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/repository/memstore"
)

// Base はテストで使う基準時刻。
var Base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// Seeder はmemstore.Storeに初期データを投入する。失敗時はテストを即座に失敗させる。
type Seeder struct {
	T     testing.TB
	Store *memstore.Store
}

// NewSeeder は空のStoreとSeederを生成する。
func NewSeeder(t testing.TB) *Seeder {
	t.Helper()
	return &Seeder{T: t, Store: memstore.New()}
}

func (s *Seeder) account(id, name string, role model.Role, profile model.Profile) *model.Account {
	s.T.Helper()
	a := &model.Account{
		ID:        id,
		Email:     strings.ToLower(id) + "@example.com",
		Name:      name,
		Role:      role,
		Profile:   profile,
		CreatedAt: Base,
		UpdatedAt: Base,
	}
	if err := s.Store.Accounts().CreateWithIdentity(context.Background(), a, nil); err != nil {
		s.T.Fatalf("failed to seed account %s: %v", id, err)
	}
	return a
}

// Account は指定したアカウントをそのまま作成する。
func (s *Seeder) Account(a *model.Account) *model.Account {
	s.T.Helper()
	if err := s.Store.Accounts().CreateWithIdentity(context.Background(), a, nil); err != nil {
		s.T.Fatalf("failed to seed account %s: %v", a.ID, err)
	}
	return a
}

// JobSeeker は求職者アカウントを作成する。
func (s *Seeder) JobSeeker(id, name string, profile *model.JobSeekerProfile) *model.Account {
	s.T.Helper()
	if profile == nil {
		profile = &model.JobSeekerProfile{}
	}
	return s.account(id, name, model.RoleJobSeeker, profile)
}

// Employer は雇用者アカウントを作成する。
func (s *Seeder) Employer(id, company string) *model.Account {
	s.T.Helper()
	return s.account(id, company, model.RoleEmployer, &model.EmployerProfile{CompanyName: company})
}

// Recruiter はリクルーターアカウントを作成する。
func (s *Seeder) Recruiter(id, agency string, approved bool) *model.Account {
	s.T.Helper()
	a := s.account(id, agency, model.RoleRecruiter, &model.RecruiterProfile{AgencyName: agency})
	if approved {
		if err := s.Store.Accounts().SetApproved(context.Background(), id, true); err != nil {
			s.T.Fatalf("failed to approve recruiter %s: %v", id, err)
		}
		a.Approved = true
	}
	return a
}

// VerifyEmail はアカウントのメールアドレスを確認済みにする。
func (s *Seeder) VerifyEmail(accountID string) {
	s.T.Helper()
	ctx := context.Background()
	repo := s.Store.Verifications()
	if err := repo.UpsertEmail(ctx, &model.EmailVerification{AccountID: accountID, Token: uuid.New().String(), IssuedAt: Base}); err != nil {
		s.T.Fatalf("failed to seed email verification: %v", err)
	}
	if err := repo.MarkEmailVerified(ctx, accountID, Base); err != nil {
		s.T.Fatalf("failed to verify email: %v", err)
	}
}

// Job は掲載中の求人を作成する。
func (s *Seeder) Job(id, ownerID, title, company string) *model.JobPosting {
	s.T.Helper()
	j := &model.JobPosting{
		ID:          id,
		OwnerID:     ownerID,
		Title:       title,
		Company:     company,
		Description: "Build things.",
		Location:    "Remote",
		IsActive:    true,
		CreatedAt:   Base,
		UpdatedAt:   Base,
	}
	if err := s.Store.Jobs().Create(context.Background(), j); err != nil {
		s.T.Fatalf("failed to seed job %s: %v", id, err)
	}
	return j
}

// Application はpendingの応募を作成する。
func (s *Seeder) Application(id, jobID, applicantID string) *model.Application {
	s.T.Helper()
	a := &model.Application{
		ID:          id,
		JobID:       jobID,
		ApplicantID: applicantID,
		Status:      model.StatusPending,
		AppliedAt:   Base,
		UpdatedAt:   Base,
	}
	if err := s.Store.Applications().Create(context.Background(), a); err != nil {
		s.T.Fatalf("failed to seed application %s: %v", id, err)
	}
	return a
}

// Team はチームを作成する。
func (s *Seeder) Team(id, ownerID, name string) *model.Team {
	s.T.Helper()
	team := &model.Team{ID: id, OwnerID: ownerID, Name: name, CreatedAt: Base}
	if err := s.Store.Teams().Create(context.Background(), team); err != nil {
		s.T.Fatalf("failed to seed team %s: %v", id, err)
	}
	return team
}

// Member は招待の承諾を経由してチームメンバーを追加する。
func (s *Seeder) Member(teamID, userID string, role model.TeamRole) {
	s.T.Helper()
	ctx := context.Background()
	inv := &model.TeamInvitation{
		ID:        uuid.New().String(),
		TeamID:    teamID,
		Email:     userID + "@example.com",
		Role:      role,
		Token:     uuid.New().String(),
		Status:    model.InvitationPending,
		CreatedAt: Base,
		ExpiresAt: Base.Add(7 * 24 * time.Hour),
	}
	if err := s.Store.Invitations().Create(ctx, inv); err != nil {
		s.T.Fatalf("failed to seed invitation: %v", err)
	}
	member := &model.TeamMember{ID: uuid.New().String(), TeamID: teamID, UserID: userID, Role: role, JoinedAt: Base}
	if err := s.Store.Invitations().Accept(ctx, inv, member, Base); err != nil {
		s.T.Fatalf("failed to seed member %s: %v", userID, err)
	}
}
