package memstore

import (
	"context"
	"time"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/repository"
)

// TeamRepo はメモリ上のTeamRepository。
type TeamRepo struct{ s *Store }

func (r *TeamRepo) Create(_ context.Context, team *model.Team) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.teams {
		if t.OwnerID == team.OwnerID {
			return repository.ErrDuplicate
		}
	}
	r.s.teams[team.ID] = clone(team)
	return nil
}

func (r *TeamRepo) FindByID(_ context.Context, id string) (*model.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return clone(r.s.teams[id]), nil
}

func (r *TeamRepo) FindByOwnerID(_ context.Context, ownerID string) (*model.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.teams {
		if t.OwnerID == ownerID {
			return clone(t), nil
		}
	}
	return nil, nil
}

func (s *Store) activeMembershipLocked(userID string) *model.TeamMember {
	for _, m := range s.members {
		if m.v.UserID == userID && m.v.IsActive {
			return m.v
		}
	}
	return nil
}

func (r *TeamRepo) FindActiveMembership(_ context.Context, userID string) (*model.TeamMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return clone(r.s.activeMembershipLocked(userID)), nil
}

func (r *TeamRepo) ListMembers(_ context.Context, teamID string) ([]*model.TeamMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return collect(r.s.members, func(m *model.TeamMember) bool { return m.TeamID == teamID && m.IsActive },
		func(a, b *model.TeamMember) int { return a.JoinedAt.Compare(b.JoinedAt) }), nil
}

func (r *TeamRepo) UpdateMemberRole(_ context.Context, teamID, userID string, role model.TeamRole) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.members[pairKey(teamID, userID)]
	if !ok || !m.v.IsActive {
		return repository.ErrNotFound
	}
	m.v.Role = role
	return nil
}

func (r *TeamRepo) DeactivateMember(_ context.Context, teamID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.members[pairKey(teamID, userID)]
	if !ok || !m.v.IsActive {
		return repository.ErrNotFound
	}
	m.v.IsActive = false
	return nil
}

// InvitationRepo はメモリ上のInvitationRepository。
type InvitationRepo struct{ s *Store }

func (r *InvitationRepo) Create(_ context.Context, inv *model.TeamInvitation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, i := range r.s.invitations {
		if i.v.Token == inv.Token {
			return repository.ErrDuplicate
		}
	}
	r.s.invitations[inv.ID] = wrap(r.s, clone(inv))
	return nil
}

func (r *InvitationRepo) FindByToken(_ context.Context, token string) (*model.TeamInvitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, i := range r.s.invitations {
		if i.v.Token == token {
			return clone(i.v), nil
		}
	}
	return nil, nil
}

func (r *InvitationRepo) ListByTeam(_ context.Context, teamID string) ([]*model.TeamInvitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return collect(r.s.invitations, func(i *model.TeamInvitation) bool { return i.TeamID == teamID },
		func(a, b *model.TeamInvitation) int { return b.CreatedAt.Compare(a.CreatedAt) }), nil
}

func (r *InvitationRepo) Accept(_ context.Context, inv *model.TeamInvitation, member *model.TeamMember, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.invitations[inv.ID]
	if !ok || cur.v.Status != model.InvitationPending {
		return repository.ErrNotPending
	}
	if active := r.s.activeMembershipLocked(member.UserID); active != nil && active.TeamID != member.TeamID {
		return repository.ErrDuplicate
	}

	key := pairKey(member.TeamID, member.UserID)
	if existing, ok := r.s.members[key]; ok {
		existing.v.Role = member.Role
		existing.v.IsActive = true
		existing.v.JoinedAt = member.JoinedAt
		member.ID = existing.v.ID
	} else {
		m := clone(member)
		m.IsActive = true
		r.s.members[key] = wrap(r.s, m)
	}
	member.IsActive = true

	userID := member.UserID
	cur.v.Status = model.InvitationAccepted
	cur.v.AcceptedBy = &userID
	cur.v.RespondedAt = &at
	inv.Status = model.InvitationAccepted
	inv.AcceptedBy = &userID
	inv.RespondedAt = &at
	return nil
}

func (r *InvitationRepo) Respond(_ context.Context, id string, to model.InvitationStatus, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.invitations[id]
	if !ok || cur.v.Status != model.InvitationPending {
		return repository.ErrNotPending
	}
	cur.v.Status = to
	cur.v.RespondedAt = &at
	return nil
}

func (r *InvitationRepo) ExpirePending(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, i := range r.s.invitations {
		if i.v.Status == model.InvitationPending && i.v.ExpiresAt.Before(now) {
			i.v.Status = model.InvitationExpired
			at := now
			i.v.RespondedAt = &at
			n++
		}
	}
	return n, nil
}

// ActivityRepo はメモリ上のActivityRepository。
type ActivityRepo struct{ s *Store }

func (r *ActivityRepo) Create(_ context.Context, e *model.ActivityLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.teams[e.TeamID]; !ok {
		return repository.ErrNotFound
	}
	r.s.activity = append(r.s.activity, clone(e))
	return nil
}

func (r *ActivityRepo) ListByTeam(_ context.Context, teamID string, limit int) ([]*model.ActivityLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.ActivityLog
	for i := len(r.s.activity) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if e := r.s.activity[i]; e.TeamID == teamID {
			out = append(out, clone(e))
		}
	}
	return out, nil
}

var (
	_ repository.TeamRepository       = (*TeamRepo)(nil)
	_ repository.InvitationRepository = (*InvitationRepo)(nil)
	_ repository.ActivityRepository   = (*ActivityRepo)(nil)
)
