package memstore

import (
	"context"
	"time"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/repository"
)

// AccountRepo はメモリ上のAccountRepository。
type AccountRepo struct{ s *Store }

func (r *AccountRepo) FindByID(_ context.Context, id string) (*model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return clone(r.s.accounts[id]), nil
}

func (r *AccountRepo) FindByEmail(_ context.Context, email string) (*model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if lower(a.Email) == lower(email) {
			return clone(a), nil
		}
	}
	return nil, nil
}

func (r *AccountRepo) CreateWithIdentity(_ context.Context, account *model.Account, identity *model.Identity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.ID == account.ID || a.Email == account.Email {
			return repository.ErrDuplicate
		}
	}
	if identity != nil {
		for _, i := range r.s.identities {
			if i.Provider == identity.Provider && i.ProviderUserID == identity.ProviderUserID {
				return repository.ErrDuplicate
			}
		}
		r.s.identities[identity.ID] = clone(identity)
	}
	r.s.accounts[account.ID] = clone(account)
	return nil
}

func (r *AccountRepo) UpdateProfile(_ context.Context, account *model.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.accounts[account.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Name = account.Name
	cur.Profile = account.Profile
	cur.UpdatedAt = account.UpdatedAt
	return nil
}

func (r *AccountRepo) SetApproved(_ context.Context, id string, approved bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.accounts[id]
	if !ok || cur.Role != model.RoleRecruiter {
		return repository.ErrNotFound
	}
	cur.Approved = approved
	cur.UpdatedAt = time.Now()
	return nil
}

// DeleteByID はアカウントと、それに従属する行を削除する。
// 操作者として参照されている列はNULLにする。
func (r *AccountRepo) DeleteByID(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.accounts, id)
	delete(r.s.phones, id)
	delete(r.s.emails, id)
	for k, v := range r.s.identities {
		if v.AccountID == id {
			delete(r.s.identities, k)
		}
	}
	for k, v := range r.s.sessions {
		if v.AccountID == id {
			delete(r.s.sessions, k)
		}
	}
	for k, v := range r.s.savedJobs {
		if v.v.UserID == id {
			delete(r.s.savedJobs, k)
		}
	}
	for k, v := range r.s.jobs {
		if v.v.OwnerID == id {
			r.s.deleteJobLocked(k)
		}
	}
	for k, v := range r.s.applications {
		if v.v.ApplicantID == id {
			r.s.deleteApplicationLocked(k)
		}
	}
	for _, h := range r.s.history {
		if h.ChangedBy != nil && *h.ChangedBy == id {
			h.ChangedBy = nil
		}
	}
	for _, a := range r.s.activity {
		if a.ActorID != nil && *a.ActorID == id {
			a.ActorID = nil
		}
	}
	return nil
}

// IdentityRepo はメモリ上のIdentityRepository。
type IdentityRepo struct{ s *Store }

func (r *IdentityRepo) FindByProviderAndProviderUserID(_ context.Context, provider, providerUserID string) (*model.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, i := range r.s.identities {
		if i.Provider == provider && i.ProviderUserID == providerUserID {
			return clone(i), nil
		}
	}
	return nil, nil
}

// SessionRepo はメモリ上のSessionRepository。
type SessionRepo struct{ s *Store }

func (r *SessionRepo) Create(_ context.Context, session *model.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sessions[session.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.sessions[session.ID] = clone(session)
	return nil
}

func (r *SessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok || !sess.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return clone(sess), nil
}

func (r *SessionRepo) DeleteByID(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.sessions, id)
	return nil
}

func (r *SessionRepo) DeleteByAccountID(_ context.Context, accountID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k, v := range r.s.sessions {
		if v.AccountID == accountID {
			delete(r.s.sessions, k)
		}
	}
	return nil
}

// VerificationRepo はメモリ上のVerificationRepository。
type VerificationRepo struct{ s *Store }

func (r *VerificationRepo) FindPhone(_ context.Context, accountID string) (*model.PhoneVerification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return clone(r.s.phones[accountID]), nil
}

func (r *VerificationRepo) UpsertPhone(_ context.Context, v *model.PhoneVerification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.phones[v.AccountID] = clone(v)
	return nil
}

func (r *VerificationRepo) MarkPhoneVerified(_ context.Context, accountID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.phones[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	v.Verified = true
	v.VerifiedAt = &at
	return nil
}

func (r *VerificationRepo) FindEmailByAccount(_ context.Context, accountID string) (*model.EmailVerification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return clone(r.s.emails[accountID]), nil
}

func (r *VerificationRepo) FindEmailByToken(_ context.Context, token string) (*model.EmailVerification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, v := range r.s.emails {
		if v.Token == token {
			return clone(v), nil
		}
	}
	return nil, nil
}

func (r *VerificationRepo) UpsertEmail(_ context.Context, v *model.EmailVerification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, other := range r.s.emails {
		if id != v.AccountID && other.Token == v.Token {
			return repository.ErrDuplicate
		}
	}
	r.s.emails[v.AccountID] = clone(v)
	return nil
}

func (r *VerificationRepo) MarkEmailVerified(_ context.Context, accountID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.emails[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	v.Verified = true
	v.VerifiedAt = &at
	return nil
}

var (
	_ repository.AccountRepository      = (*AccountRepo)(nil)
	_ repository.IdentityRepository     = (*IdentityRepo)(nil)
	_ repository.SessionRepository      = (*SessionRepo)(nil)
	_ repository.VerificationRepository = (*VerificationRepo)(nil)
)
