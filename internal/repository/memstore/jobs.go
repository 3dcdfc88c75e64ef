package memstore

import (
	"context"
	"strings"
	"time"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/repository"
)

// JobRepo はメモリ上のJobRepository。
type JobRepo struct{ s *Store }

func newestJobFirst(a, b *model.JobPosting) int {
	return b.CreatedAt.Compare(a.CreatedAt)
}

func (s *Store) deleteJobLocked(id string) {
	delete(s.jobs, id)
	for k, v := range s.savedJobs {
		if v.v.JobID == id {
			delete(s.savedJobs, k)
		}
	}
	for k, v := range s.applications {
		if v.v.JobID == id {
			s.deleteApplicationLocked(k)
		}
	}
}

func (r *JobRepo) FindByID(_ context.Context, id string) (*model.JobPosting, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if j, ok := r.s.jobs[id]; ok {
		return clone(j.v), nil
	}
	return nil, nil
}

func (r *JobRepo) Create(_ context.Context, job *model.JobPosting) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[job.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.jobs[job.ID] = wrap(r.s, clone(job))
	return nil
}

func (r *JobRepo) Update(_ context.Context, job *model.JobPosting) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.jobs[job.ID]
	if !ok {
		return repository.ErrNotFound
	}
	active := cur.v.IsActive
	cur.v = clone(job)
	cur.v.IsActive = active
	return nil
}

func (r *JobRepo) SetActive(_ context.Context, id string, active bool, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	cur.v.IsActive = active
	cur.v.UpdatedAt = at
	return nil
}

func (r *JobRepo) Search(_ context.Context, q model.JobQuery) ([]*model.JobPosting, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kw := lower(q.Keyword)
	jobs := collect(r.s.jobs, func(j *model.JobPosting) bool {
		if !j.IsActive {
			return false
		}
		if kw == "" {
			return true
		}
		for _, f := range []string{j.Title, j.Company, j.Description, j.Location} {
			if strings.Contains(strings.ToLower(f), kw) {
				return true
			}
		}
		return false
	}, newestJobFirst)
	return page(jobs, q.Limit, q.Offset), nil
}

func page[T any](items []*T, limit, offset int) []*T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (r *JobRepo) ListByIDs(_ context.Context, ids []string) ([]*model.JobPosting, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.JobPosting
	for _, id := range ids {
		if j, ok := r.s.jobs[id]; ok && j.v.IsActive {
			out = append(out, clone(j.v))
		}
	}
	return out, nil
}

func (r *JobRepo) ListByOwner(_ context.Context, ownerID string) ([]*model.JobSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	jobs := collect(r.s.jobs, func(j *model.JobPosting) bool { return j.OwnerID == ownerID }, newestJobFirst)
	out := make([]*model.JobSummary, len(jobs))
	for i, j := range jobs {
		count := 0
		for _, a := range r.s.applications {
			if a.v.JobID == j.ID {
				count++
			}
		}
		out[i] = &model.JobSummary{Job: j, ApplicationCount: count}
	}
	return out, nil
}

// SavedJobRepo はメモリ上のSavedJobRepository。
type SavedJobRepo struct{ s *Store }

func (r *SavedJobRepo) Save(_ context.Context, saved *model.SavedJob) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pairKey(saved.UserID, saved.JobID)
	if _, ok := r.s.savedJobs[key]; ok {
		return nil
	}
	if _, ok := r.s.jobs[saved.JobID]; !ok {
		return repository.ErrNotFound
	}
	r.s.savedJobs[key] = wrap(r.s, clone(saved))
	return nil
}

func (r *SavedJobRepo) Delete(_ context.Context, userID, jobID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pairKey(userID, jobID)
	if _, ok := r.s.savedJobs[key]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.savedJobs, key)
	return nil
}

func (r *SavedJobRepo) ListJobsByUser(_ context.Context, userID string) ([]*model.JobPosting, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	saved := collect(r.s.savedJobs, func(sj *model.SavedJob) bool { return sj.UserID == userID },
		func(a, b *model.SavedJob) int { return b.CreatedAt.Compare(a.CreatedAt) })
	var out []*model.JobPosting
	for _, sj := range saved {
		if j, ok := r.s.jobs[sj.JobID]; ok {
			out = append(out, clone(j.v))
		}
	}
	return out, nil
}

var (
	_ repository.JobRepository      = (*JobRepo)(nil)
	_ repository.SavedJobRepository = (*SavedJobRepo)(nil)
)
