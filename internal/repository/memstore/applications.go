package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/repository"
)

// ApplicationRepo はメモリ上のApplicationRepository。
type ApplicationRepo struct{ s *Store }

func (s *Store) deleteApplicationLocked(id string) {
	delete(s.applications, id)
	kept := s.history[:0]
	for _, h := range s.history {
		if h.ApplicationID != id {
			kept = append(kept, h)
		}
	}
	s.history = kept
	for k, v := range s.notes {
		if v.v.ApplicationID == id {
			delete(s.notes, k)
		}
	}
	for k, v := range s.ratings {
		if v.v.ApplicationID == id {
			delete(s.ratings, k)
		}
	}
	for k, v := range s.tagAssigns {
		if v.v.ApplicationID == id {
			delete(s.tagAssigns, k)
		}
	}
	for k, v := range s.messages {
		if v.v.ApplicationID == id {
			delete(s.messages, k)
		}
	}
}

func newestAppFirst(a, b *model.Application) int {
	return b.AppliedAt.Compare(a.AppliedAt)
}

func (r *ApplicationRepo) Create(_ context.Context, app *model.Application) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.applications {
		if a.v.ID == app.ID || (a.v.JobID == app.JobID && a.v.ApplicantID == app.ApplicantID) {
			return repository.ErrDuplicate
		}
	}
	if _, ok := r.s.jobs[app.JobID]; !ok {
		return repository.ErrNotFound
	}
	r.s.applications[app.ID] = wrap(r.s, clone(app))
	return nil
}

func (r *ApplicationRepo) FindByID(_ context.Context, id string) (*model.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a, ok := r.s.applications[id]; ok {
		return clone(a.v), nil
	}
	return nil, nil
}

func (r *ApplicationRepo) ListByJob(_ context.Context, jobID string) ([]*model.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return collect(r.s.applications, func(a *model.Application) bool { return a.JobID == jobID }, newestAppFirst), nil
}

func (r *ApplicationRepo) ListByApplicant(_ context.Context, applicantID string) ([]*model.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return collect(r.s.applications, func(a *model.Application) bool { return a.ApplicantID == applicantID }, newestAppFirst), nil
}

func (r *ApplicationRepo) UpdateStatus(_ context.Context, id string, status model.LegacyStatus, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.applications[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.v.Status = status
	a.v.UpdatedAt = at
	return nil
}

func (r *ApplicationRepo) ApplyTransition(_ context.Context, app *model.Application, entry *model.StageHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.applications[app.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if app.StageID != nil {
		if _, ok := r.s.stages[*app.StageID]; !ok {
			return repository.ErrNotFound
		}
	}
	a.v.StageID = clone(app.StageID)
	a.v.Status = app.Status
	a.v.UpdatedAt = app.UpdatedAt
	entry.Seq = r.s.next()
	r.s.history = append(r.s.history, clone(entry))
	return nil
}

func (r *ApplicationRepo) ListHistory(_ context.Context, applicationID string) ([]*model.StageHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.StageHistory
	for i := len(r.s.history) - 1; i >= 0; i-- {
		if h := r.s.history[i]; h.ApplicationID == applicationID {
			out = append(out, clone(h))
		}
	}
	// changed_at DESC, seq DESC
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ChangedAt.After(out[j-1].ChangedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (r *ApplicationRepo) ListHistoryByJob(_ context.Context, jobID string) ([]*model.StageHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.StageHistory
	for _, h := range r.s.history {
		if a, ok := r.s.applications[h.ApplicationID]; ok && a.v.JobID == jobID {
			out = append(out, clone(h))
		}
	}
	return out, nil
}

// StageRepo はメモリ上のStageRepository。
type StageRepo struct{ s *Store }

func byStageOrder(a, b *model.Stage) int {
	if a.Order != b.Order {
		return a.Order - b.Order
	}
	return a.CreatedAt.Compare(b.CreatedAt)
}

func (s *Store) stagesOfLocked(employerID string) []*model.Stage {
	return collect(s.stages, func(st *model.Stage) bool { return st.EmployerID == employerID }, byStageOrder)
}

func (s *Store) stageNameTakenLocked(employerID, name, exceptID string) bool {
	for _, st := range s.stages {
		if st.v.EmployerID == employerID && st.v.Name == name && st.v.ID != exceptID {
			return true
		}
	}
	return false
}

func (r *StageRepo) ListByEmployer(_ context.Context, employerID string) ([]*model.Stage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.stagesOfLocked(employerID), nil
}

func (r *StageRepo) FindByID(_ context.Context, id string) (*model.Stage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if st, ok := r.s.stages[id]; ok {
		return clone(st.v), nil
	}
	return nil, nil
}

func (r *StageRepo) EnsureDefaults(_ context.Context, employerID string, defaults []*model.Stage) ([]*model.Stage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range defaults {
		if r.s.stageNameTakenLocked(employerID, d.Name, "") {
			continue
		}
		st := clone(d)
		st.EmployerID = employerID
		r.s.stages[st.ID] = wrap(r.s, st)
	}
	return r.s.stagesOfLocked(employerID), nil
}

func (r *StageRepo) Create(_ context.Context, stage *model.Stage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.stageNameTakenLocked(stage.EmployerID, stage.Name, "") {
		return repository.ErrDuplicate
	}
	r.s.stages[stage.ID] = wrap(r.s, clone(stage))
	return nil
}

func (r *StageRepo) Update(_ context.Context, stage *model.Stage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.stages[stage.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if r.s.stageNameTakenLocked(cur.v.EmployerID, stage.Name, stage.ID) {
		return repository.ErrDuplicate
	}
	cur.v.Name = stage.Name
	cur.v.Color = stage.Color
	return nil
}

func (r *StageRepo) Reorder(_ context.Context, employerID string, orderedIDs []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range orderedIDs {
		st, ok := r.s.stages[id]
		if !ok || st.v.EmployerID != employerID {
			return repository.ErrNotFound
		}
	}
	for i, id := range orderedIDs {
		r.s.stages[id].v.Order = i
	}
	return nil
}

func (r *StageRepo) DeleteAndReassign(_ context.Context, stageID string, re repository.StageReassignment) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.stages[stageID]; !ok {
		return 0, repository.ErrNotFound
	}
	var assigned []*model.Application
	for _, a := range r.s.applications {
		if a.v.StageID != nil && *a.v.StageID == stageID {
			assigned = append(assigned, a.v)
		}
	}
	if len(assigned) > 0 && re.Fallback == nil {
		return 0, repository.ErrInUse
	}
	for _, a := range assigned {
		fallbackID := re.Fallback.ID
		a.StageID = &fallbackID
		if re.Status != nil {
			a.Status = *re.Status
		}
		a.UpdatedAt = re.At
		var actor *string
		if re.ActorID != "" {
			id := re.ActorID
			actor = &id
		}
		r.s.history = append(r.s.history, &model.StageHistory{
			ID:            uuid.New().String(),
			Seq:           r.s.next(),
			ApplicationID: a.ID,
			StageID:       &fallbackID,
			StageName:     re.Fallback.Name,
			ChangedBy:     actor,
			ChangedAt:     re.At,
			Notes:         re.Notes,
		})
	}
	delete(r.s.stages, stageID)
	for _, h := range r.s.history {
		if h.StageID != nil && *h.StageID == stageID {
			h.StageID = nil
		}
	}
	return len(assigned), nil
}

var (
	_ repository.ApplicationRepository = (*ApplicationRepo)(nil)
	_ repository.StageRepository       = (*StageRepo)(nil)
)
