package memstore

import (
	"context"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/repository"
)

// NoteRepo はメモリ上のNoteRepository。
type NoteRepo struct{ s *Store }

func (r *NoteRepo) Create(_ context.Context, note *model.Note) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.applications[note.ApplicationID]; !ok {
		return repository.ErrNotFound
	}
	r.s.notes[note.ID] = wrap(r.s, clone(note))
	return nil
}

func (r *NoteRepo) FindByID(_ context.Context, id string) (*model.Note, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if n, ok := r.s.notes[id]; ok {
		return clone(n.v), nil
	}
	return nil, nil
}

func (r *NoteRepo) ListByApplication(_ context.Context, applicationID string) ([]*model.Note, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	notes := collect(r.s.notes, func(n *model.Note) bool { return n.ApplicationID == applicationID },
		func(a, b *model.Note) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return notes, nil
}

func (r *NoteRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.notes[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.notes, id)
	return nil
}

// RatingRepo はメモリ上のRatingRepository。
type RatingRepo struct{ s *Store }

func (r *RatingRepo) Upsert(_ context.Context, rating *model.Rating) (*model.Rating, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pairKey(rating.ApplicationID, rating.RaterID)
	if cur, ok := r.s.ratings[key]; ok {
		cur.v.Overall = rating.Overall
		cur.v.Technical = clone(rating.Technical)
		cur.v.Communication = clone(rating.Communication)
		cur.v.CultureFit = clone(rating.CultureFit)
		cur.v.Comment = rating.Comment
		cur.v.UpdatedAt = rating.UpdatedAt
		return clone(cur.v), nil
	}
	if _, ok := r.s.applications[rating.ApplicationID]; !ok {
		return nil, repository.ErrNotFound
	}
	r.s.ratings[key] = wrap(r.s, clone(rating))
	return clone(rating), nil
}

func (r *RatingRepo) ListByApplication(_ context.Context, applicationID string) ([]*model.Rating, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return collect(r.s.ratings, func(rt *model.Rating) bool { return rt.ApplicationID == applicationID },
		func(a, b *model.Rating) int { return a.CreatedAt.Compare(b.CreatedAt) }), nil
}

// TagRepo はメモリ上のTagRepository。
type TagRepo struct{ s *Store }

func byName(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (r *TagRepo) Create(_ context.Context, tag *model.Tag) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tags {
		if t.v.EmployerID == tag.EmployerID && t.v.Name == tag.Name {
			return repository.ErrDuplicate
		}
	}
	r.s.tags[tag.ID] = wrap(r.s, clone(tag))
	return nil
}

func (r *TagRepo) FindByID(_ context.Context, id string) (*model.Tag, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.tags[id]; ok {
		return clone(t.v), nil
	}
	return nil, nil
}

func (r *TagRepo) ListByEmployer(_ context.Context, employerID string) ([]*model.Tag, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return collect(r.s.tags, func(t *model.Tag) bool { return t.EmployerID == employerID },
		func(a, b *model.Tag) int { return byName(a.Name, b.Name) }), nil
}

func (r *TagRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tags[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.tags, id)
	for k, v := range r.s.tagAssigns {
		if v.v.TagID == id {
			delete(r.s.tagAssigns, k)
		}
	}
	return nil
}

func (r *TagRepo) Assign(_ context.Context, a *model.TagAssignment) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pairKey(a.ApplicationID, a.TagID)
	if _, ok := r.s.tagAssigns[key]; ok {
		return false, nil
	}
	r.s.tagAssigns[key] = wrap(r.s, clone(a))
	return true, nil
}

func (r *TagRepo) Unassign(_ context.Context, applicationID, tagID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pairKey(applicationID, tagID)
	if _, ok := r.s.tagAssigns[key]; !ok {
		return false, nil
	}
	delete(r.s.tagAssigns, key)
	return true, nil
}

func (r *TagRepo) ListByApplication(_ context.Context, applicationID string) ([]*model.Tag, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make(map[string]bool)
	for _, ta := range r.s.tagAssigns {
		if ta.v.ApplicationID == applicationID {
			ids[ta.v.TagID] = true
		}
	}
	return collect(r.s.tags, func(t *model.Tag) bool { return ids[t.ID] },
		func(a, b *model.Tag) int { return byName(a.Name, b.Name) }), nil
}

var (
	_ repository.NoteRepository   = (*NoteRepo)(nil)
	_ repository.RatingRepository = (*RatingRepo)(nil)
	_ repository.TagRepository    = (*TagRepo)(nil)
)
