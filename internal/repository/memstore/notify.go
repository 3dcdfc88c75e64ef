package memstore

import (
	"context"
	"time"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/repository"
)

// TemplateRepo はメモリ上のTemplateRepository。
type TemplateRepo struct{ s *Store }

func (s *Store) templateNameTakenLocked(employerID, name, exceptID string) bool {
	for _, t := range s.templates {
		if t.v.EmployerID == employerID && t.v.Name == name && t.v.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *Store) templatesOfLocked(employerID string) []*model.EmailTemplate {
	return collect(s.templates, func(t *model.EmailTemplate) bool { return t.EmployerID == employerID },
		func(a, b *model.EmailTemplate) int { return byName(a.Name, b.Name) })
}

func (r *TemplateRepo) EnsureDefaults(_ context.Context, employerID string, defaults []*model.EmailTemplate) ([]*model.EmailTemplate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range defaults {
		if r.s.templateNameTakenLocked(employerID, d.Name, "") {
			continue
		}
		t := clone(d)
		t.EmployerID = employerID
		r.s.templates[t.ID] = wrap(r.s, t)
	}
	return r.s.templatesOfLocked(employerID), nil
}

func (r *TemplateRepo) ListByEmployer(_ context.Context, employerID string) ([]*model.EmailTemplate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.templatesOfLocked(employerID), nil
}

func (r *TemplateRepo) FindByID(_ context.Context, id string) (*model.EmailTemplate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.templates[id]; ok {
		return clone(t.v), nil
	}
	return nil, nil
}

func (r *TemplateRepo) FindActiveByType(_ context.Context, employerID string, tt model.TemplateType) (*model.EmailTemplate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.templatesOfLocked(employerID) {
		if t.Type == tt && t.IsActive {
			return t, nil
		}
	}
	return nil, nil
}

func (r *TemplateRepo) Create(_ context.Context, tmpl *model.EmailTemplate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.templateNameTakenLocked(tmpl.EmployerID, tmpl.Name, "") {
		return repository.ErrDuplicate
	}
	r.s.templates[tmpl.ID] = wrap(r.s, clone(tmpl))
	return nil
}

func (r *TemplateRepo) Update(_ context.Context, tmpl *model.EmailTemplate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.templates[tmpl.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if r.s.templateNameTakenLocked(cur.v.EmployerID, tmpl.Name, tmpl.ID) {
		return repository.ErrDuplicate
	}
	employerID, createdAt := cur.v.EmployerID, cur.v.CreatedAt
	cur.v = clone(tmpl)
	cur.v.EmployerID = employerID
	cur.v.CreatedAt = createdAt
	return nil
}

func (r *TemplateRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.templates[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.templates, id)
	for _, l := range r.s.emailLogs {
		if l.v.TemplateID != nil && *l.v.TemplateID == id {
			l.v.TemplateID = nil
		}
	}
	return nil
}

// EmailLogRepo はメモリ上のEmailLogRepository。
type EmailLogRepo struct{ s *Store }

func (r *EmailLogRepo) Create(_ context.Context, l *model.EmailLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.emailLogs[l.ID] = wrap(r.s, clone(l))
	return nil
}

func (r *EmailLogRepo) UpdateStatus(_ context.Context, id string, status model.EmailStatus, errMsg string, sentAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.emailLogs[id]
	if !ok {
		return repository.ErrNotFound
	}
	l.v.Status = status
	l.v.ErrorMessage = errMsg
	l.v.SentAt = clone(sentAt)
	return nil
}

// NotificationRepo はメモリ上のNotificationRepository。
type NotificationRepo struct{ s *Store }

func (r *NotificationRepo) Create(_ context.Context, n *model.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.notifications[n.ID] = wrap(r.s, clone(n))
	return nil
}

func (r *NotificationRepo) ListByRecipient(_ context.Context, recipientID string, unreadOnly bool, limit int) ([]*model.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	list := collect(r.s.notifications, func(n *model.Notification) bool {
		return n.RecipientID == recipientID && (!unreadOnly || !n.IsRead)
	}, func(a, b *model.Notification) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return page(list, limit, 0), nil
}

func (r *NotificationRepo) MarkRead(_ context.Context, recipientID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notifications[id]
	if !ok || n.v.RecipientID != recipientID {
		return repository.ErrNotFound
	}
	n.v.IsRead = true
	return nil
}

func (r *NotificationRepo) MarkAllRead(_ context.Context, recipientID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, v := range r.s.notifications {
		if v.v.RecipientID == recipientID && !v.v.IsRead {
			v.v.IsRead = true
			n++
		}
	}
	return n, nil
}

func (r *NotificationRepo) CountUnread(_ context.Context, recipientID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for _, v := range r.s.notifications {
		if v.v.RecipientID == recipientID && !v.v.IsRead {
			count++
		}
	}
	return count, nil
}

// MessageRepo はメモリ上のMessageRepository。
type MessageRepo struct{ s *Store }

func (r *MessageRepo) Create(_ context.Context, m *model.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.applications[m.ApplicationID]; !ok {
		return repository.ErrNotFound
	}
	r.s.messages[m.ID] = wrap(r.s, clone(m))
	return nil
}

func (r *MessageRepo) ListByApplication(_ context.Context, applicationID string) ([]*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return collect(r.s.messages, func(m *model.Message) bool { return m.ApplicationID == applicationID },
		func(a, b *model.Message) int { return a.CreatedAt.Compare(b.CreatedAt) }), nil
}

func (r *MessageRepo) MarkReadForRecipient(_ context.Context, applicationID, recipientID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, m := range r.s.messages {
		if m.v.ApplicationID == applicationID && m.v.RecipientID == recipientID && !m.v.IsRead {
			m.v.IsRead = true
			n++
		}
	}
	return n, nil
}

var (
	_ repository.TemplateRepository     = (*TemplateRepo)(nil)
	_ repository.EmailLogRepository     = (*EmailLogRepo)(nil)
	_ repository.NotificationRepository = (*NotificationRepo)(nil)
	_ repository.MessageRepository      = (*MessageRepo)(nil)
)
