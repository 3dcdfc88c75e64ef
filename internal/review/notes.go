package review

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/repository"
)

const maxNoteLength = 5000

// AddNote は応募に社内メモを追加する。reviewが必要。
func (s *Service) AddNote(ctx context.Context, actorID, applicationID, content string, private bool) (*model.Note, error) {
	t, err := s.authorize(ctx, actorID, applicationID, model.CapReview)
	if err != nil {
		return nil, err
	}
	content = s.sanitizer.Text(content)
	if content == "" || utf8.RuneCountInString(content) > maxNoteLength {
		return nil, model.NewInvalidInputError(fmt.Sprintf("メモは1〜%d文字で入力してください", maxNoteLength))
	}

	note := &model.Note{
		ID:            uuid.New().String(),
		ApplicationID: t.app.ID,
		AuthorID:      actorID,
		Content:       content,
		IsPrivate:     private,
		CreatedAt:     s.now(),
	}
	if err := s.notes.Create(ctx, note); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("応募")
		}
		return nil, fmt.Errorf("メモの作成に失敗しました: %w", err)
	}
	s.record(ctx, t, actorID, model.ActionNoteAdded, "Added a note")
	return note, nil
}

// ListNotes は閲覧者が見られるメモを新しい順に返す。非公開メモは作成者にのみ返す。
func (s *Service) ListNotes(ctx context.Context, actorID, applicationID string) ([]*model.Note, error) {
	t, err := s.authorize(ctx, actorID, applicationID, model.CapView)
	if err != nil {
		return nil, err
	}
	all, err := s.notes.ListByApplication(ctx, t.app.ID)
	if err != nil {
		return nil, fmt.Errorf("メモの取得に失敗しました: %w", err)
	}
	visible := make([]*model.Note, 0, len(all))
	for _, n := range all {
		if n.VisibleTo(actorID) {
			visible = append(visible, n)
		}
	}
	return visible, nil
}

// DeleteNote はメモを削除する。作成者本人のみ削除できる。
// 閲覧できないメモは存在しないものとして扱う。
func (s *Service) DeleteNote(ctx context.Context, actorID, applicationID, noteID string) error {
	t, err := s.authorize(ctx, actorID, applicationID, model.CapView)
	if err != nil {
		return err
	}
	note, err := s.notes.FindByID(ctx, noteID)
	if err != nil {
		return fmt.Errorf("メモの取得に失敗しました: %w", err)
	}
	if note == nil || note.ApplicationID != t.app.ID || !note.VisibleTo(actorID) {
		return model.NewNotFoundError("メモ")
	}
	if note.AuthorID != actorID {
		return model.NewUnauthorizedError(model.CapReview)
	}
	if err := s.notes.Delete(ctx, note.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewNotFoundError("メモ")
		}
		return fmt.Errorf("メモの削除に失敗しました: %w", err)
	}
	return nil
}
