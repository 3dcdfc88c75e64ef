package review

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/permission"
	"github.com/hitoshi/jobboard/internal/repository"
)

// DefaultTagColor はタグの既定色。
const DefaultTagColor = "#6c757d"

var tagColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ListTags はアクターの雇用者スコープのタグを名前順に返す。
func (s *Service) ListTags(ctx context.Context, actorID string) ([]*model.Tag, error) {
	scope, err := s.resolver.Scope(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := permission.Require(scope, model.CapView); err != nil {
		return nil, err
	}
	tags, err := s.tags.ListByEmployer(ctx, scope.EmployerID)
	if err != nil {
		return nil, fmt.Errorf("タグの取得に失敗しました: %w", err)
	}
	return tags, nil
}

// CreateTag は雇用者スコープにタグを作成する。
func (s *Service) CreateTag(ctx context.Context, actorID, name, color string) (*model.Tag, error) {
	scope, err := s.resolver.Scope(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := permission.Require(scope, model.CapManageApplications); err != nil {
		return nil, err
	}
	name = s.sanitizer.Text(name)
	if name == "" || utf8.RuneCountInString(name) > 50 {
		return nil, model.NewInvalidInputError("タグ名は1〜50文字で入力してください")
	}
	if color == "" {
		color = DefaultTagColor
	}
	if !tagColorPattern.MatchString(color) {
		return nil, model.NewInvalidInputError("色は#rrggbb形式で指定してください")
	}

	tag := &model.Tag{
		ID:         uuid.New().String(),
		EmployerID: scope.EmployerID,
		Name:       name,
		Color:      color,
		CreatedAt:  s.now(),
	}
	if err := s.tags.Create(ctx, tag); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateNameError("タグ", name)
		}
		return nil, fmt.Errorf("タグの作成に失敗しました: %w", err)
	}
	return tag, nil
}

// DeleteTag はタグと割り当てを削除する。
func (s *Service) DeleteTag(ctx context.Context, actorID, tagID string) error {
	tag, err := s.tags.FindByID(ctx, tagID)
	if err != nil {
		return fmt.Errorf("タグの取得に失敗しました: %w", err)
	}
	if tag == nil {
		return model.NewNotFoundError("タグ")
	}
	set, err := s.resolver.ForEmployer(ctx, actorID, tag.EmployerID)
	if err != nil {
		return err
	}
	if err := permission.Authorize(set, model.CapManageApplications, "タグ"); err != nil {
		return err
	}
	if err := s.tags.Delete(ctx, tag.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewNotFoundError("タグ")
		}
		return fmt.Errorf("タグの削除に失敗しました: %w", err)
	}
	return nil
}

// ApplicationTags は応募に割り当てられたタグを返す。
func (s *Service) ApplicationTags(ctx context.Context, actorID, applicationID string) ([]*model.Tag, error) {
	t, err := s.authorize(ctx, actorID, applicationID, model.CapView)
	if err != nil {
		return nil, err
	}
	tags, err := s.tags.ListByApplication(ctx, t.app.ID)
	if err != nil {
		return nil, fmt.Errorf("タグの取得に失敗しました: %w", err)
	}
	return tags, nil
}

// AssignTag は応募にタグを割り当てる。割り当て済みでも成功する。
func (s *Service) AssignTag(ctx context.Context, actorID, applicationID, tagID string) error {
	t, tag, err := s.tagTarget(ctx, actorID, applicationID, tagID)
	if err != nil {
		return err
	}
	created, err := s.tags.Assign(ctx, &model.TagAssignment{
		ApplicationID: t.app.ID,
		TagID:         tag.ID,
		AssignedBy:    actorID,
		CreatedAt:     s.now(),
	})
	if err != nil {
		return fmt.Errorf("タグの割り当てに失敗しました: %w", err)
	}
	if created {
		s.record(ctx, t, actorID, model.ActionTagAdded, fmt.Sprintf("Added tag %s", tag.Name))
	}
	return nil
}

// UnassignTag は応募からタグを外す。割り当てがなくても成功する。
func (s *Service) UnassignTag(ctx context.Context, actorID, applicationID, tagID string) error {
	t, tag, err := s.tagTarget(ctx, actorID, applicationID, tagID)
	if err != nil {
		return err
	}
	removed, err := s.tags.Unassign(ctx, t.app.ID, tag.ID)
	if err != nil {
		return fmt.Errorf("タグの割り当て解除に失敗しました: %w", err)
	}
	if removed {
		s.record(ctx, t, actorID, model.ActionTagRemoved, fmt.Sprintf("Removed tag %s", tag.Name))
	}
	return nil
}

// tagTarget は応募とタグが同じ雇用者スコープに属することを確認する。
func (s *Service) tagTarget(ctx context.Context, actorID, applicationID, tagID string) (*target, *model.Tag, error) {
	t, err := s.authorize(ctx, actorID, applicationID, model.CapReview)
	if err != nil {
		return nil, nil, err
	}
	tag, err := s.tags.FindByID(ctx, tagID)
	if err != nil {
		return nil, nil, fmt.Errorf("タグの取得に失敗しました: %w", err)
	}
	if tag == nil || tag.EmployerID != t.job.OwnerID {
		return nil, nil, model.NewNotFoundError("タグ")
	}
	return t, tag, nil
}
