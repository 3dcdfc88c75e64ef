package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/repository"
)

const (
	defaultInboxLimit = 50
	maxInboxLimit     = 100
)

// Inbox は受信者本人のアプリ内通知を扱う。
type Inbox struct {
	notifications repository.NotificationRepository
}

// NewInbox はInboxを生成する。
func NewInbox(notifications repository.NotificationRepository) *Inbox {
	return &Inbox{notifications: notifications}
}

// List は新しい順に通知を返す。limitは1〜100に丸める。
func (i *Inbox) List(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]*model.Notification, error) {
	if limit <= 0 {
		limit = defaultInboxLimit
	}
	if limit > maxInboxLimit {
		limit = maxInboxLimit
	}
	list, err := i.notifications.ListByRecipient(ctx, recipientID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("通知の取得に失敗しました: %w", err)
	}
	return list, nil
}

// UnreadCount は未読件数を返す。
func (i *Inbox) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	n, err := i.notifications.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("未読件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// MarkRead は通知を既読にする。他人の通知はNOT_FOUNDになる。
func (i *Inbox) MarkRead(ctx context.Context, recipientID, id string) error {
	err := i.notifications.MarkRead(ctx, recipientID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewNotFoundError("通知")
	}
	if err != nil {
		return fmt.Errorf("通知の更新に失敗しました: %w", err)
	}
	return nil
}

// MarkAllRead は全ての未読通知を既読にし、更新件数を返す。
func (i *Inbox) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	n, err := i.notifications.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("通知の更新に失敗しました: %w", err)
	}
	return n, nil
}
