package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/jobboard/internal/model"
)

// PostgresNotificationRepo はPostgreSQLを使用したアプリ内通知のリポジトリ。
type PostgresNotificationRepo struct {
	db *sql.DB
}

// NewPostgresNotificationRepo はPostgresNotificationRepoを生成する。
func NewPostgresNotificationRepo(db *sql.DB) *PostgresNotificationRepo {
	return &PostgresNotificationRepo{db: db}
}

func (r *PostgresNotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, recipient_id, type, title, message, link, is_read, application_id, job_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		n.ID, n.RecipientID, n.Type, n.Title, n.Message, n.Link, n.IsRead,
		nullString(n.ApplicationID), nullString(n.JobID), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListByRecipient は受信者の通知を新しい順に最大limit件返す。
func (r *PostgresNotificationRepo) ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]*model.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, recipient_id, type, title, message, link, is_read, application_id, job_id, created_at
		 FROM notifications
		 WHERE recipient_id = $1 AND (NOT $2 OR NOT is_read)
		 ORDER BY created_at DESC
		 LIMIT $3`,
		recipientID, unreadOnly, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var list []*model.Notification
	for rows.Next() {
		n := &model.Notification{}
		var appID, jobID sql.NullString
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Message, &n.Link,
			&n.IsRead, &appID, &jobID, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.ApplicationID = stringPtr(appID)
		n.JobID = stringPtr(jobID)
		list = append(list, n)
	}
	return list, rows.Err()
}

// MarkRead は受信者本人の通知を既読にする。他人の通知はErrNotFoundになる。
func (r *PostgresNotificationRepo) MarkRead(ctx context.Context, recipientID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return checkAffected(result)
}

func (r *PostgresNotificationRepo) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE recipient_id = $1 AND NOT is_read`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return result.RowsAffected()
}

func (r *PostgresNotificationRepo) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND NOT is_read`, recipientID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// PostgresMessageRepo はPostgreSQLを使用した応募メッセージのリポジトリ。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

func (r *PostgresMessageRepo) Create(ctx context.Context, m *model.Message) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, application_id, sender_id, recipient_id, content, is_read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ApplicationID, m.SenderID, m.RecipientID, m.Content, m.IsRead, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListByApplication はスレッドのメッセージを古い順に返す。
func (r *PostgresMessageRepo) ListByApplication(ctx context.Context, applicationID string) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, application_id, sender_id, recipient_id, content, is_read, created_at
		 FROM messages WHERE application_id = $1 ORDER BY created_at, id`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		m := &model.Message{}
		if err := rows.Scan(&m.ID, &m.ApplicationID, &m.SenderID, &m.RecipientID,
			&m.Content, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkReadForRecipient はスレッド内で受信者宛ての未読メッセージを既読にする。
func (r *PostgresMessageRepo) MarkReadForRecipient(ctx context.Context, applicationID, recipientID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read = TRUE
		 WHERE application_id = $1 AND recipient_id = $2 AND NOT is_read`,
		applicationID, recipientID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return result.RowsAffected()
}

var (
	_ NotificationRepository = (*PostgresNotificationRepo)(nil)
	_ MessageRepository      = (*PostgresMessageRepo)(nil)
)
