package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"postforge/internal/brand"
)

// InsertNotification records a user-facing event. Notifications never mutate
// except the read flag, and are pruned only by ClearNotifications.
func (s *Store) InsertNotification(ctx context.Context, n brand.Notification) error {
	if n.ID == "" {
		return errors.New("insert notification: id required")
	}
	created := n.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, kind, title, message, source_url, created_at, read)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID,
		string(n.Kind),
		n.Title,
		n.Message,
		n.SourceURL,
		formatTime(created),
		boolToInt(n.Read),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns all notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context) ([]brand.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, kind, title, message, source_url, created_at, read FROM notifications ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []brand.Notification
	for rows.Next() {
		var (
			n          brand.Notification
			kind       string
			createdRaw sql.NullString
			read       int64
		)
		if err := rows.Scan(&n.ID, &kind, &n.Title, &n.Message, &n.SourceURL, &createdRaw, &read); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Kind = brand.NotificationKind(kind)
		n.CreatedAt = parseTime(createdRaw)
		n.Read = read != 0
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// MarkNotificationRead flips the read flag.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE notifications SET read = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification read: rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearNotifications removes every notification.
func (s *Store) ClearNotifications(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM notifications"); err != nil {
		return fmt.Errorf("clear notifications: %w", err)
	}
	return nil
}
