package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"luggo/internal/domain"
)

func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) error {
	var meta any
	if len(n.Metadata) > 0 {
		b, err := json.Marshal(n.Metadata)
		if err != nil {
			return err
		}
		meta = string(b)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(id,user_id,type,title,message,read,link,related_type,related_id,metadata_json,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, boolInt(n.Read), nullable(n.Link), nullable(n.RelatedType), nullable(n.RelatedID), meta, n.CreatedAt)
	return classify(err)
}

// ListNotifications returns a user's inbox newest first.
func (r Repo) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	query := `SELECT id,user_id,type,title,message,read,COALESCE(link,''),COALESCE(related_type,''),COALESCE(related_id,''),metadata_json,created_at
FROM notifications WHERE user_id=?`
	args := []any{userID}
	if unreadOnly {
		query += ` AND read=0`
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, normalizeLimit(limit))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var (
			n    domain.Notification
			read int
			meta sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &read, &n.Link, &n.RelatedType, &n.RelatedID, &meta, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Read = read == 1
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &n.Metadata); err != nil {
				return nil, err
			}
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM notifications WHERE user_id=? AND read=0`, userID).Scan(&n)
	return n, err
}

// MarkNotificationRead flips the read flag of a notification owned by userID.
func (r Repo) MarkNotificationRead(ctx context.Context, id, userID string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE id=? AND user_id=?`, id, userID)
	return affectedOrNotFound(res, err)
}

func (r Repo) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE user_id=? AND read=0`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) DeleteNotification(ctx context.Context, id, userID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM notifications WHERE id=? AND user_id=?`, id, userID)
	return affectedOrNotFound(res, err)
}
