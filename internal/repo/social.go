package repo

import (
	"context"
	"database/sql"

	"luggo/internal/domain"
)

func (r Repo) InsertMessage(ctx context.Context, tx *sql.Tx, m domain.Message) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO messages(id,task_id,sender_id,recipient_id,body,created_at) VALUES (?,?,?,?,?,?)`,
		m.ID, m.TaskID, m.SenderID, m.RecipientID, m.Body, m.CreatedAt)
	return classify(err)
}

// ListMessages returns the messages of a task that userID sent or received, oldest first.
func (r Repo) ListMessages(ctx context.Context, taskID, userID string) ([]domain.Message, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,sender_id,recipient_id,body,created_at FROM messages
WHERE task_id=? AND (sender_id=? OR recipient_id=?) ORDER BY created_at, rowid`, taskID, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.TaskID, &m.SenderID, &m.RecipientID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) InsertNews(ctx context.Context, tx *sql.Tx, n domain.News) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO news(id,title,body,author_id,created_at) VALUES (?,?,?,?,?)`,
		n.ID, n.Title, n.Body, n.AuthorID, n.CreatedAt)
	return classify(err)
}

func (r Repo) ListNews(ctx context.Context, limit int) ([]domain.News, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,title,body,author_id,created_at FROM news ORDER BY created_at DESC, rowid DESC LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.News
	for rows.Next() {
		var n domain.News
		if err := rows.Scan(&n.ID, &n.Title, &n.Body, &n.AuthorID, &n.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) DeleteNews(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM news WHERE id=?`, id)
	return affectedOrNotFound(res, err)
}

func (r Repo) InsertSubscription(ctx context.Context, tx *sql.Tx, s domain.Subscription) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO subscriptions(id,user_id,plan,status,started_at,expires_at) VALUES (?,?,?,?,?,?)`,
		s.ID, s.UserID, s.Plan, s.Status, s.StartedAt, s.ExpiresAt)
	return classify(err)
}

// ActiveSubscription returns the latest-expiring active subscription that is
// still valid at now.
func (r Repo) ActiveSubscription(ctx context.Context, tx *sql.Tx, userID, now string) (domain.Subscription, error) {
	var s domain.Subscription
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,user_id,plan,status,started_at,expires_at FROM subscriptions
WHERE user_id=? AND status=? AND expires_at>? ORDER BY expires_at DESC LIMIT 1`, userID, domain.SubscriptionActive, now).
		Scan(&s.ID, &s.UserID, &s.Plan, &s.Status, &s.StartedAt, &s.ExpiresAt)
	return s, classify(err)
}

// OverdueSubscriptions lists active subscriptions whose expiry is at or before now.
func (r Repo) OverdueSubscriptions(ctx context.Context, tx *sql.Tx, now string) ([]domain.Subscription, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id,user_id,plan,status,started_at,expires_at FROM subscriptions
WHERE status=? AND expires_at<=? ORDER BY expires_at`, domain.SubscriptionActive, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Subscription
	for rows.Next() {
		var s domain.Subscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.Plan, &s.Status, &s.StartedAt, &s.ExpiresAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) ExpireSubscription(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE subscriptions SET status=? WHERE id=? AND status=?`, domain.SubscriptionExpired, id, domain.SubscriptionActive)
	return affectedOrNotFound(res, err)
}
