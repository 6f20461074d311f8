package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"luggo/internal/domain"
)

const bidColumns = `id,task_id,executor_id,price,COALESCE(comment,''),status,COALESCE(completion_note,''),created_at,updated_at`

func scanBid(row rowScanner) (domain.Bid, error) {
	var b domain.Bid
	err := row.Scan(&b.ID, &b.TaskID, &b.ExecutorID, &b.Price, &b.Comment, &b.Status, &b.CompletionNote, &b.CreatedAt, &b.UpdatedAt)
	return b, classify(err)
}

func (r Repo) InsertBid(ctx context.Context, tx *sql.Tx, b domain.Bid) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO bids(id,task_id,executor_id,price,comment,status,completion_note,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		b.ID, b.TaskID, b.ExecutorID, b.Price, nullable(b.Comment), b.Status, nullable(b.CompletionNote), b.CreatedAt, b.UpdatedAt)
	return classify(err)
}

func (r Repo) GetBid(ctx context.Context, id string) (domain.Bid, error) {
	return r.GetBidTx(ctx, nil, id)
}

func (r Repo) GetBidTx(ctx context.Context, tx *sql.Tx, id string) (domain.Bid, error) {
	return scanBid(r.q(tx).QueryRowContext(ctx, `SELECT `+bidColumns+` FROM bids WHERE id=?`, id))
}

// FindBid returns the bid an executor placed on a task.
func (r Repo) FindBid(ctx context.Context, tx *sql.Tx, taskID, executorID string) (domain.Bid, error) {
	return scanBid(r.q(tx).QueryRowContext(ctx, `SELECT `+bidColumns+` FROM bids WHERE task_id=? AND executor_id=?`, taskID, executorID))
}

// SettleBids marks bidID accepted and every sibling on the task rejected.
func (r Repo) SettleBids(ctx context.Context, tx *sql.Tx, taskID, bidID, now string) error {
	// Siblings first so the partial unique index never sees two accepted rows.
	if _, err := r.q(tx).ExecContext(ctx, `UPDATE bids SET status=?, updated_at=? WHERE task_id=? AND id<>?`,
		domain.BidRejected, now, taskID, bidID); err != nil {
		return classify(err)
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE bids SET status=?, updated_at=? WHERE id=? AND task_id=?`,
		domain.BidAccepted, now, bidID, taskID)
	return affectedOrNotFound(res, err)
}

// BidPatch carries optional bid fields.
type BidPatch struct {
	Price          *float64
	Comment        *string
	CompletionNote *string
}

// UpdateBid applies the patch unless the bid has been accepted in the meantime,
// unless allowAccepted is set.
func (r Repo) UpdateBid(ctx context.Context, tx *sql.Tx, id string, p BidPatch, now string, allowAccepted bool) (bool, error) {
	var (
		fields []string
		args   []any
	)
	if p.Price != nil {
		fields = append(fields, "price=?")
		args = append(args, *p.Price)
	}
	if p.Comment != nil {
		fields = append(fields, "comment=?")
		args = append(args, nullable(*p.Comment))
	}
	if p.CompletionNote != nil {
		fields = append(fields, "completion_note=?")
		args = append(args, nullable(*p.CompletionNote))
	}
	fields = append(fields, "updated_at=?")
	args = append(args, now, id)
	query := fmt.Sprintf(`UPDATE bids SET %s WHERE id=?`, strings.Join(fields, ","))
	if !allowAccepted {
		query += ` AND status<>?`
		args = append(args, domain.BidAccepted)
	}
	res, err := r.q(tx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, classify(err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

const bidViewQuery = `SELECT b.id,b.task_id,b.executor_id,b.price,COALESCE(b.comment,''),b.status,COALESCE(b.completion_note,''),b.created_at,b.updated_at,
u.name,u.rating,u.email,COALESCE(u.phone,''),u.show_contacts
FROM bids b JOIN users u ON u.id=b.executor_id`

func scanBidView(row rowScanner) (domain.BidView, error) {
	var v domain.BidView
	var show int
	err := row.Scan(&v.ID, &v.TaskID, &v.ExecutorID, &v.Price, &v.Comment, &v.Status, &v.CompletionNote, &v.CreatedAt, &v.UpdatedAt,
		&v.ExecutorName, &v.ExecutorRating, &v.ExecutorEmail, &v.ExecutorPhone, &show)
	v.ShowContacts = show == 1
	return v, classify(err)
}

// ListTaskBids returns bids on a task newest first with executor profiles.
func (r Repo) ListTaskBids(ctx context.Context, taskID string) ([]domain.BidView, error) {
	return r.listBidViews(ctx, bidViewQuery+` WHERE b.task_id=? ORDER BY b.created_at DESC, b.rowid DESC`, taskID)
}

// ListExecutorBids returns an executor's bids newest first.
func (r Repo) ListExecutorBids(ctx context.Context, executorID string) ([]domain.BidView, error) {
	return r.listBidViews(ctx, bidViewQuery+` WHERE b.executor_id=? ORDER BY b.created_at DESC, b.rowid DESC`, executorID)
}

func (r Repo) listBidViews(ctx context.Context, query string, args ...any) ([]domain.BidView, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BidView
	for rows.Next() {
		v, err := scanBidView(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// CountAcceptedBids is used to assert the one-accepted-bid invariant.
func (r Repo) CountAcceptedBids(ctx context.Context, taskID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM bids WHERE task_id=? AND status=?`, taskID, domain.BidAccepted).Scan(&n)
	return n, err
}
