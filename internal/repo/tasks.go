package repo

import (
	"context"
	"database/sql"
	"strings"

	"luggo/internal/domain"
)

const taskColumns = `id,title,COALESCE(description,''),from_address,to_address,COALESCE(service_date,''),category,status,customer_id,accepted_bid_id,created_at,updated_at`

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var accepted sql.NullString
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.FromAddress, &t.ToAddress, &t.ServiceDate, &t.Category, &t.Status, &t.CustomerID, &accepted, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, classify(err)
	}
	if accepted.Valid {
		t.AcceptedBidID = &accepted.String
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO tasks(id,title,description,from_address,to_address,service_date,category,status,customer_id,accepted_bid_id,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), t.FromAddress, t.ToAddress, nullable(t.ServiceDate), t.Category, t.Status, t.CustomerID, t.AcceptedBidID, t.CreatedAt, t.UpdatedAt)
	return classify(err)
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return r.GetTaskTx(ctx, nil, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(r.q(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

// TransitionTask moves a task from one status to another only if it is still in
// the expected status. It returns false when another writer got there first.
func (r Repo) TransitionTask(ctx context.Context, tx *sql.Tx, id, from, to, now string) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=? AND status=?`, to, now, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// AcceptTaskBid moves an active task to in_progress and records the accepted bid.
func (r Repo) AcceptTaskBid(ctx context.Context, tx *sql.Tx, taskID, bidID, now string) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE tasks SET status=?, accepted_bid_id=?, updated_at=? WHERE id=? AND status=?`,
		domain.TaskInProgress, bidID, now, taskID, domain.TaskActive)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	return affectedOrNotFound(res, err)
}

type TaskFilters struct {
	Status     string
	Category   string
	CustomerID string
	Limit      int
	Cursor     Cursor
}

// ListTasks returns tasks newest first using keyset pagination.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var (
		clauses []string
		args    []any
	)
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.CustomerID != "" {
		clauses = append(clauses, "customer_id=?")
		args = append(args, f.CustomerID)
	}
	if !f.Cursor.empty() {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.Cursor.CreatedAt, f.Cursor.CreatedAt, f.Cursor.ID)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, normalizeLimit(f.Limit))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// CountTasksByStatus summarises the marketplace for the CLI.
func (r Repo) CountTasksByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		res[status] = n
	}
	return res, rows.Err()
}
