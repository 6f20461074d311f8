package repo

import (
	"context"
	"database/sql"

	"luggo/internal/domain"
)

func (r Repo) InsertReview(ctx context.Context, tx *sql.Tx, rv domain.Review) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO reviews(id,task_id,author_id,target_id,rating,comment,created_at) VALUES (?,?,?,?,?,?,?)`,
		rv.ID, rv.TaskID, rv.AuthorID, rv.TargetID, rv.Rating, nullable(rv.Comment), rv.CreatedAt)
	return classify(err)
}

// ReviewExists reports whether author already reviewed target for the task.
func (r Repo) ReviewExists(ctx context.Context, tx *sql.Tx, taskID, authorID, targetID string) (bool, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT count(*) FROM reviews WHERE task_id=? AND author_id=? AND target_id=?`, taskID, authorID, targetID).Scan(&n)
	return n > 0, err
}

func (r Repo) ListReviews(ctx context.Context, targetID string) ([]domain.Review, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,author_id,target_id,rating,COALESCE(comment,''),created_at FROM reviews WHERE target_id=? ORDER BY created_at DESC, rowid DESC`, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Review
	for rows.Next() {
		var rv domain.Review
		if err := rows.Scan(&rv.ID, &rv.TaskID, &rv.AuthorID, &rv.TargetID, &rv.Rating, &rv.Comment, &rv.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rv)
	}
	return res, rows.Err()
}

func (r Repo) ListTaskReviews(ctx context.Context, taskID string) ([]domain.Review, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,author_id,target_id,rating,COALESCE(comment,''),created_at FROM reviews WHERE task_id=? ORDER BY rowid`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Review
	for rows.Next() {
		var rv domain.Review
		if err := rows.Scan(&rv.ID, &rv.TaskID, &rv.AuthorID, &rv.TargetID, &rv.Rating, &rv.Comment, &rv.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rv)
	}
	return res, rows.Err()
}
