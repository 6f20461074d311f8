package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"luggo/internal/domain"
)

const userColumns = `id,email,password_hash,name,COALESCE(phone,''),role,show_contacts,rating,reviews_count,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	var show int
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Phone, &u.Role, &show, &u.Rating, &u.ReviewsCount, &u.CreatedAt)
	if err != nil {
		return u, classify(err)
	}
	u.ShowContacts = show == 1
	return u, nil
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO users(id,email,password_hash,name,phone,role,show_contacts,rating,reviews_count,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		u.ID, strings.ToLower(u.Email), u.PasswordHash, u.Name, nullable(u.Phone), u.Role, boolInt(u.ShowContacts), u.Rating, u.ReviewsCount, u.CreatedAt)
	return classify(err)
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return r.GetUserTx(ctx, nil, id)
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	return scanUser(r.q(tx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, strings.ToLower(strings.TrimSpace(email))))
}

func (r Repo) ListUsers(ctx context.Context, role string) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, role)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// UserPatch carries optional profile fields.
type UserPatch struct {
	Name         *string
	Phone        *string
	ShowContacts *bool
}

func (r Repo) UpdateUser(ctx context.Context, id string, p UserPatch) error {
	var (
		fields []string
		args   []any
	)
	if p.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *p.Name)
	}
	if p.Phone != nil {
		fields = append(fields, "phone=?")
		args = append(args, nullable(*p.Phone))
	}
	if p.ShowContacts != nil {
		fields = append(fields, "show_contacts=?")
		args = append(args, boolInt(*p.ShowContacts))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE users SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	return affectedOrNotFound(res, err)
}

// RecomputeRating sets the user's rating to the mean of every review they received.
func (r Repo) RecomputeRating(ctx context.Context, tx *sql.Tx, userID string) (float64, int, error) {
	var (
		avg   sql.NullFloat64
		count int
	)
	if err := r.q(tx).QueryRowContext(ctx, `SELECT AVG(rating), COUNT(*) FROM reviews WHERE target_id=?`, userID).Scan(&avg, &count); err != nil {
		return 0, 0, err
	}
	mean := 0.0
	if avg.Valid {
		mean = avg.Float64
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE users SET rating=?, reviews_count=? WHERE id=?`, mean, count, userID)
	if err := affectedOrNotFound(res, err); err != nil {
		return 0, 0, err
	}
	return mean, count, nil
}
