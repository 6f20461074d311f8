package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"luggo/internal/domain"
)

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var (
			e        domain.Event
			entityID sql.NullString
			payload  string
		)
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		e.EntityID = entityID.String
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
				return nil, err
			}
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns up to limit events with id greater than cursor, oldest first.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, types []string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events WHERE id>?`
	args := []any{cursor}
	if len(types) > 0 {
		query += ` AND type IN (?` + strings.Repeat(",?", len(types)-1) + `)`
		for _, t := range types {
			args = append(args, t)
		}
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, normalizeLimit(limit))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// LatestEvents returns the newest events, optionally filtered by entity.
func (r Repo) LatestEvents(ctx context.Context, limit int, entityKind, entityID string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events`
	var (
		clauses []string
		args    []any
	)
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, normalizeLimit(limit))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}
