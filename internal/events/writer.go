package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"luggo/internal/domain"
)

// Writer appends domain events inside the caller's transaction, so an event row
// exists iff the transition it describes committed.
type Writer struct {
	Now func() time.Time
}

type Payload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload Payload) (domain.Event, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = Payload{}
	}
	evt := domain.Event{
		TS:         now().UTC().Format(time.RFC3339),
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    payload,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return evt, fmt.Errorf("marshal event payload: %w", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		evt.TS, evt.Type, evt.EntityKind, nullable(evt.EntityID), evt.ActorID, string(data))
	if err != nil {
		return evt, fmt.Errorf("append event %s: %w", evtType, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		evt.ID = id
	}
	return evt, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
