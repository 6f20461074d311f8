package engine

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"luggo/internal/config"
	"luggo/internal/domain"
	"luggo/internal/events"
	"luggo/internal/metrics"
	"luggo/internal/repo"
)

// Publisher receives domain events after the transition that produced them has
// committed. Implementations must not block the caller for long and must not
// report failures back; the transition has already happened.
type Publisher interface {
	Publish(ctx context.Context, evt domain.Event)
}

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Publisher Publisher
	Logger    *slog.Logger
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Config: cfg,
		Logger: slog.Default(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func newID() string {
	return uuid.NewString()
}

// appendEvent writes the domain event inside tx using the engine clock.
func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload events.Payload) (domain.Event, error) {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload)
}

// publish hands committed events to the publisher. It never fails the caller.
func (e Engine) publish(ctx context.Context, evts ...domain.Event) {
	if e.Publisher == nil {
		return
	}
	for _, evt := range evts {
		e.Publisher.Publish(context.WithoutCancel(ctx), evt)
	}
}

// observe records the outcome of a lifecycle operation.
func (e Engine) observe(op string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case IsCallerError(err):
		result = "rejected"
	default:
		result = "error"
		e.logger().Error("lifecycle operation failed", "op", op, "error", err)
	}
	metrics.Transitions.WithLabelValues(op, result).Inc()
}

// MarketplaceStats summarises task counts by status.
func (e Engine) MarketplaceStats(ctx context.Context) (map[string]int, error) {
	counts, err := e.Repo.CountTasksByStatus(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range []string{domain.TaskActive, domain.TaskInProgress, domain.TaskAwaitingConfirmation, domain.TaskCompleted, domain.TaskCancelled} {
		if _, ok := counts[s]; !ok {
			counts[s] = 0
		}
	}
	return counts, nil
}

// EventLog returns recent domain events for an entity (or all, when empty).
func (e Engine) EventLog(ctx context.Context, limit int, entityKind, entityID string) ([]domain.Event, error) {
	if entityKind == "" && entityID != "" {
		return nil, invalid("entity_kind", "required with entity id")
	}
	return e.Repo.LatestEvents(ctx, limit, entityKind, entityID)
}
