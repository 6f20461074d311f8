package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"luggo/internal/domain"
	"luggo/internal/metrics"
)

// Store persists inbox entries.
type Store interface {
	InsertNotification(ctx context.Context, n domain.Notification) error
}

// Pusher delivers a frame to a user's live connections and reports how many
// received it.
type Pusher interface {
	Send(userID string, v any) int
}

// Frame is what live connections receive.
type Frame struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

// Service creates one notification per lifecycle event and pushes it to the
// recipient. Failures are logged and counted, never returned to the producer.
type Service struct {
	Store  Store
	Pusher Pusher
	Logger *slog.Logger
	Now    func() time.Time
}

func (s Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Publish handles evt synchronously.
func (s Service) Publish(ctx context.Context, evt domain.Event) {
	s.Handle(ctx, evt)
}

// Handle builds, stores and pushes the notification for evt. The returned
// notification is nil when the event notifies nobody or storing failed.
func (s Service) Handle(ctx context.Context, evt domain.Event) *domain.Notification {
	if evt.Type == domain.EventMessageSent {
		s.pushMessage(evt)
		return nil
	}
	n, ok := Build(evt)
	if !ok {
		return nil
	}
	n.ID = uuid.NewString()
	n.CreatedAt = s.now().UTC().Format(time.RFC3339)
	if s.Store != nil {
		if err := s.Store.InsertNotification(ctx, n); err != nil {
			metrics.Notifications.WithLabelValues(n.Type, "error").Inc()
			s.logger().Warn("notification dropped", "event", evt.Type, "event_id", evt.ID, "user_id", n.UserID, "error", err)
			return nil
		}
	}
	metrics.Notifications.WithLabelValues(n.Type, "stored").Inc()
	if s.Pusher != nil {
		if delivered := s.Pusher.Send(n.UserID, Frame{Kind: "notification", Data: n}); delivered > 0 {
			s.logger().Debug("notification pushed", "user_id", n.UserID, "connections", delivered)
		}
	}
	return &n
}

func (s Service) pushMessage(evt domain.Event) {
	if s.Pusher == nil {
		return
	}
	recipient := str(evt.Payload, "recipientId")
	if recipient == "" {
		return
	}
	s.Pusher.Send(recipient, Frame{Kind: "message", Data: domain.Message{
		ID:          evt.EntityID,
		TaskID:      str(evt.Payload, "taskId"),
		SenderID:    evt.ActorID,
		RecipientID: recipient,
		Body:        str(evt.Payload, "body"),
		CreatedAt:   str(evt.Payload, "createdAt"),
	}})
}
