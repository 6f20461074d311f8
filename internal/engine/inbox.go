package engine

import (
	"context"
	"errors"
	"strings"

	"luggo/internal/domain"
	"luggo/internal/engine/auth"
	"luggo/internal/events"
	"luggo/internal/repo"
)

// Inbox is a page of notifications plus the unread total.
type Inbox struct {
	Items  []domain.Notification `json:"items"`
	Unread int                   `json:"unread"`
}

func (e Engine) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) (Inbox, error) {
	items, err := e.Repo.ListNotifications(ctx, userID, unreadOnly, limit)
	if err != nil {
		return Inbox{}, err
	}
	unread, err := e.Repo.CountUnread(ctx, userID)
	if err != nil {
		return Inbox{}, err
	}
	if items == nil {
		items = []domain.Notification{}
	}
	return Inbox{Items: items, Unread: unread}, nil
}

// MarkNotificationRead marks one of the user's notifications read. Another
// user's notification is reported as not found.
func (e Engine) MarkNotificationRead(ctx context.Context, id, userID string) error {
	return lookup(e.Repo.MarkNotificationRead(ctx, id, userID), "notification", id)
}

func (e Engine) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	return e.Repo.MarkAllNotificationsRead(ctx, userID)
}

func (e Engine) DeleteNotification(ctx context.Context, id, userID string) error {
	return lookup(e.Repo.DeleteNotification(ctx, id, userID), "notification", id)
}

// MessageOptions are parameters for a direct message about a task.
type MessageOptions struct {
	TaskID      string `json:"task_id" validate:"required"`
	SenderID    string `json:"sender_id" validate:"required"`
	RecipientID string `json:"recipient_id" validate:"required,nefield=SenderID"`
	Body        string `json:"body" validate:"required"`
}

// SendMessage stores a message between the task's customer and an executor who
// bid on it.
func (e Engine) SendMessage(ctx context.Context, opts MessageOptions) (m domain.Message, err error) {
	defer func() { e.observe("send_message", err) }()
	opts.Body = strings.TrimSpace(opts.Body)
	if err := validateStruct(opts); err != nil {
		return domain.Message{}, err
	}
	if err := checkLength("body", opts.Body, e.Config.Marketplace.MaxMessageLength); err != nil {
		return domain.Message{}, err
	}
	t, err := e.GetTask(ctx, opts.TaskID)
	if err != nil {
		return domain.Message{}, err
	}
	if _, err := e.GetUser(ctx, opts.RecipientID); err != nil {
		return domain.Message{}, err
	}
	var executorID string
	switch t.CustomerID {
	case opts.SenderID:
		executorID = opts.RecipientID
	case opts.RecipientID:
		executorID = opts.SenderID
	default:
		return domain.Message{}, auth.Forbidden("send message", "messages must involve the task's customer")
	}
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return domain.Message{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.FindBid(ctx, tx, t.ID, executorID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Message{}, auth.Forbidden("send message", "executor has no bid on the task")
		}
		return domain.Message{}, err
	}
	m = domain.Message{
		ID:          newID(),
		TaskID:      t.ID,
		SenderID:    opts.SenderID,
		RecipientID: opts.RecipientID,
		Body:        opts.Body,
		CreatedAt:   e.stamp(),
	}
	if err := e.Repo.InsertMessage(ctx, tx, m); err != nil {
		return domain.Message{}, err
	}
	evt, err := e.appendEvent(ctx, tx, domain.EventMessageSent, "message", m.ID, m.SenderID, events.Payload{
		"taskId":      m.TaskID,
		"recipientId": m.RecipientID,
		"body":        m.Body,
		"createdAt":   m.CreatedAt,
	})
	if err != nil {
		return domain.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, err
	}
	e.publish(ctx, evt)
	return m, nil
}

// ListMessages returns the part of a task's thread the user took part in.
func (e Engine) ListMessages(ctx context.Context, taskID, userID string) ([]domain.Message, error) {
	if _, err := e.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return e.Repo.ListMessages(ctx, taskID, userID)
}
