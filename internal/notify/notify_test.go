package notify_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luggo/internal/config"
	"luggo/internal/db"
	"luggo/internal/domain"
	"luggo/internal/engine"
	"luggo/internal/migrate"
	"luggo/internal/notify"
)

type fakePusher struct {
	mu     sync.Mutex
	frames map[string][]notify.Frame
}

func (p *fakePusher) Send(userID string, v any) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frames == nil {
		p.frames = map[string][]notify.Frame{}
	}
	p.frames[userID] = append(p.frames[userID], v.(notify.Frame))
	return 1
}

func (p *fakePusher) For(userID string) []notify.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Frame(nil), p.frames[userID]...)
}

type failingStore struct{ calls int }

func (s *failingStore) InsertNotification(context.Context, domain.Notification) error {
	s.calls++
	return errors.New("disk full")
}

func newEngine(t *testing.T) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "luggo.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	return engine.New(conn, config.Default())
}

func register(t *testing.T, eng engine.Engine, name, role string) domain.User {
	t.Helper()
	u, err := eng.RegisterUser(context.Background(), engine.RegisterOptions{
		Email: name + "@example.com", Password: "password-" + name, Name: name, Role: role,
	})
	require.NoError(t, err)
	return u
}

func TestBuildTemplates(t *testing.T) {
	cases := []struct {
		evt      domain.Event
		userID   string
		typ      string
		metadata []string
	}{
		{
			evt: domain.Event{Type: domain.EventBidSubmitted, EntityID: "b1", Payload: map[string]any{
				"taskId": "t1", "taskTitle": "Flat", "customerId": "c1", "executorName": "Ivan", "price": 1500.0,
			}},
			userID: "c1", typ: domain.NotificationNewBid, metadata: []string{"executorName", "price", "taskTitle"},
		},
		{
			evt: domain.Event{Type: domain.EventBidAccepted, EntityID: "b1", Payload: map[string]any{
				"taskId": "t1", "taskTitle": "Flat", "executorId": "e1", "customerName": "Olga", "price": 1500.0,
			}},
			userID: "e1", typ: domain.NotificationBidAccepted, metadata: []string{"customerName", "price", "taskTitle"},
		},
		{
			evt: domain.Event{Type: domain.EventTaskAwaitingConfirmation, EntityID: "t1", Payload: map[string]any{
				"taskTitle": "Flat", "customerId": "c1", "executorName": "Ivan",
			}},
			userID: "c1", typ: domain.NotificationTaskCompleted, metadata: []string{"executorName", "taskTitle"},
		},
		{
			evt: domain.Event{Type: domain.EventTaskCompleted, EntityID: "t1", Payload: map[string]any{
				"taskTitle": "Flat", "executorId": "e1", "customerName": "Olga", "rating": 5,
			}},
			userID: "e1", typ: domain.NotificationTaskCompleted, metadata: []string{"customerName", "rating"},
		},
		{
			evt: domain.Event{Type: domain.EventTaskReworkRequested, EntityID: "t1", Payload: map[string]any{
				"taskTitle": "Flat", "executorId": "e1", "customerName": "Olga", "comment": "boxes left",
			}},
			userID: "e1", typ: domain.NotificationTaskCompleted, metadata: []string{"comment"},
		},
		{
			evt: domain.Event{Type: domain.EventSubscriptionExpired, EntityID: "s1", Payload: map[string]any{
				"userId": "e1", "plan": "basic", "expiresAt": "2024-01-31T00:00:00Z",
			}},
			userID: "e1", typ: domain.NotificationSystem, metadata: []string{"plan"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.evt.Type, func(t *testing.T) {
			n, ok := notify.Build(tc.evt)
			require.True(t, ok)
			assert.Equal(t, tc.userID, n.UserID)
			assert.Equal(t, tc.typ, n.Type)
			assert.NotEmpty(t, n.Title)
			assert.NotEmpty(t, n.Message)
			assert.False(t, n.Read)
			for _, key := range tc.metadata {
				assert.Equal(t, tc.evt.Payload[key], n.Metadata[key], key)
			}
		})
	}

	n, _ := notify.Build(cases[4].evt)
	assert.Contains(t, n.Message, "boxes left")

	_, ok := notify.Build(domain.Event{Type: domain.EventNewsPublished})
	assert.False(t, ok)
	_, ok = notify.Build(domain.Event{Type: domain.EventBidSubmitted, Payload: map[string]any{}})
	assert.False(t, ok, "no recipient")
}

func TestStoreFailureDoesNotFailTransition(t *testing.T) {
	eng := newEngine(t)
	store := &failingStore{}
	eng.Publisher = notify.Service{Store: store}
	ctx := context.Background()

	customer := register(t, eng, "customer", domain.RoleCustomer)
	executor := register(t, eng, "executor", domain.RoleExecutor)
	task, err := eng.CreateTask(ctx, engine.TaskCreateOptions{
		CustomerID: customer.ID, Title: "Office move", FromAddress: "A", ToAddress: "B", Category: domain.CategoryOffice,
	})
	require.NoError(t, err)
	bid, err := eng.SubmitBid(ctx, engine.SubmitBidOptions{TaskID: task.ID, ExecutorID: executor.ID, Price: 700})
	require.NoError(t, err)
	res, err := eng.AcceptBid(ctx, bid.ID, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskInProgress, res.Task.Status)
	assert.Equal(t, 2, store.calls)
}

func TestServiceStoresAndPushes(t *testing.T) {
	eng := newEngine(t)
	pusher := &fakePusher{}
	eng.Publisher = notify.Service{Store: eng.Repo, Pusher: pusher, Now: func() time.Time { return time.Unix(0, 0) }}
	ctx := context.Background()

	customer := register(t, eng, "customer", domain.RoleCustomer)
	executor := register(t, eng, "executor", domain.RoleExecutor)
	task, err := eng.CreateTask(ctx, engine.TaskCreateOptions{
		CustomerID: customer.ID, Title: "Garbage run", FromAddress: "A", ToAddress: "Dump", Category: domain.CategoryGarbage,
	})
	require.NoError(t, err)
	bid, err := eng.SubmitBid(ctx, engine.SubmitBidOptions{TaskID: task.ID, ExecutorID: executor.ID, Price: 300})
	require.NoError(t, err)

	inbox, err := eng.ListNotifications(ctx, customer.ID, false, 10)
	require.NoError(t, err)
	require.Len(t, inbox.Items, 1)
	assert.Equal(t, 1, inbox.Unread)
	n := inbox.Items[0]
	assert.Equal(t, domain.NotificationNewBid, n.Type)
	assert.Equal(t, "bid", n.RelatedType)
	assert.Equal(t, bid.ID, n.RelatedID)
	assert.Equal(t, "executor", n.Metadata["executorName"])
	assert.EqualValues(t, 300, n.Metadata["price"])

	frames := pusher.For(customer.ID)
	require.Len(t, frames, 1)
	assert.Equal(t, "notification", frames[0].Kind)

	// only the owner may touch the entry
	assert.Error(t, eng.MarkNotificationRead(ctx, n.ID, executor.ID))
	assert.Error(t, eng.DeleteNotification(ctx, n.ID, executor.ID))
	require.NoError(t, eng.MarkNotificationRead(ctx, n.ID, customer.ID))
	inbox, err = eng.ListNotifications(ctx, customer.ID, true, 10)
	require.NoError(t, err)
	assert.Empty(t, inbox.Items)
	assert.Equal(t, 0, inbox.Unread)
	require.NoError(t, eng.DeleteNotification(ctx, n.ID, customer.ID))

	_, err = eng.SendMessage(ctx, engine.MessageOptions{TaskID: task.ID, SenderID: customer.ID, RecipientID: executor.ID, Body: "When can you come?"})
	require.NoError(t, err)
	frames = pusher.For(executor.ID)
	require.Len(t, frames, 1)
	assert.Equal(t, "message", frames[0].Kind)
	msg, ok := frames[0].Data.(domain.Message)
	require.True(t, ok)
	assert.Equal(t, "When can you come?", msg.Body)
}

type countingHandler struct {
	mu   sync.Mutex
	seen []string
}

func (h *countingHandler) Handle(_ context.Context, evt domain.Event) *domain.Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, evt.Type)
	return nil
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func TestDispatcherDrainsOnShutdown(t *testing.T) {
	h := &countingHandler{}
	d := notify.NewDispatcher(h, 8, nil)
	for i := 0; i < 5; i++ {
		d.Publish(context.Background(), domain.Event{ID: int64(i), Type: domain.EventBidSubmitted})
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	require.Eventually(t, func() bool { return h.count() == 5 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, d.Pending())
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	h := &countingHandler{}
	d := notify.NewDispatcher(h, 2, nil)
	for i := 0; i < 5; i++ {
		d.Publish(context.Background(), domain.Event{ID: int64(i), Type: domain.EventBidAccepted})
	}
	assert.Equal(t, 2, d.Pending())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))
	assert.Equal(t, 2, h.count())
}
