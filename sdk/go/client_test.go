package luggosdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luggo/internal/config"
	"luggo/internal/db"
	"luggo/internal/engine"
	"luggo/internal/migrate"
	"luggo/internal/notify"
	"luggo/internal/server"
)

func newAPI(t *testing.T) string {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "luggo.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	e := engine.New(conn, config.Default())
	e.Publisher = notify.Service{Store: e.Repo}
	h, err := server.New(server.Config{Engine: e, Auth: server.AuthConfig{JWTSecret: "sdk-secret"}})
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestClientMarketplaceRoundTrip(t *testing.T) {
	ctx := context.Background()
	base := newAPI(t)
	customer := New(base)
	mover := New(base)

	_, err := customer.Register(ctx, "cust@example.com", "password-cust", "Cust", "customer")
	require.NoError(t, err)
	_, err = mover.Register(ctx, "mover@example.com", "password-mover", "Mover", "executor")
	require.NoError(t, err)

	task, err := customer.CreateTask(ctx, NewTask{Title: "Studio flat", FromAddress: "A", ToAddress: "B", Category: "flat"})
	require.NoError(t, err)
	assert.Equal(t, "active", task.Status)

	bid, err := mover.SubmitBid(ctx, task.ID, 3000, "van included")
	require.NoError(t, err)

	bids, err := customer.Bids(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Empty(t, bids[0].ExecutorEmail, "contacts stay hidden unless the executor opts in")

	inProgress, err := customer.AcceptBid(ctx, bid.ID)
	require.NoError(t, err)
	assert.Equal(t, "in_progress", inProgress.Status)

	_, err = mover.CompleteJob(ctx, task.ID, "done")
	require.NoError(t, err)
	done, err := customer.ConfirmCompletion(ctx, task.ID, true, 4, "fine")
	require.NoError(t, err)
	assert.Equal(t, "completed", done.Status)

	inbox, err := mover.Notifications(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, inbox.Unread)
	marked, err := mover.MarkAllRead(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, marked)

	page, err := customer.Tasks(ctx, "completed", 10, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, task.ID, page.Items[0].ID)
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	ctx := context.Background()
	base := newAPI(t)
	c := New(base)
	_, err := c.Login(ctx, "nobody@example.com", "password-nobody")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid_credentials", apiErr.Code)
}
