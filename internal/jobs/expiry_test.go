package jobs_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luggo/internal/domain"
	"luggo/internal/jobs"
)

type fakeExpirer struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
}

func (f *fakeExpirer) ExpireSubscriptions(_ context.Context, now time.Time) ([]domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, now)
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Subscription{{ID: "s1"}, {ID: "s2"}}, nil
}

func (f *fakeExpirer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSweepUsesClock(t *testing.T) {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	exp := &fakeExpirer{}
	job := jobs.Expiry{Expirer: exp, Now: func() time.Time { return at }}
	assert.Equal(t, 2, job.Sweep(context.Background()))
	require.Len(t, exp.calls, 1)
	assert.Equal(t, at, exp.calls[0])

	exp.err = errors.New("locked")
	assert.Equal(t, 0, job.Sweep(context.Background()))
}

func TestRunSweepsOnScheduleUntilCancelled(t *testing.T) {
	exp := &fakeExpirer{}
	job := jobs.Expiry{Expirer: exp, Interval: 10 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.Run(ctx) }()
	require.Eventually(t, func() bool { return exp.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("job did not stop")
	}
}
