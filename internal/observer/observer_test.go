package observer

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testherd/testherd/internal/core"
	"github.com/testherd/testherd/internal/queue"
)

type fakeHeadResolver struct {
	heads []string
	calls int
	err   error
}

func (f *fakeHeadResolver) RemoteHead(context.Context, string, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	i := f.calls
	if i >= len(f.heads) {
		i = len(f.heads) - 1
	}
	f.calls++
	return f.heads[i], nil
}

func newTestPoller(git HeadResolver) *Poller {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPoller(git, "https://example.com/acme/service.git", "main", time.Minute, logger)
}

func TestPollerNotifiesOnHeadChange(t *testing.T) {
	git := &fakeHeadResolver{heads: []string{"aaa111", "aaa111", "bbb222"}}
	p := newTestPoller(git)

	var got []core.CommitNotification
	notify := func(_ context.Context, n core.CommitNotification) error {
		got = append(got, n)
		return nil
	}

	ctx := context.Background()
	p.poll(ctx, notify)
	p.poll(ctx, notify) // same head, quiet
	p.poll(ctx, notify)

	require.Len(t, got, 2)
	assert.Equal(t, "aaa111", got[0].CommitID)
	assert.Equal(t, "bbb222", got[1].CommitID)
	assert.Equal(t, "https://example.com/acme/service.git", got[0].RepoURL)
}

func TestPollerRetriesDeliveryNextTick(t *testing.T) {
	git := &fakeHeadResolver{heads: []string{"aaa111"}}
	p := newTestPoller(git)

	attempts := 0
	notify := func(context.Context, core.CommitNotification) error {
		attempts++
		if attempts == 1 {
			return assert.AnError
		}
		return nil
	}

	ctx := context.Background()
	p.poll(ctx, notify)
	assert.Empty(t, p.lastSHA, "failed delivery must not mark the head seen")

	p.poll(ctx, notify)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "aaa111", p.lastSHA)

	p.poll(ctx, notify)
	assert.Equal(t, 2, attempts, "delivered head should stay quiet")
}

func TestPollerTreatsDuplicateAsDelivered(t *testing.T) {
	git := &fakeHeadResolver{heads: []string{"aaa111"}}
	p := newTestPoller(git)

	attempts := 0
	notify := func(context.Context, core.CommitNotification) error {
		attempts++
		return queue.ErrDuplicateActiveJob
	}

	ctx := context.Background()
	p.poll(ctx, notify)
	p.poll(ctx, notify)

	assert.Equal(t, 1, attempts)
	assert.Equal(t, "aaa111", p.lastSHA)
}

func TestPollerSurvivesResolutionFailure(t *testing.T) {
	git := &fakeHeadResolver{err: assert.AnError}
	p := newTestPoller(git)

	notify := func(context.Context, core.CommitNotification) error {
		t.Fatal("notify should not be called when resolution fails")
		return nil
	}
	p.poll(context.Background(), notify)
	assert.Empty(t, p.lastSHA)
}

func TestPollerRunStopsWithContext(t *testing.T) {
	git := &fakeHeadResolver{heads: []string{"aaa111"}}
	p := newTestPoller(git)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, func(context.Context, core.CommitNotification) error { return nil })
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
}
