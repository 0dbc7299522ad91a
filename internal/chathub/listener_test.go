package chathub_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chatcall/backend/internal/chathub"
	"chatcall/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() chathub.Options {
	opts := chathub.DefaultOptions()
	opts.Interval = 5 * time.Millisecond
	return opts
}

func fixed(msg *models.Message) chathub.FetchFunc {
	return func(context.Context) (*models.Message, error) { return msg, nil }
}

// recorder collects delivered messages.
type recorder struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (r *recorder) handle(m models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

// TestListener_DeliversNewestMessage verifies the handler receives the fetched message.
func TestListener_DeliversNewestMessage(t *testing.T) {
	// Arrange
	got := make(chan models.Message, 1)
	msg := &models.Message{ID: "m1", Body: "hi"}

	// Act
	l := chathub.Start("chat", fixed(msg), func(m models.Message) {
		select {
		case got <- m:
		default:
		}
	}, testOptions())
	defer l.Cancel()

	// Assert
	select {
	case m := <-got:
		assert.Equal(t, "m1", m.ID)
	case <-time.After(time.Second):
		t.Fatal("message was not delivered")
	}
}

// TestListener_EmptyChatDeliversNothing verifies nil fetch results are skipped.
func TestListener_EmptyChatDeliversNothing(t *testing.T) {
	var rec recorder
	var polls atomic.Int32
	l := chathub.Start("chat", func(context.Context) (*models.Message, error) {
		polls.Add(1)
		return nil, nil
	}, rec.handle, testOptions())

	require.Eventually(t, func() bool { return polls.Load() >= 3 }, time.Second, time.Millisecond)
	l.Cancel()
	assert.Zero(t, rec.count())
}

func TestListener_Deduplication(t *testing.T) {
	msg := &models.Message{ID: "same"}

	t.Run("on", func(t *testing.T) {
		var rec recorder
		var polls atomic.Int32
		l := chathub.Start("chat", func(ctx context.Context) (*models.Message, error) {
			polls.Add(1)
			return msg, nil
		}, rec.handle, testOptions())

		require.Eventually(t, func() bool { return polls.Load() >= 5 }, time.Second, time.Millisecond)
		l.Cancel()
		assert.Equal(t, 1, rec.count(), "an unchanged newest message is delivered once")
	})

	t.Run("off", func(t *testing.T) {
		var rec recorder
		opts := testOptions()
		opts.Deduplicate = false
		l := chathub.Start("chat", fixed(msg), rec.handle, opts)

		require.Eventually(t, func() bool { return rec.count() >= 3 }, time.Second, time.Millisecond)
		l.Cancel()
	})
}

// TestListener_CancelDuringFetch verifies a fetch that completes after Cancel
// never reaches the handler.
func TestListener_CancelDuringFetch(t *testing.T) {
	// Arrange
	var rec recorder
	entered := make(chan struct{})
	release := make(chan struct{})
	var sawCancel atomic.Bool

	l := chathub.Start("chat", func(ctx context.Context) (*models.Message, error) {
		close(entered)
		<-release
		sawCancel.Store(ctx.Err() != nil)
		return &models.Message{ID: "late"}, nil
	}, rec.handle, testOptions())

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("fetch never started")
	}

	// Act
	l.Cancel()
	close(release)

	// Assert
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
	assert.Zero(t, rec.count(), "handler must not run after Cancel returned")
	assert.True(t, sawCancel.Load(), "fetch context should be canceled")
}

func TestListener_CancelFromHandler(t *testing.T) {
	var l *chathub.Listener
	var calls atomic.Int32
	ready := make(chan struct{})

	l = chathub.Start("chat", func(context.Context) (*models.Message, error) {
		return &models.Message{ID: time.Now().String()}, nil
	}, func(models.Message) {
		<-ready
		calls.Add(1)
		l.Cancel()
	}, testOptions())
	close(ready)

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("cancel from inside the handler deadlocked")
	}
	assert.Equal(t, int32(1), calls.Load())

	// Idempotent.
	l.Cancel()
	l.Cancel()
}

func TestListener_TicksNeverOverlap(t *testing.T) {
	var inFlight, maxInFlight, polls atomic.Int32
	opts := testOptions()
	opts.Interval = time.Millisecond

	l := chathub.Start("chat", func(context.Context) (*models.Message, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		polls.Add(1)
		time.Sleep(15 * time.Millisecond)
		return nil, nil
	}, func(models.Message) {}, opts)

	require.Eventually(t, func() bool { return polls.Load() >= 4 }, 2*time.Second, time.Millisecond)
	l.Cancel()
	<-l.Done()
	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestListener_KeepsPollingAfterFailures(t *testing.T) {
	var rec recorder
	var logs syncBuffer
	var polls atomic.Int32

	opts := testOptions()
	opts.FailureThreshold = 2
	opts.Logger = slog.New(slog.NewTextHandler(&logs, nil))

	l := chathub.Start("chat", func(context.Context) (*models.Message, error) {
		if polls.Add(1) <= 4 {
			return nil, errors.New("gateway down")
		}
		return &models.Message{ID: "back"}, nil
	}, rec.handle, opts)

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	l.Cancel()
	<-l.Done()

	out := logs.String()
	assert.Equal(t, 1, strings.Count(out, "message poll keeps failing"), out)
	assert.Equal(t, 3, strings.Count(out, "message poll failed"), out)
}

func TestListener_PersistentCursor(t *testing.T) {
	var rec recorder
	cursor := &memCursor{ids: map[string]string{"k": "m1"}}
	var polls atomic.Int32

	l := chathub.Start("chat", func(context.Context) (*models.Message, error) {
		if polls.Add(1) <= 3 {
			return &models.Message{ID: "m1"}, nil
		}
		return &models.Message{ID: "m2"}, nil
	}, rec.handle, withCursor(testOptions(), cursor, "k"))
	defer l.Cancel()

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	rec.mu.Lock()
	assert.Equal(t, "m2", rec.msgs[0].ID, "m1 was already seen by an earlier run")
	rec.mu.Unlock()
	assert.Eventually(t, func() bool { return cursor.get("k") == "m2" }, time.Second, time.Millisecond)
}

func withCursor(opts chathub.Options, store chathub.CursorStore, key string) chathub.Options {
	chathub.WithCursor(store, key)(&opts)
	return opts
}

type memCursor struct {
	mu  sync.Mutex
	ids map[string]string
}

func (c *memCursor) LastSeen(_ context.Context, key string) (string, error) {
	return c.get(key), nil
}

func (c *memCursor) SetLastSeen(_ context.Context, key, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[key] = id
	return nil
}

func (c *memCursor) get(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ids[key]
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
