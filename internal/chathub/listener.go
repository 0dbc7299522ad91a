package chathub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chatcall/backend/internal/models"
)

// FetchFunc returns the newest message of a chat, or nil when the chat has
// none.
type FetchFunc func(ctx context.Context) (*models.Message, error)

// MessageHandler receives delivered messages.
type MessageHandler func(models.Message)

// CancelFunc stops a subscription. It is idempotent and safe to call from
// inside the handler.
type CancelFunc func()

// CursorStore persists the last delivered message id per subscription key.
type CursorStore interface {
	LastSeen(ctx context.Context, key string) (string, error)
	SetLastSeen(ctx context.Context, key, messageID string) error
}

// Options tune a listener.
type Options struct {
	// Interval between the end of one poll and the start of the next.
	Interval time.Duration
	// Deduplicate skips a message whose id equals the last delivered one.
	Deduplicate bool
	// FailureThreshold is the run of consecutive failed polls after which
	// an error is logged; single failures log at warn level.
	FailureThreshold int
	// Cursor persists the last delivered id across listener restarts.
	Cursor    CursorStore
	CursorKey string
	Logger    *slog.Logger
}

// Option mutates Options for one subscription.
type Option func(*Options)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) Option {
	return func(o *Options) { o.Interval = d }
}

// WithDeduplication turns last-seen-id deduplication on or off.
func WithDeduplication(on bool) Option {
	return func(o *Options) { o.Deduplicate = on }
}

// WithCursor persists the last delivered id under key.
func WithCursor(store CursorStore, key string) Option {
	return func(o *Options) {
		o.Cursor = store
		o.CursorKey = key
	}
}

// DefaultOptions are used when no overrides are given.
func DefaultOptions() Options {
	return Options{
		Interval:         3 * time.Second,
		Deduplicate:      true,
		FailureThreshold: 5,
	}
}

// Listener polls one chat on a fixed interval and hands the newest message
// to a handler. Polls never overlap: the next one is scheduled only after
// the previous one finished.
type Listener struct {
	chatID    string
	fetch     FetchFunc
	onMessage MessageHandler
	opts      Options
	logger    *slog.Logger

	ctx    context.Context
	stop   context.CancelFunc
	done   chan struct{}
	once   sync.Once
	cursor string

	// deliverMu is held while the handler runs so that Cancel can wait out
	// a delivery that already passed the canceled check.
	deliverMu  sync.Mutex
	canceled   atomic.Bool
	delivering atomic.Bool

	failures int
}

// Start launches a listener for chatID. The returned listener runs until
// Cancel is called.
func Start(chatID string, fetch FetchFunc, onMessage MessageHandler, opts Options) *Listener {
	if opts.Interval <= 0 {
		opts.Interval = DefaultOptions().Interval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, stop := context.WithCancel(context.Background())
	l := &Listener{
		chatID:    chatID,
		fetch:     fetch,
		onMessage: onMessage,
		opts:      opts,
		logger:    logger.With("chat_id", chatID),
		ctx:       ctx,
		stop:      stop,
		done:      make(chan struct{}),
	}
	go l.run()
	return l
}

// Cancel stops all future polls. Once Cancel returns no handler invocation
// will begin; an in-flight fetch is aborted through its context and its
// result discarded.
func (l *Listener) Cancel() {
	l.once.Do(func() {
		l.canceled.Store(true)
		l.stop()
	})
	// Called from inside the handler, or while one is running: that
	// delivery already started and the loop exits after it.
	if l.delivering.Load() {
		return
	}
	// Barrier: a delivery that passed its canceled check finishes first.
	l.deliverMu.Lock()
	l.deliverMu.Unlock()
}

// Done is closed when the polling goroutine has exited.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

func (l *Listener) run() {
	defer close(l.done)

	if l.opts.Deduplicate && l.opts.Cursor != nil {
		id, err := l.opts.Cursor.LastSeen(l.ctx, l.opts.CursorKey)
		if err != nil {
			l.logger.Warn("failed to load poll cursor", "key", l.opts.CursorKey, "error", err)
		}
		l.cursor = id
	}

	timer := time.NewTimer(l.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-timer.C:
		}

		l.poll()

		if l.canceled.Load() {
			return
		}
		timer.Reset(l.opts.Interval)
	}
}

func (l *Listener) poll() {
	msg, err := l.fetch(l.ctx)
	if l.canceled.Load() {
		return
	}
	if err != nil {
		l.failures++
		if l.opts.FailureThreshold > 0 && l.failures == l.opts.FailureThreshold {
			l.logger.Error("message poll keeps failing", "consecutive_failures", l.failures, "error", err)
		} else {
			l.logger.Warn("message poll failed", "consecutive_failures", l.failures, "error", err)
		}
		return
	}
	l.failures = 0

	if msg == nil {
		return
	}
	if l.opts.Deduplicate && msg.ID == l.cursor {
		return
	}
	if !l.deliver(*msg) {
		return
	}

	if l.opts.Deduplicate {
		l.cursor = msg.ID
		if l.opts.Cursor != nil {
			if err := l.opts.Cursor.SetLastSeen(l.ctx, l.opts.CursorKey, msg.ID); err != nil && !l.canceled.Load() {
				l.logger.Warn("failed to store poll cursor", "key", l.opts.CursorKey, "error", err)
			}
		}
	}
}

func (l *Listener) deliver(msg models.Message) bool {
	l.deliverMu.Lock()
	defer l.deliverMu.Unlock()

	if l.canceled.Load() {
		return false
	}
	l.delivering.Store(true)
	defer l.delivering.Store(false)

	l.onMessage(msg)
	return true
}
