// Package chathub delivers new chat messages without a push transport: each
// subscription polls the newest message on a timer and hands it to a
// handler.
package chathub

import (
	"log/slog"
	"sync"
)

// ManagerService tracks live listeners so they can be counted and shut down
// together.
type ManagerService struct {
	defaults Options
	logger   *slog.Logger

	mu        sync.Mutex
	next      uint64
	listeners map[uint64]*Listener
}

// NewManagerService creates a manager whose listeners start from defaults.
func NewManagerService(defaults Options, logger *slog.Logger) *ManagerService {
	if logger == nil {
		logger = slog.Default()
	}
	if defaults.Logger == nil {
		defaults.Logger = logger
	}
	return &ManagerService{
		defaults:  defaults,
		logger:    logger,
		listeners: make(map[uint64]*Listener),
	}
}

// Listen starts a listener for chatID and returns its cancellation handle.
func (m *ManagerService) Listen(chatID string, fetch FetchFunc, onMessage MessageHandler, opts ...Option) CancelFunc {
	o := m.defaults
	for _, opt := range opts {
		opt(&o)
	}

	l := Start(chatID, fetch, onMessage, o)

	m.mu.Lock()
	m.next++
	id := m.next
	m.listeners[id] = l
	active := len(m.listeners)
	m.mu.Unlock()

	m.logger.Debug("message listener started", "chat_id", chatID, "active", active)

	return func() {
		l.Cancel()
		m.mu.Lock()
		_, ok := m.listeners[id]
		delete(m.listeners, id)
		m.mu.Unlock()
		if ok {
			m.logger.Debug("message listener stopped", "chat_id", chatID)
		}
	}
}

// Active returns the number of live listeners.
func (m *ManagerService) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// CloseAll cancels every live listener and waits for their goroutines.
// It must not be called from a message handler.
func (m *ManagerService) CloseAll() {
	m.mu.Lock()
	listeners := make([]*Listener, 0, len(m.listeners))
	for id, l := range m.listeners {
		listeners = append(listeners, l)
		delete(m.listeners, id)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l.Cancel()
		<-l.Done()
	}
	if len(listeners) > 0 {
		m.logger.Info("message listeners closed", "count", len(listeners))
	}
}
