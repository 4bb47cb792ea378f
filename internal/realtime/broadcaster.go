package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codygellie/contact-management-app/internal/contacts"
)

const defaultBufferSize = 16

// Broadcaster fans committed change notifications out to every registered
// session. Delivery is at-most-once per session: a session whose buffer is
// full or which is not registered simply misses the notification, and a
// slow session never blocks the mutation path or its peers. Within one
// session's channel, notifications arrive in publish order.
type Broadcaster struct {
	mu         sync.RWMutex
	sessions   map[string]*session
	bufferSize int
	logger     *zap.Logger
}

type session struct {
	id     string
	stream chan contacts.ChangeNotification
}

// NewBroadcaster returns an empty session registry.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		sessions:   make(map[string]*session),
		bufferSize: defaultBufferSize,
		logger:     logger,
	}
}

// Register adds a delivery channel for a new session and returns the
// assigned session id alongside it. The registration is removed when the
// context is cancelled or the returned cleanup func runs, whichever comes
// first; after removal no further notifications are delivered.
func (b *Broadcaster) Register(ctx context.Context) (string, <-chan contacts.ChangeNotification, func()) {
	entry := &session{
		id:     uuid.NewString(),
		stream: make(chan contacts.ChangeNotification, b.bufferSize),
	}

	b.mu.Lock()
	b.sessions[entry.id] = entry
	b.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.sessions, entry.id)
			b.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()

	b.logger.Debug("session registered", zap.String("session_id", entry.id))
	return entry.id, entry.stream, cleanup
}

// Publish delivers the notification to every registered session without
// blocking. Sessions with a full buffer drop it.
func (b *Broadcaster) Publish(notification contacts.ChangeNotification) {
	b.mu.RLock()
	targets := make([]*session, 0, len(b.sessions))
	for _, entry := range b.sessions {
		targets = append(targets, entry)
	}
	b.mu.RUnlock()

	for _, entry := range targets {
		select {
		case entry.stream <- notification:
		default:
			b.logger.Warn("notification dropped for slow session",
				zap.String("session_id", entry.id),
				zap.String("event", string(notification.Type)))
		}
	}
}

// Count reports the number of currently registered sessions.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}
