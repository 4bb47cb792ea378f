package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/codygellie/contact-management-app/internal/contacts"
	"github.com/codygellie/contact-management-app/internal/realtime"
)

// Status enumerates the connection lifecycle states of a session.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// StatusChange reports a lifecycle transition to the UI collaborator.
// Err is set when the transition was caused by a failure.
type StatusChange struct {
	Status  Status
	Attempt int
	Err     error
}

const (
	defaultBaseDelay   = 250 * time.Millisecond
	defaultMaxDelay    = 30 * time.Second
	defaultMaxAttempts = 8
	handshakeTimeout   = 10 * time.Second
)

// ErrReconnectExhausted is reported through the status stream when the
// attempt cap is reached. The session stays Disconnected until Connect is
// called again.
var ErrReconnectExhausted = errors.New("client: reconnect attempts exhausted")

// SessionConfig carries the dependencies and tuning of a session.
type SessionConfig struct {
	// URL is the websocket endpoint, e.g. ws://host/contacts/stream.
	URL    string
	Dialer *websocket.Dialer

	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int

	// OnNotification receives every validated change notification in
	// delivery order. Required.
	OnNotification func(contacts.ChangeNotification)
	// OnStatus receives lifecycle transitions. Optional.
	OnStatus func(StatusChange)

	Logger *zap.Logger
}

// Session owns one client's persistent connection to the broadcaster:
// connect, handshake, reconnect with bounded exponential backoff, and
// teardown. The connection is exclusively owned by the session.
type Session struct {
	cfg    SessionConfig
	logger *zap.Logger

	mu        sync.Mutex
	status    Status
	sessionID string
	conn      *websocket.Conn
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSession validates the configuration and returns an inactive session
// in the Disconnected state.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.URL == "" {
		return nil, errors.New("client: stream url is required")
	}
	if cfg.OnNotification == nil {
		return nil, errors.New("client: notification handler is required")
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{cfg: cfg, logger: logger, status: StatusDisconnected}, nil
}

// Connect activates the session. It returns immediately; lifecycle
// progress is reported through the status handler. Calling Connect on an
// active session is a no-op.
func (s *Session) Connect() {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.run(ctx)
	}()
}

// Close tears the session down: any pending reconnect is cancelled, the
// socket is closed, and no notification is delivered afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	conn := s.conn
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		if conn != nil {
			// Unblocks a read in flight so teardown never waits on the
			// server.
			conn.Close()
		}
		<-done
	}
	s.setStatus(StatusDisconnected, 0, nil)
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SessionID returns the identifier the server assigned during the last
// completed handshake, or empty if none completed yet.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Session) run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		s.setStatus(StatusConnecting, attempt, nil)
		conn, err := s.dial(ctx)
		if err != nil {
			attempt++
			s.setStatus(StatusDisconnected, attempt, err)
			if attempt >= s.cfg.MaxAttempts {
				s.logger.Warn("reconnect attempts exhausted", zap.Int("attempts", attempt))
				s.notifyStatus(StatusChange{Status: StatusDisconnected, Attempt: attempt, Err: ErrReconnectExhausted})
				s.clearCancel()
				return
			}
			if !s.sleep(ctx, backoffDelay(attempt, s.cfg.BaseDelay, s.cfg.MaxDelay)) {
				return
			}
			continue
		}

		attempt = 0
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.setStatus(StatusConnected, 0, nil)

		serverClosed, readErr := s.readLoop(ctx, conn)
		conn.Close()
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		s.setStatus(StatusDisconnected, 0, readErr)

		// A deliberate server close re-attempts immediately; a network
		// failure waits out the backoff like a failed dial.
		if serverClosed {
			continue
		}
		attempt++
		if attempt >= s.cfg.MaxAttempts {
			s.notifyStatus(StatusChange{Status: StatusDisconnected, Attempt: attempt, Err: ErrReconnectExhausted})
			s.clearCancel()
			return
		}
		if !s.sleep(ctx, backoffDelay(attempt, s.cfg.BaseDelay, s.cfg.MaxDelay)) {
			return
		}
	}
}

// dial opens the socket and completes the handshake by reading the welcome
// frame. Connections whose first frame is not a welcome are rejected.
func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, response, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if response != nil && response.Body != nil {
		response.Body.Close()
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var envelope realtime.Envelope
	if err := conn.ReadJSON(&envelope); err != nil {
		conn.Close()
		return nil, &TransportError{Err: err}
	}
	if envelope.Event != realtime.EventWelcome {
		conn.Close()
		return nil, fmt.Errorf("client: expected welcome frame, got %q", envelope.Event)
	}
	var welcome realtime.WelcomePayload
	if err := json.Unmarshal(envelope.Data, &welcome); err != nil {
		conn.Close()
		return nil, &TransportError{Err: err}
	}
	_ = conn.SetReadDeadline(time.Time{})

	s.mu.Lock()
	s.sessionID = welcome.SessionID
	s.mu.Unlock()
	s.logger.Info("stream connected", zap.String("session_id", welcome.SessionID))
	return conn, nil
}

// readLoop delivers validated notifications until the connection drops.
// It reports whether the server closed the connection deliberately.
func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) (bool, error) {
	for {
		var envelope realtime.Envelope
		if err := conn.ReadJSON(&envelope); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, nil
			}
			return false, &TransportError{Err: err}
		}

		if envelope.Event == realtime.EventWelcome {
			continue
		}
		notification, err := realtime.DecodeNotification(envelope)
		if err != nil {
			s.logger.Warn("rejected malformed frame", zap.String("event", envelope.Event), zap.Error(err))
			continue
		}
		// Teardown discards in-flight frames rather than delivering them
		// to a defunct view.
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		s.cfg.OnNotification(notification)
	}
}

func (s *Session) setStatus(status Status, attempt int, err error) {
	s.mu.Lock()
	changed := s.status != status
	s.status = status
	s.mu.Unlock()
	if changed {
		s.notifyStatus(StatusChange{Status: status, Attempt: attempt, Err: err})
	}
}

func (s *Session) notifyStatus(change StatusChange) {
	if s.cfg.OnStatus != nil {
		s.cfg.OnStatus(change)
	}
}

func (s *Session) clearCancel() {
	s.mu.Lock()
	s.cancel = nil
	s.mu.Unlock()
}

func (s *Session) sleep(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// backoffDelay doubles per attempt from the base delay up to the cap.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
