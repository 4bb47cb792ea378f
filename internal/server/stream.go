package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/codygellie/contact-management-app/internal/realtime"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleStream upgrades the request to a websocket, registers the session
// with the broadcaster and pumps change events until either side closes.
// The welcome frame always precedes the first change event.
func (h *httpHandler) handleStream(c *gin.Context) {
	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sessionID, stream, cleanup := h.broadcaster.Register(ctx)
	defer cleanup()

	if err := h.writeEnvelope(conn, welcomeEnvelope(sessionID)); err != nil {
		h.logger.Warn("welcome frame failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	h.logger.Info("stream session connected",
		zap.String("session_id", sessionID),
		zap.Int("connected_clients", h.broadcaster.Count()))

	// Read pump: the protocol has no client events beyond the handshake,
	// so reads only surface disconnects and answer control frames.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(streamPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(streamWriteTimeout)
			message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing")
			_ = conn.WriteControl(websocket.CloseMessage, message, deadline)
			h.logger.Info("stream session closed", zap.String("session_id", sessionID))
			return
		case notification := <-stream:
			envelope, err := realtime.EncodeNotification(notification)
			if err != nil {
				h.logger.Error("notification encode failed",
					zap.String("session_id", sessionID), zap.Error(err))
				continue
			}
			if err := h.writeEnvelope(conn, envelope); err != nil {
				h.logger.Info("stream session write failed",
					zap.String("session_id", sessionID), zap.Error(err))
				return
			}
		case <-pingTicker.C:
			deadline := time.Now().Add(streamWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (h *httpHandler) writeEnvelope(conn *websocket.Conn, envelope realtime.Envelope) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(envelope)
}

func welcomeEnvelope(sessionID string) realtime.Envelope {
	data, _ := json.Marshal(realtime.WelcomePayload{
		SessionID: sessionID,
		Message:   "Connected to real-time updates",
	})
	return realtime.Envelope{Event: realtime.EventWelcome, Data: data}
}
