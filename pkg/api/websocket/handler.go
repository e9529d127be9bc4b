// Package websocket streams orchestration events to clients.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/learnloop/ecosync/internal/orchestrator"
	"github.com/learnloop/ecosync/internal/ports"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // access control belongs to the fronting proxy
	},
}

// Handler streams run and module events for one user over a WebSocket.
type Handler struct {
	bus    ports.EventBus
	logger *zap.Logger
}

// NewHandler creates a WebSocket event handler.
func NewHandler(bus ports.EventBus, logger *zap.Logger) *Handler {
	return &Handler{bus: bus, logger: logger}
}

// HandleUserStream upgrades the connection and forwards the user's
// orchestration events until the client disconnects.
func (h *Handler) HandleUserStream(c *gin.Context) {
	userID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("websocket connection established",
		zap.String("user_id", userID),
		zap.String("client", c.ClientIP()))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	eventCh := make(chan ports.Event, 16)
	handler := func(ctx context.Context, event ports.Event) error {
		select {
		case eventCh <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			h.logger.Warn("event channel full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("type", event.Type))
		}
		return nil
	}

	for _, topic := range []string{orchestrator.TopicRunEvents, orchestrator.TopicModuleEvents} {
		if err := h.bus.Subscribe(ctx, topic, handler); err != nil {
			h.logger.Error("failed to subscribe to events",
				zap.String("topic", topic), zap.Error(err))
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventCh:
			if event.UserID != userID {
				continue
			}

			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("websocket write failed, closing",
					zap.String("user_id", userID), zap.Error(err))
				return
			}
		}
	}
}
