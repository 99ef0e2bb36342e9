package handlers

import (
	"net/http"

	"pulseguard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// EventsHandler upgrades clients onto the live event feed.
type EventsHandler struct {
	hub      *services.EventHub
	logger   *logrus.Logger
	upgrader websocket.Upgrader
}

func NewEventsHandler(hub *services.EventHub, logger *logrus.Logger) *EventsHandler {
	return &EventsHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func RegisterEventRoutes(r *gin.Engine, h *EventsHandler) {
	r.GET("/ws/events", h.Subscribe)
	r.GET("/ws/stats", h.Stats)
}

// Subscribe upgrades the connection and keeps it open until the client
// goes away. The read loop only drains control frames; the feed is
// one-directional.
func (h *EventsHandler) Subscribe(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("event feed: upgrade failed: %v", err)
		return
	}

	client := h.hub.Register(conn)
	h.logger.WithField("client_id", client.ID).Debug("event feed: client connected")

	defer client.Close()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *EventsHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"connected_clients": h.hub.ClientCount()})
}
