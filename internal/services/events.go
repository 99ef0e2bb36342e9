package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Event types pushed to the live feed.
const (
	EventAlertOpened       = "alert_opened"
	EventAlertResolved     = "alert_resolved"
	EventApprovalRequested = "approval_requested"
	EventApprovalDecided   = "approval_decided"
	EventExecutionUpdate   = "execution_update"
)

// Event is one live-feed message.
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// EventClient is one connected websocket subscriber.
type EventClient struct {
	ID   string
	Conn *websocket.Conn
	Send chan Event
	hub  *EventHub
}

// EventHub fans alert/approval/execution events out to websocket
// subscribers. Nil-safe: a nil hub drops every broadcast.
type EventHub struct {
	clients    map[string]*EventClient
	broadcast  chan Event
	register   chan *EventClient
	unregister chan *EventClient
	mutex      sync.RWMutex
	logger     *logrus.Logger
}

func NewEventHub(logger *logrus.Logger) *EventHub {
	if logger == nil {
		logger = logrus.New()
	}
	return &EventHub{
		clients:    make(map[string]*EventClient),
		broadcast:  make(chan Event, 64),
		register:   make(chan *EventClient),
		unregister: make(chan *EventClient),
		logger:     logger,
	}
}

// Run processes register/unregister/broadcast until the process exits.
func (h *EventHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.ID] = client
			h.mutex.Unlock()
			h.logger.Debugf("event feed: client %s connected", client.ID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mutex.Unlock()

		case event := <-h.broadcast:
			h.mutex.Lock()
			for id, client := range h.clients {
				select {
				case client.Send <- event:
				default:
					// slow consumer, drop it
					close(client.Send)
					delete(h.clients, id)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Broadcast queues an event for all subscribers. Never blocks the caller.
func (h *EventHub) Broadcast(eventType string, data interface{}) {
	if h == nil {
		return
	}
	select {
	case h.broadcast <- Event{Type: eventType, Data: data, Timestamp: time.Now().UTC()}:
	default:
		h.logger.Warn("event feed: broadcast buffer full, dropping event")
	}
}

// Register attaches a websocket connection as a subscriber and starts its
// writer pump.
func (h *EventHub) Register(conn *websocket.Conn) *EventClient {
	client := &EventClient{
		ID:   uuid.NewString(),
		Conn: conn,
		Send: make(chan Event, 16),
		hub:  h,
	}
	h.register <- client
	go client.writePump()
	return client
}

// ClientCount returns the number of connected subscribers.
func (h *EventHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (c *EventClient) writePump() {
	defer c.Conn.Close()
	for event := range c.Send {
		if err := c.Conn.WriteJSON(event); err != nil {
			c.hub.unregister <- c
			return
		}
	}
}

// Close detaches the client from the hub.
func (c *EventClient) Close() {
	c.hub.unregister <- c
}
