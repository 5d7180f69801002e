// server/ws/hub.go
package ws

import (
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"

	"github.com/ViniZap4/tasks-server/domain"
)

const (
	TaskCreated = "task_created"
	TaskUpdated = "task_updated"
	TaskDeleted = "task_deleted"
)

type Message struct {
	Type string       `json:"type"`
	Task *domain.Task `json:"task,omitempty"`
	ID   int          `json:"id,omitempty"`
}

// Client is the part of a websocket connection the hub writes to.
type Client interface {
	WriteJSON(v any) error
	Close() error
}

type Hub struct {
	clients   map[Client]bool
	broadcast chan Message
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	log       zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:   make(map[Client]bool),
		broadcast: make(chan Message, 256),
		done:      make(chan struct{}),
		log:       log.With().Str("component", "hub").Logger(),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				c.Close()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case msg := <-h.broadcast:
			var failed []Client
			h.mu.RLock()
			for c := range h.clients {
				if err := c.WriteJSON(msg); err != nil {
					h.log.Warn().Err(err).Msg("websocket write failed")
					failed = append(failed, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range failed {
				h.drop(c)
			}
		}
	}
}

func (h *Hub) drop(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.Close()
	}
}

// Close stops Run and closes every client.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Broadcast queues a message for every client. It drops the message when the
// hub is closed or the queue is full rather than block a request.
func (h *Hub) Broadcast(msgType string, task *domain.Task) {
	msg := Message{Type: msgType, Task: task}
	if task != nil {
		msg.ID = task.ID
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		h.log.Warn().Str("type", msgType).Msg("broadcast queue full, dropping message")
	}
}

// BroadcastDeleted announces a removal, which has no task body.
func (h *Hub) BroadcastDeleted(id int) {
	select {
	case h.broadcast <- Message{Type: TaskDeleted, ID: id}:
	case <-h.done:
	default:
		h.log.Warn().Int("id", id).Msg("broadcast queue full, dropping message")
	}
}

// Register adds c to the feed. After Close it closes c instead.
func (h *Hub) Register(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		c.Close()
	default:
		h.clients[c] = true
	}
}

// Unregister removes and closes c before returning, so the caller may
// release the connection afterwards.
func (h *Hub) Unregister(c Client) {
	h.drop(c)
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleConnection serves one websocket until the peer disconnects.
func (h *Hub) HandleConnection(conn *websocket.Conn) {
	h.Register(conn)
	defer h.Unregister(conn)

	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		if msgType, ok := msg["type"].(string); ok && msgType == "subscribe" {
			h.log.Debug().Msg("client subscribed")
		}
	}
}
