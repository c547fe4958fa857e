package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"

	"github.com/vocaldocs/api/internal/model"
)

// Client represents a WebSocket client
type Client struct {
	ReferenceKey string
	Conn         *websocket.Conn
	Send         chan []byte
}

// Hub maintains active WebSocket connections
type Hub struct {
	// Clients grouped by reference key
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	log zerolog.Logger
	mu  sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	ReferenceKey string
	Message      []byte
}

// NewHub creates a new Hub
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		log:        log.With().Str("component", "ws").Logger(),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.ReferenceKey] == nil {
				h.clients[client.ReferenceKey] = make(map[*Client]bool)
			}
			h.clients[client.ReferenceKey][client] = true
			h.mu.Unlock()
			h.log.Debug().Str("reference_key", client.ReferenceKey).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			h.log.Debug().Str("reference_key", client.ReferenceKey).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.ReferenceKey] {
				select {
				case client.Send <- msg.Message:
				default:
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with mu held.
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.ReferenceKey]
	if !ok {
		return
	}
	if _, ok := clients[client]; ok {
		delete(clients, client)
		close(client.Send)
		if len(clients) == 0 {
			delete(h.clients, client.ReferenceKey)
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribers returns the number of clients following a job.
func (h *Hub) Subscribers(ref string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[ref])
}

// NotifyStatus pushes the job's current status to its subscribers. It never
// blocks the calling stage; if the broadcast buffer is full the update is
// dropped and clients catch up on the next one or by polling.
func (h *Hub) NotifyStatus(job *model.Job) {
	msg := model.WSStatusMessage{
		Type:         model.WSMessageTypeStatus,
		ReferenceKey: job.ReferenceKey,
		Status:       job.Status,
		Terminal:     job.Status.Terminal(),
		Error:        job.Error,
		UpdatedAt:    job.UpdatedAt,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal status message")
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{ReferenceKey: job.ReferenceKey, Message: data}:
	default:
		h.log.Warn().Str("reference_key", job.ReferenceKey).Msg("broadcast buffer full, dropping status update")
	}
}

// HandleConnection handles a WebSocket connection. The current status, if
// any, is sent first so a late subscriber does not wait for the next change.
func (h *Hub) HandleConnection(c *websocket.Conn, ref string, current *model.Job) {
	client := &Client{
		ReferenceKey: ref,
		Conn:         c,
		Send:         make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	if current != nil {
		h.NotifyStatus(current)
	}

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Msg("websocket closed unexpectedly")
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			select {
			case client.Send <- data:
			default:
			}
		}
	}
}
