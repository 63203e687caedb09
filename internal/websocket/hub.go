package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"docchat-be/internal/pkg/logger"
	"docchat-be/pkg/rag/ingestion"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ClusterChannel carries ingestion updates between instances.
const ClusterChannel = "docchat:ingestion"

// Frame is the JSON message written to ingestion subscribers.
type Frame struct {
	Type string           `json:"type"`
	Data ingestion.Status `json:"data"`
}

const FrameIngestion = "ingestion"

type clusterMessage struct {
	Origin string           `json:"origin"`
	Status ingestion.Status `json:"status"`
}

// Hub fans ingestion status updates out to websocket clients watching a
// chat session.
type Hub struct {
	// session id -> connected clients
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex

	// optional, for updates produced by other instances
	rdb    *redis.Client
	origin string

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[string][]*Client),
		rdb:        rdb,
		origin:     uuid.NewString(),
		logger:     log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.SessionID] = append(h.clients[client.SessionID], client)
			h.mu.Unlock()
			h.logger.Debug("WS_HUB", "Client registered", map[string]interface{}{"session_id": client.SessionID})

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// Notify delivers status to local watchers of its session and, when Redis is
// configured, to the other instances.
func (h *Hub) Notify(status ingestion.Status) {
	if status.SessionID == "" {
		return
	}
	h.deliver(status)

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterMessage{Origin: h.origin, Status: status})
		if err := h.rdb.Publish(context.Background(), ClusterChannel, payload).Err(); err != nil {
			h.logger.Warn("WS_HUB", "Failed to publish ingestion update", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (h *Hub) deliver(status ingestion.Status) {
	data, _ := json.Marshal(Frame{Type: FrameIngestion, Data: status})

	// Send channels are closed under the write lock, so sends stay under the
	// read lock. Every send is non-blocking.
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients[status.SessionID] {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("WS_HUB", "Client send buffer full, dropping client", map[string]interface{}{"session_id": status.SessionID})
			go h.leave(client)
		}
	}
}

// join and leave give up once the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.clients[client.SessionID]
	for i, c := range clients {
		if c == client {
			h.clients[client.SessionID] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.clients[client.SessionID]) == 0 {
		delete(h.clients, client.SessionID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, clients := range h.clients {
		for _, c := range clients {
			close(c.Send)
		}
		delete(h.clients, id)
	}
}

// Watchers reports how many clients follow a session.
func (h *Hub) Watchers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, ClusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var payload clusterMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.logger.Warn("WS_HUB", "Unreadable cluster message", map[string]interface{}{"error": err.Error()})
				continue
			}
			// own updates were already delivered locally
			if payload.Origin == h.origin {
				continue
			}
			h.deliver(payload.Status)
		}
	}
}
