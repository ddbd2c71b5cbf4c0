package websocket

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"attendance-backend/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans the live attendance feed of each event out to the organizer
// screens watching it. One redis subscription is held per watched event.
type Hub struct {
	mu          sync.RWMutex
	connections map[string][]*websocket.Conn
	redisClient *redis.Client
	cancelFuncs map[string]context.CancelFunc
}

func NewHub(redisClient *redis.Client) *Hub {
	return &Hub{
		connections: make(map[string][]*websocket.Conn),
		redisClient: redisClient,
		cancelFuncs: make(map[string]context.CancelFunc),
	}
}

// HandleEventFeed upgrades the request and streams updates for eventID.
// The caller has already authorized access to the event.
func (h *Hub) HandleEventFeed(w http.ResponseWriter, r *http.Request, eventID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.registerConnection(eventID, conn)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(eventID, conn)
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				break
			}
		}
	}()
}

func (h *Hub) registerConnection(eventID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[eventID] = append(h.connections[eventID], conn)

	// Start pub/sub subscription if this is the first watcher of this event
	if len(h.connections[eventID]) == 1 && h.redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[eventID] = cancel
		go h.subscribeToPubSub(ctx, eventID)
	}

	log.Printf("Live feed connected: event %s (watchers: %d)", eventID, len(h.connections[eventID]))
}

func (h *Hub) unregisterConnection(eventID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()

	conns := h.connections[eventID]
	for i, c := range conns {
		if c == conn {
			h.connections[eventID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[eventID]) == 0 {
		delete(h.connections, eventID)
		if cancel, ok := h.cancelFuncs[eventID]; ok {
			cancel()
			delete(h.cancelFuncs, eventID)
		}
	}

	log.Printf("Live feed disconnected: event %s", eventID)
}

func (h *Hub) subscribeToPubSub(ctx context.Context, eventID string) {
	pubsub := h.redisClient.Subscribe(ctx, services.FeedChannel(eventID))
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
			h.broadcast(eventID, []byte(msg.Payload))
		}
	}
}

// broadcast holds the write lock: a gorilla conn allows one writer at a time.
func (h *Hub) broadcast(eventID string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, conn := range h.connections[eventID] {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("Live feed write failed: event %s: %v", eventID, err)
		}
	}
}

// Watchers reports how many connections follow eventID on this instance.
func (h *Hub) Watchers(eventID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[eventID])
}
