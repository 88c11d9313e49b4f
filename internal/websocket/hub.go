package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"taamsimcha-backend/internal/middleware"
	"taamsimcha-backend/internal/services"
)

const writeWait = 10 * time.Second

// client serialises writes; gorilla connections allow one concurrent writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// subscription is the Redis channel subscription shared by a user's sockets.
// ready closes once Redis confirms it; err is set before that on failure.
type subscription struct {
	cancel context.CancelFunc
	ready  chan struct{}
	err    error
}

// Hub fans out rating and comment events published on Redis to each user's
// open WebSocket connections. One subscription is held per connected user.
type Hub struct {
	mu               sync.RWMutex
	connections      map[uuid.UUID][]*client
	subs             map[uuid.UUID]*subscription
	redisClient      *redis.Client
	jwt              *middleware.JWTAuth
	upgrader         websocket.Upgrader
	subscribeTimeout time.Duration
	logger           *zap.Logger
}

func NewHub(redisClient *redis.Client, jwt *middleware.JWTAuth, allowedOrigins []string, logger *zap.Logger) *Hub {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &Hub{
		connections:      make(map[uuid.UUID][]*client),
		subs:             make(map[uuid.UUID]*subscription),
		redisClient:      redisClient,
		jwt:              jwt,
		subscribeTimeout: 5 * time.Second,
		logger:           logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(origins) == 0 || origins[origin]
			},
		},
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Browsers cannot set headers on the upgrade request, so the token rides in the query.
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, _, err := h.jwt.ParseAccessToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn}
	sub := h.registerConnection(userID, c)

	// Events published before Redis confirms the subscription would be lost.
	<-sub.ready
	if sub.err != nil {
		h.unregisterConnection(userID, c)
		return
	}

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(userID, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// registerConnection adds c and returns the user's subscription, starting one
// for the first connection. It never waits on Redis while holding the lock.
func (h *Hub) registerConnection(userID uuid.UUID, c *client) *subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[userID] = append(h.connections[userID], c)

	sub, ok := h.subs[userID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		sub = &subscription{cancel: cancel, ready: make(chan struct{})}
		h.subs[userID] = sub
		go h.subscribe(ctx, userID, sub)
	}

	h.logger.Debug("websocket connected", zap.String("user_id", userID.String()), zap.Int("connections", len(h.connections[userID])))
	return sub
}

func (h *Hub) unregisterConnection(userID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()

	conns := h.connections[userID]
	for i, existing := range conns {
		if existing == c {
			h.connections[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	// If no more connections, cancel pub/sub
	if len(h.connections[userID]) == 0 {
		delete(h.connections, userID)
		if sub, ok := h.subs[userID]; ok {
			sub.cancel()
			delete(h.subs, userID)
		}
	}

	h.logger.Debug("websocket disconnected", zap.String("user_id", userID.String()))
}

// dropSubscription closes every socket that relied on a failed subscription so
// the user's next connection starts a fresh one.
func (h *Hub) dropSubscription(userID uuid.UUID, sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[userID] != sub {
		return
	}
	sub.cancel()
	delete(h.subs, userID)
	for _, c := range h.connections[userID] {
		c.conn.Close()
	}
	delete(h.connections, userID)
}

func (h *Hub) subscribe(ctx context.Context, userID uuid.UUID, sub *subscription) {
	pubsub := h.redisClient.Subscribe(ctx, services.UserChannel(userID))
	defer pubsub.Close()

	confirmCtx, cancel := context.WithTimeout(ctx, h.subscribeTimeout)
	_, err := pubsub.Receive(confirmCtx)
	cancel()
	if err != nil {
		h.logger.Warn("pubsub subscribe failed", zap.String("user_id", userID.String()), zap.Error(err))
		sub.err = err
		h.dropSubscription(userID, sub)
		close(sub.ready)
		return
	}
	close(sub.ready)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(userID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(userID uuid.UUID, data []byte) {
	h.mu.RLock()
	conns := append([]*client(nil), h.connections[userID]...)
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.write(data); err != nil {
			h.logger.Debug("websocket write failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
}

// Close drops every connection and subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, conns := range h.connections {
		for _, c := range conns {
			c.conn.Close()
		}
		if sub, ok := h.subs[userID]; ok {
			sub.cancel()
		}
	}
	h.connections = make(map[uuid.UUID][]*client)
	h.subs = make(map[uuid.UUID]*subscription)
}

// Connections reports how many sockets a user has open.
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}
