package websocket

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taamsimcha-backend/internal/middleware"
	"taamsimcha-backend/internal/models"
	"taamsimcha-backend/internal/services"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server, *middleware.JWTAuth, *redis.Client) {
	t.Helper()
	hub, srv, jwt, client, _ := newTestHubWithRedis(t)
	return hub, srv, jwt, client
}

func newTestHubWithRedis(t *testing.T) (*Hub, *httptest.Server, *middleware.JWTAuth, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	jwt := middleware.NewJWTAuth("test-secret")
	hub := NewHub(client, jwt, []string{"http://app.test"}, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv, jwt, client, mr
}

func wsURL(srv *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
}

func TestHub_RejectsMissingOrBadToken(t *testing.T) {
	_, srv, _, _ := newTestHub(t)

	for _, token := range []string{"", "garbage"} {
		_, resp, err := gorilla.DefaultDialer.Dial(wsURL(srv, token), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestHub_RejectsUnknownOrigin(t *testing.T) {
	_, srv, jwt, _ := newTestHub(t)
	token, err := jwt.GenerateAccessToken(uuid.New(), false)
	require.NoError(t, err)

	header := http.Header{"Origin": []string{"http://evil.test"}}
	_, resp, err := gorilla.DefaultDialer.Dial(wsURL(srv, token), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHub_ForwardsPublishedEvents(t *testing.T) {
	hub, srv, jwt, client := newTestHub(t)
	userID := uuid.New()
	token, err := jwt.GenerateAccessToken(userID, false)
	require.NoError(t, err)

	conn, _, err := gorilla.DefaultDialer.Dial(wsURL(srv, token), http.Header{"Origin": []string{"http://app.test"}})
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Connections(userID) == 1 }, 2*time.Second, 10*time.Millisecond)

	notifier := services.NewNotifier(client, zap.NewNop())
	notifier.PublishUpdate(context.Background(), userID, models.WSMessage{
		Type:    "recipe_rated",
		Payload: models.RatingEvent{RecipeTitle: "מג'דרה", Rating: 5},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type    string             `json:"type"`
		Payload models.RatingEvent `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "recipe_rated", msg.Type)
	assert.Equal(t, "מג'דרה", msg.Payload.RecipeTitle)
	assert.Equal(t, 5, msg.Payload.Rating)
}

func publish(t *testing.T, client *redis.Client, userID uuid.UUID, title string) {
	t.Helper()
	services.NewNotifier(client, zap.NewNop()).PublishUpdate(context.Background(), userID, models.WSMessage{
		Type:    "recipe_commented",
		Payload: models.CommentEvent{RecipeTitle: title},
	})
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub, srv, jwt, client := newTestHub(t)
	userID := uuid.New()
	token, err := jwt.GenerateAccessToken(userID, false)
	require.NoError(t, err)

	conn, _, err := gorilla.DefaultDialer.Dial(wsURL(srv, token), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Connections(userID) == 1 }, 2*time.Second, 10*time.Millisecond)

	publish(t, client, userID, "פלאפל")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "recipe_commented")

	conn.Close()
	require.Eventually(t, func() bool { return hub.Connections(userID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_FailedSubscriptionDropsConnectionAndRecovers(t *testing.T) {
	hub, srv, jwt, client, mr := newTestHubWithRedis(t)
	hub.subscribeTimeout = time.Second
	userID := uuid.New()
	token, err := jwt.GenerateAccessToken(userID, false)
	require.NoError(t, err)

	mr.Close()

	conn, _, err := gorilla.DefaultDialer.Dial(wsURL(srv, token), nil)
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err, "socket should be closed when Redis cannot subscribe")
	conn.Close()

	require.Eventually(t, func() bool { return hub.Connections(userID) == 0 }, 5*time.Second, 10*time.Millisecond)
	hub.mu.RLock()
	_, stale := hub.subs[userID]
	hub.mu.RUnlock()
	assert.False(t, stale)

	require.NoError(t, mr.Restart())

	conn, _, err = gorilla.DefaultDialer.Dial(wsURL(srv, token), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Connections(userID) == 1 }, 5*time.Second, 10*time.Millisecond)

	publish(t, client, userID, "חומוס")
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "recipe_commented")
}

func TestHub_StalledRedisDoesNotBlockHub(t *testing.T) {
	// Accepts connections and never answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var mu sync.Mutex
	var accepted []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			accepted = append(accepted, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		for _, c := range accepted {
			c.Close()
		}
		mu.Unlock()
	})

	client := redis.NewClient(&redis.Options{Addr: ln.Addr().String(), ReadTimeout: 200 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	jwt := middleware.NewJWTAuth("test-secret")
	hub := NewHub(client, jwt, nil, zap.NewNop())
	hub.subscribeTimeout = 300 * time.Millisecond
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	userID := uuid.New()
	token, err := jwt.GenerateAccessToken(userID, false)
	require.NoError(t, err)

	conn, _, err := gorilla.DefaultDialer.Dial(wsURL(srv, token), nil)
	require.NoError(t, err)
	defer conn.Close()

	// The pending subscription is visible without waiting on Redis.
	require.Eventually(t, func() bool { return hub.Connections(userID) == 1 }, time.Second, 5*time.Millisecond)

	// Once the confirmation times out the socket is dropped.
	require.Eventually(t, func() bool { return hub.Connections(userID) == 0 }, 5*time.Second, 10*time.Millisecond)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
