package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/kiwari-pos/floorops/internal/auth"
	"github.com/kiwari-pos/floorops/internal/enum"
	"github.com/kiwari-pos/floorops/internal/events"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must stay below pongWait
	maxMessageSize = 512
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are not checked; the token in the query decides access.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one subscriber following a single topic.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	topic string
	send  chan []byte
}

// readPump only watches for disconnects. Subscribers never send commands
// over the socket; those go through the HTTP API.
func (c *Client) readPump() {
	defer c.leave()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("websocket closed unexpectedly", zap.String("topic", c.topic), zap.Error(err))
			}
			return
		}
	}
}

// writePump sends each event as its own text frame so clients can decode
// frames as single JSON documents.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.log.Debug("websocket write failed", zap.String("topic", c.topic), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) leave() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
	c.conn.Close()
}

// CanSubscribe reports whether the token holder may follow topic.
// Admins see everything, stations see the floor and their own station,
// customers only their own table.
func CanSubscribe(claims *auth.Claims, topic string) bool {
	switch claims.Role {
	case enum.RoleAdmin:
		return true
	case enum.RoleKitchen:
		return topic == events.TopicFloor || topic == events.TopicKitchen
	case enum.RoleBar:
		return topic == events.TopicFloor || topic == events.TopicBar
	case enum.RoleCustomer:
		return claims.TableNumber > 0 && topic == events.TableTopic(claims.TableNumber)
	}
	return false
}

// subscription checks the token and topic of a socket request.
// On failure it returns the HTTP status to answer with.
func subscription(jwtSecret string, r *http.Request) (string, int, string) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		return "", http.StatusUnauthorized, "missing token"
	}
	claims, err := auth.ValidateToken(jwtSecret, tokenStr)
	if err != nil {
		return "", http.StatusUnauthorized, "invalid token"
	}
	topic := strings.TrimSpace(chi.URLParam(r, "topic"))
	if topic == "" {
		return "", http.StatusBadRequest, "missing topic"
	}
	if !CanSubscribe(claims, topic) {
		return "", http.StatusForbidden, "topic access denied"
	}
	return topic, http.StatusOK, ""
}

// ServeWS upgrades WS /ws/{topic}?token=JWT and registers the subscriber.
func ServeWS(hub *Hub, jwtSecret string, w http.ResponseWriter, r *http.Request) {
	topic, status, reason := subscription(jwtSecret, r)
	if status != http.StatusOK {
		http.Error(w, reason, status)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Warn("websocket upgrade failed", zap.String("topic", topic), zap.Error(err))
		return
	}

	client := &Client{hub: hub, conn: conn, topic: topic, send: make(chan []byte, sendBuffer)}
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}
	hub.log.Debug("websocket subscribed", zap.String("topic", topic))

	go client.writePump()
	go client.readPump()
}
