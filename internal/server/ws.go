package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/emocall/internal/expression"
)

const (
	writeWait      = 5 * time.Second
	clientSendSize = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Message is one face update pushed to WebSocket clients.
type Message struct {
	Score     float64              `json:"score"`
	Symbol    string               `json:"symbol"`
	Emoji     string               `json:"emoji"`
	Indicator expression.Indicator `json:"indicator"`
	Timestamp int64                `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts expression updates to connected WebSocket clients. Slow
// clients lose messages instead of delaying the others.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	last    []byte
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Publish sends an update to every client. It matches expression.UpdateFunc
// and may be called from any goroutine.
func (h *Hub) Publish(score float64, symbol string) {
	s := expression.Symbol(symbol)
	msg, err := json.Marshal(Message{
		Score:     score,
		Symbol:    symbol,
		Emoji:     s.Emoji(),
		Indicator: expression.IndicatorFor(score),
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		log.WithError(err).Error("Failed to encode update")
		return
	}

	h.mu.Lock()
	h.last = msg
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			log.WithField("remote", c.conn.RemoteAddr().String()).Debug("WebSocket client lagging, update dropped")
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams updates until the client goes away.
// A newly connected client first receives the most recent update, if any.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendSize)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go h.writePump(c, done)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()

	<-done
	conn.Close()
}

func (h *Hub) writePump(c *client, done chan<- struct{}) {
	defer close(done)
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.WithError(err).Debug("WebSocket write failed")
			// Unblocks the read loop, which unregisters the client.
			c.conn.Close()
			for range c.send {
			}
			return
		}
	}
}
