package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/swebotic/coordfab/internal/metrics"
	"github.com/swebotic/coordfab/internal/notifications"
)

const wsSendBuffer = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsMessageType tags the payload carried in a dashboardMessage.
type wsMessageType string

const (
	wsTypeSnapshot   wsMessageType = "snapshot"
	wsTypeBanner     wsMessageType = "banner"
	wsTypeEscalation wsMessageType = "escalation"
)

type dashboardMessage struct {
	Type wsMessageType `json:"type"`
	Data any           `json:"data"`
}

// wsClient is one connected dashboard browser.
type wsClient struct {
	hub  *hub
	conn *websocket.Conn
	send chan []byte
}

// hub fans scheduler/plan/escalation state out to every connected
// dashboard client, following the teacher's register/unregister/broadcast
// channel pattern (internal/server/hub.go in the teacher).
type hub struct {
	mu         sync.RWMutex
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte
}

func newHub() *hub {
	return &hub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, wsSendBuffer),
	}
}

func (h *hub) run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *hub) broadcastJSON(msgType wsMessageType, data any) {
	payload, err := json.Marshal(dashboardMessage{Type: msgType, Data: data})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- payload:
	default:
	}
}

func (h *hub) broadcastSnapshot(snap metrics.Snapshot)  { h.broadcastJSON(wsTypeSnapshot, snap) }
func (h *hub) broadcastBanner(b notifications.BannerState) {
	h.broadcastJSON(wsTypeBanner, b)
}
func (h *hub) broadcastEscalation(repo string, number int, reason string) {
	h.broadcastJSON(wsTypeEscalation, map[string]any{"repo": repo, "number": number, "reason": reason})
}

func (h *hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsClient{hub: h, conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
