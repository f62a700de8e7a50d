package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/rewired-gh/gamepulse/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// ClientObserver is notified as WebSocket clients come and go.
type ClientObserver interface {
	ClientConnected()
	ClientDisconnected()
}

type message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type client struct {
	id   string
	conn *websocket.Conn
	// send holds at most one pending frame; a newer snapshot replaces it.
	send chan []byte
}

// Hub pushes dashboard snapshots to every connected WebSocket client.
type Hub struct {
	engine   Engine
	observer ClientObserver
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
	wg      sync.WaitGroup
}

func NewHub(engine Engine, observer ClientObserver) *Hub {
	return &Hub{
		engine:   engine,
		observer: observer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// Run broadcasts a snapshot after each engine change until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-h.engine.Changes():
			h.broadcast()
		}
	}
}

func (h *Hub) frame() ([]byte, error) {
	return json.Marshal(message{Type: "snapshot", Data: h.engine.Snapshot()})
}

func (h *Hub) broadcast() {
	h.mu.Lock()
	n := len(h.clients)
	h.mu.Unlock()
	if n == 0 {
		return
	}

	b, err := h.frame()
	if err != nil {
		logger.Error("Failed to encode snapshot: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		offer(c.send, b)
	}
}

func offer(ch chan []byte, b []byte) {
	for {
		select {
		case ch <- b:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Serve upgrades the request and streams snapshots to the client.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed: %v", err)
		return nil
	}

	cl := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, 1)}
	h.mu.Lock()
	h.clients[cl.id] = cl
	h.mu.Unlock()
	if h.observer != nil {
		h.observer.ClientConnected()
	}
	logger.Debug("WebSocket client %s connected", cl.id)

	if b, err := h.frame(); err == nil {
		offer(cl.send, b)
	}

	h.wg.Add(1)
	go h.writeLoop(cl)
	h.readLoop(cl)
	return nil
}

// readLoop discards inbound frames and detects disconnects.
func (h *Hub) readLoop(cl *client) {
	defer h.remove(cl)
	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(cl *client) {
	defer h.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer cl.conn.Close()

	for {
		select {
		case b, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	_, ok := h.clients[cl.id]
	if ok {
		delete(h.clients, cl.id)
		close(cl.send)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	if h.observer != nil {
		h.observer.ClientDisconnected()
	}
	logger.Debug("WebSocket client %s disconnected", cl.id)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(c)
	}
	h.wg.Wait()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
