package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"w0rd/internal/llm"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// hub fans hormone events and cortex thinking tokens out to connected
// WebSocket clients.
type hub struct {
	mu       sync.Mutex
	garden   map[*websocket.Conn]bool
	thinking map[*websocket.Conn]bool
	log      *zap.Logger
}

func newHub(log *zap.Logger) *hub {
	return &hub{
		garden:   make(map[*websocket.Conn]bool),
		thinking: make(map[*websocket.Conn]bool),
		log:      log,
	}
}

type gardenFrame struct {
	Event     string  `json:"event"`
	Data      any     `json:"data"`
	Timestamp float64 `json:"timestamp"`
}

// broadcastGarden sends an event frame to every garden watcher.
// Writes happen under the hub lock so frames never interleave.
func (h *hub) broadcastGarden(event string, data any) {
	frame := gardenFrame{
		Event:     event,
		Data:      data,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.garden {
		if err := conn.WriteJSON(frame); err != nil {
			h.log.Debug("garden watcher dropped", zap.Error(err))
			conn.Close()
			delete(h.garden, conn)
		}
	}
}

type thinkingFrame struct {
	Type string `json:"type"`
	llm.ThinkingEvent
}

// broadcastThinking streams a cortex token to the thinking watchers
// and mirrors it onto the garden stream.
func (h *hub) broadcastThinking(ev llm.ThinkingEvent) {
	frame := thinkingFrame{Type: "thinking", ThinkingEvent: ev}
	h.mu.Lock()
	for conn := range h.thinking {
		if err := conn.WriteJSON(frame); err != nil {
			conn.Close()
			delete(h.thinking, conn)
		}
	}
	h.mu.Unlock()

	h.broadcastGarden("thinking", ev)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.garden {
		conn.Close()
	}
	for conn := range h.thinking {
		conn.Close()
	}
	h.garden = make(map[*websocket.Conn]bool)
	h.thinking = make(map[*websocket.Conn]bool)
}

func (s *Server) handleGardenWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("garden websocket upgrade failed", zap.Error(err))
		return
	}

	s.hub.mu.Lock()
	s.hub.garden[conn] = true
	s.hub.mu.Unlock()
	s.log.Info("garden watcher connected", zap.String("remote", r.RemoteAddr))

	defer func() {
		s.hub.mu.Lock()
		delete(s.hub.garden, conn)
		s.hub.mu.Unlock()
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if string(msg) == "ping" {
			s.hub.mu.Lock()
			err = conn.WriteJSON(gardenFrame{
				Event:     "pong",
				Timestamp: float64(time.Now().UnixNano()) / 1e9,
			})
			s.hub.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) handleThinkingWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("thinking websocket upgrade failed", zap.Error(err))
		return
	}

	s.hub.mu.Lock()
	s.hub.thinking[conn] = true
	s.hub.mu.Unlock()

	defer func() {
		s.hub.mu.Lock()
		delete(s.hub.thinking, conn)
		s.hub.mu.Unlock()
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if string(msg) == "ping" {
			s.hub.mu.Lock()
			err = conn.WriteJSON(map[string]string{"type": "pong"})
			s.hub.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
