// Package wshub implements the one concrete transport the repository
// ships: a gorilla/websocket broadcaster that fans engine state out to
// every connection subscribed to a session id. It exists to make the
// "exactly one stream start/done, never interleaved" property observable
// end to end; it is not meant to replace the external channel bots.
package wshub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	maxPayloadBytes = 1 << 20
	pongWait        = 45 * time.Second
	writeWait       = 10 * time.Second
	sendBufferSize  = 64
)

// Broadcaster is the interface the chat engine drives; implementations
// fan these calls out to whatever transport subscribers use.
type Broadcaster interface {
	BroadcastState(sessionID string, state string)
	BroadcastThinkingStatus(sessionID string, thinking bool)
	BroadcastMessage(sessionID string, role, content string)
	BroadcastAssistantStreamStart(sessionID, streamID string)
	BroadcastAssistantStreamDelta(sessionID, streamID, delta string)
	BroadcastAssistantStreamDone(sessionID, streamID string)
}

type frame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	StreamID  string `json:"streamId,omitempty"`
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
	State     string `json:"state,omitempty"`
	Thinking  *bool  `json:"thinking,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type conn struct {
	ws   *websocket.Conn
	send chan []byte
}

// Hub is a Broadcaster backed by live websocket connections, grouped by
// session id. One process holds one Hub; every session's connections
// live under the same map key.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]map[*conn]struct{}
	logger *slog.Logger

	upgrader websocket.Upgrader

	// streaming tracks, per session, the streamID currently open so a
	// second StreamStart before the first one's Done is rejected rather
	// than silently interleaving two streams on the wire.
	streamMu sync.Mutex
	active   map[string]string
}

// New creates an empty Hub.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		conns:  make(map[string]map[*conn]struct{}),
		active: make(map[string]string),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request to a websocket connection and
// subscribes it to sessionID's broadcasts until the connection closes.
func (h *Hub) ServeHTTP(sessionID string, w http.ResponseWriter, r *http.Request) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &conn{ws: ws, send: make(chan []byte, sendBufferSize)}
	h.subscribe(sessionID, c)
	defer h.unsubscribe(sessionID, c)

	go c.writeLoop()
	c.readLoop()
	return nil
}

func (h *Hub) subscribe(sessionID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[sessionID]
	if !ok {
		set = make(map[*conn]struct{})
		h.conns[sessionID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unsubscribe(sessionID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.conns[sessionID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, sessionID)
		}
	}
	close(c.send)
	_ = c.ws.Close()
}

func (c *conn) readLoop() {
	c.ws.SetReadLimit(maxPayloadBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *conn) writeLoop() {
	for msg := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (h *Hub) broadcast(sessionID string, f frame) {
	f.SessionID = sessionID
	f.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("wshub: failed to marshal frame", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[sessionID] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("wshub: dropping frame, send buffer full", "session_id", sessionID)
		}
	}
}

// BroadcastState fans out a coarse session-state transition (e.g.
// "idle", "running", "waiting_confirmation").
func (h *Hub) BroadcastState(sessionID string, state string) {
	h.broadcast(sessionID, frame{Type: "state", State: state})
}

// BroadcastThinkingStatus fans out whether the engine is currently
// working on a reply for this session.
func (h *Hub) BroadcastThinkingStatus(sessionID string, thinking bool) {
	h.broadcast(sessionID, frame{Type: "thinking", Thinking: &thinking})
}

// BroadcastMessage fans out a complete, non-streamed message.
func (h *Hub) BroadcastMessage(sessionID string, role, content string) {
	h.broadcast(sessionID, frame{Type: "message", Role: role, Content: content})
}

// BroadcastAssistantStreamStart begins a streamed assistant reply. It
// returns without sending anything if a stream is already open for this
// session — callers must pair every Start with a Done before starting
// another, and the hub enforces that instead of trusting the caller.
func (h *Hub) BroadcastAssistantStreamStart(sessionID, streamID string) {
	h.streamMu.Lock()
	if existing, ok := h.active[sessionID]; ok {
		h.streamMu.Unlock()
		h.logger.Error("wshub: stream start while another stream is open",
			"session_id", sessionID, "existing_stream_id", existing, "new_stream_id", streamID)
		return
	}
	h.active[sessionID] = streamID
	h.streamMu.Unlock()

	h.broadcast(sessionID, frame{Type: "stream_start", StreamID: streamID})
}

// BroadcastAssistantStreamDelta fans out one incremental chunk of the
// open stream. A delta for a streamID that isn't the currently open one
// is dropped rather than sent out of order.
func (h *Hub) BroadcastAssistantStreamDelta(sessionID, streamID, delta string) {
	h.streamMu.Lock()
	current := h.active[sessionID]
	h.streamMu.Unlock()
	if current != streamID {
		h.logger.Warn("wshub: dropping delta for stream not currently open",
			"session_id", sessionID, "stream_id", streamID)
		return
	}
	h.broadcast(sessionID, frame{Type: "stream_delta", StreamID: streamID, Content: delta})
}

// BroadcastAssistantStreamDone closes the open stream for sessionID,
// clearing the way for a subsequent Start.
func (h *Hub) BroadcastAssistantStreamDone(sessionID, streamID string) {
	h.streamMu.Lock()
	if h.active[sessionID] == streamID {
		delete(h.active, sessionID)
	}
	h.streamMu.Unlock()
	h.broadcast(sessionID, frame{Type: "stream_done", StreamID: streamID})
}

// NewStreamID generates an identifier for one streamed assistant reply.
func NewStreamID() string {
	return uuid.NewString()
}

var _ Broadcaster = (*Hub)(nil)
