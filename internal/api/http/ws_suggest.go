package apihttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"cineverse/discovery/internal/metrics"
	"cineverse/discovery/internal/suggest"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsReadLimit  = 4096
	wsSendBuffer = 64
)

type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// wsClientFrame is anything a browser sends. Index is a pointer so a missing
// index is distinguishable from 0.
type wsClientFrame struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
	Key   string `json:"key,omitempty"`
	Index *int   `json:"index,omitempty"`
}

type wsReady struct {
	SessionID string        `json:"sessionId"`
	State     suggest.State `json:"state"`
}

// suggestSession couples one websocket with one suggest engine.
type suggestSession struct {
	id     string
	conn   *websocket.Conn
	engine *suggest.Engine
	send   chan []byte
	done   chan struct{}
	cancel context.CancelFunc
	logger *slog.Logger
	once   sync.Once
}

type suggestSessions struct {
	mu       sync.Mutex
	sessions map[string]*suggestSession
	logger   *slog.Logger
}

func newSuggestSessions(logger *slog.Logger) *suggestSessions {
	return &suggestSessions{
		sessions: make(map[string]*suggestSession),
		logger:   logger,
	}
}

func (h *suggestSessions) add(session *suggestSession) {
	h.mu.Lock()
	h.sessions[session.id] = session
	total := len(h.sessions)
	h.mu.Unlock()
	metrics.SuggestSessionsActive.Inc()
	h.logger.Debug("suggest session opened", slog.String("session", session.id), slog.Int("total", total))
}

func (h *suggestSessions) remove(session *suggestSession) {
	h.mu.Lock()
	_, ok := h.sessions[session.id]
	delete(h.sessions, session.id)
	total := len(h.sessions)
	h.mu.Unlock()
	if ok {
		metrics.SuggestSessionsActive.Dec()
		h.logger.Debug("suggest session closed", slog.String("session", session.id), slog.Int("total", total))
	}
}

func (h *suggestSessions) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *suggestSessions) closeAll() {
	h.mu.Lock()
	sessions := make([]*suggestSession, 0, len(h.sessions))
	for _, session := range h.sessions {
		sessions = append(sessions, session)
	}
	h.mu.Unlock()

	for _, session := range sessions {
		_ = session.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(2*time.Second),
		)
		session.shutdown()
	}
}

func (s *Server) handleSuggestWS(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		http.Error(w, "suggestions not available", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	session := &suggestSession{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, wsSendBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
		logger: s.logger.With(slog.String("session", id)),
	}
	opts := append([]suggest.Option{
		suggest.WithLogger(session.logger),
		suggest.WithContext(ctx),
		suggest.WithListener(session.onEvent),
	}, s.suggestOpts...)
	session.engine = suggest.New(s.catalog, opts...)

	s.sessions.add(session)
	session.push("ready", wsReady{SessionID: id, State: session.engine.State()})

	go session.writePump()
	go func() {
		session.readPump()
		s.sessions.remove(session)
	}()
}

// onEvent runs under the engine lock, so it only enqueues.
func (c *suggestSession) onEvent(event suggest.Event) {
	c.push(string(event.Kind), event)
}

func (c *suggestSession) push(kind string, data any) {
	payload, err := json.Marshal(wsMessage{Type: kind, Data: data})
	if err != nil {
		c.logger.Error("ws marshal failed", slog.String("error", err.Error()))
		return
	}
	select {
	case <-c.done:
	case c.send <- payload:
	default:
		c.logger.Warn("ws send buffer full, dropping frame", slog.String("type", kind))
	}
}

func (c *suggestSession) pushError(code, message string) {
	c.push("error", map[string]string{"code": code, "message": message})
}

func (c *suggestSession) shutdown() {
	c.once.Do(func() {
		c.engine.Close()
		c.cancel()
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *suggestSession) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *suggestSession) readPump() {
	defer c.shutdown()
	c.conn.SetReadLimit(wsReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("ws read failed", slog.String("error", err.Error()))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var frame wsClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.pushError("invalid_frame", "frame is not valid json")
			continue
		}
		c.dispatch(frame)
	}
}

func (c *suggestSession) dispatch(frame wsClientFrame) {
	switch frame.Type {
	case "query":
		c.engine.SetQuery(frame.Value)
	case "key":
		key, ok := suggest.ParseKey(frame.Key)
		if !ok {
			c.pushError("invalid_key", "unsupported key")
			return
		}
		c.engine.HandleKey(key)
	case "select":
		if frame.Index == nil || !c.engine.Select(*frame.Index) {
			c.pushError("invalid_index", "no suggestion at index")
		}
	case "highlight":
		index := -1
		if frame.Index != nil {
			index = *frame.Index
		}
		c.engine.Highlight(index)
	case "focus":
		c.engine.Focus()
	case "blur", "clickOutside":
		c.engine.ClickOutside()
	case "submit":
		c.engine.Submit()
	case "state":
		c.push("state", c.engine.State())
	default:
		c.pushError("invalid_frame", "unknown frame type")
	}
}
