// Package push delivers hub envelopes to outbound consumers: browser UIs over
// WebSocket and downstream services over NATS. Delivery is fire-and-forget.
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/pss/internal/adapters/mq/hub"
	"github.com/okian/pss/internal/domain/model"
	"github.com/okian/pss/pkg/logger"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 4096
)

// WebSocket upgrades UI clients and streams envelopes to them. Each client gets
// its own hub subscription, so a stalled browser only loses its own frames.
type WebSocket struct {
	hub      *hub.Hub
	state    func() model.MatchState
	upgrader websocket.Upgrader
	log      logger.Logger
}

// WebSocketOption configures the handler.
type WebSocketOption func(*WebSocket)

// WithInitialState sends the current match state as the first frame.
func WithInitialState(fn func() model.MatchState) WebSocketOption {
	return func(w *WebSocket) { w.state = fn }
}

// WithWebSocketLogger sets a custom logger.
func WithWebSocketLogger(l logger.Logger) WebSocketOption {
	return func(w *WebSocket) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWebSocket creates the /ws handler.
func NewWebSocket(h *hub.Hub, opts ...WebSocketOption) *WebSocket {
	w := &WebSocket{
		hub: h,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		log: logger.Get().Named("websocket"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *WebSocket) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.log.Debug(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	name := "ws-" + uuid.NewString()[:8]
	sub := w.hub.Subscribe(name)
	w.log.Info(r.Context(), "ui client connected", logger.String("subscriber", name), logger.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(context.Background())
	go w.readPump(conn, cancel)
	w.writePump(ctx, conn, sub)

	w.hub.Unsubscribe(sub)
	_ = conn.Close()
	w.log.Info(ctx, "ui client disconnected", logger.String("subscriber", name), logger.Int64("dropped", sub.Dropped()))
}

// readPump discards client frames and cancels on disconnect.
func (w *WebSocket) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (w *WebSocket) writePump(ctx context.Context, conn *websocket.Conn, sub *hub.Subscription) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	if w.state != nil {
		st := w.state()
		if err := writeJSON(conn, hub.Envelope{Kind: hub.KindMatchDelta, Delta: &model.MatchDelta{State: st, At: time.Now()}}); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C():
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := writeJSON(conn, env); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, env hub.Envelope) error { //nolint:gocritic // hugeParam: envelopes arrive by value
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
