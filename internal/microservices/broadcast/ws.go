package broadcast

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"restaurant-sync/internal/common/httpx"
	"restaurant-sync/internal/common/logger"
	"restaurant-sync/internal/domain"
)

const maxMessageSize = 512

// WSConn adapts a websocket connection to Conn.
type WSConn struct {
	ws        *websocket.Conn
	scope     string
	writeWait time.Duration
	closeOnce sync.Once
}

func NewWSConn(ws *websocket.Conn, scope string, writeWait time.Duration) *WSConn {
	return &WSConn{ws: ws, scope: scope, writeWait: writeWait}
}

func (c *WSConn) Scope() string { return c.scope }

func (c *WSConn) Send(env domain.Envelope) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(env)
}

func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.writeWait))
		err = c.ws.Close()
	})
	return err
}

func (c *WSConn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

// Gate authorises a bearer token for a session scope.
type Gate interface {
	Authorize(ctx context.Context, sessionID, token string) (domain.GuestSession, string, error)
	IsActive(ctx context.Context, sessionID string) (bool, error)
}

type Handler struct {
	b          *Broadcaster
	gate       Gate
	writeWait  time.Duration
	pingPeriod time.Duration
	upgrader   websocket.Upgrader
	lg         *logger.Logger
}

func NewHandler(b *Broadcaster, gate Gate, writeWait, pingPeriod time.Duration, lg *logger.Logger) *Handler {
	if lg == nil {
		lg = logger.New("broadcast-ws")
	}
	return &Handler{
		b:          b,
		gate:       gate,
		writeWait:  writeWait,
		pingPeriod: pingPeriod,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		lg: lg,
	}
}

// ServeHTTP handles GET /api/v1/ws?session_id=...
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		httpx.WriteError(w, &domain.ValidationError{Field: "session_id", Reason: "required"})
		return
	}
	sess, _, err := h.gate.Authorize(r.Context(), sessionID, httpx.BearerToken(r))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.lg.Error("ws_upgrade_failed", err, map[string]any{"session_id": sessionID})
		return
	}
	conn := NewWSConn(ws, sess.ID, h.writeWait)

	sub, err := h.b.Subscribe(sessionID, conn)
	if err != nil {
		h.lg.Error("subscribe_rejected", err, map[string]any{"session_id": sessionID})
		_ = conn.Close()
		return
	}

	// The session may have expired between authorisation and joining the
	// group, in which case the scope was already closed without us.
	if active, err := h.gate.IsActive(context.Background(), sess.ID); err != nil || !active {
		h.b.Unsubscribe(sub)
		<-sub.Done()
		return
	}

	go h.keepalive(conn, sub)
	h.readPump(ws, sub)
	h.b.Unsubscribe(sub)
	<-sub.Done()
}

func (h *Handler) keepalive(conn *WSConn, sub *Subscription) {
	t := time.NewTicker(h.pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-sub.Done():
			return
		case <-t.C:
			if err := conn.ping(); err != nil {
				h.b.Unsubscribe(sub)
				return
			}
		}
	}
}

// readPump discards inbound frames; it exists to notice disconnects and
// answer pongs.
func (h *Handler) readPump(ws *websocket.Conn, sub *Subscription) {
	pongWait := h.pingPeriod * 2
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
		select {
		case <-sub.Done():
			return
		default:
		}
	}
}
