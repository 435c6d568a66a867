package syncclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"restaurant-sync/internal/domain"
)

const (
	// DefaultPushIdle is how long a stream may stay silent, pings included,
	// before it is treated as dead. The server pings every 30s by default.
	DefaultPushIdle = 75 * time.Second
	pongWait        = 5 * time.Second
)

// WSPushSource opens the server's websocket push channel.
type WSPushSource struct {
	BaseURL   string
	SessionID string
	Token     string
	Dialer    *websocket.Dialer
	// IdleTimeout bounds the silence between frames; zero means DefaultPushIdle.
	IdleTimeout time.Duration
}

func NewWSPushSource(baseURL, sessionID, token string) *WSPushSource {
	return &WSPushSource{
		BaseURL:     baseURL,
		SessionID:   sessionID,
		Token:       token,
		Dialer:      websocket.DefaultDialer,
		IdleTimeout: DefaultPushIdle,
	}
}

func (p *WSPushSource) endpoint() string {
	u := strings.TrimRight(p.BaseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/api/v1/ws?session_id=" + url.QueryEscape(p.SessionID)
}

func (p *WSPushSource) Subscribe(ctx context.Context) (Stream, error) {
	hdr := http.Header{}
	if p.Token != "" {
		hdr.Set("Authorization", "Bearer "+p.Token)
	}
	conn, resp, err := p.Dialer.DialContext(ctx, p.endpoint(), hdr)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			defer resp.Body.Close()
			return nil, problemError(p.SessionID, resp)
		}
		return nil, &domain.TransportError{Op: "dial push", Err: err}
	}
	idle := p.IdleTimeout
	if idle <= 0 {
		idle = DefaultPushIdle
	}
	st := &wsStream{conn: conn, idle: idle}
	_ = conn.SetReadDeadline(time.Now().Add(idle))
	conn.SetPingHandler(st.onPing)
	return st, nil
}

type wsStream struct {
	conn *websocket.Conn
	idle time.Duration
}

// onPing keeps a quiet but healthy stream alive and answers like the
// default handler does.
func (s *wsStream) onPing(data string) error {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.idle))
	err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(pongWait))
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

func (s *wsStream) Recv() (domain.Envelope, error) {
	var env domain.Envelope
	if err := s.conn.ReadJSON(&env); err != nil {
		return env, err
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(s.idle))
	return env, nil
}

func (s *wsStream) Close() error { return s.conn.Close() }
