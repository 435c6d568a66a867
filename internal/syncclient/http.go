package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"restaurant-sync/internal/domain"
)

// Client talks to the sync server's REST API on behalf of one session.
type Client struct {
	BaseURL   string
	SessionID string
	Token     string
	HTTP      *http.Client
}

func NewClient(baseURL, sessionID, token string) *Client {
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		SessionID: sessionID,
		Token:     token,
		HTTP:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Snapshot implements Snapshotter with the poll endpoint.
func (c *Client) Snapshot(ctx context.Context) ([]domain.OrderEvent, error) {
	var out []domain.OrderEvent
	err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(c.SessionID)+"/orders", nil, &out)
	return out, err
}

// SubmitStatus posts a status command and returns the committed order.
func (c *Client) SubmitStatus(ctx context.Context, orderID string, requested domain.Status) (domain.Order, error) {
	var out domain.OrderResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/orders/"+url.PathEscape(orderID)+"/status",
		domain.CommandRequest{RequestedStatus: string(requested)}, &out)
	return out.Order, err
}

func (c *Client) CreateOrder(ctx context.Context, items []domain.OrderItem) (domain.Order, error) {
	var out domain.OrderResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+url.PathEscape(c.SessionID)+"/orders",
		domain.CreateOrderRequest{Items: items}, &out)
	return out.Order, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &domain.TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return problemError(c.SessionID, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.TransportError{Op: "decode " + path, Err: err}
	}
	return nil
}

type problem struct {
	domain.ErrorResponse
	FieldErrors map[string]string `json:"field_errors"`
}

// problemError maps an error response back onto the domain taxonomy.
func problemError(sessionID string, resp *http.Response) error {
	var p problem
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &p); err != nil {
		p.Detail = strings.TrimSpace(string(raw))
	}

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &domain.ValidationError{Reason: p.Reason, Fields: p.FieldErrors}
	case http.StatusConflict:
		switch p.Reason {
		case domain.ReasonTerminalState:
			return &domain.TransitionError{Code: domain.TerminalState}
		case domain.ReasonInvalidTransition:
			return &domain.TransitionError{Code: domain.InvalidTransition}
		}
		return fmt.Errorf("%s: %w", p.Detail, domain.ErrVersionConflict)
	case http.StatusForbidden, http.StatusUnauthorized:
		return &domain.AuthorizationError{Scope: sessionID, Reason: p.Detail}
	case http.StatusGone:
		at, _ := time.Parse(time.RFC3339Nano, p.Reason)
		return &domain.SessionExpiredError{SessionID: sessionID, ExpiresAt: at}
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", p.Detail, domain.ErrNotFound)
	}
	return &domain.TransportError{Op: "http", Err: fmt.Errorf("status %d: %s", resp.StatusCode, p.Detail)}
}
