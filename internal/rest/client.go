// Package rest implements the request/response half of the chat boundary:
// the start call that creates or continues a room, and the backlog fetch.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sirojiddin1dev/carinfopro/internal/models"
)

// Client is a chat API client. Every call is bound to one explicit base URL;
// iterating candidate bases belongs to the session controller.
type Client struct {
	HTTPClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a new chat API client.
func NewClient(logger zerolog.Logger) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// StartRequest is the request body for starting or continuing a room.
// RoomID and VisitorToken are set only when requesting continuation of a
// previously issued room.
type StartRequest struct {
	UserID       string `json:"user_id"`
	VisitorName  string `json:"visitor_name,omitempty"`
	RoomID       string `json:"room_id,omitempty"`
	VisitorToken string `json:"visitor_token,omitempty"`
}

// StartResponse is the response from starting a room.
type StartResponse struct {
	RoomID       string `json:"room_id"`
	VisitorToken string `json:"visitor_token"`
	WSPath       string `json:"ws_path"`
}

// StartRoom starts a chat room with an owner, or continues a previous one.
func (c *Client) StartRoom(ctx context.Context, base string, req StartRequest) (*StartResponse, error) {
	var resp StartResponse
	if err := c.do(ctx, http.MethodPost, base+"/api/chat/start/", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// historyEntry mirrors one backlog record on the wire.
type historyEntry struct {
	ID         string     `json:"id"`
	RoomID     string     `json:"room_id"`
	SenderType string     `json:"sender_type"`
	Content    string     `json:"content"`
	CreatedAt  *time.Time `json:"created_at"`
}

// FetchHistory retrieves the backlog for a room, in the order the service
// returns it (oldest first). The entries are normalized into ChatMessages;
// no re-sorting happens here or anywhere downstream.
func (c *Client) FetchHistory(ctx context.Context, base, roomID, visitorToken string) ([]models.ChatMessage, error) {
	target := base + "/api/chat/rooms/" + url.PathEscape(roomID) + "/messages/?visitor=" + url.QueryEscape(visitorToken)

	var entries []historyEntry
	if err := c.do(ctx, http.MethodGet, target, nil, &entries); err != nil {
		return nil, err
	}

	msgs := make([]models.ChatMessage, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, models.ChatMessage{
			ID:        e.ID,
			Sender:    e.SenderType,
			Text:      e.Content,
			CreatedAt: e.CreatedAt,
		})
	}
	return msgs, nil
}

// do performs one HTTP round trip and classifies every failure mode.
func (c *Client) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &APIError{Kind: KindMalformed, Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &APIError{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &APIError{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Kind: KindNetwork, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Kind: KindRejected, Status: resp.StatusCode, Detail: rejectionDetail(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &APIError{Kind: KindMalformed, Err: err}
		}
	}
	return nil
}

// rejectionDetail extracts the server-supplied reason from an error body.
// The backend uses "detail" (DRF style); some deployments front it with
// proxies that answer {"error": ...}.
func rejectionDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return "request rejected"
}
