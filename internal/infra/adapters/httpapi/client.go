// Package httpapi is the client side of the gateway's REST surface:
// session records, chat persistence, roster snapshots and transport
// token issuance.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/meetsync/meetsync/internal/domain/input"
	"github.com/meetsync/meetsync/internal/domain/models"
	"github.com/meetsync/meetsync/internal/infra/ports/http/dto"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// TokenFor requests a fresh transport token. Never cached: every join
// calls this again.
func (c *Client) TokenFor(ctx context.Context, roomID, identity string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/v1/token?room=%s&identity=%s",
		c.baseURL, url.QueryEscape(roomID), url.QueryEscape(identity))

	var resp dto.TokenResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}

	return resp.Token, nil
}

// SessionByRoomID fetches the session record. A 404 yields (nil, nil):
// the scheduling gate maps a missing record to its NotFound verdict.
func (c *Client) SessionByRoomID(ctx context.Context, roomID string) (*models.Session, error) {
	endpoint := fmt.Sprintf("%s/api/v1/sessions/room/%s", c.baseURL, url.PathEscape(roomID))

	var session models.Session
	found, err := c.getJSONMaybe(ctx, endpoint, &session)
	if err != nil {
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	if !found {
		return nil, nil
	}

	return &session, nil
}

func (c *Client) SessionByID(ctx context.Context, id int64) (*models.Session, error) {
	endpoint := fmt.Sprintf("%s/api/v1/sessions/%d", c.baseURL, id)

	var session models.Session
	found, err := c.getJSONMaybe(ctx, endpoint, &session)
	if err != nil {
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	if !found {
		return nil, nil
	}

	return &session, nil
}

func (c *Client) CreateSession(ctx context.Context, in *input.CreateSessionInput) (*models.Session, error) {
	body := dto.CreateSessionRequest{Title: in.Title, StartsAt: in.StartsAt, EndsAt: in.EndsAt}

	var session models.Session
	if err := c.postJSON(ctx, c.baseURL+"/api/v1/sessions", body, &session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &session, nil
}

func (c *Client) EndSession(ctx context.Context, id int64) error {
	endpoint := fmt.Sprintf("%s/api/v1/sessions/%d/end", c.baseURL, id)

	if err := c.postJSON(ctx, endpoint, nil, nil); err != nil {
		return fmt.Errorf("end session: %w", err)
	}

	return nil
}

// Append implements chat.Store.
func (c *Client) Append(ctx context.Context, msg models.ChatMessage) error {
	body := dto.AppendMessageRequest{
		SessionID:  msg.SessionID,
		RoomID:     msg.RoomID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Text:       msg.Text,
	}

	if err := c.postJSON(ctx, c.baseURL+"/api/v1/messages", body, nil); err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	return nil
}

// Query implements chat.Store.
func (c *Client) Query(ctx context.Context, sessionID int64) ([]models.ChatMessage, error) {
	endpoint := fmt.Sprintf("%s/api/v1/messages/%d", c.baseURL, sessionID)

	var resp dto.ListMessagesResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	return resp.Messages, nil
}

// ICEServers fetches the gateway's ICE configuration, including
// ephemeral TURN credentials when the deployment has them.
func (c *Client) ICEServers(ctx context.Context) ([]webrtc.ICEServer, error) {
	var servers []webrtc.ICEServer
	if err := c.getJSON(ctx, c.baseURL+"/api/v1/ice", &servers); err != nil {
		return nil, fmt.Errorf("fetch ice servers: %w", err)
	}

	return servers, nil
}

// RoomMembers pulls the authoritative roster snapshot.
func (c *Client) RoomMembers(ctx context.Context, roomID string) ([]models.RoomMember, error) {
	endpoint := fmt.Sprintf("%s/api/v1/rooms/%s/members", c.baseURL, url.PathEscape(roomID))

	var resp dto.RosterResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("fetch room members: %w", err)
	}

	return resp.Members, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	found, err := c.getJSONMaybe(ctx, endpoint, out)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("unexpected status %d", http.StatusNotFound)
	}

	return nil
}

func (c *Client) getJSONMaybe(ctx context.Context, endpoint string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return true, nil
	}

	return true, json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body, out any) error {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
