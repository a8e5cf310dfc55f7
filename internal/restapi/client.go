// Package restapi calls the marketplace's HTTP API: conversation
// directory and history fetches, plus the notification inbox. It is a
// collaborator of the realtime core, not part of it; a failed call
// degrades to "unavailable" and is never retried here.
package restapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"roomchat/internal/auth"
	"roomchat/internal/models"
)

// Client talks to the REST backend with bearer authentication.
type Client struct {
	baseURL string
	tokens  auth.TokenSource
	http    *http.Client
}

// NewClient builds a client for baseURL (e.g. http://host/api).
func NewClient(baseURL string, tokens auth.TokenSource) *Client {
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// ListRooms fetches every conversation the authenticated user is part of.
func (c *Client) ListRooms(ctx context.Context) ([]models.Conversation, error) {
	var rooms []models.Conversation
	if err := c.get(ctx, "/chat/rooms/", &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// RoomForUser finds or creates the conversation with peerUserID.
func (c *Client) RoomForUser(ctx context.Context, peerUserID int64) (*models.Conversation, error) {
	var room models.Conversation
	if err := c.get(ctx, fmt.Sprintf("/chat/room/%d/", peerUserID), &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// Messages fetches the ordered history of a conversation.
func (c *Client) Messages(ctx context.Context, roomID int64) ([]models.Message, error) {
	var raw []historyMessage
	if err := c.get(ctx, fmt.Sprintf("/chat/messages/%d/", roomID), &raw); err != nil {
		return nil, err
	}
	out := make([]models.Message, 0, len(raw))
	for _, m := range raw {
		out = append(out, m.toModel())
	}
	return out, nil
}

// NotificationPage is the bulk notification fetch result.
type NotificationPage struct {
	Results     []models.Notification `json:"results"`
	UnreadCount int                   `json:"unread_count"`
}

// ListNotifications fetches the inbox with its unread counter.
func (c *Client) ListNotifications(ctx context.Context) (*NotificationPage, error) {
	var page NotificationPage
	if err := c.get(ctx, "/notifications/", &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// MarkNotificationRead flags one notification as read server-side.
func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/notifications/%d/read/", id), nil)
}

// MarkAllNotificationsRead flags the whole inbox as read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/notifications/mark-all-read/", nil)
}

// DeleteNotification removes a notification permanently.
func (c *Client) DeleteNotification(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/notifications/%d/", id), nil)
}

// historyMessage is the REST history shape: sender and receiver come as
// nested user objects rather than the flat websocket frame fields.
type historyMessage struct {
	ID        int64              `json:"id"`
	Sender    models.Participant `json:"sender"`
	Message   string             `json:"message"`
	Timestamp time.Time          `json:"timestamp"`
	IsRead    bool               `json:"is_read"`
	IsEdited  bool               `json:"is_edited"`
	IsDeleted bool               `json:"is_deleted"`
}

func (h historyMessage) toModel() models.Message {
	m := models.Message{
		ID:             h.ID,
		SenderID:       h.Sender.ID,
		SenderUsername: h.Sender.Username,
		Body:           h.Message,
		Timestamp:      h.Timestamp,
		IsRead:         h.IsRead,
		IsEdited:       h.IsEdited,
		IsDeleted:      h.IsDeleted,
		Status:         models.StatusDelivered,
	}
	if m.IsRead {
		m.Status = models.StatusRead
	}
	if m.IsDeleted {
		m.Body = models.TombstoneBody
	}
	return m
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, out)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("restapi: build %s %s: %w", method, path, err)
	}
	if c.tokens != nil {
		if token := c.tokens(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("restapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("restapi: %s %s: status %d: %s", method, path, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("restapi: decode %s response: %w", path, err)
	}
	return nil
}
