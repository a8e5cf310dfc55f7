// Package directory maintains the client's list of conversations with
// participants and last-message previews, kept in sync with live events
// from whichever conversation is open.
package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"roomchat/internal/models"
)

// RoomsAPI is the REST collaborator the directory falls through to on a
// local miss.
type RoomsAPI interface {
	ListRooms(ctx context.Context) ([]models.Conversation, error)
	RoomForUser(ctx context.Context, peerUserID int64) (*models.Conversation, error)
}

// Directory is the local conversation index. Unlike the message log it is
// touched from several entry points (live events of the open conversation
// and bulk fetches), so access is guarded; concurrent preview updates are
// last-writer-wins.
type Directory struct {
	api RoomsAPI

	mu    sync.Mutex
	rooms map[int64]*models.Conversation
}

// New builds an empty directory backed by api.
func New(api RoomsAPI) *Directory {
	return &Directory{api: api, rooms: make(map[int64]*models.Conversation)}
}

// Refresh replaces the local index with the server's room list.
func (d *Directory) Refresh(ctx context.Context) error {
	rooms, err := d.api.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("directory: refresh: %w", err)
	}
	fresh := make(map[int64]*models.Conversation, len(rooms))
	for i := range rooms {
		room := rooms[i]
		fresh[room.ID] = &room
	}
	d.mu.Lock()
	d.rooms = fresh
	d.mu.Unlock()
	return nil
}

// List returns the conversations, most recently active first.
// Conversations without a preview sort last, newest created first.
func (d *Directory) List() []models.Conversation {
	d.mu.Lock()
	out := make([]models.Conversation, 0, len(d.rooms))
	for _, room := range d.rooms {
		out = append(out, *room)
	}
	d.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		ti, tj := activityTime(&out[i]), activityTime(&out[j])
		if ti.Equal(tj) {
			return out[i].ID > out[j].ID
		}
		return ti.After(tj)
	})
	return out
}

// UpsertPreview records the latest message of a conversation, whether or
// not that conversation is currently open. Unknown conversation ids are
// ignored; the next Refresh will pick the room up with its preview.
func (d *Directory) UpsertPreview(conversationID int64, body string, ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[conversationID]
	if !ok {
		return
	}
	room.LastMessage = &models.Preview{Body: body, Timestamp: ts}
}

// FindByID returns a conversation from the local index, refreshing from
// the server on a miss.
func (d *Directory) FindByID(ctx context.Context, conversationID int64) (*models.Conversation, error) {
	if room, ok := d.lookup(conversationID); ok {
		return room, nil
	}
	if err := d.Refresh(ctx); err != nil {
		return nil, err
	}
	if room, ok := d.lookup(conversationID); ok {
		return room, nil
	}
	return nil, fmt.Errorf("directory: conversation %d not found", conversationID)
}

func (d *Directory) lookup(conversationID int64) (*models.Conversation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[conversationID]
	if !ok {
		return nil, false
	}
	out := *room
	return &out, true
}

// FindByPeer returns the conversation with the given user, asking the
// server to create one on first contact.
func (d *Directory) FindByPeer(ctx context.Context, selfID, peerUserID int64) (*models.Conversation, error) {
	d.mu.Lock()
	for _, room := range d.rooms {
		if peer, ok := room.Peer(selfID); ok && peer.ID == peerUserID {
			out := *room
			d.mu.Unlock()
			return &out, nil
		}
	}
	d.mu.Unlock()

	room, err := d.api.RoomForUser(ctx, peerUserID)
	if err != nil {
		return nil, fmt.Errorf("directory: find-or-create with %d: %w", peerUserID, err)
	}
	stored := *room
	d.mu.Lock()
	d.rooms[stored.ID] = &stored
	d.mu.Unlock()
	out := stored
	return &out, nil
}

func activityTime(c *models.Conversation) time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.Timestamp
	}
	return c.CreatedAt
}
