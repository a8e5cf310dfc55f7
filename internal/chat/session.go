// Package chat orchestrates one open conversation: it wires the realtime
// transport, the event codec, the message log and the conversation
// directory together, applying optimistic local mutations that the
// server's echoes later confirm.
package chat

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"roomchat/internal/auth"
	"roomchat/internal/chatconn"
	"roomchat/internal/directory"
	"roomchat/internal/models"
	"roomchat/internal/protocol"
	"roomchat/internal/store"
)

// HistoryAPI fetches the persisted message log of a conversation.
type HistoryAPI interface {
	Messages(ctx context.Context, roomID int64) ([]models.Message, error)
}

// ErrNoConversation is returned for actions while nothing is open.
var ErrNoConversation = fmt.Errorf("chat: no conversation open")

// Session drives the conversation currently on screen. All state
// mutations run under one lock, giving handlers the run-to-completion
// semantics of a single event loop; UI reads go through Snapshot.
type Session struct {
	self    auth.Identity
	conns   *chatconn.Manager
	history HistoryAPI
	dir     *directory.Directory

	// OnUpdate, when set, is invoked after every state change so a UI
	// can re-render. Called outside the session lock.
	OnUpdate func()

	mu   sync.Mutex
	conv *models.Conversation
	peer models.Participant
	log  *store.Log
	conn *chatconn.Conn
	gen  int
}

// NewSession builds a session for the authenticated user.
func NewSession(self auth.Identity, conns *chatconn.Manager, history HistoryAPI, dir *directory.Directory) *Session {
	return &Session{self: self, conns: conns, history: history, dir: dir}
}

// OpenConversation switches the session to the given conversation: the
// previous transport is torn down, history is fetched fresh, and a new
// transport is opened for the room's channel.
func (s *Session) OpenConversation(ctx context.Context, conversationID int64) error {
	conv, err := s.dir.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	return s.open(ctx, conv)
}

// OpenWithPeer opens (creating if needed) the conversation with a user,
// the entry point used by "chat with owner" style deep links.
func (s *Session) OpenWithPeer(ctx context.Context, peerUserID int64) error {
	conv, err := s.dir.FindByPeer(ctx, s.self.UserID, peerUserID)
	if err != nil {
		return err
	}
	return s.open(ctx, conv)
}

func (s *Session) open(ctx context.Context, conv *models.Conversation) error {
	peer, ok := conv.Peer(s.self.UserID)
	if !ok {
		return fmt.Errorf("chat: conversation %d does not include self", conv.ID)
	}

	// A re-open always starts from a fresh history fetch, never from a
	// resumed in-memory log.
	history, err := s.history.Messages(ctx, conv.ID)
	if err != nil {
		return fmt.Errorf("chat: history for %d: %w", conv.ID, err)
	}

	s.mu.Lock()
	s.conv = conv
	s.peer = peer
	s.log = store.New()
	s.log.Load(history)
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	conn := s.conns.Open(chatconn.ChatChannel(conv.ID), s.frameHandler(gen))

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.notify()
	return nil
}

// Close tears down the open conversation, cancelling any pending
// reconnect, and drops the in-memory log.
func (s *Session) Close() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.conv = nil
	s.log = nil
	s.gen++
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// SendMessage appends the message optimistically as pending and hands the
// frame to the transport. When the transport is down the pending entry
// stays visible as undelivered and ErrNotConnected is returned.
func (s *Session) SendMessage(body string) error {
	s.mu.Lock()
	if s.conv == nil {
		s.mu.Unlock()
		return ErrNoConversation
	}
	msg := models.Message{
		ClientID:       uuid.NewString(),
		SenderID:       s.self.UserID,
		SenderUsername: s.self.Username,
		Body:           body,
		Timestamp:      time.Now(),
		Status:         models.StatusPending,
	}
	s.log.Append(msg)
	s.dir.UpsertPreview(s.conv.ID, body, msg.Timestamp)
	receiver := s.peer.ID
	conn := s.conn
	s.mu.Unlock()
	s.notify()

	frame, err := protocol.EncodeAction(protocol.Send{Body: body, ReceiverID: receiver})
	if err != nil {
		return err
	}
	if conn == nil {
		return chatconn.ErrNotConnected
	}
	return conn.Send(frame)
}

// EditMessage applies the edit locally and pushes the action; the
// server's edited event re-confirms it to every participant.
func (s *Session) EditMessage(messageID int64, newBody string) error {
	s.mu.Lock()
	if s.conv == nil {
		s.mu.Unlock()
		return ErrNoConversation
	}
	s.log.ApplyEdit(messageID, newBody)
	conn := s.conn
	s.mu.Unlock()
	s.notify()

	frame, err := protocol.EncodeAction(protocol.Edit{MessageID: messageID, NewBody: newBody})
	if err != nil {
		return err
	}
	if conn == nil {
		return chatconn.ErrNotConnected
	}
	return conn.Send(frame)
}

// DeleteMessage tombstones the message locally and pushes the action.
func (s *Session) DeleteMessage(messageID int64) error {
	s.mu.Lock()
	if s.conv == nil {
		s.mu.Unlock()
		return ErrNoConversation
	}
	s.log.ApplyDelete(messageID)
	conn := s.conn
	s.mu.Unlock()
	s.notify()

	frame, err := protocol.EncodeAction(protocol.Delete{MessageID: messageID})
	if err != nil {
		return err
	}
	if conn == nil {
		return chatconn.ErrNotConnected
	}
	return conn.Send(frame)
}

// MarkRead acknowledges a received message. The local flag flips when the
// server broadcasts the receipt back.
func (s *Session) MarkRead(messageID int64) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNoConversation
	}
	frame, err := protocol.EncodeAction(protocol.MarkRead{MessageID: messageID})
	if err != nil {
		return err
	}
	return conn.Send(frame)
}

// Snapshot returns the ordered message log of the open conversation.
func (s *Session) Snapshot() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log == nil {
		return nil
	}
	return s.log.Snapshot()
}

// Conversation returns the open conversation, or nil.
func (s *Session) Conversation() *models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv == nil {
		return nil
	}
	out := *s.conv
	return &out
}

// Peer returns the other participant of the open conversation.
func (s *Session) Peer() models.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// ConnectionState exposes the transport state for a UI indicator.
func (s *Session) ConnectionState() chatconn.State {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return chatconn.StateIdle
	}
	return conn.State()
}

// frameHandler binds a decode-and-apply handler to one generation of the
// session, so frames still in flight from a conversation switched away
// from cannot mutate the new conversation's log.
func (s *Session) frameHandler(gen int) chatconn.Handler {
	return func(raw []byte) {
		ev, err := protocol.DecodeEvent(raw)
		if err != nil {
			log.Printf("chat: dropping malformed frame: %v", err)
			return
		}
		s.apply(gen, ev)
	}
}

func (s *Session) apply(gen int, ev protocol.Event) {
	s.mu.Lock()
	if s.gen != gen || s.log == nil {
		s.mu.Unlock()
		return
	}

	var ack int64 // message to acknowledge after the lock is released
	switch e := ev.(type) {
	case protocol.MessageArrived:
		if e.SenderID == s.self.UserID {
			// The echo of an own send. With no pending match (say, the
			// same account sending from another device) the message is
			// still appended so the log stays complete.
			if !s.log.ReconcilePending(s.self.UserID, e.MessageID, e.Timestamp) {
				s.log.Append(models.Message{
					ID:             e.MessageID,
					SenderID:       e.SenderID,
					SenderUsername: e.SenderUsername,
					Body:           e.Body,
					Timestamp:      e.Timestamp,
					Status:         models.StatusDelivered,
				})
			}
		} else {
			s.log.Append(models.Message{
				ID:             e.MessageID,
				SenderID:       e.SenderID,
				SenderUsername: e.SenderUsername,
				Body:           e.Body,
				Timestamp:      e.Timestamp,
				Status:         models.StatusDelivered,
			})
			// The conversation is on screen, so the message is seen the
			// moment it lands.
			ack = e.MessageID
		}
		s.dir.UpsertPreview(s.conv.ID, e.Body, e.Timestamp)
	case protocol.ReadReceipt:
		s.log.MarkRead(e.MessageID)
	case protocol.Edited:
		s.log.ApplyEdit(e.MessageID, e.NewBody)
	case protocol.Deleted:
		s.log.ApplyDelete(e.MessageID)
	}
	conn := s.conn
	s.mu.Unlock()

	if ack != 0 && conn != nil {
		if frame, err := protocol.EncodeAction(protocol.MarkRead{MessageID: ack}); err == nil {
			if err := conn.Send(frame); err != nil {
				log.Printf("chat: read ack for %d not sent: %v", ack, err)
			}
		}
	}
	s.notify()
}

func (s *Session) notify() {
	if s.OnUpdate != nil {
		s.OnUpdate()
	}
}
