// Package notify runs the process-wide alert channel: a second realtime
// connection, independent of whichever conversation is open, that feeds
// the in-app notification list, the unread badge, and any external
// notification surface.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"roomchat/internal/auth"
	"roomchat/internal/chatconn"
	"roomchat/internal/models"
	"roomchat/internal/restapi"
)

// DefaultRetryDelay for the notification socket. Alerts are less urgent
// than an open conversation, so the retry is slower than the chat one.
const DefaultRetryDelay = 5 * time.Second

// InboxAPI is the REST side of the notification inbox.
type InboxAPI interface {
	ListNotifications(ctx context.Context) (*restapi.NotificationPage, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	MarkAllNotificationsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id int64) error
}

// Sink is an external notification surface (desktop notifications, a
// Telegram chat, ...). Push is called for every live alert; the routing
// payload travels along so a click-through can open the conversation.
type Sink interface {
	Push(n models.Notification)
}

// Config wires a Service.
type Config struct {
	WSBaseURL string
	Tokens    auth.TokenSource
	API       InboxAPI
	// Sink is optional.
	Sink Sink
	// Cap bounds the in-memory list; 0 keeps it unbounded, which is
	// acceptable for a page-lifetime session.
	Cap int
	// RetryDelay overrides DefaultRetryDelay when positive.
	RetryDelay time.Duration
	// Dialer overrides the websocket dialer.
	Dialer chatconn.Dialer
}

// Service owns the notification connection for one authenticated
// session: connected once on login, torn down once on logout.
type Service struct {
	cfg   Config
	conns *chatconn.Manager

	// OnNotification, when set, observes every live alert after it has
	// been recorded. Called without the service lock held.
	OnNotification func(models.Notification)

	mu     sync.Mutex
	list   []models.Notification
	unread int
	conn   *chatconn.Conn
}

// NewService builds the service; Connect starts it.
func NewService(cfg Config) *Service {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	s := &Service{cfg: cfg}
	s.conns = chatconn.NewManager(chatconn.Config{
		WSBaseURL:  cfg.WSBaseURL,
		Tokens:     cfg.Tokens,
		RetryDelay: cfg.RetryDelay,
		Dialer:     cfg.Dialer,
	})
	return s
}

// Connect bulk-fetches the inbox and opens the realtime channel. A
// failed fetch degrades to an empty inbox; live alerts still arrive.
func (s *Service) Connect(ctx context.Context) {
	if s.cfg.API != nil {
		if page, err := s.cfg.API.ListNotifications(ctx); err != nil {
			log.Printf("notify: inbox fetch failed: %v", err)
		} else {
			s.mu.Lock()
			s.list = page.Results
			s.unread = page.UnreadCount
			s.trimLocked()
			s.mu.Unlock()
		}
	}

	conn := s.conns.Open(chatconn.NotificationsChannel, s.handleFrame)
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

// Disconnect tears the channel down; no reconnect follows.
func (s *Service) Disconnect() {
	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()
	s.conns.Close()
}

// State reports the channel's connection state for an indicator.
func (s *Service) State() chatconn.State {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return chatconn.StateIdle
	}
	return conn.State()
}

// Notifications returns the alert list, newest first.
func (s *Service) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, len(s.list))
	copy(out, s.list)
	return out
}

// UnreadCount returns the badge value.
func (s *Service) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// MarkAsRead flips one alert to read locally and informs the server in
// the background. The local state is not rolled back on failure; the
// next bulk fetch reconciles.
func (s *Service) MarkAsRead(id int64) {
	s.mu.Lock()
	for i := range s.list {
		if s.list[i].ID == id && !s.list[i].IsRead {
			s.list[i].IsRead = true
			if s.unread > 0 {
				s.unread--
			}
		}
	}
	s.mu.Unlock()

	s.fireAndForget(func(ctx context.Context) error {
		return s.cfg.API.MarkNotificationRead(ctx, id)
	})
}

// MarkAllAsRead clears the badge and flips every alert.
func (s *Service) MarkAllAsRead() {
	s.mu.Lock()
	for i := range s.list {
		s.list[i].IsRead = true
	}
	s.unread = 0
	s.mu.Unlock()

	s.fireAndForget(func(ctx context.Context) error {
		return s.cfg.API.MarkAllNotificationsRead(ctx)
	})
}

// Delete removes one alert locally and server-side.
func (s *Service) Delete(id int64) {
	s.mu.Lock()
	kept := s.list[:0]
	for _, n := range s.list {
		if n.ID == id {
			if !n.IsRead && s.unread > 0 {
				s.unread--
			}
			continue
		}
		kept = append(kept, n)
	}
	s.list = kept
	s.mu.Unlock()

	s.fireAndForget(func(ctx context.Context) error {
		return s.cfg.API.DeleteNotification(ctx, id)
	})
}

func (s *Service) handleFrame(raw []byte) {
	var n models.Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		log.Printf("notify: dropping malformed alert: %v", err)
		return
	}

	s.mu.Lock()
	s.list = append([]models.Notification{n}, s.list...)
	s.unread++
	s.trimLocked()
	s.mu.Unlock()

	if s.cfg.Sink != nil {
		s.cfg.Sink.Push(n)
	}
	if s.OnNotification != nil {
		s.OnNotification(n)
	}
}

func (s *Service) trimLocked() {
	if s.cfg.Cap > 0 && len(s.list) > s.cfg.Cap {
		s.list = s.list[:s.cfg.Cap]
	}
}

func (s *Service) fireAndForget(call func(context.Context) error) {
	if s.cfg.API == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := call(ctx); err != nil {
			log.Printf("notify: server sync failed: %v", err)
		}
	}()
}
