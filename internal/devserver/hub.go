package devserver

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"

	"roomchat/internal/models"
)

// Event channels on Redis. Every server instance publishes here and
// fans received events out to its own sockets, so a deployment can run
// more than one instance.
const (
	eventChannelPattern = "roomchat:*"
	roomChannelPrefix   = "roomchat:room:"
	userChannelPrefix   = "roomchat:user:"
)

func roomChannel(roomID int64) string {
	return fmt.Sprintf("%s%d", roomChannelPrefix, roomID)
}

func userChannel(userID int64) string {
	return fmt.Sprintf("%s%d", userChannelPrefix, userID)
}

// Client is one realtime socket: either a conversation socket bound to
// a room, or a notification socket bound only to its user.
type Client interface {
	UserID() int64
	Username() string
	// RoomID is 0 for notification sockets.
	RoomID() int64
	SendCh() chan<- []byte
	Run()
	Close()
}

// Frame is one raw inbound frame together with the socket it came from.
type Frame struct {
	Client Client
	Raw    []byte
}

// Event is one pub/sub message to fan out.
type Event struct {
	Channel string
	Payload []byte
}

// Hub routes frames between sockets, persistence and Redis.
type Hub struct {
	store Store

	RegisterCh   chan Client
	UnregisterCh chan Client
	IncomingCh   chan Frame
	EventsCh     chan Event

	rooms    map[int64]map[Client]bool
	watchers map[int64]map[Client]bool
}

// NewHub builds the hub; Run starts it.
func NewHub(store Store) *Hub {
	return &Hub{
		store:        store,
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		IncomingCh:   make(chan Frame),
		EventsCh:     make(chan Event, 64),
		rooms:        make(map[int64]map[Client]bool),
		watchers:     make(map[int64]map[Client]bool),
	}
}

// StartEventListener pumps Redis pub/sub messages into the hub.
func (h *Hub) StartEventListener(sub *redis.PubSub) {
	go func() {
		for msg := range sub.Channel() {
			h.EventsCh <- Event{Channel: msg.Channel, Payload: []byte(msg.Payload)}
		}
	}()
}

// Run is the hub's single dispatch loop. All registry mutation happens
// here.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.RegisterCh:
			h.add(c)
		case c := <-h.UnregisterCh:
			h.remove(c)
		case f := <-h.IncomingCh:
			h.handleFrame(f)
		case ev := <-h.EventsCh:
			h.dispatch(ev)
		}
	}
}

func (h *Hub) add(c Client) {
	if roomID := c.RoomID(); roomID != 0 {
		if h.rooms[roomID] == nil {
			h.rooms[roomID] = make(map[Client]bool)
		}
		h.rooms[roomID][c] = true
		log.Printf("User %d joined room %d", c.UserID(), roomID)
		return
	}
	userID := c.UserID()
	if h.watchers[userID] == nil {
		h.watchers[userID] = make(map[Client]bool)
	}
	h.watchers[userID][c] = true
	log.Printf("User %d watching notifications", userID)
}

func (h *Hub) remove(c Client) {
	if roomID := c.RoomID(); roomID != 0 {
		if set, ok := h.rooms[roomID]; ok && set[c] {
			delete(set, c)
			if len(set) == 0 {
				delete(h.rooms, roomID)
			}
			c.Close()
		}
		return
	}
	userID := c.UserID()
	if set, ok := h.watchers[userID]; ok && set[c] {
		delete(set, c)
		if len(set) == 0 {
			delete(h.watchers, userID)
		}
		c.Close()
	}
}

// actionFrame covers every inbound frame shape. A plain send carries
// message and receiver_id; control frames carry an action verb.
type actionFrame struct {
	Action     string `json:"action"`
	Message    string `json:"message"`
	MessageID  int64  `json:"message_id"`
	ReceiverID int64  `json:"receiver_id"`
}

// messageFrame is the broadcast shape of a newly stored message.
type messageFrame struct {
	MessageID      int64  `json:"message_id"`
	SenderID       int64  `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	Message        string `json:"message"`
	Timestamp      string `json:"timestamp"`
}

// controlFrame announces a lifecycle change of an existing message.
type controlFrame struct {
	Event     string `json:"event"`
	MessageID int64  `json:"message_id"`
	Message   string `json:"message,omitempty"`
}

func (h *Hub) handleFrame(f Frame) {
	var frame actionFrame
	if err := json.Unmarshal(f.Raw, &frame); err != nil {
		log.Printf("Error decoding frame from user %d: %v", f.Client.UserID(), err)
		return
	}

	roomID := f.Client.RoomID()
	sender := f.Client.UserID()

	switch frame.Action {
	case "":
		h.handleSend(f.Client, frame)

	case "read":
		ids, err := h.store.MarkRead(roomID, frame.MessageID, sender)
		if err != nil {
			log.Printf("Error marking message %d read: %v", frame.MessageID, err)
			return
		}
		for _, id := range ids {
			h.publishControl(roomID, controlFrame{Event: "read", MessageID: id})
		}

	case "edit":
		msg, err := h.store.EditMessage(roomID, frame.MessageID, sender, frame.Message)
		if err != nil {
			log.Printf("Rejecting edit of message %d by user %d: %v", frame.MessageID, sender, err)
			return
		}
		h.publishControl(roomID, controlFrame{Event: "edited", MessageID: msg.ID, Message: msg.Body})

	case "delete":
		if err := h.store.DeleteMessage(roomID, frame.MessageID, sender); err != nil {
			log.Printf("Rejecting delete of message %d by user %d: %v", frame.MessageID, sender, err)
			return
		}
		h.publishControl(roomID, controlFrame{Event: "deleted", MessageID: frame.MessageID})

	default:
		log.Printf("Unknown action %q from user %d", frame.Action, sender)
	}
}

func (h *Hub) handleSend(c Client, frame actionFrame) {
	if frame.Message == "" {
		return
	}
	roomID := c.RoomID()

	msg, err := h.store.SaveMessage(roomID, c.UserID(), frame.Message)
	if err != nil {
		return
	}

	payload, _ := json.Marshal(messageFrame{
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		SenderUsername: c.Username(),
		Message:        msg.Body,
		Timestamp:      msg.CreatedAt.Format(time.RFC3339Nano),
	})
	if err := h.store.Publish(roomChannel(roomID), payload); err != nil {
		log.Printf("Error publishing message %d: %v", msg.ID, err)
	}

	h.notifyRecipient(c, frame.ReceiverID, msg)
}

// notifyRecipient stores and publishes the parallel alert for the
// message recipient.
func (h *Hub) notifyRecipient(c Client, receiverID int64, msg *StoredMessage) {
	if receiverID == 0 || receiverID == c.UserID() {
		return
	}

	n := &StoredNotification{
		RecipientID: receiverID,
		Title:       "New message from " + c.Username(),
		Message:     excerpt(msg.Body),
		RoomID:      msg.RoomID,
		SenderID:    msg.SenderID,
	}
	if err := h.store.SaveNotification(n); err != nil {
		return
	}

	payload, _ := json.Marshal(models.Notification{
		ID:      n.ID,
		Title:   n.Title,
		Message: n.Message,
		Data: models.NotificationData{
			RoomID:   n.RoomID,
			SenderID: n.SenderID,
		},
		CreatedAt: n.CreatedAt,
	})
	if err := h.store.Publish(userChannel(receiverID), payload); err != nil {
		log.Printf("Error publishing notification %d: %v", n.ID, err)
	}
}

func (h *Hub) publishControl(roomID int64, frame controlFrame) {
	payload, _ := json.Marshal(frame)
	if err := h.store.Publish(roomChannel(roomID), payload); err != nil {
		log.Printf("Error publishing %s event for message %d: %v", frame.Event, frame.MessageID, err)
	}
}

// dispatch fans one pub/sub event out to the matching local sockets.
func (h *Hub) dispatch(ev Event) {
	switch {
	case strings.HasPrefix(ev.Channel, roomChannelPrefix):
		id, err := strconv.ParseInt(strings.TrimPrefix(ev.Channel, roomChannelPrefix), 10, 64)
		if err != nil {
			return
		}
		h.deliver(h.rooms[id], ev.Payload)

	case strings.HasPrefix(ev.Channel, userChannelPrefix):
		id, err := strconv.ParseInt(strings.TrimPrefix(ev.Channel, userChannelPrefix), 10, 64)
		if err != nil {
			return
		}
		h.deliver(h.watchers[id], ev.Payload)
	}
}

func (h *Hub) deliver(set map[Client]bool, payload []byte) {
	for c := range set {
		select {
		case c.SendCh() <- payload:
		default:
			// Slow socket; drop it rather than stall the loop.
			delete(set, c)
			c.Close()
		}
	}
}

const excerptLimit = 80

func excerpt(body string) string {
	if utf8.RuneCountInString(body) <= excerptLimit {
		return body
	}
	runes := []rune(body)
	return string(runes[:excerptLimit]) + "…"
}
