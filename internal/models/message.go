package models

import "time"

// DeliveryStatus tracks how far a message has progressed from the local
// optimistic append to server confirmation.
type DeliveryStatus string

const (
	// StatusPending means the message was appended locally and no server
	// echo has arrived yet. Its ID is still a client-side placeholder.
	StatusPending DeliveryStatus = "pending"
	// StatusDelivered means the server echoed the message back with its
	// authoritative ID.
	StatusDelivered DeliveryStatus = "delivered"
	// StatusRead means the recipient confirmed reading the message.
	StatusRead DeliveryStatus = "read"
)

// TombstoneBody replaces the body of a deleted message. Deletion is a
// visibility flag, not erasure: the entry stays in the log.
const TombstoneBody = "This message was deleted"

// Message is a single chat entry within one conversation.
type Message struct {
	// ID is the server-assigned message ID once confirmed. Zero while
	// the message is still pending.
	ID int64 `json:"id"`
	// ClientID is the locally generated placeholder identifier, set for
	// own messages until the server echo promotes them.
	ClientID string `json:"-"`

	SenderID       int64  `json:"sender_id"`
	SenderUsername string `json:"sender_username"`

	Body      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`

	IsRead    bool `json:"is_read"`
	IsEdited  bool `json:"is_edited"`
	IsDeleted bool `json:"is_deleted"`

	Status DeliveryStatus `json:"-"`
}

// Pending reports whether the message still awaits its server echo.
func (m *Message) Pending() bool {
	return m.Status == StatusPending
}

// DisplayBody returns the body a UI should render, honouring tombstones.
func (m *Message) DisplayBody() string {
	if m.IsDeleted {
		return TombstoneBody
	}
	return m.Body
}
