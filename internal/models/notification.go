package models

import "time"

// NotificationData is the click-through routing payload of an alert.
// Either RoomID or SenderID (or both) may be set; a UI opens the
// conversation by room first, else by peer.
type NotificationData struct {
	RoomID   int64 `json:"room_id,omitempty"`
	SenderID int64 `json:"sender_id,omitempty"`
}

// Notification is an out-of-band alert delivered on the notification
// channel, not tied to any open conversation view.
type Notification struct {
	ID        int64            `json:"id"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      NotificationData `json:"data"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}
