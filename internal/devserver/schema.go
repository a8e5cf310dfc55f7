package devserver

import (
	"time"

	"github.com/lib/pq"
)

// Account represents a marketplace user as far as chat is concerned.
type Account struct {
	ID        int64  `gorm:"primaryKey"`
	Username  string `gorm:"uniqueIndex;not null"`
	FirstName string
	LastName  string
}

// Room is a 1:1 conversation between two accounts.
type Room struct {
	ID int64 `gorm:"primaryKey"`
	// ParticipantIDs holds exactly two account IDs.
	ParticipantIDs pq.Int64Array `gorm:"type:bigint[]"`
	CreatedAt      time.Time
}

// StoredMessage is one persisted chat message.
type StoredMessage struct {
	ID int64 `gorm:"primaryKey"`
	// RoomID is the conversation the message belongs to.
	RoomID   int64 `gorm:"not null;index:idx_room_msg"`
	SenderID int64 `gorm:"not null;index:idx_room_msg"`
	// Body is emptied when the message is deleted; IsDeleted stays as
	// the tombstone marker.
	Body      string `gorm:"type:text"`
	IsRead    bool
	IsEdited  bool
	IsDeleted bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StoredNotification is one inbox alert for a recipient.
type StoredNotification struct {
	ID          int64 `gorm:"primaryKey"`
	RecipientID int64 `gorm:"not null;index"`
	Title       string
	Message     string `gorm:"type:text"`
	// RoomID and SenderID route a click-through to the conversation.
	RoomID    int64
	SenderID  int64
	IsRead    bool
	CreatedAt time.Time
}
