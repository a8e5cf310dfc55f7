// Package store keeps the client-side ordered log of messages for the
// conversation currently open. It is owned by a single event loop: the
// view that displays the conversation. There is no locking; switching
// conversations discards the log and a re-open starts from a fresh
// history fetch.
package store

import (
	"time"

	"roomchat/internal/models"
)

// Log is the ordered message log for one conversation. Order is insertion
// order: placeholder insertion for own sends, arrival order for the rest.
type Log struct {
	messages []models.Message
}

// New returns an empty log.
func New() *Log {
	return &Log{}
}

// Load replaces the log contents with fetched history. Every loaded
// message is server-confirmed.
func (l *Log) Load(history []models.Message) {
	l.messages = make([]models.Message, len(history))
	copy(l.messages, history)
	for i := range l.messages {
		if l.messages[i].Status == "" {
			l.messages[i].Status = models.StatusDelivered
		}
	}
}

// Append adds a message to the end of the log.
func (l *Log) Append(msg models.Message) {
	l.messages = append(l.messages, msg)
}

// ReconcilePending promotes the oldest still-pending message from self to
// its server-assigned identity. The scan runs backward from the newest
// entry so the first pending hit is the oldest unmatched send, matching
// the FIFO echo order of a single outbound connection. Returns false when
// no pending message from selfSenderID exists.
func (l *Log) ReconcilePending(selfSenderID int64, serverID int64, ts time.Time) bool {
	idx := -1
	for i := len(l.messages) - 1; i >= 0; i-- {
		m := &l.messages[i]
		if m.SenderID == selfSenderID && m.Pending() {
			idx = i
		}
	}
	if idx < 0 {
		return false
	}
	m := &l.messages[idx]
	m.ID = serverID
	m.ClientID = ""
	m.Timestamp = ts
	m.Status = models.StatusDelivered
	return true
}

// MarkRead flags the given message as read. Read receipts are cumulative:
// every earlier message from the same sender is flagged too, since the
// recipient cannot have read a later message without the ones before it.
// Unknown ids are a no-op.
func (l *Log) MarkRead(messageID int64) {
	target := l.find(messageID)
	if target < 0 {
		return
	}
	sender := l.messages[target].SenderID
	for i := 0; i <= target; i++ {
		m := &l.messages[i]
		if m.SenderID != sender {
			continue
		}
		m.IsRead = true
		if m.Status == models.StatusDelivered {
			m.Status = models.StatusRead
		}
	}
}

// ApplyEdit replaces the body of a message. Edits of deleted messages are
// rejected: a tombstone keeps its redacted body. Unknown ids are a no-op.
func (l *Log) ApplyEdit(messageID int64, newBody string) {
	i := l.find(messageID)
	if i < 0 || l.messages[i].IsDeleted {
		return
	}
	l.messages[i].Body = newBody
	l.messages[i].IsEdited = true
}

// ApplyDelete tombstones a message: the body is redacted and the entry
// stays in the log. Applying it twice is idempotent. Unknown ids are a
// no-op.
func (l *Log) ApplyDelete(messageID int64) {
	i := l.find(messageID)
	if i < 0 {
		return
	}
	l.messages[i].IsDeleted = true
	l.messages[i].Body = models.TombstoneBody
}

// Snapshot returns a copy of the ordered log.
func (l *Log) Snapshot() []models.Message {
	out := make([]models.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of entries, tombstones included.
func (l *Log) Len() int {
	return len(l.messages)
}

func (l *Log) find(messageID int64) int {
	if messageID == 0 {
		return -1
	}
	for i := range l.messages {
		if l.messages[i].ID == messageID {
			return i
		}
	}
	return -1
}
