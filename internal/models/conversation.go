package models

import "time"

// Participant is a user summary carried inside a conversation.
type Participant struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// DisplayName prefers the real name and falls back to the username,
// matching how the marketplace UI labels chat partners.
func (p Participant) DisplayName() string {
	if p.FirstName != "" {
		if p.LastName != "" {
			return p.FirstName + " " + p.LastName
		}
		return p.FirstName
	}
	return p.Username
}

// Preview is the last-message summary shown in the conversation list.
type Preview struct {
	Body      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is a 1:1 channel between exactly two participants. Its ID
// is the stable routing key for the realtime transport.
type Conversation struct {
	ID           int64         `json:"id"`
	Participants []Participant `json:"participants"`
	LastMessage  *Preview      `json:"last_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Peer returns the participant that is not selfID. The second return
// value is false when the conversation does not involve selfID at all or
// is malformed (not exactly two participants).
func (c *Conversation) Peer(selfID int64) (Participant, bool) {
	if len(c.Participants) != 2 {
		return Participant{}, false
	}
	for _, p := range c.Participants {
		if p.ID != selfID {
			return p, true
		}
	}
	return Participant{}, false
}
