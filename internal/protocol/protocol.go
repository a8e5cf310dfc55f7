// Package protocol defines the wire frames exchanged over a conversation's
// realtime transport and translates them to and from typed events and
// actions. It is a pure translation layer: nothing here mutates chat
// state, which keeps the message store independently testable.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound control event names carried in the "event" field, and the
// outbound action verbs carried in the "action" field. The server
// acknowledges an action verb by broadcasting the matching past-tense
// event ("edit" comes back as "edited").
const (
	eventRead    = "read"
	eventEdited  = "edited"
	eventDeleted = "deleted"

	actionRead   = "read"
	actionEdit   = "edit"
	actionDelete = "delete"
)

// Event is an inbound frame decoded into one of the closed set of
// event types: MessageArrived, ReadReceipt, Edited, Deleted.
type Event interface {
	isEvent()
}

// MessageArrived is a new message from the peer, or the authoritative
// echo of the local user's own send. Callers disambiguate by comparing
// SenderID against the authenticated user.
type MessageArrived struct {
	MessageID      int64
	SenderID       int64
	SenderUsername string
	Body           string
	Timestamp      time.Time
}

// ReadReceipt reports that a previously sent message has been read.
type ReadReceipt struct {
	MessageID int64
}

// Edited reports that a message's body was changed by its sender.
type Edited struct {
	MessageID int64
	NewBody   string
}

// Deleted reports that a message was retracted by its sender.
type Deleted struct {
	MessageID int64
}

func (MessageArrived) isEvent() {}
func (ReadReceipt) isEvent()    {}
func (Edited) isEvent()         {}
func (Deleted) isEvent()        {}

// Action is an outbound user intention encoded into a wire frame:
// Send, MarkRead, Edit or Delete.
type Action interface {
	isAction()
}

// Send delivers a new message body to the conversation's peer.
type Send struct {
	Body       string
	ReceiverID int64
}

// MarkRead acknowledges a received message.
type MarkRead struct {
	MessageID int64
}

// Edit replaces the body of an own, not yet deleted message.
type Edit struct {
	MessageID int64
	NewBody   string
}

// Delete retracts an own message.
type Delete struct {
	MessageID int64
}

func (Send) isAction()     {}
func (MarkRead) isAction() {}
func (Edit) isAction()     {}
func (Delete) isAction()   {}

// inboundFrame covers both frame shapes the server emits: full messages
// {message_id, sender_id, sender_username, message, timestamp} and control
// frames {event, message_id, message?}.
type inboundFrame struct {
	Event          string `json:"event,omitempty"`
	MessageID      int64  `json:"message_id"`
	SenderID       int64  `json:"sender_id,omitempty"`
	SenderUsername string `json:"sender_username,omitempty"`
	Message        string `json:"message,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// outboundFrame covers both outbound shapes: sends {message, receiver_id}
// and controls {action, message_id, message?}.
type outboundFrame struct {
	Action     string `json:"action,omitempty"`
	Message    string `json:"message,omitempty"`
	ReceiverID int64  `json:"receiver_id,omitempty"`
	MessageID  int64  `json:"message_id,omitempty"`
}

// DecodeEvent parses one raw inbound frame. A malformed frame returns an
// error; the caller logs and drops it, the session stays alive.
func DecodeEvent(raw []byte) (Event, error) {
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch f.Event {
	case "":
		if f.MessageID == 0 {
			return nil, fmt.Errorf("message frame missing message_id")
		}
		ts, err := parseTimestamp(f.Timestamp)
		if err != nil {
			return nil, err
		}
		return MessageArrived{
			MessageID:      f.MessageID,
			SenderID:       f.SenderID,
			SenderUsername: f.SenderUsername,
			Body:           f.Message,
			Timestamp:      ts,
		}, nil
	case eventRead:
		return ReadReceipt{MessageID: f.MessageID}, nil
	case eventEdited:
		return Edited{MessageID: f.MessageID, NewBody: f.Message}, nil
	case eventDeleted:
		return Deleted{MessageID: f.MessageID}, nil
	default:
		return nil, fmt.Errorf("unknown event %q", f.Event)
	}
}

// EncodeAction renders one outbound action as a wire frame.
func EncodeAction(a Action) ([]byte, error) {
	var f outboundFrame
	switch act := a.(type) {
	case Send:
		f = outboundFrame{Message: act.Body, ReceiverID: act.ReceiverID}
	case MarkRead:
		f = outboundFrame{Action: actionRead, MessageID: act.MessageID}
	case Edit:
		f = outboundFrame{Action: actionEdit, MessageID: act.MessageID, Message: act.NewBody}
	case Delete:
		f = outboundFrame{Action: actionDelete, MessageID: act.MessageID}
	default:
		return nil, fmt.Errorf("unknown action type %T", a)
	}
	return json.Marshal(f)
}

// parseTimestamp accepts the ISO-8601 variants the backend emits.
func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad timestamp %q", s)
}
