package devserver_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"roomchat/internal/devserver"
)

func startHub(store *MockStore) *devserver.Hub {
	hub := devserver.NewHub(store)
	go hub.Run()
	return hub
}

func TestHub_SendMessageFlow(t *testing.T) {
	store := new(MockStore)
	hub := startHub(store)

	sender := newMockClient(7, 5, "alice")
	hub.RegisterCh <- sender

	saved := &devserver.StoredMessage{
		ID:        101,
		RoomID:    5,
		SenderID:  7,
		Body:      "hello there",
		CreatedAt: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
	}
	store.On("SaveMessage", int64(5), int64(7), "hello there").Return(saved, nil)
	store.On("Publish", "roomchat:room:5", mock.Anything).Return(nil)
	store.On("SaveNotification", mock.AnythingOfType("*devserver.StoredNotification")).Return(nil)
	store.On("Publish", "roomchat:user:42", mock.Anything).Return(nil)

	hub.IncomingCh <- devserver.Frame{Client: sender, Raw: []byte(`{"message":"hello there","receiver_id":42}`)}
	time.Sleep(100 * time.Millisecond)

	store.AssertExpectations(t)

	// The room broadcast carries the flat frame shape.
	var roomPayload []byte
	for _, call := range store.Calls {
		if call.Method == "Publish" && call.Arguments.String(0) == "roomchat:room:5" {
			roomPayload = call.Arguments.Get(1).([]byte)
		}
	}
	require.NotNil(t, roomPayload)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(roomPayload, &frame))
	assert.Equal(t, float64(101), frame["message_id"])
	assert.Equal(t, "alice", frame["sender_username"])
	assert.Equal(t, "hello there", frame["message"])
}

func TestHub_NotificationExcerptAndRecipient(t *testing.T) {
	store := new(MockStore)
	hub := startHub(store)

	sender := newMockClient(7, 5, "alice")
	saved := &devserver.StoredMessage{ID: 1, RoomID: 5, SenderID: 7, Body: "hi", CreatedAt: time.Now()}
	store.On("SaveMessage", int64(5), int64(7), "hi").Return(saved, nil)
	store.On("Publish", mock.Anything, mock.Anything).Return(nil)

	var captured *devserver.StoredNotification
	store.On("SaveNotification", mock.AnythingOfType("*devserver.StoredNotification")).Run(func(args mock.Arguments) {
		captured = args.Get(0).(*devserver.StoredNotification)
	}).Return(nil)

	hub.IncomingCh <- devserver.Frame{Client: sender, Raw: []byte(`{"message":"hi","receiver_id":42}`)}
	time.Sleep(100 * time.Millisecond)

	require.NotNil(t, captured)
	assert.Equal(t, int64(42), captured.RecipientID)
	assert.Equal(t, "New message from alice", captured.Title)
	assert.Equal(t, "hi", captured.Message)
	assert.Equal(t, int64(5), captured.RoomID)
}

func TestHub_NoNotificationWithoutReceiver(t *testing.T) {
	store := new(MockStore)
	hub := startHub(store)

	sender := newMockClient(7, 5, "alice")
	saved := &devserver.StoredMessage{ID: 1, RoomID: 5, SenderID: 7, Body: "hi", CreatedAt: time.Now()}
	store.On("SaveMessage", int64(5), int64(7), "hi").Return(saved, nil)
	store.On("Publish", "roomchat:room:5", mock.Anything).Return(nil)

	hub.IncomingCh <- devserver.Frame{Client: sender, Raw: []byte(`{"message":"hi"}`)}
	time.Sleep(100 * time.Millisecond)

	store.AssertNotCalled(t, "SaveNotification", mock.Anything)
}

func TestHub_ReadBroadcastsPerMessage(t *testing.T) {
	store := new(MockStore)
	hub := startHub(store)

	reader := newMockClient(42, 5, "bob")
	store.On("MarkRead", int64(5), int64(9), int64(42)).Return([]int64{9, 8}, nil)
	store.On("Publish", "roomchat:room:5", mock.Anything).Return(nil)

	hub.IncomingCh <- devserver.Frame{Client: reader, Raw: []byte(`{"action":"read","message_id":9}`)}
	time.Sleep(100 * time.Millisecond)

	published := 0
	for _, call := range store.Calls {
		if call.Method == "Publish" {
			published++
			var frame map[string]any
			require.NoError(t, json.Unmarshal(call.Arguments.Get(1).([]byte), &frame))
			assert.Equal(t, "read", frame["event"])
		}
	}
	assert.Equal(t, 2, published)
}

func TestHub_EditRejectedOnTombstone(t *testing.T) {
	store := new(MockStore)
	hub := startHub(store)

	sender := newMockClient(7, 5, "alice")
	store.On("EditMessage", int64(5), int64(9), int64(7), "new text").Return(nil, devserver.ErrTombstoned)

	hub.IncomingCh <- devserver.Frame{Client: sender, Raw: []byte(`{"action":"edit","message_id":9,"message":"new text"}`)}
	time.Sleep(100 * time.Millisecond)

	store.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestHub_DeleteBroadcasts(t *testing.T) {
	store := new(MockStore)
	hub := startHub(store)

	sender := newMockClient(7, 5, "alice")
	store.On("DeleteMessage", int64(5), int64(9), int64(7)).Return(nil)
	store.On("Publish", "roomchat:room:5", mock.Anything).Return(nil)

	hub.IncomingCh <- devserver.Frame{Client: sender, Raw: []byte(`{"action":"delete","message_id":9}`)}
	time.Sleep(100 * time.Millisecond)

	store.AssertCalled(t, "DeleteMessage", int64(5), int64(9), int64(7))
	var frame map[string]any
	for _, call := range store.Calls {
		if call.Method == "Publish" {
			require.NoError(t, json.Unmarshal(call.Arguments.Get(1).([]byte), &frame))
		}
	}
	assert.Equal(t, "deleted", frame["event"])
	assert.Equal(t, float64(9), frame["message_id"])
}

func TestHub_RoomEventFanout(t *testing.T) {
	store := new(MockStore)
	hub := startHub(store)

	inRoom := newMockClient(7, 5, "alice")
	otherRoom := newMockClient(9, 6, "carol")
	hub.RegisterCh <- inRoom
	hub.RegisterCh <- otherRoom
	time.Sleep(50 * time.Millisecond)

	hub.EventsCh <- devserver.Event{Channel: "roomchat:room:5", Payload: []byte(`{"message_id":1}`)}
	time.Sleep(100 * time.Millisecond)

	select {
	case payload := <-inRoom.Recv:
		assert.JSONEq(t, `{"message_id":1}`, string(payload))
	default:
		t.Error("room member did not receive event")
	}
	select {
	case <-otherRoom.Recv:
		t.Error("other room received foreign event")
	default:
	}
}

func TestHub_UserEventFanout(t *testing.T) {
	store := new(MockStore)
	hub := startHub(store)

	watcher := newMockClient(42, 0, "bob")
	other := newMockClient(7, 0, "alice")
	hub.RegisterCh <- watcher
	hub.RegisterCh <- other
	time.Sleep(50 * time.Millisecond)

	hub.EventsCh <- devserver.Event{Channel: "roomchat:user:42", Payload: []byte(`{"id":3}`)}
	time.Sleep(100 * time.Millisecond)

	select {
	case payload := <-watcher.Recv:
		assert.JSONEq(t, `{"id":3}`, string(payload))
	default:
		t.Error("watcher did not receive notification event")
	}
	select {
	case <-other.Recv:
		t.Error("wrong user received notification event")
	default:
	}
}

func TestHub_UnregisterStopsDelivery(t *testing.T) {
	store := new(MockStore)
	hub := startHub(store)

	c := newMockClient(7, 5, "alice")
	hub.RegisterCh <- c
	hub.UnregisterCh <- c
	time.Sleep(50 * time.Millisecond)

	assert.True(t, c.isClosed())

	hub.EventsCh <- devserver.Event{Channel: "roomchat:room:5", Payload: []byte(`{}`)}
	time.Sleep(100 * time.Millisecond)

	select {
	case <-c.Recv:
		t.Error("unregistered client still received event")
	default:
	}
}

func TestHub_SlowClientDropped(t *testing.T) {
	store := new(MockStore)
	hub := startHub(store)

	slow := newMockClient(7, 5, "alice")
	hub.RegisterCh <- slow
	time.Sleep(50 * time.Millisecond)

	// Fill the buffer, then one more.
	for i := 0; i < cap(slow.Recv)+1; i++ {
		hub.EventsCh <- devserver.Event{Channel: "roomchat:room:5", Payload: []byte(`{}`)}
	}
	time.Sleep(100 * time.Millisecond)

	assert.True(t, slow.isClosed())
}
