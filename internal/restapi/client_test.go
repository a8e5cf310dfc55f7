package restapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/auth"
	"roomchat/internal/models"
	"roomchat/internal/restapi"
)

type recordedRequest struct {
	method string
	path   string
	auth   string
}

func testServer(t *testing.T, status int, body string, rec *[]recordedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*rec = append(*rec, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
		})
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestListRooms(t *testing.T) {
	var reqs []recordedRequest
	srv := testServer(t, http.StatusOK, `[
		{"id": 5, "participants": [
			{"id": 7, "username": "tenant7"},
			{"id": 42, "username": "landlord", "first_name": "Lena", "last_name": "Koval"}
		], "last_message": {"message": "see you", "timestamp": "2025-03-01T12:00:00Z"}}
	]`, &reqs)

	c := restapi.NewClient(srv.URL, auth.StaticToken("tok"))
	rooms, err := c.ListRooms(context.Background())
	require.NoError(t, err)

	require.Len(t, rooms, 1)
	assert.Equal(t, int64(5), rooms[0].ID)
	require.NotNil(t, rooms[0].LastMessage)
	assert.Equal(t, "see you", rooms[0].LastMessage.Body)

	peer, ok := rooms[0].Peer(7)
	require.True(t, ok)
	assert.Equal(t, "Lena Koval", peer.DisplayName())

	require.Len(t, reqs, 1)
	assert.Equal(t, "/chat/rooms/", reqs[0].path)
	assert.Equal(t, "Bearer tok", reqs[0].auth)
}

func TestRoomForUser(t *testing.T) {
	var reqs []recordedRequest
	srv := testServer(t, http.StatusOK,
		`{"id": 9, "participants": [{"id": 7}, {"id": 42}]}`, &reqs)

	c := restapi.NewClient(srv.URL, auth.StaticToken("tok"))
	room, err := c.RoomForUser(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, int64(9), room.ID)
	assert.Equal(t, "/chat/room/42/", reqs[0].path)
}

// TestMessages_MapsHistory: nested sender objects flatten into the local
// message shape, tombstones are redacted, read flags set the status.
func TestMessages_MapsHistory(t *testing.T) {
	var reqs []recordedRequest
	srv := testServer(t, http.StatusOK, `[
		{"id": 1, "sender": {"id": 42, "username": "landlord"}, "message": "hi",
		 "timestamp": "2025-03-01T10:00:00Z", "is_read": true},
		{"id": 2, "sender": {"id": 7, "username": "tenant7"}, "message": "gone",
		 "timestamp": "2025-03-01T10:01:00Z", "is_deleted": true}
	]`, &reqs)

	c := restapi.NewClient(srv.URL, auth.StaticToken("tok"))
	msgs, err := c.Messages(context.Background(), 5)
	require.NoError(t, err)

	require.Len(t, msgs, 2)
	assert.Equal(t, "/chat/messages/5/", reqs[0].path)

	assert.Equal(t, int64(42), msgs[0].SenderID)
	assert.Equal(t, models.StatusRead, msgs[0].Status)

	assert.True(t, msgs[1].IsDeleted)
	assert.Equal(t, models.TombstoneBody, msgs[1].Body)
}

func TestListNotifications(t *testing.T) {
	var reqs []recordedRequest
	srv := testServer(t, http.StatusOK,
		`{"results": [{"id": 3, "title": "New message", "data": {"room_id": 5, "sender_id": 42}}], "unread_count": 1}`,
		&reqs)

	c := restapi.NewClient(srv.URL, auth.StaticToken("tok"))
	page, err := c.ListNotifications(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, page.UnreadCount)
	require.Len(t, page.Results, 1)
	assert.Equal(t, int64(5), page.Results[0].Data.RoomID)
	assert.Equal(t, int64(42), page.Results[0].Data.SenderID)
}

// TestNotificationMutations checks verb and path for the three
// fire-and-forget inbox calls.
func TestNotificationMutations(t *testing.T) {
	var reqs []recordedRequest
	srv := testServer(t, http.StatusOK, `{}`, &reqs)
	c := restapi.NewClient(srv.URL, auth.StaticToken("tok"))

	require.NoError(t, c.MarkNotificationRead(context.Background(), 3))
	require.NoError(t, c.MarkAllNotificationsRead(context.Background()))
	require.NoError(t, c.DeleteNotification(context.Background(), 3))

	require.Len(t, reqs, 3)
	assert.Equal(t, recordedRequest{"PATCH", "/notifications/3/read/", "Bearer tok"}, reqs[0])
	assert.Equal(t, recordedRequest{"POST", "/notifications/mark-all-read/", "Bearer tok"}, reqs[1])
	assert.Equal(t, recordedRequest{"DELETE", "/notifications/3/", "Bearer tok"}, reqs[2])
}

func TestErrorStatusSurfaced(t *testing.T) {
	var reqs []recordedRequest
	srv := testServer(t, http.StatusForbidden, `{"error": "nope"}`, &reqs)

	c := restapi.NewClient(srv.URL, auth.StaticToken("tok"))
	_, err := c.ListRooms(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
