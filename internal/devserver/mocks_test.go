package devserver_test

import (
	"github.com/stretchr/testify/mock"

	"roomchat/internal/devserver"
	"roomchat/internal/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) EnsureAccount(acc *devserver.Account) error {
	return m.Called(acc).Error(0)
}

func (m *MockStore) AccountByID(id int64) (*devserver.Account, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*devserver.Account), args.Error(1)
}

func (m *MockStore) RoomsForUser(userID int64) ([]models.Conversation, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Conversation), args.Error(1)
}

func (m *MockStore) FindOrCreateRoom(selfID, peerID int64) (*models.Conversation, error) {
	args := m.Called(selfID, peerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockStore) RoomParticipants(roomID int64) ([]int64, error) {
	args := m.Called(roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockStore) RoomHistory(roomID int64) ([]devserver.HistoryEntry, error) {
	args := m.Called(roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]devserver.HistoryEntry), args.Error(1)
}

func (m *MockStore) SaveMessage(roomID, senderID int64, body string) (*devserver.StoredMessage, error) {
	args := m.Called(roomID, senderID, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*devserver.StoredMessage), args.Error(1)
}

func (m *MockStore) MarkRead(roomID, messageID, readerID int64) ([]int64, error) {
	args := m.Called(roomID, messageID, readerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockStore) EditMessage(roomID, messageID, editorID int64, body string) (*devserver.StoredMessage, error) {
	args := m.Called(roomID, messageID, editorID, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*devserver.StoredMessage), args.Error(1)
}

func (m *MockStore) DeleteMessage(roomID, messageID, editorID int64) error {
	return m.Called(roomID, messageID, editorID).Error(0)
}

func (m *MockStore) SaveNotification(n *devserver.StoredNotification) error {
	args := m.Called(n)
	if args.Error(0) == nil {
		n.ID = 1
	}
	return args.Error(0)
}

func (m *MockStore) NotificationsForUser(userID int64) ([]models.Notification, int, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]models.Notification), args.Int(1), args.Error(2)
}

func (m *MockStore) MarkNotificationRead(userID, id int64) error {
	return m.Called(userID, id).Error(0)
}

func (m *MockStore) MarkAllNotificationsRead(userID int64) error {
	return m.Called(userID).Error(0)
}

func (m *MockStore) DeleteNotification(userID, id int64) error {
	return m.Called(userID, id).Error(0)
}

func (m *MockStore) Publish(channel string, payload []byte) error {
	return m.Called(channel, payload).Error(0)
}

type mockClient struct {
	userID   int64
	username string
	roomID   int64
	Recv     chan []byte
	closed   chan struct{}
}

func newMockClient(userID, roomID int64, username string) *mockClient {
	return &mockClient{
		userID:   userID,
		username: username,
		roomID:   roomID,
		Recv:     make(chan []byte, 10),
		closed:   make(chan struct{}),
	}
}

func (c *mockClient) UserID() int64         { return c.userID }
func (c *mockClient) Username() string      { return c.username }
func (c *mockClient) RoomID() int64         { return c.roomID }
func (c *mockClient) SendCh() chan<- []byte { return c.Recv }
func (c *mockClient) Run()                  {}

func (c *mockClient) Close() {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
}

func (c *mockClient) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
