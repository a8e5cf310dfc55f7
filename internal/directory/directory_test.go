package directory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"roomchat/internal/directory"
	"roomchat/internal/models"
)

// MockRoomsAPI is a testify mock of the REST collaborator.
type MockRoomsAPI struct {
	mock.Mock
}

func (m *MockRoomsAPI) ListRooms(ctx context.Context) ([]models.Conversation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Conversation), args.Error(1)
}

func (m *MockRoomsAPI) RoomForUser(ctx context.Context, peerUserID int64) (*models.Conversation, error) {
	args := m.Called(ctx, peerUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func conversation(id int64, peer models.Participant) models.Conversation {
	return models.Conversation{
		ID: id,
		Participants: []models.Participant{
			{ID: 7, Username: "tenant7"},
			peer,
		},
	}
}

func TestRefreshAndList_OrdersByActivity(t *testing.T) {
	api := new(MockRoomsAPI)
	older := conversation(1, models.Participant{ID: 42, Username: "landlord"})
	older.LastMessage = &models.Preview{Body: "old", Timestamp: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	newer := conversation(2, models.Participant{ID: 43, Username: "owner2"})
	newer.LastMessage = &models.Preview{Body: "new", Timestamp: time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)}
	api.On("ListRooms", mock.Anything).Return([]models.Conversation{older, newer}, nil).Once()

	d := directory.New(api)
	require.NoError(t, d.Refresh(context.Background()))

	list := d.List()
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].ID, "most recently active first")
	api.AssertExpectations(t)
}

// TestUpsertPreview_ReordersList: a live message in a background
// conversation bubbles it to the top of the list.
func TestUpsertPreview_ReordersList(t *testing.T) {
	api := new(MockRoomsAPI)
	a := conversation(1, models.Participant{ID: 42})
	a.LastMessage = &models.Preview{Body: "a", Timestamp: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	b := conversation(2, models.Participant{ID: 43})
	b.LastMessage = &models.Preview{Body: "b", Timestamp: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	api.On("ListRooms", mock.Anything).Return([]models.Conversation{a, b}, nil).Once()

	d := directory.New(api)
	require.NoError(t, d.Refresh(context.Background()))

	d.UpsertPreview(1, "fresh", time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	list := d.List()
	assert.Equal(t, int64(1), list[0].ID)
	assert.Equal(t, "fresh", list[0].LastMessage.Body)
}

// TestUpsertPreview_UnknownRoomIgnored: previews for rooms not yet in
// the index are dropped, not invented.
func TestUpsertPreview_UnknownRoomIgnored(t *testing.T) {
	api := new(MockRoomsAPI)
	d := directory.New(api)

	d.UpsertPreview(99, "ghost", time.Now())

	assert.Empty(t, d.List())
}

func TestFindByPeer_LocalHitSkipsAPI(t *testing.T) {
	api := new(MockRoomsAPI)
	room := conversation(5, models.Participant{ID: 42, Username: "landlord"})
	api.On("ListRooms", mock.Anything).Return([]models.Conversation{room}, nil).Once()

	d := directory.New(api)
	require.NoError(t, d.Refresh(context.Background()))

	found, err := d.FindByPeer(context.Background(), 7, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(5), found.ID)
	api.AssertNotCalled(t, "RoomForUser", mock.Anything, mock.Anything)
}

func TestFindByPeer_MissCreatesViaAPI(t *testing.T) {
	api := new(MockRoomsAPI)
	created := conversation(9, models.Participant{ID: 42, Username: "landlord"})
	api.On("RoomForUser", mock.Anything, int64(42)).Return(&created, nil).Once()

	d := directory.New(api)
	found, err := d.FindByPeer(context.Background(), 7, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(9), found.ID)

	// Inserted locally: a second lookup stays local.
	again, err := d.FindByPeer(context.Background(), 7, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(9), again.ID)
	api.AssertExpectations(t)
}

func TestFindByID_RefreshesOnMiss(t *testing.T) {
	api := new(MockRoomsAPI)
	room := conversation(5, models.Participant{ID: 42})
	api.On("ListRooms", mock.Anything).Return([]models.Conversation{room}, nil).Once()

	d := directory.New(api)
	found, err := d.FindByID(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), found.ID)
	api.AssertExpectations(t)
}

func TestFindByID_NotFound(t *testing.T) {
	api := new(MockRoomsAPI)
	api.On("ListRooms", mock.Anything).Return([]models.Conversation{}, nil).Once()

	d := directory.New(api)
	_, err := d.FindByID(context.Background(), 404)
	assert.Error(t, err)
}

// TestRefreshFailure_SurfacedNotFatal: a rejected list call leaves the
// directory usable (empty), matching the degrade-only error policy.
func TestRefreshFailure_SurfacedNotFatal(t *testing.T) {
	api := new(MockRoomsAPI)
	api.On("ListRooms", mock.Anything).Return(nil, errors.New("boom"))

	d := directory.New(api)
	err := d.Refresh(context.Background())
	require.Error(t, err)
	assert.Empty(t, d.List())
}
