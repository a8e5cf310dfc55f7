package devserver

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"roomchat/internal/models"
)

var (
	ErrNotFound   = errors.New("devserver: not found")
	ErrForbidden  = errors.New("devserver: not allowed")
	ErrTombstoned = errors.New("devserver: message is deleted")
)

// HistoryEntry is the REST history wire shape: sender comes as a nested
// user object, unlike the flat realtime frame.
type HistoryEntry struct {
	ID        int64              `json:"id"`
	Sender    models.Participant `json:"sender"`
	Message   string             `json:"message"`
	Timestamp time.Time          `json:"timestamp"`
	IsRead    bool               `json:"is_read"`
	IsEdited  bool               `json:"is_edited"`
	IsDeleted bool               `json:"is_deleted"`
}

// Store is everything the hub and the HTTP handlers need from
// persistence and the pub/sub fabric.
type Store interface {
	EnsureAccount(acc *Account) error
	AccountByID(id int64) (*Account, error)

	RoomsForUser(userID int64) ([]models.Conversation, error)
	FindOrCreateRoom(selfID, peerID int64) (*models.Conversation, error)
	RoomParticipants(roomID int64) ([]int64, error)
	RoomHistory(roomID int64) ([]HistoryEntry, error)

	SaveMessage(roomID, senderID int64, body string) (*StoredMessage, error)
	MarkRead(roomID, messageID, readerID int64) ([]int64, error)
	EditMessage(roomID, messageID, editorID int64, body string) (*StoredMessage, error)
	DeleteMessage(roomID, messageID, editorID int64) error

	SaveNotification(n *StoredNotification) error
	NotificationsForUser(userID int64) ([]models.Notification, int, error)
	MarkNotificationRead(userID, id int64) error
	MarkAllNotificationsRead(userID int64) error
	DeleteNotification(userID, id int64) error

	Publish(channel string, payload []byte) error
}

// Service implements Store on PostgreSQL plus Redis pub/sub.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
}

// NewService builds the storage service.
func NewService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Ctx:   context.Background(),
	}
}

// AutoMigrate creates the chat tables.
func (s *Service) AutoMigrate() error {
	return s.DB.AutoMigrate(
		&Account{},
		&Room{},
		&StoredMessage{},
		&StoredNotification{},
	)
}

func (s *Service) EnsureAccount(acc *Account) error {
	return s.DB.Save(acc).Error
}

func (s *Service) AccountByID(id int64) (*Account, error) {
	var acc Account
	if err := s.DB.First(&acc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &acc, nil
}

// RoomsForUser returns every conversation userID takes part in, with
// participant summaries and the last-message preview attached.
func (s *Service) RoomsForUser(userID int64) ([]models.Conversation, error) {
	var rooms []Room
	if err := s.DB.Where("? = ANY(participant_ids)", userID).Find(&rooms).Error; err != nil {
		return nil, err
	}

	out := make([]models.Conversation, 0, len(rooms))
	for _, r := range rooms {
		conv, err := s.toConversation(&r)
		if err != nil {
			log.Printf("ERROR: Failed to assemble room %d: %v", r.ID, err)
			continue
		}
		out = append(out, *conv)
	}
	return out, nil
}

// FindOrCreateRoom returns the conversation between the two users,
// creating it on first contact.
func (s *Service) FindOrCreateRoom(selfID, peerID int64) (*models.Conversation, error) {
	if _, err := s.AccountByID(peerID); err != nil {
		return nil, err
	}

	var room Room
	err := s.DB.Where("participant_ids @> ?", pq.Int64Array{selfID, peerID}).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		room = Room{ParticipantIDs: pq.Int64Array{selfID, peerID}}
		err = s.DB.Create(&room).Error
	}
	if err != nil {
		return nil, err
	}
	return s.toConversation(&room)
}

func (s *Service) RoomParticipants(roomID int64) ([]int64, error) {
	var room Room
	if err := s.DB.First(&room, roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return []int64(room.ParticipantIDs), nil
}

// RoomHistory loads the full ordered history of a conversation.
func (s *Service) RoomHistory(roomID int64) ([]HistoryEntry, error) {
	var msgs []StoredMessage
	if err := s.DB.Where("room_id = ?", roomID).Order("created_at asc").Find(&msgs).Error; err != nil {
		return nil, err
	}

	senders := make(map[int64]models.Participant)
	out := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		sender, ok := senders[m.SenderID]
		if !ok {
			acc, err := s.AccountByID(m.SenderID)
			if err != nil {
				log.Printf("WARNING: Sender %d of message %d missing: %v", m.SenderID, m.ID, err)
				acc = &Account{ID: m.SenderID}
			}
			sender = participant(acc)
			senders[m.SenderID] = sender
		}
		out = append(out, HistoryEntry{
			ID:        m.ID,
			Sender:    sender,
			Message:   m.Body,
			Timestamp: m.CreatedAt,
			IsRead:    m.IsRead,
			IsEdited:  m.IsEdited,
			IsDeleted: m.IsDeleted,
		})
	}
	return out, nil
}

func (s *Service) SaveMessage(roomID, senderID int64, body string) (*StoredMessage, error) {
	msg := StoredMessage{
		RoomID:   roomID,
		SenderID: senderID,
		Body:     body,
	}
	if err := s.DB.Create(&msg).Error; err != nil {
		log.Printf("ERROR: Failed to save message for room %d: %v", roomID, err)
		return nil, err
	}
	return &msg, nil
}

// MarkRead flags messageID and every earlier unread message from the
// same sender. It returns the IDs that actually flipped, newest first,
// so each one can be broadcast as its own receipt.
func (s *Service) MarkRead(roomID, messageID, readerID int64) ([]int64, error) {
	var msg StoredMessage
	if err := s.DB.Where("room_id = ?", roomID).First(&msg, messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	// Reading your own message is meaningless.
	if msg.SenderID == readerID {
		return nil, nil
	}

	var ids []int64
	err := s.DB.Model(&StoredMessage{}).
		Where("room_id = ? AND sender_id = ? AND id <= ? AND is_read = false", roomID, msg.SenderID, messageID).
		Order("id desc").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	err = s.DB.Model(&StoredMessage{}).
		Where("id IN ?", ids).
		Update("is_read", true).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// EditMessage replaces the body. Only the author may edit, and a
// deleted message stays deleted.
func (s *Service) EditMessage(roomID, messageID, editorID int64, body string) (*StoredMessage, error) {
	var msg StoredMessage
	if err := s.DB.Where("room_id = ?", roomID).First(&msg, messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if msg.SenderID != editorID {
		return nil, ErrForbidden
	}
	if msg.IsDeleted {
		return nil, ErrTombstoned
	}

	msg.Body = body
	msg.IsEdited = true
	if err := s.DB.Save(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage tombstones the message: the row survives with an empty
// body so history keeps its position.
func (s *Service) DeleteMessage(roomID, messageID, editorID int64) error {
	var msg StoredMessage
	if err := s.DB.Where("room_id = ?", roomID).First(&msg, messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if msg.SenderID != editorID {
		return ErrForbidden
	}

	return s.DB.Model(&msg).Updates(map[string]interface{}{
		"body":       "",
		"is_deleted": true,
	}).Error
}

func (s *Service) SaveNotification(n *StoredNotification) error {
	if err := s.DB.Create(n).Error; err != nil {
		log.Printf("ERROR: Failed to save notification for user %d: %v", n.RecipientID, err)
		return err
	}
	return nil
}

// NotificationsForUser returns the inbox newest first plus the unread
// counter.
func (s *Service) NotificationsForUser(userID int64) ([]models.Notification, int, error) {
	var rows []StoredNotification
	if err := s.DB.Where("recipient_id = ?", userID).Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	unread := 0
	out := make([]models.Notification, 0, len(rows))
	for _, r := range rows {
		if !r.IsRead {
			unread++
		}
		out = append(out, notification(&r))
	}
	return out, unread, nil
}

func (s *Service) MarkNotificationRead(userID, id int64) error {
	res := s.DB.Model(&StoredNotification{}).
		Where("id = ? AND recipient_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) MarkAllNotificationsRead(userID int64) error {
	return s.DB.Model(&StoredNotification{}).
		Where("recipient_id = ? AND is_read = false", userID).
		Update("is_read", true).Error
}

func (s *Service) DeleteNotification(userID, id int64) error {
	res := s.DB.Where("recipient_id = ?", userID).Delete(&StoredNotification{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Publish pushes an event onto Redis so every server instance can fan
// it out to its local sockets.
func (s *Service) Publish(channel string, payload []byte) error {
	return s.Redis.Publish(s.Ctx, channel, payload).Err()
}

// Subscribe listens to every realtime event channel.
func (s *Service) Subscribe() *redis.PubSub {
	return s.Redis.PSubscribe(s.Ctx, eventChannelPattern)
}

func (s *Service) toConversation(r *Room) (*models.Conversation, error) {
	var accounts []Account
	if err := s.DB.Where("id = ANY(?)", r.ParticipantIDs).Find(&accounts).Error; err != nil {
		return nil, err
	}

	conv := models.Conversation{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
	}
	for i := range accounts {
		conv.Participants = append(conv.Participants, participant(&accounts[i]))
	}

	var last StoredMessage
	err := s.DB.Where("room_id = ?", r.ID).Order("created_at desc").First(&last).Error
	switch {
	case err == nil:
		body := last.Body
		if last.IsDeleted {
			body = models.TombstoneBody
		}
		conv.LastMessage = &models.Preview{Body: body, Timestamp: last.CreatedAt}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Empty conversation.
	default:
		return nil, err
	}
	return &conv, nil
}

func participant(acc *Account) models.Participant {
	return models.Participant{
		ID:        acc.ID,
		Username:  acc.Username,
		FirstName: acc.FirstName,
		LastName:  acc.LastName,
	}
}

func notification(r *StoredNotification) models.Notification {
	return models.Notification{
		ID:      r.ID,
		Title:   r.Title,
		Message: r.Message,
		Data: models.NotificationData{
			RoomID:   r.RoomID,
			SenderID: r.SenderID,
		},
		IsRead:    r.IsRead,
		CreatedAt: r.CreatedAt,
	}
}
