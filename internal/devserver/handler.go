package devserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"roomchat/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dev server: any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler wires the HTTP surface to the hub and the store.
type Handler struct {
	Hub    *Hub
	Store  Store
	Secret string
}

func NewHandler(hub *Hub, store Store, secret string) *Handler {
	return &Handler{Hub: hub, Store: store, Secret: secret}
}

// Routes mounts everything on the engine.
func (h *Handler) Routes(r *gin.Engine) {
	r.GET("/auth/token", h.IssueToken)

	api := r.Group("/", h.requireAuth)
	api.GET("/chat/rooms/", h.ListRooms)
	api.GET("/chat/room/:userID/", h.RoomForUser)
	api.GET("/chat/messages/:roomID/", h.RoomHistory)

	api.GET("/notifications/", h.ListNotifications)
	api.PATCH("/notifications/:id/read/", h.MarkNotificationRead)
	api.POST("/notifications/mark-all-read/", h.MarkAllNotificationsRead)
	api.DELETE("/notifications/:id/", h.DeleteNotification)

	r.GET("/ws/chat/:roomID/", h.ServeChatSocket)
	r.GET("/ws/notifications/", h.ServeNotificationSocket)
}

// IssueToken mints a dev token for the given user, registering the
// account on first use. There is no password; this server exists for
// local development only.
func (h *Handler) IssueToken(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	username := c.Query("username")
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username required"})
		return
	}

	acc := &Account{
		ID:        userID,
		Username:  username,
		FirstName: c.Query("first_name"),
		LastName:  c.Query("last_name"),
	}
	if err := h.Store.EnsureAccount(acc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save account"})
		return
	}

	token, err := MintToken(h.Secret, userID, username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user_id": userID})
}

const identityKey = "identity"

// requireAuth validates the bearer token and stashes the identity.
func (h *Handler) requireAuth(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) < 8 || authHeader[:7] != "Bearer " {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
		return
	}

	id, err := validateToken(h.Secret, authHeader[7:])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}
	c.Set(identityKey, id)
}

func identity(c *gin.Context) *tokenIdentity {
	return c.MustGet(identityKey).(*tokenIdentity)
}

func (h *Handler) ListRooms(c *gin.Context) {
	rooms, err := h.Store.RoomsForUser(identity(c).UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}
	if rooms == nil {
		rooms = []models.Conversation{}
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *Handler) RoomForUser(c *gin.Context) {
	peerID, err := strconv.ParseInt(c.Param("userID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad user id"})
		return
	}

	room, err := h.Store.FindOrCreateRoom(identity(c).UserID, peerID)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such user"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open room"})
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) RoomHistory(c *gin.Context) {
	roomID, ok := h.roomForMember(c)
	if !ok {
		return
	}

	history, err := h.Store.RoomHistory(roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	if history == nil {
		history = []HistoryEntry{}
	}
	c.JSON(http.StatusOK, history)
}

func (h *Handler) ListNotifications(c *gin.Context) {
	results, unread, err := h.Store.NotificationsForUser(identity(c).UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load notifications"})
		return
	}
	if results == nil {
		results = []models.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "unread_count": unread})
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad notification id"})
		return
	}
	if err := h.Store.MarkNotificationRead(identity(c).UserID, id); err != nil {
		h.notificationError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	if err := h.Store.MarkAllNotificationsRead(identity(c).UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update notifications"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeleteNotification(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad notification id"})
		return
	}
	if err := h.Store.DeleteNotification(identity(c).UserID, id); err != nil {
		h.notificationError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) notificationError(c *gin.Context, err error) {
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such notification"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update notification"})
}

// ServeChatSocket upgrades a conversation socket. The token travels in
// the query string because browsers cannot set headers on websockets.
func (h *Handler) ServeChatSocket(c *gin.Context) {
	id, err := validateToken(h.Secret, c.Query("token"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}

	roomID, err := strconv.ParseInt(c.Param("roomID"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad room id"})
		return
	}

	participants, err := h.Store.RoomParticipants(roomID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no such room"})
		return
	}
	member := false
	for _, p := range participants {
		if p == id.UserID {
			member = true
		}
	}
	if !member {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	h.upgrade(c, id, roomID)
}

// ServeNotificationSocket upgrades the per-user alert socket.
func (h *Handler) ServeNotificationSocket(c *gin.Context) {
	id, err := validateToken(h.Secret, c.Query("token"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}
	h.upgrade(c, id, 0)
}

func (h *Handler) upgrade(c *gin.Context, id *tokenIdentity, roomID int64) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to upgrade connection"})
		return
	}

	client := newWSClient(h.Hub, conn, id.UserID, id.Username, roomID)
	h.Hub.RegisterCh <- client
	client.Run()
}

// roomForMember parses the room id and checks the caller belongs to it.
func (h *Handler) roomForMember(c *gin.Context) (int64, bool) {
	roomID, err := strconv.ParseInt(c.Param("roomID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad room id"})
		return 0, false
	}

	participants, err := h.Store.RoomParticipants(roomID)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such room"})
		return 0, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return 0, false
	}
	for _, p := range participants {
		if p == identity(c).UserID {
			return roomID, true
		}
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
	return 0, false
}
