package devserver

import (
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// wsClient is one websocket connection behind the hub.
type wsClient struct {
	hub      *Hub
	conn     *websocket.Conn
	userID   int64
	username string
	// roomID is 0 for notification sockets.
	roomID int64
	send   chan []byte
	closed chan struct{}
}

func newWSClient(hub *Hub, conn *websocket.Conn, userID int64, username string, roomID int64) *wsClient {
	return &wsClient{
		hub:      hub,
		conn:     conn,
		userID:   userID,
		username: username,
		roomID:   roomID,
		send:     make(chan []byte, 256),
		closed:   make(chan struct{}),
	}
}

func (c *wsClient) UserID() int64         { return c.userID }
func (c *wsClient) Username() string      { return c.username }
func (c *wsClient) RoomID() int64         { return c.roomID }
func (c *wsClient) SendCh() chan<- []byte { return c.send }

// Run starts the pumps.
func (c *wsClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close stops the write pump; the read pump stops when the connection
// closes.
func (c *wsClient) Close() {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.UnregisterCh <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("error reading from user %d: %v", c.userID, err)
			}
			break
		}
		c.hub.IncomingCh <- Frame{Client: c, Raw: message}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
