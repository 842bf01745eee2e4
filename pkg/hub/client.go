package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize limits what clients may send; they only send pongs.
	maxMessageSize = 4 * 1024

	sendBuffer = 64
)

// Conn is the subset of *websocket.Conn the client pumps use.
type Conn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client represents a single websocket connection
type Client struct {
	hub   *Hub
	conn  Conn
	topic string
	send  chan Message

	// written is closed when writePump has returned.
	written chan struct{}
}

// NewClient creates a client following topic and registers it with the hub.
// It returns nil if the hub has stopped.
func NewClient(h *Hub, conn Conn, topic string) *Client {
	c := &Client{
		hub:     h,
		conn:    conn,
		topic:   topic,
		send:    make(chan Message, sendBuffer),
		written: make(chan struct{}),
	}
	select {
	case h.register <- c:
		return c
	case <-h.done:
		return nil
	}
}

func (c *Client) follows(topic string) bool {
	return c.topic == "" || topic == "" || c.topic == topic
}

// Run starts the write pump and blocks in the read pump until the
// connection closes. It returns only after the write pump has stopped, so
// the caller may release the connection.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
	<-c.written
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.written)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			wsType := websocket.TextMessage
			if msg.Type == BinaryMessage {
				wsType = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(wsType, msg.Data); err != nil {
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
