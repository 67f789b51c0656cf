package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait     = 5 * time.Second
	messageBuffer = 16
	// maxMessageSize caps client messages; commands are small JSON objects.
	maxMessageSize = 64 * 1024
	// maxCloseReason keeps close frames within the 125 byte control frame limit.
	maxCloseReason = 120
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origins are enforced by the CORS middleware and API key
	},
}

// Conn adapts a websocket connection to a gate session. A single reader
// goroutine delivers text messages; writes are serialised.
type Conn struct {
	conn *websocket.Conn
	msgs chan []byte
	done chan struct{}
	once sync.Once
	mu   sync.Mutex
}

// Accept upgrades the request and starts reading client messages.
func Accept(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewConn(conn), nil
}

func NewConn(conn *websocket.Conn) *Conn {
	c := &Conn{
		conn: conn,
		msgs: make(chan []byte, messageBuffer),
		done: make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	go c.readPump()
	return c
}

func (c *Conn) readPump() {
	defer c.markDone()
	for {
		kind, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("ws read failed", "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		// Drop messages nobody is draining so close and ping frames keep
		// being read.
		select {
		case c.msgs <- msg:
		case <-c.done:
			return
		default:
			slog.Debug("ws message dropped", "bytes", len(msg))
		}
	}
}

func (c *Conn) markDone() {
	c.once.Do(func() { close(c.done) })
}

// SendFrame writes an encoded frame as a binary message.
func (c *Conn) SendFrame(frame []byte) error {
	return c.write(func() error {
		return c.conn.WriteMessage(websocket.BinaryMessage, frame)
	})
}

// SendJSON writes v as a text message.
func (c *Conn) SendJSON(v any) error {
	return c.write(func() error {
		return c.conn.WriteJSON(v)
	})
}

func (c *Conn) write(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.markDone()
		return err
	}
	if err := fn(); err != nil {
		c.markDone()
		return err
	}
	return nil
}

func (c *Conn) Messages() <-chan []byte { return c.msgs }
func (c *Conn) Done() <-chan struct{}   { return c.done }

// Close sends a normal closure and releases the connection.
func (c *Conn) Close() error {
	return c.closeWith(websocket.CloseNormalClosure, "")
}

// CloseWithError reports err to the client as an internal error closure.
func (c *Conn) CloseWithError(err error) error {
	reason := err.Error()
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	return c.closeWith(websocket.CloseInternalServerErr, reason)
}

func (c *Conn) closeWith(code int, reason string) error {
	c.mu.Lock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.mu.Unlock()
	c.markDone()
	return c.conn.Close()
}
