// README: Websocket client with a bounded send queue, its own writer goroutine and ping/pong heartbeat.
package tracking

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	ClosePolicyViolation = websocket.ClosePolicyViolation
	CloseInternalError   = websocket.CloseInternalServerErr
	CloseNormal          = websocket.CloseNormalClosure
	CloseGoingAway       = websocket.CloseGoingAway
)

type ClientConfig struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	SendQueue      int
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 4096,
		SendQueue:      32,
	}
}

type Client struct {
	conn *websocket.Conn
	cfg  ClientConfig
	log  *logrus.Entry

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	lastSeen  atomic.Int64
}

func NewClient(conn *websocket.Conn, cfg ClientConfig, log *logrus.Entry) *Client {
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = DefaultClientConfig().SendQueue
	}
	c := &Client{
		conn: conn,
		cfg:  cfg,
		log:  log,
		send: make(chan []byte, cfg.SendQueue),
		done: make(chan struct{}),
	}
	c.touch()
	return c
}

// Send queues msg for the writer goroutine. A full queue drops the message for
// this receiver only.
func (c *Client) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.log.WithField("queued", len(c.send)).Warn("send queue full, dropping message")
		return false
	}
}

// Close sends a close frame with code and tears the connection down. Safe to
// call more than once and from any goroutine.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteWait))
		_ = c.conn.Close()
	})
}

func (c *Client) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// Run starts the writer and reads until the peer goes away. Each inbound
// message is handed to handle in arrival order; an error from handle closes
// the channel with an internal-error code.
func (c *Client) Run(handle func(msg []byte) error) {
	go c.writeLoop()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WithError(err).Debug("channel read failed")
			}
			c.Close(CloseGoingAway, "")
			return
		}
		c.touch()
		if err := handle(msg); err != nil {
			c.log.WithError(err).Error("inbound message failed")
			c.Close(CloseInternalError, "internal error")
			return
		}
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.log.WithError(err).Debug("channel write failed")
				}
				c.Close(CloseInternalError, "write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close(CloseGoingAway, "")
				return
			}
		}
	}
}
