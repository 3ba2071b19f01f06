package ws

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/okian/guardline/internal/domain/types"
	"github.com/okian/guardline/pkg/logger"
	"github.com/okian/guardline/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Client is one WebSocket connection. It satisfies registry.Conn.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan types.Message
	limiter *rate.Limiter
	logger  logger.Logger

	mu     sync.RWMutex
	closed bool
}

func newClient(conn *websocket.Conn, limiter *rate.Limiter, log logger.Logger) *Client {
	return &Client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan types.Message, sendBufferSize),
		limiter: limiter,
		logger:  log,
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Send queues msg for the write pump without blocking. It reports false when
// the client is gone or its buffer is full.
func (c *Client) Send(msg types.Message) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		metrics.RecordMessageDropped("client_buffer_full")
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// shutdown tells the peer the server is going away and closes the socket,
// which ends the read pump.
func (c *Client) shutdown() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.conn.Close()
}

// readPump reads frames until the peer goes away and hands each one to
// handle. Frames of one connection are handled strictly in order.
func (c *Client) readPump(ctx context.Context, handle func(ctx context.Context, c *Client, frame []byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error(ctx, "failed to set read deadline", logger.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn(ctx, "unexpected websocket close", logger.String("conn", c.id), logger.Error(err))
			}
			return
		}
		if !c.limiter.Allow() {
			metrics.RecordWSRejected("rate_limited")
			c.Send(errorMessage("", ErrRateLimited))
			continue
		}
		handle(ctx, c, frame)
	}
}

// writePump drains the send buffer onto the socket. On exit the client is
// marked closed so later sends report a drop.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				c.logger.Error(ctx, "failed to encode message", logger.String("type", msg.Type), logger.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func errorMessage(op string, err error) types.Message {
	return types.Message{Type: types.TypeError, Data: types.ErrorNotice{Op: op, Message: err.Error()}}
}
