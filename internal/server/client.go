package server

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-partynight/internal/types"
	"github.com/teris-io/shortid"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Client is one websocket connection. Liveness is probed by the heartbeat
// monitor with application-level pings, so no websocket control pings are
// sent here.
type Client struct {
	id        string
	conn      *websocket.Conn
	ps        *PartyServer
	log       *log.Logger
	send      chan *types.ServerMessage
	limiter   *rate.Limiter
	closing   chan struct{}
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, ps *PartyServer, l *log.Logger) (*Client, error) {
	id, err := shortid.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate connection id: %w", err)
	}

	return &Client{
		id:      id,
		conn:    conn,
		ps:      ps,
		log:     l,
		send:    make(chan *types.ServerMessage, sendBufferSize),
		limiter: ps.newLimiter(),
		closing: make(chan struct{}),
	}, nil
}

func (c *Client) ID() string {
	return c.id
}

// Send queues msg without blocking.
func (c *Client) Send(msg *types.ServerMessage) bool {
	return c.queueMessage(msg)
}

// Close asks the write pump to flush pending messages and close the
// connection. The read pump then unregisters the client. Safe to call more
// than once and from any goroutine.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)
	})
	return nil
}

func (c *Client) Write() {
	defer func() {
		c.conn.Close()
		c.log.Printf("write exiting for %q", c.id)
	}()

	for {
		select {
		case msg := <-c.send:
			if !c.writeServerMessage(msg) {
				return
			}
		case <-c.closing:
			c.flush()
			c.sendMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is already queued.
func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			if !c.writeServerMessage(msg) {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.Close()
		c.conn.Close()
		c.ps.unregisterClient(c)
		c.log.Printf("read exiting for %q", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			return
		}

		var msg types.ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(types.ErrInvalidMessage(0))
			continue
		}

		// pongs are exempt so a busy client is not timed out by the heartbeat
		if msg.Pong == nil && !c.limiter.Allow() {
			c.queueMessage(types.ErrTooManyRequests(msg.Id))
			continue
		}

		msg.Timestamp = types.Now()
		if !c.ps.dispatch(c, &msg) {
			c.queueMessage(types.ErrServiceUnavailable(msg.Id))
		}
	}
}

func (c *Client) queueMessage(msg *types.ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("failed to send message to client %q, channel is full", c.id)
		return false
	}

	return true
}

func serializeMessage(msg *types.ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) writeServerMessage(msg *types.ServerMessage) bool {
	bytes, err := serializeMessage(msg)
	if err != nil {
		c.log.Println("failed to serialize message:", err)
		return true
	}

	return c.sendMessage(websocket.TextMessage, bytes)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}
