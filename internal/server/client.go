// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/protocol"
)

// Client is one WebSocket connection bound to a single room membership.
// It satisfies chat.Member: rooms push encoded envelopes through Enqueue and
// the write pump drains them onto the socket.
type Client struct {
	id       string
	conn     *websocket.Conn
	hub      *Hub
	registry *chat.Registry
	username string
	room     string
	addr     string
	cfg      Config
	limiter  *tokenBucket
	now      func() time.Time

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeCode int
	closeText string
	state     atomic.Int32
}

// NewClient creates a client for username in room. The connection does not
// join the room until the hub starts its pumps.
func NewClient(conn *websocket.Conn, hub *Hub, registry *chat.Registry, cfg Config, username, room, addr string) *Client {
	cfg = cfg.Sanitize()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		id:       uuid.NewString(),
		conn:     conn,
		hub:      hub,
		registry: registry,
		username: username,
		room:     room,
		addr:     addr,
		cfg:      cfg,
		limiter:  newTokenBucket(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		now:      time.Now,
		send:     make(chan []byte, cfg.SendBufferSize),
		done:     make(chan struct{}),
	}
}

// ID returns the connection's unique identifier.
func (c *Client) ID() string { return c.id }

// Username returns the identity bound at upgrade time.
func (c *Client) Username() string { return c.username }

// Room returns the room this connection belongs to.
func (c *Client) Room() string { return c.room }

// State returns the current lifecycle state.
func (c *Client) State() ConnState { return ConnState(c.state.Load()) }

func (c *Client) setState(s ConnState) { c.state.Store(int32(s)) }

func (c *Client) String() string {
	return fmt.Sprintf("%s (%s@%s, %s)", c.addr, c.username, c.room, c.id)
}

// Enqueue queues payload for the write pump without blocking. It reports
// false when the queue is full or the connection is closing.
func (c *Client) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close starts an orderly close: queued envelopes are flushed, then a normal
// close frame is sent. Subsequent calls do nothing.
func (c *Client) Close() {
	c.closeWith(websocket.CloseNormalClosure, "")
}

// closeWith is Close with an explicit close code. The first caller wins.
func (c *Client) closeWith(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.done)
	})
}

// notify sends an in-band notice to this connection only. Notices sent this
// way are not part of the room history.
func (c *Client) notify(content string) error {
	payload, err := protocol.Encode(protocol.SystemNotice{
		Content:   content,
		Room:      c.room,
		Timestamp: protocol.Stamp(c.now()),
	})
	if err != nil {
		return err
	}
	if !c.Enqueue(payload) {
		return ErrTransportClosed
	}
	return nil
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c, err)
		}
		return nil
	})
}

// join admits the connection to its room. A duplicate username is reported
// in-band and the connection is closed with a policy violation.
func (c *Client) join() bool {
	err := c.registry.Connect(c, c.username, c.room)
	if err == nil {
		c.setState(StateJoined)
		log.Printf("Client %s joined", c)
		return true
	}

	log.Printf("Join rejected for %s: %v", c, err)
	if errors.Is(err, chat.ErrRoomJoinConflict) {
		_ = c.notify(fmt.Sprintf("Username %s is already in use in %s", c.username, c.room))
		c.closeWith(websocket.ClosePolicyViolation, "username already in use")
		return false
	}
	c.closeWith(websocket.ClosePolicyViolation, "join rejected")
	return false
}

// handleReadError logs appropriate error messages based on the error type.
func (c *Client) handleReadError(err error) {
	if errors.Is(err, websocket.ErrReadLimit) {
		log.Printf("Message from %s exceeded maximum size of %d bytes", c, c.cfg.MaxMessageSize)
		c.closeWith(websocket.CloseMessageTooBig, "message too big")
		return
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		log.Printf("Client %s disconnected: %v", c, err)
		return
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		log.Printf("Client %s connection closed: %v", c, err)
		return
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		log.Printf("Unexpected WebSocket error from %s: %v", c, err)
		return
	}

	log.Printf("WebSocket read error from %s: %v", c, err)
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.limiter.take() {
		return true
	}
	log.Printf("Rate limit exceeded for %s (%d messages per %s); discarding message", c, c.cfg.RateLimit.Burst, c.cfg.RateLimit.RefillInterval)
	_ = c.notify("Rate limit exceeded; message discarded")
	return false
}

// processMessage routes one inbound frame through the registry. Bad payloads
// are dropped and the sender is told why; they never end the connection.
func (c *Client) processMessage(raw []byte) {
	err := c.registry.Dispatch(raw, c.username, c.room)
	switch {
	case err == nil:
		c.setState(StateActive)
	case errors.Is(err, chat.ErrMalformedPayload):
		log.Printf("Invalid message from %s: %v", c, err)
		_ = c.notify("Malformed message ignored")
	case errors.Is(err, chat.ErrRoomMismatch):
		log.Printf("Room mismatch from %s: %v", c, err)
		_ = c.notify("Messages can only be sent to " + c.room)
	default:
		// Typically the member was evicted and the socket is already closing.
		log.Printf("Error dispatching message from %s: %v", c, err)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.setState(StateDisconnected)
		c.registry.DisconnectMember(c, c.username, c.room)
		c.Close()
		c.hub.unregisterClient(c)
	}()

	c.setupReadConnection()
	if !c.join() {
		return
	}

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		if messageType != websocket.TextMessage {
			log.Printf("Ignoring non-text frame from %s", c)
			_ = c.notify("Only text messages are supported")
			continue
		}

		c.processMessage(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.closeWith(websocket.CloseAbnormalClosure, "")
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message := <-c.send:
		return c.writeTextMessage(message) == nil
	case <-ticker.C:
		return c.handlePing()
	case <-c.done:
		c.flushQueued()
		c.writeCloseMessage()
		return false
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error closing connection for %s: %v", c, err)
		}
	}
}

// flushQueued writes whatever is still queued so that final notices reach
// the peer before the close frame.
func (c *Client) flushQueued() {
	for {
		select {
		case message := <-c.send:
			if c.writeTextMessage(message) != nil {
				return
			}
		default:
			return
		}
	}
}

// writeCloseMessage sends a close frame carrying the recorded close code.
func (c *Client) writeCloseMessage() {
	payload := websocket.FormatCloseMessage(c.closeCode, c.closeText)
	if c.closeCode == websocket.CloseAbnormalClosure || c.closeCode == 0 {
		payload = websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	}
	if err := c.conn.WriteControl(websocket.CloseMessage, payload, time.Now().Add(c.cfg.WriteWait)); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing close message to %s: %v", c, err)
		}
	}
}

// writeTextMessage writes one envelope as one text frame.
func (c *Client) writeTextMessage(message []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c, err)
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing message to %s: %v", c, err)
		}
		return fmt.Errorf("%w: %w", ErrTransportClosed, err)
	}
	return nil
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", c, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		log.Printf("Error writing ping message to %s: %v", c, err)
		return false
	}
	return true
}
