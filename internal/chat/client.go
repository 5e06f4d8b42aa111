package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"roomcast/internal/metrics"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // Maximum message size allowed from peer.
)

// Inbound event names.
const (
	InCreateRoom       = "create-room"
	InJoinRoom         = "join-room"
	InLeaveRoom        = "leave-room"
	InSendMessage      = "send-message"
	InMessageDelivered = "message-delivered"
	InMessageSeen      = "message-seen"
	InTyping           = "typing"
	InStopTyping       = "stop-typing"
)

var okResult = map[string]bool{"success": true}

// Client is a middleman between the websocket connection and the Service.
// Events from one connection are handled one at a time, in arrival order.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	userID  int
	session *Session
	service *Service
	metrics *metrics.Metrics
	// ctx outlives the connection so writes started before a disconnect finish.
	ctx context.Context
	log *slog.Logger
}

func newClient(ctx context.Context, conn *websocket.Conn, userID int, bufferSize int, service *Service, log *slog.Logger) *Client {
	c := &Client{
		conn:    conn,
		send:    make(chan []byte, bufferSize),
		done:    make(chan struct{}),
		userID:  userID,
		service: service,
		metrics: service.metrics,
		ctx:     ctx,
		log:     log.With("user_id", userID),
	}
	c.session = NewSession(userID, c)
	return c
}

func (c *Client) UserID() int { return c.userID }

// Deliver never blocks. A full buffer reports false so the Hub can drop the
// connection; frames sent after Close are discarded.
func (c *Client) Deliver(frame []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump pumps events from the websocket connection to the Service.
func (c *Client) readPump() {
	defer func() {
		c.service.Disconnect(c.session)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("Websocket read failed", "error", err)
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.fail("", "", newError(ErrValidation, "Malformed event frame"))
			continue
		}
		c.dispatch(env)
	}
}

// writePump pumps frames from the send buffer to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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

func (c *Client) dispatch(env Envelope) {
	ctx := c.ctx
	sess := c.session

	switch env.Event {
	case InCreateRoom:
		var req CreateRoomRequest
		if !c.decode(env, &req) {
			return
		}
		res, err := c.service.CreateRoom(ctx, sess, req)
		if err != nil {
			c.fail(env.Event, env.Ack, err)
			return
		}
		c.reply(env.Event, env.Ack, res)

	case InJoinRoom:
		roomID, ok := c.decodeRoomID(env)
		if !ok {
			return
		}
		if err := c.service.JoinRoom(ctx, sess, roomID); err != nil {
			c.fail(env.Event, env.Ack, err)
			return
		}
		c.confirm(env.Ack, okResult)

	case InLeaveRoom:
		roomID, ok := c.decodeRoomID(env)
		if !ok {
			return
		}
		if err := c.service.LeaveRoom(ctx, sess, roomID); err != nil {
			c.fail(env.Event, env.Ack, err)
		}

	case InSendMessage:
		var req SendMessageRequest
		if !c.decode(env, &req) {
			return
		}
		view, err := c.service.SendMessage(ctx, sess, req)
		if err != nil {
			c.fail(env.Event, env.Ack, err)
			return
		}
		c.confirm(env.Ack, view)

	case InMessageDelivered, InMessageSeen:
		var req ReceiptRequest
		if !c.decode(env, &req) {
			return
		}
		mark := c.service.MarkDelivered
		if env.Event == InMessageSeen {
			mark = c.service.MarkSeen
		}
		if err := mark(ctx, sess, req); err != nil {
			c.fail(env.Event, env.Ack, err)
			return
		}
		c.confirm(env.Ack, okResult)

	case InTyping, InStopTyping:
		roomID, _ := parseRoomID(env.Data)
		if env.Event == InTyping {
			c.service.Typing(ctx, sess, roomID)
		} else {
			c.service.StopTyping(ctx, sess, roomID)
		}

	default:
		c.fail(env.Event, env.Ack, newError(ErrValidation, "Unknown event %q", env.Event))
	}
}

func (c *Client) decode(env Envelope, v any) bool {
	if len(env.Data) == 0 || json.Unmarshal(env.Data, v) != nil {
		c.fail(env.Event, env.Ack, newError(ErrValidation, "Malformed %s payload", env.Event))
		return false
	}
	return true
}

func (c *Client) decodeRoomID(env Envelope) (string, bool) {
	roomID, ok := parseRoomID(env.Data)
	if !ok {
		c.fail(env.Event, env.Ack, newError(ErrValidation, "Malformed %s payload", env.Event))
	}
	return roomID, ok
}

// parseRoomID accepts a bare JSON string or an object with a roomId field.
func parseRoomID(data json.RawMessage) (string, bool) {
	if len(data) == 0 {
		return "", true
	}
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return id, true
	}
	var req RoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return "", false
	}
	return req.RoomID, true
}

// reply answers a request/response event. Without an ack id the result is
// sent as a plain event of the same name.
func (c *Client) reply(event, ack string, data any) {
	name := EventAck
	if ack == "" {
		name = event
	}
	c.emit(name, ack, data)
}

// confirm acknowledges a fire-and-forget event when the client asked for it.
func (c *Client) confirm(ack string, data any) {
	if ack != "" {
		c.emit(EventAck, ack, data)
	}
}

// fail reports an error to this connection only; it never closes it.
func (c *Client) fail(event, ack string, err error) {
	payload := ToPayload(err)
	c.metrics.ObserveError(event, payload.Code)
	if ack != "" {
		c.emit(EventAck, ack, payload)
		return
	}
	c.emit(EventError, "", payload)
}

func (c *Client) warn(err error) {
	c.emit(EventWarning, "", ToPayload(err))
}

func (c *Client) emit(event, ack string, data any) {
	frame, err := EncodeFrame(event, ack, data)
	if err != nil {
		c.log.Error("Failed to encode frame", "event", event, "error", err)
		return
	}
	if !c.Deliver(frame) {
		c.log.Warn("Send buffer full, dropping frame", "event", event)
	}
}
