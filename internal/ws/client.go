package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/uplift-app/go-support-backend/internal/chat"
)

// persistTimeout bounds the message write so a stalled database cannot stall
// the broadcast path.
const persistTimeout = 5 * time.Second

// Client is one websocket connection. The read pump owns the session and all
// inbound protocol handling; the write pump owns the socket's write side.
type Client struct {
	gw      *Gateway
	conn    *websocket.Conn
	session *Session

	send chan []byte
	done chan struct{}
	once sync.Once

	// Tokens captured at upgrade time; consumed by authenticate.
	queryToken  string
	headerToken string

	registered bool
}

// enqueue hands a frame to the write pump. A full buffer means the client
// cannot keep up; it is disconnected rather than allowed to apply
// backpressure to the hub.
func (c *Client) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		slowClientDrops.Inc()
		log.Warn().Str("connection_id", c.session.ConnectionID).Msg("ws: dropping slow client")
		c.shutdown()
	}
}

// shutdown signals both pumps to exit. Safe to call repeatedly.
func (c *Client) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// writePump serializes all writes to the socket and keeps the connection
// alive with periodic pings.
func (c *Client) writePump() {
	pingPeriod := c.gw.cfg.PongTimeout * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			// Flush queued frames (a final error event, typically) before
			// closing.
			for {
				select {
				case msg := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteTimeout))
					_ = c.conn.WriteMessage(websocket.TextMessage, msg)
					continue
				default:
				}
				break
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.shutdown()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		}
	}
}

// readPump authenticates the connection and then dispatches inbound frames
// until the socket closes or the client is shut down.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		if c.registered {
			c.gw.hub.unregister <- c
		}
		c.session.Disconnect()
		c.shutdown()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(c.gw.cfg.MaxMessageLen) * 8)

	if !c.authenticate(ctx) {
		return
	}

	c.enqueue(connectedEvent(c.session.UserID, c.session.Username))
	c.gw.hub.register <- c
	c.registered = true

	_ = c.conn.SetReadDeadline(time.Now().Add(c.gw.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.gw.cfg.PongTimeout))
	})

	for {
		select {
		case <-c.done:
			return
		default:
		}

		var frame clientFrame
		if _, data, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("connection_id", c.session.ConnectionID).Msg("ws: read error")
			}
			return
		} else if err := json.Unmarshal(data, &frame); err != nil {
			c.enqueue(errorEvent(CodeBadRequest, "malformed frame"))
			continue
		}

		messagesTotal.WithLabelValues(frame.Type).Inc()

		switch frame.Type {
		case EvtJoinRoom:
			c.handleJoin(ctx, frame)
		case EvtLeaveRoom:
			c.handleLeave()
		case EvtSendMessage:
			c.handleSend(ctx, frame)
		case EvtTyping:
			c.handleTyping(frame)
		case EvtAuth:
			// Already authenticated; re-auth over a live session is ignored.
		default:
			c.enqueue(errorEvent(CodeBadRequest, "unknown event type"))
		}
	}
}

// authenticate resolves a token from the query parameter, the Authorization
// header, or, when the handshake carried neither, a first auth frame awaited
// within the auth deadline. Failures emit a generic error event and report
// false.
func (c *Client) authenticate(ctx context.Context) bool {
	token := c.queryToken
	if token == "" {
		token = c.headerToken
	}

	// Only when the handshake carried no token do we block on the first
	// frame; a read deadline failure here poisons the connection, so it must
	// stay the path of last resort.
	if token == "" {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.gw.cfg.AuthDeadline))
		if err := c.session.BeginAuth(); err != nil {
			return false
		}
		_, data, err := c.conn.ReadMessage()
		if err == nil {
			var frame clientFrame
			if jsonErr := json.Unmarshal(data, &frame); jsonErr == nil && frame.Type == EvtAuth {
				token = frame.Token
			}
		}
	}
	if token == "" {
		c.enqueue(errorEvent(CodeUnauthorized, "authentication required"))
		return false
	}

	id, err := c.gw.validator.Validate(ctx, token)
	if err != nil {
		c.enqueue(errorEvent(CodeUnauthorized, "invalid or missing credentials"))
		return false
	}

	username := id.DisplayName
	if username == "" {
		username = id.Email
	}
	if username == "" {
		username = id.SubjectID
	}
	if err := c.session.Authenticate(id.SubjectID, username); err != nil {
		return false
	}
	return true
}

// handleJoin enforces the room access policy, replays history to the joiner,
// and moves membership in the hub. The previous room, if any, is left as part
// of the hub-side join.
func (c *Client) handleJoin(ctx context.Context, frame clientFrame) {
	if frame.RoomID == "" {
		c.enqueue(errorEvent(CodeBadRequest, "roomId is required"))
		return
	}
	if err := c.gw.chat.CanAccessRoom(ctx, c.session.UserID, frame.RoomID); err != nil {
		switch {
		case errors.Is(err, chat.ErrRoomNotFound):
			c.enqueue(errorEvent(CodeRoomNotFound, "room does not exist"))
		case errors.Is(err, chat.ErrRoomAccessDenied):
			c.enqueue(errorEvent(CodeForbidden, "access to this room is denied"))
		default:
			log.Error().Err(err).Str("room_id", frame.RoomID).Msg("ws: room access check failed")
			c.enqueue(errorEvent(CodeBadRequest, "unable to join room"))
		}
		return
	}

	history, err := c.gw.chat.History(ctx, frame.RoomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", frame.RoomID).Msg("ws: history fetch failed")
		history = nil
	}

	if err := c.session.EnterRoom(frame.RoomID); err != nil {
		c.enqueue(errorEvent(CodeBadRequest, "cannot join room in current state"))
		return
	}
	c.gw.hub.join <- joinRequest{client: c, roomID: frame.RoomID}

	payloads := make([]MessagePayload, 0, len(history))
	for _, m := range history {
		payloads = append(payloads, toPayload(m, ""))
	}
	c.enqueue(chatHistoryEvent(payloads))
}

func (c *Client) handleLeave() {
	if c.session.State != StateInRoom {
		return
	}
	c.gw.hub.leave <- c
	c.session.ExitRoom()
}

// handleSend validates, persists, broadcasts, and acknowledges a message.
// Persistence failure does not block delivery: the broadcast proceeds with a
// fallback id and the failure is counted.
func (c *Client) handleSend(ctx context.Context, frame clientFrame) {
	if c.session.State != StateInRoom {
		c.enqueue(errorEvent(CodeBadRequest, "join a room before sending"))
		return
	}
	if frame.RoomID != "" && frame.RoomID != c.session.CurrentRoom {
		c.enqueue(errorEvent(CodeForbidden, "not a member of that room"))
		return
	}

	content, err := c.gw.chat.ValidateContent(frame.Message)
	if err != nil {
		c.enqueue(errorEvent(CodeInvalidMessage, err.Error()))
		return
	}

	pctx, cancel := context.WithTimeout(ctx, persistTimeout)
	msg, err := c.gw.chat.Record(pctx, c.session.CurrentRoom, c.session.UserID, c.session.Username, content, frame.ClientMessageID)
	cancel()
	if err != nil {
		persistFailures.Inc()
	}

	payload := toPayload(*msg, c.session.ConnectionID)
	c.gw.hub.Broadcast(c.session.CurrentRoom, receiveMessageEvent(payload), nil)
	c.enqueue(messageSentEvent(true, msg.ID, frame.ClientMessageID))
}

func (c *Client) handleTyping(frame clientFrame) {
	if c.session.State != StateInRoom {
		return
	}
	c.gw.hub.Broadcast(c.session.CurrentRoom, userTypingEvent(c.session.Username, frame.IsTyping), c)
}
