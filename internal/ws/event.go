// Package ws implements the real-time gateway: a websocket transport with
// authenticated sessions, room membership, message delivery with optimistic
// acknowledgment, typing indicators, and a pub/sub backplane that fans
// broadcasts out across horizontally scaled instances.
package ws

import (
	"encoding/json"
	"time"

	"github.com/uplift-app/go-support-backend/internal/domain"
)

// Client → server event types.
const (
	EvtAuth        = "auth"
	EvtJoinRoom    = "join_room"
	EvtLeaveRoom   = "leave_room"
	EvtSendMessage = "send_message"
	EvtTyping      = "typing"
)

// Server → client event types.
const (
	EvtConnected      = "connected"
	EvtChatHistory    = "chat_history"
	EvtReceiveMessage = "receive_message"
	EvtMessageSent    = "message_sent"
	EvtUserJoined     = "user_joined"
	EvtUserLeft       = "user_left"
	EvtUserTyping     = "user_typing"
	EvtError          = "error"
)

// Error codes carried by the error event. Authorization denials are kept
// distinct from authentication failures.
const (
	CodeUnauthorized   = "unauthorized"
	CodeForbidden      = "forbidden"
	CodeRoomNotFound   = "room_not_found"
	CodeInvalidMessage = "invalid_message"
	CodeBadRequest     = "bad_request"
)

// clientFrame is the single inbound frame shape; the relevant fields depend
// on Type.
type clientFrame struct {
	Type            string `json:"type"`
	Token           string `json:"token,omitempty"`
	RoomID          string `json:"roomId,omitempty"`
	Message         string `json:"message,omitempty"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
	IsTyping        bool   `json:"isTyping,omitempty"`
}

// MessagePayload is the wire form of a chat message: the persisted row
// enriched with server time and the sender's connection id. When
// persistence failed, ID carries the fallback id instead of a durable one.
type MessagePayload struct {
	ID              string    `json:"id"`
	RoomID          string    `json:"roomId"`
	UserID          string    `json:"userId"`
	Username        string    `json:"username"`
	Content         string    `json:"content"`
	ClientMessageID string    `json:"clientMessageId,omitempty"`
	ConnectionID    string    `json:"connectionId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// toPayload converts a stored message to its wire form.
func toPayload(m domain.ChatMessage, connectionID string) MessagePayload {
	return MessagePayload{
		ID:              m.ID,
		RoomID:          m.RoomID,
		UserID:          m.UserID,
		Username:        m.Username,
		Content:         m.Content,
		ClientMessageID: m.ClientMessageID,
		ConnectionID:    connectionID,
		CreatedAt:       m.CreatedAt,
	}
}

// marshalEvent builds an outbound frame of the given type. The payload map
// is flattened next to the type discriminator.
func marshalEvent(evtType string, fields map[string]any) []byte {
	body := make(map[string]any, len(fields)+1)
	body["type"] = evtType
	for k, v := range fields {
		body[k] = v
	}
	b, _ := json.Marshal(body)
	return b
}

func connectedEvent(userID, username string) []byte {
	return marshalEvent(EvtConnected, map[string]any{
		"userId":   userID,
		"username": username,
	})
}

func chatHistoryEvent(msgs []MessagePayload) []byte {
	return marshalEvent(EvtChatHistory, map[string]any{"messages": msgs})
}

func receiveMessageEvent(msg MessagePayload) []byte {
	return marshalEvent(EvtReceiveMessage, map[string]any{"message": msg})
}

func messageSentEvent(success bool, messageID, clientMessageID string) []byte {
	return marshalEvent(EvtMessageSent, map[string]any{
		"success":         success,
		"messageId":       messageID,
		"clientMessageId": clientMessageID,
	})
}

func userJoinedEvent(userID, username string, at time.Time) []byte {
	return marshalEvent(EvtUserJoined, map[string]any{
		"userId":    userID,
		"username":  username,
		"timestamp": at,
	})
}

func userLeftEvent(userID, username string, at time.Time) []byte {
	return marshalEvent(EvtUserLeft, map[string]any{
		"userId":    userID,
		"username":  username,
		"timestamp": at,
	})
}

func userTypingEvent(username string, isTyping bool) []byte {
	return marshalEvent(EvtUserTyping, map[string]any{
		"username": username,
		"isTyping": isTyping,
	})
}

func errorEvent(code, message string) []byte {
	return marshalEvent(EvtError, map[string]any{
		"code":    code,
		"message": message,
	})
}
