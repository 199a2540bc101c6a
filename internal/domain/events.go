package domain

import (
	"encoding/json"
	"errors"
	"strings"
)

// WebSocket event types from client.
const (
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventSendMessage = "sendMessage"
	EventMarkAsRead  = "markAsRead"
	EventPing        = "ping"
)

// WebSocket event types to client.
const (
	EventConnected      = "connected"
	EventReceiveMessage = "receiveMessage"
	EventMessageError   = "messageError"
	EventMessagesRead   = "messagesRead"
	EventPong           = "pong"
)

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// OutboundEnvelope is the server side frame with a typed payload.
type OutboundEnvelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// NewEnvelope wraps data in an outbound frame.
func NewEnvelope(eventType string, data interface{}) *OutboundEnvelope {
	return &OutboundEnvelope{Type: eventType, Data: data}
}

// Client -> Server payloads

// JoinRoomPayload accepts either a bare string or {"roomId": "..."}.
type JoinRoomPayload struct {
	RoomID string
}

func (p *JoinRoomPayload) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &p.RoomID)
	}
	var obj struct {
		RoomID string `json:"roomId"`
		Room   string `json:"room"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	p.RoomID = obj.RoomID
	if p.RoomID == "" {
		p.RoomID = obj.Room
	}
	return nil
}

// MarkAsReadPayload identifies the conversation being read. UserID is the
// reader, OtherUserID the counterpart whose messages become read.
type MarkAsReadPayload struct {
	UserID      string `json:"userId"`
	OtherUserID string `json:"otherUserId"`
}

// Server -> Client payloads

// ConnectedPayload is sent once after the handshake completes.
type ConnectedPayload struct {
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
	Resolved     bool   `json:"resolved"`
}

// MessageErrorPayload reports a failed request to the originating connection.
type MessageErrorPayload struct {
	Error string    `json:"error"`
	Kind  ErrorKind `json:"kind,omitempty"`
	Field string    `json:"field,omitempty"`
}

// MessagesReadPayload is the read receipt delivered to the counterpart.
type MessagesReadPayload struct {
	ReaderID       string `json:"readerId"`
	ConversationID string `json:"conversationId"`
	Count          int64  `json:"count"`
}

// NewMessageError builds the error payload for err, exposing kind and field
// only for domain errors.
func NewMessageError(err error) *OutboundEnvelope {
	payload := MessageErrorPayload{Error: err.Error()}
	var de *Error
	if errors.As(err, &de) {
		payload.Kind = de.Kind
		payload.Field = de.Field
		if de.Detail != "" {
			payload.Error = de.Detail
		}
	}
	payload.Error = strings.TrimSpace(payload.Error)
	return NewEnvelope(EventMessageError, payload)
}
