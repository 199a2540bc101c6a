package domain

import (
	"strings"
	"time"
)

// Status is the delivery state of a message.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// rank orders statuses; unknown values rank below sent.
func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	return s.rank() > 0
}

// CanTransition reports whether a message in status s may move to next.
// Staying in the same status is allowed; moving backwards is not.
func (s Status) CanTransition(next Status) bool {
	return next.Valid() && next.rank() >= s.rank()
}

// Below returns every valid status strictly earlier than s.
func (s Status) Below() []Status {
	var out []Status
	for _, st := range []Status{StatusSent, StatusDelivered, StatusRead} {
		if st.rank() < s.rank() {
			out = append(out, st)
		}
	}
	return out
}

// UnreadStatuses are the statuses counted as unread.
var UnreadStatuses = []Status{StatusSent, StatusDelivered}

// ParseStatus validates a client-supplied status.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	return st, st.Valid()
}

// MessageType classifies message content.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeSystem:
		return true
	}
	return false
}

// Attachment is the structured payload of an image or file message.
type Attachment struct {
	URL          string `json:"url"`
	Filename     string `json:"filename,omitempty"`
	Size         int64  `json:"size,omitempty"`
	OriginalName string `json:"originalName,omitempty"`
}

// Present reports whether the attachment points at anything.
func (a *Attachment) Present() bool {
	return a != nil && strings.TrimSpace(a.URL) != ""
}

// Message is a persisted chat message.
type Message struct {
	ID         string      `json:"id"`
	Sender     string      `json:"sender"`
	Receiver   string      `json:"receiver,omitempty"`
	Room       string      `json:"room,omitempty"`
	Content    string      `json:"content"`
	Type       MessageType `json:"type"`
	Attachment *Attachment `json:"attachment,omitempty"`
	IsGroup    bool        `json:"isGroup"`
	Status     Status      `json:"status"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`

	// Populated on routed and returned messages, never stored.
	SenderProfile   *Profile `json:"senderProfile,omitempty"`
	ReceiverProfile *Profile `json:"receiverProfile,omitempty"`
}

// Counterpart returns the participant of a direct message that is not userID.
func (m *Message) Counterpart(userID string) string {
	if m.Sender == userID {
		return m.Receiver
	}
	return m.Sender
}

// Draft is the validated input to the store's Create.
type Draft struct {
	Sender     string
	Receiver   string
	Room       string
	Content    string
	Type       MessageType
	Attachment *Attachment
	IsGroup    bool
}

// Validate enforces the creation rules of a message record.
func (d *Draft) Validate() error {
	if strings.TrimSpace(d.Sender) == "" {
		return NewValidationError("sender", "sender is required")
	}
	if d.IsGroup {
		if strings.TrimSpace(d.Room) == "" {
			return NewValidationError("room", "room is required for group messages")
		}
	} else if strings.TrimSpace(d.Receiver) == "" {
		return NewValidationError("receiver", "receiver is required")
	}
	if strings.TrimSpace(d.Content) == "" && !d.Attachment.Present() {
		return NewValidationError("content", "content or attachment is required")
	}
	if !d.Type.Valid() {
		return NewValidationError("type", "type must be one of text, image, file, system")
	}
	return nil
}

// SendMessageRequest is the client payload for sending a message, shared by
// the websocket sendMessage event and POST /messages.
type SendMessageRequest struct {
	Sender     string      `json:"sender,omitempty"`
	Receiver   string      `json:"receiver"`
	Content    string      `json:"content"`
	Type       string      `json:"type,omitempty"`
	Image      *Attachment `json:"image,omitempty"`
	File       *Attachment `json:"file,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	IsGroup    bool        `json:"isGroup,omitempty"`
	Room       string      `json:"room,omitempty"`
}

// ResolveAttachment picks the first present attachment field.
func (r *SendMessageRequest) ResolveAttachment() *Attachment {
	for _, a := range []*Attachment{r.Attachment, r.Image, r.File} {
		if a.Present() {
			return a
		}
	}
	return nil
}

// InferType returns the explicit type when valid, otherwise image or file
// based on which attachment field is set, otherwise text.
func (r *SendMessageRequest) InferType() MessageType {
	if t := MessageType(strings.ToLower(strings.TrimSpace(r.Type))); t.Valid() {
		return t
	}
	switch {
	case r.Image.Present():
		return MessageTypeImage
	case r.File.Present():
		return MessageTypeFile
	case r.Attachment.Present():
		if r.Attachment.OriginalName != "" {
			return MessageTypeFile
		}
		return MessageTypeImage
	default:
		return MessageTypeText
	}
}

// UpdateStatusRequest is the body of PUT /messages/:id/status.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// MarkReadResult reports a bulk mark-read.
type MarkReadResult struct {
	ReaderID       string `json:"readerId"`
	ConversationID string `json:"conversationId"`
	Updated        int64  `json:"updated"`
}

// UnreadCount is the body of GET /conversations/unread-count.
type UnreadCount struct {
	Count int64 `json:"count"`
}
