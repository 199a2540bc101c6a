package domain

import (
	"time"
)

// MessageModel is the GORM model for messages table.
type MessageModel struct {
	ID         string      `gorm:"type:varchar(26);primaryKey"`
	Sender     string      `gorm:"type:varchar(64);not null;index:idx_messages_pair,priority:1"`
	Receiver   string      `gorm:"type:varchar(64);index:idx_messages_pair,priority:2;index:idx_messages_recipient,priority:1"`
	Room       string      `gorm:"type:varchar(128);index"`
	Content    string      `gorm:"type:text"`
	Type       string      `gorm:"type:varchar(16);not null;default:'text'"`
	Attachment *Attachment `gorm:"serializer:json;type:text"`
	IsGroup    bool        `gorm:"not null;default:false"`
	Status     string      `gorm:"type:varchar(16);not null;default:'sent';index:idx_messages_recipient,priority:2"`
	CreatedAt  time.Time   `gorm:"not null;index"`
	UpdatedAt  time.Time   `gorm:"not null"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts MessageModel to domain Message.
func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:         m.ID,
		Sender:     m.Sender,
		Receiver:   m.Receiver,
		Room:       m.Room,
		Content:    m.Content,
		Type:       MessageType(m.Type),
		Attachment: m.Attachment,
		IsGroup:    m.IsGroup,
		Status:     Status(m.Status),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// DraftToModel converts a validated draft to a new MessageModel.
func DraftToModel(id string, d *Draft, now time.Time) *MessageModel {
	room := d.Room
	if !d.IsGroup {
		room = ""
	}
	return &MessageModel{
		ID:         id,
		Sender:     d.Sender,
		Receiver:   d.Receiver,
		Room:       room,
		Content:    d.Content,
		Type:       string(d.Type),
		Attachment: d.Attachment,
		IsGroup:    d.IsGroup,
		Status:     string(StatusSent),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// UserModel is the read-only GORM view of the platform users table.
type UserModel struct {
	ID        string `gorm:"type:varchar(64);primaryKey"`
	FirstName string `gorm:"type:varchar(100)"`
	LastName  string `gorm:"type:varchar(100)"`
	Email     string `gorm:"type:varchar(255)"`
	Role      string `gorm:"type:varchar(20);index"`
	Avatar    string `gorm:"type:varchar(512)"`
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

// ToProfile converts UserModel to its public profile.
func (m *UserModel) ToProfile() *Profile {
	return &Profile{
		ID:        m.ID,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		Role:      Role(m.Role),
		Avatar:    m.Avatar,
	}
}

// AssignmentModel links an instructor to a candidate.
type AssignmentModel struct {
	ID           uint      `gorm:"primaryKey"`
	InstructorID string    `gorm:"type:varchar(64);not null;index;uniqueIndex:idx_assignment_pair,priority:1"`
	CandidateID  string    `gorm:"type:varchar(64);not null;index;uniqueIndex:idx_assignment_pair,priority:2"`
	Active       bool      `gorm:"not null;default:true"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for AssignmentModel.
func (AssignmentModel) TableName() string {
	return "instructor_assignments"
}
