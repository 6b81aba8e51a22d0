package models

import (
	"time"

	"github.com/google/uuid"
)

type MessageScope string

const (
	ScopePrivate MessageScope = "private"
	ScopeGroup   MessageScope = "group"
)

type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeFile  MessageType = "file"
	TypeAudio MessageType = "audio"
)

func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeFile, TypeAudio:
		return true
	}
	return false
}

// Message belongs to exactly one scope: private messages carry ReceiverID
// and ConversationID, group messages carry GroupID. Sender, target and
// content are immutable after creation; only the read and deleted flags
// flip. Plaintext content is retained for search, ciphertext is the
// authenticated copy and never appears in API responses.
type Message struct {
	Model
	SenderID         uuid.UUID    `gorm:"type:uuid;not null;index" json:"sender_id"`
	ReceiverID       *uuid.UUID   `gorm:"type:uuid;index" json:"receiver_id,omitempty"`
	GroupID          *uuid.UUID   `gorm:"type:uuid;index" json:"group_id,omitempty"`
	MessageScope     MessageScope `gorm:"not null;default:private;index" json:"message_scope"`
	Content          string       `gorm:"not null" json:"content"`
	EncryptedContent string       `gorm:"not null" json:"-"`
	MessageType      MessageType  `gorm:"not null;default:text" json:"message_type"`
	MediaURL         string       `json:"media_url,omitempty"`
	ReplyToID        *uuid.UUID   `gorm:"type:uuid" json:"reply_to_id,omitempty"`
	IsRead           bool         `gorm:"default:false;index" json:"is_read"`
	ReadAt           *time.Time   `json:"read_at,omitempty"`
	IsDeleted        bool         `gorm:"default:false;index" json:"is_deleted"`
	DeletedAt        *time.Time   `json:"deleted_at,omitempty"`
	ConversationID   string       `gorm:"index" json:"conversation_id,omitempty"`

	// Read-side composition, filled by the service layer, never persisted.
	Sender   *UserResponse `gorm:"-" json:"sender,omitempty"`
	Receiver *UserResponse `gorm:"-" json:"receiver,omitempty"`
}

type SendMessageRequest struct {
	Receiver    string `json:"receiver" binding:"required,uuid"`
	Content     string `json:"content" binding:"required,max=1000"`
	MessageType string `json:"message_type"`
	MediaURL    string `json:"media_url"`
	ReplyTo     string `json:"reply_to"`
}

type SendGroupMessageRequest struct {
	GroupID     string `json:"group_id" binding:"required,uuid"`
	Content     string `json:"content" binding:"required,max=1000"`
	MessageType string `json:"message_type"`
	MediaURL    string `json:"media_url"`
	ReplyTo     string `json:"reply_to"`
}
