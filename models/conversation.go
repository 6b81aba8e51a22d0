package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a private two-party thread. Exactly one record exists per
// unordered participant pair, keyed by the canonical ConversationID.
type Conversation struct {
	Model
	ConversationID string     `gorm:"uniqueIndex;not null" json:"conversation_id"`
	UserAID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_a_id"`
	UserBID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_b_id"`
	EncryptionKey  string     `gorm:"not null" json:"-"`
	LastMessageID  *uuid.UUID `gorm:"type:uuid" json:"last_message_id,omitempty"`
	LastMessageAt  time.Time  `json:"last_message_at"`
	IsActive       bool       `gorm:"default:true" json:"is_active"`
}

// CanonicalConversationID derives the identifier for an unordered pair:
// the two ids sorted lexically and joined with "_". Both orders of the same
// pair always map to the same id.
func CanonicalConversationID(a, b uuid.UUID) string {
	first, second := a.String(), b.String()
	if second < first {
		first, second = second, first
	}
	return first + "_" + second
}

// SortedPair returns the pair in canonical storage order.
func SortedPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if b.String() < a.String() {
		return b, a
	}
	return a, b
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID uuid.UUID) uuid.UUID {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	ConversationID string       `json:"conversation_id"`
	OtherUser      UserResponse `json:"other_user"`
	LastMessage    *Message     `json:"last_message,omitempty"`
	LastMessageAt  time.Time    `json:"last_message_at"`
	UnreadCount    int64        `json:"unread_count"`
}
