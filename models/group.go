package models

import (
	"time"

	"github.com/google/uuid"
)

type GroupRole string

const (
	RoleAdmin     GroupRole = "admin"
	RoleModerator GroupRole = "moderator"
	RoleMember    GroupRole = "member"
)

func (r GroupRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleMember:
		return true
	}
	return false
}

// GroupParticipant records one user's membership in a group. Rows are never
// deleted; leaving a group flips IsActive so a rejoin reactivates the row.
type GroupParticipant struct {
	Model
	GroupID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_group_participant" json:"group_id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_group_participant" json:"user_id"`
	Role     GroupRole `gorm:"not null;default:member" json:"role"`
	JoinedAt time.Time `json:"joined_at"`
	IsActive bool      `gorm:"default:true" json:"is_active"`
}

// Group is a named multi-party thread with role-based membership. The
// encryption key is set once at creation and never changes.
type Group struct {
	Model
	Name          string             `json:"name" binding:"required,max=100" conform:"trim"`
	Description   string             `json:"description" binding:"max=500" conform:"trim"`
	AdminID       uuid.UUID          `gorm:"type:uuid;not null;index" json:"admin_id"`
	Participants  []GroupParticipant `gorm:"foreignKey:GroupID" json:"participants"`
	Avatar        string             `json:"avatar,omitempty"`
	IsPrivate     bool               `gorm:"default:false" json:"is_private"`
	EncryptionKey string             `gorm:"not null" json:"-"`
	LastMessageID *uuid.UUID         `gorm:"type:uuid" json:"last_message_id,omitempty"`
	LastMessageAt time.Time          `json:"last_message_at"`
	IsActive      bool               `gorm:"default:true" json:"is_active"`
}

// IsParticipant reports whether userID is the group admin or an active
// participant. The admin field and an active admin-role row are equally
// authoritative.
func (g *Group) IsParticipant(userID uuid.UUID) bool {
	if g.AdminID == userID {
		return true
	}
	for _, p := range g.Participants {
		if p.UserID == userID && p.IsActive {
			return true
		}
	}
	return false
}

// IsAdmin reports whether userID holds admin authority over the group.
func (g *Group) IsAdmin(userID uuid.UUID) bool {
	if g.AdminID == userID {
		return true
	}
	for _, p := range g.Participants {
		if p.UserID == userID && p.Role == RoleAdmin && p.IsActive {
			return true
		}
	}
	return false
}

// AddParticipant is idempotent: an existing row (active or not) is
// reactivated with the new role rather than duplicated.
func (g *Group) AddParticipant(userID uuid.UUID, role GroupRole) *GroupParticipant {
	for i := range g.Participants {
		if g.Participants[i].UserID == userID {
			g.Participants[i].IsActive = true
			g.Participants[i].Role = role
			return &g.Participants[i]
		}
	}
	g.Participants = append(g.Participants, GroupParticipant{
		GroupID:  g.ID,
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now(),
		IsActive: true,
	})
	return &g.Participants[len(g.Participants)-1]
}

// RemoveParticipant marks the participant inactive. The row stays behind so
// the join date survives a rejoin.
func (g *Group) RemoveParticipant(userID uuid.UUID) *GroupParticipant {
	for i := range g.Participants {
		if g.Participants[i].UserID == userID {
			g.Participants[i].IsActive = false
			return &g.Participants[i]
		}
	}
	return nil
}

// ActiveParticipantIDs returns the identities a group event fans out to.
func (g *Group) ActiveParticipantIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(g.Participants)+1)
	var ids []uuid.UUID
	for _, p := range g.Participants {
		if p.IsActive && !seen[p.UserID] {
			seen[p.UserID] = true
			ids = append(ids, p.UserID)
		}
	}
	if !seen[g.AdminID] {
		ids = append(ids, g.AdminID)
	}
	return ids
}

type CreateGroupRequest struct {
	Name         string   `json:"name" binding:"required,max=100"`
	Description  string   `json:"description" binding:"max=500"`
	Participants []string `json:"participants"`
	IsPrivate    bool     `json:"is_private"`
	Avatar       string   `json:"avatar"`
}

type UpdateGroupRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
	IsPrivate   *bool   `json:"is_private,omitempty"`
}

type AddParticipantRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
	Role   string `json:"role"`
}
