package services

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nexchat-app/nexchat/config"
	"github.com/nexchat-app/nexchat/db"
	apiError "github.com/nexchat-app/nexchat/errors"
	"github.com/nexchat-app/nexchat/models"
	"github.com/nexchat-app/nexchat/services/encrypt"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// GroupService owns group membership and admin authorization.
type GroupService interface {
	CreateGroup(adminID uuid.UUID, req *models.CreateGroupRequest) (*models.Group, *apiError.Error)
	UpdateGroup(groupID, requesterID uuid.UUID, req *models.UpdateGroupRequest) (*models.Group, *apiError.Error)
	DeleteGroup(groupID, requesterID uuid.UUID) *apiError.Error
	GetGroup(groupID, userID uuid.UUID) (*models.Group, *apiError.Error)
	GetUserGroups(userID uuid.UUID) ([]models.Group, *apiError.Error)
	AddParticipant(groupID, participantID uuid.UUID, role models.GroupRole, requesterID uuid.UUID) (*models.Group, *apiError.Error)
	RemoveParticipant(groupID, participantID, requesterID uuid.UUID) (*models.Group, *apiError.Error)
}

type groupService struct {
	Config    *config.Config
	groupRepo db.GroupRepository
	authRepo  db.AuthRepository
}

func NewGroupService(groupRepo db.GroupRepository, authRepo db.AuthRepository, conf *config.Config) GroupService {
	return &groupService{
		Config:    conf,
		groupRepo: groupRepo,
		authRepo:  authRepo,
	}
}

// CreateGroup inserts the admin as the first active participant. Candidate
// invitees that don't resolve in the user directory are skipped, not fatal.
func (s *groupService) CreateGroup(adminID uuid.UUID, req *models.CreateGroupRequest) (*models.Group, *apiError.Error) {
	admin, err := s.authRepo.FindUserByID(adminID)
	if err != nil {
		return nil, apiError.New("admin user not found", http.StatusNotFound)
	}

	key, err := encrypt.GenerateKey()
	if err != nil {
		log.Printf("CreateGroup error generating key: %v", err)
		return nil, apiError.ErrInternalServerError
	}

	group := &models.Group{
		Name:          req.Name,
		Description:   req.Description,
		AdminID:       admin.ID,
		IsPrivate:     req.IsPrivate,
		Avatar:        req.Avatar,
		EncryptionKey: key,
		LastMessageAt: time.Now(),
		IsActive:      true,
		Participants: []models.GroupParticipant{
			{
				UserID:   admin.ID,
				Role:     models.RoleAdmin,
				JoinedAt: time.Now(),
				IsActive: true,
			},
		},
	}

	for _, raw := range req.Participants {
		participantID, err := uuid.Parse(raw)
		if err != nil {
			log.Printf("CreateGroup skipping malformed participant id %q", raw)
			continue
		}
		if participantID == admin.ID {
			continue
		}
		if _, err := s.authRepo.FindUserByID(participantID); err != nil {
			log.Printf("CreateGroup skipping unknown participant %s", participantID)
			continue
		}
		group.AddParticipant(participantID, models.RoleMember)
	}

	if err := s.groupRepo.CreateGroup(group); err != nil {
		log.Printf("CreateGroup error: %v", err)
		return nil, apiError.ErrInternalServerError
	}
	group.EncryptionKey = ""
	return group, nil
}

func (s *groupService) UpdateGroup(groupID, requesterID uuid.UUID, req *models.UpdateGroupRequest) (*models.Group, *apiError.Error) {
	group, apiErr := s.loadActiveGroup(groupID)
	if apiErr != nil {
		return nil, apiErr
	}
	if !group.IsAdmin(requesterID) {
		return nil, apiError.New("only admins can update group", http.StatusUnauthorized)
	}

	fields := map[string]interface{}{}
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.Avatar != nil {
		fields["avatar"] = *req.Avatar
	}
	if req.IsPrivate != nil {
		fields["is_private"] = *req.IsPrivate
	}
	if len(fields) > 0 {
		if err := s.groupRepo.UpdateGroupFields(groupID, fields); err != nil {
			log.Printf("UpdateGroup error: %v", err)
			return nil, apiError.ErrInternalServerError
		}
	}
	return s.reload(groupID)
}

func (s *groupService) DeleteGroup(groupID, requesterID uuid.UUID) *apiError.Error {
	group, apiErr := s.loadActiveGroup(groupID)
	if apiErr != nil {
		return apiErr
	}
	if !group.IsAdmin(requesterID) {
		return apiError.New("only admins can delete group", http.StatusUnauthorized)
	}
	if err := s.groupRepo.SoftDeleteGroup(groupID); err != nil {
		log.Printf("DeleteGroup error: %v", err)
		return apiError.ErrInternalServerError
	}
	return nil
}

func (s *groupService) GetGroup(groupID, userID uuid.UUID) (*models.Group, *apiError.Error) {
	group, apiErr := s.loadActiveGroup(groupID)
	if apiErr != nil {
		return nil, apiErr
	}
	if !group.IsParticipant(userID) {
		return nil, apiError.New("you are not a member of this group", http.StatusUnauthorized)
	}
	return group, nil
}

func (s *groupService) GetUserGroups(userID uuid.UUID) ([]models.Group, *apiError.Error) {
	groups, err := s.groupRepo.ListGroupsForUser(userID)
	if err != nil {
		log.Printf("GetUserGroups error: %v", err)
		return nil, apiError.ErrInternalServerError
	}
	return groups, nil
}

func (s *groupService) AddParticipant(groupID, participantID uuid.UUID, role models.GroupRole, requesterID uuid.UUID) (*models.Group, *apiError.Error) {
	group, apiErr := s.loadActiveGroup(groupID)
	if apiErr != nil {
		return nil, apiErr
	}
	if !group.IsAdmin(requesterID) {
		return nil, apiError.New("only admins can add participants", http.StatusUnauthorized)
	}
	if _, err := s.authRepo.FindUserByID(participantID); err != nil {
		return nil, apiError.New("participant user not found", http.StatusNotFound)
	}
	if role == "" {
		role = models.RoleMember
	}
	if !role.Valid() {
		return nil, apiError.New("invalid participant role", http.StatusBadRequest)
	}

	participant := group.AddParticipant(participantID, role)
	participant.GroupID = group.ID
	if err := s.groupRepo.SaveParticipant(participant); err != nil {
		log.Printf("AddParticipant error: %v", err)
		return nil, apiError.ErrInternalServerError
	}
	return s.reload(groupID)
}

func (s *groupService) RemoveParticipant(groupID, participantID, requesterID uuid.UUID) (*models.Group, *apiError.Error) {
	group, apiErr := s.loadActiveGroup(groupID)
	if apiErr != nil {
		return nil, apiErr
	}
	if !group.IsAdmin(requesterID) {
		return nil, apiError.New("only admins can remove participants", http.StatusUnauthorized)
	}
	if group.AdminID == participantID {
		return nil, apiError.New("cannot remove group admin", http.StatusForbidden)
	}

	participant := group.RemoveParticipant(participantID)
	if participant == nil {
		return nil, apiError.New("participant not found", http.StatusNotFound)
	}
	if err := s.groupRepo.SaveParticipant(participant); err != nil {
		log.Printf("RemoveParticipant error: %v", err)
		return nil, apiError.ErrInternalServerError
	}
	return s.reload(groupID)
}

func (s *groupService) loadActiveGroup(groupID uuid.UUID) (*models.Group, *apiError.Error) {
	group, err := s.groupRepo.FindGroupByID(groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.New("group not found", http.StatusNotFound)
		}
		log.Printf("loadActiveGroup error: %v", err)
		return nil, apiError.ErrInternalServerError
	}
	if !group.IsActive {
		return nil, apiError.New("group not found", http.StatusNotFound)
	}
	return group, nil
}

func (s *groupService) reload(groupID uuid.UUID) (*models.Group, *apiError.Error) {
	group, err := s.groupRepo.FindGroupByID(groupID)
	if err != nil {
		log.Printf("reload group error: %v", err)
		return nil, apiError.ErrInternalServerError
	}
	return group, nil
}
