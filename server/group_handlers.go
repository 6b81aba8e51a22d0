package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nexchat-app/nexchat/errors"
	"github.com/nexchat-app/nexchat/models"
	"github.com/nexchat-app/nexchat/server/response"
)

func groupIDParam(c *gin.Context) (uuid.UUID, *errors.Error) {
	groupID, err := uuid.Parse(c.Param("groupID"))
	if err != nil {
		return uuid.Nil, errors.New("invalid group id", http.StatusBadRequest)
	}
	return groupID, nil
}

func (s *Server) handleCreateGroup() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errors.ErrUnauthorized)
			return
		}

		var req models.CreateGroupRequest
		if err := decode(c, &req); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}

		group, apiErr := s.GroupService.CreateGroup(userID, &req)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "group created", http.StatusCreated, group, nil)
	}
}

func (s *Server) handleGetUserGroups() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errors.ErrUnauthorized)
			return
		}

		groups, apiErr := s.GroupService.GetUserGroups(userID)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "groups retrieved", http.StatusOK, groups, nil)
	}
}

func (s *Server) handleGetGroup() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errors.ErrUnauthorized)
			return
		}

		groupID, apiErr := groupIDParam(c)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}

		group, apiErr := s.GroupService.GetGroup(groupID, userID)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "group retrieved", http.StatusOK, group, nil)
	}
}

func (s *Server) handleUpdateGroup() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errors.ErrUnauthorized)
			return
		}

		groupID, apiErr := groupIDParam(c)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}

		var req models.UpdateGroupRequest
		if err := decode(c, &req); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}

		group, apiErr := s.GroupService.UpdateGroup(groupID, userID, &req)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "group updated", http.StatusOK, group, nil)
	}
}

func (s *Server) handleDeleteGroup() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errors.ErrUnauthorized)
			return
		}

		groupID, apiErr := groupIDParam(c)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}

		if apiErr := s.GroupService.DeleteGroup(groupID, userID); apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "group deleted", http.StatusOK, nil, nil)
	}
}

func (s *Server) handleAddParticipant() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errors.ErrUnauthorized)
			return
		}

		groupID, apiErr := groupIDParam(c)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}

		var req models.AddParticipantRequest
		if err := decode(c, &req); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}

		participantID, err := uuid.Parse(req.UserID)
		if err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, errors.New("invalid participant id", http.StatusBadRequest))
			return
		}

		role := models.GroupRole(req.Role)
		if req.Role == "" {
			role = models.RoleMember
		}
		if !role.Valid() {
			response.JSON(c, "", http.StatusBadRequest, nil, errors.New("invalid participant role", http.StatusBadRequest))
			return
		}

		group, apiErr := s.GroupService.AddParticipant(groupID, participantID, role, userID)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "participant added", http.StatusOK, group, nil)
	}
}

func (s *Server) handleRemoveParticipant() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errors.ErrUnauthorized)
			return
		}

		groupID, apiErr := groupIDParam(c)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}

		participantID, err := uuid.Parse(c.Param("userID"))
		if err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, errors.New("invalid participant id", http.StatusBadRequest))
			return
		}

		group, apiErr := s.GroupService.RemoveParticipant(groupID, participantID, userID)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "participant removed", http.StatusOK, group, nil)
	}
}
