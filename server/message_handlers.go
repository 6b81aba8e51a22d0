package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nexchat-app/nexchat/errors"
	"github.com/nexchat-app/nexchat/models"
	"github.com/nexchat-app/nexchat/server/response"
)

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	return page, limit
}

func (s *Server) handleSendMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errors.ErrUnauthorized)
			return
		}

		var req models.SendMessageRequest
		if err := decode(c, &req); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}

		message, apiErr := s.MessageService.SendPrivateMessage(userID, &req)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "message sent", http.StatusCreated, message, nil)
	}
}

func (s *Server) handleSendGroupMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errors.ErrUnauthorized)
			return
		}

		var req models.SendGroupMessageRequest
		if err := decode(c, &req); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}

		message, apiErr := s.MessageService.SendGroupMessage(userID, &req)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "group message sent", http.StatusCreated, message, nil)
	}
}

func (s *Server) handleGetConversations() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errors.ErrUnauthorized)
			return
		}

		page, limit := pageParams(c)
		conversations, pagination, apiErr := s.MessageService.GetConversations(userID, page, limit)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "conversations retrieved", http.StatusOK, gin.H{
			"conversations": conversations,
			"pagination":    pagination,
		}, nil)
	}
}

func (s *Server) handleGetConversationMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errors.ErrUnauthorized)
			return
		}

		otherUserID, err := uuid.Parse(c.Param("userID"))
		if err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, errors.New("invalid user id", http.StatusBadRequest))
			return
		}

		page, limit := pageParams(c)
		messages, pagination, apiErr := s.MessageService.GetConversationMessages(userID, otherUserID, page, limit)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "messages retrieved", http.StatusOK, gin.H{
			"messages":   messages,
			"pagination": pagination,
		}, nil)
	}
}

func (s *Server) handleGetGroupMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errors.ErrUnauthorized)
			return
		}

		groupID, err := uuid.Parse(c.Param("groupID"))
		if err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, errors.New("invalid group id", http.StatusBadRequest))
			return
		}

		page, limit := pageParams(c)
		messages, pagination, apiErr := s.MessageService.GetGroupMessages(userID, groupID, page, limit)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "group messages retrieved", http.StatusOK, gin.H{
			"messages":   messages,
			"pagination": pagination,
		}, nil)
	}
}

func (s *Server) handleMarkMessageRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errors.ErrUnauthorized)
			return
		}

		messageID, err := uuid.Parse(c.Param("messageID"))
		if err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, errors.New("invalid message id", http.StatusBadRequest))
			return
		}

		message, apiErr := s.MessageService.MarkMessageAsRead(userID, messageID)
		if apiErr == errors.ErrAlreadyProcessed {
			response.JSON(c, "message already read", http.StatusOK, message, nil)
			return
		}
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "message marked as read", http.StatusOK, message, nil)
	}
}

func (s *Server) handleDeleteMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errors.ErrUnauthorized)
			return
		}

		messageID, err := uuid.Parse(c.Param("messageID"))
		if err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, errors.New("invalid message id", http.StatusBadRequest))
			return
		}

		message, apiErr := s.MessageService.DeleteMessage(userID, messageID)
		if apiErr == errors.ErrAlreadyProcessed {
			response.JSON(c, "message already deleted", http.StatusOK, message, nil)
			return
		}
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "message deleted", http.StatusOK, message, nil)
	}
}

func (s *Server) handleGetUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errors.ErrUnauthorized)
			return
		}

		count, apiErr := s.MessageService.GetUnreadCount(userID)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "unread count retrieved", http.StatusOK, gin.H{"unread_count": count}, nil)
	}
}

func (s *Server) handleSearchMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errors.ErrUnauthorized)
			return
		}

		query := strings.TrimSpace(c.Query("q"))
		if query == "" {
			response.JSON(c, "", http.StatusBadRequest, nil, errors.New("search query is required", http.StatusBadRequest))
			return
		}

		page, limit := pageParams(c)
		messages, pagination, apiErr := s.MessageService.SearchMessages(userID, query, page, limit)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "search results retrieved", http.StatusOK, gin.H{
			"messages":   messages,
			"pagination": pagination,
		}, nil)
	}
}
