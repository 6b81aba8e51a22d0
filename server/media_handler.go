package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexchat-app/nexchat/errors"
	"github.com/nexchat-app/nexchat/server/response"
)

func (s *Server) handleUploadMedia() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			response.JSON(c, "", http.StatusUnauthorized, nil, errors.ErrUnauthorized)
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, errors.New("file is required", http.StatusBadRequest))
			return
		}

		result, apiErr := s.MediaService.UploadAttachment(userID, fileHeader)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "file uploaded", http.StatusCreated, result, nil)
	}
}
