package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexchat-app/nexchat/errors"
	"github.com/nexchat-app/nexchat/models"
	"github.com/nexchat-app/nexchat/server/response"
)

// decode binds the JSON body and runs struct validation/conformance.
func decode(c *gin.Context, v interface{}) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return err
	}
	if errs := models.ValidateStruct(v, nil); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (s *Server) handleSignup() gin.HandlerFunc {
	return func(c *gin.Context) {
		var user models.User
		if err := decode(c, &user); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}

		createdUser, err := s.AuthService.SignupUser(&user)
		if err != nil {
			if apiErr, ok := err.(*errors.Error); ok {
				response.JSON(c, "", apiErr.Status, nil, apiErr)
				return
			}
			response.JSON(c, "", http.StatusInternalServerError, nil, err)
			return
		}

		response.JSON(c, "signup successful", http.StatusCreated, createdUser.Response(), nil)
	}
}

func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var loginRequest models.LoginRequest
		if err := decode(c, &loginRequest); err != nil {
			response.JSON(c, "", errors.ErrBadRequest.Status, nil, err)
			return
		}

		userResponse, err := s.AuthService.LoginUser(&loginRequest)
		if err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		response.JSON(c, "login successful", http.StatusOK, userResponse, nil)
	}
}

func (s *Server) handleRefreshToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var refreshRequest models.RefreshRequest
		if err := decode(c, &refreshRequest); err != nil {
			response.JSON(c, "", errors.ErrBadRequest.Status, nil, err)
			return
		}

		loginResponse, err := s.AuthService.RefreshToken(refreshRequest.RefreshToken)
		if err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		response.JSON(c, "token refreshed", http.StatusOK, loginResponse, nil)
	}
}

func (s *Server) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		accessToken, exists := c.Get("access_token")
		if !exists {
			response.JSON(c, "", http.StatusUnauthorized, nil, errors.ErrUnauthorized)
			return
		}

		if err := s.AuthService.Logout(accessToken.(string)); err != nil {
			response.JSON(c, "", http.StatusInternalServerError, nil, err)
			return
		}
		response.JSON(c, "logout successful", http.StatusOK, nil, nil)
	}
}

func (s *Server) handleShowProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get("user")
		if !exists {
			response.JSON(c, "", http.StatusUnauthorized, nil, errors.ErrUnauthorized)
			return
		}
		user, ok := value.(*models.User)
		if !ok {
			response.JSON(c, "", http.StatusInternalServerError, nil, errors.ErrInternalServerError)
			return
		}
		response.JSON(c, "profile retrieved", http.StatusOK, user.Response(), nil)
	}
}

func (s *Server) handleGetOnlineUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		onlineIDs := s.SocketService.OnlineUsers()
		users, err := s.AuthRepository.FindUsersByIDs(onlineIDs)
		if err != nil {
			response.JSON(c, "", http.StatusInternalServerError, nil, fmt.Errorf("unable to load online users"))
			return
		}

		results := make([]models.UserResponse, 0, len(users))
		for i := range users {
			results = append(results, users[i].Response())
		}
		response.JSON(c, "online users retrieved", http.StatusOK, results, nil)
	}
}
