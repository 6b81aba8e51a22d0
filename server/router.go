package server

import (
	"fmt"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) setupRouter() *gin.Engine {
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "test" {
		r := gin.New()
		s.defineRoutes(r)
		return r
	}

	r := gin.New()

	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	r.Use(gin.Recovery())

	allowedOrigin := s.Config.AccessControlAllowOrigin
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if allowedOrigin == "" || allowedOrigin == "*" {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = []string{allowedOrigin}
	}
	r.Use(cors.New(corsConfig))

	r.MaxMultipartMemory = 32 << 20
	s.defineRoutes(r)

	return r
}

func (s *Server) defineRoutes(router *gin.Engine) {
	limitAuth := s.limitRateForAuth()

	apirouter := router.Group("/api/v1")
	apirouter.POST("/auth/signup", limitAuth, s.handleSignup())
	apirouter.POST("/auth/login", limitAuth, s.handleLogin())
	apirouter.POST("/auth/refresh", limitAuth, s.handleRefreshToken())

	// Websocket handshake authenticates itself via the token query param.
	apirouter.GET("/ws", s.handleWebsocket())

	authorized := apirouter.Group("/")
	authorized.Use(s.Authorize())
	authorized.GET("/logout", s.handleLogout())
	authorized.GET("/me", s.handleShowProfile())
	authorized.GET("/users/online", s.handleGetOnlineUsers())

	authorized.POST("/messages", s.handleSendMessage())
	authorized.POST("/messages/group", s.handleSendGroupMessage())
	authorized.GET("/messages/conversations", s.handleGetConversations())
	authorized.GET("/messages/conversation/:userID", s.handleGetConversationMessages())
	authorized.GET("/messages/group/:groupID", s.handleGetGroupMessages())
	authorized.PUT("/messages/:messageID/read", s.handleMarkMessageRead())
	authorized.DELETE("/messages/:messageID", s.handleDeleteMessage())
	authorized.GET("/messages/unread/count", s.handleGetUnreadCount())
	authorized.GET("/messages/search", s.handleSearchMessages())

	authorized.POST("/groups", s.handleCreateGroup())
	authorized.GET("/groups", s.handleGetUserGroups())
	authorized.GET("/groups/:groupID", s.handleGetGroup())
	authorized.PUT("/groups/:groupID", s.handleUpdateGroup())
	authorized.DELETE("/groups/:groupID", s.handleDeleteGroup())
	authorized.POST("/groups/:groupID/participants", s.handleAddParticipant())
	authorized.DELETE("/groups/:groupID/participants/:userID", s.handleRemoveParticipant())

	authorized.POST("/media/upload", s.handleUploadMedia())
}
