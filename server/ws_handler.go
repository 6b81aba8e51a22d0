package server

import (
	"github.com/gin-gonic/gin"
)

func (s *Server) handleWebsocket() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.SocketService.HandleConnection(c.Writer, c.Request)
	}
}
