package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexchat-app/nexchat/config"
	"github.com/nexchat-app/nexchat/db"
	"github.com/nexchat-app/nexchat/services"
)

type Server struct {
	Config         *config.Config
	AuthRepository db.AuthRepository
	AuthService    services.AuthService
	MessageService services.MessageService
	GroupService   services.GroupService
	MediaService   services.MediaService
	SocketService  *services.SocketService
	DB             db.GormDB
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests.
// Live websocket connections are closed by the listener shutdown; clients
// reconnect and re-handshake.
func (s *Server) Start() {
	port := s.Config.Port
	if port == 0 {
		port = 8080
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.setupRouter(),
	}

	go func() {
		log.Printf("listening on :%d", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("server exited")
}
