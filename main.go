package main

import (
	"log"

	"github.com/nexchat-app/nexchat/config"
	"github.com/nexchat-app/nexchat/db"
	"github.com/nexchat-app/nexchat/server"
	"github.com/nexchat-app/nexchat/services"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	gormDB := db.GetDB(conf)
	authRepo := db.NewAuthRepo(gormDB)
	conversationRepo := db.NewConversationRepo(gormDB)
	groupRepo := db.NewGroupRepo(gormDB)
	messageRepo := db.NewMessageRepo(gormDB)

	authService := services.NewAuthService(authRepo, conf)
	groupService := services.NewGroupService(groupRepo, authRepo, conf)
	mediaService := services.NewMediaService(conf)

	// The socket hub and the message service reference each other: sends
	// fan out through the hub, socket events call back into the service.
	socketService := services.NewSocketService(authRepo, conf)
	messageService := services.NewMessageService(messageRepo, conversationRepo, groupRepo, authRepo, socketService, conf)
	socketService.BindMessageService(messageService)

	s := &server.Server{
		Config:         conf,
		AuthRepository: authRepo,
		AuthService:    authService,
		MessageService: messageService,
		GroupService:   groupService,
		MediaService:   mediaService,
		SocketService:  socketService,
		DB:             *gormDB,
	}

	s.Start()
}
