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

// UnreadablePlaceholder replaces the body of a message whose ciphertext no
// longer authenticates. One corrupt message must not fail a page fetch.
const UnreadablePlaceholder = "[unreadable message]"

// Notifier is the live-delivery side of the session router. Delivery is
// best-effort and at-most-once: an offline recipient is a silent no-op, and
// durability comes from the message store alone.
type Notifier interface {
	SendToUser(userID uuid.UUID, event string, payload interface{})
	SendToGroup(participantIDs []uuid.UUID, excludeUserID uuid.UUID, event string, payload interface{})
}

// MessageService orchestrates the send and read paths: membership checks,
// encryption on write, decryption on read, persistence and live fan-out.
type MessageService interface {
	SendPrivateMessage(senderID uuid.UUID, req *models.SendMessageRequest) (*models.Message, *apiError.Error)
	SendGroupMessage(senderID uuid.UUID, req *models.SendGroupMessageRequest) (*models.Message, *apiError.Error)
	GetConversationMessages(userID, otherUserID uuid.UUID, page, limit int) ([]models.Message, *models.Pagination, *apiError.Error)
	GetGroupMessages(userID, groupID uuid.UUID, page, limit int) ([]models.Message, *models.Pagination, *apiError.Error)
	GetConversations(userID uuid.UUID, page, limit int) ([]models.ConversationSummary, *models.Pagination, *apiError.Error)
	MarkMessageAsRead(userID, messageID uuid.UUID) (*models.Message, *apiError.Error)
	DeleteMessage(userID, messageID uuid.UUID) (*models.Message, *apiError.Error)
	GetUnreadCount(userID uuid.UUID) (int64, *apiError.Error)
	SearchMessages(userID uuid.UUID, query string, page, limit int) ([]models.Message, *models.Pagination, *apiError.Error)
}

type messageService struct {
	Config           *config.Config
	messageRepo      db.MessageRepository
	conversationRepo db.ConversationRepository
	groupRepo        db.GroupRepository
	authRepo         db.AuthRepository
	notifier         Notifier
}

func NewMessageService(
	messageRepo db.MessageRepository,
	conversationRepo db.ConversationRepository,
	groupRepo db.GroupRepository,
	authRepo db.AuthRepository,
	notifier Notifier,
	conf *config.Config,
) MessageService {
	return &messageService{
		Config:           conf,
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		groupRepo:        groupRepo,
		authRepo:         authRepo,
		notifier:         notifier,
	}
}

const (
	defaultPage  = 1
	defaultLimit = 50
	maxLimit     = 100
)

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

// SendPrivateMessage walks the send state machine: validate receiver,
// resolve the conversation and its key, encrypt, persist, update the
// last-message pointer, then fan out. A stale pointer after a persisted
// message is a tolerated degraded state, not a failure.
func (s *messageService) SendPrivateMessage(senderID uuid.UUID, req *models.SendMessageRequest) (*models.Message, *apiError.Error) {
	receiverID, err := uuid.Parse(req.Receiver)
	if err != nil {
		return nil, apiError.New("invalid receiver id", http.StatusBadRequest)
	}
	receiver, err := s.authRepo.FindUserByID(receiverID)
	if err != nil {
		return nil, apiError.New("receiver not found", http.StatusNotFound)
	}

	conversation, err := s.conversationRepo.GetOrCreate(senderID, receiverID)
	if err != nil {
		log.Printf("SendPrivateMessage get-or-create error: %v", err)
		return nil, apiError.ErrInternalServerError
	}

	messageType, apiErr := resolveMessageType(req.MessageType)
	if apiErr != nil {
		return nil, apiErr
	}

	encryptedContent, err := encrypt.Encrypt(req.Content, conversation.EncryptionKey)
	if err != nil {
		log.Printf("SendPrivateMessage encryption error: %v", err)
		return nil, apiError.ErrInternalServerError
	}

	message := &models.Message{
		SenderID:         senderID,
		ReceiverID:       &receiver.ID,
		MessageScope:     models.ScopePrivate,
		Content:          req.Content,
		EncryptedContent: encryptedContent,
		MessageType:      messageType,
		MediaURL:         req.MediaURL,
		ReplyToID:        parseOptionalID(req.ReplyTo),
		ConversationID:   conversation.ConversationID,
	}
	if err := s.messageRepo.SaveMessage(message); err != nil {
		log.Printf("SendPrivateMessage save error: %v", err)
		return nil, apiError.ErrInternalServerError
	}

	if err := s.conversationRepo.UpdateLastMessage(conversation.ConversationID, message.ID, time.Now()); err != nil {
		log.Printf("SendPrivateMessage: stale last-message pointer for %s: %v", conversation.ConversationID, err)
	}

	s.attachUsers(message)
	response := sanitize(message)
	s.notifier.SendToUser(receiverID, EventMessage, response)
	return response, nil
}

// SendGroupMessage requires active membership before anything else touches
// storage.
func (s *messageService) SendGroupMessage(senderID uuid.UUID, req *models.SendGroupMessageRequest) (*models.Message, *apiError.Error) {
	groupID, err := uuid.Parse(req.GroupID)
	if err != nil {
		return nil, apiError.New("invalid group id", http.StatusBadRequest)
	}

	group, err := s.groupRepo.FindGroupWithKey(groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.New("group not found", http.StatusNotFound)
		}
		log.Printf("SendGroupMessage load error: %v", err)
		return nil, apiError.ErrInternalServerError
	}
	if !group.IsActive {
		return nil, apiError.New("group not found", http.StatusNotFound)
	}
	if !group.IsParticipant(senderID) {
		return nil, apiError.New("you are not a member of this group", http.StatusUnauthorized)
	}

	messageType, apiErr := resolveMessageType(req.MessageType)
	if apiErr != nil {
		return nil, apiErr
	}

	encryptedContent, err := encrypt.Encrypt(req.Content, group.EncryptionKey)
	if err != nil {
		log.Printf("SendGroupMessage encryption error: %v", err)
		return nil, apiError.ErrInternalServerError
	}

	message := &models.Message{
		SenderID:         senderID,
		GroupID:          &group.ID,
		MessageScope:     models.ScopeGroup,
		Content:          req.Content,
		EncryptedContent: encryptedContent,
		MessageType:      messageType,
		MediaURL:         req.MediaURL,
		ReplyToID:        parseOptionalID(req.ReplyTo),
	}
	if err := s.messageRepo.SaveMessage(message); err != nil {
		log.Printf("SendGroupMessage save error: %v", err)
		return nil, apiError.ErrInternalServerError
	}

	if err := s.groupRepo.UpdateLastMessage(group.ID, message.ID, time.Now()); err != nil {
		log.Printf("SendGroupMessage: stale last-message pointer for group %s: %v", group.ID, err)
	}

	s.attachUsers(message)
	response := sanitize(message)
	s.notifier.SendToGroup(group.ActiveParticipantIDs(), senderID, EventGroupMessage, response)
	return response, nil
}

// GetConversationMessages returns one oldest-first page and, as a side
// effect, marks messages addressed to userID as read.
func (s *messageService) GetConversationMessages(userID, otherUserID uuid.UUID, page, limit int) ([]models.Message, *models.Pagination, *apiError.Error) {
	page, limit = normalizePage(page, limit)
	conversationID := models.CanonicalConversationID(userID, otherUserID)

	messages, total, err := s.messageRepo.GetConversationMessages(conversationID, page, limit)
	if err != nil {
		log.Printf("GetConversationMessages error: %v", err)
		return nil, nil, apiError.ErrInternalServerError
	}

	key := s.conversationKey(conversationID)
	s.decryptPage(messages, key)

	if err := s.messageRepo.MarkConversationRead(conversationID, userID); err != nil {
		log.Printf("GetConversationMessages mark-read error: %v", err)
	}

	reversePage(messages)
	s.attachUsersBatch(messages)
	return messages, models.NewPagination(page, limit, total), nil
}

func (s *messageService) GetGroupMessages(userID, groupID uuid.UUID, page, limit int) ([]models.Message, *models.Pagination, *apiError.Error) {
	page, limit = normalizePage(page, limit)

	group, err := s.groupRepo.FindGroupWithKey(groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apiError.New("group not found", http.StatusNotFound)
		}
		log.Printf("GetGroupMessages load error: %v", err)
		return nil, nil, apiError.ErrInternalServerError
	}
	if !group.IsActive {
		return nil, nil, apiError.New("group not found", http.StatusNotFound)
	}
	if !group.IsParticipant(userID) {
		return nil, nil, apiError.New("you are not a member of this group", http.StatusUnauthorized)
	}

	messages, total, err := s.messageRepo.GetGroupMessages(groupID, page, limit)
	if err != nil {
		log.Printf("GetGroupMessages error: %v", err)
		return nil, nil, apiError.ErrInternalServerError
	}

	s.decryptPage(messages, group.EncryptionKey)
	reversePage(messages)
	s.attachUsersBatch(messages)
	return messages, models.NewPagination(page, limit, total), nil
}

// GetConversations lists the user's private threads newest-activity-first
// with last message and unread count per partner.
func (s *messageService) GetConversations(userID uuid.UUID, page, limit int) ([]models.ConversationSummary, *models.Pagination, *apiError.Error) {
	page, limit = normalizePage(page, limit)

	conversations, total, err := s.conversationRepo.ListForUser(userID, page, limit)
	if err != nil {
		log.Printf("GetConversations error: %v", err)
		return nil, nil, apiError.ErrInternalServerError
	}

	summaries := make([]models.ConversationSummary, 0, len(conversations))
	var partnerIDs []uuid.UUID
	for _, c := range conversations {
		partnerIDs = append(partnerIDs, c.OtherParticipant(userID))
	}
	partners := s.userDirectory(partnerIDs)

	for _, c := range conversations {
		otherID := c.OtherParticipant(userID)
		summary := models.ConversationSummary{
			ConversationID: c.ConversationID,
			OtherUser:      partners[otherID],
			LastMessageAt:  c.LastMessageAt,
		}
		if last, err := s.messageRepo.GetLastConversationMessage(c.ConversationID); err == nil {
			summary.LastMessage = sanitize(last)
		}
		if unread, err := s.messageRepo.UnreadCountInConversation(c.ConversationID, userID); err == nil {
			summary.UnreadCount = unread
		}
		summaries = append(summaries, summary)
	}
	return summaries, models.NewPagination(page, limit, total), nil
}

// MarkMessageAsRead is idempotent: the second call reports AlreadyProcessed
// and leaves the original read_at untouched.
func (s *messageService) MarkMessageAsRead(userID, messageID uuid.UUID) (*models.Message, *apiError.Error) {
	message, err := s.messageRepo.MarkMessageRead(messageID, userID)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrAlreadyRead):
			return sanitize(message), apiError.ErrAlreadyProcessed
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, apiError.New("message not found or already read", http.StatusNotFound)
		default:
			log.Printf("MarkMessageAsRead error: %v", err)
			return nil, apiError.ErrInternalServerError
		}
	}

	response := sanitize(message)
	s.notifier.SendToUser(message.SenderID, EventMessageRead, map[string]interface{}{
		"message_id": message.ID,
		"read_at":    message.ReadAt,
	})
	return response, nil
}

// DeleteMessage soft-deletes; only the sender may delete, and only once.
func (s *messageService) DeleteMessage(userID, messageID uuid.UUID) (*models.Message, *apiError.Error) {
	message, err := s.messageRepo.SoftDeleteMessage(messageID, userID)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrAlreadyDeleted):
			return sanitize(message), apiError.ErrAlreadyProcessed
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, apiError.New("message not found or you don't have permission to delete it", http.StatusNotFound)
		default:
			log.Printf("DeleteMessage error: %v", err)
			return nil, apiError.ErrInternalServerError
		}
	}
	return sanitize(message), nil
}

func (s *messageService) GetUnreadCount(userID uuid.UUID) (int64, *apiError.Error) {
	count, err := s.messageRepo.UnreadCount(userID)
	if err != nil {
		log.Printf("GetUnreadCount error: %v", err)
		return 0, apiError.ErrInternalServerError
	}
	return count, nil
}

func (s *messageService) SearchMessages(userID uuid.UUID, query string, page, limit int) ([]models.Message, *models.Pagination, *apiError.Error) {
	if query == "" {
		return nil, nil, apiError.New("search query is required", http.StatusBadRequest)
	}
	page, limit = normalizePage(page, limit)

	messages, total, err := s.messageRepo.SearchMessages(userID, query, page, limit)
	if err != nil {
		log.Printf("SearchMessages error: %v", err)
		return nil, nil, apiError.ErrInternalServerError
	}
	s.attachUsersBatch(messages)
	return messages, models.NewPagination(page, limit, total), nil
}

// decryptPage authenticates each stored ciphertext against the thread key.
// A message that fails verification degrades to a placeholder instead of
// failing the fetch.
func (s *messageService) decryptPage(messages []models.Message, key string) {
	for i := range messages {
		if messages[i].EncryptedContent == "" {
			continue
		}
		if key == "" {
			messages[i].Content = UnreadablePlaceholder
			messages[i].EncryptedContent = ""
			continue
		}
		plaintext, err := encrypt.Decrypt(messages[i].EncryptedContent, key)
		if err != nil {
			log.Printf("decryptPage: message %s unreadable: %v", messages[i].ID, err)
			messages[i].Content = UnreadablePlaceholder
		} else {
			messages[i].Content = plaintext
		}
		messages[i].EncryptedContent = ""
	}
}

func (s *messageService) conversationKey(conversationID string) string {
	conversation, err := s.conversationRepo.GetWithKey(conversationID)
	if err != nil {
		return ""
	}
	return conversation.EncryptionKey
}

// userDirectory batches a display-data lookup; the core stays free of
// directory schema beyond identity and display fields.
func (s *messageService) userDirectory(ids []uuid.UUID) map[uuid.UUID]models.UserResponse {
	out := make(map[uuid.UUID]models.UserResponse, len(ids))
	users, err := s.authRepo.FindUsersByIDs(ids)
	if err != nil {
		log.Printf("userDirectory error: %v", err)
		return out
	}
	for _, u := range users {
		out[u.ID] = u.Response()
	}
	return out
}

func (s *messageService) attachUsers(message *models.Message) {
	ids := []uuid.UUID{message.SenderID}
	if message.ReceiverID != nil {
		ids = append(ids, *message.ReceiverID)
	}
	directory := s.userDirectory(ids)
	if sender, ok := directory[message.SenderID]; ok {
		message.Sender = &sender
	}
	if message.ReceiverID != nil {
		if receiver, ok := directory[*message.ReceiverID]; ok {
			message.Receiver = &receiver
		}
	}
}

func (s *messageService) attachUsersBatch(messages []models.Message) {
	idSet := make(map[uuid.UUID]bool)
	for _, m := range messages {
		idSet[m.SenderID] = true
		if m.ReceiverID != nil {
			idSet[*m.ReceiverID] = true
		}
	}
	ids := make([]uuid.UUID, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	directory := s.userDirectory(ids)
	for i := range messages {
		if sender, ok := directory[messages[i].SenderID]; ok {
			messages[i].Sender = &sender
		}
		if messages[i].ReceiverID != nil {
			if receiver, ok := directory[*messages[i].ReceiverID]; ok {
				messages[i].Receiver = &receiver
			}
		}
	}
}

func resolveMessageType(raw string) (models.MessageType, *apiError.Error) {
	if raw == "" {
		return models.TypeText, nil
	}
	messageType := models.MessageType(raw)
	if !messageType.Valid() {
		return "", apiError.New("invalid message type", http.StatusBadRequest)
	}
	return messageType, nil
}

func parseOptionalID(raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

// sanitize strips the ciphertext from an API-bound copy of the message.
func sanitize(message *models.Message) *models.Message {
	if message == nil {
		return nil
	}
	clean := *message
	clean.EncryptedContent = ""
	return &clean
}

func reversePage(messages []models.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
