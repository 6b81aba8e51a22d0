package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/nexchat-app/nexchat/models"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Soft-failure sentinels the service layer maps onto the API error taxonomy.
var (
	ErrAlreadyRead    = errors.New("message already read")
	ErrAlreadyDeleted = errors.New("message already deleted")
)

// MessageRepository is append-only: sender, target and content never change
// after SaveMessage; only the read and deleted flags are mutated, and no row
// is ever physically removed.
type MessageRepository interface {
	SaveMessage(message *models.Message) error
	FindMessageByID(id uuid.UUID) (*models.Message, error)
	MarkMessageRead(messageID, readerID uuid.UUID) (*models.Message, error)
	MarkConversationRead(conversationID string, readerID uuid.UUID) error
	SoftDeleteMessage(messageID, senderID uuid.UUID) (*models.Message, error)
	GetConversationMessages(conversationID string, page, limit int) ([]models.Message, int64, error)
	GetGroupMessages(groupID uuid.UUID, page, limit int) ([]models.Message, int64, error)
	GetLastConversationMessage(conversationID string) (*models.Message, error)
	UnreadCount(userID uuid.UUID) (int64, error)
	UnreadCountInConversation(conversationID string, readerID uuid.UUID) (int64, error)
	SearchMessages(userID uuid.UUID, query string, page, limit int) ([]models.Message, int64, error)
}

type messageRepo struct {
	DB *gorm.DB
}

func NewMessageRepo(db *GormDB) MessageRepository {
	return &messageRepo{db.DB}
}

func (r *messageRepo) SaveMessage(message *models.Message) error {
	if err := r.DB.Create(message).Error; err != nil {
		return errors.Wrap(err, "could not save message")
	}
	return nil
}

func (r *messageRepo) FindMessageByID(id uuid.UUID) (*models.Message, error) {
	var message models.Message
	if err := r.DB.Where("id = ?", id).First(&message).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// MarkMessageRead flips the read flag iff readerID is the receiver and the
// message is still unread. The conditional update keeps double-reads from
// overwriting the original read_at.
func (r *messageRepo) MarkMessageRead(messageID, readerID uuid.UUID) (*models.Message, error) {
	now := time.Now()
	result := r.DB.Model(&models.Message{}).
		Where("id = ? AND receiver_id = ? AND is_read = ? AND is_deleted = ?", messageID, readerID, false, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": &now,
		})
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "could not mark message read")
	}

	message, err := r.FindMessageByID(messageID)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		if message.ReceiverID == nil || *message.ReceiverID != readerID || message.IsDeleted {
			return nil, gorm.ErrRecordNotFound
		}
		return message, ErrAlreadyRead
	}
	return message, nil
}

func (r *messageRepo) MarkConversationRead(conversationID string, readerID uuid.UUID) error {
	now := time.Now()
	return r.DB.Model(&models.Message{}).
		Where("conversation_id = ? AND receiver_id = ? AND is_read = ?", conversationID, readerID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": &now,
		}).Error
}

func (r *messageRepo) SoftDeleteMessage(messageID, senderID uuid.UUID) (*models.Message, error) {
	now := time.Now()
	result := r.DB.Model(&models.Message{}).
		Where("id = ? AND sender_id = ? AND is_deleted = ?", messageID, senderID, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": &now,
		})
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "could not delete message")
	}

	message, err := r.FindMessageByID(messageID)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		if message.SenderID != senderID {
			return nil, gorm.ErrRecordNotFound
		}
		return message, ErrAlreadyDeleted
	}
	return message, nil
}

// GetConversationMessages pages newest-first over the full non-deleted set;
// the caller reverses the page for oldest-first display.
func (r *messageRepo) GetConversationMessages(conversationID string, page, limit int) ([]models.Message, int64, error) {
	query := r.DB.Model(&models.Message{}).
		Where("conversation_id = ? AND message_scope = ? AND is_deleted = ?",
			conversationID, models.ScopePrivate, false)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "could not count messages")
	}

	// Ciphertext stays loaded here: the read path authenticates and decrypts
	// each message before returning it.
	var messages []models.Message
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, 0, errors.Wrap(err, "could not load messages")
	}
	return messages, total, nil
}

func (r *messageRepo) GetGroupMessages(groupID uuid.UUID, page, limit int) ([]models.Message, int64, error) {
	query := r.DB.Model(&models.Message{}).
		Where("group_id = ? AND message_scope = ? AND is_deleted = ?",
			groupID, models.ScopeGroup, false)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "could not count group messages")
	}

	var messages []models.Message
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, 0, errors.Wrap(err, "could not load group messages")
	}
	return messages, total, nil
}

func (r *messageRepo) GetLastConversationMessage(conversationID string) (*models.Message, error) {
	var message models.Message
	err := r.DB.Omit("encrypted_content").
		Where("conversation_id = ? AND is_deleted = ?", conversationID, false).
		Order("created_at DESC").
		First(&message).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *messageRepo) UnreadCount(userID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB.Model(&models.Message{}).
		Where("receiver_id = ? AND message_scope = ? AND is_read = ? AND is_deleted = ?",
			userID, models.ScopePrivate, false, false).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "could not count unread messages")
	}
	return count, nil
}

func (r *messageRepo) UnreadCountInConversation(conversationID string, readerID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB.Model(&models.Message{}).
		Where("conversation_id = ? AND receiver_id = ? AND is_read = ? AND is_deleted = ?",
			conversationID, readerID, false, false).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "could not count unread messages")
	}
	return count, nil
}

// SearchMessages matches case-insensitively over the retained plaintext,
// private scope only, among messages the user sent or received.
func (r *messageRepo) SearchMessages(userID uuid.UUID, query string, page, limit int) ([]models.Message, int64, error) {
	q := r.DB.Model(&models.Message{}).
		Where("(sender_id = ? OR receiver_id = ?)", userID, userID).
		Where("message_scope = ? AND is_deleted = ?", models.ScopePrivate, false).
		Where("content ILIKE ?", "%"+query+"%")

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "could not count search results")
	}

	var messages []models.Message
	if err := q.Omit("encrypted_content").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, 0, errors.Wrap(err, "could not search messages")
	}
	return messages, total, nil
}
