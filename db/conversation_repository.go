package db

import (
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nexchat-app/nexchat/models"
	"github.com/nexchat-app/nexchat/services/encrypt"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ConversationRepository owns the directory of private two-party threads.
// Default reads omit the encryption key; only GetWithKey loads it.
type ConversationRepository interface {
	GetOrCreate(userA, userB uuid.UUID) (*models.Conversation, error)
	FindByParticipants(userA, userB uuid.UUID) (*models.Conversation, error)
	GetWithKey(conversationID string) (*models.Conversation, error)
	UpdateLastMessage(conversationID string, messageID uuid.UUID, at time.Time) error
	ListForUser(userID uuid.UUID, page, limit int) ([]models.Conversation, int64, error)
}

type conversationRepo struct {
	DB *gorm.DB
}

func NewConversationRepo(db *GormDB) ConversationRepository {
	return &conversationRepo{db.DB}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}

// GetOrCreate resolves the canonical record for the pair, creating it with a
// fresh key on first contact. The unique index on conversation_id settles
// concurrent first-contact races: the loser of the insert refetches the
// winner's record. A found record without a key is historical corruption;
// it is repaired in place and logged as such, distinct from creation.
func (r *conversationRepo) GetOrCreate(userA, userB uuid.UUID) (*models.Conversation, error) {
	conversationID := models.CanonicalConversationID(userA, userB)

	var conversation models.Conversation
	err := r.DB.Where("conversation_id = ?", conversationID).First(&conversation).Error
	if err == nil {
		if conversation.EncryptionKey == "" {
			return r.repairMissingKey(&conversation)
		}
		return &conversation, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "could not load conversation")
	}

	key, err := encrypt.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "could not generate conversation key")
	}

	first, second := models.SortedPair(userA, userB)
	conversation = models.Conversation{
		ConversationID: conversationID,
		UserAID:        first,
		UserBID:        second,
		EncryptionKey:  key,
		LastMessageAt:  time.Now(),
		IsActive:       true,
	}
	if err := r.DB.Create(&conversation).Error; err != nil {
		if isUniqueViolation(err) {
			// Lost the creation race; the pair's record exists now.
			var existing models.Conversation
			if ferr := r.DB.Where("conversation_id = ?", conversationID).First(&existing).Error; ferr != nil {
				return nil, errors.Wrap(ferr, "could not refetch conversation after conflict")
			}
			return &existing, nil
		}
		return nil, errors.Wrap(err, "could not create conversation")
	}
	return &conversation, nil
}

func (r *conversationRepo) repairMissingKey(conversation *models.Conversation) (*models.Conversation, error) {
	log.Printf("REPAIR: conversation %s has no encryption key, backfilling", conversation.ConversationID)
	key, err := encrypt.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "could not generate repair key")
	}
	if err := r.DB.Model(conversation).
		Where("encryption_key = ?", "").
		Update("encryption_key", key).Error; err != nil {
		return nil, errors.Wrap(err, "could not backfill conversation key")
	}
	conversation.EncryptionKey = key
	return conversation, nil
}

func (r *conversationRepo) FindByParticipants(userA, userB uuid.UUID) (*models.Conversation, error) {
	conversationID := models.CanonicalConversationID(userA, userB)
	var conversation models.Conversation
	if err := r.DB.Omit("encryption_key").
		Where("conversation_id = ?", conversationID).
		First(&conversation).Error; err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (r *conversationRepo) GetWithKey(conversationID string) (*models.Conversation, error) {
	var conversation models.Conversation
	if err := r.DB.Where("conversation_id = ?", conversationID).First(&conversation).Error; err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (r *conversationRepo) UpdateLastMessage(conversationID string, messageID uuid.UUID, at time.Time) error {
	return r.DB.Model(&models.Conversation{}).
		Where("conversation_id = ?", conversationID).
		Updates(map[string]interface{}{
			"last_message_id": messageID,
			"last_message_at": at,
		}).Error
}

func (r *conversationRepo) ListForUser(userID uuid.UUID, page, limit int) ([]models.Conversation, int64, error) {
	query := r.DB.Model(&models.Conversation{}).
		Where("(user_a_id = ? OR user_b_id = ?) AND is_active = ?", userID, userID, true)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "could not count conversations")
	}

	var conversations []models.Conversation
	if err := query.Omit("encryption_key").
		Order("last_message_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&conversations).Error; err != nil {
		return nil, 0, errors.Wrap(err, "could not list conversations")
	}
	return conversations, total, nil
}
