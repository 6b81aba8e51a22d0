package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/nexchat-app/nexchat/models"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GroupRepository persists groups and participant rows. Default reads omit
// the encryption key.
type GroupRepository interface {
	CreateGroup(group *models.Group) error
	FindGroupByID(id uuid.UUID) (*models.Group, error)
	FindGroupWithKey(id uuid.UUID) (*models.Group, error)
	UpdateGroupFields(id uuid.UUID, fields map[string]interface{}) error
	SaveParticipant(p *models.GroupParticipant) error
	ListGroupsForUser(userID uuid.UUID) ([]models.Group, error)
	UpdateLastMessage(groupID uuid.UUID, messageID uuid.UUID, at time.Time) error
	SoftDeleteGroup(id uuid.UUID) error
}

type groupRepo struct {
	DB *gorm.DB
}

func NewGroupRepo(db *GormDB) GroupRepository {
	return &groupRepo{db.DB}
}

func (r *groupRepo) CreateGroup(group *models.Group) error {
	if err := r.DB.Create(group).Error; err != nil {
		return errors.Wrap(err, "could not create group")
	}
	return nil
}

func (r *groupRepo) FindGroupByID(id uuid.UUID) (*models.Group, error) {
	var group models.Group
	if err := r.DB.Omit("encryption_key").
		Preload("Participants").
		Where("id = ?", id).
		First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *groupRepo) FindGroupWithKey(id uuid.UUID) (*models.Group, error) {
	var group models.Group
	if err := r.DB.Preload("Participants").
		Where("id = ?", id).
		First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *groupRepo) UpdateGroupFields(id uuid.UUID, fields map[string]interface{}) error {
	// The encryption key is write-once; reject any attempt to touch it here.
	delete(fields, "encryption_key")
	return r.DB.Model(&models.Group{}).Where("id = ?", id).Updates(fields).Error
}

// SaveParticipant upserts on (group_id, user_id). The unique index makes
// concurrent duplicate adds collapse into a single active row.
func (r *groupRepo) SaveParticipant(p *models.GroupParticipant) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "is_active", "updated_at"}),
	}).Create(p).Error
	if err != nil {
		return errors.Wrap(err, "could not save participant")
	}
	return nil
}

func (r *groupRepo) ListGroupsForUser(userID uuid.UUID) ([]models.Group, error) {
	var groups []models.Group
	err := r.DB.Omit("encryption_key").
		Preload("Participants").
		Joins("LEFT JOIN group_participants gp ON gp.group_id = groups.id").
		Where("groups.is_active = ?", true).
		Where("groups.admin_id = ? OR (gp.user_id = ? AND gp.is_active = ?)", userID, userID, true).
		Group("groups.id").
		Order("groups.last_message_at DESC").
		Find(&groups).Error
	if err != nil {
		return nil, errors.Wrap(err, "could not list groups")
	}
	return groups, nil
}

func (r *groupRepo) UpdateLastMessage(groupID uuid.UUID, messageID uuid.UUID, at time.Time) error {
	return r.DB.Model(&models.Group{}).
		Where("id = ?", groupID).
		Updates(map[string]interface{}{
			"last_message_id": messageID,
			"last_message_at": at,
		}).Error
}

func (r *groupRepo) SoftDeleteGroup(id uuid.UUID) error {
	return r.DB.Model(&models.Group{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}
