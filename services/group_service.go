package services

import (
	"log"
	"strings"

	"gorm.io/gorm"

	"misterx/models"
	"misterx/storage"
)

type GroupService struct {
	db      *gorm.DB
	storage *storage.Storage
}

func NewGroupService(db *gorm.DB, storage *storage.Storage) *GroupService {
	return &GroupService{db: db, storage: storage}
}

type CreateGroupRequest struct {
	Name string `json:"name" binding:"required"`
}

type UpdateGroupRequest struct {
	Name *string `json:"name"`
}

type GroupFilter struct {
	Name string `form:"name"`
}

func (f *GroupFilter) apply(db *gorm.DB) *gorm.DB {
	if f == nil {
		return db
	}
	if f.Name != "" {
		db = db.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(f.Name)+"%")
	}
	return db
}

func (s *GroupService) CreateGroup(req *CreateGroupRequest) (*models.PlayerGroup, error) {
	group := models.PlayerGroup{Name: req.Name}
	if err := s.db.Create(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *GroupService) GetGroupByID(groupID uint) (*models.PlayerGroup, error) {
	var group models.PlayerGroup
	err := s.db.Preload("Members").Preload("Games").First(&group, groupID).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *GroupService) ListGroups(filter *GroupFilter) ([]models.PlayerGroup, error) {
	var groups []models.PlayerGroup
	err := filter.apply(s.db).Order("name").Find(&groups).Error
	return groups, err
}

func (s *GroupService) UpdateGroup(groupID uint, req *UpdateGroupRequest) (*models.PlayerGroup, error) {
	var group models.PlayerGroup
	if err := s.db.First(&group, groupID).Error; err != nil {
		return nil, err
	}
	if req.Name != nil {
		group.Name = *req.Name
	}
	if err := s.db.Save(&group).Error; err != nil {
		return nil, err
	}
	return s.GetGroupByID(groupID)
}

// DeleteGroup removes the group, its memberships and game assignments, and
// every submission the group made.
func (s *GroupService) DeleteGroup(groupID uint) error {
	var group models.PlayerGroup
	if err := s.db.First(&group, groupID).Error; err != nil {
		return err
	}

	var uploads []models.Upload
	err := s.db.Joins("JOIN submissions ON submissions.id = uploads.submission_id").
		Where("submissions.group_id = ?", groupID).
		Find(&uploads).Error
	if err != nil {
		return err
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	steps := []error{
		tx.Where("submission_id IN (SELECT id FROM submissions WHERE group_id = ?)", groupID).Delete(&models.Upload{}).Error,
		tx.Where("group_id = ?", groupID).Delete(&models.Submission{}).Error,
		tx.Model(&group).Association("Members").Clear(),
		tx.Model(&group).Association("Games").Clear(),
		tx.Delete(&group).Error,
	}
	for _, err := range steps {
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return err
	}

	for _, u := range uploads {
		if err := s.storage.Remove(u.Path); err != nil {
			log.Printf("Failed to remove proof file %s: %v", u.Path, err)
		}
	}
	return nil
}
