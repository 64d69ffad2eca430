package services

import (
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"misterx/models"
)

type PlayerService struct {
	db *gorm.DB
}

func NewPlayerService(db *gorm.DB) *PlayerService {
	return &PlayerService{db: db}
}

type CreatePlayerRequest struct {
	Username  string `json:"username" binding:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password" binding:"required,min=8"`
	IsActive  *bool  `json:"is_active"`
	GroupIDs  []uint `json:"group_ids"`
}

type UpdatePlayerRequest struct {
	Username  *string `json:"username"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Password  *string `json:"password" binding:"omitempty,min=8"`
	IsActive  *bool   `json:"is_active"`
	GroupIDs  *[]uint `json:"group_ids"`
}

type PlayerFilter struct {
	Username  string `form:"username"`
	FirstName string `form:"first_name"`
	LastName  string `form:"last_name"`
	IsActive  *bool  `form:"is_active"`
}

func (f *PlayerFilter) apply(db *gorm.DB) *gorm.DB {
	if f == nil {
		return db
	}
	if f.Username != "" {
		db = db.Where("LOWER(username) LIKE ?", "%"+strings.ToLower(f.Username)+"%")
	}
	if f.FirstName != "" {
		db = db.Where("LOWER(first_name) LIKE ?", "%"+strings.ToLower(f.FirstName)+"%")
	}
	if f.LastName != "" {
		db = db.Where("LOWER(last_name) LIKE ?", "%"+strings.ToLower(f.LastName)+"%")
	}
	if f.IsActive != nil {
		db = db.Where("is_active = ?", *f.IsActive)
	}
	return db
}

func (s *PlayerService) CreatePlayer(req *CreatePlayerRequest) (*models.User, error) {
	if err := s.validateGroupConflicts(req.GroupIDs); err != nil {
		return nil, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Username:     req.Username,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
		IsActive:     true,
		Role:         models.RolePlayer,
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(&user).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(req.GroupIDs) > 0 {
		var groups []models.PlayerGroup
		if err := tx.Find(&groups, req.GroupIDs).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		if len(groups) != len(req.GroupIDs) {
			tx.Rollback()
			return nil, models.FieldErrors{"groups": "One or more selected groups do not exist"}
		}
		if err := tx.Model(&user).Association("Groups").Replace(groups); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return s.GetPlayerByID(user.ID)
}

func (s *PlayerService) GetPlayerByID(playerID uint) (*models.User, error) {
	var user models.User
	err := s.db.Preload("Groups").
		Where("role = ?", models.RolePlayer).
		First(&user, playerID).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *PlayerService) ListPlayers(filter *PlayerFilter) ([]models.User, error) {
	var users []models.User
	err := filter.apply(s.db).
		Where("role = ?", models.RolePlayer).
		Preload("Groups").
		Order("username").
		Find(&users).Error
	return users, err
}

func (s *PlayerService) UpdatePlayer(playerID uint, req *UpdatePlayerRequest) (*models.User, error) {
	user, err := s.GetPlayerByID(playerID)
	if err != nil {
		return nil, err
	}

	if req.GroupIDs != nil {
		if err := s.validateGroupConflicts(*req.GroupIDs); err != nil {
			return nil, err
		}
	}

	if req.Username != nil {
		user.Username = *req.Username
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if req.Password != nil {
		hash, err := HashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Save(user).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if req.GroupIDs != nil {
		var groups []models.PlayerGroup
		if len(*req.GroupIDs) > 0 {
			if err := tx.Find(&groups, *req.GroupIDs).Error; err != nil {
				tx.Rollback()
				return nil, err
			}
			if len(groups) != len(*req.GroupIDs) {
				tx.Rollback()
				return nil, models.FieldErrors{"groups": "One or more selected groups do not exist"}
			}
		}
		if err := tx.Model(user).Association("Groups").Replace(groups); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return s.GetPlayerByID(playerID)
}

// DeletePlayer removes the player but keeps their group's submissions; the
// submitter reference is cleared instead of cascading.
func (s *PlayerService) DeletePlayer(playerID uint) error {
	user, err := s.GetPlayerByID(playerID)
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
		tx.Model(&models.Submission{}).Where("submitter_id = ?", playerID).Update("submitter_id", nil).Error,
		tx.Model(user).Association("Groups").Clear(),
		tx.Delete(user).Error,
	}
	for _, err := range steps {
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit().Error
}

// validateGroupConflicts rejects membership sets whose groups compete
// against each other: two of the selected groups assigned to the same game
// would put the player on both sides.
func (s *PlayerService) validateGroupConflicts(groupIDs []uint) error {
	if len(groupIDs) < 2 {
		return nil
	}

	var gameIDs []uint
	err := s.db.Table("game_groups").
		Select("game_id").
		Where("player_group_id IN ?", groupIDs).
		Group("game_id").
		Having("COUNT(DISTINCT player_group_id) > 1").
		Scan(&gameIDs).Error
	if err != nil {
		return err
	}
	if len(gameIDs) == 0 {
		return nil
	}

	var games []models.Game
	if err := s.db.Find(&games, gameIDs).Error; err != nil {
		return err
	}
	names := make([]string, 0, len(games))
	for _, g := range games {
		names = append(names, g.Name)
	}
	sort.Strings(names)

	return models.FieldErrors{
		"groups": fmt.Sprintf("The selected groups conflict in these games: %s", strings.Join(names, ", ")),
	}
}
