package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"misterx/models"
	"misterx/storage"
)

const (
	activeGameKey      = "misterx:active-game"
	scoreboardCacheTTL = 30 * time.Second
)

func scoreboardKey(gameID uint) string {
	return fmt.Sprintf("misterx:scoreboard:%d", gameID)
}

type GameService struct {
	db      *gorm.DB
	redis   *redis.Client
	storage *storage.Storage
}

func NewGameService(db *gorm.DB, redis *redis.Client, storage *storage.Storage) *GameService {
	return &GameService{
		db:      db,
		redis:   redis,
		storage: storage,
	}
}

type CreateGameRequest struct {
	Name   string     `json:"name"`
	Date   *time.Time `json:"date"`
	Active bool       `json:"active"`
}

type UpdateGameRequest struct {
	Name   *string    `json:"name"`
	Date   *time.Time `json:"date"`
	Active *bool      `json:"active"`

	// GroupIDs replaces the assigned groups; TaskIDs replaces the attached
	// tasks and sets their order. Nil leaves the association untouched.
	GroupIDs *[]uint `json:"group_ids"`
	TaskIDs  *[]uint `json:"task_ids"`
}

type GameFilter struct {
	Name       string     `form:"name"`
	Date       *time.Time `form:"date" time_format:"2006-01-02"`
	DateAfter  *time.Time `form:"date_after" time_format:"2006-01-02"`
	DateBefore *time.Time `form:"date_before" time_format:"2006-01-02"`
	Active     *bool      `form:"active"`
}

func (f *GameFilter) apply(db *gorm.DB) *gorm.DB {
	if f == nil {
		return db
	}
	if f.Name != "" {
		db = db.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(f.Name)+"%")
	}
	if f.Date != nil {
		db = db.Where("date = ?", *f.Date)
	}
	if f.DateAfter != nil {
		db = db.Where("date >= ?", *f.DateAfter)
	}
	if f.DateBefore != nil {
		db = db.Where("date <= ?", *f.DateBefore)
	}
	if f.Active != nil {
		db = db.Where("active = ?", *f.Active)
	}
	return db
}

// CreateGame persists a new game. Tasks and groups cannot be assigned at
// creation time; they are attached through UpdateGame once the game exists.
func (s *GameService) CreateGame(req *CreateGameRequest) (*models.Game, error) {
	game := models.Game{
		Name:   req.Name,
		Active: req.Active,
	}
	if req.Date != nil {
		game.Date = *req.Date
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if game.Active {
		if err := checkNoOtherActive(tx, 0); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Create(&game).Error; err != nil {
		tx.Rollback()
		return nil, activeConflict(err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, activeConflict(err)
	}

	s.invalidateActiveGame()
	return s.GetGameByID(game.ID)
}

func (s *GameService) GetGameByID(gameID uint) (*models.Game, error) {
	var game models.Game
	err := s.db.
		Preload("Groups").
		Preload("Tasks", func(db *gorm.DB) *gorm.DB {
			return db.Order("ordered_tasks.task_number")
		}).
		Preload("Tasks.Task").
		First(&game, gameID).Error
	if err != nil {
		return nil, err
	}
	return &game, nil
}

func (s *GameService) ListGames(filter *GameFilter) ([]models.Game, error) {
	var games []models.Game
	err := filter.apply(s.db).
		Preload("Groups").
		Order("date DESC").
		Find(&games).Error
	return games, err
}

// UpdateGame applies field changes and association replacements in one
// transaction. The group-overlap rule runs only here, never on creation,
// since a fresh game cannot have groups yet.
func (s *GameService) UpdateGame(gameID uint, req *UpdateGameRequest) (*models.Game, error) {
	var game models.Game
	if err := s.db.First(&game, gameID).Error; err != nil {
		return nil, err
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if req.Active != nil && *req.Active && !game.Active {
		if err := checkNoOtherActive(tx, gameID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if req.Name != nil {
		game.Name = *req.Name
	}
	if req.Date != nil {
		game.Date = *req.Date
	}
	if req.Active != nil {
		game.Active = *req.Active
	}

	if err := tx.Save(&game).Error; err != nil {
		tx.Rollback()
		return nil, activeConflict(err)
	}

	if req.GroupIDs != nil {
		if err := s.replaceGroups(tx, &game, *req.GroupIDs); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if req.TaskIDs != nil {
		if err := s.syncTasks(tx, gameID, *req.TaskIDs); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, activeConflict(err)
	}

	s.invalidateActiveGame()
	s.invalidateScoreboard(gameID)
	return s.GetGameByID(gameID)
}

func (s *GameService) DeleteGame(gameID uint) error {
	var game models.Game
	if err := s.db.First(&game, gameID).Error; err != nil {
		return err
	}

	var uploads []models.Upload
	if err := s.db.Joins("JOIN submissions ON submissions.id = uploads.submission_id").
		Where("submissions.game_id = ?", gameID).
		Find(&uploads).Error; err != nil {
		return err
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	steps := []error{
		tx.Where("submission_id IN (SELECT id FROM submissions WHERE game_id = ?)", gameID).Delete(&models.Upload{}).Error,
		tx.Where("game_id = ?", gameID).Delete(&models.Submission{}).Error,
		tx.Where("game_id = ?", gameID).Delete(&models.OrderedTask{}).Error,
		tx.Model(&game).Association("Groups").Clear(),
		tx.Delete(&game).Error,
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

	// Proof files go last; a leftover file is harmless once its row is gone
	for _, u := range uploads {
		if err := s.storage.Remove(u.Path); err != nil {
			log.Printf("Failed to remove proof file %s: %v", u.Path, err)
		}
	}

	s.invalidateActiveGame()
	s.invalidateScoreboard(gameID)
	return nil
}

// ReorderTasks renumbers the game's existing task associations to match the
// given sequence. It never creates or removes associations; every id must
// already be attached to the game.
func (s *GameService) ReorderTasks(gameID uint, taskIDs []uint) error {
	var game models.Game
	if err := s.db.First(&game, gameID).Error; err != nil {
		return err
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	for index, taskID := range taskIDs {
		number := index + 1
		res := tx.Model(&models.OrderedTask{}).
			Where("game_id = ? AND task_id = ?", gameID, taskID).
			Update("task_number", number)
		if res.Error != nil {
			tx.Rollback()
			return res.Error
		}
		if res.RowsAffected == 0 {
			tx.Rollback()
			return models.FieldErrors{"tasks": fmt.Sprintf("Task %d is not attached to this game", taskID)}
		}
	}

	return tx.Commit().Error
}

// ActiveGame returns the single game currently open for submissions.
func (s *GameService) ActiveGame() (*models.Game, error) {
	if s.redis != nil {
		if id, err := s.redis.Get(context.Background(), activeGameKey).Uint64(); err == nil {
			game, err := s.GetGameByID(uint(id))
			if err == nil && game.Active {
				return game, nil
			}
		}
	}

	var game models.Game
	err := s.db.Where("active = ?", true).First(&game).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNoActiveGame
	}
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		if err := s.redis.Set(context.Background(), activeGameKey, game.ID, scoreboardCacheTTL).Err(); err != nil {
			log.Printf("Failed to cache active game: %v", err)
		}
	}

	return s.GetGameByID(game.ID)
}

// ActiveGameForPlayer resolves the active game and the caller's group in it.
// Players outside the game's groups get the same no-active-game state as
// when nothing is running.
func (s *GameService) ActiveGameForPlayer(userID uint) (*models.Game, *models.PlayerGroup, error) {
	var user models.User
	if err := s.db.Preload("Groups").First(&user, userID).Error; err != nil {
		return nil, nil, err
	}
	player := models.AsPlayer(&user)

	game, err := s.ActiveGame()
	if err != nil {
		return nil, nil, err
	}

	for i := range game.Groups {
		if player.InGroup(game.Groups[i].ID) {
			return game, &game.Groups[i], nil
		}
	}
	return nil, nil, models.ErrNoActiveGame
}

type ScoreboardEntry struct {
	Group  models.PlayerGroup `json:"group"`
	Points uint               `json:"points"`
}

// Scoreboard sums granted points per group under the first-acceptance rule:
// only the earliest accepted submission per (task, group) scores, except
// that an explicit override always counts.
func (s *GameService) Scoreboard(gameID uint) ([]ScoreboardEntry, error) {
	if s.redis != nil {
		if data, err := s.redis.Get(context.Background(), scoreboardKey(gameID)).Result(); err == nil {
			var entries []ScoreboardEntry
			if err := json.Unmarshal([]byte(data), &entries); err == nil {
				return entries, nil
			}
		}
	}

	var game models.Game
	if err := s.db.Preload("Groups").First(&game, gameID).Error; err != nil {
		return nil, err
	}

	var subs []models.Submission
	err := s.db.Where("game_id = ? AND accepted = ?", gameID, true).
		Preload("Task").
		Order("created_at, id").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}

	type taskGroup struct{ task, group uint }
	awarded := make(map[taskGroup]bool)
	points := make(map[uint]uint)
	for _, sub := range subs {
		key := taskGroup{sub.TaskID, sub.GroupID}
		switch {
		case sub.PointsOverride != nil:
			points[sub.GroupID] += *sub.PointsOverride
		case !awarded[key]:
			points[sub.GroupID] += sub.Task.Points
		}
		awarded[key] = true
	}

	entries := make([]ScoreboardEntry, 0, len(game.Groups))
	for _, group := range game.Groups {
		entries = append(entries, ScoreboardEntry{Group: group, Points: points[group.ID]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].Group.Name < entries[j].Group.Name
	})

	if s.redis != nil {
		if data, err := json.Marshal(entries); err == nil {
			if err := s.redis.Set(context.Background(), scoreboardKey(gameID), data, scoreboardCacheTTL).Err(); err != nil {
				log.Printf("Failed to cache scoreboard for game %d: %v", gameID, err)
			}
		}
	}

	return entries, nil
}

func (s *GameService) replaceGroups(tx *gorm.DB, game *models.Game, groupIDs []uint) error {
	if err := validateGroupOverlap(tx, groupIDs); err != nil {
		return err
	}

	var groups []models.PlayerGroup
	if len(groupIDs) > 0 {
		if err := tx.Find(&groups, groupIDs).Error; err != nil {
			return err
		}
		if len(groups) != len(groupIDs) {
			return models.FieldErrors{"groups": "One or more selected groups do not exist"}
		}
	}

	return tx.Model(game).Association("Groups").Replace(groups)
}

// syncTasks makes the game's task associations match taskIDs: missing rows
// are created, removed ones deleted, and the remaining rows renumbered to
// the 1-based position in the sequence.
func (s *GameService) syncTasks(tx *gorm.DB, gameID uint, taskIDs []uint) error {
	if len(taskIDs) > 0 {
		var count int64
		if err := tx.Model(&models.Task{}).Where("id IN ?", taskIDs).Count(&count).Error; err != nil {
			return err
		}
		if count != int64(len(taskIDs)) {
			return models.FieldErrors{"tasks": "One or more selected tasks do not exist"}
		}
	}

	var existing []models.OrderedTask
	if err := tx.Where("game_id = ?", gameID).Find(&existing).Error; err != nil {
		return err
	}
	current := make(map[uint]bool, len(existing))
	for _, ot := range existing {
		current[ot.TaskID] = true
	}

	wanted := make(map[uint]bool, len(taskIDs))
	for _, id := range taskIDs {
		wanted[id] = true
	}

	for _, ot := range existing {
		if !wanted[ot.TaskID] {
			if err := tx.Delete(&models.OrderedTask{}, ot.ID).Error; err != nil {
				return err
			}
		}
	}
	for _, id := range taskIDs {
		if !current[id] {
			if err := tx.Create(&models.OrderedTask{GameID: gameID, TaskID: id}).Error; err != nil {
				return err
			}
		}
	}

	// Second pass over the now-committed associations, matching the order
	// of the request
	for index, id := range taskIDs {
		number := index + 1
		err := tx.Model(&models.OrderedTask{}).
			Where("game_id = ? AND task_id = ?", gameID, id).
			Update("task_number", number).Error
		if err != nil {
			return err
		}
	}

	return nil
}

// validateGroupOverlap rejects group sets where any player would compete in
// more than one group at once.
func validateGroupOverlap(tx *gorm.DB, groupIDs []uint) error {
	if len(groupIDs) < 2 {
		return nil
	}

	var userIDs []uint
	err := tx.Table("user_groups").
		Select("user_id").
		Where("player_group_id IN ?", groupIDs).
		Group("user_id").
		Having("COUNT(DISTINCT player_group_id) > 1").
		Scan(&userIDs).Error
	if err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}

	var users []models.User
	if err := tx.Find(&users, userIDs).Error; err != nil {
		return err
	}
	names := make([]string, 0, len(users))
	for i := range users {
		names = append(names, models.AsPlayer(&users[i]).DisplayName())
	}
	sort.Strings(names)

	return models.FieldErrors{
		"groups": fmt.Sprintf("These players are present in multiple groups: %s", strings.Join(names, ", ")),
	}
}

func checkNoOtherActive(tx *gorm.DB, excludeID uint) error {
	q := tx.Model(&models.Game{}).Where("active = ?", true)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return models.ErrActiveGameExists()
	}
	return nil
}

// activeConflict maps a violation of the conditional unique index to the
// user-facing conflict error. The pre-check catches the common case; the
// index closes the race between two concurrent activations.
func activeConflict(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, models.ActiveGameIndex) || strings.Contains(msg, "games.active") {
		return models.ErrActiveGameExists()
	}
	return err
}

func (s *GameService) invalidateActiveGame() {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(context.Background(), activeGameKey).Err(); err != nil {
		log.Printf("Failed to invalidate active game cache: %v", err)
	}
}

func (s *GameService) invalidateScoreboard(gameID uint) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(context.Background(), scoreboardKey(gameID)).Err(); err != nil {
		log.Printf("Failed to invalidate scoreboard cache for game %d: %v", gameID, err)
	}
}
