package services

import (
	"context"
	"errors"
	"log"
	"mime/multipart"
	"strings"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"misterx/models"
	"misterx/storage"
)

type SubmissionService struct {
	db      *gorm.DB
	redis   *redis.Client
	storage *storage.Storage
}

func NewSubmissionService(db *gorm.DB, redis *redis.Client, storage *storage.Storage) *SubmissionService {
	return &SubmissionService{
		db:      db,
		redis:   redis,
		storage: storage,
	}
}

type CreateSubmissionRequest struct {
	GroupID        uint   `json:"group_id" binding:"required"`
	GameID         uint   `json:"game_id" binding:"required"`
	TaskID         uint   `json:"task_id" binding:"required"`
	SubmitterID    *uint  `json:"submitter_id"`
	Accepted       *bool  `json:"accepted"`
	PointsOverride *uint  `json:"points_override"`
	Explanation    string `json:"explanation"`
	Feedback       string `json:"feedback"`
}

type UpdateSubmissionRequest struct {
	GroupID        *uint   `json:"group_id"`
	GameID         *uint   `json:"game_id"`
	TaskID         *uint   `json:"task_id"`
	SubmitterID    *uint   `json:"submitter_id"`
	Accepted       *bool   `json:"accepted"`
	PointsOverride *uint   `json:"points_override"`
	Explanation    *string `json:"explanation"`
	Feedback       *string `json:"feedback"`
}

type ReviewSubmissionRequest struct {
	Accepted       *bool  `json:"accepted" binding:"required"`
	PointsOverride *uint  `json:"points_override"`
	Feedback       string `json:"feedback"`
}

// SubmissionView is a submission together with the points it actually earns
// under the first-acceptance scoring rule.
type SubmissionView struct {
	models.Submission
	GrantedPoints uint `json:"granted_points"`
}

type SubmissionFilter struct {
	GroupID        *uint  `form:"group_id"`
	GameID         *uint  `form:"game_id"`
	TaskID         *uint  `form:"task_id"`
	SubmitterID    *uint  `form:"submitter_id"`
	Accepted       string `form:"accepted"` // true, false, unreviewed, or empty for any
	PointsOverride *uint  `form:"points_override"`
	Explanation    string `form:"explanation"`
	Feedback       string `form:"feedback"`
}

func (f *SubmissionFilter) apply(db *gorm.DB) *gorm.DB {
	if f == nil {
		return db
	}
	if f.GroupID != nil {
		db = db.Where("group_id = ?", *f.GroupID)
	}
	if f.GameID != nil {
		db = db.Where("game_id = ?", *f.GameID)
	}
	if f.TaskID != nil {
		db = db.Where("task_id = ?", *f.TaskID)
	}
	if f.SubmitterID != nil {
		db = db.Where("submitter_id = ?", *f.SubmitterID)
	}
	switch strings.ToLower(f.Accepted) {
	case "true", "yes":
		db = db.Where("accepted = ?", true)
	case "false", "no":
		db = db.Where("accepted = ?", false)
	case "unreviewed", "null":
		db = db.Where("accepted IS NULL")
	}
	if f.PointsOverride != nil {
		db = db.Where("points_override = ?", *f.PointsOverride)
	}
	if f.Explanation != "" {
		db = db.Where("LOWER(explanation) LIKE ?", "%"+strings.ToLower(f.Explanation)+"%")
	}
	if f.Feedback != "" {
		db = db.Where("LOWER(feedback) LIKE ?", "%"+strings.ToLower(f.Feedback)+"%")
	}
	return db
}

// SubmissionFacets lists the referenced entities that actually occur in a
// filtered submission set, used to scope choice lists in listings.
type SubmissionFacets struct {
	Groups     []models.PlayerGroup `json:"groups"`
	Games      []models.Game        `json:"games"`
	Tasks      []models.Task        `json:"tasks"`
	Submitters []models.User        `json:"submitters"`
}

func (s *SubmissionService) CreateSubmission(req *CreateSubmissionRequest) (*SubmissionView, error) {
	sub := models.Submission{
		GroupID:        req.GroupID,
		GameID:         req.GameID,
		TaskID:         req.TaskID,
		SubmitterID:    req.SubmitterID,
		Accepted:       req.Accepted,
		PointsOverride: req.PointsOverride,
		Explanation:    req.Explanation,
		Feedback:       req.Feedback,
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := validateSubmission(tx, &sub); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Create(&sub).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	s.invalidateScoreboard(sub.GameID)
	return s.GetSubmissionByID(sub.ID)
}

// CreatePlayerSubmission files a claim against the active game on behalf of
// the submitting player. Proof files are validated, stored and linked in the
// same transaction as the submission, so a rejected file leaves nothing
// behind.
func (s *SubmissionService) CreatePlayerSubmission(game *models.Game, group *models.PlayerGroup, userID, taskID uint, explanation string, proofs []*multipart.FileHeader) (*SubmissionView, error) {
	var task models.Task
	if err := s.db.First(&task, taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.FieldErrors{"task": "The selected task does not exist"}
		}
		return nil, err
	}

	sub := models.Submission{
		GroupID:     group.ID,
		GameID:      game.ID,
		TaskID:      taskID,
		SubmitterID: &userID,
		Explanation: explanation,
	}

	var saved []*storage.SavedFile
	cleanup := func() {
		for _, f := range saved {
			if err := s.storage.Remove(f.Path); err != nil {
				log.Printf("Failed to remove proof file %s: %v", f.Path, err)
			}
		}
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			cleanup()
		}
	}()

	if err := validateSubmission(tx, &sub); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Create(&sub).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, file := range proofs {
		f, err := s.storage.SaveProof(file, game.Name, group.Name, task.Text)
		if err != nil {
			tx.Rollback()
			cleanup()
			if errors.Is(err, storage.ErrUnsupportedType) {
				return nil, models.FieldErrors{"proof": err.Error()}
			}
			return nil, err
		}
		saved = append(saved, f)

		upload := models.Upload{
			SubmissionID: sub.ID,
			Name:         f.Name,
			Path:         f.Path,
			ContentType:  f.ContentType,
			Size:         f.Size,
		}
		if err := tx.Create(&upload).Error; err != nil {
			tx.Rollback()
			cleanup()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		cleanup()
		return nil, err
	}

	s.invalidateScoreboard(sub.GameID)
	return s.GetSubmissionByID(sub.ID)
}

func (s *SubmissionService) GetSubmissionByID(submissionID uint) (*SubmissionView, error) {
	var sub models.Submission
	err := s.db.
		Preload("Group").
		Preload("Task").
		Preload("Submitter").
		Preload("Proofs").
		First(&sub, submissionID).Error
	if err != nil {
		return nil, err
	}
	return s.withPoints(sub)
}

func (s *SubmissionService) ListSubmissions(filter *SubmissionFilter) ([]SubmissionView, error) {
	var subs []models.Submission
	err := filter.apply(s.db).
		Preload("Group").
		Preload("Task").
		Preload("Submitter").
		Preload("Proofs").
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}

	views := make([]SubmissionView, 0, len(subs))
	for _, sub := range subs {
		view, err := s.withPoints(sub)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

// FilterFacets returns the distinct groups, games, tasks and submitters
// referenced by the filtered submission set.
func (s *SubmissionService) FilterFacets(filter *SubmissionFilter) (*SubmissionFacets, error) {
	base := func() *gorm.DB {
		return filter.apply(s.db.Model(&models.Submission{}))
	}

	facets := &SubmissionFacets{}

	var groupIDs []uint
	if err := base().Distinct().Pluck("group_id", &groupIDs).Error; err != nil {
		return nil, err
	}
	if len(groupIDs) > 0 {
		if err := s.db.Find(&facets.Groups, groupIDs).Error; err != nil {
			return nil, err
		}
	}

	var gameIDs []uint
	if err := base().Distinct().Pluck("game_id", &gameIDs).Error; err != nil {
		return nil, err
	}
	if len(gameIDs) > 0 {
		if err := s.db.Find(&facets.Games, gameIDs).Error; err != nil {
			return nil, err
		}
	}

	var taskIDs []uint
	if err := base().Distinct().Pluck("task_id", &taskIDs).Error; err != nil {
		return nil, err
	}
	if len(taskIDs) > 0 {
		if err := s.db.Find(&facets.Tasks, taskIDs).Error; err != nil {
			return nil, err
		}
	}

	var submitterIDs []uint
	if err := base().Where("submitter_id IS NOT NULL").Distinct().Pluck("submitter_id", &submitterIDs).Error; err != nil {
		return nil, err
	}
	if len(submitterIDs) > 0 {
		if err := s.db.Find(&facets.Submitters, submitterIDs).Error; err != nil {
			return nil, err
		}
	}

	return facets, nil
}

// RelatedSubmissions returns the group's other attempts at the same task and
// the other groups' attempts, for the detail view.
func (s *SubmissionService) RelatedSubmissions(sub *models.Submission) (own, others []SubmissionView, err error) {
	var ownSubs []models.Submission
	err = s.db.
		Where("game_id = ? AND task_id = ? AND group_id = ? AND id <> ?", sub.GameID, sub.TaskID, sub.GroupID, sub.ID).
		Preload("Submitter").
		Preload("Proofs").
		Order("created_at DESC").
		Find(&ownSubs).Error
	if err != nil {
		return nil, nil, err
	}

	var otherSubs []models.Submission
	err = s.db.
		Where("game_id = ? AND task_id = ? AND group_id <> ?", sub.GameID, sub.TaskID, sub.GroupID).
		Preload("Group").
		Preload("Submitter").
		Order("created_at DESC").
		Find(&otherSubs).Error
	if err != nil {
		return nil, nil, err
	}

	for _, other := range ownSubs {
		view, err := s.withPoints(other)
		if err != nil {
			return nil, nil, err
		}
		own = append(own, *view)
	}
	for _, other := range otherSubs {
		view, err := s.withPoints(other)
		if err != nil {
			return nil, nil, err
		}
		others = append(others, *view)
	}
	return own, others, nil
}

func (s *SubmissionService) UpdateSubmission(submissionID uint, req *UpdateSubmissionRequest) (*SubmissionView, error) {
	var sub models.Submission
	if err := s.db.First(&sub, submissionID).Error; err != nil {
		return nil, err
	}

	if req.GroupID != nil {
		sub.GroupID = *req.GroupID
	}
	if req.GameID != nil {
		sub.GameID = *req.GameID
	}
	if req.TaskID != nil {
		sub.TaskID = *req.TaskID
	}
	if req.SubmitterID != nil {
		sub.SubmitterID = req.SubmitterID
	}
	if req.Accepted != nil {
		sub.Accepted = req.Accepted
	}
	if req.PointsOverride != nil {
		sub.PointsOverride = req.PointsOverride
	}
	if req.Explanation != nil {
		sub.Explanation = *req.Explanation
	}
	if req.Feedback != nil {
		sub.Feedback = *req.Feedback
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := validateSubmission(tx, &sub); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Save(&sub).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	s.invalidateScoreboard(sub.GameID)
	return s.GetSubmissionByID(sub.ID)
}

// ReviewSubmission records a reviewer's decision.
func (s *SubmissionService) ReviewSubmission(submissionID uint, req *ReviewSubmissionRequest) (*SubmissionView, error) {
	var sub models.Submission
	if err := s.db.First(&sub, submissionID).Error; err != nil {
		return nil, err
	}

	sub.Accepted = req.Accepted
	sub.PointsOverride = req.PointsOverride
	sub.Feedback = req.Feedback

	if err := s.db.Save(&sub).Error; err != nil {
		return nil, err
	}

	s.invalidateScoreboard(sub.GameID)
	return s.GetSubmissionByID(sub.ID)
}

func (s *SubmissionService) DeleteSubmission(submissionID uint) error {
	var sub models.Submission
	if err := s.db.First(&sub, submissionID).Error; err != nil {
		return err
	}
	var uploads []models.Upload
	if err := s.db.Where("submission_id = ?", submissionID).Find(&uploads).Error; err != nil {
		return err
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Where("submission_id = ?", submissionID).Delete(&models.Upload{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Delete(&sub).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}

	for _, u := range uploads {
		if err := s.storage.Remove(u.Path); err != nil {
			log.Printf("Failed to remove proof file %s: %v", u.Path, err)
		}
	}

	s.invalidateScoreboard(sub.GameID)
	return nil
}

// GrantedPoints resolves how many points a submission actually earns. Only
// the earliest accepted submission per (game, task, group) scores, so a
// group resubmitting after acceptance cannot collect twice; an explicit
// override always wins.
func (s *SubmissionService) GrantedPoints(sub *models.Submission) (uint, error) {
	if !sub.IsAccepted() {
		return 0, nil
	}
	if sub.PointsOverride != nil {
		return *sub.PointsOverride, nil
	}

	var first models.Submission
	err := s.db.
		Where("game_id = ? AND task_id = ? AND group_id = ? AND accepted = ?", sub.GameID, sub.TaskID, sub.GroupID, true).
		Order("created_at, id").
		First(&first).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	if err == nil && first.ID != sub.ID {
		return 0, nil
	}

	task := sub.Task
	if task.ID == 0 {
		if err := s.db.First(&task, sub.TaskID).Error; err != nil {
			return 0, err
		}
	}
	return task.Points, nil
}

// TaskCompleted reports whether any group has an accepted submission for the
// task in the game.
func (s *SubmissionService) TaskCompleted(gameID, taskID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.Submission{}).
		Where("game_id = ? AND task_id = ? AND accepted = ?", gameID, taskID, true).
		Count(&count).Error
	return count > 0, err
}

// TaskCompletedByGroup reports whether the group has an accepted submission
// for the task in the game.
func (s *SubmissionService) TaskCompletedByGroup(gameID, taskID, groupID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.Submission{}).
		Where("game_id = ? AND task_id = ? AND group_id = ? AND accepted = ?", gameID, taskID, groupID, true).
		Count(&count).Error
	return count > 0, err
}

// TaskSubmittedByGroup reports whether the group has any submission for the
// task, reviewed or not.
func (s *SubmissionService) TaskSubmittedByGroup(gameID, taskID, groupID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.Submission{}).
		Where("game_id = ? AND task_id = ? AND group_id = ?", gameID, taskID, groupID).
		Count(&count).Error
	return count > 0, err
}

func (s *SubmissionService) withPoints(sub models.Submission) (*SubmissionView, error) {
	points, err := s.GrantedPoints(&sub)
	if err != nil {
		return nil, err
	}
	return &SubmissionView{Submission: sub, GrantedPoints: points}, nil
}

// validateSubmission checks the cross-entity consistency rules. All violated
// fields are collected into one error so the caller can render them together.
func validateSubmission(tx *gorm.DB, sub *models.Submission) error {
	fieldErrs := models.FieldErrors{}

	var count int64
	err := tx.Model(&models.OrderedTask{}).
		Where("game_id = ? AND task_id = ?", sub.GameID, sub.TaskID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		fieldErrs["task"] = "The selected task is not part of the selected game"
	}

	err = tx.Table("game_groups").
		Where("game_id = ? AND player_group_id = ?", sub.GameID, sub.GroupID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		fieldErrs["group"] = "The selected group is not playing in the selected game"
	}

	if sub.SubmitterID != nil {
		err = tx.Table("user_groups").
			Where("user_id = ? AND player_group_id = ?", *sub.SubmitterID, sub.GroupID).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count == 0 {
			fieldErrs["submitter"] = "The selected submitter is not part of the selected group"
		}
	}

	if len(fieldErrs) > 0 {
		return fieldErrs
	}
	return nil
}

func (s *SubmissionService) invalidateScoreboard(gameID uint) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(context.Background(), scoreboardKey(gameID)).Err(); err != nil {
		log.Printf("Failed to invalidate scoreboard cache for game %d: %v", gameID, err)
	}
}
