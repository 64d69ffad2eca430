package services

import (
	"log"
	"strings"

	"gorm.io/gorm"

	"misterx/models"
	"misterx/storage"
)

type TaskService struct {
	db      *gorm.DB
	storage *storage.Storage
}

func NewTaskService(db *gorm.DB, storage *storage.Storage) *TaskService {
	return &TaskService{db: db, storage: storage}
}

type CreateTaskRequest struct {
	Text     string  `json:"text" binding:"required"`
	Points   *uint   `json:"points" binding:"required"`
	Solution *string `json:"solution"`
}

type UpdateTaskRequest struct {
	Text     *string `json:"text"`
	Points   *uint   `json:"points"`
	Solution *string `json:"solution"`
}

type TaskFilter struct {
	Text      string `form:"text"`
	Solution  string `form:"solution"`
	Points    *uint  `form:"points"`
	PointsMin *uint  `form:"points_min"`
	PointsMax *uint  `form:"points_max"`
}

func (f *TaskFilter) apply(db *gorm.DB) *gorm.DB {
	if f == nil {
		return db
	}
	if f.Text != "" {
		db = db.Where("LOWER(text) LIKE ?", "%"+strings.ToLower(f.Text)+"%")
	}
	if f.Solution != "" {
		db = db.Where("LOWER(solution) LIKE ?", "%"+strings.ToLower(f.Solution)+"%")
	}
	if f.Points != nil {
		db = db.Where("points = ?", *f.Points)
	}
	if f.PointsMin != nil {
		db = db.Where("points >= ?", *f.PointsMin)
	}
	if f.PointsMax != nil {
		db = db.Where("points <= ?", *f.PointsMax)
	}
	return db
}

func (s *TaskService) CreateTask(req *CreateTaskRequest) (*models.Task, error) {
	task := models.Task{
		Text:     req.Text,
		Points:   *req.Points,
		Solution: req.Solution,
	}
	if err := s.db.Create(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *TaskService) GetTaskByID(taskID uint) (*models.Task, error) {
	var task models.Task
	if err := s.db.First(&task, taskID).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *TaskService) ListTasks(filter *TaskFilter) ([]models.Task, error) {
	var tasks []models.Task
	err := filter.apply(s.db).Order("id").Find(&tasks).Error
	return tasks, err
}

func (s *TaskService) UpdateTask(taskID uint, req *UpdateTaskRequest) (*models.Task, error) {
	task, err := s.GetTaskByID(taskID)
	if err != nil {
		return nil, err
	}

	if req.Text != nil {
		task.Text = *req.Text
	}
	if req.Points != nil {
		task.Points = *req.Points
	}
	if req.Solution != nil {
		task.Solution = req.Solution
	}

	if err := s.db.Save(task).Error; err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask removes the task and everything hanging off it: game
// associations, submissions and their proof files.
func (s *TaskService) DeleteTask(taskID uint) error {
	task, err := s.GetTaskByID(taskID)
	if err != nil {
		return err
	}

	var uploads []models.Upload
	err = s.db.Joins("JOIN submissions ON submissions.id = uploads.submission_id").
		Where("submissions.task_id = ?", taskID).
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
		tx.Where("submission_id IN (SELECT id FROM submissions WHERE task_id = ?)", taskID).Delete(&models.Upload{}).Error,
		tx.Where("task_id = ?", taskID).Delete(&models.Submission{}).Error,
		tx.Where("task_id = ?", taskID).Delete(&models.OrderedTask{}).Error,
		tx.Delete(task).Error,
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
