package services

import (
	"errors"
	"testing"

	"gorm.io/gorm"

	"misterx/models"
)

func newTaskService(t *testing.T) *TaskService {
	t.Helper()
	return NewTaskService(newTestDB(t), newTestStorage(t))
}

func TestTaskCRUD(t *testing.T) {
	svc := newTaskService(t)

	task, err := svc.CreateTask(&CreateTaskRequest{
		Text:     "Find the statue",
		Points:   uintPtr(10),
		Solution: strPtr("Behind the fountain"),
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	updated, err := svc.UpdateTask(task.ID, &UpdateTaskRequest{Points: uintPtr(15)})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if updated.Points != 15 {
		t.Errorf("expected 15 points, got %d", updated.Points)
	}
	if updated.Text != "Find the statue" {
		t.Errorf("text should be unchanged, got %q", updated.Text)
	}

	if err := svc.DeleteTask(task.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if _, err := svc.GetTaskByID(task.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("expected record not found after delete, got %v", err)
	}
}

func TestListTasksFilters(t *testing.T) {
	svc := newTaskService(t)

	fixtures := []struct {
		text   string
		points uint
	}{
		{"Find the statue", 10},
		{"Photograph a tram", 20},
		{"Sing on the square", 30},
	}
	for _, f := range fixtures {
		if _, err := svc.CreateTask(&CreateTaskRequest{Text: f.text, Points: uintPtr(f.points)}); err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
	}

	tasks, err := svc.ListTasks(&TaskFilter{Text: "tram"})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Text != "Photograph a tram" {
		t.Errorf("text filter: got %+v", tasks)
	}

	tasks, err = svc.ListTasks(&TaskFilter{PointsMin: uintPtr(15), PointsMax: uintPtr(25)})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Points != 20 {
		t.Errorf("points range filter: got %+v", tasks)
	}
}

func TestDeleteTaskCascades(t *testing.T) {
	svc := newTaskService(t)
	db := svc.db

	reds := createGroup(t, db, "Reds")
	statue := createTask(t, db, "Find the statue", 10)
	game := createGame(t, db, "Spring Hunt", false, []*models.PlayerGroup{reds}, []*models.Task{statue})

	sub := models.Submission{GameID: game.ID, GroupID: reds.ID, TaskID: statue.ID}
	if err := db.Create(&sub).Error; err != nil {
		t.Fatalf("failed to create submission: %v", err)
	}

	if err := svc.DeleteTask(statue.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}

	var count int64
	db.Model(&models.Submission{}).Where("task_id = ?", statue.ID).Count(&count)
	if count != 0 {
		t.Errorf("expected submissions gone, found %d", count)
	}
	db.Model(&models.OrderedTask{}).Where("task_id = ?", statue.ID).Count(&count)
	if count != 0 {
		t.Errorf("expected game associations gone, found %d", count)
	}

	// The game itself survives
	var reloaded models.Game
	if err := db.First(&reloaded, game.ID).Error; err != nil {
		t.Errorf("game should survive task deletion: %v", err)
	}
}
