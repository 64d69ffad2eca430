package services

import (
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"misterx/config"
	"misterx/models"
	"misterx/storage"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := config.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()

	store, err := storage.New(t.TempDir(), 50<<20, []string{"image", "application", "text"})
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	return store
}

func createGroup(t *testing.T, db *gorm.DB, name string) *models.PlayerGroup {
	t.Helper()

	group := models.PlayerGroup{Name: name}
	if err := db.Create(&group).Error; err != nil {
		t.Fatalf("failed to create group %s: %v", name, err)
	}
	return &group
}

func createTask(t *testing.T, db *gorm.DB, text string, points uint) *models.Task {
	t.Helper()

	task := models.Task{Text: text, Points: points}
	if err := db.Create(&task).Error; err != nil {
		t.Fatalf("failed to create task %s: %v", text, err)
	}
	return &task
}

func createPlayer(t *testing.T, db *gorm.DB, username string, groups ...*models.PlayerGroup) *models.User {
	t.Helper()

	user := models.User{
		Username:     username,
		PasswordHash: "x",
		IsActive:     true,
		Role:         models.RolePlayer,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create player %s: %v", username, err)
	}
	for _, group := range groups {
		if err := db.Model(&user).Association("Groups").Append(group); err != nil {
			t.Fatalf("failed to add %s to group %s: %v", username, group.Name, err)
		}
	}
	return &user
}

// createGame builds a game with the given groups assigned and tasks attached
// in order.
func createGame(t *testing.T, db *gorm.DB, name string, active bool, groups []*models.PlayerGroup, tasks []*models.Task) *models.Game {
	t.Helper()

	game := models.Game{Name: name, Active: active}
	if err := db.Create(&game).Error; err != nil {
		t.Fatalf("failed to create game %s: %v", name, err)
	}
	for _, group := range groups {
		if err := db.Model(&game).Association("Groups").Append(group); err != nil {
			t.Fatalf("failed to assign group %s to game %s: %v", group.Name, name, err)
		}
	}
	for i, task := range tasks {
		number := i + 1
		ot := models.OrderedTask{GameID: game.ID, TaskID: task.ID, TaskNumber: &number}
		if err := db.Create(&ot).Error; err != nil {
			t.Fatalf("failed to attach task %s to game %s: %v", task.Text, name, err)
		}
	}
	return &game
}

func boolPtr(b bool) *bool    { return &b }
func uintPtr(u uint) *uint    { return &u }
func strPtr(s string) *string { return &s }
