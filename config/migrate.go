package config

import (
	"fmt"

	"gorm.io/gorm"

	"misterx/models"
)

// Migrate creates the schema and the conditional unique index that keeps at
// most one game active. The index lives in the database rather than in
// application code so two concurrent activations cannot both commit.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.PlayerGroup{},
		&models.Task{},
		&models.Game{},
		&models.OrderedTask{},
		&models.Submission{},
		&models.Upload{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	stmt := fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %s ON games (active) WHERE active AND deleted_at IS NULL",
		models.ActiveGameIndex,
	)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("failed to create active game index: %w", err)
	}

	return nil
}
