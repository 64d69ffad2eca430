package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ActiveGameIndex backs the "at most one active game" rule. It is created as
// a conditional unique index during migration and checked by name when a
// commit fails.
const ActiveGameIndex = "uniq_games_active"

func DefaultGameName() string {
	return fmt.Sprintf("Mister X %s", time.Now().Format("2006-01-02"))
}

// Game is one scavenger-hunt event: a set of ordered tasks and the groups
// competing on them. Only the active game admits player submissions.
type Game struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name" gorm:"not null"`
	Date      time.Time      `json:"date" gorm:"not null"`
	Active    bool           `json:"active" gorm:"not null;default:false"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Tasks       []OrderedTask `json:"tasks,omitempty" gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE"`
	Groups      []PlayerGroup `json:"groups,omitempty" gorm:"many2many:game_groups"`
	Submissions []Submission  `json:"submissions,omitempty" gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE"`
}

func (g *Game) BeforeCreate(tx *gorm.DB) error {
	if g.Name == "" {
		g.Name = DefaultGameName()
	}
	if g.Date.IsZero() {
		g.Date = time.Now().Truncate(24 * time.Hour)
	}
	return nil
}
