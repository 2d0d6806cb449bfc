package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/classroom-api/internal/models"
)

// Migrate creates or updates the classroom tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Teacher{},
		&models.Section{},
		&models.Student{},
		&models.QuizAttempt{},
		&models.LessonView{},
		&models.ActivityLog{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
