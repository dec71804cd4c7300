package store

import (
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/coursebeat/coursebeat/internal/models"
)

// Open initializes the database and migrates the schema.
func Open(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.PushSubscription{},
		&models.StepNotification{},
		&models.Course{},
		&models.CourseDay{},
		&models.Step{},
	); err != nil {
		return nil, err
	}

	return db, nil
}
