package db

import (
	"sharpline/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Game{},
		&models.GameOutcome{},
		&models.OddsSnapshot{},
		&models.Signal{},
		&models.Strategy{},
		&models.Recommendation{},
		&models.BacktestResult{},
		&models.DetectionRun{},
		&models.AlignmentReport{},
	)
}
