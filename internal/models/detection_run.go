package models

import "time"

// Detection run statuses.
const (
	RunStatusRunning    = "running"
	RunStatusCompleted  = "completed"
	RunStatusSuperseded = "superseded"
	RunStatusCancelled  = "cancelled"
)

// DetectionRun records one pass of the detection engine over a window.
// A newer trigger for an overlapping window marks the older run superseded.
type DetectionRun struct {
	ID    uint64 `gorm:"primaryKey;autoIncrement"`
	RunID string `gorm:"type:varchar(36);uniqueIndex;not null"`

	WindowStart time.Time `gorm:"type:timestamptz;not null;index"`
	WindowEnd   time.Time `gorm:"type:timestamptz;not null;index"`

	Status        string `gorm:"type:varchar(20);not null;index"`
	KeysTotal     int    `gorm:"not null;default:0"`
	KeysQualified int    `gorm:"not null;default:0"`
	KeysDegraded  int    `gorm:"not null;default:0"`

	StartedAt  time.Time  `gorm:"type:timestamptz;not null"`
	FinishedAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt  time.Time  `gorm:"type:timestamptz;autoCreateTime"`
}

func (DetectionRun) TableName() string {
	return "detection_runs"
}
