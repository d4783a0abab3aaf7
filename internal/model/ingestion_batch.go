package model

import "time"

type IngestionStatus string

const (
	IngestionStatusPending     IngestionStatus = "pending"
	IngestionStatusRunning     IngestionStatus = "running"
	IngestionStatusCompleted   IngestionStatus = "completed"
	IngestionStatusInterrupted IngestionStatus = "interrupted"
)

// IngestionBatch records one accepted upload so that the outcome of the
// detached processing can be inspected after the 202 has been sent.
type IngestionBatch struct {
	ID         string          `gorm:"primaryKey;size:36"`
	ItemID     string          `gorm:"column:item_id;size:36;not null;index"`
	UserID     string          `gorm:"column:user_id;size:128;not null"`
	Status     IngestionStatus `gorm:"column:status;size:32;not null;index"`
	Attempted  int             `gorm:"column:attempted;not null"`
	Succeeded  int             `gorm:"column:succeeded;not null;default:0"`
	Failed     int             `gorm:"column:failed;not null;default:0"`
	LastError  *string         `gorm:"column:last_error;type:text"`
	StartedAt  *time.Time      `gorm:"column:started_at"`
	FinishedAt *time.Time      `gorm:"column:finished_at"`
	CreatedAt  time.Time       `gorm:"autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime"`
}

func (IngestionBatch) TableName() string {
	return "ingestion_batches"
}
