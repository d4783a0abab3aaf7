package repository

import (
	"context"
	"time"

	"github.com/shinyyama/snaplist-backend/internal/model"
	"gorm.io/gorm"
)

type IngestionRepository interface {
	Create(ctx context.Context, b *model.IngestionBatch) error
	Update(ctx context.Context, b *model.IngestionBatch) error
	ListByItem(ctx context.Context, itemID, uid string, limit int) ([]model.IngestionBatch, error)
	MarkInterrupted(ctx context.Context, before time.Time) (int64, error)
}

type ingestionRepository struct {
	db *gorm.DB
}

func NewIngestionRepository(db *gorm.DB) IngestionRepository {
	return &ingestionRepository{db: db}
}

func (r *ingestionRepository) Create(ctx context.Context, b *model.IngestionBatch) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *ingestionRepository) Update(ctx context.Context, b *model.IngestionBatch) error {
	return r.db.WithContext(ctx).Save(b).Error
}

func (r *ingestionRepository) ListByItem(ctx context.Context, itemID, uid string, limit int) ([]model.IngestionBatch, error) {
	var batches []model.IngestionBatch
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND user_id = ?", itemID, uid).
		Order("created_at desc").
		Limit(limit).
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}

// MarkInterrupted closes out batches that were accepted before the cutoff
// but never finished, e.g. because the process restarted mid-batch.
func (r *ingestionRepository) MarkInterrupted(ctx context.Context, before time.Time) (int64, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&model.IngestionBatch{}).
		Where("status IN ? AND created_at < ?",
			[]model.IngestionStatus{model.IngestionStatusPending, model.IngestionStatusRunning}, before).
		Updates(map[string]interface{}{
			"status":      model.IngestionStatusInterrupted,
			"finished_at": now,
			"last_error":  "interrupted before completion",
		})
	return res.RowsAffected, res.Error
}
