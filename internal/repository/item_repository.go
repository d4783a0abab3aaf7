package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shinyyama/snaplist-backend/internal/model"
	"gorm.io/gorm"
)

type ItemRepository interface {
	Create(ctx context.Context, item *model.Item) error
	FindOwned(ctx context.Context, id, uid string) (*model.Item, error)
	List(ctx context.Context, uid string, status *model.ItemStatus, limit, offset int) ([]model.Item, int64, error)
	UpdateStatus(ctx context.Context, id, uid string, status model.ItemStatus) error
	DeleteCascade(ctx context.Context, id, uid string) ([]model.ItemImage, error)
	ResetStale(ctx context.Context, from, to model.ItemStatus, before time.Time) (int64, error)
}

type itemRepository struct {
	db *gorm.DB
}

var ErrDBNotReady = errors.New("database not initialized")

func NewItemRepository(db *gorm.DB) ItemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) Create(ctx context.Context, item *model.Item) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *itemRepository) FindOwned(ctx context.Context, id, uid string) (*model.Item, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var item model.Item
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, uid).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// List returns one page of the user's items, newest first, with the draft
// title preloaded.
func (r *itemRepository) List(ctx context.Context, uid string, status *model.ItemStatus, limit, offset int) ([]model.Item, int64, error) {
	if r.db == nil {
		return nil, 0, ErrDBNotReady
	}
	var (
		items []model.Item
		total int64
	)
	filter := func(db *gorm.DB) *gorm.DB {
		db = db.Where("user_id = ?", uid)
		if status != nil {
			db = db.Where("status = ?", *status)
		}
		return db
	}
	if err := r.db.WithContext(ctx).Model(&model.Item{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := r.db.WithContext(ctx).
		Scopes(filter).
		Preload("Draft", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "item_id", "title")
		}).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *itemRepository) UpdateStatus(ctx context.Context, id, uid string, status model.ItemStatus) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).
		Model(&model.Item{}).
		Where("id = ? AND user_id = ?", id, uid).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

// DeleteCascade removes the item with its drafts, images and ingestion
// batches in one transaction and returns the deleted images so their
// objects can be removed from storage.
func (r *itemRepository) DeleteCascade(ctx context.Context, id, uid string) ([]model.ItemImage, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var images []model.ItemImage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item model.Item
		if err := tx.Where("id = ? AND user_id = ?", id, uid).First(&item).Error; err != nil {
			return err
		}
		if err := tx.Where("item_id = ?", id).Find(&images).Error; err != nil {
			return err
		}
		if err := tx.Where("item_id = ?", id).Delete(&model.ListingDraft{}).Error; err != nil {
			return err
		}
		if err := tx.Where("item_id = ?", id).Delete(&model.ItemImage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("item_id = ?", id).Delete(&model.IngestionBatch{}).Error; err != nil {
			return err
		}
		return tx.Delete(&item).Error
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

// ResetStale moves items that have sat in status from since before to status to.
func (r *itemRepository) ResetStale(ctx context.Context, from, to model.ItemStatus, before time.Time) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	res := r.db.WithContext(ctx).
		Model(&model.Item{}).
		Where("status = ? AND updated_at < ?", from, before).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}
