package repository

import (
	"context"
	"errors"

	"github.com/shinyyama/snaplist-backend/internal/model"
	"gorm.io/gorm"
)

var ErrUnknownImage = errors.New("image does not belong to item")

type ImageRepository interface {
	Create(ctx context.Context, img *model.ItemImage) error
	ListByItem(ctx context.Context, itemID, uid string) ([]model.ItemImage, error)
	NextOrderIndex(ctx context.Context, itemID string) (int, error)
	FindOwned(ctx context.Context, imageID, uid string) (*model.ItemImage, error)
	Delete(ctx context.Context, imageID string) error
	Reorder(ctx context.Context, itemID string, ids []string) error
}

type imageRepository struct {
	db *gorm.DB
}

func NewImageRepository(db *gorm.DB) ImageRepository {
	return &imageRepository{db: db}
}

func (r *imageRepository) Create(ctx context.Context, img *model.ItemImage) error {
	return r.db.WithContext(ctx).Create(img).Error
}

// ListByItem returns the item's images in display order. Ownership is
// enforced by joining through items.
func (r *imageRepository) ListByItem(ctx context.Context, itemID, uid string) ([]model.ItemImage, error) {
	var images []model.ItemImage
	err := r.db.WithContext(ctx).
		Select("item_images.*").
		Joins("JOIN items ON items.id = item_images.item_id").
		Where("item_images.item_id = ? AND items.user_id = ?", itemID, uid).
		Order("item_images.order_index ASC, item_images.created_at ASC").
		Find(&images).Error
	if err != nil {
		return nil, err
	}
	return images, nil
}

// NextOrderIndex returns max(order_index)+1, or 0 for an item with no images.
func (r *imageRepository) NextOrderIndex(ctx context.Context, itemID string) (int, error) {
	var next int
	err := r.db.WithContext(ctx).
		Model(&model.ItemImage{}).
		Select("COALESCE(MAX(order_index) + 1, 0)").
		Where("item_id = ?", itemID).
		Scan(&next).Error
	return next, err
}

func (r *imageRepository) FindOwned(ctx context.Context, imageID, uid string) (*model.ItemImage, error) {
	var img model.ItemImage
	if err := r.db.WithContext(ctx).
		Select("item_images.*").
		Joins("JOIN items ON items.id = item_images.item_id").
		Where("item_images.id = ? AND items.user_id = ?", imageID, uid).
		First(&img).Error; err != nil {
		return nil, err
	}
	return &img, nil
}

func (r *imageRepository) Delete(ctx context.Context, imageID string) error {
	res := r.db.WithContext(ctx).Where("id = ?", imageID).Delete(&model.ItemImage{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Reorder rewrites every order index of the item: the listed ids first in
// the given order, then any unlisted images in their previous order. An id
// that is not one of the item's images, or is repeated, aborts with
// ErrUnknownImage and nothing changes.
func (r *imageRepository) Reorder(ctx context.Context, itemID string, ids []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []string
		if err := tx.Model(&model.ItemImage{}).
			Where("item_id = ?", itemID).
			Order("order_index ASC, created_at ASC").
			Pluck("id", &existing).Error; err != nil {
			return err
		}
		order, err := mergeOrder(existing, ids)
		if err != nil {
			return err
		}
		for i, id := range order {
			if err := tx.Model(&model.ItemImage{}).
				Where("id = ? AND item_id = ?", id, itemID).
				Update("order_index", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func mergeOrder(existing, ids []string) ([]string, error) {
	known := make(map[string]bool, len(existing))
	for _, id := range existing {
		known[id] = false
	}
	order := make([]string, 0, len(existing))
	for _, id := range ids {
		seen, ok := known[id]
		if !ok || seen {
			return nil, ErrUnknownImage
		}
		known[id] = true
		order = append(order, id)
	}
	for _, id := range existing {
		if !known[id] {
			order = append(order, id)
		}
	}
	return order, nil
}
