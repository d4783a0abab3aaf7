package repository

import (
	"context"
	"errors"

	"github.com/shinyyama/snaplist-backend/internal/model"
	"gorm.io/gorm"
)

type DraftRepository interface {
	// Upsert stores d as the item's only draft, overwriting any previous one
	// in place. d.ID and d.CreatedAt are set from the stored row.
	Upsert(ctx context.Context, d *model.ListingDraft) error
	FindByItem(ctx context.Context, itemID, uid string) (*model.ListingDraft, error)
	Update(ctx context.Context, d *model.ListingDraft) error
}

type draftRepository struct {
	db *gorm.DB
}

func NewDraftRepository(db *gorm.DB) DraftRepository {
	return &draftRepository{db: db}
}

func (r *draftRepository) Upsert(ctx context.Context, d *model.ListingDraft) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.ListingDraft
		err := tx.Select("id", "created_at").Where("item_id = ?", d.ItemID).First(&existing).Error
		switch {
		case err == nil:
			d.ID = existing.ID
			d.CreatedAt = existing.CreatedAt
			return tx.Save(d).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(d).Error
		default:
			return err
		}
	})
}

func (r *draftRepository) FindByItem(ctx context.Context, itemID, uid string) (*model.ListingDraft, error) {
	var d model.ListingDraft
	if err := r.db.WithContext(ctx).
		Select("listing_drafts.*").
		Joins("JOIN items ON items.id = listing_drafts.item_id").
		Where("listing_drafts.item_id = ? AND items.user_id = ?", itemID, uid).
		First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *draftRepository) Update(ctx context.Context, d *model.ListingDraft) error {
	return r.db.WithContext(ctx).Save(d).Error
}
