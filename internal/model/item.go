package model

import "time"

type Item struct {
	ID        string     `gorm:"primaryKey;size:36"`
	UserID    string     `gorm:"column:user_id;size:128;not null;index:idx_items_user_status"`
	Status    ItemStatus `gorm:"column:status;size:32;not null;default:draft;index:idx_items_user_status"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`

	Draft *ListingDraft `gorm:"foreignKey:ItemID;references:ID"`
}

func (Item) TableName() string {
	return "items"
}

// DraftTitle returns the title of the preloaded draft, if any.
func (i *Item) DraftTitle() *string {
	if i.Draft == nil || i.Draft.Title == "" {
		return nil
	}
	t := i.Draft.Title
	return &t
}
