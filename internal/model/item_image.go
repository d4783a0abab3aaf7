package model

import "time"

type ItemImage struct {
	ID           string    `gorm:"primaryKey;size:36"`
	ItemID       string    `gorm:"column:item_id;size:36;not null;index:idx_item_images_item_order"`
	StoragePath  string    `gorm:"column:storage_path;size:512;not null;uniqueIndex"`
	ThumbnailKey *string   `gorm:"column:thumbnail_path;size:512"`
	MimeType     string    `gorm:"column:mime_type;size:64;not null"`
	SizeBytes    int64     `gorm:"column:size_bytes;not null"`
	Width        *int      `gorm:"column:width"`
	Height       *int      `gorm:"column:height"`
	OrderIndex   int       `gorm:"column:order_index;not null;default:0;index:idx_item_images_item_order"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (ItemImage) TableName() string {
	return "item_images"
}

// StorageKeys lists every object key owned by the image.
func (img *ItemImage) StorageKeys() []string {
	keys := []string{img.StoragePath}
	if img.ThumbnailKey != nil && *img.ThumbnailKey != "" {
		keys = append(keys, *img.ThumbnailKey)
	}
	return keys
}
