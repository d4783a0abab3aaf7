package model

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

// ListingDraft is the persisted AI listing for an item. There is at most one
// row per item; re-analysis overwrites it in place.
type ListingDraft struct {
	ID              string         `gorm:"primaryKey;size:36"`
	ItemID          string         `gorm:"column:item_id;size:36;not null;uniqueIndex"`
	Title           string         `gorm:"column:title;size:255;not null"`
	Description     string         `gorm:"column:description;type:text;not null"`
	Condition       string         `gorm:"column:condition;size:64;not null"`
	ItemSpecifics   datatypes.JSON `gorm:"column:item_specifics;type:json"`
	PriceMin        float64        `gorm:"column:suggested_price_min;not null"`
	PriceMax        float64        `gorm:"column:suggested_price_max;not null"`
	PriceSuggested  float64        `gorm:"column:suggested_price;not null"`
	PriceConfidence float64        `gorm:"column:price_confidence;not null"`
	Currency        string         `gorm:"column:currency;size:3;not null;default:USD"`
	PriceReasoning  *string        `gorm:"column:price_reasoning;type:text"`
	CategoryID      *string        `gorm:"column:category_id;size:64"`
	Keywords        datatypes.JSON `gorm:"column:keywords;type:json"`
	VisibleFlaws    datatypes.JSON `gorm:"column:visible_flaws;type:json"`
	AIConfidence    float64        `gorm:"column:ai_confidence;not null"`
	CreatedAt       time.Time      `gorm:"autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime"`
}

func (ListingDraft) TableName() string {
	return "listing_drafts"
}

func (d *ListingDraft) Specifics() map[string]string {
	out := map[string]string{}
	if len(d.ItemSpecifics) > 0 {
		if err := json.Unmarshal(d.ItemSpecifics, &out); err != nil {
			d.logCorrupt("item_specifics", err)
			return map[string]string{}
		}
	}
	return out
}

func (d *ListingDraft) SetSpecifics(m map[string]string) {
	if m == nil {
		m = map[string]string{}
	}
	d.ItemSpecifics = mustJSON(m)
}

func (d *ListingDraft) KeywordList() []string {
	return d.stringList("keywords", d.Keywords)
}

func (d *ListingDraft) SetKeywords(list []string) {
	d.Keywords = mustJSON(nonNil(list))
}

func (d *ListingDraft) FlawList() []string {
	return d.stringList("visible_flaws", d.VisibleFlaws)
}

func (d *ListingDraft) SetFlaws(list []string) {
	d.VisibleFlaws = mustJSON(nonNil(list))
}

func (d *ListingDraft) stringList(column string, raw datatypes.JSON) []string {
	out := []string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			d.logCorrupt(column, err)
			return []string{}
		}
	}
	return out
}

// Corrupt columns read as empty so one bad row cannot fail a whole listing.
func (d *ListingDraft) logCorrupt(column string, err error) {
	log.Warn().Err(err).
		Str("draft", d.ID).
		Str("item", d.ItemID).
		Str("column", column).
		Msg("corrupt listing draft column")
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// mustJSON only ever sees maps and slices of strings, which always marshal.
func mustJSON(v interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return datatypes.JSON(b)
}
