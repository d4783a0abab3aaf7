package service

import (
	"github.com/google/uuid"

	"github.com/shinyyama/snaplist-backend/internal/ai"
	"github.com/shinyyama/snaplist-backend/internal/model"
)

func draftFromListing(itemID string, l *ai.Listing) *model.ListingDraft {
	d := &model.ListingDraft{
		ID:     uuid.NewString(),
		ItemID: itemID,
	}
	applyListing(d, l)
	return d
}

func applyListing(d *model.ListingDraft, l *ai.Listing) {
	d.Title = l.Title
	d.Description = l.Description
	d.Condition = l.Condition
	d.SetSpecifics(l.ItemSpecifics)
	d.PriceMin = l.Pricing.Min
	d.PriceMax = l.Pricing.Max
	d.PriceSuggested = l.Pricing.Suggested
	d.PriceConfidence = l.Pricing.Confidence
	d.Currency = l.Pricing.Currency
	d.PriceReasoning = l.Pricing.Reasoning
	d.CategoryID = l.CategoryID
	d.SetKeywords(l.Keywords)
	d.SetFlaws(l.VisibleFlaws)
	d.AIConfidence = l.AIConfidence
}

// ListingFromDraft renders a stored draft in its wire shape.
func ListingFromDraft(d *model.ListingDraft) *ai.Listing {
	return &ai.Listing{
		Title:         d.Title,
		Description:   d.Description,
		Condition:     d.Condition,
		ItemSpecifics: d.Specifics(),
		Pricing: ai.Pricing{
			Min:        d.PriceMin,
			Max:        d.PriceMax,
			Suggested:  d.PriceSuggested,
			Confidence: d.PriceConfidence,
			Currency:   d.Currency,
			Reasoning:  d.PriceReasoning,
		},
		Keywords:     d.KeywordList(),
		CategoryID:   d.CategoryID,
		VisibleFlaws: d.FlawList(),
		AIConfidence: d.AIConfidence,
	}
}
