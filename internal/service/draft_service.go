package service

import (
	"context"
	"fmt"

	"github.com/shinyyama/snaplist-backend/internal/ai"
	"github.com/shinyyama/snaplist-backend/internal/model"
	"github.com/shinyyama/snaplist-backend/internal/repository"
)

type PricingPatch struct {
	Min        *float64
	Max        *float64
	Suggested  *float64
	Confidence *float64
	Currency   *string
	Reasoning  *string
}

// DraftPatch carries a partial edit. Nil fields stay unchanged.
type DraftPatch struct {
	Title         *string
	Description   *string
	Condition     *string
	ItemSpecifics map[string]string
	Pricing       *PricingPatch
	Keywords      *[]string
	CategoryID    *string
	VisibleFlaws  *[]string
}

type DraftService interface {
	Get(ctx context.Context, itemID, uid string) (*model.ListingDraft, error)
	Update(ctx context.Context, itemID, uid string, patch DraftPatch) (*model.ListingDraft, error)
}

type draftService struct {
	drafts repository.DraftRepository
}

func NewDraftService(drafts repository.DraftRepository) DraftService {
	return &draftService{drafts: drafts}
}

func (s *draftService) Get(ctx context.Context, itemID, uid string) (*model.ListingDraft, error) {
	d, err := s.drafts.FindByItem(ctx, itemID, uid)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return d, nil
}

// Update merges patch into the stored draft and re-validates the result
// against the listing schema.
func (s *draftService) Update(ctx context.Context, itemID, uid string, patch DraftPatch) (*model.ListingDraft, error) {
	d, err := s.Get(ctx, itemID, uid)
	if err != nil {
		return nil, err
	}
	l := ListingFromDraft(d)
	patch.apply(l)
	if err := ai.ValidateListing(l); err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrInvalidListing, err)
	}
	applyListing(d, l)
	if err := s.drafts.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (p DraftPatch) apply(l *ai.Listing) {
	if p.Title != nil {
		l.Title = *p.Title
	}
	if p.Description != nil {
		l.Description = *p.Description
	}
	if p.Condition != nil {
		l.Condition = *p.Condition
	}
	if p.ItemSpecifics != nil {
		l.ItemSpecifics = p.ItemSpecifics
	}
	if p.Keywords != nil {
		l.Keywords = *p.Keywords
	}
	if p.VisibleFlaws != nil {
		l.VisibleFlaws = *p.VisibleFlaws
	}
	if p.CategoryID != nil {
		if *p.CategoryID == "" {
			l.CategoryID = nil
		} else {
			c := *p.CategoryID
			l.CategoryID = &c
		}
	}
	if pp := p.Pricing; pp != nil {
		if pp.Min != nil {
			l.Pricing.Min = *pp.Min
		}
		if pp.Max != nil {
			l.Pricing.Max = *pp.Max
		}
		if pp.Suggested != nil {
			l.Pricing.Suggested = *pp.Suggested
		}
		if pp.Confidence != nil {
			l.Pricing.Confidence = *pp.Confidence
		}
		if pp.Currency != nil {
			l.Pricing.Currency = *pp.Currency
		}
		if pp.Reasoning != nil {
			r := *pp.Reasoning
			l.Pricing.Reasoning = &r
		}
	}
}
