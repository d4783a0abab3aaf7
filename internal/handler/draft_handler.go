package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shinyyama/snaplist-backend/internal/ai"
	"github.com/shinyyama/snaplist-backend/internal/model"
	"github.com/shinyyama/snaplist-backend/internal/reqctx"
	"github.com/shinyyama/snaplist-backend/internal/service"
)

type DraftHandler struct {
	analysis service.AnalysisService
	drafts   service.DraftService
}

func NewDraftHandler(analysis service.AnalysisService, drafts service.DraftService) *DraftHandler {
	return &DraftHandler{analysis: analysis, drafts: drafts}
}

type DraftResponse struct {
	ID     string `json:"id"`
	ItemID string `json:"itemId"`
	*ai.Listing
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type PricingPatchRequest struct {
	Min        *float64 `json:"min"`
	Max        *float64 `json:"max"`
	Suggested  *float64 `json:"suggested"`
	Confidence *float64 `json:"confidence"`
	Currency   *string  `json:"currency"`
	Reasoning  *string  `json:"reasoning"`
}

type UpdateDraftRequest struct {
	Title         *string              `json:"title" validate:"omitempty,max=255"`
	Description   *string              `json:"description"`
	Condition     *string              `json:"condition" validate:"omitempty,listing_condition"`
	ItemSpecifics map[string]string    `json:"itemSpecifics"`
	Pricing       *PricingPatchRequest `json:"pricing"`
	Keywords      *[]string            `json:"keywords"`
	CategoryID    *string              `json:"categoryId"`
	VisibleFlaws  *[]string            `json:"visibleFlaws"`
}

// Analyze runs to completion even if the client goes away, so the item never
// stays in processing because of a dropped connection.
func (h *DraftHandler) Analyze(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	itemID := c.Param("id")
	ctx := reqctx.WithItemID(context.WithoutCancel(c.Request().Context()), itemID)

	draft, err := h.analysis.Analyze(ctx, itemID, uid)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, http.StatusOK, toDraftResponse(draft))
}

func (h *DraftHandler) Get(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	draft, err := h.drafts.Get(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, http.StatusOK, toDraftResponse(draft))
}

func (h *DraftHandler) Update(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	var req UpdateDraftRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondError(c, err)
	}
	draft, err := h.drafts.Update(c.Request().Context(), c.Param("id"), uid, req.toPatch())
	if err != nil {
		if errors.Is(err, ai.ErrInvalidListing) {
			resp := NewErrorResponse(CodeValidation, "draft does not satisfy the listing schema")
			if details := validationDetails(err); details != nil {
				resp = resp.WithDetails(details)
			}
			return c.JSON(http.StatusBadRequest, resp)
		}
		return respondError(c, err)
	}
	return respondData(c, http.StatusOK, toDraftResponse(draft))
}

func (r UpdateDraftRequest) toPatch() service.DraftPatch {
	p := service.DraftPatch{
		Title:         r.Title,
		Description:   r.Description,
		Condition:     r.Condition,
		ItemSpecifics: r.ItemSpecifics,
		Keywords:      r.Keywords,
		CategoryID:    r.CategoryID,
		VisibleFlaws:  r.VisibleFlaws,
	}
	if r.Pricing != nil {
		p.Pricing = &service.PricingPatch{
			Min:        r.Pricing.Min,
			Max:        r.Pricing.Max,
			Suggested:  r.Pricing.Suggested,
			Confidence: r.Pricing.Confidence,
			Currency:   r.Pricing.Currency,
			Reasoning:  r.Pricing.Reasoning,
		}
	}
	return p
}

func toDraftResponse(d *model.ListingDraft) DraftResponse {
	return DraftResponse{
		ID:        d.ID,
		ItemID:    d.ItemID,
		Listing:   service.ListingFromDraft(d),
		CreatedAt: d.CreatedAt.Format(time.RFC3339),
		UpdatedAt: d.UpdatedAt.Format(time.RFC3339),
	}
}
