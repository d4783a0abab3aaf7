package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shinyyama/snaplist-backend/internal/model"
	"github.com/shinyyama/snaplist-backend/internal/service"
)

type ItemHandler struct {
	svc service.ItemService
}

func NewItemHandler(svc service.ItemService) *ItemHandler {
	return &ItemHandler{svc: svc}
}

type ItemResponse struct {
	ID         string  `json:"id"`
	UserID     string  `json:"userId"`
	Status     string  `json:"status"`
	DraftTitle *string `json:"draftTitle,omitempty"`
	CreatedAt  string  `json:"createdAt"`
	UpdatedAt  string  `json:"updatedAt"`
}

type ListItemsQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=draft processing ready published"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset int    `query:"offset" validate:"min=0"`
}

type UpdateItemRequest struct {
	Status string `json:"status" validate:"required,oneof=draft processing ready published"`
}

func (h *ItemHandler) Create(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	item, err := h.svc.Create(c.Request().Context(), uid, currentEmail(c))
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, http.StatusCreated, toItemResponse(item))
}

func (h *ItemHandler) Get(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	item, err := h.svc.Get(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, http.StatusOK, toItemResponse(item))
}

func (h *ItemHandler) List(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	var q ListItemsQuery
	if err := bindAndValidate(c, &q); err != nil {
		return respondError(c, err)
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	var status *model.ItemStatus
	if q.Status != "" {
		s := model.ItemStatus(q.Status)
		status = &s
	}

	items, total, err := h.svc.List(c.Request().Context(), uid, status, q.Limit, q.Offset)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]ItemResponse, 0, len(items))
	for i := range items {
		out = append(out, toItemResponse(&items[i]))
	}
	return c.JSON(http.StatusOK, DataResponse{
		Data: out,
		Pagination: &Pagination{
			Limit:   q.Limit,
			Offset:  q.Offset,
			Total:   total,
			HasMore: int64(q.Offset+len(out)) < total,
		},
	})
}

func (h *ItemHandler) Update(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	var req UpdateItemRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondError(c, err)
	}
	item, err := h.svc.UpdateStatus(c.Request().Context(), c.Param("id"), uid, model.ItemStatus(req.Status))
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, http.StatusOK, toItemResponse(item))
}

func (h *ItemHandler) Delete(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.svc.Delete(c.Request().Context(), c.Param("id"), uid); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func toItemResponse(item *model.Item) ItemResponse {
	return ItemResponse{
		ID:         item.ID,
		UserID:     item.UserID,
		Status:     string(item.Status),
		DraftTitle: item.DraftTitle(),
		CreatedAt:  item.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  item.UpdatedAt.Format(time.RFC3339),
	}
}
