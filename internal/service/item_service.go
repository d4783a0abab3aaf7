package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/shinyyama/snaplist-backend/internal/media"
	"github.com/shinyyama/snaplist-backend/internal/model"
	"github.com/shinyyama/snaplist-backend/internal/repository"
	"github.com/shinyyama/snaplist-backend/internal/reqctx"
)

type ItemService interface {
	Create(ctx context.Context, uid string, email *string) (*model.Item, error)
	Get(ctx context.Context, id, uid string) (*model.Item, error)
	List(ctx context.Context, uid string, status *model.ItemStatus, limit, offset int) ([]model.Item, int64, error)
	UpdateStatus(ctx context.Context, id, uid string, status model.ItemStatus) (*model.Item, error)
	Delete(ctx context.Context, id, uid string) error
}

type itemService struct {
	items repository.ItemRepository
	users repository.UserRepository
	store media.Store
}

func NewItemService(items repository.ItemRepository, users repository.UserRepository, store media.Store) ItemService {
	return &itemService{items: items, users: users, store: store}
}

func (s *itemService) Create(ctx context.Context, uid string, email *string) (*model.Item, error) {
	if err := s.users.Ensure(ctx, uid, email); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	item := &model.Item{
		ID:     uuid.NewString(),
		UserID: uid,
		Status: model.ItemStatusDraft,
	}
	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *itemService) Get(ctx context.Context, id, uid string) (*model.Item, error) {
	item, err := s.items.FindOwned(ctx, id, uid)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return item, nil
}

func (s *itemService) List(ctx context.Context, uid string, status *model.ItemStatus, limit, offset int) ([]model.Item, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.items.List(ctx, uid, status, limit, offset)
}

// UpdateStatus applies a caller-driven transition. processing is reserved
// for the analysis flow.
func (s *itemService) UpdateStatus(ctx context.Context, id, uid string, status model.ItemStatus) (*model.Item, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidStatus, status)
	}
	item, err := s.Get(ctx, id, uid)
	if err != nil {
		return nil, err
	}
	if status == model.ItemStatusProcessing && item.Status != model.ItemStatusProcessing {
		return nil, fmt.Errorf("%w: %s", ErrStatusReserved, status)
	}
	if err := model.ValidateTransition(item.Status, status); err != nil {
		return nil, err
	}
	if item.Status == status {
		return item, nil
	}
	if err := s.items.UpdateStatus(ctx, id, uid, status); err != nil {
		return nil, err
	}
	return s.Get(ctx, id, uid)
}

// Delete removes the item rows first, then its objects. Storage failures are
// logged only; the rows are already gone.
func (s *itemService) Delete(ctx context.Context, id, uid string) error {
	images, err := s.items.DeleteCascade(ctx, id, uid)
	if err != nil {
		return mapNotFound(err)
	}
	var keys []string
	for i := range images {
		keys = append(keys, images[i].StorageKeys()...)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.store.DeleteMany(context.WithoutCancel(ctx), keys); err != nil {
		logger := reqctx.Logger(ctx)
		logger.Warn().Err(err).Str("item", id).Int("keys", len(keys)).Msg("storage cleanup failed after item delete")
	}
	return nil
}
