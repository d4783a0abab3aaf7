package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shinyyama/snaplist-backend/internal/media"
	"github.com/shinyyama/snaplist-backend/internal/model"
	"github.com/shinyyama/snaplist-backend/internal/repository"
	"github.com/shinyyama/snaplist-backend/internal/reqctx"
)

// ImageView is an image with freshly signed URLs. URLs are never persisted.
type ImageView struct {
	model.ItemImage
	URL          string
	ThumbnailURL *string
}

type ImageService interface {
	List(ctx context.Context, itemID, uid string) ([]ImageView, error)
	Delete(ctx context.Context, imageID, uid string) error
	Reorder(ctx context.Context, itemID, uid string, ids []string) error
}

type imageService struct {
	items  repository.ItemRepository
	images repository.ImageRepository
	store  media.Store
	ttl    time.Duration
}

func NewImageService(items repository.ItemRepository, images repository.ImageRepository, store media.Store, ttl time.Duration) ImageService {
	if ttl <= 0 {
		ttl = media.DefaultSignedURLTTL
	}
	return &imageService{items: items, images: images, store: store, ttl: ttl}
}

func (s *imageService) List(ctx context.Context, itemID, uid string) ([]ImageView, error) {
	if _, err := s.items.FindOwned(ctx, itemID, uid); err != nil {
		return nil, mapNotFound(err)
	}
	images, err := s.images.ListByItem(ctx, itemID, uid)
	if err != nil {
		return nil, err
	}

	views := make([]ImageView, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range images {
		i := i
		g.Go(func() error {
			img := images[i]
			u, err := s.store.SignedURL(gctx, img.StoragePath, s.ttl)
			if err != nil {
				return fmt.Errorf("sign image %s: %w", img.ID, err)
			}
			views[i] = ImageView{ItemImage: img, URL: u}
			if img.ThumbnailKey != nil {
				if tu, err := s.store.SignedURL(gctx, *img.ThumbnailKey, s.ttl); err == nil {
					views[i].ThumbnailURL = &tu
				} else {
					logger := reqctx.Logger(ctx)
					logger.Warn().Err(err).Str("image", img.ID).Msg("thumbnail url unavailable")
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

// Delete removes the record, then the objects on a best-effort basis.
func (s *imageService) Delete(ctx context.Context, imageID, uid string) error {
	img, err := s.images.FindOwned(ctx, imageID, uid)
	if err != nil {
		return mapNotFound(err)
	}
	if err := s.images.Delete(ctx, img.ID); err != nil {
		return mapNotFound(err)
	}
	if err := s.store.DeleteMany(context.WithoutCancel(ctx), img.StorageKeys()); err != nil {
		logger := reqctx.Logger(ctx)
		logger.Warn().Err(err).Str("image", img.ID).Msg("storage cleanup failed after image delete")
	}
	return nil
}

func (s *imageService) Reorder(ctx context.Context, itemID, uid string, ids []string) error {
	if len(ids) == 0 {
		return ErrEmptyReorder
	}
	if _, err := s.items.FindOwned(ctx, itemID, uid); err != nil {
		return mapNotFound(err)
	}
	return s.images.Reorder(ctx, itemID, ids)
}
