package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shinyyama/snaplist-backend/internal/imaging"
	"github.com/shinyyama/snaplist-backend/internal/media"
	"github.com/shinyyama/snaplist-backend/internal/model"
	"github.com/shinyyama/snaplist-backend/internal/repository"
	"github.com/shinyyama/snaplist-backend/internal/reqctx"
	"github.com/shinyyama/snaplist-backend/internal/tasks"
)

// UploadFile is one fully drained multipart part.
type UploadFile struct {
	Filename  string
	MediaType string
	Data      []byte
}

type IngestionService interface {
	// Submit records the batch and schedules it. It returns once the work is
	// queued; per-file outcomes are only visible on the batch row and logs.
	Submit(ctx context.Context, itemID, uid string, files []UploadFile) (*model.IngestionBatch, error)
	ListBatches(ctx context.Context, itemID, uid string, limit int) ([]model.IngestionBatch, error)
}

type ingestionService struct {
	items    repository.ItemRepository
	images   repository.ImageRepository
	batches  repository.IngestionRepository
	store    media.Store
	tracker  *tasks.Tracker
	maxBytes int64
}

func NewIngestionService(
	items repository.ItemRepository,
	images repository.ImageRepository,
	batches repository.IngestionRepository,
	store media.Store,
	tracker *tasks.Tracker,
	maxBytes int64,
) IngestionService {
	return &ingestionService{
		items:    items,
		images:   images,
		batches:  batches,
		store:    store,
		tracker:  tracker,
		maxBytes: maxBytes,
	}
}

func (s *ingestionService) Submit(ctx context.Context, itemID, uid string, files []UploadFile) (*model.IngestionBatch, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if _, err := s.items.FindOwned(ctx, itemID, uid); err != nil {
		return nil, mapNotFound(err)
	}

	batch := &model.IngestionBatch{
		ID:        uuid.NewString(),
		ItemID:    itemID,
		UserID:    uid,
		Status:    model.IngestionStatusPending,
		Attempted: len(files),
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("record batch: %w", err)
	}

	accepted := *batch
	rid := reqctx.RID(ctx)
	err := s.tracker.Go(itemID, "ingest", func(tctx context.Context) error {
		tctx = reqctx.WithItemID(reqctx.WithUserID(reqctx.WithRID(tctx, rid), uid), itemID)
		return s.process(tctx, batch, files)
	})
	if err != nil {
		s.finish(context.WithoutCancel(ctx), batch, model.IngestionStatusInterrupted, err)
		return nil, fmt.Errorf("schedule batch: %w", err)
	}
	return &accepted, nil
}

func (s *ingestionService) ListBatches(ctx context.Context, itemID, uid string, limit int) ([]model.IngestionBatch, error) {
	if _, err := s.items.FindOwned(ctx, itemID, uid); err != nil {
		return nil, mapNotFound(err)
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.batches.ListByItem(ctx, itemID, uid, limit)
}

// process handles files strictly in submission order. Indices continue after
// the item's current highest one and are consumed only by stored files.
func (s *ingestionService) process(ctx context.Context, batch *model.IngestionBatch, files []UploadFile) error {
	logger := reqctx.Logger(ctx).With().Str("batch", batch.ID).Logger()
	started := time.Now()
	batch.Status = model.IngestionStatusRunning
	batch.StartedAt = &started
	if err := s.batches.Update(ctx, batch); err != nil {
		logger.Warn().Err(err).Msg("batch status update failed")
	}

	next, err := s.images.NextOrderIndex(ctx, batch.ItemID)
	if err != nil {
		batch.Failed = len(files)
		s.finish(ctx, batch, model.IngestionStatusCompleted, fmt.Errorf("read order index: %w", err))
		return err
	}

	var lastErr error
	for i, f := range files {
		img, err := s.ingestOne(ctx, batch, f, next)
		if err != nil {
			lastErr = err
			batch.Failed++
			logger.Warn().Err(err).Int("file", i).Str("filename", f.Filename).Msg("ingest file failed")
			continue
		}
		batch.Succeeded++
		next++
		logger.Debug().Str("image", img.ID).Int("order", img.OrderIndex).Msg("image stored")
	}

	s.finish(ctx, batch, model.IngestionStatusCompleted, lastErr)
	logger.Info().
		Int("attempted", batch.Attempted).
		Int("succeeded", batch.Succeeded).
		Int("failed", batch.Failed).
		Int64("elapsedMs", time.Since(started).Milliseconds()).
		Msg("ingestion batch done")
	if batch.Succeeded == 0 && lastErr != nil {
		return fmt.Errorf("no file stored: %w", lastErr)
	}
	return nil
}

func (s *ingestionService) ingestOne(ctx context.Context, batch *model.IngestionBatch, f UploadFile, order int) (*model.ItemImage, error) {
	if err := imaging.Validate(f.MediaType, int64(len(f.Data)), s.maxBytes); err != nil {
		return nil, err
	}
	mediaType := imaging.NormalizeMediaType(f.MediaType)
	imageID := uuid.NewString()
	key := media.OriginalKey(batch.UserID, batch.ItemID, imageID, imaging.Extension(f.Filename, mediaType))
	if _, err := s.store.Put(ctx, key, f.Data, mediaType); err != nil {
		return nil, fmt.Errorf("store original: %w", err)
	}

	img := &model.ItemImage{
		ID:          imageID,
		ItemID:      batch.ItemID,
		StoragePath: key,
		MimeType:    mediaType,
		SizeBytes:   int64(len(f.Data)),
		OrderIndex:  order,
	}
	if info, err := imaging.Inspect(f.Data); err == nil {
		img.Width, img.Height = &info.Width, &info.Height
	}
	logger := reqctx.Logger(ctx)
	if thumb, err := imaging.Thumbnail(f.Data, imaging.ThumbnailSize); err == nil {
		thumbKey := media.ThumbnailKey(batch.UserID, batch.ItemID, imageID)
		if _, err := s.store.Put(ctx, thumbKey, thumb, "image/jpeg"); err == nil {
			img.ThumbnailKey = &thumbKey
		} else {
			logger.Warn().Err(err).Str("image", imageID).Msg("thumbnail upload failed")
		}
	} else {
		logger.Warn().Err(err).Str("image", imageID).Msg("thumbnail skipped")
	}

	if err := s.images.Create(ctx, img); err != nil {
		// The object stays behind; nothing references it.
		return nil, fmt.Errorf("record image %s (orphaned %s): %w", imageID, key, err)
	}
	return img, nil
}

func (s *ingestionService) finish(ctx context.Context, batch *model.IngestionBatch, status model.IngestionStatus, cause error) {
	now := time.Now()
	batch.Status = status
	batch.FinishedAt = &now
	if cause != nil {
		msg := cause.Error()
		if len(msg) > 1000 {
			msg = msg[:1000]
		}
		batch.LastError = &msg
	}
	if err := s.batches.Update(ctx, batch); err != nil && !errors.Is(err, context.Canceled) {
		logger := reqctx.Logger(ctx)
		logger.Warn().Err(err).Str("batch", batch.ID).Msg("batch status update failed")
	}
}
