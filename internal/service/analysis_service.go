package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/shinyyama/snaplist-backend/internal/ai"
	"github.com/shinyyama/snaplist-backend/internal/media"
	"github.com/shinyyama/snaplist-backend/internal/model"
	"github.com/shinyyama/snaplist-backend/internal/repository"
	"github.com/shinyyama/snaplist-backend/internal/reqctx"
)

type AnalysisConfig struct {
	MaxAttempts  int
	BackoffBase  time.Duration
	SignedURLTTL time.Duration
}

type AnalysisService interface {
	// Analyze produces and stores the item's draft. Concurrent calls for the
	// same item share one run.
	Analyze(ctx context.Context, itemID, uid string) (*model.ListingDraft, error)
}

type analysisService struct {
	items    repository.ItemRepository
	images   repository.ImageRepository
	drafts   repository.DraftRepository
	store    media.Store
	analyzer ai.ListingAnalyzer
	cfg      AnalysisConfig
	group    singleflight.Group
}

func NewAnalysisService(
	items repository.ItemRepository,
	images repository.ImageRepository,
	drafts repository.DraftRepository,
	store media.Store,
	analyzer ai.ListingAnalyzer,
	cfg AnalysisConfig,
) AnalysisService {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = media.DefaultSignedURLTTL
	}
	return &analysisService{
		items:    items,
		images:   images,
		drafts:   drafts,
		store:    store,
		analyzer: analyzer,
		cfg:      cfg,
	}
}

func (s *analysisService) Analyze(ctx context.Context, itemID, uid string) (*model.ListingDraft, error) {
	v, err, shared := s.group.Do(uid+"/"+itemID, func() (interface{}, error) {
		return s.analyze(ctx, itemID, uid)
	})
	if shared {
		logger := reqctx.Logger(ctx)
		logger.Info().Str("item", itemID).Msg("joined in-flight analysis")
	}
	if err != nil {
		return nil, err
	}
	return v.(*model.ListingDraft), nil
}

func (s *analysisService) analyze(ctx context.Context, itemID, uid string) (*model.ListingDraft, error) {
	ctx = reqctx.WithItemID(ctx, itemID)
	logger := reqctx.Logger(ctx)

	item, err := s.items.FindOwned(ctx, itemID, uid)
	if err != nil {
		return nil, mapNotFound(err)
	}
	images, err := s.images.ListByItem(ctx, itemID, uid)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	if err := model.ValidateTransition(item.Status, model.ItemStatusProcessing); err != nil {
		return nil, err
	}
	if err := s.items.UpdateStatus(ctx, itemID, uid, model.ItemStatusProcessing); err != nil {
		return nil, err
	}

	draft, err := s.run(ctx, itemID, images)
	if err != nil {
		s.resetStatus(ctx, itemID, uid, model.ItemStatusDraft)
		logger.Error().Err(err).Str("stage", "analysis_failed").Msg("analysis failed, item back to draft")
		return nil, err
	}
	if err := s.items.UpdateStatus(context.WithoutCancel(ctx), itemID, uid, model.ItemStatusReady); err != nil {
		logger.Error().Err(err).Str("stage", "mark_ready_fail").Str("draft", draft.ID).Msg("draft stored but item not marked ready")
		s.resetStatus(ctx, itemID, uid, model.ItemStatusDraft)
		return nil, fmt.Errorf("mark ready: %w", err)
	}
	return draft, nil
}

func (s *analysisService) run(ctx context.Context, itemID string, images []model.ItemImage) (*model.ListingDraft, error) {
	urls, err := s.signedURLs(ctx, images)
	if err != nil {
		return nil, err
	}
	listing, err := s.analyzeWithRetry(ctx, urls)
	if err != nil {
		return nil, err
	}
	draft := draftFromListing(itemID, listing)
	if err := s.drafts.Upsert(context.WithoutCancel(ctx), draft); err != nil {
		return nil, fmt.Errorf("store draft: %w", err)
	}
	return draft, nil
}

func (s *analysisService) signedURLs(ctx context.Context, images []model.ItemImage) ([]string, error) {
	urls := make([]string, len(images))
	g, gctx := errgroup.WithContext(ctx)
	for i := range images {
		i := i
		g.Go(func() error {
			u, err := s.store.SignedURL(gctx, images[i].StoragePath, s.cfg.SignedURLTTL)
			if err != nil {
				return fmt.Errorf("sign %s: %w", images[i].ID, err)
			}
			urls[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

// analyzeWithRetry waits BackoffBase, then twice that, and so on between
// attempts. Errors ai.IsRetryable rejects end the loop at once.
func (s *analysisService) analyzeWithRetry(ctx context.Context, urls []string) (*ai.Listing, error) {
	logger := reqctx.Logger(ctx)
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		listing, err := s.analyzer.Analyze(ctx, urls)
		if err == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Msg("analysis succeeded after retry")
			}
			return listing, nil
		}
		lastErr = err
		if !ai.IsRetryable(err) || attempt == s.cfg.MaxAttempts {
			return nil, fmt.Errorf("analysis failed after %d attempt(s): %w", attempt, err)
		}
		wait := s.cfg.BackoffBase << (attempt - 1)
		logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", wait).Msg("analysis attempt failed, retrying")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, fmt.Errorf("analysis aborted during backoff: %w", ctx.Err())
		}
	}
	return nil, lastErr
}

// resetStatus must land even when ctx is already canceled.
func (s *analysisService) resetStatus(ctx context.Context, itemID, uid string, status model.ItemStatus) {
	if err := s.items.UpdateStatus(context.WithoutCancel(ctx), itemID, uid, status); err != nil {
		logger := reqctx.Logger(ctx)
		logger.Error().Err(err).Str("status", string(status)).Msg("status reset failed")
	}
}
