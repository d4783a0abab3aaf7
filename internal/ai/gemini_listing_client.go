package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/shinyyama/snaplist-backend/internal/reqctx"
)

// ListingAnalyzer produces a listing from an ordered set of image URLs.
type ListingAnalyzer interface {
	Analyze(ctx context.Context, imageURLs []string) (*Listing, error)
}

// Generator is the subset of *genai.Models the client needs.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Options struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int
	AttemptTimeout  time.Duration
}

type GeminiListingClient struct {
	gen    Generator
	images ImageSource
	opts   Options
}

// NewGeminiListingClient wires an already constructed model client. The
// caller owns the genai.Client lifecycle.
func NewGeminiListingClient(gen Generator, images ImageSource, opts Options) *GeminiListingClient {
	if opts.Model == "" {
		opts.Model = "gemini-2.5-flash"
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = 2000
	}
	return &GeminiListingClient{gen: gen, images: images, opts: opts}
}

// Analyze runs one attempt. Retrying is the caller's concern.
func (c *GeminiListingClient) Analyze(ctx context.Context, imageURLs []string) (*Listing, error) {
	if len(imageURLs) == 0 {
		return nil, ErrNoImages
	}
	logger := reqctx.Logger(ctx)
	if c.opts.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.AttemptTimeout)
		defer cancel()
	}
	start := time.Now()

	images := make([]Image, len(imageURLs))
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range imageURLs {
		i, u := i, u
		g.Go(func() error {
			img, err := c.images.Fetch(gctx, u)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Warn().Err(err).Str("stage", "fetch_fail").Msg("image fetch failed")
		return nil, err
	}

	parts := make([]*genai.Part, 0, len(images)+1)
	parts = append(parts, genai.NewPartFromText(BuildAnalysisPrompt(len(images))))
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MimeType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	temp := c.opts.Temperature
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       &temp,
		MaxOutputTokens:   int32(c.opts.MaxOutputTokens),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    listingSchema(),
	}

	genStart := time.Now()
	logger.Info().Str("stage", "gemini_start").Str("model", c.opts.Model).Int("images", len(images)).Msg("analysis call")
	res, err := c.gen.GenerateContent(ctx, c.opts.Model, contents, config)
	if err != nil {
		logger.Warn().Err(err).Str("stage", "gemini_fail").Str("model", c.opts.Model).Msg("analysis call failed")
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	genMs := time.Since(genStart).Milliseconds()

	text := ""
	if res != nil {
		text = res.Text()
	}
	if strings.TrimSpace(text) == "" {
		logger.Warn().Str("stage", "gemini_empty").Int64("genMs", genMs).Msg("analysis returned no text")
		return nil, ErrEmptyResponse
	}

	listing, err := ParseListing(text)
	if err != nil {
		logger.Error().Err(err).Str("stage", "parse_fail").Int("len", len(text)).Str("text", truncate(text, 2000)).Msg("analysis output rejected")
		return nil, err
	}
	logger.Info().Str("stage", "parse_ok").Int64("genMs", genMs).Int64("totalMs", time.Since(start).Milliseconds()).
		Float64("aiConfidence", listing.AIConfidence).Msg("analysis done")
	return listing, nil
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
