package handler

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shinyyama/snaplist-backend/internal/model"
	"github.com/shinyyama/snaplist-backend/internal/reqctx"
	"github.com/shinyyama/snaplist-backend/internal/service"
)

type ImageHandler struct {
	items    service.ItemService
	images   service.ImageService
	ingest   service.IngestionService
	maxBytes int64
}

func NewImageHandler(items service.ItemService, images service.ImageService, ingest service.IngestionService, maxBytes int64) *ImageHandler {
	return &ImageHandler{items: items, images: images, ingest: ingest, maxBytes: maxBytes}
}

type ImageResponse struct {
	ID           string  `json:"id"`
	ItemID       string  `json:"itemId"`
	StoragePath  string  `json:"storagePath"`
	URL          string  `json:"url"`
	ThumbnailURL *string `json:"thumbnailUrl,omitempty"`
	MimeType     string  `json:"mimeType"`
	SizeBytes    int64   `json:"sizeBytes"`
	Width        *int    `json:"width,omitempty"`
	Height       *int    `json:"height,omitempty"`
	OrderIndex   int     `json:"orderIndex"`
	CreatedAt    string  `json:"createdAt"`
}

type UploadAccepted struct {
	ItemID     string `json:"itemId"`
	ImageCount int    `json:"imageCount"`
	BatchID    string `json:"batchId"`
}

type ReorderRequest struct {
	ImageIDs []string `json:"imageIds" validate:"dive,required,max=64"`
}

type IngestionResponse struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	Attempted  int     `json:"attempted"`
	Succeeded  int     `json:"succeeded"`
	Failed     int     `json:"failed"`
	LastError  *string `json:"lastError,omitempty"`
	StartedAt  *string `json:"startedAt,omitempty"`
	FinishedAt *string `json:"finishedAt,omitempty"`
	CreatedAt  string  `json:"createdAt"`
}

// Upload drains the whole multipart body before answering, then hands the
// buffers to the ingestion pipeline and answers 202 right away.
func (h *ImageHandler) Upload(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx := c.Request().Context()
	itemID := c.Param("id")
	if _, err := h.items.Get(ctx, itemID, uid); err != nil {
		return respondError(c, err)
	}

	reader, err := c.Request().MultipartReader()
	if err != nil {
		return respondError(c, echo.NewHTTPError(http.StatusBadRequest, "expected multipart/form-data body"))
	}
	files, err := drainFiles(ctx, reader, h.maxBytes)
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return respondError(c, httpErr)
		}
		return respondError(c, echo.NewHTTPError(http.StatusBadRequest, "malformed multipart body"))
	}
	if len(files) == 0 {
		return respondError(c, service.ErrNoFiles)
	}

	batch, err := h.ingest.Submit(ctx, itemID, uid, files)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, http.StatusAccepted, UploadAccepted{
		ItemID:     itemID,
		ImageCount: len(files),
		BatchID:    batch.ID,
	})
}

// drainFiles reads every file part into memory. A part larger than maxBytes
// is dropped here and never reaches the pipeline.
func drainFiles(ctx context.Context, reader *multipart.Reader, maxBytes int64) ([]service.UploadFile, error) {
	logger := reqctx.Logger(ctx)
	var files []service.UploadFile
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return nil, err
		}
		if part.FileName() == "" {
			_, _ = io.Copy(io.Discard, part)
			_ = part.Close()
			continue
		}
		data, err := io.ReadAll(io.LimitReader(part, maxBytes+1))
		if err != nil {
			_ = part.Close()
			return nil, err
		}
		if int64(len(data)) > maxBytes {
			if _, err := io.Copy(io.Discard, part); err != nil {
				_ = part.Close()
				return nil, err
			}
			logger.Warn().Str("filename", part.FileName()).Int64("limit", maxBytes).Msg("dropping oversized upload part")
			_ = part.Close()
			continue
		}
		files = append(files, service.UploadFile{
			Filename:  part.FileName(),
			MediaType: part.Header.Get("Content-Type"),
			Data:      data,
		})
		_ = part.Close()
	}
}

func (h *ImageHandler) List(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	views, err := h.images.List(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]ImageResponse, 0, len(views))
	for i := range views {
		out = append(out, toImageResponse(&views[i]))
	}
	return respondData(c, http.StatusOK, out)
}

func (h *ImageHandler) Delete(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.images.Delete(c.Request().Context(), c.Param("id"), uid); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ImageHandler) Reorder(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	var req ReorderRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondError(c, err)
	}
	itemID := c.Param("id")
	if err := h.images.Reorder(c.Request().Context(), itemID, uid, req.ImageIDs); err != nil {
		return respondError(c, err)
	}
	return respondData(c, http.StatusOK, map[string]interface{}{
		"itemId":   itemID,
		"imageIds": req.ImageIDs,
	})
}

func (h *ImageHandler) ListIngestions(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	batches, err := h.ingest.ListBatches(c.Request().Context(), c.Param("id"), uid, 10)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]IngestionResponse, 0, len(batches))
	for i := range batches {
		out = append(out, toIngestionResponse(&batches[i]))
	}
	return respondData(c, http.StatusOK, out)
}

func toImageResponse(v *service.ImageView) ImageResponse {
	return ImageResponse{
		ID:           v.ID,
		ItemID:       v.ItemID,
		StoragePath:  v.StoragePath,
		URL:          v.URL,
		ThumbnailURL: v.ThumbnailURL,
		MimeType:     v.MimeType,
		SizeBytes:    v.SizeBytes,
		Width:        v.Width,
		Height:       v.Height,
		OrderIndex:   v.OrderIndex,
		CreatedAt:    v.CreatedAt.Format(time.RFC3339),
	}
}

func toIngestionResponse(b *model.IngestionBatch) IngestionResponse {
	return IngestionResponse{
		ID:         b.ID,
		Status:     string(b.Status),
		Attempted:  b.Attempted,
		Succeeded:  b.Succeeded,
		Failed:     b.Failed,
		LastError:  b.LastError,
		StartedAt:  formatTime(b.StartedAt),
		FinishedAt: formatTime(b.FinishedAt),
		CreatedAt:  b.CreatedAt.Format(time.RFC3339),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
