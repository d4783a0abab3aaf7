package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinyyama/snaplist-backend/internal/ai"
	"github.com/shinyyama/snaplist-backend/internal/model"
	"github.com/shinyyama/snaplist-backend/internal/service"
)

const testUID = "user-1"

type stubItems struct {
	items map[string]*model.Item
	err   error
}

func (s *stubItems) Create(_ context.Context, uid string, _ *string) (*model.Item, error) {
	item := &model.Item{ID: "new-item", UserID: uid, Status: model.ItemStatusDraft}
	s.items[item.ID] = item
	return item, nil
}

func (s *stubItems) Get(_ context.Context, id, uid string) (*model.Item, error) {
	item, ok := s.items[id]
	if !ok || item.UserID != uid {
		return nil, service.ErrNotFound
	}
	return item, nil
}

func (s *stubItems) List(_ context.Context, uid string, _ *model.ItemStatus, _, _ int) ([]model.Item, int64, error) {
	var out []model.Item
	for _, it := range s.items {
		if it.UserID == uid {
			out = append(out, *it)
		}
	}
	return out, int64(len(out)), nil
}

func (s *stubItems) UpdateStatus(ctx context.Context, id, uid string, status model.ItemStatus) (*model.Item, error) {
	if s.err != nil {
		return nil, s.err
	}
	item, err := s.Get(ctx, id, uid)
	if err != nil {
		return nil, err
	}
	item.Status = status
	return item, nil
}

func (s *stubItems) Delete(ctx context.Context, id, uid string) error {
	if _, err := s.Get(ctx, id, uid); err != nil {
		return err
	}
	delete(s.items, id)
	return nil
}

type stubImages struct {
	views      []service.ImageView
	reordered  []string
	reorderErr error
}

func (s *stubImages) List(context.Context, string, string) ([]service.ImageView, error) {
	return s.views, nil
}

func (s *stubImages) Delete(_ context.Context, id, _ string) error {
	if id != "img-1" {
		return service.ErrNotFound
	}
	return nil
}

func (s *stubImages) Reorder(_ context.Context, _, _ string, ids []string) error {
	if len(ids) == 0 {
		return service.ErrEmptyReorder
	}
	if s.reorderErr != nil {
		return s.reorderErr
	}
	s.reordered = ids
	return nil
}

type stubIngest struct {
	files []service.UploadFile
}

func (s *stubIngest) Submit(_ context.Context, itemID, uid string, files []service.UploadFile) (*model.IngestionBatch, error) {
	s.files = files
	return &model.IngestionBatch{ID: "batch-1", ItemID: itemID, UserID: uid, Attempted: len(files)}, nil
}

func (s *stubIngest) ListBatches(_ context.Context, itemID, uid string, _ int) ([]model.IngestionBatch, error) {
	return []model.IngestionBatch{{ID: "batch-1", ItemID: itemID, UserID: uid, Status: model.IngestionStatusCompleted, Attempted: 2, Succeeded: 2}}, nil
}

type stubAnalysis struct {
	err error
}

func (s *stubAnalysis) Analyze(_ context.Context, itemID, _ string) (*model.ListingDraft, error) {
	if s.err != nil {
		return nil, s.err
	}
	return sampleDraft(itemID), nil
}

type stubDrafts struct {
	draft *model.ListingDraft
	err   error
}

func (s *stubDrafts) Get(context.Context, string, string) (*model.ListingDraft, error) {
	if s.draft == nil {
		return nil, service.ErrNotFound
	}
	return s.draft, nil
}

func (s *stubDrafts) Update(_ context.Context, _, _ string, patch service.DraftPatch) (*model.ListingDraft, error) {
	if s.err != nil {
		return nil, s.err
	}
	if patch.Title != nil {
		s.draft.Title = *patch.Title
	}
	return s.draft, nil
}

func sampleDraft(itemID string) *model.ListingDraft {
	d := &model.ListingDraft{
		ID:              "draft-1",
		ItemID:          itemID,
		Title:           "Vintage camera",
		Description:     "Works fine",
		Condition:       "Used",
		PriceMin:        10,
		PriceMax:        30,
		PriceSuggested:  20,
		PriceConfidence: 0.6,
		Currency:        "USD",
		AIConfidence:    0.8,
	}
	d.SetSpecifics(map[string]string{"Brand": "Canon"})
	d.SetKeywords([]string{"camera"})
	d.SetFlaws(nil)
	return d
}

type testEnv struct {
	e        *echo.Echo
	items    *stubItems
	images   *stubImages
	ingest   *stubIngest
	analysis *stubAnalysis
	drafts   *stubDrafts
}

func newTestEnv(maxBytes int64) *testEnv {
	env := &testEnv{
		items: &stubItems{items: map[string]*model.Item{
			"item-1": {ID: "item-1", UserID: testUID, Status: model.ItemStatusDraft},
			"other":  {ID: "other", UserID: "someone-else", Status: model.ItemStatusDraft},
		}},
		images:   &stubImages{},
		ingest:   &stubIngest{},
		analysis: &stubAnalysis{},
		drafts:   &stubDrafts{draft: sampleDraft("item-1")},
	}
	e := echo.New()
	e.HTTPErrorHandler = HTTPErrorHandler
	e.Validator = NewRequestValidator()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("X-Test-Anon") == "" {
				c.Set("uid", testUID)
			}
			return next(c)
		}
	})

	items := NewItemHandler(env.items)
	images := NewImageHandler(env.items, env.images, env.ingest, maxBytes)
	drafts := NewDraftHandler(env.analysis, env.drafts)
	e.POST("/items", items.Create)
	e.GET("/items", items.List)
	e.GET("/items/:id", items.Get)
	e.PATCH("/items/:id", items.Update)
	e.DELETE("/items/:id", items.Delete)
	e.POST("/items/:id/images", images.Upload)
	e.GET("/items/:id/images", images.List)
	e.PATCH("/items/:id/images/reorder", images.Reorder)
	e.GET("/items/:id/ingestions", images.ListIngestions)
	e.DELETE("/images/:id", images.Delete)
	e.POST("/items/:id/analyze", drafts.Analyze)
	e.GET("/items/:id/draft", drafts.Get)
	e.PATCH("/items/:id/draft", drafts.Update)
	env.e = e
	return env
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

type filePart struct {
	field, name, contentType string
	data                     []byte
}

func multipartRequest(t *testing.T, target string, parts []filePart) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		if p.name != "" {
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.name))
		} else {
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, p.field))
		}
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestItemCreateAndGet(t *testing.T) {
	env := newTestEnv(1024)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/items", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"draft"`)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/items/item-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/items/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, errorCode(t, rec))
}

func TestUnauthenticatedRequest(t *testing.T) {
	env := newTestEnv(1024)
	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("X-Test-Anon", "1")
	rec := env.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeUnauthorized, errorCode(t, rec))
}

func TestItemListPagination(t *testing.T) {
	env := newTestEnv(1024)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/items?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data       []ItemResponse `json:"data"`
		Pagination Pagination     `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 1)
	assert.Equal(t, 5, body.Pagination.Limit)
	assert.Equal(t, int64(1), body.Pagination.Total)
	assert.False(t, body.Pagination.HasMore)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/items?limit=500", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, errorCode(t, rec))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/items?status=sold", nil))
	assert.Equal(t, CodeValidation, errorCode(t, rec))
}

func TestItemUpdateStatusErrors(t *testing.T) {
	env := newTestEnv(1024)

	rec := env.do(jsonRequest(http.MethodPatch, "/items/item-1", `{"status":"bogus"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, errorCode(t, rec))

	rec = env.do(jsonRequest(http.MethodPatch, "/items/item-1", `{"status":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeBadRequest, errorCode(t, rec))

	env.items.err = fmt.Errorf("%w: draft -> published", model.ErrInvalidTransition)
	rec = env.do(jsonRequest(http.MethodPatch, "/items/item-1", `{"status":"published"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidTransition, errorCode(t, rec))

	env.items.err = service.ErrStatusReserved
	rec = env.do(jsonRequest(http.MethodPatch, "/items/item-1", `{"status":"processing"}`))
	assert.Equal(t, CodeInvalidTransition, errorCode(t, rec))

	env.items.err = nil
	rec = env.do(jsonRequest(http.MethodPatch, "/items/item-1", `{"status":"draft"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestItemDelete(t *testing.T) {
	env := newTestEnv(1024)
	rec := env.do(httptest.NewRequest(http.MethodDelete, "/items/item-1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/items/item-1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadAcceptsFilesAndDropsOversized(t *testing.T) {
	env := newTestEnv(8)
	req := multipartRequest(t, "/items/item-1/images", []filePart{
		{field: "images", name: "a.jpg", contentType: "image/jpeg", data: []byte("small")},
		{field: "images", name: "big.jpg", contentType: "image/jpeg", data: bytes.Repeat([]byte("x"), 64)},
		{field: "note", data: []byte("ignored")},
		{field: "images", name: "b.png", contentType: "image/png", data: []byte("tiny")},
	})
	rec := env.do(req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body struct {
		Data UploadAccepted `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "item-1", body.Data.ItemID)
	assert.Equal(t, 2, body.Data.ImageCount)
	assert.Equal(t, "batch-1", body.Data.BatchID)

	require.Len(t, env.ingest.files, 2)
	assert.Equal(t, "a.jpg", env.ingest.files[0].Filename)
	assert.Equal(t, "image/jpeg", env.ingest.files[0].MediaType)
	assert.Equal(t, "image/png", env.ingest.files[1].MediaType)
}

func TestUploadRejections(t *testing.T) {
	env := newTestEnv(1024)

	rec := env.do(jsonRequest(http.MethodPost, "/items/item-1/images", `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeBadRequest, errorCode(t, rec))

	rec = env.do(multipartRequest(t, "/items/item-1/images", []filePart{{field: "note", data: []byte("x")}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(multipartRequest(t, "/items/other/images", []filePart{
		{field: "images", name: "a.jpg", contentType: "image/jpeg", data: []byte("x")},
	}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Nil(t, env.ingest.files)
}

func TestListImages(t *testing.T) {
	env := newTestEnv(1024)
	thumb := "https://example.test/thumb"
	w, h := 640, 480
	env.images.views = []service.ImageView{{
		ItemImage: model.ItemImage{
			ID: "img-1", ItemID: "item-1", StoragePath: "u/item-1/img-1.jpg",
			MimeType: "image/jpeg", SizeBytes: 10, Width: &w, Height: &h,
			CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		URL:          "https://example.test/orig",
		ThumbnailURL: &thumb,
	}}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/items/item-1/images", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []ImageResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "https://example.test/orig", body.Data[0].URL)
	assert.Equal(t, thumb, *body.Data[0].ThumbnailURL)
	assert.Equal(t, 640, *body.Data[0].Width)
	assert.Equal(t, "2024-01-02T03:04:05Z", body.Data[0].CreatedAt)
}

func TestReorderAndDeleteImage(t *testing.T) {
	env := newTestEnv(1024)

	rec := env.do(jsonRequest(http.MethodPatch, "/items/item-1/images/reorder", `{"imageIds":[]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeBadRequest, errorCode(t, rec))

	rec = env.do(jsonRequest(http.MethodPatch, "/items/item-1/images/reorder", `{"imageIds":["b","a"]}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"b", "a"}, env.images.reordered)

	env.images.reorderErr = service.ErrUnknownImage
	rec = env.do(jsonRequest(http.MethodPatch, "/items/item-1/images/reorder", `{"imageIds":["zzz"]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodDelete, "/images/img-1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(httptest.NewRequest(http.MethodDelete, "/images/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListIngestions(t *testing.T) {
	env := newTestEnv(1024)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/items/item-1/ingestions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)
	assert.Contains(t, rec.Body.String(), `"succeeded":2`)
}

func TestAnalyze(t *testing.T) {
	env := newTestEnv(1024)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/items/item-1/analyze", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Vintage camera", body.Data["title"])
	assert.Equal(t, "item-1", body.Data["itemId"])
	assert.NotNil(t, body.Data["pricing"])

	env.analysis.err = service.ErrNoImages
	rec = env.do(httptest.NewRequest(http.MethodPost, "/items/item-1/analyze", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.analysis.err = fmt.Errorf("generate: %w", ai.ErrMalformedResponse)
	rec = env.do(httptest.NewRequest(http.MethodPost, "/items/item-1/analyze", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodeInternal, errorCode(t, rec))
	assert.NotContains(t, rec.Body.String(), "generate")
}

func TestDraftGetAndUpdate(t *testing.T) {
	env := newTestEnv(1024)

	first := env.do(httptest.NewRequest(http.MethodGet, "/items/item-1/draft", nil))
	second := env.do(httptest.NewRequest(http.MethodGet, "/items/item-1/draft", nil))
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())

	rec := env.do(jsonRequest(http.MethodPatch, "/items/item-1/draft", `{"title":"Renamed"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Renamed"`)

	rec = env.do(jsonRequest(http.MethodPatch, "/items/item-1/draft", `{"condition":"Broken"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, errorCode(t, rec))

	env.drafts.err = fmt.Errorf("%w: price range", ai.ErrInvalidListing)
	rec = env.do(jsonRequest(http.MethodPatch, "/items/item-1/draft", `{"title":"x"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, errorCode(t, rec))

	env.drafts.draft = nil
	env.drafts.err = nil
	rec = env.do(httptest.NewRequest(http.MethodGet, "/items/item-1/draft", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPErrorHandlerEnvelope(t *testing.T) {
	env := newTestEnv(1024)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, errorCode(t, rec))

	rec = env.do(httptest.NewRequest(http.MethodPut, "/items/item-1", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, CodeMethodNotAllowed, errorCode(t, rec))
}
