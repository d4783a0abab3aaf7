package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"sort"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/shinyyama/snaplist-backend/internal/ai"
	"github.com/shinyyama/snaplist-backend/internal/model"
	"github.com/shinyyama/snaplist-backend/internal/repository"
)

type fakeItems struct {
	mu      sync.Mutex
	items   map[string]*model.Item
	history []model.ItemStatus
	images  *fakeImages
	failOn  map[model.ItemStatus]error
}

func newFakeItems() *fakeItems {
	return &fakeItems{items: map[string]*model.Item{}}
}

func (f *fakeItems) add(id, uid string, status model.ItemStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[id] = &model.Item{ID: id, UserID: uid, Status: status, UpdatedAt: time.Now()}
}

func (f *fakeItems) status(id string) model.ItemStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id].Status
}

func (f *fakeItems) Create(_ context.Context, item *model.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *item
	f.items[item.ID] = &cp
	return nil
}

func (f *fakeItems) FindOwned(_ context.Context, id, uid string) (*model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok || it.UserID != uid {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *it
	return &cp, nil
}

func (f *fakeItems) List(_ context.Context, uid string, status *model.ItemStatus, limit, offset int) ([]model.Item, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Item
	for _, it := range f.items {
		if it.UserID == uid && (status == nil || it.Status == *status) {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := int64(len(out))
	if offset >= len(out) {
		return []model.Item{}, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (f *fakeItems) UpdateStatus(_ context.Context, id, uid string, status model.ItemStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok || it.UserID != uid {
		return nil
	}
	if err := f.failOn[status]; err != nil {
		return err
	}
	it.Status = status
	f.history = append(f.history, status)
	return nil
}

func (f *fakeItems) DeleteCascade(ctx context.Context, id, uid string) ([]model.ItemImage, error) {
	f.mu.Lock()
	it, ok := f.items[id]
	if !ok || it.UserID != uid {
		f.mu.Unlock()
		return nil, gorm.ErrRecordNotFound
	}
	delete(f.items, id)
	f.mu.Unlock()
	if f.images == nil {
		return nil, nil
	}
	return f.images.removeItem(id), nil
}

func (f *fakeItems) ResetStale(context.Context, model.ItemStatus, model.ItemStatus, time.Time) (int64, error) {
	return 0, nil
}

type fakeImages struct {
	mu         sync.Mutex
	items      *fakeItems
	images     []model.ItemImage
	failCreate func(img *model.ItemImage) error
}

func newFakeImages(items *fakeItems) *fakeImages {
	f := &fakeImages{items: items}
	items.images = f
	return f
}

func (f *fakeImages) owner(itemID string) string {
	f.items.mu.Lock()
	defer f.items.mu.Unlock()
	if it, ok := f.items.items[itemID]; ok {
		return it.UserID
	}
	return ""
}

func (f *fakeImages) Create(_ context.Context, img *model.ItemImage) error {
	if f.failCreate != nil {
		if err := f.failCreate(img); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, *img)
	return nil
}

func (f *fakeImages) ListByItem(_ context.Context, itemID, uid string) ([]model.ItemImage, error) {
	if f.owner(itemID) != uid {
		return []model.ItemImage{}, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.ItemImage{}
	for _, img := range f.images {
		if img.ItemID == itemID {
			out = append(out, img)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (f *fakeImages) NextOrderIndex(_ context.Context, itemID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := 0
	for _, img := range f.images {
		if img.ItemID == itemID && img.OrderIndex+1 > next {
			next = img.OrderIndex + 1
		}
	}
	return next, nil
}

func (f *fakeImages) FindOwned(_ context.Context, imageID, uid string) (*model.ItemImage, error) {
	f.mu.Lock()
	var found *model.ItemImage
	for i := range f.images {
		if f.images[i].ID == imageID {
			cp := f.images[i]
			found = &cp
		}
	}
	f.mu.Unlock()
	if found == nil || f.owner(found.ItemID) != uid {
		return nil, gorm.ErrRecordNotFound
	}
	return found, nil
}

func (f *fakeImages) Delete(_ context.Context, imageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.images {
		if f.images[i].ID == imageID {
			f.images = append(f.images[:i], f.images[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeImages) Reorder(_ context.Context, itemID string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos := map[string]int{}
	for i, id := range ids {
		pos[id] = i
	}
	for id := range pos {
		found := false
		for _, img := range f.images {
			if img.ID == id && img.ItemID == itemID {
				found = true
			}
		}
		if !found {
			return repository.ErrUnknownImage
		}
	}
	for i := range f.images {
		if p, ok := pos[f.images[i].ID]; ok {
			f.images[i].OrderIndex = p
		}
	}
	return nil
}

func (f *fakeImages) removeItem(itemID string) []model.ItemImage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed, kept []model.ItemImage
	for _, img := range f.images {
		if img.ItemID == itemID {
			removed = append(removed, img)
		} else {
			kept = append(kept, img)
		}
	}
	f.images = kept
	return removed
}

type fakeDrafts struct {
	mu     sync.Mutex
	items  *fakeItems
	drafts map[string]*model.ListingDraft
}

func newFakeDrafts(items *fakeItems) *fakeDrafts {
	return &fakeDrafts{items: items, drafts: map[string]*model.ListingDraft{}}
}

func (f *fakeDrafts) Upsert(_ context.Context, d *model.ListingDraft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if old, ok := f.drafts[d.ItemID]; ok {
		d.ID = old.ID
	}
	cp := *d
	f.drafts[d.ItemID] = &cp
	return nil
}

func (f *fakeDrafts) FindByItem(ctx context.Context, itemID, uid string) (*model.ListingDraft, error) {
	if _, err := f.items.FindOwned(ctx, itemID, uid); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[itemID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDrafts) Update(_ context.Context, d *model.ListingDraft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	f.drafts[d.ItemID] = &cp
	return nil
}

type fakeBatches struct {
	mu      sync.Mutex
	batches map[string]model.IngestionBatch
}

func newFakeBatches() *fakeBatches {
	return &fakeBatches{batches: map[string]model.IngestionBatch{}}
}

func (f *fakeBatches) Create(_ context.Context, b *model.IngestionBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches[b.ID] = *b
	return nil
}

func (f *fakeBatches) Update(_ context.Context, b *model.IngestionBatch) error {
	return f.Create(context.Background(), b)
}

func (f *fakeBatches) get(id string) model.IngestionBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches[id]
}

func (f *fakeBatches) ListByItem(_ context.Context, itemID, uid string, limit int) ([]model.IngestionBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.IngestionBatch
	for _, b := range f.batches {
		if b.ItemID == itemID && b.UserID == uid {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBatches) MarkInterrupted(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeUsers struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (f *fakeUsers) Ensure(_ context.Context, uid string, _ *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	f.seen[uid] = true
	return nil
}

// fakeAnalyzer returns errs in order, then listing.
type fakeAnalyzer struct {
	mu      sync.Mutex
	errs    []error
	listing *ai.Listing
	calls   int
	urls    []string
	started chan struct{}
	release chan struct{}
}

func (f *fakeAnalyzer) Analyze(_ context.Context, urls []string) (*ai.Listing, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.urls = urls
	f.mu.Unlock()
	if f.started != nil && call == 1 {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	if call <= len(f.errs) {
		return nil, f.errs[call-1]
	}
	return f.listing, nil
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func sampleListing() *ai.Listing {
	cat := "11483"
	return &ai.Listing{
		Title:         "Vintage denim jacket",
		Description:   "Classic trucker jacket.",
		Condition:     "Pre-owned",
		ItemSpecifics: map[string]string{"brand": "Levi's"},
		Pricing:       ai.Pricing{Min: 30, Max: 60, Suggested: 45, Confidence: 0.7, Currency: "USD"},
		Keywords:      []string{"denim", "jacket"},
		CategoryID:    &cat,
		VisibleFlaws:  []string{},
		AIConfidence:  0.8,
	}
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}
