package ai

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Image is one photo downloaded for inline submission to the model.
type Image struct {
	Data     []byte
	MimeType string
}

type ImageSource interface {
	Fetch(ctx context.Context, url string) (Image, error)
}

// ImageFetcher downloads signed image URLs.
type ImageFetcher struct {
	client   *resty.Client
	maxBytes int64
}

func NewImageFetcher(timeout time.Duration, maxBytes int64) *ImageFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "image/*")
	return &ImageFetcher{client: c, maxBytes: maxBytes}
}

func (f *ImageFetcher) Fetch(ctx context.Context, url string) (Image, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return Image{}, fmt.Errorf("fetch image: %w", err)
	}
	if resp.IsError() {
		return Image{}, &StatusError{URL: redact(url), Code: resp.StatusCode()}
	}
	body := resp.Body()
	if f.maxBytes > 0 && int64(len(body)) > f.maxBytes {
		return Image{}, fmt.Errorf("fetch image: %d bytes exceeds %d", len(body), f.maxBytes)
	}

	mt, _, err := mime.ParseMediaType(resp.Header().Get("Content-Type"))
	if err != nil || mt == "" || mt == "application/octet-stream" {
		mt = http.DetectContentType(body)
	}
	return Image{Data: body, MimeType: mt}, nil
}

// redact strips the query so signatures never reach logs.
func redact(raw string) string {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '?' {
			return raw[:i]
		}
	}
	return raw
}
