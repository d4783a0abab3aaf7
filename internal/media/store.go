package media

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultSignedURLTTL outlasts an AI round trip including retries.
const DefaultSignedURLTTL = time.Hour

var ErrObjectExists = errors.New("object already exists")

// Store is the object storage collaborator holding raw image bytes.
type Store interface {
	// Put writes data under key and fails with ErrObjectExists instead of
	// overwriting an existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
	// DeleteMany attempts every key and joins the failures.
	DeleteMany(ctx context.Context, keys []string) error
	Close() error
}

func OriginalKey(userID, itemID, imageID, ext string) string {
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("%s/%s/original_%s.%s", userID, itemID, imageID, ext)
}

func ThumbnailKey(userID, itemID, imageID string) string {
	return fmt.Sprintf("%s/%s/thumbnail_%s.jpg", userID, itemID, imageID)
}
