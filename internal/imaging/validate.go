package imaging

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

// DefaultMaxBytes is the per-file ceiling applied when none is configured.
const DefaultMaxBytes int64 = 10 * 1024 * 1024

var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrPayloadTooLarge      = errors.New("payload too large")
)

// allowedMIME maps accepted declared types to their canonical form.
// image/jpg is not registered but some mobile clients send it.
var allowedMIME = map[string]string{
	"image/jpeg": "image/jpeg",
	"image/jpg":  "image/jpeg",
	"image/png":  "image/png",
	"image/webp": "image/webp",
}

// NormalizeMediaType lower-cases the type and strips parameters.
func NormalizeMediaType(mediaType string) string {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}
	if canonical, ok := allowedMIME[mt]; ok {
		return canonical
	}
	return mt
}

// Validate checks a declared media type and byte length against policy.
// It has no side effects and must run before any upload.
func Validate(mediaType string, size, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}
	if _, ok := allowedMIME[mt]; !ok {
		return fmt.Errorf("%w: %q (allowed: image/jpeg, image/png, image/webp)", ErrUnsupportedMediaType, mediaType)
	}
	if size > maxBytes {
		return fmt.Errorf("%w: %.2fMB exceeds %.2fMB", ErrPayloadTooLarge, float64(size)/1024/1024, float64(maxBytes)/1024/1024)
	}
	return nil
}

// Extension returns the lower-cased extension of filename without the dot,
// falling back to one derived from the media type.
func Extension(filename, mediaType string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 && i < len(filename)-1 {
		ext := strings.ToLower(filename[i+1:])
		if !strings.ContainsAny(ext, "/\\ ") {
			return ext
		}
	}
	switch NormalizeMediaType(mediaType) {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	default:
		return "jpg"
	}
}
