package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ThumbnailSize is the edge length of generated square thumbnails.
const ThumbnailSize = 300

// ThumbnailQuality is the JPEG quality used for thumbnails.
const ThumbnailQuality = 80

// MaxPixels caps width*height of images we fully decode. Decoders allocate
// the whole pixel buffer from the header before reading any pixel data, so a
// few bytes can otherwise demand gigabytes.
const MaxPixels = 50_000_000

var ErrTooManyPixels = errors.New("image dimensions exceed decode limit")

type Info struct {
	Width  int
	Height int
	Format string
}

// Inspect decodes only the image header.
func Inspect(data []byte) (*Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image config: %w", err)
	}
	return &Info{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Thumbnail center-crops the image to a square and scales it to size x size,
// returning JPEG bytes. Images over MaxPixels are refused before decoding.
func Thumbnail(data []byte, size int) ([]byte, error) {
	if size <= 0 {
		size = ThumbnailSize
	}
	info, err := Inspect(data)
	if err != nil {
		return nil, err
	}
	if info.Width <= 0 || info.Height <= 0 || int64(info.Width)*int64(info.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, info.Width, info.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	src := squareCrop(img.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: ThumbnailQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

func squareCrop(b image.Rectangle) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	if w == h {
		return b
	}
	if w > h {
		off := (w - h) / 2
		return image.Rect(b.Min.X+off, b.Min.Y, b.Min.X+off+h, b.Max.Y)
	}
	off := (h - w) / 2
	return image.Rect(b.Min.X, b.Min.Y+off, b.Max.X, b.Min.Y+off+w)
}
