package service

import (
	"errors"

	"github.com/shinyyama/snaplist-backend/internal/repository"
	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrNoImages     = errors.New("item has no images")
	ErrNoFiles      = errors.New("no files provided")
	ErrEmptyReorder = errors.New("imageIds must not be empty")
	ErrUnknownImage = repository.ErrUnknownImage
	// ErrStatusReserved rejects caller-driven moves into processing, which
	// only the analysis flow may set.
	ErrStatusReserved = errors.New("status is managed by analysis")
)

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
