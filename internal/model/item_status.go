package model

import (
	"errors"
	"fmt"
	"strings"
)

type ItemStatus string

const (
	ItemStatusDraft      ItemStatus = "draft"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusReady      ItemStatus = "ready"
	ItemStatusPublished  ItemStatus = "published"
)

var ErrInvalidStatus = errors.New("invalid item status")
var ErrInvalidTransition = errors.New("invalid status transition")

// transitions lists the legal edges. Staying in the same state is always allowed.
var transitions = map[ItemStatus][]ItemStatus{
	ItemStatusDraft:      {ItemStatusProcessing},
	ItemStatusProcessing: {ItemStatusReady, ItemStatusDraft},
	ItemStatusReady:      {ItemStatusProcessing, ItemStatusPublished, ItemStatusDraft},
	ItemStatusPublished:  {ItemStatusReady, ItemStatusDraft},
}

func ItemStatuses() []ItemStatus {
	return []ItemStatus{ItemStatusDraft, ItemStatusProcessing, ItemStatusReady, ItemStatusPublished}
}

func (s ItemStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func ParseItemStatus(raw string) (ItemStatus, error) {
	s := ItemStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// CanTransition reports whether an item in status from may move to status to.
func CanTransition(from, to ItemStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ValidateTransition(from, to ItemStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
