// Package tasks runs detached background work that outlives the request which
// scheduled it, while keeping it observable and drainable at shutdown.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("task tracker is closed")

type Func func(ctx context.Context) error

type Stats struct {
	Started   int64 `json:"started"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	InFlight  int64 `json:"inFlight"`
}

// Tracker runs tasks on their own goroutines. Tasks sharing a key run one
// after another in submission order; tasks with different keys run
// concurrently.
type Tracker struct {
	ctx context.Context

	mu     sync.Mutex
	tails  map[string]chan struct{}
	stats  Stats
	closed bool
	wg     sync.WaitGroup
}

// New returns a tracker whose tasks run on a context detached from ctx's
// cancellation but carrying its values.
func New(ctx context.Context) *Tracker {
	return &Tracker{
		ctx:   context.WithoutCancel(ctx),
		tails: make(map[string]chan struct{}),
	}
}

func (t *Tracker) Go(key, name string, fn Func) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	prev := t.tails[key]
	done := make(chan struct{})
	t.tails[key] = done
	t.stats.InFlight++
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		t.run(key, name, fn)

		t.mu.Lock()
		if t.tails[key] == done {
			delete(t.tails, key)
		}
		t.mu.Unlock()
	}()
	return nil
}

func (t *Tracker) run(key, name string, fn Func) {
	t.mu.Lock()
	t.stats.Started++
	t.mu.Unlock()

	start := time.Now()
	err := safeCall(t.ctx, fn)

	t.mu.Lock()
	t.stats.InFlight--
	if err != nil {
		t.stats.Failed++
	} else {
		t.stats.Succeeded++
	}
	t.mu.Unlock()

	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	ev.Str("task", name).Str("key", key).Int64("elapsedMs", time.Since(start).Milliseconds()).Msg("task finished")
}

func safeCall(ctx context.Context, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return fn(ctx)
}

func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Shutdown stops accepting tasks and waits for queued ones to finish or for
// ctx to expire.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		s := t.Stats()
		return fmt.Errorf("tasks still in flight (%d): %w", s.InFlight, ctx.Err())
	}
}
