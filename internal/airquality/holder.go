package airquality

import (
	"context"
	"sync"
	"sync/atomic"
)

// ModelHolder publishes a Model once it has been built. Readers never block:
// Get returns ErrModelNotReady until Set has been called.
type ModelHolder struct {
	model atomic.Pointer[Model]
	ready chan struct{}
	once  sync.Once
}

// NewModelHolder creates an empty holder.
func NewModelHolder() *ModelHolder {
	return &ModelHolder{ready: make(chan struct{})}
}

// Set publishes m. Only the first call takes effect; it reports whether m
// was stored.
func (h *ModelHolder) Set(m *Model) bool {
	if m == nil {
		return false
	}
	if !h.model.CompareAndSwap(nil, m) {
		return false
	}
	h.once.Do(func() { close(h.ready) })
	return true
}

// Get returns the published model or ErrModelNotReady.
func (h *ModelHolder) Get() (*Model, error) {
	m := h.model.Load()
	if m == nil {
		return nil, ErrModelNotReady
	}
	return m, nil
}

// Ready reports whether a model has been published.
func (h *ModelHolder) Ready() bool {
	return h.model.Load() != nil
}

// Wait blocks until a model is published or ctx is done.
func (h *ModelHolder) Wait(ctx context.Context) (*Model, error) {
	select {
	case <-h.ready:
		return h.model.Load(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
