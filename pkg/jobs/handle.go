package jobs

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handle is the caller's reference to a submitted job. It carries two
// independent cancellation mechanisms: a flag the job body polls and an
// optional callback that actively interrupts whatever the body is blocked on.
type Handle struct {
	id       string
	canceled atomic.Bool
	skipped  atomic.Bool

	mu       sync.Mutex
	callback func()
	fired    bool

	done chan struct{}
}

func newHandle() *Handle {
	return &Handle{id: uuid.NewString(), done: make(chan struct{})}
}

// ID returns the job's unique id.
func (h *Handle) ID() string {
	return h.id
}

// IsCanceled reports whether Cancel has been called.
func (h *Handle) IsCanceled() bool {
	return h.canceled.Load()
}

// Skipped reports whether the job was canceled before the worker reached it.
func (h *Handle) Skipped() bool {
	return h.skipped.Load()
}

// SetCancelCallback registers fn to run on Cancel. If the handle is already
// canceled fn runs immediately on the calling goroutine.
func (h *Handle) SetCancelCallback(fn func()) {
	h.mu.Lock()
	if h.canceled.Load() {
		if h.fired || fn == nil {
			h.mu.Unlock()
			return
		}
		h.fired = true
		h.mu.Unlock()
		fn()
		return
	}
	h.callback = fn
	h.mu.Unlock()
}

// Cancel sets the cancel flag and runs the registered callback synchronously.
// Only the first call has any effect.
func (h *Handle) Cancel() {
	h.mu.Lock()
	if h.canceled.Swap(true) {
		h.mu.Unlock()
		return
	}
	fn := h.callback
	h.callback = nil
	h.fired = fn != nil
	h.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Done is closed once the job body has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the job finished or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
