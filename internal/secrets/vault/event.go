package vault

import (
	"context"
	"sync"
)

// event is a resettable completion signal with waiters: Set releases every
// current and future Wait until the next Clear.
type event struct {
	mu  sync.Mutex
	ch  chan struct{}
	set bool
}

func newEvent() *event {
	return &event{ch: make(chan struct{})}
}

func (e *event) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.set {
		e.set = true
		close(e.ch)
	}
}

func (e *event) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set {
		e.set = false
		e.ch = make(chan struct{})
	}
}

func (e *event) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}

func (e *event) Wait(ctx context.Context) error {
	e.mu.Lock()
	ch := e.ch
	e.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
