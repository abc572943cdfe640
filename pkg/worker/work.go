package worker

import (
	"errors"
	"sync"
)

// Work collects background tasks spawned while handling an event. The
// response path never waits on it; the event host does, so tasks like
// cache writes can outlive the reply without outliving the event.
type Work struct {
	wg sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

// NewWork returns an empty Work handle. Wait on an empty handle returns
// immediately.
func NewWork() *Work {
	return &Work{}
}

// Go registers fn as a background task and runs it on its own
// goroutine. Errors are collected for Wait, not delivered to the task's
// spawner.
func (w *Work) Go(fn func() error) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := fn(); err != nil {
			w.mu.Lock()
			w.errs = append(w.errs, err)
			w.mu.Unlock()
		}
	}()
}

// Wait blocks until every registered task has finished and returns
// their joined errors, if any.
func (w *Work) Wait() error {
	w.wg.Wait()
	w.mu.Lock()
	defer w.mu.Unlock()
	return errors.Join(w.errs...)
}
