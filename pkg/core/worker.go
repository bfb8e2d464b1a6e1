package core

import (
	"sync"
	"time"
)

// Worker - run function by timer until Stop
type Worker struct {
	timer *time.Timer
	done  chan struct{}
	once  sync.Once
}

// NewWorker run f after d, f returns delay for next run, zero delay stop worker
func NewWorker(d time.Duration, f func() time.Duration) *Worker {
	timer := time.NewTimer(d)
	done := make(chan struct{})

	go func() {
		defer timer.Stop()

		for {
			select {
			case <-timer.C:
				if d = f(); d <= 0 {
					return
				}
				timer.Reset(d)
			case <-done:
				return
			}
		}
	}()

	return &Worker{timer: timer, done: done}
}

// Do - instant timer run
func (w *Worker) Do() {
	if w == nil {
		return
	}
	w.timer.Reset(0)
}

// Stop - can be called many times
func (w *Worker) Stop() {
	if w == nil {
		return
	}

	w.once.Do(func() {
		close(w.done)
	})
}
