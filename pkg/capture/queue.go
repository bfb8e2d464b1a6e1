package capture

import (
	"sync"
	"sync/atomic"
)

// Queue - bounded frames queue with copy at Push.
// New frame is dropped when queue is full.
type Queue struct {
	frames  chan Frame
	free    sync.Pool
	dropped atomic.Uint64
}

func NewQueue(size int) *Queue {
	return &Queue{frames: make(chan Frame, size)}
}

// Push - copy frame data, false if frame dropped
func (q *Queue) Push(frame Frame) bool {
	b, _ := q.free.Get().([]byte)
	frame.Data = append(b[:0], frame.Data...)

	select {
	case q.frames <- frame:
		return true
	default:
		q.Release(frame)
		q.dropped.Add(1)
		return false
	}
}

func (q *Queue) Frames() <-chan Frame {
	return q.frames
}

// Release - return frame memory after consume
func (q *Queue) Release(frame Frame) {
	//nolint:staticcheck
	q.free.Put(frame.Data[:0])
}

func (q *Queue) Len() int {
	return len(q.frames)
}

func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
