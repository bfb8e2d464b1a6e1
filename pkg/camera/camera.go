// Package camera - capture devices with request based buffer exchange.
//
// Application allocates buffers once, binds every buffer to a Request and
// queues all requests. Device completes requests from its own goroutine and
// calls Handler. Application reads the buffer and queues the same request
// again after Request.Reuse.
//
// Camera.Stop cancels all queued requests: Handler receives them with
// RequestCancelled status before Stop returns. After Stop the Handler is
// never called again.
package camera

import (
	"errors"
	"time"
)

var (
	ErrNoCamera    = errors.New("camera: no cameras found")
	ErrNotAcquired = errors.New("camera: not acquired")
	ErrNotRunning  = errors.New("camera: not running")
	ErrRunning     = errors.New("camera: already running")
	ErrWrongBuffer = errors.New("camera: buffer doesn't belong to camera")
)

type Camera interface {
	ID() string

	// Acquire - exclusive access to device
	Acquire() error
	Release() error

	// Configure - apply stream config, device can adjust size, stride and frame size
	Configure(cfg *StreamConfig) error

	// Allocate - allocate cfg.BufferCount buffers inside device
	Allocate() ([]*FrameBuffer, error)
	Free() error

	CreateRequest() *Request

	// Start - register handler and start streaming
	Start(handler Handler) error
	QueueRequest(req *Request) error

	// Stop - stop streaming, cancel queued requests, unregister handler
	Stop() error
}

// Handler - owned completion receiver, registered once on Camera.Start
type Handler interface {
	// RequestCompleted - called from device goroutine, one request at a time
	RequestCompleted(req *Request)
	// DeviceFailed - device can't continue streaming (ex. disconnected)
	DeviceFailed(err error)
}

type StreamConfig struct {
	Width       int
	Height      int
	PixelFormat PixelFormat
	FPS         int
	BufferCount int

	// filled by Configure
	Stride    int
	FrameSize int
}

// Plane - memory region of buffer that can be mapped with mmap
type Plane struct {
	Fd     int
	Offset int64
	Length int
}

type FrameMetadata struct {
	Sequence  uint32
	Timestamp time.Duration
	BytesUsed []int // per plane
}

type FrameBuffer struct {
	Planes   []Plane
	Metadata FrameMetadata
}

type RequestStatus byte

const (
	RequestPending RequestStatus = iota
	RequestComplete
	RequestCancelled
	RequestFailed
)

func (s RequestStatus) String() string {
	switch s {
	case RequestPending:
		return "pending"
	case RequestComplete:
		return "complete"
	case RequestCancelled:
		return "cancelled"
	case RequestFailed:
		return "failed"
	}
	return "unknown"
}

type Request struct {
	buffer *FrameBuffer
	status RequestStatus
}

func (r *Request) AddBuffer(buffer *FrameBuffer) error {
	if r.buffer != nil {
		return errors.New("camera: request already has buffer")
	}
	r.buffer = buffer
	return nil
}

func (r *Request) Buffer() *FrameBuffer {
	return r.buffer
}

func (r *Request) Status() RequestStatus {
	return r.status
}

// Reuse - reset request for queuing again with the same buffer
func (r *Request) Reuse() {
	r.status = RequestPending
	if r.buffer != nil {
		r.buffer.Metadata = FrameMetadata{}
	}
}

func (r *Request) complete(status RequestStatus, sequence uint32, ts time.Duration, bytesUsed ...int) {
	r.status = status
	if r.buffer != nil {
		r.buffer.Metadata = FrameMetadata{Sequence: sequence, Timestamp: ts, BytesUsed: bytesUsed}
	}
}
