package capture

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/zcrtsp/zcrtsp/pkg/camera"
)

type SlotState int32

// re-queue of completed slot is retried before device counts as failed
const requeueAttempts = 3

const (
	SlotIdle SlotState = iota
	SlotQueued
	SlotCompleting
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotQueued:
		return "queued"
	case SlotCompleting:
		return "completing"
	}
	return "unknown"
}

type Stats struct {
	Completed uint64 `json:"completed"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
	Cancelled uint64 `json:"cancelled"`
}

// RequestCycle - keeps one request in flight for every slot of the pool.
// Completed frame is delivered to publisher before its slot is queued again.
type RequestCycle struct {
	cam  camera.Camera
	pool *BufferPool
	pub  Publisher
	log  zerolog.Logger

	// logs stats every N completed frames, zero disable
	LogEvery uint64

	requests []*camera.Request
	states   []atomic.Int32
	stopping atomic.Bool
	fatal    chan error

	completed atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
	cancelled atomic.Uint64
}

func NewRequestCycle(cam camera.Camera, pool *BufferPool, pub Publisher, log zerolog.Logger) *RequestCycle {
	return &RequestCycle{
		cam:    cam,
		pool:   pool,
		pub:    pub,
		log:    log,
		states: make([]atomic.Int32, pool.Len()),
		fatal:  make(chan error, 1),
	}
}

// Start - start camera and queue request for every idle slot
func (c *RequestCycle) Start() error {
	if !c.pool.Mapped() {
		return errors.New("capture: buffers not mapped")
	}

	if c.requests == nil {
		c.requests = make([]*camera.Request, c.pool.Len())
		for i := range c.requests {
			req := c.cam.CreateRequest()
			if err := req.AddBuffer(c.pool.Slot(i).Buffer); err != nil {
				return err
			}
			c.requests[i] = req
		}
	}

	c.stopping.Store(false)

	if err := c.cam.Start(c); err != nil {
		return fmt.Errorf("capture: start camera: %w", err)
	}

	for i, req := range c.requests {
		if c.State(i) != SlotIdle {
			continue
		}
		req.Reuse()
		c.states[i].Store(int32(SlotQueued))
		if err := c.cam.QueueRequest(req); err != nil {
			c.states[i].Store(int32(SlotIdle))
			return errors.Join(fmt.Errorf("capture: queue request %d: %w", i, err), c.Stop())
		}
	}

	c.log.Debug().Msgf("[capture] start with %d buffers", len(c.requests))

	return nil
}

// Stop - stop camera, all queued requests return with cancelled status
// and slots become idle before return
func (c *RequestCycle) Stop() error {
	c.stopping.Store(true)
	return c.cam.Stop()
}

// RequestCompleted - called from camera goroutine
func (c *RequestCycle) RequestCompleted(req *camera.Request) {
	buffer := req.Buffer()

	i, ok := c.pool.IndexOf(buffer)
	if !ok {
		c.log.Warn().Msgf("[capture] request with unknown buffer")
		return
	}

	c.states[i].Store(int32(SlotCompleting))

	switch req.Status() {
	case camera.RequestComplete:
		n := c.completed.Add(1)

		frame := newFrame(c.pool.Slot(i), &buffer.Metadata)

		switch err := Deliver(c.pub, frame); {
		case err == nil:
			c.delivered.Add(1)
		case errors.Is(err, ErrNotReady):
			c.dropped.Add(1)
		default:
			c.dropped.Add(1)
			c.log.Warn().Err(err).Msgf("[capture] drop frame seq=%d", frame.Sequence)
		}

		if c.LogEvery > 0 && n%c.LogEvery == 0 {
			c.log.Debug().Msgf(
				"[capture] frames=%d delivered=%d dropped=%d failed=%d",
				n, c.delivered.Load(), c.dropped.Load(), c.failed.Load(),
			)
		}

	case camera.RequestCancelled:
		c.cancelled.Add(1)

	default:
		c.failed.Add(1)
		c.log.Warn().Msgf("[capture] request %d status=%s", i, req.Status())
	}

	c.recycle(i, req)
}

// DeviceFailed - called from camera goroutine
func (c *RequestCycle) DeviceFailed(err error) {
	c.log.Error().Err(err).Msgf("[capture] device failed")

	select {
	case c.fatal <- err:
	default:
	}
}

// Fatal - device errors, streaming can't continue
func (c *RequestCycle) Fatal() <-chan error {
	return c.fatal
}

func (c *RequestCycle) recycle(i int, req *camera.Request) {
	if c.stopping.Load() {
		c.states[i].Store(int32(SlotIdle))
		return
	}

	var err error
	for attempt := 0; attempt < requeueAttempts; attempt++ {
		req.Reuse()

		c.states[i].Store(int32(SlotQueued))

		if err = c.cam.QueueRequest(req); err == nil {
			return
		}

		c.states[i].Store(int32(SlotIdle))

		if errors.Is(err, camera.ErrNotRunning) || c.stopping.Load() {
			return
		}

		c.log.Warn().Err(err).Msgf("[capture] queue request %d attempt=%d", i, attempt+1)
	}

	// slot left the rotation, streaming can't keep its depth
	c.DeviceFailed(fmt.Errorf("capture: queue request %d: %w", i, err))
}

func (c *RequestCycle) State(i int) SlotState {
	return SlotState(c.states[i].Load())
}

func (c *RequestCycle) Stats() Stats {
	return Stats{
		Completed: c.completed.Load(),
		Delivered: c.delivered.Load(),
		Dropped:   c.dropped.Load(),
		Failed:    c.failed.Load(),
		Cancelled: c.cancelled.Load(),
	}
}
