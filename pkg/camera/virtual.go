//go:build linux

package camera

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Virtual - test pattern camera with memfd buffers. Every frame starts with
// little-endian uint32 sequence number, the rest is filled with a single
// byte that changes every frame.
type Virtual struct {
	// Interval - time between frames, zero means 1/fps, negative means manual Tick
	Interval time.Duration
	// MaxBuffers - limit of device memory, zero means unlimited
	MaxBuffers int
	// FailEvery - every N-th frame completes with RequestFailed status
	FailEvery int

	cfg      StreamConfig
	acquired bool

	buffers []*FrameBuffer
	memory  [][]byte // device side mappings
	index   map[*FrameBuffer]int

	mu       sync.Mutex
	handler  Handler
	queue    []*Request
	running  bool
	done     chan struct{}
	wg       sync.WaitGroup
	sequence uint32
	start    time.Time
}

func NewVirtual() *Virtual {
	return &Virtual{}
}

func (c *Virtual) ID() string {
	return VirtualID
}

func (c *Virtual) Acquire() error {
	if c.acquired {
		return errors.New("virtual: already acquired")
	}
	c.acquired = true
	return nil
}

func (c *Virtual) Release() error {
	c.acquired = false
	return nil
}

func (c *Virtual) Configure(cfg *StreamConfig) error {
	if !c.acquired {
		return ErrNotAcquired
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("virtual: wrong size %dx%d", cfg.Width, cfg.Height)
	}

	cfg.Stride = cfg.PixelFormat.Stride(cfg.Width)
	cfg.FrameSize = cfg.PixelFormat.FrameSize(cfg.Width, cfg.Height)
	if cfg.FrameSize == 0 {
		return fmt.Errorf("virtual: unsupported pixel format: %s", cfg.PixelFormat)
	}

	c.cfg = *cfg
	return nil
}

func (c *Virtual) Allocate() ([]*FrameBuffer, error) {
	if !c.acquired {
		return nil, ErrNotAcquired
	}
	if c.cfg.FrameSize == 0 {
		return nil, errors.New("virtual: not configured")
	}
	if c.MaxBuffers > 0 && c.cfg.BufferCount > c.MaxBuffers {
		return nil, fmt.Errorf("virtual: can't allocate %d buffers, max %d", c.cfg.BufferCount, c.MaxBuffers)
	}

	// length aligned to page like real drivers do
	page := os.Getpagesize()
	length := (c.cfg.FrameSize + page - 1) / page * page

	c.index = make(map[*FrameBuffer]int, c.cfg.BufferCount)

	for i := 0; i < c.cfg.BufferCount; i++ {
		fd, err := unix.MemfdCreate("virtual-frame", unix.MFD_CLOEXEC)
		if err != nil {
			_ = c.Free()
			return nil, fmt.Errorf("virtual: memfd: %w", err)
		}

		buffer := &FrameBuffer{Planes: []Plane{{Fd: fd, Length: length}}}
		c.buffers = append(c.buffers, buffer)
		c.index[buffer] = i

		if err = unix.Ftruncate(fd, int64(length)); err != nil {
			_ = c.Free()
			return nil, fmt.Errorf("virtual: truncate: %w", err)
		}

		mem, err := unix.Mmap(fd, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			_ = c.Free()
			return nil, fmt.Errorf("virtual: mmap: %w", err)
		}
		c.memory = append(c.memory, mem)
	}

	return c.buffers, nil
}

func (c *Virtual) Free() error {
	var errs []error
	for _, mem := range c.memory {
		errs = append(errs, unix.Munmap(mem))
	}
	for _, buffer := range c.buffers {
		errs = append(errs, unix.Close(buffer.Planes[0].Fd))
	}
	c.memory = nil
	c.buffers = nil
	c.index = nil
	return errors.Join(errs...)
}

func (c *Virtual) CreateRequest() *Request {
	return &Request{}
}

func (c *Virtual) Start(handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.acquired {
		return ErrNotAcquired
	}
	if c.running {
		return ErrRunning
	}

	c.handler = handler
	c.running = true
	c.done = make(chan struct{})
	c.start = time.Now()

	interval := c.Interval
	if interval == 0 {
		interval = time.Second / time.Duration(max(c.cfg.FPS, 1))
	}
	if interval > 0 {
		c.wg.Add(1)
		go c.worker(interval, c.done)
	}

	return nil
}

func (c *Virtual) QueueRequest(req *Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return ErrNotRunning
	}
	if _, ok := c.index[req.buffer]; !ok {
		return ErrWrongBuffer
	}

	req.status = RequestPending
	c.queue = append(c.queue, req)
	return nil
}

// Queued - number of requests waiting for completion
func (c *Virtual) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Tick - complete oldest queued request on caller goroutine,
// false if camera not running or nothing queued
func (c *Virtual) Tick() bool {
	c.mu.Lock()
	if !c.running || len(c.queue) == 0 {
		c.mu.Unlock()
		return false
	}

	req := c.queue[0]
	c.queue = c.queue[1:]
	c.sequence++
	sequence := c.sequence
	handler := c.handler

	c.wg.Add(1)
	c.mu.Unlock()

	defer c.wg.Done()

	ts := time.Since(c.start)

	if c.FailEvery > 0 && sequence%uint32(c.FailEvery) == 0 {
		req.complete(RequestFailed, sequence, ts)
	} else {
		mem := c.memory[c.index[req.buffer]]
		render(mem[:c.cfg.FrameSize], sequence)
		req.complete(RequestComplete, sequence, ts, c.cfg.FrameSize)
	}

	handler.RequestCompleted(req)

	return true
}

func (c *Virtual) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.done)
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	handler := c.handler
	requests := c.queue
	c.queue = nil
	c.mu.Unlock()

	for _, req := range requests {
		req.complete(RequestCancelled, 0, 0)
		handler.RequestCompleted(req)
	}

	c.mu.Lock()
	c.handler = nil
	c.mu.Unlock()

	return nil
}

func (c *Virtual) worker(interval time.Duration, done <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

func render(b []byte, sequence uint32) {
	if len(b) <= 4 {
		return
	}
	binary.LittleEndian.PutUint32(b, sequence)

	p := b[4:]
	p[0] = byte(sequence * 8)
	for n := 1; n < len(p); n *= 2 {
		copy(p[n:], p[:n])
	}
}
