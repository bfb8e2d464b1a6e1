//go:build linux

package camera

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zcrtsp/zcrtsp/pkg/v4l2/device"
	"golang.org/x/sys/unix"
)

const pollTimeout = 100 * time.Millisecond

// V4L2 - capture device with memory-mapped streaming I/O
type V4L2 struct {
	path string
	dev  *device.Device
	cfg  StreamConfig

	index map[*FrameBuffer]uint32

	mu      sync.Mutex
	handler Handler
	queued  map[uint32]*Request
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewV4L2(path string) *V4L2 {
	return &V4L2{path: path}
}

// Devices - list of /dev/videoN paths ordered by number
func Devices() ([]string, error) {
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return nil, err
	}

	var nums []int
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "video") {
			continue
		}
		if i, err := strconv.Atoi(entry.Name()[5:]); err == nil {
			nums = append(nums, i)
		}
	}
	sort.Ints(nums)

	paths := make([]string, len(nums))
	for i, num := range nums {
		paths[i] = "/dev/video" + strconv.Itoa(num)
	}
	return paths, nil
}

// First - first device that support capture with streaming I/O
func First() (Camera, error) {
	paths, err := Devices()
	if err != nil {
		return nil, err
	}

	for _, path := range paths {
		dev, err := device.Open(path)
		if err != nil {
			continue
		}
		caps, err := dev.Capability()
		_ = dev.Close()
		if err == nil && caps.CanStream() {
			return NewV4L2(path), nil
		}
	}

	return nil, ErrNoCamera
}

func (c *V4L2) ID() string {
	return c.path
}

func (c *V4L2) Acquire() error {
	if c.dev != nil {
		return nil
	}

	dev, err := device.Open(c.path)
	if err != nil {
		return fmt.Errorf("v4l2: open %s: %w", c.path, err)
	}

	caps, err := dev.Capability()
	if err != nil {
		_ = dev.Close()
		return fmt.Errorf("v4l2: query capability: %w", err)
	}
	if !caps.CanStream() {
		_ = dev.Close()
		return fmt.Errorf("v4l2: %s (%s) can't stream video", c.path, caps.Card)
	}

	// edge SoC drivers often have only multi-planar API
	dev.SetMultiPlanar(caps.MultiPlanar())

	if err = dev.Lock(); err != nil {
		_ = dev.Close()
		return fmt.Errorf("v4l2: %s is busy: %w", c.path, err)
	}

	c.dev = dev
	return nil
}

func (c *V4L2) Release() error {
	if c.dev == nil {
		return nil
	}
	err := c.dev.Close()
	c.dev = nil
	return err
}

func (c *V4L2) Configure(cfg *StreamConfig) error {
	if c.dev == nil {
		return ErrNotAcquired
	}

	fourCC := cfg.PixelFormat.FourCC()

	pf, err := c.dev.SetFormat(uint32(cfg.Width), uint32(cfg.Height), fourCC)
	if err != nil {
		return fmt.Errorf("v4l2: set format: %w", err)
	}

	if pf.PixelFormat != fourCC {
		formats, _ := c.dev.ListFormats()
		names := make([]string, len(formats))
		for i, f := range formats {
			names[i] = device.FourCC(f)
		}
		return fmt.Errorf(
			"v4l2: pixel format %s not supported, device formats: %s",
			device.FourCC(fourCC), strings.Join(names, ","),
		)
	}

	if cfg.FPS > 0 {
		// many drivers have fixed frame rate
		if err = c.dev.SetParam(uint32(cfg.FPS)); err != nil && !errors.Is(err, unix.ENOTTY) && !errors.Is(err, unix.EINVAL) {
			return fmt.Errorf("v4l2: set fps: %w", err)
		}
	}

	cfg.Width = int(pf.Width)
	cfg.Height = int(pf.Height)
	cfg.Stride = int(pf.BytesPerLine)
	cfg.FrameSize = int(pf.SizeImage)

	c.cfg = *cfg
	return nil
}

// Sizes - discrete frame sizes for configured pixel format
func (c *V4L2) Sizes() ([][2]uint32, error) {
	if c.dev == nil {
		return nil, ErrNotAcquired
	}
	return c.dev.ListSizes(c.cfg.PixelFormat.FourCC())
}

func (c *V4L2) Allocate() ([]*FrameBuffer, error) {
	if c.dev == nil {
		return nil, ErrNotAcquired
	}

	want := uint32(c.cfg.BufferCount)

	n, err := c.dev.RequestBuffers(want)
	if err != nil {
		return nil, fmt.Errorf("v4l2: request buffers: %w", err)
	}
	// driver can increase count up to its minimum, but less means no memory
	if n < want {
		_, _ = c.dev.RequestBuffers(0)
		return nil, fmt.Errorf("v4l2: driver allocated %d of %d buffers", n, want)
	}

	buffers := make([]*FrameBuffer, n)
	c.index = make(map[*FrameBuffer]uint32, n)

	for i := uint32(0); i < n; i++ {
		items, err := c.dev.QueryBuffer(i)
		if err != nil {
			_, _ = c.dev.RequestBuffers(0)
			c.index = nil
			return nil, fmt.Errorf("v4l2: query buffer %d: %w", i, err)
		}

		planes := make([]Plane, len(items))
		for j, item := range items {
			planes[j] = Plane{Fd: c.dev.Fd(), Offset: int64(item.Offset), Length: int(item.Length)}
		}

		buffers[i] = &FrameBuffer{Planes: planes}
		c.index[buffers[i]] = i
	}

	return buffers, nil
}

// Free - release driver buffers, all mappings must be unmapped before
func (c *V4L2) Free() error {
	if c.dev == nil || c.index == nil {
		return nil
	}
	c.index = nil
	if _, err := c.dev.RequestBuffers(0); err != nil {
		return fmt.Errorf("v4l2: free buffers: %w", err)
	}
	return nil
}

func (c *V4L2) CreateRequest() *Request {
	return &Request{}
}

func (c *V4L2) Start(handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev == nil {
		return ErrNotAcquired
	}
	if c.running {
		return ErrRunning
	}

	if err := c.dev.StreamOn(); err != nil {
		return fmt.Errorf("v4l2: stream on: %w", err)
	}

	c.handler = handler
	c.queued = make(map[uint32]*Request, len(c.index))
	c.running = true
	c.done = make(chan struct{})

	c.wg.Add(1)
	go c.worker(handler, c.done)

	return nil
}

func (c *V4L2) QueueRequest(req *Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return ErrNotRunning
	}

	i, ok := c.index[req.buffer]
	if !ok {
		return ErrWrongBuffer
	}

	req.status = RequestPending
	c.queued[i] = req

	if err := c.dev.QueueBuffer(i); err != nil {
		delete(c.queued, i)
		return fmt.Errorf("v4l2: queue buffer %d: %w", i, err)
	}

	return nil
}

func (c *V4L2) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.done)
	c.mu.Unlock()

	// wait current completion, handler can call QueueRequest inside
	c.wg.Wait()

	err := c.dev.StreamOff()

	c.mu.Lock()
	handler := c.handler
	requests := make([]*Request, 0, len(c.queued))
	for _, req := range c.queued {
		requests = append(requests, req)
	}
	c.queued = nil
	c.mu.Unlock()

	for _, req := range requests {
		req.complete(RequestCancelled, 0, 0)
		handler.RequestCompleted(req)
	}

	c.mu.Lock()
	c.handler = nil
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("v4l2: stream off: %w", err)
	}
	return nil
}

func (c *V4L2) worker(handler Handler, done <-chan struct{}) {
	defer c.wg.Done()

	for {
		select {
		case <-done:
			return
		default:
		}

		ok, err := c.dev.Poll(pollTimeout)
		if err != nil {
			handler.DeviceFailed(fmt.Errorf("v4l2: poll: %w", err))
			return
		}
		if !ok {
			continue
		}

		for {
			buf, err := c.dev.DequeueBuffer()
			if err != nil {
				if errors.Is(err, unix.EAGAIN) {
					break
				}
				handler.DeviceFailed(fmt.Errorf("v4l2: dequeue buffer: %w", err))
				return
			}

			c.mu.Lock()
			req := c.queued[buf.Index]
			delete(c.queued, buf.Index)
			c.mu.Unlock()

			if req == nil {
				continue
			}

			status := RequestComplete
			if buf.Error() {
				status = RequestFailed
			}
			req.complete(status, buf.Sequence, buf.Timestamp, bytesUsed(buf.BytesUsed)...)

			handler.RequestCompleted(req)
		}
	}
}

func bytesUsed(planes []uint32) []int {
	used := make([]int, len(planes))
	for i, n := range planes {
		used[i] = int(n)
	}
	return used
}
