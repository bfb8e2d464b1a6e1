//go:build linux

package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/zcrtsp/zcrtsp/pkg/camera"
	"golang.org/x/sys/unix"
)

type testPublisher struct {
	mu      sync.Mutex
	ready   bool
	frames  []Frame
	onFrame func(frame Frame) error
}

func (p *testPublisher) ConfigureExpectedFormat(int, int, int, camera.PixelFormat) error {
	return nil
}

func (p *testPublisher) IsReady() bool {
	return p.ready
}

func (p *testPublisher) Accept(frame Frame) error {
	// save frame without data, data is valid only inside Accept
	p.mu.Lock()
	p.frames = append(p.frames, Frame{Index: frame.Index, Sequence: frame.Sequence, Data: make([]byte, frame.Len())})
	p.mu.Unlock()

	if p.onFrame != nil {
		return p.onFrame(frame)
	}
	return nil
}

func newCapture(t *testing.T, count int, pub Publisher) (*Capture, *camera.Virtual) {
	cfg := VideoConfig{
		Width: 64, Height: 48, FPS: 30, PixelFormat: "BGR888", BufferCount: count, Device: camera.VirtualID,
	}

	c := New(cfg, zerolog.Nop())
	require.Nil(t, c.Initialize())

	cam := c.Camera().(*camera.Virtual)
	cam.Interval = -1

	require.Nil(t, c.Start(pub))

	t.Cleanup(func() {
		_ = c.Stop()
		_ = c.Close()
	})

	return c, cam
}

func countUnmaps(t *testing.T) *int {
	var n int
	munmap = func(b []byte) error {
		n++
		return unix.Munmap(b)
	}
	t.Cleanup(func() {
		munmap = unix.Munmap
	})
	return &n
}

func requireStates(t *testing.T, cycle *RequestCycle, states ...SlotState) {
	for i, state := range states {
		require.Equal(t, state, cycle.State(i), "slot %d", i)
	}
}

func TestCycleThreeBuffers(t *testing.T) {
	pub := &testPublisher{ready: true}
	c, cam := newCapture(t, 3, pub)

	requireStates(t, c.Cycle(), SlotQueued, SlotQueued, SlotQueued)

	for i := 0; i < 10; i++ {
		require.True(t, cam.Tick())
		// every slot back to device after delivery
		require.Equal(t, 3, cam.Queued())
	}

	require.Len(t, pub.frames, 10)
	for i, frame := range pub.frames {
		require.Equal(t, i%3, frame.Index)
		require.Equal(t, uint32(i+1), frame.Sequence)
		// frame length is bytes used, not buffer length
		require.Equal(t, 64*48*3, frame.Len())
	}

	stats := c.Stats()
	require.Equal(t, uint64(10), stats.Completed)
	require.Equal(t, uint64(10), stats.Delivered)
}

func TestCycleSlotInvariant(t *testing.T) {
	pub := &testPublisher{ready: true}
	c, cam := newCapture(t, 3, pub)

	pub.onFrame = func(frame Frame) error {
		// frame memory is the slot mapping itself
		slot := c.Pool().Slot(frame.Index)
		require.True(t, &slot.Planes[0][0] == &frame.Data[0])
		require.Equal(t, frame.Sequence, binary.LittleEndian.Uint32(frame.Data))

		for i := 0; i < 3; i++ {
			if i == frame.Index {
				require.Equal(t, SlotCompleting, c.Cycle().State(i))
			} else {
				require.Equal(t, SlotQueued, c.Cycle().State(i))
			}
		}
		return nil
	}

	for i := 0; i < 6; i++ {
		require.True(t, cam.Tick())
	}
	requireStates(t, c.Cycle(), SlotQueued, SlotQueued, SlotQueued)
}

func TestCycleNotReady(t *testing.T) {
	pub := &testPublisher{}
	c, cam := newCapture(t, 3, pub)

	for i := 0; i < 5; i++ {
		require.True(t, cam.Tick())
	}

	require.Len(t, pub.frames, 0)
	require.Equal(t, 3, cam.Queued())
	require.Equal(t, uint64(5), c.Stats().Dropped)
}

func TestCycleFlowError(t *testing.T) {
	pub := &testPublisher{ready: true}
	c, cam := newCapture(t, 3, pub)

	pub.onFrame = func(frame Frame) error {
		if frame.Sequence == 2 {
			return &FlowError{Err: errors.New("pipe is full")}
		}
		return nil
	}

	for i := 0; i < 4; i++ {
		require.True(t, cam.Tick())
	}

	require.Len(t, pub.frames, 4)
	require.Equal(t, uint32(3), pub.frames[2].Sequence)

	stats := c.Stats()
	require.Equal(t, uint64(3), stats.Delivered)
	require.Equal(t, uint64(1), stats.Dropped)
	require.Equal(t, 3, cam.Queued())
}

func TestCycleFailedRequest(t *testing.T) {
	pub := &testPublisher{ready: true}
	c, cam := newCapture(t, 3, pub)
	cam.FailEvery = 2

	for i := 0; i < 4; i++ {
		require.True(t, cam.Tick())
	}

	require.Len(t, pub.frames, 2)
	require.Equal(t, uint64(2), c.Stats().Failed)
	require.Equal(t, 3, cam.Queued())
}

func TestStopWithOutstanding(t *testing.T) {
	unmaps := countUnmaps(t)

	pub := &testPublisher{ready: true}
	c, cam := newCapture(t, 3, pub)

	entered := make(chan struct{})
	release := make(chan struct{})
	pub.onFrame = func(frame Frame) error {
		close(entered)
		<-release
		return nil
	}

	// 1. one frame inside publisher, two requests outstanding
	go cam.Tick()
	<-entered
	requireStates(t, c.Cycle(), SlotCompleting, SlotQueued, SlotQueued)

	// 2. stop waits delivered frame
	stopped := make(chan error)
	go func() {
		stopped <- c.Stop()
	}()

	select {
	case <-stopped:
		t.Fatal("stop before frame delivered")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.Nil(t, <-stopped)

	// 3. outstanding requests drained with cancellation
	require.Equal(t, uint64(2), c.Stats().Cancelled)
	require.Equal(t, uint64(1), c.Stats().Delivered)
	requireStates(t, c.Cycle(), SlotIdle, SlotIdle, SlotIdle)
	require.Equal(t, 0, cam.Queued())

	// 4. double stop is no-op
	require.Nil(t, c.Stop())

	// 5. unmap exactly once
	require.Equal(t, 0, *unmaps)
	require.Nil(t, c.Close())
	require.Equal(t, 3, *unmaps)
	require.Nil(t, c.Close())
	require.Equal(t, 3, *unmaps)
}

func TestStartStop(t *testing.T) {
	pub := &testPublisher{ready: true}
	c, cam := newCapture(t, 4, pub)

	require.Nil(t, c.Stop())
	require.Equal(t, uint64(4), c.Stats().Cancelled)
	require.False(t, cam.Tick())

	// capture can be restarted with same requests
	require.Nil(t, c.Cycle().Start())
	require.Equal(t, 4, cam.Queued())
	require.True(t, cam.Tick())
	require.Len(t, pub.frames, 1)
}

func TestInvalidPixelFormat(t *testing.T) {
	var buf bytes.Buffer

	cfg := VideoConfig{
		Width: 64, Height: 48, FPS: 30, PixelFormat: "INVALID", BufferCount: 3, Device: camera.VirtualID,
	}
	c := New(cfg, zerolog.New(&buf))
	require.Nil(t, c.Initialize())
	defer c.Close()

	require.Equal(t, camera.BGR888, c.Stream().PixelFormat)
	require.Equal(t, 64*48*3, c.Stream().FrameSize)
	require.Contains(t, buf.String(), `"level":"warn"`)
	require.Contains(t, buf.String(), "INVALID")
}

func TestVideoConfig(t *testing.T) {
	cfg := DefaultVideoConfig()
	require.Nil(t, cfg.Validate())

	format, ok := cfg.Format()
	require.True(t, ok)
	require.Equal(t, camera.BGR888, format)

	cfg.PixelFormat = "YUV420"
	format, ok = cfg.Format()
	require.True(t, ok)
	require.Equal(t, camera.YUV420, format)

	cfg.PixelFormat = ""
	format, ok = cfg.Format()
	require.False(t, ok)
	require.Equal(t, camera.BGR888, format)

	cfg.FPS = 0
	require.NotNil(t, cfg.Validate())

	cfg = DefaultVideoConfig()
	cfg.BufferCount = 0
	require.NotNil(t, cfg.Validate())
}

func TestInitializeNoPool(t *testing.T) {
	c := New(DefaultVideoConfig(), zerolog.Nop())
	require.ErrorIs(t, c.Start(&testPublisher{}), ErrNotRunning)
	require.Nil(t, c.Stop())
	require.Nil(t, c.Close())
	require.Nil(t, c.Fatal())
}

// flakyCamera rejects the next fails requests
type flakyCamera struct {
	*camera.Virtual
	fails int
}

func (c *flakyCamera) QueueRequest(req *camera.Request) error {
	if c.fails > 0 {
		c.fails--
		return unix.EIO
	}
	return c.Virtual.QueueRequest(req)
}

func newFlakyCycle(t *testing.T, count int) (*RequestCycle, *flakyCamera) {
	cam := &flakyCamera{Virtual: camera.NewVirtual()}
	cam.Interval = -1
	require.Nil(t, cam.Acquire())

	stream := camera.StreamConfig{Width: 64, Height: 48, PixelFormat: camera.BGR888, FPS: 30, BufferCount: count}
	require.Nil(t, cam.Configure(&stream))

	pool, err := Allocate(cam, count)
	require.Nil(t, err)
	require.Nil(t, pool.MapAll())

	cycle := NewRequestCycle(cam, pool, &testPublisher{ready: true}, zerolog.Nop())
	require.Nil(t, cycle.Start())

	t.Cleanup(func() {
		_ = cycle.Stop()
		_ = pool.UnmapAll()
		_ = pool.Free()
		_ = cam.Release()
	})

	return cycle, cam
}

func TestCycleRequeueRetry(t *testing.T) {
	cycle, cam := newFlakyCycle(t, 3)
	requireStates(t, cycle, SlotQueued, SlotQueued, SlotQueued)

	cam.fails = 1

	for i := 0; i < 21; i++ {
		require.True(t, cam.Tick())
		require.Equal(t, 3, cam.Queued())
	}

	requireStates(t, cycle, SlotQueued, SlotQueued, SlotQueued)
	require.Equal(t, uint64(21), cycle.Stats().Delivered)
	require.Zero(t, cam.fails)

	select {
	case err := <-cycle.Fatal():
		t.Fatalf("unexpected fatal: %v", err)
	default:
	}
}

func TestCycleRequeueFatal(t *testing.T) {
	cycle, cam := newFlakyCycle(t, 1)

	cam.fails = requeueAttempts

	require.True(t, cam.Tick())
	require.Equal(t, SlotIdle, cycle.State(0))

	select {
	case err := <-cycle.Fatal():
		require.ErrorIs(t, err, unix.EIO)
	case <-time.After(time.Second):
		t.Fatal("slot lost without fatal")
	}
}
