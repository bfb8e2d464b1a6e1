//go:build linux

package camera

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type testHandler struct {
	mu       sync.Mutex
	statuses []RequestStatus
	failed   error
	onDone   func(req *Request)
}

func (h *testHandler) RequestCompleted(req *Request) {
	h.mu.Lock()
	h.statuses = append(h.statuses, req.Status())
	h.mu.Unlock()
	if h.onDone != nil {
		h.onDone(req)
	}
}

func (h *testHandler) DeviceFailed(err error) {
	h.failed = err
}

func newVirtual(t *testing.T, count int) (*Virtual, []*FrameBuffer) {
	cam := NewVirtual()
	cam.Interval = -1

	require.Nil(t, cam.Acquire())

	cfg := &StreamConfig{Width: 64, Height: 48, PixelFormat: BGR888, FPS: 30, BufferCount: count}
	require.Nil(t, cam.Configure(cfg))
	require.Equal(t, 64*3, cfg.Stride)
	require.Equal(t, 64*48*3, cfg.FrameSize)

	buffers, err := cam.Allocate()
	require.Nil(t, err)
	require.Len(t, buffers, count)

	t.Cleanup(func() {
		_ = cam.Free()
		_ = cam.Release()
	})

	return cam, buffers
}

func TestParsePixelFormat(t *testing.T) {
	for _, format := range PixelFormats {
		f, err := ParsePixelFormat(string(format))
		require.Nil(t, err)
		require.Equal(t, format, f)
		require.NotZero(t, f.FourCC())
		require.NotEmpty(t, f.FFmpeg())
		require.NotEmpty(t, f.GStreamer())
	}

	_, err := ParsePixelFormat("INVALID")
	require.NotNil(t, err)

	require.Equal(t, "bgr24", BGR888.FFmpeg())
	require.Equal(t, "I420", YUV420.GStreamer())
	require.Equal(t, 1920*1080*3/2, YUV420.FrameSize(1920, 1080))
}

func TestVirtualCycle(t *testing.T) {
	cam, buffers := newVirtual(t, 3)

	h := &testHandler{}
	require.Nil(t, cam.Start(h))

	// 1. queue request for every buffer
	requests := make([]*Request, len(buffers))
	for i, buffer := range buffers {
		requests[i] = cam.CreateRequest()
		require.Nil(t, requests[i].AddBuffer(buffer))
		require.NotNil(t, requests[i].AddBuffer(buffer))
		require.Nil(t, cam.QueueRequest(requests[i]))
	}
	require.Equal(t, 3, cam.Queued())

	// 2. complete requests in queue order
	var seen []*Request
	h.onDone = func(req *Request) {
		seen = append(seen, req)
	}
	require.True(t, cam.Tick())
	require.True(t, cam.Tick())
	require.Equal(t, requests[:2], seen)
	require.Equal(t, []RequestStatus{RequestComplete, RequestComplete}, h.statuses)

	meta := requests[1].Buffer().Metadata
	require.Equal(t, uint32(2), meta.Sequence)
	require.Equal(t, []int{64 * 48 * 3}, meta.BytesUsed)
	require.Greater(t, buffers[0].Planes[0].Length, meta.BytesUsed[0])

	// 3. frame is visible through another mapping
	plane := buffers[1].Planes[0]
	mem, err := unix.Mmap(plane.Fd, plane.Offset, plane.Length, unix.PROT_READ, unix.MAP_SHARED)
	require.Nil(t, err)
	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(mem))
	require.Nil(t, unix.Munmap(mem))

	// 4. reuse same request
	requests[0].Reuse()
	require.Equal(t, RequestPending, requests[0].Status())
	require.Nil(t, requests[0].Buffer().Metadata.BytesUsed)
	require.Nil(t, cam.QueueRequest(requests[0]))

	// 5. stop cancel everything queued
	h.onDone = nil
	require.Nil(t, cam.Stop())
	require.Equal(t, []RequestStatus{
		RequestComplete, RequestComplete, RequestCancelled, RequestCancelled,
	}, h.statuses)

	require.Nil(t, cam.Stop())
	require.False(t, cam.Tick())
	require.ErrorIs(t, cam.QueueRequest(requests[0]), ErrNotRunning)
}

func TestVirtualFailEvery(t *testing.T) {
	cam, buffers := newVirtual(t, 1)
	cam.FailEvery = 2

	req := cam.CreateRequest()
	require.Nil(t, req.AddBuffer(buffers[0]))

	h := &testHandler{}
	h.onDone = func(req *Request) {
		req.Reuse()
		_ = cam.QueueRequest(req)
	}
	require.Nil(t, cam.Start(h))
	require.Nil(t, cam.QueueRequest(req))

	for i := 0; i < 4; i++ {
		require.True(t, cam.Tick())
	}
	require.Nil(t, cam.Stop())

	require.Equal(t, []RequestStatus{
		RequestComplete, RequestFailed, RequestComplete, RequestFailed, RequestCancelled,
	}, h.statuses)
}

func TestVirtualErrors(t *testing.T) {
	cam := NewVirtual()

	cfg := &StreamConfig{Width: 64, Height: 48, PixelFormat: BGR888, BufferCount: 4}
	require.ErrorIs(t, cam.Configure(cfg), ErrNotAcquired)

	require.Nil(t, cam.Acquire())
	require.NotNil(t, cam.Acquire())

	require.NotNil(t, cam.Configure(&StreamConfig{Width: 64, Height: 48, PixelFormat: "NV12"}))

	cam.MaxBuffers = 2
	require.Nil(t, cam.Configure(cfg))
	_, err := cam.Allocate()
	require.NotNil(t, err)

	require.Nil(t, cam.Release())

	other, _ := newVirtual(t, 1)
	foreign := &Request{buffer: &FrameBuffer{}}
	require.Nil(t, other.Start(&testHandler{}))
	require.ErrorIs(t, other.QueueRequest(foreign), ErrWrongBuffer)
	require.ErrorIs(t, other.Start(&testHandler{}), ErrRunning)
	require.Nil(t, other.Stop())
}

func TestRender(t *testing.T) {
	b := make([]byte, 1000)
	render(b, 7)
	require.Equal(t, uint32(7), binary.LittleEndian.Uint32(b))
	for _, v := range b[4:] {
		require.Equal(t, byte(56), v)
	}
}

func TestBytesUsed(t *testing.T) {
	require.Equal(t, []int{1024}, bytesUsed([]uint32{1024}))
	// multi-planar buffer
	require.Equal(t, []int{640 * 480, 640 * 480 / 2}, bytesUsed([]uint32{640 * 480, 640 * 480 / 2}))
	require.Empty(t, bytesUsed(nil))
}
