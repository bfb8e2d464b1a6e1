//go:build linux

package capture

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zcrtsp/zcrtsp/pkg/camera"
	"golang.org/x/sys/unix"
)

// fakeCamera - returns prepared buffers
type fakeCamera struct {
	camera.Camera
	buffers []*camera.FrameBuffer
	err     error
	freed   int
}

func (c *fakeCamera) Allocate() ([]*camera.FrameBuffer, error) {
	return c.buffers, c.err
}

func (c *fakeCamera) Free() error {
	c.freed++
	return nil
}

func memfdPlane(t *testing.T, size int) camera.Plane {
	fd, err := unix.MemfdCreate("test", unix.MFD_CLOEXEC)
	require.Nil(t, err)
	require.Nil(t, unix.Ftruncate(fd, int64(size)))
	t.Cleanup(func() {
		_ = unix.Close(fd)
	})
	return camera.Plane{Fd: fd, Length: size}
}

func TestPoolIndexes(t *testing.T) {
	cam := camera.NewVirtual()
	require.Nil(t, cam.Acquire())
	require.Nil(t, cam.Configure(&camera.StreamConfig{
		Width: 32, Height: 32, PixelFormat: camera.YUYV, BufferCount: 4,
	}))

	pool, err := Allocate(cam, 4)
	require.Nil(t, err)
	require.Equal(t, 4, pool.Len())

	seen := map[*camera.FrameBuffer]bool{}
	for i := 0; i < 4; i++ {
		slot := pool.Slot(i)
		require.Equal(t, i, slot.Index)
		require.False(t, seen[slot.Buffer])
		seen[slot.Buffer] = true

		index, ok := pool.IndexOf(slot.Buffer)
		require.True(t, ok)
		require.Equal(t, i, index)
	}

	_, ok := pool.IndexOf(&camera.FrameBuffer{})
	require.False(t, ok)

	require.False(t, pool.Mapped())
	require.Nil(t, pool.MapAll())
	require.True(t, pool.Mapped())
	require.Len(t, pool.Slot(3).Planes[0], pool.Slot(3).Buffer.Planes[0].Length)

	require.Nil(t, pool.Free())
	require.Nil(t, pool.Free())
	require.Nil(t, cam.Release())
}

func TestPoolAllocationError(t *testing.T) {
	cam := camera.NewVirtual()
	cam.MaxBuffers = 2
	require.Nil(t, cam.Acquire())
	require.Nil(t, cam.Configure(&camera.StreamConfig{
		Width: 32, Height: 32, PixelFormat: camera.BGR888, BufferCount: 3,
	}))

	_, err := Allocate(cam, 3)

	var allocErr *AllocationError
	require.True(t, errors.As(err, &allocErr))
	require.Equal(t, 3, allocErr.Count)

	// less buffers than requested
	fake := &fakeCamera{buffers: []*camera.FrameBuffer{{}}}
	_, err = Allocate(fake, 3)
	require.True(t, errors.As(err, &allocErr))
	require.Equal(t, 1, fake.freed)
}

func TestPoolMappingRollback(t *testing.T) {
	unmaps := countUnmaps(t)

	fake := &fakeCamera{
		buffers: []*camera.FrameBuffer{
			{Planes: []camera.Plane{memfdPlane(t, 4096)}},
			{Planes: []camera.Plane{memfdPlane(t, 4096)}},
			{Planes: []camera.Plane{memfdPlane(t, 4096), {Fd: -1, Length: 4096}}},
		},
	}

	pool, err := Allocate(fake, 3)
	require.Nil(t, err)

	err = pool.MapAll()

	var mapErr *MappingError
	require.True(t, errors.As(err, &mapErr))
	require.Equal(t, 2, mapErr.Index)
	require.Equal(t, 1, mapErr.Plane)

	// no partial mappings
	for i := 0; i < pool.Len(); i++ {
		require.Nil(t, pool.Slot(i).Planes)
	}
	require.Equal(t, 3, *unmaps)

	// unmap after failed map does nothing
	require.Nil(t, pool.UnmapAll())
	require.Equal(t, 3, *unmaps)

	require.Nil(t, pool.Free())
	require.Equal(t, 1, fake.freed)
}

func TestQueue(t *testing.T) {
	q := NewQueue(2)

	data := []byte{1, 2, 3}
	require.True(t, q.Push(Frame{Data: data, Sequence: 1}))

	// queue owns a copy
	data[0] = 9
	require.True(t, q.Push(Frame{Data: data, Sequence: 2}))
	require.False(t, q.Push(Frame{Data: data, Sequence: 3}))
	require.Equal(t, uint64(1), q.Dropped())
	require.Equal(t, 2, q.Len())

	frame := <-q.Frames()
	require.Equal(t, uint32(1), frame.Sequence)
	require.Equal(t, []byte{1, 2, 3}, frame.Data)
	q.Release(frame)

	frame = <-q.Frames()
	require.Equal(t, []byte{9, 2, 3}, frame.Data)
	q.Release(frame)

	require.Equal(t, 0, q.Len())
}
