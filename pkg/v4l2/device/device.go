//go:build linux && (386 || arm || amd64 || arm64 || riscv64)

package device

import (
	"bytes"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

type Device struct {
	fd  int
	typ uint32
}

// Open device in non-blocking mode, DequeueBuffer should be paired with Poll
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return &Device{fd: fd, typ: V4L2_BUF_TYPE_VIDEO_CAPTURE}, nil
}

func (d *Device) Fd() int {
	return d.fd
}

type Capability struct {
	Driver  string
	Card    string
	BusInfo string
	Version string
	Caps    uint32
}

// CanStream - device support video capture with streaming I/O
func (c *Capability) CanStream() bool {
	const capture = V4L2_CAP_VIDEO_CAPTURE | V4L2_CAP_VIDEO_CAPTURE_MPLANE
	return c.Caps&V4L2_CAP_STREAMING != 0 && c.Caps&capture != 0
}

// MultiPlanar - device support only multi-planar capture API
func (c *Capability) MultiPlanar() bool {
	return c.Caps&V4L2_CAP_VIDEO_CAPTURE == 0 && c.Caps&V4L2_CAP_VIDEO_CAPTURE_MPLANE != 0
}

// SetMultiPlanar - select buffer type for all next calls, before SetFormat
func (d *Device) SetMultiPlanar(mplane bool) {
	if mplane {
		d.typ = V4L2_BUF_TYPE_VIDEO_CAPTURE_MPLANE
	} else {
		d.typ = V4L2_BUF_TYPE_VIDEO_CAPTURE
	}
}

func (d *Device) MultiPlanar() bool {
	return d.typ == V4L2_BUF_TYPE_VIDEO_CAPTURE_MPLANE
}

func (d *Device) Capability() (*Capability, error) {
	c := v4l2_capability{}
	if err := ioctl(d.fd, VIDIOC_QUERYCAP, unsafe.Pointer(&c)); err != nil {
		return nil, err
	}

	caps := c.capabilities
	if caps&V4L2_CAP_DEVICE_CAPS != 0 {
		caps = c.device_caps
	}

	return &Capability{
		Driver:  str(c.driver[:]),
		Card:    str(c.card[:]),
		BusInfo: str(c.bus_info[:]),
		Version: fmt.Sprintf("%d.%d.%d", byte(c.version>>16), byte(c.version>>8), byte(c.version)),
		Caps:    caps,
	}, nil
}

func (d *Device) ListFormats() ([]uint32, error) {
	var items []uint32

	for i := uint32(0); ; i++ {
		fd := v4l2_fmtdesc{
			index: i,
			typ:   d.typ,
		}
		if err := ioctl(d.fd, VIDIOC_ENUM_FMT, unsafe.Pointer(&fd)); err != nil {
			if !errors.Is(err, unix.EINVAL) {
				return nil, err
			}
			break
		}

		items = append(items, fd.pixelformat)
	}

	return items, nil
}

func (d *Device) ListSizes(pixFmt uint32) ([][2]uint32, error) {
	var items [][2]uint32

	for i := uint32(0); ; i++ {
		fs := v4l2_frmsizeenum{
			index:        i,
			pixel_format: pixFmt,
		}
		if err := ioctl(d.fd, VIDIOC_ENUM_FRAMESIZES, unsafe.Pointer(&fs)); err != nil {
			if !errors.Is(err, unix.EINVAL) {
				return nil, err
			}
			break
		}

		if fs.typ != V4L2_FRMSIZE_TYPE_DISCRETE {
			continue
		}

		items = append(items, [2]uint32{fs.discrete.width, fs.discrete.height})
	}

	return items, nil
}

// PixFormat - format accepted by driver, it can differ from requested one
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	BytesPerLine uint32 // first plane
	SizeImage    uint32 // all planes
	Planes       []PlaneFormat
}

type PlaneFormat struct {
	BytesPerLine uint32
	SizeImage    uint32
}

func (d *Device) SetFormat(width, height, pixFmt uint32) (*PixFormat, error) {
	if d.MultiPlanar() {
		return d.setFormatMPlane(width, height, pixFmt)
	}

	f := v4l2_format{
		typ: d.typ,
		pix: v4l2_pix_format{
			width:       width,
			height:      height,
			pixelformat: pixFmt,
			field:       V4L2_FIELD_NONE,
			colorspace:  V4L2_COLORSPACE_DEFAULT,
		},
	}
	if err := ioctl(d.fd, VIDIOC_S_FMT, unsafe.Pointer(&f)); err != nil {
		return nil, err
	}
	return &PixFormat{
		Width:        f.pix.width,
		Height:       f.pix.height,
		PixelFormat:  f.pix.pixelformat,
		BytesPerLine: f.pix.bytesperline,
		SizeImage:    f.pix.sizeimage,
		Planes:       []PlaneFormat{{BytesPerLine: f.pix.bytesperline, SizeImage: f.pix.sizeimage}},
	}, nil
}

func (d *Device) setFormatMPlane(width, height, pixFmt uint32) (*PixFormat, error) {
	f := v4l2_format_mplane{
		typ: d.typ,
		pix_mp: v4l2_pix_format_mplane{
			width:       width,
			height:      height,
			pixelformat: pixFmt,
			field:       V4L2_FIELD_NONE,
			colorspace:  V4L2_COLORSPACE_DEFAULT,
		},
	}
	if err := ioctl(d.fd, VIDIOC_S_FMT, unsafe.Pointer(&f)); err != nil {
		return nil, err
	}

	n := int(f.pix_mp.num_planes)
	if n < 1 || n > VIDEO_MAX_PLANES {
		return nil, fmt.Errorf("v4l2: wrong planes count: %d", n)
	}

	pf := &PixFormat{
		Width:        f.pix_mp.width,
		Height:       f.pix_mp.height,
		PixelFormat:  f.pix_mp.pixelformat,
		BytesPerLine: f.pix_mp.plane_fmt[0].bytesperline,
		Planes:       make([]PlaneFormat, n),
	}
	for i := range pf.Planes {
		plane := &f.pix_mp.plane_fmt[i]
		pf.Planes[i] = PlaneFormat{BytesPerLine: plane.bytesperline, SizeImage: plane.sizeimage}
		pf.SizeImage += plane.sizeimage
	}
	return pf, nil
}

func (d *Device) SetParam(fps uint32) error {
	p := v4l2_streamparm{
		typ: d.typ,
		capture: v4l2_captureparm{
			timeperframe: v4l2_fract{numerator: 1, denominator: fps},
		},
	}
	return ioctl(d.fd, VIDIOC_S_PARM, unsafe.Pointer(&p))
}

// RequestBuffers - allocate count MMAP buffers inside driver, zero count free them.
// Driver can return a different count.
func (d *Device) RequestBuffers(count uint32) (uint32, error) {
	rb := v4l2_requestbuffers{
		count:  count,
		typ:    d.typ,
		memory: V4L2_MEMORY_MMAP,
	}
	if err := ioctl(d.fd, VIDIOC_REQBUFS, unsafe.Pointer(&rb)); err != nil {
		return 0, err
	}
	return rb.count, nil
}

// BufferPlane - mmap offset and length of one buffer plane
type BufferPlane struct {
	Offset uint32
	Length uint32
}

// QueryBuffer - return planes of buffer, single-planar buffer has one plane
func (d *Device) QueryBuffer(index uint32) ([]BufferPlane, error) {
	if d.MultiPlanar() {
		planes := make([]v4l2_plane, VIDEO_MAX_PLANES)
		qb := v4l2_buffer_mplane{
			index:  index,
			typ:    d.typ,
			memory: V4L2_MEMORY_MMAP,
			planes: &planes[0],
			length: VIDEO_MAX_PLANES,
		}
		if err := ioctl(d.fd, VIDIOC_QUERYBUF, unsafe.Pointer(&qb)); err != nil {
			return nil, err
		}
		items := make([]BufferPlane, min(int(qb.length), VIDEO_MAX_PLANES))
		for i := range items {
			items[i] = BufferPlane{Offset: planes[i].mem_offset, Length: planes[i].length}
		}
		return items, nil
	}

	qb := v4l2_buffer{
		index:  index,
		typ:    d.typ,
		memory: V4L2_MEMORY_MMAP,
	}
	if err := ioctl(d.fd, VIDIOC_QUERYBUF, unsafe.Pointer(&qb)); err != nil {
		return nil, err
	}
	return []BufferPlane{{Offset: qb.offset, Length: qb.length}}, nil
}

func (d *Device) QueueBuffer(index uint32) error {
	if d.MultiPlanar() {
		planes := make([]v4l2_plane, VIDEO_MAX_PLANES)
		qb := v4l2_buffer_mplane{
			index:  index,
			typ:    d.typ,
			memory: V4L2_MEMORY_MMAP,
			planes: &planes[0],
			length: VIDEO_MAX_PLANES,
		}
		return ioctl(d.fd, VIDIOC_QBUF, unsafe.Pointer(&qb))
	}

	qb := v4l2_buffer{
		index:  index,
		typ:    d.typ,
		memory: V4L2_MEMORY_MMAP,
	}
	return ioctl(d.fd, VIDIOC_QBUF, unsafe.Pointer(&qb))
}

type Buffer struct {
	Index     uint32
	BytesUsed []uint32 // per plane
	Flags     uint32
	Sequence  uint32
	Timestamp time.Duration // monotonic clock of the driver
}

func (b *Buffer) Error() bool {
	return b.Flags&V4L2_BUF_FLAG_ERROR != 0
}

// DequeueBuffer - return unix.EAGAIN if no buffer ready
func (d *Device) DequeueBuffer() (*Buffer, error) {
	if d.MultiPlanar() {
		planes := make([]v4l2_plane, VIDEO_MAX_PLANES)
		dq := v4l2_buffer_mplane{
			typ:    d.typ,
			memory: V4L2_MEMORY_MMAP,
			planes: &planes[0],
			length: VIDEO_MAX_PLANES,
		}
		if err := ioctl(d.fd, VIDIOC_DQBUF, unsafe.Pointer(&dq)); err != nil {
			return nil, err
		}
		used := make([]uint32, min(int(dq.length), VIDEO_MAX_PLANES))
		for i := range used {
			used[i] = planes[i].bytesused
		}
		return &Buffer{
			Index:     dq.index,
			BytesUsed: used,
			Flags:     dq.flags,
			Sequence:  dq.sequence,
			Timestamp: timestamp(dq.timestamp),
		}, nil
	}

	dq := v4l2_buffer{
		typ:    d.typ,
		memory: V4L2_MEMORY_MMAP,
	}
	if err := ioctl(d.fd, VIDIOC_DQBUF, unsafe.Pointer(&dq)); err != nil {
		return nil, err
	}
	return &Buffer{
		Index:     dq.index,
		BytesUsed: []uint32{dq.bytesused},
		Flags:     dq.flags,
		Sequence:  dq.sequence,
		Timestamp: timestamp(dq.timestamp),
	}, nil
}

func timestamp(tv v4l2_timeval) time.Duration {
	return time.Duration(tv.sec)*time.Second + time.Duration(tv.usec)*time.Microsecond
}

// Poll - wait until buffer can be dequeued, false on timeout
func (d *Device) Poll(timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 && fds[0].Revents&unix.POLLIN == 0 {
		return false, unix.ENODEV
	}
	return true, nil
}

func (d *Device) StreamOn() error {
	typ := d.typ
	return ioctl(d.fd, VIDIOC_STREAMON, unsafe.Pointer(&typ))
}

// StreamOff - driver returns all queued buffers to user space
func (d *Device) StreamOff() error {
	typ := d.typ
	return ioctl(d.fd, VIDIOC_STREAMOFF, unsafe.Pointer(&typ))
}

// Lock - exclusive access to device between processes
func (d *Device) Lock() error {
	return unix.Flock(d.fd, unix.LOCK_EX|unix.LOCK_NB)
}

func (d *Device) Close() error {
	return unix.Close(d.fd)
}

func ioctl(fd int, req uint, arg unsafe.Pointer) error {
	_, _, err := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if err != 0 {
		return err
	}
	return nil
}

func str(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
