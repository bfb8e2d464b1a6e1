package capture

import (
	"errors"
	"fmt"

	"github.com/zcrtsp/zcrtsp/pkg/camera"
	"golang.org/x/sys/unix"
)

var (
	mmap   = unix.Mmap
	munmap = unix.Munmap
)

// Slot - device buffer and its memory mapped planes
type Slot struct {
	Index  int
	Buffer *camera.FrameBuffer
	Planes [][]byte
}

// BufferPool - owner of all device buffers and their mappings.
// Slot indexes follow allocation order and never change.
type BufferPool struct {
	cam   camera.Camera
	slots []*Slot
	index map[*camera.FrameBuffer]int
}

// Allocate - reserve count buffers inside configured camera
func Allocate(cam camera.Camera, count int) (*BufferPool, error) {
	buffers, err := cam.Allocate()
	if err != nil {
		return nil, &AllocationError{Count: count, Err: err}
	}
	if len(buffers) < count {
		_ = cam.Free()
		return nil, &AllocationError{
			Count: count, Err: fmt.Errorf("device returned %d buffers", len(buffers)),
		}
	}

	p := &BufferPool{
		cam:   cam,
		slots: make([]*Slot, len(buffers)),
		index: make(map[*camera.FrameBuffer]int, len(buffers)),
	}
	for i, buffer := range buffers {
		p.slots[i] = &Slot{Index: i, Buffer: buffer}
		p.index[buffer] = i
	}
	return p, nil
}

// MapAll - map every plane of every buffer, all or nothing
func (p *BufferPool) MapAll() error {
	for _, slot := range p.slots {
		if slot.Planes != nil {
			continue
		}

		planes := make([][]byte, 0, len(slot.Buffer.Planes))
		for i, plane := range slot.Buffer.Planes {
			mem, err := mmap(plane.Fd, plane.Offset, plane.Length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
			if err != nil {
				for _, mem = range planes {
					_ = munmap(mem)
				}
				_ = p.UnmapAll()
				return &MappingError{Index: slot.Index, Plane: i, Err: err}
			}
			planes = append(planes, mem)
		}
		slot.Planes = planes
	}
	return nil
}

// UnmapAll - can be called many times and after failed MapAll
func (p *BufferPool) UnmapAll() error {
	var errs []error
	for _, slot := range p.slots {
		for _, mem := range slot.Planes {
			if err := munmap(mem); err != nil {
				errs = append(errs, fmt.Errorf("capture: unmap buffer %d: %w", slot.Index, err))
			}
		}
		slot.Planes = nil
	}
	return errors.Join(errs...)
}

// Free - unmap and return buffers to device
func (p *BufferPool) Free() error {
	if p.slots == nil {
		return nil
	}
	err := p.UnmapAll()
	p.slots = nil
	p.index = nil
	return errors.Join(err, p.cam.Free())
}

func (p *BufferPool) Len() int {
	return len(p.slots)
}

func (p *BufferPool) Slot(i int) *Slot {
	return p.slots[i]
}

func (p *BufferPool) IndexOf(buffer *camera.FrameBuffer) (int, bool) {
	i, ok := p.index[buffer]
	return i, ok
}

func (p *BufferPool) Mapped() bool {
	for _, slot := range p.slots {
		if slot.Planes == nil {
			return false
		}
	}
	return len(p.slots) > 0
}
