package capture

import (
	"time"

	"github.com/zcrtsp/zcrtsp/pkg/camera"
)

// Frame - reference to mapped memory of completed buffer, not a copy.
// Data is valid only until the owner buffer is recycled, so consumer
// should copy or send it before return from Accept.
type Frame struct {
	Data      []byte
	Index     int
	Sequence  uint32
	Timestamp time.Duration
}

func (f Frame) Len() int {
	return len(f.Data)
}

// Publisher - sink for completed frames
type Publisher interface {
	// ConfigureExpectedFormat - raw video caps, called once when first consumer attached
	ConfigureExpectedFormat(width, height, fps int, format camera.PixelFormat) error
	// IsReady - pipeline active and consuming
	IsReady() bool
	// Accept - synchronous consume, returns *FlowError on failure
	Accept(frame Frame) error
}

// Deliver - pass frame to publisher or drop it when publisher not ready
func Deliver(pub Publisher, frame Frame) error {
	if !pub.IsReady() {
		return ErrNotReady
	}
	return pub.Accept(frame)
}

func newFrame(slot *Slot, meta *camera.FrameMetadata) Frame {
	data := slot.Planes[0]
	if len(meta.BytesUsed) > 0 && meta.BytesUsed[0] < len(data) {
		data = data[:meta.BytesUsed[0]]
	}
	return Frame{
		Data:      data,
		Index:     slot.Index,
		Sequence:  meta.Sequence,
		Timestamp: meta.Timestamp,
	}
}
