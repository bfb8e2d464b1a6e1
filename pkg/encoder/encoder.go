// Package encoder turns raw video frames into H264 access units with an external
// pipeline: FFmpeg subprocess or GStreamer appsrc/appsink (build tag gstreamer).
package encoder

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/zcrtsp/zcrtsp/pkg/camera"
)

// Format - input frames and output stream params for template expansion
type Format struct {
	Width       int
	Height      int
	FPS         int
	PixelFormat camera.PixelFormat
	Bitrate     int
}

// Handler - receive one H264 access unit in Annex-B format,
// data is valid only inside the call
type Handler func(au []byte)

type Encoder interface {
	// Write - push one raw frame, on timeout the frame may be written partially
	Write(frame []byte, timeout time.Duration) (int, error)
	// Done - closed when encoder stopped by itself or by Close
	Done() <-chan struct{}
	// Err - exit reason, valid after Done
	Err() error
	Close() error
}

var ErrUnsupported = errors.New("encoder: gstreamer support not compiled in")

// IsGStreamer - template is GStreamer launch line with appsrc element
func IsGStreamer(template string) bool {
	return strings.Contains(template, "appsrc")
}

// Expand - fill template placeholders with format values
func Expand(template string, format Format) string {
	gst := IsGStreamer(template)

	var src, pixFmt string
	if gst {
		src = "mysrc"
		pixFmt = format.PixelFormat.GStreamer()
	} else {
		src = "pipe:0"
		pixFmt = format.PixelFormat.FFmpeg()
	}

	return strings.NewReplacer(
		"{mysrc}", src,
		"{width}", strconv.Itoa(format.Width),
		"{height}", strconv.Itoa(format.Height),
		"{fps}", strconv.Itoa(format.FPS),
		"{pix_fmt}", pixFmt,
		"{bitrate}", strconv.Itoa(format.Bitrate),
		"{kbitrate}", strconv.Itoa(format.Bitrate/1000),
	).Replace(template)
}

// New - start encoder for template, stderr receives FFmpeg log output (can be nil)
func New(template string, format Format, handler Handler, stderr io.Writer) (Encoder, error) {
	s := Expand(template, format)
	if IsGStreamer(s) {
		return newGStreamer(s, format, handler)
	}

	enc, err := newFFmpeg(s, handler, stderr)
	if err != nil {
		return nil, err
	}
	return enc, nil
}
