//go:build gstreamer

package encoder

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

var gstInit sync.Once

type gstEncoder struct {
	pipeline *gst.Pipeline
	src      *app.Source

	done chan struct{}
	once sync.Once
	err  error
}

// gstLaunch - replace RTP payloader at the end of pipeline with appsink:
// appsrc name=mysrc ! videoconvert ! x264enc ! rtph264pay name=pay0 pt=96
func gstLaunch(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "()")
	if i := strings.LastIndex(s, "! rtph264pay"); i > 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s) + " ! video/x-h264,stream-format=byte-stream,alignment=au ! appsink name=mysink"
}

func newGStreamer(s string, format Format, handler Handler) (Encoder, error) {
	gstInit.Do(func() {
		gst.Init(nil)
	})

	pipeline, err := gst.NewPipelineFromString(gstLaunch(s))
	if err != nil {
		return nil, err
	}

	srcElement, err := pipeline.GetElementByName("mysrc")
	if err != nil {
		return nil, fmt.Errorf("encoder: pipeline without appsrc name=mysrc: %w", err)
	}

	sinkElement, err := pipeline.GetElementByName("mysink")
	if err != nil {
		return nil, err
	}

	src := app.SrcFromElement(srcElement)
	src.SetCaps(gst.NewCapsFromString(fmt.Sprintf(
		"video/x-raw,format=%s,width=%d,height=%d,framerate=%d/1",
		format.PixelFormat.GStreamer(), format.Width, format.Height, format.FPS,
	)))
	_ = srcElement.SetProperty("is-live", true)
	_ = srcElement.SetProperty("do-timestamp", true)
	_ = srcElement.SetProperty("format", gst.FormatTime)

	sink := app.SinkFromElement(sinkElement)
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			sample := sink.PullSample()
			if sample == nil {
				return gst.FlowOK
			}

			buffer := sample.GetBuffer()
			if buffer == nil {
				return gst.FlowOK
			}

			mapInfo := buffer.Map(gst.MapRead)
			if data := mapInfo.Bytes(); len(data) > 0 {
				handler(data)
			}
			buffer.Unmap()

			return gst.FlowOK
		},
	})

	if err = pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, err
	}

	e := &gstEncoder{
		pipeline: pipeline,
		src:      src,
		done:     make(chan struct{}),
	}

	go e.watch()

	return e, nil
}

func (e *gstEncoder) watch() {
	bus := e.pipeline.GetPipelineBus()

	for {
		select {
		case <-e.done:
			return
		default:
		}

		msg := bus.TimedPop(100 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			e.stop(errors.New("encoder: end of stream"))
			return
		case gst.MessageError:
			e.stop(msg.ParseError())
			return
		}
	}
}

func (e *gstEncoder) stop(err error) {
	e.once.Do(func() {
		e.err = err
		_ = e.pipeline.SetState(gst.StateNull)
		close(e.done)
	})
}

// Write - appsrc copies frame data, so timeout is not used
func (e *gstEncoder) Write(frame []byte, _ time.Duration) (int, error) {
	select {
	case <-e.done:
		return 0, e.err
	default:
	}

	buffer := gst.NewBufferFromBytes(frame)
	if ret := e.src.PushBuffer(buffer); ret != gst.FlowOK {
		return 0, fmt.Errorf("encoder: push buffer: %v", ret)
	}
	return len(frame), nil
}

func (e *gstEncoder) Done() <-chan struct{} {
	return e.done
}

func (e *gstEncoder) Err() error {
	return e.err
}

func (e *gstEncoder) Close() error {
	e.src.EndStream()
	e.stop(nil)
	return nil
}
