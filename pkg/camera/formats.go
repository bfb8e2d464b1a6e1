package camera

import (
	"fmt"

	"github.com/zcrtsp/zcrtsp/pkg/v4l2/device"
)

type PixelFormat string

const (
	BGR888 PixelFormat = "BGR888"
	RGB888 PixelFormat = "RGB888"
	YUV420 PixelFormat = "YUV420"
	YUYV   PixelFormat = "YUYV"

	DefaultPixelFormat = BGR888
)

var PixelFormats = []PixelFormat{BGR888, RGB888, YUV420, YUYV}

func ParsePixelFormat(s string) (PixelFormat, error) {
	for _, format := range PixelFormats {
		if string(format) == s {
			return format, nil
		}
	}
	return "", fmt.Errorf("camera: unknown pixel format: %q", s)
}

func (f PixelFormat) FourCC() uint32 {
	switch f {
	case BGR888:
		return device.V4L2_PIX_FMT_BGR24
	case RGB888:
		return device.V4L2_PIX_FMT_RGB24
	case YUV420:
		return device.V4L2_PIX_FMT_YUV420
	case YUYV:
		return device.V4L2_PIX_FMT_YUYV
	}
	return 0
}

// Stride - bytes per line of first plane without driver padding
func (f PixelFormat) Stride(width int) int {
	switch f {
	case BGR888, RGB888:
		return width * 3
	case YUYV:
		return width * 2
	case YUV420:
		return width
	}
	return 0
}

func (f PixelFormat) FrameSize(width, height int) int {
	switch f {
	case BGR888, RGB888:
		return width * height * 3
	case YUYV:
		return width * height * 2
	case YUV420:
		return width * height * 3 / 2
	}
	return 0
}

// FFmpeg - value for -pix_fmt option
func (f PixelFormat) FFmpeg() string {
	fourCC := f.FourCC()
	for _, format := range device.Formats {
		if format.FourCC == fourCC {
			return format.FFmpeg
		}
	}
	return ""
}

// GStreamer - value for video/x-raw format caps
func (f PixelFormat) GStreamer() string {
	switch f {
	case BGR888:
		return "BGR"
	case RGB888:
		return "RGB"
	case YUV420:
		return "I420"
	case YUYV:
		return "YUY2"
	}
	return ""
}
