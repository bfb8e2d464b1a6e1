package device

const (
	V4L2_PIX_FMT_RGB24  = 'R' | 'G'<<8 | 'B'<<16 | '3'<<24
	V4L2_PIX_FMT_BGR24  = 'B' | 'G'<<8 | 'R'<<16 | '3'<<24
	V4L2_PIX_FMT_YUV420 = 'Y' | 'U'<<8 | '1'<<16 | '2'<<24
	V4L2_PIX_FMT_YUYV   = 'Y' | 'U'<<8 | 'Y'<<16 | 'V'<<24
	V4L2_PIX_FMT_MJPEG  = 'M' | 'J'<<8 | 'P'<<16 | 'G'<<24
)

type Format struct {
	FourCC uint32
	Name   string
	FFmpeg string
}

var Formats = []Format{
	{V4L2_PIX_FMT_BGR24, "BGR 8:8:8", "bgr24"},
	{V4L2_PIX_FMT_RGB24, "RGB 8:8:8", "rgb24"},
	{V4L2_PIX_FMT_YUV420, "YUV 4:2:0 planar", "yuv420p"},
	{V4L2_PIX_FMT_YUYV, "YUV 4:2:2", "yuyv422"},
	{V4L2_PIX_FMT_MJPEG, "Motion-JPEG", "mjpeg"},
}

func FourCC(fourCC uint32) string {
	return string([]byte{byte(fourCC), byte(fourCC >> 8), byte(fourCC >> 16), byte(fourCC >> 24)})
}
