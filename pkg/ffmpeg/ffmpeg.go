package ffmpeg

import (
	"bytes"
	"strings"
)

// Args - FFmpeg command line for encoding raw frames from stdin to H264 Annex-B on stdout.
// Placeholders {mysrc}, {width}, {height}, {fps}, {pix_fmt}, {bitrate} are kept as is.
type Args struct {
	Bin     string   // ffmpeg
	Global  string   // -hide_banner -loglevel error
	Input   string   // -f rawvideo -pix_fmt {pix_fmt} ... -i {mysrc}
	Codecs  []string // -c:v libx264 -preset:v superfast -tune:v zerolatency
	Filters []string // format=yuv420p
	Output  string   // -f h264 -
}

var defaults = map[string]string{
	"bin":    "ffmpeg",
	"global": "-hide_banner -loglevel error",
	"input":  "-f rawvideo -pix_fmt {pix_fmt} -video_size {width}x{height} -framerate {fps} -i {mysrc}",
	"output": "-f h264 -",

	// `-bf 0` - RTP timestamps are taken from output order
	// `-tune zerolatency` - no frame delay inside encoder
	"libx264":      "-c:v libx264 -preset:v superfast -tune:v zerolatency -profile:v high -bf 0",
	"h264_v4l2m2m": "-c:v h264_v4l2m2m",
	"h264_omx":     "-c:v h264_omx -profile:v high",
	"h264_vaapi":   "-c:v h264_vaapi -bf 0",

	"bitrate": "-b:v {bitrate} -maxrate {bitrate} -bufsize {bitrate}",
	"gop":     "-g:v {fps} -keyint_min:v {fps}",
}

// NewArgs - args for one of known encoders or any other FFmpeg encoder name
func NewArgs(encoder string) *Args {
	if encoder == "" {
		encoder = "libx264"
	}

	a := &Args{
		Bin:    defaults["bin"],
		Global: defaults["global"],
		Input:  defaults["input"],
		Output: defaults["output"],
	}

	if codec, ok := defaults[encoder]; ok {
		a.AddCodec(codec)
	} else {
		a.AddCodec("-c:v " + encoder)
	}

	a.AddCodec(defaults["gop"])
	a.AddCodec(defaults["bitrate"])

	// hardware encoders do own conversion, software need planar YUV
	if !strings.Contains(encoder, "_") {
		a.AddFilter("format=yuv420p")
	}

	return a
}

func (a *Args) AddCodec(codec string) {
	a.Codecs = append(a.Codecs, codec)
}

func (a *Args) AddFilter(filter string) {
	a.Filters = append(a.Filters, filter)
}

func (a *Args) HasFilters(filters ...string) bool {
	for _, f1 := range a.Filters {
		for _, f2 := range filters {
			if strings.HasPrefix(f1, f2) {
				return true
			}
		}
	}

	return false
}

func (a *Args) String() string {
	b := bytes.NewBuffer(make([]byte, 0, 512))

	b.WriteString(a.Bin)

	if a.Global != "" {
		b.WriteByte(' ')
		b.WriteString(a.Global)
	}

	b.WriteByte(' ')
	b.WriteString(a.Input)

	for _, codec := range a.Codecs {
		b.WriteByte(' ')
		b.WriteString(codec)
	}

	if len(a.Filters) > 0 {
		b.WriteString(` -vf "`)
		b.WriteString(strings.Join(a.Filters, ","))
		b.WriteByte('"')
	}

	b.WriteByte(' ')
	b.WriteString(a.Output)

	return b.String()
}
