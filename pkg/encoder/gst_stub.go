//go:build !gstreamer

package encoder

func newGStreamer(string, Format, Handler) (Encoder, error) {
	return nil, ErrUnsupported
}
