//go:build !gstreamer

package encoder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGStreamerUnsupported(t *testing.T) {
	_, err := New("appsrc name={mysrc} ! x264enc ! rtph264pay", testFormat, nil, nil)
	require.ErrorIs(t, err, ErrUnsupported)
}
