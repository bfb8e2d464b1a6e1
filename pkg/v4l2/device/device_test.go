//go:build linux && (386 || arm || amd64 || arm64 || riscv64)

package device

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCapability(t *testing.T) {
	single := Capability{Caps: V4L2_CAP_VIDEO_CAPTURE | V4L2_CAP_STREAMING}
	require.True(t, single.CanStream())
	require.False(t, single.MultiPlanar())

	mplane := Capability{Caps: V4L2_CAP_VIDEO_CAPTURE_MPLANE | V4L2_CAP_STREAMING}
	require.True(t, mplane.CanStream())
	require.True(t, mplane.MultiPlanar())

	// both APIs, single-planar is preferred
	both := Capability{Caps: V4L2_CAP_VIDEO_CAPTURE | V4L2_CAP_VIDEO_CAPTURE_MPLANE | V4L2_CAP_STREAMING}
	require.True(t, both.CanStream())
	require.False(t, both.MultiPlanar())

	noStreaming := Capability{Caps: V4L2_CAP_VIDEO_CAPTURE_MPLANE}
	require.False(t, noStreaming.CanStream())
}

func TestSetMultiPlanar(t *testing.T) {
	d := &Device{typ: V4L2_BUF_TYPE_VIDEO_CAPTURE}
	require.False(t, d.MultiPlanar())

	d.SetMultiPlanar(true)
	require.True(t, d.MultiPlanar())
	require.Equal(t, uint32(V4L2_BUF_TYPE_VIDEO_CAPTURE_MPLANE), d.typ)

	d.SetMultiPlanar(false)
	require.Equal(t, uint32(V4L2_BUF_TYPE_VIDEO_CAPTURE), d.typ)
}
