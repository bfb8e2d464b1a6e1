//go:build 386 || arm

package device

const (
	VIDIOC_G_FMT    = 0xc0cc5604
	VIDIOC_S_FMT    = 0xc0cc5605
	VIDIOC_QUERYBUF = 0xc0445609
	VIDIOC_QBUF     = 0xc044560f
	VIDIOC_DQBUF    = 0xc0445611
)

type v4l2_format struct { // size 204
	typ uint32          // offset 0, size 4
	pix v4l2_pix_format // offset 4, size 48
	_   [152]byte       // filler
}

type v4l2_timeval struct { // size 8
	sec  int32 // offset 0, size 4
	usec int32 // offset 4, size 4
}

type v4l2_buffer struct { // size 68
	index      uint32        // offset 0, size 4
	typ        uint32        // offset 4, size 4
	bytesused  uint32        // offset 8, size 4
	flags      uint32        // offset 12, size 4
	field      uint32        // offset 16, size 4
	timestamp  v4l2_timeval  // offset 20, size 8
	timecode   v4l2_timecode // offset 28, size 16
	sequence   uint32        // offset 44, size 4
	memory     uint32        // offset 48, size 4
	offset     uint32        // offset 52, size 4
	length     uint32        // offset 56, size 4
	reserved2  uint32        // offset 60, size 4
	request_fd int32         // offset 64, size 4
}

type v4l2_format_mplane struct { // size 204
	typ    uint32                 // offset 0, size 4
	pix_mp v4l2_pix_format_mplane // offset 4, size 192
	_      [8]byte                // filler
}

type v4l2_plane struct { // size 60
	bytesused   uint32     // offset 0, size 4
	length      uint32     // offset 4, size 4
	mem_offset  uint32     // offset 8, size 4 (union m)
	data_offset uint32     // offset 12, size 4
	reserved    [11]uint32 // offset 16, size 44
}

// v4l2_buffer with planes pointer in union m
type v4l2_buffer_mplane struct { // size 68
	index      uint32        // offset 0, size 4
	typ        uint32        // offset 4, size 4
	bytesused  uint32        // offset 8, size 4
	flags      uint32        // offset 12, size 4
	field      uint32        // offset 16, size 4
	timestamp  v4l2_timeval  // offset 20, size 8
	timecode   v4l2_timecode // offset 28, size 16
	sequence   uint32        // offset 44, size 4
	memory     uint32        // offset 48, size 4
	planes     *v4l2_plane   // offset 52, size 4 (union m)
	length     uint32        // offset 56, size 4, number of planes
	reserved2  uint32        // offset 60, size 4
	request_fd int32         // offset 64, size 4
}
