//go:build amd64 || arm64 || riscv64

package device

const (
	VIDIOC_G_FMT    = 0xc0d05604
	VIDIOC_S_FMT    = 0xc0d05605
	VIDIOC_QUERYBUF = 0xc0585609
	VIDIOC_QBUF     = 0xc058560f
	VIDIOC_DQBUF    = 0xc0585611
)

type v4l2_format struct { // size 208
	typ uint32          // offset 0, size 4
	_   [4]byte         // align
	pix v4l2_pix_format // offset 8, size 48
	_   [152]byte       // filler
}

type v4l2_timeval struct { // size 16
	sec  int64 // offset 0, size 8
	usec int64 // offset 8, size 8
}

type v4l2_buffer struct { // size 88
	index      uint32        // offset 0, size 4
	typ        uint32        // offset 4, size 4
	bytesused  uint32        // offset 8, size 4
	flags      uint32        // offset 12, size 4
	field      uint32        // offset 16, size 4
	_          [4]byte       // align
	timestamp  v4l2_timeval  // offset 24, size 16
	timecode   v4l2_timecode // offset 40, size 16
	sequence   uint32        // offset 56, size 4
	memory     uint32        // offset 60, size 4
	offset     uint32        // offset 64, size 8 (union m)
	_          [4]byte       // union filler
	length     uint32        // offset 72, size 4
	reserved2  uint32        // offset 76, size 4
	request_fd int32         // offset 80, size 4
	_          [4]byte       // filler
}

type v4l2_format_mplane struct { // size 208
	typ    uint32                 // offset 0, size 4
	_      [4]byte                // align
	pix_mp v4l2_pix_format_mplane // offset 8, size 192
	_      [8]byte                // filler
}

type v4l2_plane struct { // size 64
	bytesused   uint32     // offset 0, size 4
	length      uint32     // offset 4, size 4
	mem_offset  uint32     // offset 8, size 8 (union m)
	_           [4]byte    // union filler
	data_offset uint32     // offset 16, size 4
	reserved    [11]uint32 // offset 20, size 44
}

// v4l2_buffer with planes pointer in union m
type v4l2_buffer_mplane struct { // size 88
	index      uint32        // offset 0, size 4
	typ        uint32        // offset 4, size 4
	bytesused  uint32        // offset 8, size 4
	flags      uint32        // offset 12, size 4
	field      uint32        // offset 16, size 4
	_          [4]byte       // align
	timestamp  v4l2_timeval  // offset 24, size 16
	timecode   v4l2_timecode // offset 40, size 16
	sequence   uint32        // offset 56, size 4
	memory     uint32        // offset 60, size 4
	planes     *v4l2_plane   // offset 64, size 8 (union m)
	length     uint32        // offset 72, size 4, number of planes
	reserved2  uint32        // offset 76, size 4
	request_fd int32         // offset 80, size 4
	_          [4]byte       // filler
}
