package h264

import (
	"bytes"
	"errors"
	"io"
)

const StartCode = "\x00\x00\x00\x01"

// BufferSize - max size of one access unit
const BufferSize = 8 << 20

// indexStart - position and size of next 3 or 4 bytes start code
func indexStart(b []byte, from int) (int, int) {
	if from >= len(b) {
		return -1, 0
	}
	i := bytes.Index(b[from:], []byte{0, 0, 1})
	if i < 0 {
		return -1, 0
	}
	i += from
	if i > from && b[i-1] == 0 {
		return i - 1, 4
	}
	return i, 3
}

// SplitNALUs - NALUs from Annex-B data without start codes
func SplitNALUs(b []byte) [][]byte {
	var nalus [][]byte

	i, n := indexStart(b, 0)
	for i >= 0 {
		start := i + n
		i, n = indexStart(b, start)

		var nalu []byte
		if i >= 0 {
			nalu = b[start:i]
		} else {
			nalu = b[start:]
		}

		if len(nalu) > 0 {
			nalus = append(nalus, nalu)
		}
	}

	return nalus
}

// IndexFrame - position of second access unit start in Annex-B stream,
// -1 if more data needed
func IndexFrame(b []byte) int {
	var slice bool

	i, n := indexStart(b, 0)
	for i >= 0 {
		start := i + n
		// need NALU header and first byte of slice header
		if start+1 >= len(b) {
			return -1
		}

		switch b[start] & 0x1F {
		case NALUTypePFrame, NALUTypeIFrame:
			// first_mb_in_slice = 0 is coded as single "1" bit
			if slice && b[start+1]&0x80 != 0 {
				return i
			}
			slice = true
		case NALUTypeSPS, NALUTypePPS, NALUTypeAUD, NALUTypeSEI:
			if slice {
				return i
			}
		}

		i, n = indexStart(b, start)
	}

	return -1
}

// Reader - split Annex-B byte stream to access units
type Reader struct {
	r     io.Reader
	buf   []byte
	chunk []byte
	eof   bool
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, chunk: make([]byte, 64*1024)}
}

// ReadAccessUnit - returned slice valid until next call
func (r *Reader) ReadAccessUnit() ([]byte, error) {
	for {
		if i := IndexFrame(r.buf); i > 0 {
			au := r.buf[:i]
			r.buf = r.buf[i:]
			return au, nil
		}

		if r.eof {
			if len(r.buf) == 0 {
				return nil, io.EOF
			}
			au := r.buf
			r.buf = nil
			return au, nil
		}

		if len(r.buf) > BufferSize {
			return nil, errors.New("h264: access unit too big")
		}

		n, err := r.r.Read(r.chunk)
		r.buf = append(r.buf, r.chunk[:n]...)
		if err != nil {
			if err != io.EOF {
				return nil, err
			}
			r.eof = true
		}
	}
}
