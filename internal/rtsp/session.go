package rtsp

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zcrtsp/zcrtsp/pkg/h264"
	"github.com/zcrtsp/zcrtsp/pkg/rtsp"
)

// session - one RTSP client with own RTP sequence and SSRC
type session struct {
	conn *rtsp.Conn

	mu        sync.Mutex
	payloader *h264.Payloader
	keyframe  bool

	packets atomic.Uint32
	octets  atomic.Uint32
}

func newSession(conn *rtsp.Conn, mtu uint16) *session {
	return &session{
		conn:      conn,
		payloader: h264.NewPayloader(mtu, rtsp.PayloadType, rand.Uint32()),
	}
}

// write - send access unit, new session waits for keyframe,
// keyframe without parameter sets gets them from encoder
func (s *session) write(au, sps, pps []byte, timestamp uint32) error {
	if s.conn.State() != rtsp.StatePlay {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.keyframe {
		if !h264.IsKeyframe(au) {
			return nil
		}
		s.keyframe = true

		if sps0, _ := h264.GetParameterSet(au); sps0 == nil && sps != nil {
			au = joinAU(sps, pps, au)
		}
	}

	packets := s.payloader.Payload(au, timestamp)
	if err := s.conn.WriteRTP(packets...); err != nil {
		return err
	}

	var octets int
	for _, packet := range packets {
		octets += len(packet.Payload)
	}

	s.packets.Add(uint32(len(packets)))
	s.octets.Add(uint32(octets))

	return nil
}

func (s *session) sendReport(timestamp uint32, now time.Time) error {
	if s.conn.State() != rtsp.StatePlay || s.packets.Load() == 0 {
		return nil
	}

	s.mu.Lock()
	ssrc := s.payloader.SSRC
	s.mu.Unlock()

	sr := rtsp.NewSenderReport(ssrc, timestamp, s.packets.Load(), s.octets.Load(), now)
	return s.conn.WriteRTCP(sr)
}

func joinAU(sps, pps, au []byte) []byte {
	b := make([]byte, 0, 8+len(sps)+len(pps)+len(au))
	b = append(b, h264.StartCode...)
	b = append(b, sps...)
	b = append(b, h264.StartCode...)
	b = append(b, pps...)
	return append(b, au...)
}

// rtpTime - 90kHz clock since publisher start
func rtpTime(since time.Duration) uint32 {
	return uint32(uint64(since/time.Microsecond) * 9 / 100)
}
