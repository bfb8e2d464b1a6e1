package h264

import (
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

const ClockRate = 90000

// Payloader - Annex-B access unit to RTP packets with FU-A and STAP-A
type Payloader struct {
	PayloadType uint8
	SSRC        uint32

	mtu       uint16
	payloader codecs.H264Payloader
	sequencer rtp.Sequencer
}

func NewPayloader(mtu uint16, payloadType uint8, ssrc uint32) *Payloader {
	return &Payloader{
		PayloadType: payloadType,
		SSRC:        ssrc,
		mtu:         mtu - 12, // rtp.Header size
		sequencer:   rtp.NewRandomSequencer(),
	}
}

// Payload - last packet of access unit has marker bit
func (p *Payloader) Payload(au []byte, timestamp uint32) []*rtp.Packet {
	payloads := p.payloader.Payload(p.mtu, au)
	if len(payloads) == 0 {
		return nil
	}

	packets := make([]*rtp.Packet, len(payloads))
	last := len(payloads) - 1

	for i, payload := range payloads {
		packets[i] = &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         i == last,
				PayloadType:    p.PayloadType,
				SequenceNumber: p.sequencer.NextSequenceNumber(),
				Timestamp:      timestamp,
				SSRC:           p.SSRC,
			},
			Payload: payload,
		}
	}

	return packets
}
