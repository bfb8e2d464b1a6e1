package rtsp

import (
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/sdp/v3"
)

const (
	PayloadType = 96
	TrackID     = "trackID=0"
)

// MarshalSDP - session with one H264 video track
func MarshalSDP(name string, fmtp string) ([]byte, error) {
	sd := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username: "-", SessionID: 1, SessionVersion: 1,
			NetworkType: "IN", AddressType: "IP4", UnicastAddress: "0.0.0.0",
		},
		SessionName: sdp.SessionName(name),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN", AddressType: "IP4", Address: &sdp.Address{
				Address: "0.0.0.0",
			},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{}},
		},
	}
	sd.WithValueAttribute("range", "npt=0-")

	md := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:  "video",
			Protos: []string{"RTP", "AVP"},
		},
	}
	md.WithCodec(PayloadType, "H264", 90000, 0, fmtp)
	md.WithValueAttribute("control", TrackID)

	sd.MediaDescriptions = append(sd.MediaDescriptions, md)

	return sd.Marshal()
}

// NewSenderReport - wall clock to RTP time mapping for client
func NewSenderReport(ssrc, rtpTime, packets, octets uint32, now time.Time) *rtcp.SenderReport {
	return &rtcp.SenderReport{
		SSRC:        ssrc,
		NTPTime:     NTPTime(now),
		RTPTime:     rtpTime,
		PacketCount: packets,
		OctetCount:  octets,
	}
}

// NTPTime - 32.32 fixed point seconds since 1900
func NTPTime(t time.Time) uint64 {
	const ntpEpochOffset = 2208988800

	ns := t.UnixNano()
	sec := uint64(ns/1e9) + ntpEpochOffset
	frac := uint64(ns%1e9) << 32 / 1e9
	return sec<<32 | frac
}
