// Package h264 - Annex-B access units, parameter sets and RTP payloading
package h264

import (
	"encoding/base64"
	"encoding/hex"

	"github.com/deepch/vdk/codec/h264parser"
)

const (
	NALUTypePFrame = 1 // Coded slice of a non-IDR picture
	NALUTypeIFrame = 5 // Coded slice of an IDR picture
	NALUTypeSEI    = 6 // Supplemental enhancement information (SEI)
	NALUTypeSPS    = 7 // Sequence parameter set
	NALUTypePPS    = 8 // Picture parameter set
	NALUTypeAUD    = 9 // Access unit delimiter
)

// NALUType - type of NALU without start code
func NALUType(nalu []byte) byte {
	return nalu[0] & 0x1F
}

// IsKeyframe - check if any NALU in Annex-B access unit is IDR slice
func IsKeyframe(au []byte) bool {
	for _, nalu := range SplitNALUs(au) {
		switch NALUType(nalu) {
		case NALUTypePFrame:
			return false
		case NALUTypeIFrame:
			return true
		}
	}
	return false
}

// GetParameterSet - SPS and PPS from Annex-B access unit, nil if not found
func GetParameterSet(au []byte) (sps, pps []byte) {
	for _, nalu := range SplitNALUs(au) {
		switch NALUType(nalu) {
		case NALUTypeSPS:
			sps = nalu
		case NALUTypePPS:
			pps = nalu
		}
	}
	return
}

// GetFmtpLine - SDP fmtp value, parameter sets are optional
func GetFmtpLine(sps, pps []byte) string {
	s := "packetization-mode=1"

	if len(sps) >= 4 {
		s += ";profile-level-id=" + hex.EncodeToString(sps[1:4])
		if pps != nil {
			s += ";sprop-parameter-sets=" +
				base64.StdEncoding.EncodeToString(sps) + "," +
				base64.StdEncoding.EncodeToString(pps)
		}
	}

	return s
}

// GetResolution - picture size from SPS
func GetResolution(sps, pps []byte) (width, height int, err error) {
	codec, err := h264parser.NewCodecDataFromSPSAndPPS(sps, pps)
	if err != nil {
		return 0, 0, err
	}
	return codec.Width(), codec.Height(), nil
}
