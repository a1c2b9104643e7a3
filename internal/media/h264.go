package media

import (
	"encoding/binary"
	"errors"
)

// ErrInvalidAVCPacket is returned when an AVCDecoderConfigurationRecord or
// AVCC NAL stream is too short or internally inconsistent to parse.
var ErrInvalidAVCPacket = errors.New("media: invalid avc packet")

// NaluType is the lower 5 bits of a NAL unit's header byte.
type NaluType byte

const (
	NaluSlice      NaluType = 1
	NaluSlicePartA NaluType = 2
	NaluSlicePartB NaluType = 3
	NaluSlicePartC NaluType = 4
	NaluIDR        NaluType = 5
	NaluSEI        NaluType = 6
	NaluSPS        NaluType = 7
	NaluPPS        NaluType = 8
	NaluAUD        NaluType = 9
	NaluEndSeq     NaluType = 10
	NaluEndStream  NaluType = 11
	NaluFiller     NaluType = 12
)

// NaluTypeOf extracts the NAL unit type from its header byte.
func NaluTypeOf(b byte) NaluType { return NaluType(b & 0x1F) }

// IsKeyframe reports whether this NAL type is an IDR slice.
func (t NaluType) IsKeyframe() bool { return t == NaluIDR }

// AVCPacketType distinguishes a sequence header from NAL unit data within
// an AVC video tag's second byte.
type AVCPacketType byte

const (
	AVCSequenceHeader AVCPacketType = 0
	AVCNalu           AVCPacketType = 1
	AVCEndOfSequence  AVCPacketType = 2
)

// AVCConfig is a parsed AVCDecoderConfigurationRecord (the AVC sequence
// header): profile/level plus the SPS/PPS parameter sets needed to
// initialize a decoder.
type AVCConfig struct {
	Profile         uint8
	Compatibility   uint8
	Level           uint8
	NaluLengthSize  uint8 // usually 4
	SPS             [][]byte
	PPS             [][]byte
}

// ParseAVCConfig parses an AVCDecoderConfigurationRecord:
//
//	configurationVersion(1) AVCProfileIndication(1) profile_compatibility(1)
//	AVCLevelIndication(1) lengthSizeMinusOne(1, low 2 bits)
//	numOfSPS(1, low 5 bits) { spsLength(2) spsNALUnit }*
//	numOfPPS(1) { ppsLength(2) ppsNALUnit }*
func ParseAVCConfig(data []byte) (*AVCConfig, error) {
	if len(data) < 7 {
		return nil, ErrInvalidAVCPacket
	}
	if data[0] != 1 {
		return nil, ErrInvalidAVCPacket
	}
	cfg := &AVCConfig{
		Profile:        data[1],
		Compatibility:  data[2],
		Level:          data[3],
		NaluLengthSize: (data[4] & 0x03) + 1,
	}
	pos := 5
	numSPS := int(data[pos] & 0x1F)
	pos++
	for i := 0; i < numSPS; i++ {
		if len(data) < pos+2 {
			return nil, ErrInvalidAVCPacket
		}
		n := int(binary.BigEndian.Uint16(data[pos : pos+2]))
		pos += 2
		if len(data) < pos+n {
			return nil, ErrInvalidAVCPacket
		}
		cfg.SPS = append(cfg.SPS, data[pos:pos+n])
		pos += n
	}
	if len(data) < pos+1 {
		return nil, ErrInvalidAVCPacket
	}
	numPPS := int(data[pos])
	pos++
	for i := 0; i < numPPS; i++ {
		if len(data) < pos+2 {
			return nil, ErrInvalidAVCPacket
		}
		n := int(binary.BigEndian.Uint16(data[pos : pos+2]))
		pos += 2
		if len(data) < pos+n {
			return nil, ErrInvalidAVCPacket
		}
		cfg.PPS = append(cfg.PPS, data[pos:pos+n])
		pos += n
	}
	return cfg, nil
}

// ScanAVCCForIDR walks a length-prefixed (AVCC) NAL unit stream looking
// for an IDR slice. This is the deep O(payload) scan the recognizer
// offers as an alternative to the cheap O(1) frame-type-byte check; most
// callers should prefer Tag.IsKeyframe and only reach for this when a
// frame's frame-type byte is ambiguous or absent (e.g. re-deriving
// keyframe status from raw NALUs without the FLV frame-type wrapper).
func ScanAVCCForIDR(nalus []byte, lengthSize int) bool {
	pos := 0
	for pos+lengthSize <= len(nalus) {
		var n int
		switch lengthSize {
		case 1:
			n = int(nalus[pos])
		case 2:
			n = int(binary.BigEndian.Uint16(nalus[pos : pos+2]))
		case 4:
			n = int(binary.BigEndian.Uint32(nalus[pos : pos+4]))
		default:
			return false
		}
		pos += lengthSize
		if pos+n > len(nalus) || n == 0 {
			return false
		}
		if NaluTypeOf(nalus[pos]).IsKeyframe() {
			return true
		}
		pos += n
	}
	return false
}

// annexBStartCode4 is the 4-byte Annex-B start code written before each
// NAL unit.
var annexBStartCode4 = []byte{0, 0, 0, 1}

// ConvertAVCCToAnnexB rewrites NAL units prefixed with lengthSize-byte
// big-endian lengths into
// Annex-B start-code-delimited form, as consumed by raw H.264 decoders
// and muxers outside the FLV/RTMP world.
func ConvertAVCCToAnnexB(nalus []byte, lengthSize int) []byte {
	out := make([]byte, 0, len(nalus)+16)
	pos := 0
	for pos+lengthSize <= len(nalus) {
		var n int
		switch lengthSize {
		case 1:
			n = int(nalus[pos])
		case 2:
			n = int(binary.BigEndian.Uint16(nalus[pos : pos+2]))
		case 4:
			n = int(binary.BigEndian.Uint32(nalus[pos : pos+4]))
		default:
			return out
		}
		pos += lengthSize
		if pos+n > len(nalus) {
			break
		}
		out = append(out, annexBStartCode4...)
		out = append(out, nalus[pos:pos+n]...)
		pos += n
	}
	return out
}

// PrependParameterSetsAnnexB builds an Annex-B prologue of SPS followed
// by PPS NAL units, each preceded by a 4-byte start code — used to splice
// decoder initialization data directly in front of a keyframe for
// consumers that expect Annex-B rather than out-of-band AVCDecoderConfig.
func PrependParameterSetsAnnexB(cfg *AVCConfig, frame []byte) []byte {
	out := make([]byte, 0, len(frame)+256)
	for _, sps := range cfg.SPS {
		out = append(out, annexBStartCode4...)
		out = append(out, sps...)
	}
	for _, pps := range cfg.PPS {
		out = append(out, annexBStartCode4...)
		out = append(out, pps...)
	}
	out = append(out, frame...)
	return out
}
