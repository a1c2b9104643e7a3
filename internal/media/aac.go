package media

import "errors"

// ErrInvalidAACPacket is returned when an AAC audio packet or
// AudioSpecificConfig is too short to parse.
var ErrInvalidAACPacket = errors.New("media: invalid aac packet")

// AACPacketType is the byte following the audio format nibble in an AAC
// audio tag.
type AACPacketType byte

const (
	AACSequenceHeader AACPacketType = 0
	AACRaw            AACPacketType = 1
)

// AACProfile is the AAC audio object type carried in AudioSpecificConfig.
type AACProfile uint8

const (
	AACProfileMain     AACProfile = 1
	AACProfileLC       AACProfile = 2
	AACProfileSSR      AACProfile = 3
	AACProfileLTP      AACProfile = 4
	AACProfileSBR      AACProfile = 5
	AACProfileScalable AACProfile = 6
)

// Name returns a human-readable label, matching common HE-AAC naming for
// the SBR case.
func (p AACProfile) Name() string {
	switch p {
	case AACProfileMain:
		return "AAC Main"
	case AACProfileLC:
		return "AAC LC"
	case AACProfileSSR:
		return "AAC SSR"
	case AACProfileLTP:
		return "AAC LTP"
	case AACProfileSBR:
		return "HE-AAC"
	case AACProfileScalable:
		return "AAC Scalable"
	default:
		return "unknown"
	}
}

// aacSamplingFrequencies is the standard AudioSpecificConfig sampling
// frequency table indexed by the 4-bit sampling frequency index.
var aacSamplingFrequencies = [16]uint32{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350, 0, 0, 0,
}

// AudioSpecificConfig is the bit-packed structure carried in an AAC
// sequence header (AACPacketType 0).
type AudioSpecificConfig struct {
	ObjectType            uint8
	SamplingFrequencyIdx  uint8
	SamplingFrequency     uint32
	ChannelConfiguration  uint8
	FrameLengthFlag       bool
	DependsOnCoreCoder    bool
	ExtensionFlag         bool
	Raw                   []byte
}

// ParseAudioSpecificConfig decodes an AudioSpecificConfig from the bytes
// following an AAC sequence header's packet-type byte.
//
//	audioObjectType:        5 bits
//	samplingFrequencyIndex: 4 bits
//	  if 0xF: samplingFrequency: 24 bits
//	channelConfiguration:   4 bits
//	frameLengthFlag/dependsOnCoreCoder/extensionFlag: 1 bit each
func ParseAudioSpecificConfig(data []byte) (*AudioSpecificConfig, error) {
	if len(data) < 2 {
		return nil, ErrInvalidAACPacket
	}
	b0, b1 := data[0], data[1]

	objectType := (b0 >> 3) & 0x1F
	freqIdx := ((b0 & 0x07) << 1) | ((b1 >> 7) & 0x01)

	cfgByte := b1
	var freq uint32
	if freqIdx == 0x0F {
		if len(data) < 5 {
			return nil, ErrInvalidAACPacket
		}
		f0 := uint32(data[1] & 0x7F)
		f1 := uint32(data[2])
		f2 := uint32(data[3])
		f3 := uint32(data[4] >> 7)
		freq = (f0 << 17) | (f1 << 9) | (f2 << 1) | f3
		cfgByte = data[4]
	} else {
		freq = aacSamplingFrequencies[freqIdx]
	}

	return &AudioSpecificConfig{
		ObjectType:           objectType,
		SamplingFrequencyIdx: freqIdx,
		SamplingFrequency:    freq,
		ChannelConfiguration: (cfgByte >> 3) & 0x0F,
		FrameLengthFlag:      cfgByte&0x04 != 0,
		DependsOnCoreCoder:   cfgByte&0x02 != 0,
		ExtensionFlag:        cfgByte&0x01 != 0,
		Raw:                  data,
	}, nil
}

// Profile maps the object type to a named AAC profile, if recognized.
func (c *AudioSpecificConfig) Profile() (AACProfile, bool) {
	p := AACProfile(c.ObjectType)
	switch p {
	case AACProfileMain, AACProfileLC, AACProfileSSR, AACProfileLTP, AACProfileSBR, AACProfileScalable:
		return p, true
	default:
		return 0, false
	}
}

// Channels maps the 4-bit channel configuration to a channel count; 0
// means the channel layout is defined elsewhere in the stream.
func (c *AudioSpecificConfig) Channels() uint8 {
	switch c.ChannelConfiguration {
	case 1:
		return 1
	case 2:
		return 2
	case 3:
		return 3
	case 4:
		return 4
	case 5:
		return 5
	case 6:
		return 6
	case 7:
		return 8
	default:
		return 0
	}
}

// SamplesPerFrame returns 960 or 1024 depending on the frame length flag.
func (c *AudioSpecificConfig) SamplesPerFrame() uint32 {
	if c.FrameLengthFlag {
		return 960
	}
	return 1024
}

// GenerateADTSHeader builds the 7-byte ADTS header (no CRC) for a raw AAC
// frame of the given length, for callers writing AAC out to a container
// that expects ADTS framing instead of RTMP's raw AAC.
func GenerateADTSHeader(c *AudioSpecificConfig, frameLength int) [7]byte {
	profile := c.ObjectType - 1
	if c.ObjectType == 0 {
		profile = 0
	}
	freqIdx := c.SamplingFrequencyIdx
	channels := c.ChannelConfiguration

	frameLen := frameLength + 7

	var h [7]byte
	h[0] = 0xFF
	h[1] = 0xF1
	h[2] = ((profile & 0x03) << 6) | ((freqIdx & 0x0F) << 2) | ((channels >> 2) & 0x01)
	h[3] = ((channels & 0x03) << 6) | byte((frameLen>>11)&0x03)
	h[4] = byte((frameLen >> 3) & 0xFF)
	h[5] = byte(((frameLen & 0x07) << 5) | 0x1F)
	h[6] = 0xFC
	return h
}
