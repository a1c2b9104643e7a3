// Package media classifies FLV-shaped RTMP audio/video payload bytes
// (video frame type/codec, AVC/AAC sequence headers, keyframe detection)
// and implements the GOP catch-up buffer. RTMP carries each audio/video
// message as an FLV tag body without the FLV tag header.
package media

// TagType distinguishes audio, video, and script (metadata) tags.
type TagType int

const (
	TagVideo TagType = iota
	TagAudio
	TagScript
)

// VideoFrameType is the upper 4 bits of a video tag's first byte.
type VideoFrameType byte

const (
	FrameKeyframe             VideoFrameType = 1
	FrameInter                VideoFrameType = 2
	FrameDisposableInter      VideoFrameType = 3
	FrameGeneratedKeyframe    VideoFrameType = 4
	FrameVideoInfoOrCommand   VideoFrameType = 5
)

// IsKeyframe reports whether this frame type is treated as a seek point.
func (f VideoFrameType) IsKeyframe() bool {
	return f == FrameKeyframe || f == FrameGeneratedKeyframe
}

// VideoCodec is the lower 4 bits of a video tag's first byte.
type VideoCodec byte

const (
	CodecSorensonH263 VideoCodec = 2
	CodecScreenVideo   VideoCodec = 3
	CodecVP6           VideoCodec = 4
	CodecVP6Alpha      VideoCodec = 5
	CodecScreenVideoV2 VideoCodec = 6
	CodecAVC           VideoCodec = 7
	CodecHEVC          VideoCodec = 12 // enhanced RTMP extension
	CodecAV1           VideoCodec = 13 // enhanced RTMP extension
)

// AudioFormat is the upper 4 bits of an audio tag's first byte.
type AudioFormat byte

const (
	AudioLinearPCMPlatform AudioFormat = 0
	AudioADPCM             AudioFormat = 1
	AudioMP3               AudioFormat = 2
	AudioLinearPCMLE       AudioFormat = 3
	AudioNellymoser16k     AudioFormat = 4
	AudioNellymoser8k      AudioFormat = 5
	AudioNellymoser        AudioFormat = 6
	AudioG711ALaw          AudioFormat = 7
	AudioG711MuLaw         AudioFormat = 8
	AudioAAC               AudioFormat = 10
	AudioSpeex             AudioFormat = 11
	AudioMP3_8k            AudioFormat = 14
	AudioDeviceSpecific    AudioFormat = 15
)

// VideoFrameTypeOf extracts the frame type nibble. O(1) on the input.
func VideoFrameTypeOf(b byte) VideoFrameType { return VideoFrameType((b >> 4) & 0x0F) }

// VideoCodecOf extracts the codec id nibble. O(1) on the input.
func VideoCodecOf(b byte) VideoCodec { return VideoCodec(b & 0x0F) }

// AudioFormatOf extracts the sound format nibble. O(1) on the input.
func AudioFormatOf(b byte) AudioFormat { return AudioFormat((b >> 4) & 0x0F) }

// Tag is a classified media payload ready for registry caching/fan-out.
type Tag struct {
	Type      TagType
	Timestamp uint32
	Data      []byte
}

func VideoTag(ts uint32, data []byte) Tag { return Tag{Type: TagVideo, Timestamp: ts, Data: data} }
func AudioTag(ts uint32, data []byte) Tag { return Tag{Type: TagAudio, Timestamp: ts, Data: data} }
func ScriptTag(ts uint32, data []byte) Tag { return Tag{Type: TagScript, Timestamp: ts, Data: data} }

// FrameType returns the video frame type, or (0, false) for non-video or
// empty tags.
func (t Tag) FrameType() (VideoFrameType, bool) {
	if t.Type != TagVideo || len(t.Data) == 0 {
		return 0, false
	}
	return VideoFrameTypeOf(t.Data[0]), true
}

// VideoCodec returns the video codec id, or (0, false) for non-video or
// empty tags.
func (t Tag) VideoCodec() (VideoCodec, bool) {
	if t.Type != TagVideo || len(t.Data) == 0 {
		return 0, false
	}
	return VideoCodecOf(t.Data[0]), true
}

// AudioFormat returns the audio format, or (0, false) for non-audio or
// empty tags.
func (t Tag) AudioFormat() (AudioFormat, bool) {
	if t.Type != TagAudio || len(t.Data) == 0 {
		return 0, false
	}
	return AudioFormatOf(t.Data[0]), true
}

// IsKeyframe reports whether this is a video keyframe/generated-keyframe
// tag. O(1): it only inspects the first byte.
func (t Tag) IsKeyframe() bool {
	ft, ok := t.FrameType()
	return ok && ft.IsKeyframe()
}

// IsAVCSequenceHeader reports whether this video tag carries an
// AVCDecoderConfigurationRecord (AVCPacketType 0). O(1).
func (t Tag) IsAVCSequenceHeader() bool {
	codec, ok := t.VideoCodec()
	if !ok || codec != CodecAVC || len(t.Data) < 2 {
		return false
	}
	return t.Data[1] == 0
}

// IsAACSequenceHeader reports whether this audio tag carries an
// AudioSpecificConfig (AACPacketType 0). O(1).
func (t Tag) IsAACSequenceHeader() bool {
	format, ok := t.AudioFormat()
	if !ok || format != AudioAAC || len(t.Data) < 2 {
		return false
	}
	return t.Data[1] == 0
}

// IsHeader reports whether this tag is any recognized sequence header
// (AVC or AAC); script tags are never headers in this sense.
func (t Tag) IsHeader() bool {
	switch t.Type {
	case TagVideo:
		return t.IsAVCSequenceHeader()
	case TagAudio:
		return t.IsAACSequenceHeader()
	default:
		return false
	}
}

// Size returns the tag payload length in bytes.
func (t Tag) Size() int { return len(t.Data) }
