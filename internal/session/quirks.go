package session

import "strings"

// EncoderType classifies the publishing client by its connect-time
// flashVer string, so command-sequence tolerance and logging can be
// tailored to known encoder quirks.
type EncoderType int

const (
	EncoderUnknown EncoderType = iota
	EncoderOBS
	EncoderFFmpeg
	EncoderFlashMediaEncoder
	EncoderWirecast
	EncoderXSplit
	EncoderLarix
	EncoderOther
)

func (e EncoderType) String() string {
	switch e {
	case EncoderOBS:
		return "obs"
	case EncoderFFmpeg:
		return "ffmpeg"
	case EncoderFlashMediaEncoder:
		return "fmle"
	case EncoderWirecast:
		return "wirecast"
	case EncoderXSplit:
		return "xsplit"
	case EncoderLarix:
		return "larix"
	case EncoderOther:
		return "other"
	default:
		return "unknown"
	}
}

// ClassifyEncoder maps a connect command's flashVer argument to a known
// encoder, via lowercase substring matching against the strings real
// encoders are known to send.
func ClassifyEncoder(flashVer string) EncoderType {
	lower := strings.ToLower(flashVer)
	switch {
	case strings.Contains(lower, "obs"):
		return EncoderOBS
	case strings.Contains(lower, "fmle"), strings.Contains(lower, "flash media"):
		return EncoderFlashMediaEncoder
	case strings.Contains(lower, "wirecast"):
		return EncoderWirecast
	case strings.Contains(lower, "xsplit"):
		return EncoderXSplit
	case strings.Contains(lower, "larix"):
		return EncoderLarix
	case strings.Contains(lower, "lavf"), strings.Contains(lower, "librtmp"):
		return EncoderFFmpeg
	case lower == "":
		return EncoderUnknown
	default:
		return EncoderOther
	}
}

// CommandSequenceState is where a connection sits in the command
// ordering state machine.
type CommandSequenceState int

const (
	SeqInitial CommandSequenceState = iota
	SeqConnected
	SeqStreamCreated
	SeqPublishing
	SeqPlaying
)

// CommandSequence guards command ordering while tolerating the quirks
// real encoders are known to exhibit: OBS sends releaseStream/FCPublish
// before connect finishes replying, and createStream is accepted a turn
// early by several clients.
type CommandSequence struct {
	state CommandSequenceState
}

// IsValidCommand reports whether name is acceptable in the sequence's
// current state, without applying the transition.
func (c *CommandSequence) IsValidCommand(name string) bool {
	switch name {
	case "connect":
		return c.state == SeqInitial
	case "releaseStream", "FCPublish":
		return true
	case "createStream":
		return c.state == SeqInitial || c.state == SeqConnected
	case "publish", "play":
		return c.state == SeqStreamCreated
	case "FCUnpublish", "deleteStream", "closeStream":
		return c.state == SeqPublishing || c.state == SeqPlaying
	default:
		return true
	}
}

// OnCommand applies name's transition to the sequence state. Call only
// after IsValidCommand has accepted the command (or in lenient mode,
// unconditionally).
func (c *CommandSequence) OnCommand(name string) {
	switch name {
	case "connect":
		if c.state == SeqInitial {
			c.state = SeqConnected
		}
	case "createStream":
		if c.state == SeqInitial || c.state == SeqConnected {
			c.state = SeqStreamCreated
		}
	case "publish":
		if c.state == SeqStreamCreated {
			c.state = SeqPublishing
		}
	case "play":
		if c.state == SeqStreamCreated {
			c.state = SeqPlaying
		}
	case "FCUnpublish", "deleteStream", "closeStream":
		if c.state == SeqPublishing || c.state == SeqPlaying {
			c.state = SeqConnected
		}
	}
}
