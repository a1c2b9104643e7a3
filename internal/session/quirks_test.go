package session

import "testing"

func TestClassifyEncoder(t *testing.T) {
	cases := map[string]EncoderType{
		"FMLE/3.0 (compatible; FMSc/1.0)": EncoderFlashMediaEncoder,
		"obs-studio":                      EncoderOBS,
		"Lavf58.29.100":                   EncoderFFmpeg,
		"Wirecast":                        EncoderWirecast,
		"XSplitBroadcaster":                EncoderXSplit,
		"Larix Broadcaster":               EncoderLarix,
		"SomeOtherEncoder":                EncoderOther,
		"":                                 EncoderUnknown,
	}
	for flashVer, want := range cases {
		if got := ClassifyEncoder(flashVer); got != want {
			t.Errorf("ClassifyEncoder(%q) = %v, want %v", flashVer, got, want)
		}
	}
}

func TestCommandSequenceOBSQuirks(t *testing.T) {
	var seq CommandSequence
	// OBS sends releaseStream/FCPublish before the connect response lands.
	if !seq.IsValidCommand("releaseStream") {
		t.Fatal("releaseStream must always be valid")
	}
	if !seq.IsValidCommand("FCPublish") {
		t.Fatal("FCPublish must always be valid")
	}
	if !seq.IsValidCommand("connect") {
		t.Fatal("connect must be valid in initial state")
	}
	seq.OnCommand("connect")
	if !seq.IsValidCommand("createStream") {
		t.Fatal("createStream must be valid right after connect")
	}
	seq.OnCommand("createStream")
	if !seq.IsValidCommand("publish") {
		t.Fatal("publish must be valid after createStream")
	}
	seq.OnCommand("publish")
	if seq.IsValidCommand("publish") {
		t.Fatal("a second publish on the same stream must not be valid")
	}
}

func TestCommandSequenceRejectsOutOfOrder(t *testing.T) {
	var seq CommandSequence
	if seq.IsValidCommand("publish") {
		t.Fatal("publish before createStream must be rejected")
	}
}
