package media

import "testing"

func TestParseAudioSpecificConfig(t *testing.T) {
	// AAC-LC, 44100 Hz, stereo
	cfg, err := ParseAudioSpecificConfig([]byte{0x12, 0x10})
	if err != nil {
		t.Fatalf("ParseAudioSpecificConfig: %v", err)
	}
	if cfg.ObjectType != 2 {
		t.Fatalf("expected object type 2 (LC), got %d", cfg.ObjectType)
	}
	if cfg.SamplingFrequency != 44100 {
		t.Fatalf("expected 44100Hz, got %d", cfg.SamplingFrequency)
	}
	if cfg.Channels() != 2 {
		t.Fatalf("expected stereo, got %d", cfg.Channels())
	}
	profile, ok := cfg.Profile()
	if !ok || profile != AACProfileLC {
		t.Fatalf("expected LC profile, got %v ok=%v", profile, ok)
	}
}

func TestGenerateADTSHeader(t *testing.T) {
	cfg := &AudioSpecificConfig{ObjectType: 2, SamplingFrequencyIdx: 4, ChannelConfiguration: 2}
	h := GenerateADTSHeader(cfg, 100)
	if h[0] != 0xFF || h[1]&0xF0 != 0xF0 {
		t.Fatalf("unexpected ADTS syncword: %x %x", h[0], h[1])
	}
}

func TestAACPacketTypeConstants(t *testing.T) {
	if AACSequenceHeader != 0 || AACRaw != 1 {
		t.Fatal("unexpected AACPacketType constant values")
	}
}
