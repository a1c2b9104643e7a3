package media

import "testing"

func TestParseAVCConfig(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1e}
	pps := []byte{0x68, 0xce, 0x3c, 0x80}

	data := []byte{
		1,    // configurationVersion
		0x42, // profile
		0x00, // compatibility
		0x1e, // level
		0xFF, // lengthSizeMinusOne = 3 (NaluLengthSize=4)
		0xE1, // numOfSPS = 1 (upper 3 bits reserved)
	}
	data = append(data, byte(len(sps)>>8), byte(len(sps)))
	data = append(data, sps...)
	data = append(data, 1) // numOfPPS
	data = append(data, byte(len(pps)>>8), byte(len(pps)))
	data = append(data, pps...)

	cfg, err := ParseAVCConfig(data)
	if err != nil {
		t.Fatalf("ParseAVCConfig: %v", err)
	}
	if cfg.NaluLengthSize != 4 {
		t.Fatalf("expected length size 4, got %d", cfg.NaluLengthSize)
	}
	if len(cfg.SPS) != 1 || len(cfg.PPS) != 1 {
		t.Fatalf("expected 1 SPS and 1 PPS, got %d/%d", len(cfg.SPS), len(cfg.PPS))
	}
}

func TestParseAVCConfigRejectsBadVersion(t *testing.T) {
	data := []byte{2, 0, 0, 0, 0, 0, 0}
	if _, err := ParseAVCConfig(data); err == nil {
		t.Fatal("expected error for non-1 configuration version")
	}
}

func TestNaluTypeOf(t *testing.T) {
	if NaluTypeOf(0x65) != NaluIDR {
		t.Fatalf("expected IDR, got %v", NaluTypeOf(0x65))
	}
	if !NaluIDR.IsKeyframe() {
		t.Fatal("IDR must be a keyframe")
	}
	if NaluTypeOf(0x67) != NaluSPS {
		t.Fatalf("expected SPS, got %v", NaluTypeOf(0x67))
	}
}

func TestConvertAVCCToAnnexB(t *testing.T) {
	nal := []byte{0x65, 0xAA, 0xBB}
	avcc := []byte{0, 0, 0, byte(len(nal))}
	avcc = append(avcc, nal...)

	annexb := ConvertAVCCToAnnexB(avcc, 4)
	want := append([]byte{0, 0, 0, 1}, nal...)
	if len(annexb) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(annexb), len(want))
	}
	for i := range want {
		if annexb[i] != want[i] {
			t.Fatalf("byte %d mismatch: got %x want %x", i, annexb[i], want[i])
		}
	}
}
