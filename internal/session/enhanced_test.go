package session

import "testing"

func TestCapsExIntersection(t *testing.T) {
	client := CapsReconnect | CapsMultitrack | CapsModEx
	server := CapsMultitrack | CapsModEx
	common := client.Intersection(server)
	if common.SupportsReconnect() {
		t.Fatal("reconnect was client-only, must not survive intersection")
	}
	if !common.SupportsMultitrack() || !common.SupportsModEx() {
		t.Fatal("shared capabilities must survive intersection")
	}
}

func TestEnhancedCapabilitiesIntersect(t *testing.T) {
	client := DefaultEnhancedCapabilities()
	client.CapsEx = CapsReconnect | CapsModEx
	client.VideoCodecs[VideoFourCcVP8] = CanDecode

	server := DefaultEnhancedCapabilities()
	server.CapsEx = CapsModEx

	common := client.Intersect(server)
	if !common.Enabled {
		t.Fatal("expected enabled when both sides enabled")
	}
	if common.CapsEx.SupportsReconnect() {
		t.Fatal("client-only capability must not appear in the intersection")
	}
	if !common.CapsEx.SupportsModEx() {
		t.Fatal("shared capability must survive")
	}
	avcCap, ok := common.VideoCodecs[VideoFourCcAVC]
	if !ok || !avcCap.CanForward() {
		t.Fatal("expected AVC forward capability in common set")
	}
	if common.SupportsVideoCodec(VideoFourCcVP8) {
		t.Fatal("VP8 was client-only and must not appear in the intersection")
	}
}

func TestEnhancedCapabilitiesIntersectDisabled(t *testing.T) {
	client := DefaultEnhancedCapabilities()
	server := NewEnhancedCapabilities()
	common := client.Intersect(server)
	if common.Enabled {
		t.Fatal("intersection with a disabled peer must be disabled")
	}
}
