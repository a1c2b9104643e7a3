package session

import "testing"

func TestStateLifecycle(t *testing.T) {
	s := New(1, "127.0.0.1:12345")
	if s.Phase != PhaseConnected {
		t.Fatalf("expected PhaseConnected, got %v", s.Phase)
	}
	s.StartHandshake()
	if s.Phase != PhaseHandshaking {
		t.Fatalf("expected PhaseHandshaking, got %v", s.Phase)
	}
	s.CompleteHandshake()
	if s.Phase != PhaseWaitingConnect {
		t.Fatalf("expected PhaseWaitingConnect, got %v", s.Phase)
	}
	s.OnConnect(&ConnectParams{App: "live"}, EncoderOBS)
	if s.Phase != PhaseActive || !s.IsActive() {
		t.Fatalf("expected PhaseActive, got %v", s.Phase)
	}
	if s.App() != "live" {
		t.Fatalf("expected app 'live', got %q", s.App())
	}
}

func TestAllocateStreamID(t *testing.T) {
	s := New(1, "")
	id1 := s.AllocateStreamID(RolePublisher)
	id2 := s.AllocateStreamID(RoleSubscriber)
	if id1 == 0 || id2 == 0 {
		t.Fatal("stream id 0 must never be allocated")
	}
	if id1 == id2 {
		t.Fatal("expected distinct stream ids")
	}
	if _, ok := s.GetStream(id1); !ok {
		t.Fatal("expected to find allocated stream")
	}
}

func TestAddBytesReceivedTriggersAck(t *testing.T) {
	s := New(1, "")
	s.WindowAckSize = 100
	if s.AddBytesReceived(50) {
		t.Fatal("expected no ack due yet")
	}
	if !s.AddBytesReceived(60) {
		t.Fatal("expected ack due after crossing window size")
	}
	s.MarkAckSent()
	if s.LastAckSequence != uint32(s.BytesReceived) {
		t.Fatal("MarkAckSent should record the current byte count")
	}
}
