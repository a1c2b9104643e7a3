package registry

import (
	"errors"
	"testing"
	"time"

	"chunkcast/internal/media"
	"chunkcast/internal/rtmperr"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PublisherGracePeriod = 50 * time.Millisecond
	cfg.IdleStreamTimeout = 50 * time.Millisecond
	return cfg
}

func videoTag(ts uint32, keyframe bool) media.Tag {
	data := make([]byte, 16)
	if keyframe {
		data[0] = 0x17
	} else {
		data[0] = 0x27
	}
	return media.VideoTag(ts, data)
}

func TestRegisterPublisherRejectsDoublePublish(t *testing.T) {
	r := New(testConfig(), nil)
	key := Key{App: "live", Name: "k"}

	if err := r.RegisterPublisher(key, 1); err != nil {
		t.Fatalf("first publisher: %v", err)
	}
	err := r.RegisterPublisher(key, 2)
	if !errors.Is(err, rtmperr.ErrAlreadyPublishing) {
		t.Fatalf("expected ErrAlreadyPublishing, got %v", err)
	}
	if pid, _ := r.Entry(key).PublisherID(); pid != 1 {
		t.Fatalf("original publisher should be unaffected, got %d", pid)
	}
}

// I1: publisher_id.is_some() <=> state == Active
func TestInvariantPublisherActiveIff(t *testing.T) {
	r := New(testConfig(), nil)
	key := Key{App: "live", Name: "k"}
	r.RegisterPublisher(key, 1)
	e := r.Entry(key)
	if _, ok := e.PublisherID(); !ok || e.State() != StateActive {
		t.Fatal("expected publisher set and state Active")
	}
	r.UnregisterPublisher(key, 1)
	if _, ok := e.PublisherID(); ok || e.State() == StateActive {
		t.Fatal("expected publisher cleared and state not Active after unregister")
	}
}

// I7/I8: reconnect within grace succeeds and becomes Active; double
// publish while Active is always rejected.
func TestPublisherReconnectWithinGrace(t *testing.T) {
	r := New(testConfig(), nil)
	key := Key{App: "live", Name: "k"}
	r.RegisterPublisher(key, 1)

	sub, _, err := r.Subscribe(key)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	r.UnregisterPublisher(key, 1)

	e := r.Entry(key)
	if e.State() != StateGracePeriod {
		t.Fatalf("expected GracePeriod with a subscriber attached, got %v", e.State())
	}

	if err := r.RegisterPublisher(key, 2); err != nil {
		t.Fatalf("reconnect within grace should succeed: %v", err)
	}
	if e.State() != StateActive {
		t.Fatalf("expected Active after reconnect, got %v", e.State())
	}
	if e.SubscriberCount() != 1 {
		t.Fatalf("subscriber should survive reconnect, got count %d", e.SubscriberCount())
	}
	r.Unsubscribe(key, sub)
}

func TestPublisherDisconnectNoSubscribersGoesIdle(t *testing.T) {
	r := New(testConfig(), nil)
	key := Key{App: "live", Name: "k"}
	r.RegisterPublisher(key, 1)
	r.UnregisterPublisher(key, 1)
	if r.Entry(key).State() != StateIdle {
		t.Fatalf("expected Idle with no subscribers, got %v", r.Entry(key).State())
	}
}

func TestCleanupSweepsExpiredIdle(t *testing.T) {
	r := New(testConfig(), nil)
	key := Key{App: "live", Name: "k"}
	r.RegisterPublisher(key, 1)
	r.UnregisterPublisher(key, 1) // no subscribers -> Idle

	time.Sleep(80 * time.Millisecond)
	removed := r.Cleanup()
	if len(removed) != 1 || removed[0] != key {
		t.Fatalf("expected idle entry swept, got %v", removed)
	}
	if r.Entry(key) != nil {
		t.Fatal("expected entry removed from registry")
	}
}

func TestSubscribeUnknownStream(t *testing.T) {
	r := New(testConfig(), nil)
	_, _, err := r.Subscribe(Key{App: "live", Name: "nope"})
	if !errors.Is(err, rtmperr.ErrStreamNotFound) {
		t.Fatalf("expected ErrStreamNotFound, got %v", err)
	}
}

func TestBroadcastDeliversCatchupThenLive(t *testing.T) {
	r := New(testConfig(), nil)
	key := Key{App: "live", Name: "k"}
	r.RegisterPublisher(key, 1)

	r.Broadcast(key, FrameFromTag(videoTag(0, true)))
	r.Broadcast(key, FrameFromTag(videoTag(33, false)))

	sub, catchup, err := r.Subscribe(key)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if len(catchup) != 2 {
		t.Fatalf("expected 2 catchup frames (keyframe+inter), got %d", len(catchup))
	}
	if !catchup[0].IsKeyframe {
		t.Fatal("first catchup frame must be the keyframe")
	}
	for _, f := range catchup {
		f.Release()
	}

	r.Broadcast(key, FrameFromTag(videoTag(66, false)))
	select {
	case f := <-sub.Frames():
		if f.TimestampMS != 66 {
			t.Fatalf("expected live frame at ts=66, got %d", f.TimestampMS)
		}
		f.Release()
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live frame")
	}
	r.Unsubscribe(key, sub)
}

func TestSlowSubscriberDemotedUntilNextKeyframe(t *testing.T) {
	cfg := testConfig()
	r := New(cfg, nil)
	key := Key{App: "live", Name: "k"}
	r.RegisterPublisherWithCapacity(key, 1, 1)

	sub, _, err := r.Subscribe(key)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Fill the 1-slot channel so the next send overflows and demotes.
	r.Broadcast(key, FrameFromTag(videoTag(0, true)))
	r.Broadcast(key, FrameFromTag(videoTag(33, false))) // channel full -> demoted, dropped
	r.Broadcast(key, FrameFromTag(videoTag(66, false))) // still lagging -> dropped

	// Drain the one frame that made it through.
	first := <-sub.Frames()
	first.Release()

	r.Broadcast(key, FrameFromTag(videoTag(100, true))) // keyframe -> resync

	select {
	case f := <-sub.Frames():
		if f.TimestampMS != 100 || !f.IsKeyframe {
			t.Fatalf("expected resync at the next keyframe (ts=100), got ts=%d keyframe=%v", f.TimestampMS, f.IsKeyframe)
		}
		f.Release()
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for resync keyframe")
	}
	r.Unsubscribe(key, sub)
}

func TestDoublePublishRejectedOriginalUnaffected(t *testing.T) {
	r := New(testConfig(), nil)
	key := Key{App: "live", Name: "k"}
	r.RegisterPublisher(key, 1)

	if err := r.RegisterPublisher(key, 2); !errors.Is(err, rtmperr.ErrAlreadyPublishing) {
		t.Fatalf("expected ErrAlreadyPublishing, got %v", err)
	}

	r.Broadcast(key, FrameFromTag(videoTag(0, true)))
	if pid, _ := r.Entry(key).PublisherID(); pid != 1 {
		t.Fatalf("original publisher must be unaffected by the rejected attempt, got %d", pid)
	}
}
