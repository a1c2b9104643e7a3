package conn_test

import (
	"context"
	"net"
	"testing"
	"time"

	"chunkcast/internal/chunk"
	"chunkcast/internal/client"
	"chunkcast/internal/command"
	"chunkcast/internal/conn"
	"chunkcast/internal/handler"
	"chunkcast/internal/registry"
)

// newServerConn wires a fresh conn.Conn over the server end of pipe,
// sharing reg and disp with any other connections in the same test, and
// runs Serve in a goroutine. The caller owns the client end of pipe.
func newServerConn(t *testing.T, id uint64, pipe net.Conn, disp *command.Dispatcher, reg *registry.Registry, h handler.Handler) {
	t.Helper()
	c := conn.New(id, pipe, conn.Config{IdleTimeout: 5 * time.Second}, disp, reg, h, nil, nil)
	go c.Serve()
}

func newRegistryAndDispatcher() (*registry.Registry, *command.Dispatcher) {
	reg := registry.New(registry.Config{
		BroadcastCapacity:    16,
		PublisherGracePeriod: 50 * time.Millisecond,
		IdleStreamTimeout:    50 * time.Millisecond,
		CleanupInterval:      10 * time.Millisecond,
		MaxGopSize:           1 << 20,
		GopBufferEnabled:     true,
	}, nil)
	disp := command.New(command.Config{
		ChunkSize:     4096,
		WindowAckSize: 2_500_000,
		PeerBandwidth: 2_500_000,
	}, reg, handler.Default{}, nil)
	return reg, disp
}

func dialClient(t *testing.T, pipe net.Conn, app string) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := client.Attach(ctx, pipe)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := c.Connect(ctx, app, "rtmp://localhost/"+app); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return c
}

func keyframeTag() []byte {
	// frame type=keyframe(1), codec=AVC(7); AVCPacketType=1 (NALU), CTS
	// offset 0; then a length-prefixed NAL unit of type 5 (IDR).
	return []byte{0x17, 0x01, 0, 0, 0, 0, 0, 0, 4, 0x65, 0xAA, 0xBB, 0xCC}
}

func interTag() []byte {
	// frame type=inter(2), codec=AVC(7); NALU type 1 (non-IDR slice).
	return []byte{0x27, 0x01, 0, 0, 0, 0, 0, 0, 4, 0x41, 0x01, 0x02, 0x03}
}

// TestPublishThenPlayHappyPath drives scenario 1 from spec.md §8 over a
// real handshake + chunk stream + command dispatch, using net.Pipe for
// the transport: a publisher sends a keyframe and ten inter frames, a
// subscriber that joined beforehand must see all of them in order.
func TestPublishThenPlayHappyPath(t *testing.T) {
	reg, disp := newRegistryAndDispatcher()

	pubServer, pubClientConn := net.Pipe()
	subServer, subClientConn := net.Pipe()
	newServerConn(t, 1, pubServer, disp, reg, handler.Default{})
	newServerConn(t, 2, subServer, disp, reg, handler.Default{})

	pub := dialClient(t, pubClientConn, "live")
	sub := dialClient(t, subClientConn, "live")

	ctx := context.Background()
	pubStreamID, err := pub.CreateStream(ctx)
	if err != nil {
		t.Fatalf("pub createStream: %v", err)
	}
	if err := pub.Publish(ctx, pubStreamID, "k", "live"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	subStreamID, err := sub.CreateStream(ctx)
	if err != nil {
		t.Fatalf("sub createStream: %v", err)
	}
	if err := sub.Play(ctx, subStreamID, "k"); err != nil {
		t.Fatalf("play: %v", err)
	}

	if err := pub.SendVideo(0, keyframeTag()); err != nil {
		t.Fatalf("send keyframe: %v", err)
	}
	for i := 1; i <= 10; i++ {
		if err := pub.SendVideo(uint32(i*33), interTag()); err != nil {
			t.Fatalf("send inter %d: %v", i, err)
		}
	}

	var gotTimestamps []uint32
	for len(gotTimestamps) < 11 {
		msg, err := readWithDeadline(t, sub, time.Second)
		if err != nil {
			t.Fatalf("sub read frame %d: %v", len(gotTimestamps), err)
		}
		gotTimestamps = append(gotTimestamps, msg.Timestamp)
	}

	if gotTimestamps[0] != 0 {
		t.Fatalf("expected first frame at ts=0 (the keyframe), got %d", gotTimestamps[0])
	}
	for i := 1; i < len(gotTimestamps); i++ {
		if gotTimestamps[i] != uint32(i*33) {
			t.Fatalf("frame %d: want ts=%d, got %d", i, i*33, gotTimestamps[i])
		}
	}
}

// TestLateJoinerReceivesCatchup drives scenario 2: a subscriber that
// joins after a keyframe and several inter frames is served the cached
// GOP on play; the first frame it reads is the cached keyframe at ts=0.
func TestLateJoinerReceivesCatchup(t *testing.T) {
	reg, disp := newRegistryAndDispatcher()

	pubServer, pubClientConn := net.Pipe()
	newServerConn(t, 1, pubServer, disp, reg, handler.Default{})
	pub := dialClient(t, pubClientConn, "live")

	ctx := context.Background()
	pubStreamID, err := pub.CreateStream(ctx)
	if err != nil {
		t.Fatalf("pub createStream: %v", err)
	}
	if err := pub.Publish(ctx, pubStreamID, "k", "live"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if err := pub.SendVideo(0, keyframeTag()); err != nil {
		t.Fatalf("send keyframe: %v", err)
	}
	for i := 1; i <= 9; i++ {
		if err := pub.SendVideo(uint32(i*33), interTag()); err != nil {
			t.Fatalf("send inter %d: %v", i, err)
		}
	}
	// Give the registry's broadcast fan-out a moment to update its GOP
	// cache (the publisher's Conn.handleMedia runs on its own goroutine).
	time.Sleep(50 * time.Millisecond)

	subServer, subClientConn := net.Pipe()
	newServerConn(t, 2, subServer, disp, reg, handler.Default{})
	sub := dialClient(t, subClientConn, "live")

	subStreamID, err := sub.CreateStream(ctx)
	if err != nil {
		t.Fatalf("sub createStream: %v", err)
	}
	if err := sub.Play(ctx, subStreamID, "k"); err != nil {
		t.Fatalf("play: %v", err)
	}

	msg, err := readWithDeadline(t, sub, time.Second)
	if err != nil {
		t.Fatalf("read catchup frame 0: %v", err)
	}
	if msg.Timestamp != 0 {
		t.Fatalf("late joiner's first frame should be the cached keyframe at ts=0, got %d", msg.Timestamp)
	}
}

// TestDoublePublishRejected drives scenario 6: a second publisher for a
// key already actively owned is rejected, and the original publisher is
// unaffected.
func TestDoublePublishRejected(t *testing.T) {
	reg, disp := newRegistryAndDispatcher()

	aServer, aClientConn := net.Pipe()
	newServerConn(t, 1, aServer, disp, reg, handler.Default{})
	a := dialClient(t, aClientConn, "live")

	ctx := context.Background()
	aStreamID, err := a.CreateStream(ctx)
	if err != nil {
		t.Fatalf("a createStream: %v", err)
	}
	if err := a.Publish(ctx, aStreamID, "k", "live"); err != nil {
		t.Fatalf("a publish: %v", err)
	}

	cServer, cClientConn := net.Pipe()
	newServerConn(t, 2, cServer, disp, reg, handler.Default{})
	c := dialClient(t, cClientConn, "live")

	cStreamID, err := c.CreateStream(ctx)
	if err != nil {
		t.Fatalf("c createStream: %v", err)
	}
	if err := c.Publish(ctx, cStreamID, "k", "live"); err == nil {
		t.Fatalf("expected second publish of the same key to be rejected")
	}

	// A continues unaffected: it can still send video without error, and
	// the registry still attributes the stream to A's session id.
	if err := a.SendVideo(0, keyframeTag()); err != nil {
		t.Fatalf("original publisher should be unaffected: %v", err)
	}
	stats, ok := reg.StatsFor(registry.Key{App: "live", Name: "k"})
	if !ok || !stats.HasPublisher || stats.PublisherID != 1 {
		t.Fatalf("expected stream still owned by session 1, got %+v (ok=%v)", stats, ok)
	}
}

// readWithDeadline calls ReadFrame with a bound so a protocol bug that
// stalls delivery fails the test instead of hanging it forever.
func readWithDeadline(t *testing.T, c *client.Client, d time.Duration) (*chunk.Message, error) {
	t.Helper()
	type result struct {
		msg *chunk.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := c.ReadFrame()
		ch <- result{msg, err}
	}()
	select {
	case r := <-ch:
		return r.msg, r.err
	case <-time.After(d):
		t.Fatalf("timed out waiting for a frame")
		return nil, nil
	}
}
