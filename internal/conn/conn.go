// Package conn drives one accepted RTMP socket end to end: the
// handshake, the read loop that reassembles chunks and dispatches
// commands, and — once a publish or play succeeds — the media relay in
// either direction.
package conn

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"chunkcast/internal/chunk"
	"chunkcast/internal/command"
	"chunkcast/internal/handler"
	"chunkcast/internal/handshake"
	"chunkcast/internal/media"
	"chunkcast/internal/metrics"
	"chunkcast/internal/registry"
	"chunkcast/internal/session"
)

// Config carries the per-connection knobs the listener threads through
// from internal/config.
type Config struct {
	Strict            bool
	ConnectionTimeout time.Duration
	IdleTimeout       time.Duration
}

// Chunk stream ids used for media relayed out to a subscriber,
// independent of whatever CSIDs the inbound publisher used.
const (
	csidAudio = 4
	csidData  = 5
	csidVideo = 6
)

// Conn owns one accepted socket for its entire lifetime.
type Conn struct {
	id  uint64
	raw net.Conn
	cfg Config

	reader  *chunk.Reader
	writer  *chunk.Writer
	writeMu sync.Mutex

	sess       *session.State
	dispatcher *command.Dispatcher
	reg        *registry.Registry
	h          handler.Handler
	m          *metrics.Metrics
	tr         *session.Tracker

	videoTS session.TimestampNormalizer
	audioTS session.TimestampNormalizer

	publishing   bool
	publishedKey registry.Key

	sub           *registry.Subscriber
	subStreamID   uint32
	subscribedKey registry.Key
	subStopCh     chan struct{}
	subDone       chan struct{}
}

// New creates a Conn for a freshly accepted socket. id must be unique
// for the process lifetime (see internal/listener). tr, if non-nil,
// receives this connection's session for the duration of Serve so the
// admin API can list it.
func New(id uint64, raw net.Conn, cfg Config, disp *command.Dispatcher, reg *registry.Registry, h handler.Handler, m *metrics.Metrics, tr *session.Tracker) *Conn {
	// Each connection works on its own copy of the dispatcher, so the
	// command-ordering guard it carries is per connection.
	d := *disp
	c := &Conn{
		id:         id,
		raw:        raw,
		cfg:        cfg,
		dispatcher: &d,
		reg:        reg,
		h:          h,
		m:          m,
		tr:         tr,
		sess:       session.New(id, raw.RemoteAddr().String()),
	}
	if tr != nil {
		tr.Add(c.sess)
	}
	return c
}

// Serve drives the connection until the peer disconnects or a protocol
// error occurs, then tears down any publish/subscribe state. It always
// returns; a nil-free err is typical (EOF on a clean peer close still
// comes back as an error from the reader).
func (c *Conn) Serve() error {
	defer c.cleanup()
	log.Printf("conn %d (%s) id=%s: connected", c.id, c.sess.PeerAddr, c.sess.ConnID)

	if c.cfg.ConnectionTimeout > 0 {
		c.raw.SetDeadline(time.Now().Add(c.cfg.ConnectionTimeout))
	}

	c.sess.StartHandshake()
	if _, err := handshake.ServerHandshake(c.raw, handshake.Options{Strict: false}); err != nil {
		if c.m != nil {
			c.m.RecordHandshakeFailure()
		}
		return fmt.Errorf("handshake: %w", err)
	}
	c.sess.CompleteHandshake()
	c.raw.SetDeadline(time.Time{})

	c.reader = chunk.NewReader(c.raw, c.cfg.Strict)
	c.writer = chunk.NewWriter(c.raw)

	for {
		if c.cfg.IdleTimeout > 0 {
			c.raw.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
		}
		msg, err := c.reader.ReadMessage()
		if err != nil {
			return err
		}
		if err := c.handleMessage(msg); err != nil {
			return err
		}
	}
}

func (c *Conn) handleMessage(msg *chunk.Message) error {
	ackDue := c.sess.AddBytesReceived(uint64(len(msg.Payload)))
	if c.m != nil {
		c.m.RecordBytesReceived(uint64(len(msg.Payload)))
	}
	if ackDue {
		ack := &chunk.Message{
			CSID:    chunk.CSIDProtocolControl,
			Type:    chunk.MessageAcknowledgement,
			Payload: chunk.EncodeAcknowledgement(uint32(c.sess.BytesReceived)),
		}
		if err := c.writeMessage(ack); err != nil {
			return err
		}
		c.sess.MarkAckSent()
	}

	switch msg.Type {
	case chunk.MessageSetChunkSize:
		size, err := chunk.DecodeSetChunkSize(msg.Payload)
		if err != nil {
			if c.m != nil {
				c.m.RecordChunkError("control")
			}
			return err
		}
		c.reader.SetChunkSize(size)
		c.sess.InChunkSize = size
		return nil

	case chunk.MessageAbort, chunk.MessageAcknowledgement, chunk.MessageSetPeerBandwidth, chunk.MessageUserControl:
		return nil

	case chunk.MessageWindowAckSize:
		if size, err := chunk.DecodeWindowAckSize(msg.Payload); err == nil {
			c.sess.WindowAckSize = size
		}
		return nil

	case chunk.MessageCommandAMF0, chunk.MessageCommandAMF3:
		return c.handleCommand(msg)

	case chunk.MessageVideo, chunk.MessageAudio, chunk.MessageDataAMF0, chunk.MessageDataAMF3:
		return c.handleMedia(msg)

	default:
		return nil
	}
}

func (c *Conn) handleCommand(msg *chunk.Message) error {
	result, err := c.dispatcher.Dispatch(c.sess, msg)
	if err != nil {
		if c.m != nil {
			c.m.RecordAMFError()
		}
		return err
	}
	for _, resp := range result.Responses {
		if err := c.writeMessage(resp); err != nil {
			return err
		}
	}

	switch result.Action {
	case command.ActionPublishStarted:
		c.publishing = true
		c.publishedKey = result.Key
		c.videoTS.Reset()
		c.audioTS.Reset()
		if c.m != nil {
			c.m.RecordPublish()
		}
	case command.ActionPlayStarted:
		c.startSubscriber(result.Key, result.StreamID, result.Subscriber)
		if c.m != nil {
			c.m.RecordSubscribe()
		}
	case command.ActionUnpublished:
		if c.publishing && result.Key == c.publishedKey {
			c.stopPublishing()
		}
		if c.sub != nil && result.StreamID == c.subStreamID {
			c.stopSubscribing()
		}
	case command.ActionRejected:
		if c.m != nil {
			c.m.RecordConnectionRejected("command")
		}
	}
	return nil
}

func (c *Conn) handleMedia(msg *chunk.Message) error {
	if !c.publishing {
		return nil
	}

	var tag media.Tag
	switch msg.Type {
	case chunk.MessageVideo:
		tag = media.VideoTag(c.videoTS.Normalize(msg.Timestamp), msg.Payload)
	case chunk.MessageAudio:
		tag = media.AudioTag(c.audioTS.Normalize(msg.Timestamp), msg.Payload)
	default:
		tag = media.ScriptTag(msg.Timestamp, msg.Payload)
	}

	if !c.h.OnMediaTag(c.publishedKey, tag) {
		return nil
	}

	if c.m != nil {
		c.m.RecordFrameReceived(frameKindLabel(tag.Type), tag.Size())
	}

	if mode := c.h.MediaDeliveryMode(); mode == handler.ParsedFrames || mode == handler.Both {
		switch tag.Type {
		case media.TagVideo:
			c.h.OnVideoFrame(c.publishedKey, tag, tag.Timestamp)
			if tag.IsKeyframe() {
				c.h.OnKeyframe(c.publishedKey, tag.Timestamp)
				if c.m != nil {
					c.m.RecordKeyFrame()
				}
			}
		case media.TagAudio:
			c.h.OnAudioFrame(c.publishedKey, tag, tag.Timestamp)
		}
	}

	c.reg.Broadcast(c.publishedKey, registry.FrameFromTag(tag))
	return nil
}

func frameKindLabel(t media.TagType) string {
	switch t {
	case media.TagAudio:
		return "audio"
	case media.TagScript:
		return "metadata"
	default:
		return "video"
	}
}

func (c *Conn) startSubscriber(key registry.Key, streamID uint32, sub *registry.Subscriber) {
	c.sub = sub
	c.subscribedKey = key
	c.subStreamID = streamID
	c.subStopCh = make(chan struct{})
	c.subDone = make(chan struct{})
	go c.relaySubscriber(streamID, sub, c.subStopCh, c.subDone)
}

func (c *Conn) relaySubscriber(streamID uint32, sub *registry.Subscriber, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case frame, ok := <-sub.Frames():
			if !ok {
				return
			}
			msg := frameMessage(streamID, frame)
			frame.Release()
			if err := c.writeMessage(msg); err != nil {
				return
			}
			if c.m != nil {
				c.m.RecordFrameDelivered(frameKindName(frame.Kind))
			}
		}
	}
}

func frameKindName(k registry.FrameKind) string {
	switch k {
	case registry.FrameAudio:
		return "audio"
	case registry.FrameMetadata:
		return "metadata"
	default:
		return "video"
	}
}

// frameMessage copies a routed frame's bytes into a fresh chunk.Message;
// the caller releases the frame's own reference right after this
// returns, so the message must not alias its payload.
func frameMessage(streamID uint32, f registry.BroadcastFrame) *chunk.Message {
	var (
		msgType chunk.MessageType
		csid    uint32
	)
	switch f.Kind {
	case registry.FrameVideo:
		msgType, csid = chunk.MessageVideo, csidVideo
	case registry.FrameAudio:
		msgType, csid = chunk.MessageAudio, csidAudio
	default:
		msgType, csid = chunk.MessageDataAMF0, csidData
	}
	payload := append([]byte(nil), f.Payload.Bytes()...)
	return &chunk.Message{
		CSID:      csid,
		Type:      msgType,
		Timestamp: f.TimestampMS,
		StreamID:  streamID,
		Payload:   payload,
	}
}

func (c *Conn) stopPublishing() {
	if !c.publishing {
		return
	}
	c.reg.UnregisterPublisher(c.publishedKey, c.sess.ID)
	c.h.OnUnpublish(c.publishedKey)
	c.publishing = false
}

func (c *Conn) stopSubscribing() {
	if c.sub == nil {
		return
	}
	close(c.subStopCh)
	<-c.subDone
	c.reg.Unsubscribe(c.subscribedKey, c.sub)
	if c.m != nil {
		c.m.RecordUnsubscribe()
	}
	c.sub = nil
}

func (c *Conn) writeMessage(msg *chunk.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.writer.WriteMessage(msg); err != nil {
		return err
	}
	c.sess.BytesSent += uint64(len(msg.Payload))
	if c.m != nil {
		c.m.RecordBytesSent(uint64(len(msg.Payload)))
	}
	return nil
}

func (c *Conn) cleanup() {
	c.stopSubscribing()
	c.stopPublishing()
	c.h.OnDisconnect(c.sess)
	c.sess.Close()
	c.raw.Close()
	if c.tr != nil {
		c.tr.Remove(c.sess.ID)
	}
	if c.m != nil {
		c.m.RecordConnectionClosed()
	}
	log.Printf("conn %d (%s) id=%s: disconnected", c.id, c.sess.PeerAddr, c.sess.ConnID)
}
