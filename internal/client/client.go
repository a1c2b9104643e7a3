// Package client implements an outbound RTMP client: connect, then
// either publish or play a stream, reusing the same handshake, chunk
// stream codec, and AMF0 command encoding the server side speaks.
package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"chunkcast/internal/amf0"
	"chunkcast/internal/chunk"
	"chunkcast/internal/handshake"
	"chunkcast/internal/rtmperr"
)

func rtmpClientHandshake(conn net.Conn) (handshake.Phase, error) {
	return handshake.ClientHandshake(conn, handshake.Options{Strict: false})
}

// Role records whether a Client is publishing or playing its target
// stream, once Publish or Play has succeeded.
type Role int

const (
	RoleNone Role = iota
	RolePublish
	RolePlay
)

// Client drives one outbound RTMP connection.
type Client struct {
	conn   net.Conn
	reader *chunk.Reader
	writer *chunk.Writer

	app      string
	streamID uint32
	txID     float64
	role     Role
}

// Dial opens a TCP connection to addr (host:port) and performs the RTMP
// handshake. The returned Client is not yet connected to an application;
// call Connect next.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c, err := Attach(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// Attach performs the RTMP handshake over an already-established
// net.Conn and wraps it as a Client. Useful for callers that dial (or
// accept) the transport themselves — a custom dialer, a TLS-wrapped
// socket, or an in-memory net.Pipe() pair in a test.
func Attach(ctx context.Context, conn net.Conn) (*Client, error) {
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if _, err := rtmpClientHandshake(conn); err != nil {
		return nil, err
	}
	conn.SetDeadline(time.Time{})

	return &Client{
		conn:   conn,
		reader: chunk.NewReader(conn, false),
		writer: chunk.NewWriter(conn),
	}, nil
}

// Close tears down the underlying socket.
func (c *Client) Close() error { return c.conn.Close() }

// Connect sends the connect command for app and waits for _result.
func (c *Client) Connect(ctx context.Context, app, tcURL string) error {
	c.app = app
	c.txID++
	cmd := amf0.EncodeAll([]amf0.Value{
		amf0.String("connect"),
		amf0.Number(c.txID),
		amf0.Object(
			amf0.Property{Key: "app", Value: amf0.String(app)},
			amf0.Property{Key: "flashVer", Value: amf0.String("chunkcast-client/1.0")},
			amf0.Property{Key: "tcUrl", Value: amf0.String(tcURL)},
			amf0.Property{Key: "objectEncoding", Value: amf0.Number(0)},
		),
	})
	if err := c.writeCommand(0, cmd); err != nil {
		return err
	}
	return c.awaitResult(ctx, "connect", c.txID)
}

// CreateStream allocates a new message stream id for the subsequent
// Publish or Play call.
func (c *Client) CreateStream(ctx context.Context) (uint32, error) {
	c.txID++
	myTxID := c.txID
	cmd := amf0.EncodeAll([]amf0.Value{
		amf0.String("createStream"),
		amf0.Number(myTxID),
		amf0.Null(),
	})
	if err := c.writeCommand(0, cmd); err != nil {
		return 0, err
	}

	for {
		msg, err := c.reader.ReadMessage()
		if err != nil {
			return 0, err
		}
		if msg.Type != chunk.MessageCommandAMF0 {
			continue
		}
		values, err := amf0.DecodeAll(msg.Payload)
		if err != nil || len(values) < 4 {
			continue
		}
		if values[0].AsString() != "_result" || values[1].AsNumber() != myTxID {
			continue
		}
		streamID := uint32(values[3].AsNumber())
		c.streamID = streamID
		return streamID, nil
	}
}

// Publish announces intent to publish name on the stream id returned by
// CreateStream, waiting for NetStream.Publish.Start.
func (c *Client) Publish(ctx context.Context, streamID uint32, name, publishType string) error {
	if publishType == "" {
		publishType = "live"
	}
	c.txID++
	cmd := amf0.EncodeAll([]amf0.Value{
		amf0.String("publish"),
		amf0.Number(c.txID),
		amf0.Null(),
		amf0.String(name),
		amf0.String(publishType),
	})
	if err := c.writeCommand(streamID, cmd); err != nil {
		return err
	}
	if err := c.awaitStatus(ctx, "NetStream.Publish.Start"); err != nil {
		return err
	}
	c.role = RolePublish
	c.streamID = streamID
	return nil
}

// Play requests playback of name on the stream id returned by
// CreateStream, waiting for NetStream.Play.Start.
func (c *Client) Play(ctx context.Context, streamID uint32, name string) error {
	c.txID++
	cmd := amf0.EncodeAll([]amf0.Value{
		amf0.String("play"),
		amf0.Number(c.txID),
		amf0.Null(),
		amf0.String(name),
	})
	if err := c.writeCommand(streamID, cmd); err != nil {
		return err
	}
	if err := c.awaitStatus(ctx, "NetStream.Play.Start"); err != nil {
		return err
	}
	c.role = RolePlay
	c.streamID = streamID
	return nil
}

// SendVideo writes one video message for the active publish stream.
func (c *Client) SendVideo(timestamp uint32, payload []byte) error {
	return c.sendMedia(chunk.MessageVideo, csidVideo, timestamp, payload)
}

// SendAudio writes one audio message for the active publish stream.
func (c *Client) SendAudio(timestamp uint32, payload []byte) error {
	return c.sendMedia(chunk.MessageAudio, csidAudio, timestamp, payload)
}

// SendMetadata writes an onMetaData data message for the active publish
// stream.
func (c *Client) SendMetadata(fields ...amf0.Property) error {
	payload := amf0.EncodeAll([]amf0.Value{
		amf0.String("onMetaData"),
		amf0.ECMAArray(fields...),
	})
	return c.sendMedia(chunk.MessageDataAMF0, csidData, 0, payload)
}

const (
	csidAudio = 4
	csidData  = 5
	csidVideo = 6
)

func (c *Client) sendMedia(t chunk.MessageType, csid uint32, timestamp uint32, payload []byte) error {
	if c.role != RolePublish {
		return rtmperr.ErrNotPublishing
	}
	return c.writer.WriteMessage(&chunk.Message{
		CSID:      csid,
		Type:      t,
		Timestamp: timestamp,
		StreamID:  c.streamID,
		Payload:   payload,
	})
}

// ReadFrame blocks for the next audio/video/data message delivered to a
// client in RolePlay. It filters out protocol control and command
// messages transparently.
func (c *Client) ReadFrame() (*chunk.Message, error) {
	for {
		msg, err := c.reader.ReadMessage()
		if err != nil {
			return nil, err
		}
		switch msg.Type {
		case chunk.MessageVideo, chunk.MessageAudio, chunk.MessageDataAMF0, chunk.MessageDataAMF3:
			return msg, nil
		case chunk.MessageSetChunkSize:
			if size, err := chunk.DecodeSetChunkSize(msg.Payload); err == nil {
				c.reader.SetChunkSize(size)
			}
		default:
			// other commands and protocol control messages (including
			// bandwidth updates) arriving during playback are ignored here.
		}
	}
}

func (c *Client) writeCommand(streamID uint32, payload []byte) error {
	return c.writer.WriteMessage(&chunk.Message{
		CSID:      chunk.CSIDCommand,
		Type:      chunk.MessageCommandAMF0,
		StreamID:  streamID,
		Payload:   payload,
	})
}

// awaitResult reads messages until an AMF0 _result/_error reply to txID
// for cmdName arrives, returning an error for _error or a malformed
// response.
func (c *Client) awaitResult(ctx context.Context, cmdName string, txID float64) error {
	for {
		msg, err := c.reader.ReadMessage()
		if err != nil {
			return err
		}
		if msg.Type != chunk.MessageCommandAMF0 {
			continue
		}
		values, err := amf0.DecodeAll(msg.Payload)
		if err != nil || len(values) < 2 {
			continue
		}
		if values[1].AsNumber() != txID {
			continue
		}
		switch values[0].AsString() {
		case "_result":
			return nil
		case "_error":
			return fmt.Errorf("%s rejected: %w", cmdName, rtmperr.ErrCommandRejected)
		}
	}
}

// awaitStatus reads messages until an onStatus command carrying the
// given status code arrives.
func (c *Client) awaitStatus(ctx context.Context, code string) error {
	for {
		msg, err := c.reader.ReadMessage()
		if err != nil {
			return err
		}
		if msg.Type != chunk.MessageCommandAMF0 {
			continue
		}
		values, err := amf0.DecodeAll(msg.Payload)
		if err != nil || len(values) < 4 {
			continue
		}
		if values[0].AsString() != "onStatus" {
			continue
		}
		info := values[3]
		gotCode := info.AsString()
		if codeVal, ok := info.Get("code"); ok {
			gotCode = codeVal.AsString()
		}
		if gotCode == code {
			return nil
		}
		if level, ok := info.Get("level"); ok && level.AsString() == "error" {
			return fmt.Errorf("onStatus %s: %w", gotCode, rtmperr.ErrCommandRejected)
		}
	}
}
