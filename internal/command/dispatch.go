// Package command interprets parsed RTMP command/control messages —
// connect, createStream, publish, play, FCPublish, deleteStream, and
// their siblings — against a session's state and the stream registry,
// and synthesizes the response messages C5 should write back to the
// peer.
package command

import (
	"chunkcast/internal/amf0"
	"chunkcast/internal/chunk"
	"chunkcast/internal/handler"
	"chunkcast/internal/metrics"
	"chunkcast/internal/registry"
	"chunkcast/internal/session"
)

// Config carries the connect-response knobs and leniency toggles a
// Dispatcher needs; it is a thin slice of internal/config.Config so this
// package doesn't import the config loader directly.
type Config struct {
	ChunkSize         uint32
	WindowAckSize     uint32
	PeerBandwidth     uint32
	Strict           bool // reject out-of-sequence commands instead of tolerating them
	AllowAMF3Command bool // accept AMF3-encoded command messages instead of rejecting them
}

// ActionKind tells the connection runtime what follow-up, beyond writing
// Responses, a dispatched command requires.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionPublishStarted
	ActionPlayStarted
	ActionUnpublished
	ActionRejected
)

// Result is everything the connection runtime needs after dispatching
// one command message.
type Result struct {
	Responses  []*chunk.Message
	Action     ActionKind
	Key        registry.Key
	StreamID   uint32
	Subscriber *registry.Subscriber // set only for ActionPlayStarted
}

// Dispatcher holds the per-connection state a sequence of command
// dispatches needs: the command-ordering guard and the AMF3 toggle.
// Everything else (phase, stream-id allocation, chunk sizes) lives on the
// session.State the caller passes in.
type Dispatcher struct {
	cfg Config
	reg *registry.Registry
	h   handler.Handler
	m   *metrics.Metrics
	seq session.CommandSequence
}

// New creates a Dispatcher bound to a registry and application handler.
// m, if non-nil, is recorded against for publish rejections.
func New(cfg Config, reg *registry.Registry, h handler.Handler, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{cfg: cfg, reg: reg, h: h, m: m}
}

// Dispatch interprets one AMF0 command message. msg.Type must be
// MessageCommandAMF0; AMF3-encoded commands are rejected unless
// cfg.AllowAMF3Command is set, and this implementation still does not
// decode the AMF3 wire format even then.
func (d *Dispatcher) Dispatch(sess *session.State, msg *chunk.Message) (*Result, error) {
	if msg.Type == chunk.MessageCommandAMF3 && !d.cfg.AllowAMF3Command {
		return &Result{Action: ActionRejected}, nil
	}

	values, err := amf0.DecodeAll(msg.Payload)
	if err != nil || len(values) == 0 {
		return &Result{}, nil // malformed command payloads are dropped, not fatal
	}
	name := values[0].AsString()
	var txID float64
	if len(values) > 1 {
		txID = values[1].AsNumber()
	}
	var cmdObj amf0.Value
	if len(values) > 2 {
		cmdObj = values[2]
	}
	var args []amf0.Value
	if len(values) > 3 {
		args = values[3:]
	}

	valid := d.seq.IsValidCommand(name)
	if !valid && d.cfg.Strict {
		return &Result{}, nil
	}
	d.seq.OnCommand(name)

	switch name {
	case "connect":
		return d.handleConnect(sess, txID, cmdObj)
	case "releaseStream", "FCPublish":
		return d.handleNoOpSuccess(txID), nil
	case "FCUnpublish":
		return d.handleFCUnpublish(sess, args), nil
	case "createStream":
		return d.handleCreateStream(sess, txID), nil
	case "publish":
		return d.handlePublish(sess, msg.StreamID, txID, args), nil
	case "play":
		return d.handlePlay(sess, msg.StreamID, txID, args), nil
	case "deleteStream":
		return d.handleDeleteStream(sess, args), nil
	case "closeStream":
		return d.handleCloseStream(sess, msg.StreamID), nil
	default:
		// Unrecognized command names are tolerated silently rather than
		// tearing down the connection.
		return &Result{}, nil
	}
}

func (d *Dispatcher) handleNoOpSuccess(txID float64) *Result {
	return &Result{Responses: []*chunk.Message{
		netConnectionMessage(0, amf0.String("_result"), amf0.Number(txID), amf0.Undefined()),
	}}
}

func (d *Dispatcher) handleFCUnpublish(sess *session.State, args []amf0.Value) *Result {
	if len(args) == 0 {
		return &Result{}
	}
	key := registry.Key{App: sess.App(), Name: args[0].AsString()}
	d.reg.UnregisterPublisher(key, sess.ID)
	return &Result{Action: ActionUnpublished, Key: key}
}

func (d *Dispatcher) handleCreateStream(sess *session.State, txID float64) *Result {
	id := sess.AllocateStreamID(session.RolePublisher) // role refined on publish/play
	return &Result{Responses: []*chunk.Message{
		netConnectionMessage(0, amf0.String("_result"), amf0.Number(txID), amf0.Null(), amf0.Number(float64(id))),
	}}
}

func (d *Dispatcher) handleDeleteStream(sess *session.State, args []amf0.Value) *Result {
	if len(args) == 0 {
		return &Result{}
	}
	id := uint32(args[0].AsNumber())
	return d.handleCloseStream(sess, id)
}

func (d *Dispatcher) handleCloseStream(sess *session.State, streamID uint32) *Result {
	st, ok := sess.GetStream(streamID)
	if !ok || st.App == "" && st.Name == "" {
		sess.RemoveStream(streamID)
		return &Result{}
	}
	key := registry.Key{App: st.App, Name: st.Name}
	if st.Role == session.RolePublisher {
		d.reg.UnregisterPublisher(key, sess.ID)
	} else {
		d.reg.UnregisterPublisher(key, sess.ID) // no-op if sess never owned it
	}
	sess.RemoveStream(streamID)
	return &Result{Action: ActionUnpublished, Key: key, StreamID: streamID}
}
