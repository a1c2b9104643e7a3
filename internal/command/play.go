package command

import (
	"chunkcast/internal/amf0"
	"chunkcast/internal/chunk"
	"chunkcast/internal/registry"
	"chunkcast/internal/session"
)

// Chunk stream ids used for media relayed to a subscriber. These are
// independent of whatever CSIDs the original publisher's encoder chose;
// the writer tracks header state per outbound CSID regardless.
const (
	csidAudio = 4
	csidData  = 5
	csidVideo = 6
)

func (d *Dispatcher) handlePlay(sess *session.State, streamID uint32, txID float64, args []amf0.Value) *Result {
	if len(args) == 0 {
		return &Result{Action: ActionRejected}
	}
	name := args[0].AsString()
	key := registry.Key{App: sess.App(), Name: name}

	sub, catchup, err := d.reg.Subscribe(key)
	if err != nil {
		status := statusObject("error", "NetStream.Play.StreamNotFound", err.Error())
		return &Result{
			Responses: []*chunk.Message{
				netConnectionMessage(streamID, amf0.String("onStatus"), amf0.Number(0), amf0.Null(), status),
			},
			Action: ActionRejected,
		}
	}

	sess.SetStreamTarget(streamID, session.RoleSubscriber, key.App, key.Name)

	responses := make([]*chunk.Message, 0, len(catchup)+3)
	responses = append(responses,
		controlMessage(chunk.MessageUserControl, chunk.EncodeUserControlStreamBegin(streamID)),
		netConnectionMessage(streamID, amf0.String("onStatus"), amf0.Number(0), amf0.Null(),
			statusObject("status", "NetStream.Play.Reset", "Playing and resetting "+name)),
		netConnectionMessage(streamID, amf0.String("onStatus"), amf0.Number(0), amf0.Null(),
			statusObject("status", "NetStream.Play.Start", "Started playing "+name)),
	)

	for _, f := range catchup {
		responses = append(responses, catchupMessage(streamID, f))
		f.Release()
	}

	return &Result{
		Responses:  responses,
		Action:     ActionPlayStarted,
		Key:        key,
		StreamID:   streamID,
		Subscriber: sub,
	}
}

// catchupMessage copies a cached catch-up frame's bytes into a fresh
// chunk.Message; the frame's own reference-counted payload is released
// by the caller right after this returns, so the message must not
// alias it.
func catchupMessage(streamID uint32, f registry.BroadcastFrame) *chunk.Message {
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
