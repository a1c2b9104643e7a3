package command

import (
	"chunkcast/internal/amf0"
	"chunkcast/internal/chunk"
	"chunkcast/internal/handler"
	"chunkcast/internal/session"
)

// netConnectionMessage builds an AMF0 command message addressed to
// message-stream-id streamID on the reserved command chunk stream.
func netConnectionMessage(streamID uint32, values ...amf0.Value) *chunk.Message {
	return &chunk.Message{
		CSID:     chunk.CSIDCommand,
		Type:     chunk.MessageCommandAMF0,
		StreamID: streamID,
		Payload:  amf0.EncodeAll(values),
	}
}

// controlMessage builds a protocol control message (CSID 2, msid 0).
func controlMessage(t chunk.MessageType, payload []byte) *chunk.Message {
	return &chunk.Message{
		CSID:     chunk.CSIDProtocolControl,
		Type:     t,
		StreamID: 0,
		Payload:  payload,
	}
}

// getString looks up key in cmdObj's properties, returning "" if absent
// or not a string.
func getString(cmdObj amf0.Value, key string) string {
	v, _ := cmdObj.Get(key)
	return v.AsString()
}

func getNumber(cmdObj amf0.Value, key string) float64 {
	v, _ := cmdObj.Get(key)
	return v.AsNumber()
}

func (d *Dispatcher) handleConnect(sess *session.State, txID float64, cmdObj amf0.Value) (*Result, error) {
	params := &session.ConnectParams{
		App:            getString(cmdObj, "app"),
		FlashVer:       getString(cmdObj, "flashVer"),
		TCURL:          getString(cmdObj, "tcUrl"),
		ObjectEncoding: getNumber(cmdObj, "objectEncoding"),
	}
	encoder := session.ClassifyEncoder(params.FlashVer)
	peerCaps := parseEnhancedCapabilities(cmdObj)

	if !d.h.OnConnection(sess) {
		return &Result{Action: ActionRejected}, nil
	}
	if d.h.OnConnect(sess, params) == handler.Reject {
		return &Result{Responses: []*chunk.Message{
			netConnectionMessage(0, amf0.String("_error"), amf0.Number(txID), amf0.Null(),
				statusObject("error", "NetConnection.Connect.Rejected", "Connection rejected by application")),
		}, Action: ActionRejected}, nil
	}

	sess.OnConnect(params, encoder)

	responses := []*chunk.Message{
		controlMessage(chunk.MessageWindowAckSize, chunk.EncodeWindowAckSize(d.cfg.WindowAckSize)),
		controlMessage(chunk.MessageSetPeerBandwidth, chunk.EncodeSetPeerBandwidth(d.cfg.PeerBandwidth, chunk.LimitDynamic)),
		controlMessage(chunk.MessageUserControl, chunk.EncodeUserControlStreamBegin(0)),
	}
	if d.cfg.ChunkSize != chunk.DefaultChunkSize {
		responses = append(responses, controlMessage(chunk.MessageSetChunkSize, chunk.EncodeSetChunkSize(d.cfg.ChunkSize)))
	}
	sess.WindowAckSize = d.cfg.WindowAckSize
	sess.OutChunkSize = d.cfg.ChunkSize

	local := session.DefaultEnhancedCapabilities()
	negotiated := local.Intersect(peerCaps)

	result := amf0.Object(
		amf0.Property{Key: "fmsVer", Value: amf0.String("FMS/3,0,1,123")},
		amf0.Property{Key: "capabilities", Value: amf0.Number(31)},
	)
	status := statusObject("status", "NetConnection.Connect.Success", "Connection succeeded")
	status.Props = append(status.Props, amf0.Property{Key: "objectEncoding", Value: amf0.Number(params.ObjectEncoding)})
	if negotiated.Enabled {
		status.Props = append(status.Props, amf0.Property{Key: "capsEx", Value: amf0.Number(float64(negotiated.CapsEx))})
	}

	responses = append(responses, netConnectionMessage(0, amf0.String("_result"), amf0.Number(txID), result, status))
	return &Result{Responses: responses}, nil
}

func statusObject(level, code, description string) amf0.Value {
	return amf0.Object(
		amf0.Property{Key: "level", Value: amf0.String(level)},
		amf0.Property{Key: "code", Value: amf0.String(code)},
		amf0.Property{Key: "description", Value: amf0.String(description)},
	)
}

// parseEnhancedCapabilities pulls the optional E-RTMP fields out of a
// connect command object: a capsEx bitmask and a fourCcList of codec
// tags the peer supports forwarding without transcoding. The full
// per-codec decode/encode/forward capability map E-RTMP allows for is
// not carried by FFmpeg/OBS in practice; this implementation treats
// every listed fourCc as forward-only, which is what this relay-shaped
// server needs.
func parseEnhancedCapabilities(cmdObj amf0.Value) session.EnhancedCapabilities {
	capsExVal, ok := cmdObj.Get("capsEx")
	if !ok {
		return session.NewEnhancedCapabilities()
	}
	caps := session.EnhancedCapabilities{
		Enabled: true,
		CapsEx:  session.CapsEx(uint32(capsExVal.AsNumber())),
	}

	videoCodecs := map[session.VideoFourCc]session.FourCcCapability{}
	audioCodecs := map[session.AudioFourCc]session.FourCcCapability{}
	if list, ok := cmdObj.Get("fourCcList"); ok {
		for _, v := range list.Array {
			tag := v.AsString()
			switch session.VideoFourCc(tag) {
			case session.VideoFourCcAVC, session.VideoFourCcHEVC, session.VideoFourCcAV1, session.VideoFourCcVP9, session.VideoFourCcVP8:
				videoCodecs[session.VideoFourCc(tag)] = session.ForwardOnly()
				continue
			}
			switch session.AudioFourCc(tag) {
			case session.AudioFourCcAAC, session.AudioFourCcOpus:
				audioCodecs[session.AudioFourCc(tag)] = session.ForwardOnly()
			}
		}
	}
	caps.VideoCodecs = videoCodecs
	caps.AudioCodecs = audioCodecs
	return caps
}
