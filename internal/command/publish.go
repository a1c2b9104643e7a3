package command

import (
	"strings"

	"chunkcast/internal/amf0"
	"chunkcast/internal/chunk"
	"chunkcast/internal/handler"
	"chunkcast/internal/registry"
	"chunkcast/internal/rtmperr"
	"chunkcast/internal/session"
)

func (d *Dispatcher) handlePublish(sess *session.State, streamID uint32, txID float64, args []amf0.Value) *Result {
	if len(args) == 0 {
		return d.publishRejected(streamID, txID, "missing publish stream name", "bad_name")
	}
	name, token := splitPublishToken(args[0].AsString())
	publishType := "live"
	if len(args) > 1 {
		publishType = args[1].AsString()
	}
	key := registry.Key{App: sess.App(), Name: name}

	if d.h.OnFCPublish(sess, key) == handler.Reject {
		return d.publishRejected(streamID, txID, "publish rejected by application", "rejected")
	}
	if d.h.OnPublish(sess, handler.PublishParams{Key: key, Type: publishType, Token: token}) == handler.Reject {
		return d.publishRejected(streamID, txID, "publish rejected by application", "rejected")
	}

	if err := d.reg.RegisterPublisher(key, sess.ID); err != nil {
		reason := "stream already has an active publisher"
		metricReason := "already_publishing"
		if err != rtmperr.ErrAlreadyPublishing {
			reason = err.Error()
			metricReason = "rejected"
		}
		return d.publishRejected(streamID, txID, reason, metricReason)
	}

	sess.SetStreamTarget(streamID, session.RolePublisher, key.App, key.Name)

	status := statusObject("status", "NetStream.Publish.Start", name+" is now published")
	return &Result{
		Responses: []*chunk.Message{
			netConnectionMessage(streamID, amf0.String("onStatus"), amf0.Number(0), amf0.Null(), status),
		},
		Action:   ActionPublishStarted,
		Key:      key,
		StreamID: streamID,
	}
}

// splitPublishToken strips a "?token=..." (or any query-string) suffix
// off a publish stream name, the convention most platforms use to embed
// a stream key's authorization token, and returns the bare name plus
// the token value if present.
func splitPublishToken(raw string) (name, token string) {
	idx := strings.IndexByte(raw, '?')
	if idx < 0 {
		return raw, ""
	}
	name = raw[:idx]
	for _, pair := range strings.Split(raw[idx+1:], "&") {
		k, v, ok := strings.Cut(pair, "=")
		if ok && k == "token" {
			token = v
		}
	}
	return name, token
}

func (d *Dispatcher) publishRejected(streamID uint32, txID float64, description, metricReason string) *Result {
	if d.m != nil {
		d.m.RecordPublishRejected(metricReason)
	}
	status := statusObject("error", "NetStream.Publish.BadName", description)
	return &Result{
		Responses: []*chunk.Message{
			netConnectionMessage(streamID, amf0.String("onStatus"), amf0.Number(0), amf0.Null(), status),
		},
		Action: ActionRejected,
	}
}
