// Package handler defines the application-supplied policy surface: the
// callbacks a host program implements to accept/reject connections and
// publishes, observe media, and select a delivery mode. The connection
// runtime (internal/conn) calls these from the connection goroutine with
// the session/stream context already resolved.
package handler

import (
	"chunkcast/internal/media"
	"chunkcast/internal/registry"
	"chunkcast/internal/session"
)

// Decision is an accept/reject answer from a gating callback.
type Decision int

const (
	Accept Decision = iota
	Reject
)

// PublishParams are the fields available when a publish command arrives.
type PublishParams struct {
	Key   registry.Key
	Type  string // "live", "record", or "append" per the publish command's second argument
	Token string // query-string "token" suffix stripped from the publish name, if any
}

// DeliveryMode selects what shape of media a handler wants from the
// connection runtime. RawFlv avoids the codec parse step entirely for
// handlers that only relay bytes.
type DeliveryMode int

const (
	RawFlv DeliveryMode = iota
	ParsedFrames
	Both
)

// Handler is the application policy object. All methods are called from
// the owning connection's goroutine; a handler must not block
// indefinitely or it stalls that connection (it does not stall others,
// since each connection is an independent goroutine).
type Handler interface {
	OnConnection(sess *session.State) bool
	OnConnect(sess *session.State, params *session.ConnectParams) Decision
	OnFCPublish(sess *session.State, key registry.Key) Decision
	OnPublish(sess *session.State, params PublishParams) Decision
	OnMetadata(key registry.Key, fields map[string]any)
	OnMediaTag(key registry.Key, tag media.Tag) bool
	OnVideoFrame(key registry.Key, tag media.Tag, ts uint32)
	OnAudioFrame(key registry.Key, tag media.Tag, ts uint32)
	OnKeyframe(key registry.Key, ts uint32)
	OnUnpublish(key registry.Key)
	OnDisconnect(sess *session.State)
	MediaDeliveryMode() DeliveryMode
}

// Default implements Handler with permissive no-op behavior: every
// gating callback accepts, every observer callback does nothing, and the
// delivery mode is RawFlv (the cheapest). Embed it to override only the
// callbacks a host application cares about.
type Default struct{}

func (Default) OnConnection(*session.State) bool                             { return true }
func (Default) OnConnect(*session.State, *session.ConnectParams) Decision    { return Accept }
func (Default) OnFCPublish(*session.State, registry.Key) Decision            { return Accept }
func (Default) OnPublish(*session.State, PublishParams) Decision             { return Accept }
func (Default) OnMetadata(registry.Key, map[string]any)                      {}
func (Default) OnMediaTag(registry.Key, media.Tag) bool                      { return true }
func (Default) OnVideoFrame(registry.Key, media.Tag, uint32)                 {}
func (Default) OnAudioFrame(registry.Key, media.Tag, uint32)                 {}
func (Default) OnKeyframe(registry.Key, uint32)                             {}
func (Default) OnUnpublish(registry.Key)                                    {}
func (Default) OnDisconnect(*session.State)                                 {}
func (Default) MediaDeliveryMode() DeliveryMode                             { return RawFlv }

var _ Handler = Default{}
