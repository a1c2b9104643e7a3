// Package rtmperr defines the sentinel error taxonomy shared across the
// handshake, chunk, AMF0, command, and registry layers.
package rtmperr

import "errors"

var (
	// Transport
	ErrConnectionClosed = errors.New("rtmp: connection closed")

	// Handshake
	ErrHandshakeVersion  = errors.New("rtmp: unsupported handshake version")
	ErrHandshakeTruncated = errors.New("rtmp: truncated handshake packet")
	ErrHandshakeTimeout  = errors.New("rtmp: handshake timeout")

	// Chunk level
	ErrChunkCSID       = errors.New("rtmp: invalid chunk stream id encoding")
	ErrChunkLength     = errors.New("rtmp: message length exceeds maximum")
	ErrChunkOverrun    = errors.New("rtmp: chunk payload overrun")
	ErrChunkRollback   = errors.New("rtmp: timestamp rollback without absolute header")
	ErrUnknownChunkCtx = errors.New("rtmp: chunk stream id has no prior context")

	// AMF decode
	ErrAMFEOF       = errors.New("amf0: unexpected end of buffer")
	ErrAMFUTF8      = errors.New("amf0: invalid utf-8 string")
	ErrAMFEndMarker = errors.New("amf0: invalid or missing object end marker")
	ErrAMFDepth     = errors.New("amf0: nesting too deep")
	ErrAMFMarker    = errors.New("amf0: unknown type marker")
	ErrAMFReference = errors.New("amf0: invalid reference index")

	// Resource / application
	ErrTooManyConnections = errors.New("rtmp: connection limit reached")
	ErrAlreadyPublishing  = errors.New("rtmp: stream already has a publisher")
	ErrStreamNotFound     = errors.New("rtmp: stream not found")
	ErrStreamNotActive    = errors.New("rtmp: stream not active")
	ErrPublisherMismatch  = errors.New("rtmp: publisher id mismatch")
	ErrRejected           = errors.New("rtmp: rejected by application handler")

	// Client
	ErrCommandRejected = errors.New("rtmp: command rejected by server")
	ErrNotPublishing   = errors.New("rtmp: client is not publishing")
)
