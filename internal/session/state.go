// Package session tracks per-connection RTMP state: handshake/connect
// lifecycle phase, allocated message stream ids, chunk size and window
// ack bookkeeping, and encoder-quirk classification.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the connection's position in the handshake/connect lifecycle.
type Phase int

const (
	PhaseConnected Phase = iota
	PhaseHandshaking
	PhaseWaitingConnect
	PhaseActive
	PhaseClosing
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseConnected:
		return "connected"
	case PhaseHandshaking:
		return "handshaking"
	case PhaseWaitingConnect:
		return "waiting_connect"
	case PhaseActive:
		return "active"
	case PhaseClosing:
		return "closing"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StreamRole is what a message stream id within a session is being used
// for.
type StreamRole int

const (
	RolePublisher StreamRole = iota
	RoleSubscriber
)

// StreamState is the per-message-stream-id substate a session tracks
// (one connection may createStream more than once, e.g. FFmpeg's publish
// + control streams).
type StreamState struct {
	ID   uint32
	Role StreamRole
	App  string
	Name string
}

// ConnectParams are the fields extracted from the AMF0 connect command's
// object argument.
type ConnectParams struct {
	App            string
	FlashVer       string
	TCURL          string
	ObjectEncoding float64
}

// DefaultWindowAckSize is the window size both peers assume until
// renegotiated.
const DefaultWindowAckSize = 2_500_000

// State holds everything about one connection from handshake to close.
// It is owned by a single connection goroutine and is not safe for
// concurrent use from elsewhere.
type State struct {
	ID       uint64
	ConnID   uuid.UUID // stable external identifier, stitched through logs and the admin API
	PeerAddr string

	Phase                Phase
	ConnectedAt          time.Time
	HandshakeCompletedAt time.Time

	ConnectParams *ConnectParams
	Encoder       EncoderType

	streams       map[uint32]*StreamState
	nextStreamID  uint32

	InChunkSize  uint32
	OutChunkSize uint32
	WindowAckSize uint32

	BytesReceived    uint64
	BytesSent        uint64
	LastAckSequence  uint32
}

// New creates a session in PhaseConnected with default chunk/window
// sizes and stream id 0 reserved.
func New(id uint64, peerAddr string) *State {
	return &State{
		ID:            id,
		ConnID:        uuid.New(),
		PeerAddr:      peerAddr,
		Phase:         PhaseConnected,
		ConnectedAt:   time.Now(),
		streams:       make(map[uint32]*StreamState),
		nextStreamID:  1,
		InChunkSize:   128,
		OutChunkSize:  128,
		WindowAckSize: DefaultWindowAckSize,
	}
}

func (s *State) StartHandshake() { s.Phase = PhaseHandshaking }

func (s *State) CompleteHandshake() {
	s.Phase = PhaseWaitingConnect
	s.HandshakeCompletedAt = time.Now()
}

func (s *State) OnConnect(params *ConnectParams, encoder EncoderType) {
	s.ConnectParams = params
	s.Encoder = encoder
	s.Phase = PhaseActive
}

// AllocateStreamID reserves the next message stream id (0 is never
// allocated, per RTMP convention) and registers it for role.
func (s *State) AllocateStreamID(role StreamRole) uint32 {
	id := s.nextStreamID
	s.nextStreamID++
	s.streams[id] = &StreamState{ID: id, Role: role}
	return id
}

func (s *State) GetStream(id uint32) (*StreamState, bool) {
	st, ok := s.streams[id]
	return st, ok
}

// SetStreamTarget fills in an allocated stream id's role and target
// app/name once a publish or play command resolves them. Reports
// whether id was a known, previously allocated stream.
func (s *State) SetStreamTarget(id uint32, role StreamRole, app, name string) bool {
	st, ok := s.streams[id]
	if !ok {
		return false
	}
	st.Role = role
	st.App = app
	st.Name = name
	return true
}

func (s *State) RemoveStream(id uint32) { delete(s.streams, id) }

// AddBytesReceived accumulates the read byte counter and reports whether
// an acknowledgement is now due (accumulated bytes since the last ack
// meet or exceed the negotiated window).
func (s *State) AddBytesReceived(n uint64) bool {
	s.BytesReceived += n
	return s.BytesReceived-uint64(s.LastAckSequence) >= uint64(s.WindowAckSize)
}

// MarkAckSent records that an acknowledgement was issued for the current
// byte count.
func (s *State) MarkAckSent() { s.LastAckSequence = uint32(s.BytesReceived) }

func (s *State) Duration() time.Duration { return time.Since(s.ConnectedAt) }

func (s *State) IsActive() bool { return s.Phase == PhaseActive }

func (s *State) Close() { s.Phase = PhaseClosing }

// App returns the connect-time application name, or "" if not yet
// connected.
func (s *State) App() string {
	if s.ConnectParams == nil {
		return ""
	}
	return s.ConnectParams.App
}
