package domain

type CallState string

const (
	CallIdle          CallState = "idle"
	CallConnecting    CallState = "connecting"
	CallConnected     CallState = "connected"
	CallDisconnecting CallState = "disconnecting"
	CallFailed        CallState = "failed"
)

// ICEState mirrors the peer connection's ICE connection state.
type ICEState string

const (
	ICENew          ICEState = "new"
	ICEChecking     ICEState = "checking"
	ICEConnected    ICEState = "connected"
	ICECompleted    ICEState = "completed"
	ICEDisconnected ICEState = "disconnected"
	ICEFailed       ICEState = "failed"
	ICEClosed       ICEState = "closed"
)

func ParseICEState(s string) ICEState {
	switch ICEState(s) {
	case ICENew, ICEChecking, ICEConnected, ICECompleted, ICEDisconnected, ICEFailed, ICEClosed:
		return ICEState(s)
	default:
		return ICENew
	}
}

// ConnectionKind tells whether media flows over a direct path or a TURN relay.
type ConnectionKind string

const (
	ConnectionUnknown ConnectionKind = "unknown"
	ConnectionDirect  ConnectionKind = "direct"
	ConnectionRelay   ConnectionKind = "relay"
)

type TrackCounts struct {
	Video int `json:"video"`
	Audio int `json:"audio"`
}

func (c TrackCounts) Total() int {
	return c.Video + c.Audio
}

type RemoteStream struct {
	Tracks  TrackCounts `json:"tracks"`
	Playing bool        `json:"playing"`
}

func NewRemoteStream(counts TrackCounts) RemoteStream {
	return RemoteStream{
		Tracks:  counts,
		Playing: counts.Total() > 0,
	}
}

// StreamKind records which capture fallback step produced the local stream.
type StreamKind string

const (
	StreamNone      StreamKind = "none"
	StreamFull      StreamKind = "full"
	StreamAudioOnly StreamKind = "audio-only"
	StreamEmpty     StreamKind = "empty"
)

type MediaConstraints struct {
	Video  bool
	Audio  bool
	Width  int
	Height int
}
