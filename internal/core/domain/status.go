package domain

// Status is the snapshot a presentation layer renders from.
type Status struct {
	PeerID             PeerID         `json:"peer_id"`
	SignalingConnected bool           `json:"signaling_connected"`
	CallState          CallState      `json:"call_state"`
	Locked             bool           `json:"locked"`
	ICEState           ICEState       `json:"ice_state"`
	ConnectionKind     ConnectionKind `json:"connection_kind"`
	RemotePeer         PeerID         `json:"remote_peer,omitempty"`
	Remote             RemoteStream   `json:"remote"`
	LocalKind          StreamKind     `json:"local_kind"`
	Local              TrackCounts    `json:"local"`
	PendingCaller      PeerID         `json:"pending_caller,omitempty"`
	ConnectingSeconds  int            `json:"connecting_seconds"`
	Warning            string         `json:"warning,omitempty"`
	LastError          string         `json:"last_error,omitempty"`

	Text      string `json:"text"`
	Color     string `json:"color"`
	CanCall   bool   `json:"can_call"`
	CanHangUp bool   `json:"can_hang_up"`
	CanAnswer bool   `json:"can_answer"`
}

// Derive fills the presentation fields from the raw state.
func (s Status) Derive() Status {
	s.Text, s.Color = statusText(s)
	s.CanCall = s.SignalingConnected && !s.Locked && (s.CallState == CallIdle || s.CallState == CallConnected)
	s.CanHangUp = s.CallState == CallConnecting || s.CallState == CallConnected
	s.CanAnswer = !s.PendingCaller.IsZero() && !s.Locked
	return s
}

func statusText(s Status) (string, string) {
	if !s.SignalingConnected {
		if s.PeerID.IsZero() {
			return "Connecting to signaling server...", "gray"
		}
		return "Disconnected from signaling server", "red"
	}

	switch s.CallState {
	case CallConnecting:
		if s.Warning != "" {
			return "Connecting (slow network)...", "orange"
		}
		return "Connecting...", "yellow"
	case CallConnected:
		switch {
		case s.ICEState == ICEDisconnected:
			return "Connection unstable", "orange"
		case s.ConnectionKind == ConnectionRelay:
			return "In call (relayed)", "green"
		default:
			return "In call", "green"
		}
	case CallDisconnecting:
		return "Ending call...", "gray"
	case CallFailed:
		return "Call failed", "red"
	}

	if !s.PendingCaller.IsZero() {
		return "Incoming call from " + s.PendingCaller.String(), "blue"
	}
	return "Ready", "blue"
}
