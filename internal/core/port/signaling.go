package port

import (
	"context"

	"github.com/Wyydra/peercall/internal/core/domain"
)

type CallHandlers struct {
	OnStream         func(stream domain.RemoteStream)
	OnClose          func()
	OnError          func(err error)
	OnICEStateChange func(state domain.ICEState)
}

// MediaCall is one media connection with a remote peer, outgoing or incoming.
type MediaCall interface {
	ID() string
	Peer() domain.PeerID
	// SetHandlers must be called before Answer, or right after the call is placed.
	SetHandlers(h CallHandlers)
	Answer(ctx context.Context, stream LocalStream) error
	ConnectionKind(ctx context.Context) (domain.ConnectionKind, error)
	Close() error
}

type SignalingHandlers struct {
	OnOpen         func(id domain.PeerID)
	OnCall         func(call MediaCall)
	OnDisconnected func()
	OnClose        func()
	OnError        func(err *domain.SignalingError)
}

type SignalingClient interface {
	ID() domain.PeerID
	// Open dials the server. The client is usable once OnOpen fires.
	Open(ctx context.Context) error
	Call(ctx context.Context, target domain.PeerID, stream LocalStream) (MediaCall, error)
	// Destroy closes every media connection and the server connection.
	Destroy() error
}

type SignalingFactory func(h SignalingHandlers) (SignalingClient, error)
