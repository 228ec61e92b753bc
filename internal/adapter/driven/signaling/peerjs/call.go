package peerjs

import (
	"context"
	"fmt"
	"sync"

	"github.com/Wyydra/peercall/internal/adapter/driven/media/pion"
	"github.com/Wyydra/peercall/internal/core/domain"
	"github.com/Wyydra/peercall/internal/core/port"
	"github.com/pion/webrtc/v4"
)

// mediaCall is one PeerJS media connection. It implements port.MediaCall.
type mediaCall struct {
	client  *Client
	id      string
	peer    domain.PeerID
	offer   string
	session *pion.Session

	mu       sync.Mutex
	handlers port.CallHandlers
	remote   domain.TrackCounts
	ice      domain.ICEState
	failure  error
	answered bool
	closed   bool
}

// newMediaCall prepares a connection; offer is the remote SDP of an incoming call.
func newMediaCall(c *Client, id string, peer domain.PeerID, offer string) (*mediaCall, error) {
	call := &mediaCall{
		client: c,
		id:     id,
		peer:   peer,
		offer:  offer,
	}
	session, err := pion.NewSession(c.api, c.cfg.ICE, pion.SessionHandlers{
		OnCandidate: call.sendCandidate,
		OnTracks:    call.onTracks,
		OnICEState:  call.onICEState,
	})
	if err != nil {
		return nil, err
	}
	call.session = session
	return call, nil
}

func (m *mediaCall) ID() string          { return m.id }
func (m *mediaCall) Peer() domain.PeerID { return m.peer }

// SetHandlers replaces the handlers. A remote stream, ICE state or failure
// seen before is replayed to the new handlers.
func (m *mediaCall) SetHandlers(h port.CallHandlers) {
	m.mu.Lock()
	m.handlers = h
	remote, ice, failure := m.remote, m.ice, m.failure
	m.mu.Unlock()

	if remote.Total() > 0 && h.OnStream != nil {
		h.OnStream(domain.NewRemoteStream(remote))
	}
	if ice != "" && h.OnICEStateChange != nil {
		h.OnICEStateChange(ice)
	}
	if failure != nil && h.OnError != nil {
		h.OnError(failure)
	}
}

func (m *mediaCall) Answer(ctx context.Context, stream port.LocalStream) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return domain.ErrUnknownCall
	}
	if m.answered || m.offer == "" {
		m.mu.Unlock()
		return fmt.Errorf("connection %s cannot be answered", m.id)
	}
	m.answered = true
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	sdp, err := m.session.AcceptOffer(m.offer, trackSource(stream))
	if err != nil {
		return err
	}
	err = m.client.send(TypeAnswer, m.peer, Payload{
		SDP:          &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp},
		Type:         connectionTypeMedia,
		ConnectionID: m.id,
	})
	if err != nil {
		return err
	}
	m.session.StartTrickle()
	return nil
}

func (m *mediaCall) ConnectionKind(ctx context.Context) (domain.ConnectionKind, error) {
	if err := ctx.Err(); err != nil {
		return domain.ConnectionUnknown, err
	}
	return m.session.ConnectionKind(), nil
}

// Close is idempotent; the first call fires OnClose.
func (m *mediaCall) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	h := m.handlers
	m.mu.Unlock()

	m.client.forget(m.id)
	err := m.session.Close()
	if h.OnClose != nil {
		h.OnClose()
	}
	return err
}

func (m *mediaCall) fail(err error) {
	m.mu.Lock()
	m.failure = err
	h := m.handlers
	m.mu.Unlock()

	if h.OnError != nil {
		h.OnError(err)
	}
}

func (m *mediaCall) sendCandidate(c webrtc.ICECandidateInit) {
	err := m.client.send(TypeCandidate, m.peer, Payload{
		Candidate:    &c,
		Type:         connectionTypeMedia,
		ConnectionID: m.id,
	})
	if err != nil {
		m.client.log.Debug().Err(err).Str("connection_id", m.id).Msg("Failed to send ICE candidate")
	}
}

func (m *mediaCall) onTracks(counts domain.TrackCounts) {
	m.mu.Lock()
	m.remote = counts
	h := m.handlers
	m.mu.Unlock()

	if h.OnStream != nil {
		h.OnStream(domain.NewRemoteStream(counts))
	}
}

func (m *mediaCall) onICEState(state domain.ICEState) {
	m.mu.Lock()
	m.ice = state
	h := m.handlers
	m.mu.Unlock()

	if h.OnICEStateChange != nil {
		h.OnICEStateChange(state)
	}
}

func trackSource(stream port.LocalStream) pion.TrackSource {
	if ts, ok := stream.(pion.TrackSource); ok {
		return ts
	}
	return nil
}

var _ port.MediaCall = (*mediaCall)(nil)
