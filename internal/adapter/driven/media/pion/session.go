package pion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Wyydra/peercall/internal/core/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// TrackSource is implemented by local streams that can feed a peer connection.
type TrackSource interface {
	LocalTracks() []webrtc.TrackLocal
}

type SessionHandlers struct {
	OnCandidate func(webrtc.ICECandidateInit)
	OnTracks    func(domain.TrackCounts)
	OnICEState  func(domain.ICEState)
}

// Session is one peer connection carrying a single call.
type Session struct {
	pc       *webrtc.PeerConnection
	handlers SessionHandlers

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	counts     domain.TrackCounts
	remoteSet  bool
	remoteCand []webrtc.ICECandidateInit
	trickling  bool
	localCand  []webrtc.ICECandidateInit
	closed     bool
}

func NewSession(api *webrtc.API, cfg webrtc.Configuration, h SessionHandlers) (*Session, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		pc:       pc,
		handlers: h,
		ctx:      ctx,
		cancel:   cancel,
	}

	pc.OnICECandidate(s.onLocalCandidate)
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Debug().Str("state", state.String()).Msg("ICE connection state changed")
		if s.handlers.OnICEState != nil {
			s.handlers.OnICEState(domain.ParseICEState(state.String()))
		}
	})
	pc.OnTrack(s.onTrack)
	return s, nil
}

// CreateOffer adds the local tracks, plus receive-only transceivers for any
// kind the local stream lacks, and returns the offer SDP.
func (s *Session) CreateOffer(local TrackSource) (string, error) {
	kinds, err := s.addLocalTracks(local)
	if err != nil {
		return "", err
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if kinds[kind] {
			continue
		}
		if _, err := s.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return "", fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return offer.SDP, nil
}

// AcceptOffer applies a remote offer and returns the answer SDP.
func (s *Session) AcceptOffer(sdp string, local TrackSource) (string, error) {
	if err := s.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return "", err
	}
	if _, err := s.addLocalTracks(local); err != nil {
		return "", err
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return answer.SDP, nil
}

func (s *Session) AcceptAnswer(sdp string) error {
	return s.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

// AddRemoteCandidate applies c, or holds it until the remote description is set.
func (s *Session) AddRemoteCandidate(c webrtc.ICECandidateInit) error {
	s.mu.Lock()
	if !s.remoteSet {
		s.remoteCand = append(s.remoteCand, c)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.pc.AddICECandidate(c)
}

// StartTrickle releases local candidates gathered so far and forwards later
// ones as they come. Call it once the local description has been sent.
func (s *Session) StartTrickle() {
	s.mu.Lock()
	s.trickling = true
	pending := s.localCand
	s.localCand = nil
	s.mu.Unlock()

	for _, c := range pending {
		s.emitCandidate(c)
	}
}

func (s *Session) ConnectionKind() domain.ConnectionKind {
	return ClassifyConnection(s.pc.GetStats())
}

func (s *Session) Counts() domain.TrackCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}

func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	return s.pc.Close()
}

func (s *Session) setRemote(desc webrtc.SessionDescription) error {
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote %s: %w", desc.Type, err)
	}

	s.mu.Lock()
	s.remoteSet = true
	pending := s.remoteCand
	s.remoteCand = nil
	s.mu.Unlock()

	var errs []error
	for _, c := range pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) addLocalTracks(local TrackSource) (map[webrtc.RTPCodecType]bool, error) {
	kinds := make(map[webrtc.RTPCodecType]bool)
	if local == nil {
		return kinds, nil
	}
	for _, track := range local.LocalTracks() {
		sender, err := s.pc.AddTrack(track)
		if err != nil {
			return nil, fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
		kinds[track.Kind()] = true
		go drainRTCP(sender)
	}
	return kinds, nil
}

func (s *Session) onLocalCandidate(c *webrtc.ICECandidate) {
	if c == nil {
		return
	}
	init := c.ToJSON()

	s.mu.Lock()
	if !s.trickling {
		s.localCand = append(s.localCand, init)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.emitCandidate(init)
}

func (s *Session) emitCandidate(c webrtc.ICECandidateInit) {
	if s.handlers.OnCandidate != nil {
		s.handlers.OnCandidate(c)
	}
}

func (s *Session) onTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	log.Debug().Str("kind", track.Kind().String()).Str("track_id", track.ID()).Msg("Received remote track")

	s.mu.Lock()
	switch track.Kind() {
	case webrtc.RTPCodecTypeVideo:
		s.counts.Video++
	case webrtc.RTPCodecTypeAudio:
		s.counts.Audio++
	}
	counts := s.counts
	s.mu.Unlock()

	if track.Kind() == webrtc.RTPCodecTypeVideo {
		go RequestKeyframes(s.ctx, s.pc, track)
	}
	go drainTrack(track)

	if s.handlers.OnTracks != nil {
		s.handlers.OnTracks(counts)
	}
}

// drainTrack consumes remote RTP; there is no renderer.
func drainTrack(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

// drainRTCP lets the interceptors see incoming RTCP for a sender.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
