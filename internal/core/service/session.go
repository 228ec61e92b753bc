package service

import (
	"fmt"
	"time"

	"github.com/Wyydra/peercall/internal/core/domain"
	"github.com/Wyydra/peercall/internal/core/port"
)

// Everything in this file runs on the loop goroutine.

func (s *CallService) connect() error {
	if s.client != nil {
		return nil
	}

	s.clientGen++
	gen := s.clientGen
	client, err := s.factory(s.signalingHandlers(gen))
	if err != nil {
		s.lastError = err.Error()
		s.recordf(domain.LevelError, "Failed to create signaling client: %v", err)
		s.publish()
		return fmt.Errorf("create signaling client: %w", err)
	}
	s.client = client
	s.peerID = client.ID()
	s.recordf(domain.LevelInfo, "Connecting to signaling server as %s", s.peerID)
	s.publish()

	ctx := s.ctx
	go func() {
		if err := client.Open(ctx); err != nil {
			s.fromClient(gen, func() {
				s.onSignalingError(domain.AsSignalingError(err))
			})
		}
	}()
	return nil
}

// reset discards every call and peer state, including the signaling client.
func (s *CallService) reset() {
	s.stopTimers()
	s.callGen++
	s.closeActive()
	s.closePending()

	if s.client != nil {
		if err := s.client.Destroy(); err != nil {
			s.recordf(domain.LevelDebug, "Destroying signaling client: %v", err)
		}
		s.client = nil
	}
	s.clientGen++

	s.connected = false
	s.state = domain.CallIdle
	s.locked = false
	s.remotePeer = ""
	s.remote = domain.RemoteStream{}
	s.ice = domain.ICENew
	s.kind = domain.ConnectionUnknown
	s.connectingSeconds = 0
	s.warning = ""
	s.lastError = ""
	s.publish()
}

func (s *CallService) shutdown() {
	if s.closed {
		return
	}
	s.reset()
	if s.local != nil {
		if err := s.local.Stop(); err != nil {
			s.recordf(domain.LevelDebug, "Stopping local stream: %v", err)
		}
		s.local = nil
		s.localKind = domain.StreamNone
	}
	s.closed = true
	s.record(domain.LevelInfo, "Call session closed")
}

func (s *CallService) startCall(target domain.PeerID) error {
	if s.locked {
		s.record(domain.LevelWarn, "Call rejected: another call operation is in progress")
		return domain.ErrCallInProgress
	}
	if target.IsZero() {
		return domain.ErrInvalidTarget
	}
	if target == s.peerID {
		s.record(domain.LevelWarn, "Call rejected: cannot call yourself")
		return domain.ErrSelfCall
	}
	if !s.connected || s.client == nil {
		s.record(domain.LevelWarn, "Call rejected: not connected to signaling server")
		return domain.ErrNotConnected
	}

	s.locked = true
	gen := s.beginCall(target)
	s.recordf(domain.LevelInfo, "Calling %s", target)

	s.settle = s.after(s.opts.Timings.StartSettleDelay, gen, func() {
		s.settle = nil
		stream := s.ensureLocalStream()
		call, err := s.client.Call(s.ctx, target, stream)
		if err != nil {
			s.onCallError(fmt.Errorf("place call to %s: %w", target, err))
			return
		}
		s.call = call
		call.SetHandlers(s.callHandlers(gen))
	})
	s.publish()
	return nil
}

func (s *CallService) answer(call port.MediaCall) error {
	if s.locked {
		s.recordf(domain.LevelWarn, "Rejecting call from %s: another call operation is in progress", call.Peer())
		_ = call.Close()
		return domain.ErrCallInProgress
	}

	s.locked = true
	gen := s.beginCall(call.Peer())
	s.call = call
	call.SetHandlers(s.callHandlers(gen))
	s.recordf(domain.LevelInfo, "Answering call from %s", call.Peer())

	s.settle = s.after(s.opts.Timings.AnswerSettleDelay, gen, func() {
		s.settle = nil
		stream := s.ensureLocalStream()
		if err := call.Answer(s.ctx, stream); err != nil {
			s.onCallError(fmt.Errorf("answer call from %s: %w", call.Peer(), err))
		}
	})
	s.publish()
	return nil
}

// beginCall closes any prior call and enters the connecting state.
func (s *CallService) beginCall(peer domain.PeerID) uint64 {
	s.stopTimers()
	s.callGen++
	s.closeActive()

	s.state = domain.CallConnecting
	s.remotePeer = peer
	s.remote = domain.RemoteStream{}
	s.ice = domain.ICENew
	s.kind = domain.ConnectionUnknown
	s.lastError = ""
	s.startWatchdog(s.callGen)
	return s.callGen
}

func (s *CallService) endCall(reason string) {
	s.stopTimers()
	s.callGen++
	s.state = domain.CallDisconnecting
	s.locked = true
	s.closeActive()
	s.remote = domain.RemoteStream{}
	s.record(domain.LevelInfo, reason)
	s.publish()

	s.deferred = s.after(s.opts.Timings.LockCooldown, s.callGen, func() {
		s.deferred = nil
		s.toIdle()
	})
}

func (s *CallService) toIdle() {
	s.locked = false
	s.state = domain.CallIdle
	s.remotePeer = ""
	s.ice = domain.ICENew
	s.kind = domain.ConnectionUnknown
	s.connectingSeconds = 0
	s.warning = ""
	s.publish()
}

func (s *CallService) closeActive() {
	if s.call == nil {
		return
	}
	call := s.call
	s.call = nil
	if err := call.Close(); err != nil {
		s.recordf(domain.LevelDebug, "Closing call with %s: %v", call.Peer(), err)
	}
}

func (s *CallService) closePending() {
	if s.pending == nil {
		return
	}
	call := s.pending
	s.pending = nil
	_ = call.Close()
}

func (s *CallService) ensureLocalStream() port.LocalStream {
	if s.local != nil {
		return s.local
	}
	stream, kind, err := AcquireLocalStream(s.ctx, s.devices, s.opts.Capture, s.logs)
	if err != nil {
		s.recordf(domain.LevelError, "No local stream: %v", err)
		return nil
	}
	s.local = stream
	s.localKind = kind
	counts := stream.Counts()
	s.recordf(domain.LevelInfo, "Local media ready (%s): %d video, %d audio", kind, counts.Video, counts.Audio)
	return stream
}

func (s *CallService) signalingHandlers(gen uint64) port.SignalingHandlers {
	return port.SignalingHandlers{
		OnOpen: func(id domain.PeerID) {
			s.fromClient(gen, func() {
				s.connected = true
				if !id.IsZero() {
					s.peerID = id
				}
				s.lastError = ""
				s.recordf(domain.LevelInfo, "Connected to signaling server as %s", s.peerID)
				s.publish()
			})
		},
		OnCall: func(call port.MediaCall) {
			s.fromClient(gen, func() {
				s.onIncomingCall(call)
			})
		},
		OnDisconnected: func() {
			s.fromClient(gen, func() {
				s.connected = false
				s.record(domain.LevelWarn, "Disconnected from signaling server")
				s.publish()
			})
		},
		OnClose: func() {
			s.fromClient(gen, func() {
				s.connected = false
				s.record(domain.LevelInfo, "Signaling connection closed")
				s.publish()
			})
		},
		OnError: func(err *domain.SignalingError) {
			s.fromClient(gen, func() {
				s.onSignalingError(err)
			})
		},
	}
}

func (s *CallService) fromClient(gen uint64, fn func()) {
	s.post(func() {
		if s.closed || gen != s.clientGen {
			return
		}
		fn()
	})
}

func (s *CallService) onIncomingCall(call port.MediaCall) {
	s.recordf(domain.LevelInfo, "Incoming call from %s", call.Peer())
	if s.opts.AutoAnswer {
		_ = s.answer(call)
		return
	}

	if s.pending != nil {
		s.recordf(domain.LevelInfo, "Dropping older incoming call from %s", s.pending.Peer())
		s.closePending()
	}
	s.pending = call
	call.SetHandlers(port.CallHandlers{
		OnClose: func() {
			s.post(func() {
				if s.pending != call {
					return
				}
				s.pending = nil
				s.recordf(domain.LevelInfo, "%s hung up before the call was answered", call.Peer())
				s.publish()
			})
		},
	})
	s.publish()
}

func (s *CallService) onSignalingError(err *domain.SignalingError) {
	if err.Type == domain.ErrTypePeerUnavailable && !err.Peer.IsZero() && err.Peer != s.remotePeer {
		s.recordf(domain.LevelWarn, "Ignoring unavailable peer %s: not the current call", err.Peer)
		return
	}

	s.lastError = err.UserMessage()
	s.recordf(domain.LevelError, "Signaling error (%s): %s", err.Type, err.Error())

	switch err.Type {
	case domain.ErrTypeDisconnected, domain.ErrTypeNetwork, domain.ErrTypeServerError,
		domain.ErrTypeUnavailableID, domain.ErrTypeInvalidID:
		s.connected = false
	}

	inCall := s.call != nil || s.state == domain.CallConnecting || s.state == domain.CallConnected
	switch {
	case err.ForcesTeardown() && inCall:
		s.endCall("Call terminated after signaling error")
		return
	case err.Type == domain.ErrTypePeerUnavailable && s.state == domain.CallConnecting:
		s.onCallError(err)
		return
	}
	s.publish()
}

func (s *CallService) callHandlers(gen uint64) port.CallHandlers {
	guard := func(fn func()) {
		s.post(func() {
			if s.closed || gen != s.callGen {
				return
			}
			fn()
		})
	}
	return port.CallHandlers{
		OnStream: func(stream domain.RemoteStream) {
			guard(func() { s.onRemoteStream(stream) })
		},
		OnClose: func() {
			guard(s.onCallClosed)
		},
		OnError: func(err error) {
			guard(func() { s.onCallError(err) })
		},
		OnICEStateChange: func(state domain.ICEState) {
			guard(func() { s.onICEState(state) })
		},
	}
}

func (s *CallService) onRemoteStream(stream domain.RemoteStream) {
	if s.state == domain.CallDisconnecting || s.state == domain.CallFailed {
		return
	}
	s.remote = stream
	s.recordf(domain.LevelInfo, "Remote stream from %s: %d video, %d audio", s.remotePeer, stream.Tracks.Video, stream.Tracks.Audio)
	if s.state != domain.CallConnected {
		s.state = domain.CallConnected
		s.locked = false
		s.stopTimer(&s.watchdog)
		s.stopTimer(&s.settle)
		s.connectingSeconds = 0
		s.warning = ""
	}
	s.publish()
}

func (s *CallService) onCallClosed() {
	s.call = nil
	s.remote = domain.RemoteStream{}
	s.recordf(domain.LevelInfo, "Call with %s closed", s.remotePeer)

	// disconnecting and failed finish through their own timers
	if s.state == domain.CallDisconnecting || s.state == domain.CallFailed {
		s.publish()
		return
	}
	s.stopTimers()
	s.callGen++
	s.toIdle()
}

func (s *CallService) onCallError(err error) {
	s.lastError = err.Error()
	s.recordf(domain.LevelError, "Call error: %v", err)
	if s.state == domain.CallDisconnecting || s.state == domain.CallFailed {
		s.publish()
		return
	}

	s.stopTimers()
	s.callGen++
	s.closeActive()
	s.remote = domain.RemoteStream{}
	s.state = domain.CallFailed
	s.publish()

	s.deferred = s.after(s.opts.Timings.ErrorRecoveryDelay, s.callGen, func() {
		s.deferred = nil
		s.toIdle()
	})
}

func (s *CallService) onICEState(state domain.ICEState) {
	s.ice = state
	s.recordf(domain.LevelDebug, "ICE connection state: %s", state)

	switch state {
	case domain.ICEFailed:
		if s.state == domain.CallFailed || s.state == domain.CallDisconnecting {
			break
		}
		s.state = domain.CallFailed
		s.lastError = "ICE negotiation failed"
		s.stopTimers()
		s.record(domain.LevelError, "ICE negotiation failed, tearing the call down")
		gen := s.callGen
		s.deferred = s.after(s.opts.Timings.FailureTeardownDelay, gen, func() {
			s.deferred = nil
			s.callGen++
			s.closeActive()
			s.remote = domain.RemoteStream{}
			s.toIdle()
		})
	case domain.ICEConnected, domain.ICECompleted:
		if s.call == nil {
			break
		}
		kind, err := s.call.ConnectionKind(s.ctx)
		if err != nil {
			s.recordf(domain.LevelDebug, "Reading transport stats: %v", err)
			break
		}
		if kind != s.kind {
			s.kind = kind
			s.recordf(domain.LevelInfo, "Media path to %s is %s", s.remotePeer, kind)
		}
	case domain.ICEDisconnected:
		s.record(domain.LevelWarn, "ICE connection interrupted")
	}
	s.publish()
}

func (s *CallService) startWatchdog(gen uint64) {
	s.connectingSeconds = 0
	s.warning = ""
	s.watchdog = s.after(time.Second, gen, func() { s.watchdogTick(gen) })
}

func (s *CallService) watchdogTick(gen uint64) {
	s.watchdog = nil
	if s.state != domain.CallConnecting {
		return
	}
	s.connectingSeconds++

	t := s.opts.Timings
	if s.connectingSeconds >= t.WatchdogFailAfter {
		s.lastError = "connection timed out"
		s.recordf(domain.LevelError, "No connection to %s after %ds, giving up", s.remotePeer, s.connectingSeconds)
		s.endCall("Call ended after connection timeout")
		return
	}
	if s.connectingSeconds == t.WatchdogWarnAfter {
		s.warning = "Connection is taking longer than expected"
		s.recordf(domain.LevelWarn, "Still connecting to %s after %ds", s.remotePeer, s.connectingSeconds)
	}
	s.watchdog = s.after(time.Second, gen, func() { s.watchdogTick(gen) })
	s.publish()
}

// after schedules fn on the loop unless the call generation moved on meanwhile.
func (s *CallService) after(d time.Duration, gen uint64, fn func()) port.Timer {
	return s.clock.AfterFunc(d, func() {
		s.post(func() {
			if s.closed || gen != s.callGen {
				return
			}
			fn()
		})
	})
}

func (s *CallService) stopTimer(t *port.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (s *CallService) stopTimers() {
	s.stopTimer(&s.settle)
	s.stopTimer(&s.watchdog)
	s.stopTimer(&s.deferred)
}
